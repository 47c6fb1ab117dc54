package arena

import (
	"sync"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

var ErrEmptyWindow = errors.New("window has no record batches")

// WindowSession accumulates the fragments of one window.
type WindowSession struct {
	// Size is the number of fragments the window expects.
	Size int
	// R1Records and R2Records hold one group per accepted fragment, in arrival order.
	R1Records [][]arrow.Record
	R2Records [][]arrow.Record
	Bitmap    *Bitmap

	mu       sync.Mutex
	consumed bool
}

func newWindowSession(size int) *WindowSession {
	return &WindowSession{
		Size: size,
		// sequence numbers start at 1
		Bitmap: NewBitmap(size + 1),
	}
}

// Schema returns the schema of the first relation and, when present, of the second.
func (w *WindowSession) Schema() (*arrow.Schema, *arrow.Schema, error) {
	if len(w.R1Records) == 0 || len(w.R1Records[0]) == 0 {
		return nil, nil, ErrEmptyWindow
	}
	var r2 *arrow.Schema
	for _, group := range w.R2Records {
		if len(group) > 0 {
			r2 = group[0].Schema()
			break
		}
	}
	return w.R1Records[0][0].Schema(), r2, nil
}

func (w *WindowSession) complete() bool {
	return len(w.R1Records) == w.Size
}
