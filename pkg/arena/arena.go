// Package arena aggregates the fragments of a window inside one function
// instance until the window is complete.
//
// All fragments of one window must be delivered to the same Arena. Two
// instances that each receive a subset of a window will both keep collecting
// and neither reports Ready; routing fragments consistently (for example by
// hashing the shuffle id) is the job of whoever invokes the function.
package arena

import (
	"sync"

	"cirrus/pkg/payload"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

var ErrProtocolMismatch = errors.New("fragment sequence length disagrees with window size")

// Status is the outcome of collecting one fragment.
type Status int

const (
	// NotReady means the window still misses fragments.
	NotReady Status = iota
	// Ready means this fragment completed the window.
	Ready
	// Processed means the fragment was already collected.
	Processed
)

func (s Status) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Processed:
		return "processed"
	default:
		return "unknown"
	}
}

// Fragment is what the arena needs from a payload.
type Fragment interface {
	Fragment() payload.Uuid
	ToRecordBatch() ([]arrow.Record, []arrow.Record, error)
}

// Arena maps window identities to their sessions. Collects on one window are
// serialized, collects on different windows don't contend.
type Arena struct {
	mu      sync.Mutex
	windows map[payload.WindowID]*WindowSession
}

func New() *Arena {
	return &Arena{windows: map[payload.WindowID]*WindowSession{}}
}

// Collect merges one fragment into its window.
func (a *Arena) Collect(f Fragment) (Status, error) {
	uuid := f.Fragment()
	if err := uuid.Validate(); err != nil {
		return NotReady, err
	}
	id := uuid.WindowID()
	for {
		a.mu.Lock()
		w, ok := a.windows[id]
		if !ok {
			w = newWindowSession(uuid.SeqLen)
			a.windows[id] = w
		}
		a.mu.Unlock()

		w.mu.Lock()
		if w.consumed {
			// taken between the lookup and the lock, start over with a fresh session
			w.mu.Unlock()
			continue
		}
		status, err := w.collect(uuid, f)
		if err != nil && len(w.R1Records) == 0 {
			a.evict(id, w)
		}
		w.mu.Unlock()
		return status, err
	}
}

func (w *WindowSession) collect(uuid payload.Uuid, f Fragment) (Status, error) {
	if uuid.SeqLen != w.Size {
		return NotReady, errors.WithMessagef(ErrProtocolMismatch, "fragment %s, window size %d", uuid, w.Size)
	}
	if w.Bitmap.IsSet(uuid.SeqNum) {
		return Processed, nil
	}
	r1, r2, err := f.ToRecordBatch()
	if err != nil {
		return NotReady, err
	}
	w.R1Records = append(w.R1Records, r1)
	w.R2Records = append(w.R2Records, r2)
	w.Bitmap.Set(uuid.SeqNum)
	if w.complete() {
		return Ready, nil
	}
	return NotReady, nil
}

// evict drops an empty session left behind by a failed first fragment, w.mu is held.
func (a *Arena) evict(id payload.WindowID, w *WindowSession) {
	a.mu.Lock()
	if a.windows[id] == w {
		delete(a.windows, id)
	}
	a.mu.Unlock()
	w.consumed = true
}

// TakeBatches removes the window and returns its record batch groups for both
// relations. An unknown window yields two empty slices.
func (a *Arena) TakeBatches(id payload.WindowID) [2][][]arrow.Record {
	a.mu.Lock()
	w, ok := a.windows[id]
	delete(a.windows, id)
	a.mu.Unlock()
	if !ok {
		return [2][][]arrow.Record{{}, {}}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.consumed = true
	r1, r2 := w.R1Records, w.R2Records
	w.R1Records, w.R2Records = nil, nil
	return [2][][]arrow.Record{r1, r2}
}

// IsComplete reports whether every fragment of the window arrived.
func (a *Arena) IsComplete(id payload.WindowID) bool {
	w, ok := a.get(id)
	if !ok {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.complete()
}

// GetBitmap returns a copy of the window's bitmap.
func (a *Arena) GetBitmap(id payload.WindowID) (*Bitmap, bool) {
	w, ok := a.get(id)
	if !ok {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return &Bitmap{n: w.Bitmap.n, bits: w.Bitmap.bits.Clone()}, true
}

// Schema returns the schemas of a window's relations.
func (a *Arena) Schema(id payload.WindowID) (*arrow.Schema, *arrow.Schema, error) {
	w, ok := a.get(id)
	if !ok {
		return nil, nil, ErrEmptyWindow
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Schema()
}

// Len is the number of live windows.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.windows)
}

func (a *Arena) get(id payload.WindowID) (*WindowSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[id]
	return w, ok
}
