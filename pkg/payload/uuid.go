package payload

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidFragment = errors.New("invalid fragment identity")

// WindowID identifies one window: all fragments of one shuffle partition of one query.
type WindowID struct {
	QueryID   string `json:"qid"`
	ShuffleID int    `json:"shuffle_id"`
}

func (w WindowID) String() string {
	return fmt.Sprintf("%s/%d", w.QueryID, w.ShuffleID)
}

// Uuid names one fragment of one window.
type Uuid struct {
	// Tid is the query id, stable across all fragments and stages of a query execution.
	Tid string `json:"tid"`
	// SeqNum is the 1-based position of the fragment in its window.
	SeqNum int `json:"seq_num"`
	// SeqLen is the number of fragments the window expects.
	SeqLen int `json:"seq_len"`
	// ShuffleID is the shuffle partition the fragment belongs to.
	ShuffleID int `json:"shuffle_id"`
}

func (u Uuid) WindowID() WindowID {
	return WindowID{QueryID: u.Tid, ShuffleID: u.ShuffleID}
}

func (u Uuid) Validate() error {
	if u.SeqLen < 1 || u.SeqNum < 1 || u.SeqNum > u.SeqLen {
		return errors.WithMessagef(ErrInvalidFragment, "seq_num %d, seq_len %d", u.SeqNum, u.SeqLen)
	}
	return nil
}

func (u Uuid) String() string {
	return fmt.Sprintf("%s/%d[%d/%d]", u.Tid, u.ShuffleID, u.SeqNum, u.SeqLen)
}

// UuidBuilder hands out the fragment identities of one window.
type UuidBuilder struct {
	tid       string
	shuffleID int
	seqLen    int
}

func NewUuidBuilder(queryID string, shuffleID, seqLen int) *UuidBuilder {
	return &UuidBuilder{tid: queryID, shuffleID: shuffleID, seqLen: seqLen}
}

// NewUuidBuilderWithTs derives the query id from a function name and the current time,
// so repeated runs of one function never share windows.
func NewUuidBuilderWithTs(functionName string, shuffleID, seqLen int) *UuidBuilder {
	tid := fmt.Sprintf("%s-%s", functionName, time.Now().UTC().Format(time.RFC3339Nano))
	return NewUuidBuilder(tid, shuffleID, seqLen)
}

func (b *UuidBuilder) QueryID() string {
	return b.tid
}

func (b *UuidBuilder) Len() int {
	return b.seqLen
}

// Get returns the identity of fragment seqNum, which must be in [1, Len()].
func (b *UuidBuilder) Get(seqNum int) Uuid {
	if seqNum < 1 || seqNum > b.seqLen {
		panic(fmt.Sprintf("seq_num %d out of range [1, %d]", seqNum, b.seqLen))
	}
	return Uuid{Tid: b.tid, SeqNum: seqNum, SeqLen: b.seqLen, ShuffleID: b.shuffleID}
}
