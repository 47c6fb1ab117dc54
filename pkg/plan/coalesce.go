package plan

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/pkg/errors"
)

const coalesceBatchesExecKind = "coalesce_batches_exec"

// CoalesceBatchesExec merges small batches until they reach TargetBatchSize rows.
type CoalesceBatchesExec struct {
	Input           Plan
	TargetBatchSize int
}

func NewCoalesceBatchesExec(input Plan, target int) (*CoalesceBatchesExec, error) {
	if target <= 0 {
		return nil, errors.WithMessagef(ErrInvalidPlan, "target batch size %d", target)
	}
	return &CoalesceBatchesExec{Input: input, TargetBatchSize: target}, nil
}

func (c *CoalesceBatchesExec) Kind() string          { return coalesceBatchesExecKind }
func (c *CoalesceBatchesExec) Schema() *arrow.Schema { return c.Input.Schema() }
func (c *CoalesceBatchesExec) Children() []Plan      { return []Plan{c.Input} }

func (c *CoalesceBatchesExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	batches, err := executeChild(ctx, c.Input)
	if err != nil {
		return nil, err
	}
	var (
		out     []arrow.Record
		pending []arrow.Record
		rows    int64
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if len(pending) == 1 {
			out = append(out, pending[0])
		} else {
			merged, err := concat(c.Schema(), pending)
			if err != nil {
				return err
			}
			out = append(out, merged)
		}
		pending, rows = nil, 0
		return nil
	}
	for _, batch := range batches {
		if batch.NumRows() == 0 {
			continue
		}
		pending = append(pending, batch)
		rows += batch.NumRows()
		if rows >= int64(c.TargetBatchSize) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func concat(schema *arrow.Schema, batches []arrow.Record) (arrow.Record, error) {
	cols := make([]arrow.Array, len(schema.Fields()))
	var rows int64
	for _, batch := range batches {
		rows += batch.NumRows()
	}
	for i := range cols {
		parts := make([]arrow.Array, 0, len(batches))
		for _, batch := range batches {
			parts = append(parts, batch.Column(i))
		}
		col, err := array.Concatenate(parts, allocator)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidInput, err.Error())
		}
		defer col.Release()
		cols[i] = col
	}
	return array.NewRecord(schema, cols, rows), nil
}

type coalesceBatchesExecJSON struct {
	Kind            string          `json:"execution_plan"`
	TargetBatchSize int             `json:"target_batch_size"`
	Input           json.RawMessage `json:"input"`
}

func (c *CoalesceBatchesExec) MarshalJSON() ([]byte, error) {
	input, err := Marshal(c.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(coalesceBatchesExecJSON{Kind: coalesceBatchesExecKind, TargetBatchSize: c.TargetBatchSize, Input: input})
}

func init() {
	register(coalesceBatchesExecKind, func(raw []byte) (Plan, error) {
		v := coalesceBatchesExecJSON{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		input, err := decodeChild(v.Input, "input")
		if err != nil {
			return nil, err
		}
		return NewCoalesceBatchesExec(input, v.TargetBatchSize)
	})
}
