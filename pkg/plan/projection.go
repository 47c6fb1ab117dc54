package plan

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/pkg/errors"
)

const projectionExecKind = "projection_exec"

// Column selects input field Index, renamed to Name when Name is set.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type ProjectionExec struct {
	Input   Plan
	Columns []Column
	schema  *arrow.Schema
}

func NewProjectionExec(input Plan, columns []Column) (*ProjectionExec, error) {
	in := input.Schema()
	columns = append([]Column(nil), columns...)
	fields := make([]arrow.Field, 0, len(columns))
	for i, c := range columns {
		if err := checkColumn(in, c.Index); err != nil {
			return nil, err
		}
		f := in.Field(c.Index)
		if c.Name == "" {
			columns[i].Name = f.Name
		}
		f.Name = columns[i].Name
		fields = append(fields, f)
	}
	return &ProjectionExec{Input: input, Columns: columns, schema: arrow.NewSchema(fields, nil)}, nil
}

func (p *ProjectionExec) Kind() string          { return projectionExecKind }
func (p *ProjectionExec) Schema() *arrow.Schema { return p.schema }
func (p *ProjectionExec) Children() []Plan      { return []Plan{p.Input} }

func (p *ProjectionExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	batches, err := executeChild(ctx, p.Input)
	if err != nil {
		return nil, err
	}
	out := make([]arrow.Record, 0, len(batches))
	for _, batch := range batches {
		cols := make([]arrow.Array, 0, len(p.Columns))
		for _, c := range p.Columns {
			cols = append(cols, batch.Column(c.Index))
		}
		out = append(out, array.NewRecord(p.schema, cols, batch.NumRows()))
	}
	return out, nil
}

type projectionExecJSON struct {
	Kind    string          `json:"execution_plan"`
	Columns []Column        `json:"expr"`
	Input   json.RawMessage `json:"input"`
}

func (p *ProjectionExec) MarshalJSON() ([]byte, error) {
	input, err := Marshal(p.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(projectionExecJSON{Kind: projectionExecKind, Columns: p.Columns, Input: input})
}

func init() {
	register(projectionExecKind, func(raw []byte) (Plan, error) {
		v := projectionExecJSON{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		input, err := decodeChild(v.Input, "input")
		if err != nil {
			return nil, err
		}
		return NewProjectionExec(input, v.Columns)
	})
}
