package plan

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

const globalLimitExecKind = "global_limit_exec"

type GlobalLimitExec struct {
	Input Plan
	Skip  int64
	Fetch int64
}

func NewGlobalLimitExec(input Plan, skip, fetch int64) (*GlobalLimitExec, error) {
	if skip < 0 || fetch < 0 {
		return nil, errors.WithMessagef(ErrInvalidPlan, "skip %d fetch %d", skip, fetch)
	}
	return &GlobalLimitExec{Input: input, Skip: skip, Fetch: fetch}, nil
}

func (l *GlobalLimitExec) Kind() string          { return globalLimitExecKind }
func (l *GlobalLimitExec) Schema() *arrow.Schema { return l.Input.Schema() }
func (l *GlobalLimitExec) Children() []Plan      { return []Plan{l.Input} }

func (l *GlobalLimitExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	batches, err := executeChild(ctx, l.Input)
	if err != nil {
		return nil, err
	}
	var (
		out       []arrow.Record
		skip      = l.Skip
		remaining = l.Fetch
	)
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		rows := batch.NumRows()
		if skip >= rows {
			skip -= rows
			continue
		}
		end := rows
		if end-skip > remaining {
			end = skip + remaining
		}
		out = append(out, batch.NewSlice(skip, end))
		remaining -= end - skip
		skip = 0
	}
	return out, nil
}

type globalLimitExecJSON struct {
	Kind  string          `json:"execution_plan"`
	Skip  int64           `json:"skip"`
	Fetch int64           `json:"fetch"`
	Input json.RawMessage `json:"input"`
}

func (l *GlobalLimitExec) MarshalJSON() ([]byte, error) {
	input, err := Marshal(l.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(globalLimitExecJSON{Kind: globalLimitExecKind, Skip: l.Skip, Fetch: l.Fetch, Input: input})
}

func init() {
	register(globalLimitExecKind, func(raw []byte) (Plan, error) {
		v := globalLimitExecJSON{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		input, err := decodeChild(v.Input, "input")
		if err != nil {
			return nil, err
		}
		return NewGlobalLimitExec(input, v.Skip, v.Fetch)
	})
}
