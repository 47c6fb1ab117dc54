package plan

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/pkg/errors"
)

const hashJoinExecKind = "hash_join_exec"

// JoinOn pairs a left column with a right column of equal value.
type JoinOn struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// HashJoinExec is an inner equi join. The left side is built, the right side
// is streamed against it, and output rows follow right side order. The output
// schema is the left fields followed by the right fields.
type HashJoinExec struct {
	Left   Plan
	Right  Plan
	On     JoinOn
	schema *arrow.Schema
}

func NewHashJoinExec(left, right Plan, on JoinOn) (*HashJoinExec, error) {
	if err := checkColumn(left.Schema(), on.Left); err != nil {
		return nil, err
	}
	if err := checkColumn(right.Schema(), on.Right); err != nil {
		return nil, err
	}
	fields := append([]arrow.Field{}, left.Schema().Fields()...)
	fields = append(fields, right.Schema().Fields()...)
	return &HashJoinExec{Left: left, Right: right, On: on, schema: arrow.NewSchema(fields, nil)}, nil
}

func (j *HashJoinExec) Kind() string          { return hashJoinExecKind }
func (j *HashJoinExec) Schema() *arrow.Schema { return j.schema }
func (j *HashJoinExec) Children() []Plan      { return []Plan{j.Left, j.Right} }

type rowRef struct {
	batch int
	row   int
}

func (j *HashJoinExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	build, err := executeChild(ctx, j.Left)
	if err != nil {
		return nil, err
	}
	streamed, err := executeChild(ctx, j.Right)
	if err != nil {
		return nil, err
	}
	table := map[string][]rowRef{}
	for b, batch := range build {
		col := batch.Column(j.On.Left)
		for i := 0; i < int(batch.NumRows()); i++ {
			if k, ok := key(col, i); ok {
				table[k] = append(table[k], rowRef{batch: b, row: i})
			}
		}
	}

	leftWidth := len(j.Left.Schema().Fields())
	builder := array.NewRecordBuilder(allocator, j.schema)
	defer builder.Release()
	for _, batch := range streamed {
		col := batch.Column(j.On.Right)
		for i := 0; i < int(batch.NumRows()); i++ {
			k, ok := key(col, i)
			if !ok {
				continue
			}
			for _, ref := range table[k] {
				left := build[ref.batch]
				for c := 0; c < leftWidth; c++ {
					appendValue(builder.Field(c), left.Column(c), ref.row)
				}
				for c := 0; c < int(batch.NumCols()); c++ {
					appendValue(builder.Field(leftWidth+c), batch.Column(c), i)
				}
			}
		}
	}
	return []arrow.Record{builder.NewRecord()}, nil
}

type hashJoinExecJSON struct {
	Kind  string          `json:"execution_plan"`
	On    JoinOn          `json:"on"`
	Left  json.RawMessage `json:"left"`
	Right json.RawMessage `json:"right"`
}

func (j *HashJoinExec) MarshalJSON() ([]byte, error) {
	left, err := Marshal(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := Marshal(j.Right)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hashJoinExecJSON{Kind: hashJoinExecKind, On: j.On, Left: left, Right: right})
}

func init() {
	register(hashJoinExecKind, func(raw []byte) (Plan, error) {
		v := hashJoinExecJSON{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		left, err := decodeChild(v.Left, "left")
		if err != nil {
			return nil, err
		}
		right, err := decodeChild(v.Right, "right")
		if err != nil {
			return nil, err
		}
		return NewHashJoinExec(left, right, v.On)
	})
}
