package plan

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const filterExecKind = "filter_exec"

type Op string

const (
	Eq Op = "="
	Ne Op = "!="
	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
)

// Predicate compares column Column against the literal Value.
type Predicate struct {
	Column int         `json:"column"`
	Op     Op          `json:"op"`
	Value  interface{} `json:"value"`
}

type FilterExec struct {
	Input     Plan
	Predicate Predicate
}

func NewFilterExec(input Plan, predicate Predicate) (*FilterExec, error) {
	if err := checkColumn(input.Schema(), predicate.Column); err != nil {
		return nil, err
	}
	switch predicate.Op {
	case Eq, Ne, Lt, Le, Gt, Ge:
	default:
		return nil, errors.WithMessagef(ErrInvalidPlan, "operator %q", predicate.Op)
	}
	if n, ok := predicate.Value.(json.Number); ok {
		predicate.Value = n.String()
	}
	switch input.Schema().Field(predicate.Column).Type.ID() {
	case arrow.INT32, arrow.INT64:
		v, err := integerLiteral(predicate.Value)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		predicate.Value = v
	case arrow.FLOAT64:
		v, err := cast.ToFloat64E(predicate.Value)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		predicate.Value = v
	case arrow.STRING:
		v, err := cast.ToStringE(predicate.Value)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		predicate.Value = v
	case arrow.BOOL:
		v, err := cast.ToBoolE(predicate.Value)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		if predicate.Op != Eq && predicate.Op != Ne {
			return nil, errors.WithMessagef(ErrInvalidPlan, "operator %q on boolean", predicate.Op)
		}
		predicate.Value = v
	}
	return &FilterExec{Input: input, Predicate: predicate}, nil
}

// integerLiteral keeps literals of integer columns as int64 when they are
// integral, anything else compares as float64.
func integerLiteral(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		if n, ok := exactInt(v); ok {
			return n, nil
		}
		return v, nil
	case float32:
		if n, ok := exactInt(float64(v)); ok {
			return n, nil
		}
		return float64(v), nil
	case bool:
		return nil, errors.Errorf("boolean literal %v on an integer column", v)
	}
	if n, err := cast.ToInt64E(value); err == nil {
		return n, nil
	}
	return cast.ToFloat64E(value)
}

func (f *FilterExec) Kind() string          { return filterExecKind }
func (f *FilterExec) Schema() *arrow.Schema { return f.Input.Schema() }
func (f *FilterExec) Children() []Plan      { return []Plan{f.Input} }

func (f *FilterExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	batches, err := executeChild(ctx, f.Input)
	if err != nil {
		return nil, err
	}
	out := make([]arrow.Record, 0, len(batches))
	for _, batch := range batches {
		col := batch.Column(f.Predicate.Column)
		var keep []int
		for i := 0; i < int(batch.NumRows()); i++ {
			if f.match(col, i) {
				keep = append(keep, i)
			}
		}
		out = append(out, take(batch, keep))
	}
	return out, nil
}

func (f *FilterExec) match(col arrow.Array, i int) bool {
	if col.IsNull(i) {
		return false
	}
	var c int
	switch a := col.(type) {
	case *array.String:
		c = compare(a.Value(i), f.Predicate.Value.(string))
	case *array.Boolean:
		eq := a.Value(i) == f.Predicate.Value.(bool)
		return eq == (f.Predicate.Op == Eq)
	default:
		if lit, ok := f.Predicate.Value.(int64); ok {
			v, _ := integer(col, i)
			c = compare(v, lit)
		} else {
			v, _ := numeric(col, i)
			c = compare(v, f.Predicate.Value.(float64))
		}
	}
	switch f.Predicate.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	default:
		return c >= 0
	}
}

func compare[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type filterExecJSON struct {
	Kind      string          `json:"execution_plan"`
	Predicate Predicate       `json:"predicate"`
	Input     json.RawMessage `json:"input"`
}

func (f *FilterExec) MarshalJSON() ([]byte, error) {
	input, err := Marshal(f.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(filterExecJSON{Kind: filterExecKind, Predicate: f.Predicate, Input: input})
}

func init() {
	register(filterExecKind, func(raw []byte) (Plan, error) {
		v := filterExecJSON{}
		// numbers stay exact until the column type is known
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()
		if err := decoder.Decode(&v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		input, err := decodeChild(v.Input, "input")
		if err != nil {
			return nil, err
		}
		return NewFilterExec(input, v.Predicate)
	})
}
