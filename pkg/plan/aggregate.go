package plan

import (
	"context"
	"encoding/json"
	"math"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/pkg/errors"
)

const hashAggregateExecKind = "hash_aggregate_exec"

type AggregateFunc string

const (
	Count AggregateFunc = "count"
	Sum   AggregateFunc = "sum"
	Min   AggregateFunc = "min"
	Max   AggregateFunc = "max"
)

type Aggregate struct {
	Func   AggregateFunc `json:"func"`
	Column int           `json:"column"`
	Name   string        `json:"name"`
}

// HashAggregateExec groups its input by one column. Groups are emitted in
// first seen order as a single batch.
type HashAggregateExec struct {
	Input      Plan
	GroupBy    int
	Aggregates []Aggregate
	schema     *arrow.Schema
}

func NewHashAggregateExec(input Plan, groupBy int, aggregates []Aggregate) (*HashAggregateExec, error) {
	in := input.Schema()
	if err := checkColumn(in, groupBy); err != nil {
		return nil, err
	}
	aggregates = append([]Aggregate(nil), aggregates...)
	fields := []arrow.Field{in.Field(groupBy)}
	for i, agg := range aggregates {
		if err := checkColumn(in, agg.Column); err != nil {
			return nil, err
		}
		if agg.Name == "" {
			aggregates[i].Name = string(agg.Func) + "(" + in.Field(agg.Column).Name + ")"
		}
		switch agg.Func {
		case Count:
			fields = append(fields, arrow.Field{Name: aggregates[i].Name, Type: arrow.PrimitiveTypes.Int64})
		case Sum, Min, Max:
			switch in.Field(agg.Column).Type.ID() {
			case arrow.INT32, arrow.INT64, arrow.FLOAT64:
			default:
				return nil, errors.WithMessagef(ErrInvalidPlan, "%s over %s", agg.Func, in.Field(agg.Column).Type)
			}
			fields = append(fields, arrow.Field{Name: aggregates[i].Name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
		default:
			return nil, errors.WithMessagef(ErrInvalidPlan, "aggregate %q", agg.Func)
		}
	}
	return &HashAggregateExec{Input: input, GroupBy: groupBy, Aggregates: aggregates, schema: arrow.NewSchema(fields, nil)}, nil
}

func (h *HashAggregateExec) Kind() string          { return hashAggregateExecKind }
func (h *HashAggregateExec) Schema() *arrow.Schema { return h.schema }
func (h *HashAggregateExec) Children() []Plan      { return []Plan{h.Input} }

type accumulator struct {
	count int64
	value float64
	seen  bool
}

func (a *accumulator) update(fn AggregateFunc, v float64) {
	a.count++
	switch {
	case !a.seen:
		a.value = v
	case fn == Sum:
		a.value += v
	case fn == Min:
		a.value = math.Min(a.value, v)
	case fn == Max:
		a.value = math.Max(a.value, v)
	}
	a.seen = true
}

type group struct {
	batch int
	row   int
	accs  []accumulator
}

func (h *HashAggregateExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	batches, err := executeChild(ctx, h.Input)
	if err != nil {
		return nil, err
	}
	var (
		order  []*group
		groups = map[string]*group{}
	)
	for b, batch := range batches {
		keys := batch.Column(h.GroupBy)
		for i := 0; i < int(batch.NumRows()); i++ {
			k, ok := key(keys, i)
			if !ok {
				k = "null"
			}
			g, ok := groups[k]
			if !ok {
				g = &group{batch: b, row: i, accs: make([]accumulator, len(h.Aggregates))}
				groups[k] = g
				order = append(order, g)
			}
			for a, agg := range h.Aggregates {
				col := batch.Column(agg.Column)
				if col.IsNull(i) {
					continue
				}
				v, _ := numeric(col, i)
				g.accs[a].update(agg.Func, v)
			}
		}
	}

	builder := array.NewRecordBuilder(allocator, h.schema)
	defer builder.Release()
	for _, g := range order {
		appendValue(builder.Field(0), batches[g.batch].Column(h.GroupBy), g.row)
		for a, agg := range h.Aggregates {
			acc := g.accs[a]
			if agg.Func == Count {
				builder.Field(a + 1).(*array.Int64Builder).Append(acc.count)
				continue
			}
			fb := builder.Field(a + 1).(*array.Float64Builder)
			if !acc.seen {
				fb.AppendNull()
				continue
			}
			fb.Append(acc.value)
		}
	}
	return []arrow.Record{builder.NewRecord()}, nil
}

type hashAggregateExecJSON struct {
	Kind       string          `json:"execution_plan"`
	GroupBy    int             `json:"group_by"`
	Aggregates []Aggregate     `json:"aggr_expr"`
	Input      json.RawMessage `json:"input"`
}

func (h *HashAggregateExec) MarshalJSON() ([]byte, error) {
	input, err := Marshal(h.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hashAggregateExecJSON{Kind: hashAggregateExecKind, GroupBy: h.GroupBy, Aggregates: h.Aggregates, Input: input})
}

func init() {
	register(hashAggregateExecKind, func(raw []byte) (Plan, error) {
		v := hashAggregateExecJSON{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		input, err := decodeChild(v.Input, "input")
		if err != nil {
			return nil, err
		}
		return NewHashAggregateExec(input, v.GroupBy, v.Aggregates)
	})
}
