// Package plan is a tree of physical operators over arrow record batches.
//
// Plans serialize to a canonical JSON form tagged by "execution_plan". Record
// batches held by leaves are never serialized: a decoded plan has empty leaves
// that are filled in place through the Leaf capability before execution.
package plan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

var (
	ErrUnknownPlan  = errors.New("unknown execution plan")
	ErrInvalidPlan  = errors.New("invalid execution plan")
	ErrInvalidInput = errors.New("invalid input batches")
)

// Plan is one physical operator.
type Plan interface {
	// Kind is the serialization tag.
	Kind() string
	Schema() *arrow.Schema
	Children() []Plan
	Execute(ctx context.Context) ([]arrow.Record, error)
}

// Leaf is implemented by operators whose data is attached after decoding.
type Leaf interface {
	Plan
	SetPartitions(partitions [][]arrow.Record) error
	Partitions() [][]arrow.Record
}

type decodeFunc func(raw []byte) (Plan, error)

var decoders = map[string]decodeFunc{}

func register(kind string, decode decodeFunc) {
	decoders[kind] = decode
}

type header struct {
	Kind string `json:"execution_plan"`
}

// Marshal encodes p to its canonical JSON form.
func Marshal(p Plan) ([]byte, error) {
	if p == nil {
		return nil, errors.WithMessage(ErrInvalidPlan, "nil plan")
	}
	return json.Marshal(p)
}

// Unmarshal decodes a plan produced by Marshal.
func Unmarshal(b []byte) (Plan, error) {
	h := header{}
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, errors.Wrap(ErrInvalidPlan, err.Error())
	}
	decode, ok := decoders[h.Kind]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownPlan, "%q", h.Kind)
	}
	return decode(b)
}

// String is the canonical textual form of p.
func String(p Plan) string {
	b, err := Marshal(p)
	if err != nil {
		return fmt.Sprintf("<%s>", err)
	}
	return string(b)
}

// Collect executes p and returns all output batches.
func Collect(ctx context.Context, p Plan) ([]arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Execute(ctx)
}

// Walk visits p and its descendants breadth first until visit returns false.
func Walk(p Plan, visit func(Plan) bool) {
	queue := []Plan{p}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if !visit(next) {
			return
		}
		queue = append(queue, next.Children()...)
	}
}

// Leaves returns the operators without children, breadth first.
func Leaves(p Plan) []Plan {
	var leaves []Plan
	Walk(p, func(n Plan) bool {
		if len(n.Children()) == 0 {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

func decodeChild(raw json.RawMessage, name string) (Plan, error) {
	if len(raw) == 0 {
		return nil, errors.WithMessagef(ErrInvalidPlan, "missing %s", name)
	}
	return Unmarshal(raw)
}

func executeChild(ctx context.Context, p Plan) ([]arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Execute(ctx)
}
