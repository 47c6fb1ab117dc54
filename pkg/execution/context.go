// Package execution carries a physical plan across function invocations.
//
// An ExecutionContext is marshaled into a CloudEnvironment envelope, shipped to
// the next function, unmarshaled there, re-hydrated with the window's record
// batches and executed. The context must be the only holder of its plan tree
// between Unmarshal and Execute; Execute freezes it and later feeds fail.
package execution

import (
	"bytes"
	"context"
	"encoding/json"

	"cirrus/pkg/datasource"
	"cirrus/pkg/encoding"
	"cirrus/pkg/plan"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

var (
	ErrMalformedEnvelope = errors.New("malformed cloud environment")
	ErrPlanExecution     = errors.New("plan execution failed")
	ErrPlanFrozen        = errors.New("plan is frozen")
	ErrLeafNotFeedable   = errors.New("leaf is not feedable")
	ErrAmbiguousSources  = errors.New("both sources share a schema")
)

// CloudEnvironment is the transport envelope of a marshaled context.
type CloudEnvironment struct {
	Context  []byte            `json:"context"`
	Encoding encoding.Encoding `json:"encoding"`
}

type ExecutionContext struct {
	Plan       plan.Plan
	Name       string
	Next       CloudFunction
	DataSource datasource.DataSource

	frozen bool
}

type contextJSON struct {
	Plan       json.RawMessage       `json:"plan"`
	Name       string                `json:"name"`
	Next       CloudFunction         `json:"next"`
	DataSource datasource.DataSource `json:"datasource"`
}

func (c *ExecutionContext) MarshalJSON() ([]byte, error) {
	p, err := plan.Marshal(c.Plan)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contextJSON{Plan: p, Name: c.Name, Next: c.Next, DataSource: c.DataSource})
}

func (c *ExecutionContext) UnmarshalJSON(b []byte) error {
	v := contextJSON{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	p, err := plan.Unmarshal(v.Plan)
	if err != nil {
		return err
	}
	*c = ExecutionContext{Plan: p, Name: v.Name, Next: v.Next, DataSource: v.DataSource}
	return nil
}

// Equal compares name, routing and data source, and plans by canonical text.
func (c *ExecutionContext) Equal(o *ExecutionContext) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Name != o.Name || c.Next != o.Next || !c.DataSource.Equal(o.DataSource) {
		return false
	}
	a, errA := plan.Marshal(c.Plan)
	b, errB := plan.Marshal(o.Plan)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Marshal encodes c into a CloudEnvironment string compressed with enc.
func (c *ExecutionContext) Marshal(enc encoding.Encoding) (string, error) {
	if err := enc.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrapf(err, "failed to marshal context %s", c.Name)
	}
	encoded, err := enc.Encode(raw)
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(CloudEnvironment{Context: encoded, Encoding: enc})
	if err != nil {
		return "", errors.Wrapf(err, "failed to marshal context %s", c.Name)
	}
	return string(env), nil
}

// Unmarshal decodes a string produced by Marshal.
func Unmarshal(s string) (*ExecutionContext, error) {
	env := CloudEnvironment{}
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}
	if err := env.Encoding.Validate(); err != nil {
		return nil, err
	}
	raw, err := env.Encoding.Decode(env.Context)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}
	c := &ExecutionContext{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}
	return c, nil
}

func (c *ExecutionContext) feedable(p plan.Plan) (plan.Leaf, error) {
	if c.frozen {
		return nil, errors.WithMessagef(ErrPlanFrozen, "context %s", c.Name)
	}
	leaf, ok := p.(plan.Leaf)
	if !ok {
		return nil, errors.WithMessagef(ErrLeafNotFeedable, "%s", p.Kind())
	}
	return leaf, nil
}

// FeedOneSource attaches partitions to the first leaf in breadth first order.
func (c *ExecutionContext) FeedOneSource(partitions [][]arrow.Record) error {
	if c.frozen {
		return errors.WithMessagef(ErrPlanFrozen, "context %s", c.Name)
	}
	leaves := plan.Leaves(c.Plan)
	if len(leaves) == 0 {
		return errors.WithMessagef(ErrLeafNotFeedable, "context %s has no leaf", c.Name)
	}
	leaf, err := c.feedable(leaves[0])
	if err != nil {
		return err
	}
	return leaf.SetPartitions(partitions)
}

// FeedTwoSource attaches left or right to every leaf whose schema matches.
func (c *ExecutionContext) FeedTwoSource(left, right [][]arrow.Record) error {
	if c.frozen {
		return errors.WithMessagef(ErrPlanFrozen, "context %s", c.Name)
	}
	ls, rs := schemaOf(left), schemaOf(right)
	if ls != nil && rs != nil && ls.Equal(rs) {
		return errors.WithMessagef(ErrAmbiguousSources, "%s", ls)
	}
	fedLeft, fedRight := false, false
	for _, n := range plan.Leaves(c.Plan) {
		var input [][]arrow.Record
		switch {
		case ls != nil && n.Schema().Equal(ls):
			input, fedLeft = left, true
		case rs != nil && n.Schema().Equal(rs):
			input, fedRight = right, true
		default:
			continue
		}
		leaf, err := c.feedable(n)
		if err != nil {
			return err
		}
		if err := leaf.SetPartitions(input); err != nil {
			return err
		}
	}
	if ls != nil && !fedLeft {
		return errors.WithMessagef(ErrLeafNotFeedable, "no leaf of context %s matches left schema %s", c.Name, ls)
	}
	if rs != nil && !fedRight {
		return errors.WithMessagef(ErrLeafNotFeedable, "no leaf of context %s matches right schema %s", c.Name, rs)
	}
	return nil
}

func schemaOf(partitions [][]arrow.Record) *arrow.Schema {
	for _, partition := range partitions {
		if len(partition) > 0 {
			return partition[0].Schema()
		}
	}
	return nil
}

// Execute freezes c and runs its plan.
func (c *ExecutionContext) Execute(ctx context.Context) ([]arrow.Record, error) {
	c.frozen = true
	if c.Plan == nil {
		return nil, errors.WithMessagef(ErrPlanExecution, "context %s has no plan", c.Name)
	}
	out, err := plan.Collect(ctx, c.Plan)
	if err != nil {
		return nil, &planError{err: err, plan: plan.String(c.Plan)}
	}
	return out, nil
}

// planError is an ErrPlanExecution that keeps the engine error in its chain.
type planError struct {
	err  error
	plan string
}

func (e *planError) Error() string {
	return ErrPlanExecution.Error() + ": " + e.err.Error() + ", plan: " + e.plan
}

func (e *planError) Unwrap() error { return e.err }

func (e *planError) Is(target error) bool { return target == ErrPlanExecution }

// Frozen reports whether Execute has been called.
func (c *ExecutionContext) Frozen() bool {
	return c.frozen
}
