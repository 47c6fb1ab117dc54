package function

import (
	"context"
	"sync"
	"testing"

	"cirrus/cirrus"
	"cirrus/lib/invoke"
	"cirrus/lib/log"
	"cirrus/pkg/arena"
	"cirrus/pkg/encoding"
	"cirrus/pkg/execution"
	"cirrus/pkg/payload"
	"cirrus/pkg/plan"
	"cirrus/pkg/testutils"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bidSchema = testutils.Schema(
		"auction", arrow.PrimitiveTypes.Int64,
		"price", arrow.PrimitiveTypes.Float64,
	)
	auctionSchema = testutils.Schema(
		"id", arrow.PrimitiveTypes.Int64,
		"seller", arrow.BinaryTypes.String,
	)
)

func environment(t *testing.T, p plan.Plan, name string, next execution.CloudFunction) string {
	s, err := (&execution.ExecutionContext{Plan: p, Name: name, Next: next}).Marshal(encoding.Snappy)
	require.NoError(t, err)
	return s
}

func filterPlan(t *testing.T) plan.Plan {
	m, err := plan.NewMemoryExec(bidSchema, nil)
	require.NoError(t, err)
	f, err := plan.NewFilterExec(m, plan.Predicate{Column: 1, Op: plan.Ge, Value: 10})
	require.NoError(t, err)
	return f
}

func sumPlan(t *testing.T) plan.Plan {
	m, err := plan.NewMemoryExec(bidSchema, nil)
	require.NoError(t, err)
	a, err := plan.NewHashAggregateExec(m, 0, []plan.Aggregate{{Func: plan.Sum, Column: 1}, {Func: plan.Count, Column: 1}})
	require.NoError(t, err)
	return a
}

func bids(t *testing.T, b *payload.UuidBuilder, seq int, auctions []int64, prices []float64) *payload.Payload {
	p, err := payload.New([]arrow.Record{testutils.Record(bidSchema, auctions, prices)}, nil, b.Get(seq), encoding.Lz4)
	require.NoError(t, err)
	return p
}

type collector struct {
	mu      sync.Mutex
	outputs []*cirrus.Output
}

func (c *collector) emit(out *cirrus.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = append(c.outputs, out)
}

func TestTerminalStage(t *testing.T) {
	sink := &collector{}
	h, err := New(Config{Name: "sum-terminal", Environment: environment(t, sumPlan(t), "sum-terminal", execution.CloudFunction{}), Emit: sink.emit})
	require.NoError(t, err)

	b := payload.NewUuidBuilder("q-terminal", 2, 3)
	ctx := context.Background()
	r, err := h.Handle(ctx, bids(t, b, 2, []int64{1, 2}, []float64{5, 10}))
	require.NoError(t, err)
	assert.Equal(t, arena.NotReady, r.Status)
	r, err = h.Handle(ctx, bids(t, b, 2, []int64{1, 2}, []float64{5, 10}))
	require.NoError(t, err)
	assert.Equal(t, arena.Processed, r.Status)
	r, err = h.Handle(ctx, bids(t, b, 3, []int64{2}, []float64{1}))
	require.NoError(t, err)
	assert.Equal(t, arena.NotReady, r.Status)
	r, err = h.Handle(ctx, bids(t, b, 1, []int64{1}, []float64{2.5}))
	require.NoError(t, err)
	assert.Equal(t, arena.Ready, r.Status)
	assert.Empty(t, r.Target)
	assert.Equal(t, [][]string{{"1", "7.5", "2"}, {"2", "11", "2"}}, testutils.Rows(r.Batches))

	require.Len(t, sink.outputs, 1)
	assert.Equal(t, "sum-terminal", sink.outputs[0].Function)
	assert.Equal(t, payload.WindowID{QueryID: "q-terminal", ShuffleID: 2}, sink.outputs[0].Window)
	assert.Equal(t, 0, h.Arena().Len())

	assert.Equal(t, float64(1), testutil.ToFloat64(fragmentsCollected.WithLabelValues("sum-terminal", "ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(fragmentsCollected.WithLabelValues("sum-terminal", "processed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(fragmentsCollected.WithLabelValues("sum-terminal", "not_ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(windowsExecuted.WithLabelValues("sum-terminal")))
}

func TestChorusPipeline(t *testing.T) {
	invoker, err := invoke.NewLocalInvoker(8, log.Named("invoke"))
	require.NoError(t, err)
	defer invoker.Close()
	sink := &collector{}

	filter, err := New(Config{
		Name:        "filter",
		Environment: environment(t, filterPlan(t), "filter", execution.Chorus("sum", 2)),
		Invoker:     invoker,
		Selector:    &invoke.RoundRobinSelector{},
		Encoding:    encoding.Zstd,
	})
	require.NoError(t, err)
	invoker.Register(filter.Name(), filter.Invoke)
	for _, name := range execution.Chorus("sum", 2).Targets() {
		h, err := New(Config{Name: name, Environment: environment(t, sumPlan(t), name, execution.CloudFunction{}), Emit: sink.emit})
		require.NoError(t, err)
		invoker.Register(name, h.Invoke)
	}

	for shuffle := 0; shuffle < 4; shuffle++ {
		b := payload.NewUuidBuilder("q-chorus", shuffle, 2)
		require.NoError(t, invoker.Invoke(context.Background(), "filter", bids(t, b, 1, []int64{1, 2}, []float64{30, 5})))
		require.NoError(t, invoker.Invoke(context.Background(), "filter", bids(t, b, 2, []int64{1, 2}, []float64{12, 20})))
	}
	invoker.Wait()

	require.Len(t, sink.outputs, 4)
	perFunction := map[string]int{}
	shuffles := map[int]bool{}
	for _, out := range sink.outputs {
		perFunction[out.Function]++
		shuffles[out.Window.ShuffleID] = true
		assert.Equal(t, "q-chorus", out.Window.QueryID)
		assert.Equal(t, [][]string{{"1", "42", "2"}, {"2", "20", "1"}}, testutils.Rows(out.Batches))
	}
	assert.Equal(t, map[string]int{"sum-0": 2, "sum-1": 2}, perFunction)
	assert.Len(t, shuffles, 4)
}

func TestJoinWindow(t *testing.T) {
	left, err := plan.NewMemoryExec(auctionSchema, nil)
	require.NoError(t, err)
	right, err := plan.NewMemoryExec(bidSchema, nil)
	require.NoError(t, err)
	join, err := plan.NewHashJoinExec(left, right, plan.JoinOn{Left: 0, Right: 0})
	require.NoError(t, err)

	h, err := New(Config{Name: "join", Environment: environment(t, join, "join", execution.CloudFunction{})})
	require.NoError(t, err)

	b := payload.NewUuidBuilder("q-join", 0, 2)
	p1, err := payload.New(
		[]arrow.Record{testutils.Record(bidSchema, []int64{7, 8}, []float64{1, 2})},
		[]arrow.Record{testutils.Record(auctionSchema, []int64{7}, []string{"ann"})},
		b.Get(1), encoding.None)
	require.NoError(t, err)
	p2, err := payload.New(
		[]arrow.Record{testutils.Record(bidSchema, []int64{8}, []float64{3})},
		[]arrow.Record{testutils.Record(auctionSchema, []int64{8}, []string{"bob"})},
		b.Get(2), encoding.None)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), p1)
	require.NoError(t, err)
	r, err := h.Handle(context.Background(), p2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"7", "ann", "7", "1"},
		{"8", "bob", "8", "2"},
		{"8", "bob", "8", "3"},
	}, testutils.Rows(r.Batches))
}

type failingInvoker struct{}

func (failingInvoker) Invoke(context.Context, string, *payload.Payload) error {
	return errors.New("unreachable")
}

func (failingInvoker) Close() error { return nil }

func TestFailures(t *testing.T) {
	_, err := New(Config{Name: "bad", Environment: "{}"})
	assert.Error(t, err)
	_, err = New(Config{Name: "solo", Environment: environment(t, filterPlan(t), "solo", execution.Solo("next"))})
	assert.Error(t, err)

	h, err := New(Config{Name: "route-fail", Environment: environment(t, filterPlan(t), "route-fail", execution.Solo("next")), Invoker: failingInvoker{}})
	require.NoError(t, err)
	b := payload.NewUuidBuilder("q-fail", 0, 1)
	r, err := h.Handle(context.Background(), bids(t, b, 1, []int64{1}, []float64{50}))
	assert.Error(t, err)
	assert.Equal(t, arena.Ready, r.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(failures.WithLabelValues("route-fail", stageRoute)))

	other := payload.NewUuidBuilder("q-fail", 0, 2)
	_, err = h.Handle(context.Background(), bids(t, other, 1, []int64{1}, []float64{50}))
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), bids(t, payload.NewUuidBuilder("q-fail", 0, 3), 1, []int64{1}, []float64{50}))
	assert.True(t, errors.Is(err, arena.ErrProtocolMismatch))
	assert.Equal(t, float64(1), testutil.ToFloat64(failures.WithLabelValues("route-fail", stageCollect)))
}
