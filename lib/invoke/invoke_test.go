package invoke

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cirrus/lib/log"
	"cirrus/pkg/encoding"
	"cirrus/pkg/execution"
	"cirrus/pkg/payload"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragment(t *testing.T, qid string, shuffleID int) *payload.Payload {
	p, err := payload.New(nil, nil, payload.NewUuidBuilder(qid, shuffleID, 1).Get(1), encoding.None)
	require.NoError(t, err)
	return p
}

func TestResolve(t *testing.T) {
	p := fragment(t, "q", 3)

	_, ok, err := Resolve(execution.CloudFunction{}, p, HashSelector{})
	require.NoError(t, err)
	assert.False(t, ok)

	target, ok, err := Resolve(execution.Solo("agg"), p, HashSelector{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "agg", target)

	target, ok, err = Resolve(execution.Chorus("agg", 4), p, HashSelector{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, execution.Chorus("agg", 4).Targets(), target)

	_, _, err = Resolve(execution.CloudFunction{Kind: execution.ChorusKind, Name: "agg"}, p, HashSelector{})
	assert.True(t, errors.Is(err, execution.ErrInvalidCloudFunction))

	sel, err := NewScriptSelector("index = size")
	require.NoError(t, err)
	_, _, err = Resolve(execution.Chorus("agg", 4), p, sel)
	assert.True(t, errors.Is(err, ErrSelectorIndex))
}

func TestHashSelectorIsStable(t *testing.T) {
	a, _ := HashSelector{}.Select(fragment(t, "q-1", 0), 16)
	b, _ := HashSelector{}.Select(fragment(t, "q-1", 0), 16)
	assert.Equal(t, a, b)

	seen := map[int]bool{}
	for shuffle := 0; shuffle < 64; shuffle++ {
		i, err := HashSelector{}.Select(fragment(t, "q-1", shuffle), 4)
		require.NoError(t, err)
		seen[i] = true
	}
	assert.Len(t, seen, 4)
}

func TestRoundRobinSelector(t *testing.T) {
	r := &RoundRobinSelector{}
	var got []int
	for i := 0; i < 5; i++ {
		n, err := r.Select(nil, 3)
		require.NoError(t, err)
		got = append(got, n)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, got)
}

func TestRandomSelector(t *testing.T) {
	r := NewRandomSelector(7)
	for i := 0; i < 100; i++ {
		n, err := r.Select(nil, 5)
		require.NoError(t, err)
		assert.True(t, n >= 0 && n < 5)
	}
}

func TestScriptSelector(t *testing.T) {
	sel, err := NewSelector(ScriptSelectorName, `
text := import("text")
index = shuffle_id % size
if text.has_prefix(query_id, "hot") { index = 0 }
`)
	require.NoError(t, err)
	n, err := sel.Select(fragment(t, "cold", 7), 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = sel.Select(fragment(t, "hot-1", 7), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = NewSelector(ScriptSelectorName, "index = ")
	assert.Error(t, err)
	_, err = NewSelector("sticky", "")
	assert.True(t, errors.Is(err, ErrUnknownSelector))
}

func TestLocalInvoker(t *testing.T) {
	l, err := NewLocalInvoker(4, log.Named("invoke"))
	require.NoError(t, err)
	defer l.Close()

	var (
		mu  sync.Mutex
		got []string
		n   int32
	)
	l.Register("agg-0", func(ctx context.Context, p *payload.Payload) error {
		mu.Lock()
		got = append(got, p.UUID.Tid)
		mu.Unlock()
		atomic.AddInt32(&n, 1)
		return nil
	})
	l.Register("broken", func(ctx context.Context, p *payload.Payload) error {
		atomic.AddInt32(&n, 1)
		return errors.New("boom")
	})
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Invoke(context.Background(), "agg-0", fragment(t, "q", i)))
	}
	require.NoError(t, l.Invoke(context.Background(), "broken", fragment(t, "q", 0)))
	err = l.Invoke(context.Background(), "agg-9", fragment(t, "q", 0))
	assert.True(t, errors.Is(err, ErrUnknownFunction))

	l.Wait()
	assert.Equal(t, int32(11), atomic.LoadInt32(&n))
	assert.Len(t, got, 10)
	assert.ElementsMatch(t, []string{"agg-0", "broken"}, l.Functions())
}

func TestLocalInvokerNestedStages(t *testing.T) {
	l, err := NewLocalInvoker(1, log.Named("invoke"))
	require.NoError(t, err)
	defer l.Close()

	var finished int32
	l.Register("c", func(ctx context.Context, p *payload.Payload) error {
		atomic.AddInt32(&finished, 1)
		return nil
	})
	l.Register("b", func(ctx context.Context, p *payload.Payload) error {
		return l.Invoke(ctx, "c", p)
	})
	l.Register("a", func(ctx context.Context, p *payload.Payload) error {
		return l.Invoke(ctx, "b", p)
	})
	for i := 0; i < 8; i++ {
		require.NoError(t, l.Invoke(context.Background(), "a", fragment(t, "q", i)))
	}

	waited := make(chan struct{})
	go func() {
		l.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("nested invocations did not finish")
	}
	assert.EqualValues(t, 8, atomic.LoadInt32(&finished))
}

func TestLocalInvokerSubmit(t *testing.T) {
	l, err := NewLocalInvoker(2, log.Named("invoke"))
	require.NoError(t, err)
	defer l.Close()
	l.Register("ok", func(ctx context.Context, p *payload.Payload) error { return nil })
	l.Register("broken", func(ctx context.Context, p *payload.Payload) error { return errors.New("boom") })

	results := make(chan error, 2)
	done := func(err error) { results <- err }
	require.NoError(t, l.Submit(context.Background(), "ok", fragment(t, "q", 0), done))
	require.NoError(t, l.Submit(context.Background(), "broken", fragment(t, "q", 0), done))
	l.Wait()
	close(results)
	var failed int
	for err := range results {
		if err != nil {
			failed++
			assert.EqualError(t, err, "boom")
		}
	}
	assert.Equal(t, 1, failed)

	err = l.Submit(context.Background(), "missing", fragment(t, "q", 0), func(error) { t.Error("done called for unknown function") })
	assert.True(t, errors.Is(err, ErrUnknownFunction))
}

func TestKafkaInvoker(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := fragment(t, "q-7", 2)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		got, err := payload.Unmarshal(val)
		if err != nil {
			return err
		}
		if got.UUID != p.UUID {
			return errors.Errorf("unexpected fragment %s", got.UUID)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafkaInvokerWithProducer(producer)
	require.NoError(t, k.Invoke(context.Background(), "agg-1", p))
	err := k.Invoke(context.Background(), "agg-1", p)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, k.Invoke(ctx, "agg-1", p))
	require.NoError(t, k.Close())
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "agg-1", Topic("agg-1"))
	assert.Equal(t, "AbCdEf0123456789-01-2026-10-19T08_30_00.5Z", Topic("AbCdEf0123456789-01-2026-10-19T08:30:00.5Z"))
	assert.Equal(t, "a_b_c", Topic("a/b c"))
}
