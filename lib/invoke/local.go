package invoke

import (
	"context"
	"sync"

	"cirrus/cirrus"
	"cirrus/lib/log"
	"cirrus/pkg/payload"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// HandleFunc runs one function invocation.
type HandleFunc func(ctx context.Context, p *payload.Payload) error

// DoneFunc receives the result of an invocation once its handler returned.
type DoneFunc func(err error)

type nestedKey struct{}

// LocalInvoker dispatches invocations to in-process functions on worker pools.
//
// Invocations submitted from outside block while the pool is full. Invocations
// submitted by a running function go to a second, non-blocking pool and run
// inline in the caller's worker when that pool is full too, so a function
// never waits for a worker held by its upstream.
type LocalInvoker struct {
	logger    cirrus.Logger
	pool      *ants.Pool
	nested    *ants.Pool
	mu        sync.RWMutex
	functions map[string]HandleFunc
	running   sync.WaitGroup
}

func NewLocalInvoker(size int, logger cirrus.Logger) (*LocalInvoker, error) {
	l := &LocalInvoker{logger: logger, functions: map[string]HandleFunc{}}
	panicHandler := ants.WithPanicHandler(func(reason interface{}) {
		if reason != nil {
			logger.Errorw("invocation panic.", "reason", reason)
		}
	})
	poolLogger := ants.WithLogger(&log.PoolLoggerWrapper{Logger: logger})
	pool, err := ants.NewPool(size, poolLogger, panicHandler)
	if err != nil {
		return nil, err
	}
	nested, err := ants.NewPool(size, poolLogger, panicHandler, ants.WithNonblocking(true))
	if err != nil {
		pool.Release()
		return nil, err
	}
	l.pool, l.nested = pool, nested
	return l, nil
}

func (l *LocalInvoker) Register(name string, fn HandleFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.functions[name] = fn
}

func (l *LocalInvoker) Functions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.functions))
	for name := range l.functions {
		names = append(names, name)
	}
	return names
}

// Invoke returns once the invocation is queued, handler errors are logged.
func (l *LocalInvoker) Invoke(ctx context.Context, target string, p *payload.Payload) error {
	return l.Submit(ctx, target, p, nil)
}

// Submit queues an invocation like Invoke and calls done with the handler's
// result. done is not called when Submit returns an error.
func (l *LocalInvoker) Submit(ctx context.Context, target string, p *payload.Payload, done DoneFunc) error {
	l.mu.RLock()
	fn, ok := l.functions[target]
	l.mu.RUnlock()
	if !ok {
		return errors.WithMessagef(ErrUnknownFunction, "%q", target)
	}
	id := uuid.NewString()
	task := func() {
		defer l.running.Done()
		err := fn(context.WithValue(ctx, nestedKey{}, id), p)
		if err != nil {
			l.logger.Errorw("invocation failed.", "function", target, "invocation", id, "fragment", p.UUID.String(), "err", err)
		} else {
			l.logger.Debugw("invocation done.", "function", target, "invocation", id, "fragment", p.UUID.String())
		}
		if done != nil {
			done(err)
		}
	}

	l.running.Add(1)
	if ctx.Value(nestedKey{}) == nil {
		if err := l.pool.Submit(task); err != nil {
			l.running.Done()
			return errors.WithMessagef(err, "can't submit invocation of %s", target)
		}
		return nil
	}
	switch err := l.nested.Submit(task); {
	case err == nil:
	case errors.Is(err, ants.ErrPoolOverload):
		l.logger.Debugw("nested pool full, invoke inline.", "function", target, "invocation", id)
		task()
	default:
		l.running.Done()
		return errors.WithMessagef(err, "can't submit invocation of %s", target)
	}
	return nil
}

// Wait blocks until every queued invocation returned, including those queued meanwhile.
func (l *LocalInvoker) Wait() {
	l.running.Wait()
}

func (l *LocalInvoker) Close() error {
	l.Wait()
	l.pool.Release()
	l.nested.Release()
	return nil
}
