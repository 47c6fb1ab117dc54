// Package function runs one stage of a query: it aggregates the fragments of
// each window and, once a window is complete, executes the stage's plan on
// it and hands the result to the next stage or to the sinks.
package function

import (
	"context"

	"cirrus/cirrus"
	"cirrus/lib/invoke"
	"cirrus/lib/log"
	"cirrus/pkg/arena"
	"cirrus/pkg/encoding"
	"cirrus/pkg/execution"
	"cirrus/pkg/payload"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

const (
	stageCollect = "collect"
	stageExecute = "execute"
	stageRoute   = "route"
)

type Config struct {
	// Name defaults to the name of the execution context.
	Name string
	// Environment is the marshaled execution context of the stage.
	Environment string
	Invoker     invoke.Invoker
	Selector    invoke.Selector
	// Emit receives the output of terminal stages.
	Emit     cirrus.Emit
	Encoding encoding.Encoding
	Logger   cirrus.Logger
}

type Handler struct {
	name        string
	environment string
	next        execution.CloudFunction
	arena       *arena.Arena
	invoker     invoke.Invoker
	selector    invoke.Selector
	emit        cirrus.Emit
	encoding    encoding.Encoding
	logger      cirrus.Logger
}

// Result describes what one invocation did.
type Result struct {
	Status arena.Status
	Window payload.WindowID
	// Batches is the plan output, only set when Status is Ready.
	Batches []arrow.Record
	// Target is the function the output was sent to, empty for terminal stages.
	Target string
}

func New(c Config) (*Handler, error) {
	ec, err := execution.Unmarshal(c.Environment)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid context of function %s", c.Name)
	}
	if c.Name == "" {
		c.Name = ec.Name
	}
	if c.Name == "" {
		return nil, errors.New("function name can't be empty")
	}
	if !ec.Next.IsNone() && c.Invoker == nil {
		return nil, errors.Errorf("function %s routes to %s but has no invoker", c.Name, ec.Next)
	}
	if c.Selector == nil {
		c.Selector = invoke.HashSelector{}
	}
	if c.Encoding == "" {
		c.Encoding = encoding.None
	}
	if err := c.Encoding.Validate(); err != nil {
		return nil, err
	}
	if c.Logger == nil {
		c.Logger = log.Named(c.Name)
	}
	return &Handler{
		name:        c.Name,
		environment: c.Environment,
		next:        ec.Next,
		arena:       arena.New(),
		invoker:     c.Invoker,
		selector:    c.Selector,
		emit:        c.Emit,
		encoding:    c.Encoding,
		logger:      c.Logger,
	}, nil
}

func (h *Handler) Name() string {
	return h.name
}

func (h *Handler) Next() execution.CloudFunction {
	return h.next
}

// Arena is exposed for inspection, Handle is the only writer.
func (h *Handler) Arena() *arena.Arena {
	return h.arena
}

// Invoke adapts Handle to invoke.HandleFunc.
func (h *Handler) Invoke(ctx context.Context, p *payload.Payload) error {
	_, err := h.Handle(ctx, p)
	return err
}

// Handle collects p and, when it completes its window, executes and routes the window.
func (h *Handler) Handle(ctx context.Context, p *payload.Payload) (Result, error) {
	id := p.WindowID()
	status, err := h.arena.Collect(p)
	if err != nil {
		failures.WithLabelValues(h.name, stageCollect).Inc()
		return Result{Status: status, Window: id}, errors.WithMessagef(err, "can't collect %s", p.UUID)
	}
	fragmentsCollected.WithLabelValues(h.name, status.String()).Inc()
	if status != arena.Ready {
		return Result{Status: status, Window: id}, nil
	}

	out, err := h.execute(ctx, id)
	if err != nil {
		failures.WithLabelValues(h.name, stageExecute).Inc()
		return Result{Status: status, Window: id}, err
	}
	windowsExecuted.WithLabelValues(h.name).Inc()

	target, err := h.route(ctx, id, out)
	if err != nil {
		failures.WithLabelValues(h.name, stageRoute).Inc()
		return Result{Status: status, Window: id, Batches: out}, err
	}
	h.logger.Debugw("window executed.", "window", id.String(), "target", target)
	return Result{Status: status, Window: id, Batches: out, Target: target}, nil
}

// execute runs the window on a freshly decoded context, so no plan tree is
// shared between windows.
func (h *Handler) execute(ctx context.Context, id payload.WindowID) ([]arrow.Record, error) {
	batches := h.arena.TakeBatches(id)
	ec, err := execution.Unmarshal(h.environment)
	if err != nil {
		return nil, err
	}
	if hasRecords(batches[1]) {
		err = ec.FeedTwoSource(batches[0], batches[1])
	} else {
		err = ec.FeedOneSource(batches[0])
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "can't feed window %s", id)
	}
	return ec.Execute(ctx)
}

func (h *Handler) route(ctx context.Context, id payload.WindowID, out []arrow.Record) (string, error) {
	if h.next.IsNone() {
		if h.emit != nil {
			h.emit(&cirrus.Output{Function: h.name, Window: id, Batches: out})
		}
		return "", nil
	}
	p, err := payload.New(out, nil, payload.Uuid{Tid: id.QueryID, SeqNum: 1, SeqLen: 1, ShuffleID: id.ShuffleID}, h.encoding)
	if err != nil {
		return "", errors.WithMessagef(err, "can't build output of window %s", id)
	}
	target, _, err := invoke.Resolve(h.next, p, h.selector)
	if err != nil {
		return "", err
	}
	if err := h.invoker.Invoke(ctx, target, p); err != nil {
		return "", errors.WithMessagef(err, "can't route window %s", id)
	}
	return target, nil
}

func hasRecords(groups [][]arrow.Record) bool {
	for _, group := range groups {
		if len(group) > 0 {
			return true
		}
	}
	return false
}
