package runtime

import (
	_c "context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/context"
	"cirrus/lib/emit"
	"cirrus/lib/function"
	"cirrus/lib/invoke"
	"cirrus/lib/log"
	"cirrus/lib/properties"
	"cirrus/lib/runtime/task"
	"cirrus/pkg/constant"
	"cirrus/pkg/encoding"
	"cirrus/pkg/payload"

	"github.com/pkg/errors"
	"gopkg.in/tomb.v2"
)

const (
	SourcePrefix   = "source"
	FunctionPrefix = "function"
	SinkPrefix     = "sink"
)

var (
	propertiesDef = cirrus.PropertiesDef{
		constant.RuntimeLogLevelProperty, constant.RuntimeLogFormatProperty, constant.RuntimePoolSizeProperty,
		constant.RuntimeInvokerProperty, constant.RuntimeBrokersProperty, constant.RuntimeSelectorProperty,
		constant.RuntimeScriptProperty, constant.RuntimeEncodingProperty, constant.RuntimeMetricsProperty,
	}
	sourceDef   = cirrus.PropertiesDef{constant.TypeProperty, constant.TargetProperty}
	sinkDef     = cirrus.PropertiesDef{constant.TypeProperty}
	functionDef = cirrus.PropertiesDef{constant.ContextProperty, constant.OutputsProperty}

	ErrUnknownComponent = errors.New("unknown component type")
)

// Runtime hosts functions in process. Sources feed their target function
// through the local invoker and functions route their output through the
// configured invoker. Terminal functions emit to every sink.
//
// A function is registered under the name of its execution context, the
// configuration key only labels it: viper lowercases keys and splits them on
// dots, function names contain both.
type Runtime struct {
	ctx     cirrus.Context
	logger  cirrus.Logger
	runtime cirrus.Properties
	life    *tomb.Tomb

	local    *invoke.LocalInvoker
	router   invoke.Invoker
	selector invoke.Selector

	sourceTasks   map[cirrus.Context]*task.SourceTask
	functionTasks map[cirrus.Context]*task.FunctionTask
	sinkTasks     map[cirrus.Context]*task.SinkTask
}

func (e *Runtime) initInvokers() (err error) {
	e.local, err = invoke.NewLocalInvoker(e.runtime.GetInt(constant.RuntimePoolSizeProperty), log.Named("invoke"))
	if err != nil {
		return err
	}
	e.selector, err = invoke.NewSelector(e.runtime.GetString(constant.RuntimeSelectorProperty), e.runtime.GetString(constant.RuntimeScriptProperty))
	if err != nil {
		return err
	}
	switch name := e.runtime.GetString(constant.RuntimeInvokerProperty); name {
	case invoke.LocalInvokerName:
		e.router = e.local
	case invoke.KafkaInvokerName:
		e.router, err = invoke.NewKafkaInvoker(e.runtime.GetStringSlice(constant.RuntimeBrokersProperty), nil)
		return err
	default:
		return errors.WithMessagef(invoke.ErrUnknownInvoker, "%q", name)
	}
	return nil
}

func (e *Runtime) initSinks() error {
	sinkNames := e.ctx.Properties().PrefixKeys(SinkPrefix)
	for _, name := range sinkNames {
		sinkName := SinkPrefix + "." + name
		sinkCtx := e.ctx.Named(sinkName)
		if sinkCtx.Properties() == nil {
			return errors.Errorf("sink %s properties can't be nil", sinkName)
		}
		if _, err := properties.InitAndRender(sinkCtx.Properties(), sinkDef); err != nil {
			return errors.WithMessagef(err, "failed to init sink %s", sinkName)
		}
		_type := sinkCtx.Properties().GetString(constant.TypeProperty)
		newSink := component.NewSinkFunc(_type)
		if newSink == nil {
			return errors.WithMessagef(ErrUnknownComponent, "sink %s: %q", sinkName, _type)
		}
		sink := newSink()
		renderText, err := properties.InitAndRender(sinkCtx.Properties(), sink.PropertiesDef())
		if err != nil {
			return errors.WithMessagef(err, "failed to init sink %s properties", sinkName)
		}
		e.logger.Infof("init %s:\n%s", sinkName, renderText)
		if err := sink.Open(sinkCtx); err != nil {
			return errors.WithMessagef(err, "failed to open sink %s", sinkName)
		}
		e.sinkTasks[sinkCtx] = &task.SinkTask{Sink: sink, Ctx: sinkCtx}
	}
	return nil
}

func (e *Runtime) initFunctions() error {
	functionNames := e.ctx.Properties().PrefixKeys(FunctionPrefix)
	if len(functionNames) == 0 {
		return errors.New("function has to have at least one")
	}
	enc := encoding.Encoding(e.runtime.GetString(constant.RuntimeEncodingProperty))
	for _, name := range functionNames {
		functionName := FunctionPrefix + "." + name
		functionCtx := e.ctx.Named(functionName)
		if functionCtx.Properties() == nil {
			return errors.Errorf("function %s properties can't be nil", functionName)
		}
		if _, err := properties.InitAndRender(functionCtx.Properties(), functionDef); err != nil {
			return errors.WithMessagef(err, "failed to init function %s properties", functionName)
		}
		sinks := map[string]cirrus.Emit{}
		for sinkCtx, sinkTask := range e.sinkTasks {
			sinks[sinkCtx.Name()] = sinkTask.GenerateEmit(functionCtx)
		}
		emits, err := emit.Select(sinks, functionCtx.Properties().GetStringSlice(constant.OutputsProperty))
		if err != nil {
			return errors.WithMessagef(err, "failed to select outputs of %s", functionName)
		}
		handler, err := function.New(function.Config{
			Environment: functionCtx.Properties().GetString(constant.ContextProperty),
			Invoker:     e.router,
			Selector:    e.selector,
			Emit:        emit.Replicating(emits...),
			Encoding:    enc,
			Logger:      log.Ctx(functionCtx),
		})
		if err != nil {
			return errors.WithMessagef(err, "failed to init %s", functionName)
		}
		e.logger.Infow("init function.", "key", functionName, "function", handler.Name(), "next", handler.Next().String())
		e.local.Register(handler.Name(), handler.Invoke)
		e.functionTasks[functionCtx] = &task.FunctionTask{Handler: handler, Ctx: functionCtx}
	}
	return nil
}

func (e *Runtime) initSources() error {
	sourceNames := e.ctx.Properties().PrefixKeys(SourcePrefix)
	if len(sourceNames) == 0 {
		return errors.New("source has to have at least one")
	}
	for _, name := range sourceNames {
		sourceName := SourcePrefix + "." + name
		sourceCtx := e.ctx.Named(sourceName)
		if sourceCtx.Properties() == nil {
			return errors.Errorf("source %s properties can't be nil", sourceName)
		}
		if _, err := properties.InitAndRender(sourceCtx.Properties(), sourceDef); err != nil {
			return errors.WithMessagef(err, "failed to init source %s", sourceName)
		}
		_type := sourceCtx.Properties().GetString(constant.TypeProperty)
		newSource := component.NewSourceFunc(_type)
		if newSource == nil {
			return errors.WithMessagef(ErrUnknownComponent, "source %s: %q", sourceName, _type)
		}
		source := newSource()
		renderText, err := properties.InitAndRender(sourceCtx.Properties(), source.PropertiesDef())
		if err != nil {
			return errors.WithMessagef(err, "failed to init source %s properties", sourceName)
		}
		e.logger.Infof("init %s:\n%s", sourceName, renderText)
		target := sourceCtx.Properties().GetString(constant.TargetProperty)
		logger := log.Ctx(sourceCtx)
		e.sourceTasks[sourceCtx] = &task.SourceTask{
			Source: source,
			Ctx:    sourceCtx,
			Name:   sourceName,
			Target: target,
			EmitNext: func(p *payload.Payload, handler cirrus.ACKHandler) {
				// ack once the target handled the fragment, a failed fragment stays
				// unacked for the source to redeliver
				err := e.local.Submit(sourceCtx.Ctx(), target, p, func(err error) {
					if err == nil && handler != nil {
						handler()
					}
				})
				if err != nil {
					logger.Errorw("failed to invoke target.", "target", target, "fragment", p.UUID.String(), "err", err)
				}
			},
		}
	}
	return nil
}

func (e *Runtime) init() error {
	if err := e.initInvokers(); err != nil {
		return errors.WithMessage(err, "can't init invokers")
	}
	if err := e.initSinks(); err != nil {
		return err
	}
	if err := e.initFunctions(); err != nil {
		return err
	}
	return e.initSources()
}

// Run blocks until a signal arrives, the context is canceled or any task stops.
func (e *Runtime) Run() error {
	//notify system signal
	e.life.Go(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer signal.Stop(c)
		select {
		case s := <-c:
			e.logger.Infof("notify system signal %s, done.", s)
			e.ctx.Cancel()
		case <-e.ctx.Done():
			e.logger.Warn("context done.")
		}
		return nil
	})

	if err := e.init(); err != nil {
		e.ctx.Cancel()
		e.close()
		_ = e.life.Wait()
		return err
	}
	e.serveMetrics()
	e.runAll()
	<-e.life.Dead()
	e.close()
	if err := e.life.Err(); !errors.Is(err, _c.Canceled) {
		return err
	}
	return nil
}

func (e *Runtime) serveMetrics() {
	addr := e.runtime.GetString(constant.RuntimeMetricsProperty)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", function.MetricsHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	e.life.Go(func() error {
		<-e.ctx.Done()
		return server.Close()
	})
	e.life.Go(func() error {
		e.logger.Infow("serving metrics.", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Errorw("metrics server failed.", "err", err)
		}
		return nil
	})
}

func (e *Runtime) close() {
	if e.local != nil {
		_ = e.local.Close()
	}
	if e.router != nil && e.router != invoke.Invoker(e.local) {
		if err := e.router.Close(); err != nil {
			e.logger.Warnw("close invoker failed.", "err", err)
		}
	}
	log.Sync()
}

func (e *Runtime) runAll() {
	//starting
	for ctx, sinkTask := range e.sinkTasks {
		_task := sinkTask
		_ctx := ctx
		e.life.Go(func() error {
			e.logger.Infow("starting run sink task.", "task", _ctx.Name())
			var err error
			if err = _task.Run(); err != nil {
				e.logger.Errorw("failed run sink task.", "task", _ctx.Name(), "err", err)
			} else {
				e.logger.Infow("sink task is complete.", "task", _ctx.Name())
			}
			e.ctx.Cancel()
			return err
		})
	}

	for ctx, functionTask := range e.functionTasks {
		_task := functionTask
		_ctx := ctx
		e.life.Go(func() error {
			e.logger.Infow("starting run function task.", "task", _ctx.Name())
			err := _task.Run()
			e.logger.Infow("function task is complete.", "task", _ctx.Name())
			e.ctx.Cancel()
			return err
		})
	}

	for _, sourceTask := range e.sourceTasks {
		_task := sourceTask
		e.life.Go(func() error {
			e.logger.Infow("starting run source task.", "task", _task.Name, "target", _task.Target)
			var err error
			if err = _task.Run(); err != nil {
				e.logger.Errorw("failed run source task.", "task", _task.Name, "err", err)
			} else {
				e.logger.Infow("source task is complete.", "task", _task.Name)
			}
			e.ctx.Cancel()
			return err
		})
	}
}

// New reads the runtime configuration file and sets up logging.
func New(originCtx _c.Context, propertiesName string, propertiesType string, propertiesPath ...string) (*Runtime, error) {
	ps, err := properties.New(propertiesName, propertiesType, propertiesPath...)
	if err != nil {
		return nil, err
	}
	return NewWithProperties(originCtx, ps)
}

func NewWithProperties(originCtx _c.Context, ps cirrus.Properties) (*Runtime, error) {
	initAndRender, err := properties.InitAndRender(ps.Global(), propertiesDef)
	if err != nil {
		return nil, errors.WithMessage(err, "can't init runtime properties")
	}
	global := ps.Global()
	opts := log.DefaultOptions().
		WithLevel(global.GetString(constant.RuntimeLogLevelProperty)).
		WithOutputEncoder(log.OutputEncoder(global.GetString(constant.RuntimeLogFormatProperty)))
	if err := log.Setup(opts); err != nil {
		return nil, errors.WithMessage(err, "can't setup logger")
	}
	ctx := context.New(originCtx, ps)
	logger := log.Ctx(ctx)
	logger.Infof("global:\n%s", initAndRender)

	life, _ := tomb.WithContext(ctx.Ctx())
	return &Runtime{
		ctx:           ctx,
		logger:        logger,
		runtime:       global,
		life:          life,
		sourceTasks:   map[cirrus.Context]*task.SourceTask{},
		functionTasks: map[cirrus.Context]*task.FunctionTask{},
		sinkTasks:     map[cirrus.Context]*task.SinkTask{},
	}, nil
}

// Functions lists the hosted function names.
func (e *Runtime) Functions() []string {
	if e.local == nil {
		return nil
	}
	return e.local.Functions()
}
