package log

import (
	"sync"

	"cirrus/cirrus"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type OutputEncoder string

const (
	ConsoleOutputEncoder OutputEncoder = "console"
	JsonOutputEncoder    OutputEncoder = "json"
)

type Options struct {
	level       zapcore.Level
	encoder     OutputEncoder
	outputPaths []string
}

func DefaultOptions() *Options {
	return &Options{level: zapcore.InfoLevel, encoder: JsonOutputEncoder, outputPaths: []string{"stderr"}}
}

func (o *Options) WithOutputEncoder(encoder OutputEncoder) *Options {
	o.encoder = encoder
	return o
}

func (o *Options) WithOutputPaths(paths ...string) *Options {
	o.outputPaths = paths
	return o
}

// WithLevel parses debug, info, warn or error. Unknown levels keep the current one.
func (o *Options) WithLevel(level string) *Options {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err == nil {
		o.level = l
	}
	return o
}

var (
	mu   sync.RWMutex
	root = zap.NewNop().Sugar()
)

// Setup replaces the root logger.
func Setup(opts *Options) error {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(opts.level)
	config.Encoding = string(opts.encoder)
	config.OutputPaths = opts.outputPaths
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.encoder == ConsoleOutputEncoder {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := config.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	root = logger.Sugar()
	return nil
}

// Ctx returns a logger named after ctx.
func Ctx(ctx cirrus.Context) cirrus.Logger {
	return Named(ctx.Name())
}

func Named(name string) cirrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if name == "" {
		return root
	}
	return root.Named(name)
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
