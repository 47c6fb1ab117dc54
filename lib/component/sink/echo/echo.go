package echo

import (
	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/log"
	"cirrus/lib/properties"
	"cirrus/pkg/plan"

	"github.com/apache/arrow/go/v11/arrow"
)

var (
	MaxRowsProperty = properties.NewProperty[int]("max-rows", "echo at most max rows of each output, 0 means all", 20)
	TypeProperty    = properties.NewProperty[string]("echo", "echo type, like info debug", "info")
)

type sink struct {
	ctx      cirrus.Context
	logger   cirrus.Logger
	maxRows  int
	echoFunc func(format string, args ...interface{})
}

func (s *sink) GenerateEmit(upstreamCtx cirrus.Context) cirrus.Emit {
	return func(out *cirrus.Output) {
		if len(out.Batches) == 0 {
			s.echoFunc("%s window %s: empty", out.Function, out.Window)
			return
		}
		batches := out.Batches
		var rows int64
		for _, batch := range batches {
			rows += batch.NumRows()
		}
		if s.maxRows > 0 {
			batches = head(batches, int64(s.maxRows))
		}
		s.echoFunc("%s window %s, %d rows from %s:\n%s", out.Function, out.Window, rows, upstreamCtx.Name(),
			plan.FormatBatches(out.Batches[0].Schema(), batches))
	}
}

func head(batches []arrow.Record, n int64) []arrow.Record {
	var out []arrow.Record
	for _, batch := range batches {
		if n <= 0 {
			break
		}
		if batch.NumRows() > n {
			out = append(out, batch.NewSlice(0, n))
			break
		}
		out = append(out, batch)
		n -= batch.NumRows()
	}
	return out
}

func (s *sink) Open(ctx cirrus.Context) error {
	s.ctx = ctx
	s.logger = log.Ctx(s.ctx)
	s.maxRows = ctx.Properties().GetInt(MaxRowsProperty)
	echoType := ctx.Properties().GetString(TypeProperty)
	switch echoType {
	case "debug":
		s.echoFunc = s.logger.Debugf
	case "warn":
		s.echoFunc = s.logger.Warnf
	case "error":
		s.echoFunc = s.logger.Errorf
	case "info":
		s.echoFunc = s.logger.Infof
	default:
		s.logger.Warnf("unknown echo type %s, use info", echoType)
		s.echoFunc = s.logger.Infof
	}
	return nil
}

func (s *sink) Close() error {
	return nil
}

func (s *sink) PropertiesDef() cirrus.PropertiesDef {
	return cirrus.PropertiesDef{MaxRowsProperty, TypeProperty}
}

func New() cirrus.Sink {
	return &sink{}
}

func init() {
	component.RegisterNewSinkFunc("echo", New)
}
