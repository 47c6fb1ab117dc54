// Package doris stream loads the output windows of terminal functions into a
// doris table, one load per window.
package doris

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/log"
	"cirrus/lib/properties"
	"cirrus/pkg/plan"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/pkg/errors"
)

var (
	FrontendsProperty = properties.NewRequiredProperty[[]string]("frontends", "doris stream load frontends, host:port")
	DatabaseProperty  = properties.NewRequiredProperty[string]("database", "doris database")
	TableProperty     = properties.NewRequiredProperty[string]("table", "doris table")
	UserProperty      = properties.NewProperty[string]("user", "doris db user", "root")
	PasswordProperty  = properties.NewProperty[string]("password", "doris db password", "")
	HttpsProperty     = properties.NewProperty[bool]("https", "use https", false)
	TimeoutProperty   = properties.NewProperty[time.Duration]("timeout", "stream load timeout", 30*time.Second)
	ColumnsProperty   = properties.NewProperty[string]("columns", "doris columns header, empty loads by field name", "")
)

var illegalLabel = regexp.MustCompile(`[^-_A-Za-z0-9]`)

type sink struct {
	ctx       cirrus.Context
	logger    cirrus.Logger
	frontends []string
	config    LoadConfig
	columns   string
}

func (s *sink) Open(ctx cirrus.Context) error {
	s.ctx = ctx
	s.logger = log.Ctx(ctx)
	ps := ctx.Properties()
	s.frontends = ps.GetStringSlice(FrontendsProperty)
	if len(s.frontends) == 0 {
		return ErrConfigHostEmpty
	}
	s.config = LoadConfig{
		IsHttps:   ps.GetBool(HttpsProperty),
		Host:      s.frontends[0],
		DBName:    ps.GetString(DatabaseProperty),
		TableName: ps.GetString(TableProperty),
		User:      ps.GetString(UserProperty),
		Password:  ps.GetString(PasswordProperty),
		Timeout:   ps.GetDuration(TimeoutProperty),
	}
	s.columns = ps.GetString(ColumnsProperty)
	return s.config.check()
}

func (s *sink) Close() error {
	return nil
}

func (s *sink) PropertiesDef() cirrus.PropertiesDef {
	return cirrus.PropertiesDef{FrontendsProperty, DatabaseProperty, TableProperty, UserProperty,
		PasswordProperty, HttpsProperty, TimeoutProperty, ColumnsProperty}
}

func (s *sink) GenerateEmit(cirrus.Context) cirrus.Emit {
	return func(out *cirrus.Output) {
		if err := s.load(out); err != nil {
			s.logger.Errorw("stream load failed.", "function", out.Function, "window", out.Window.String(), "err", err)
		}
	}
}

// load tries every frontend in turn, the label keeps retries from loading
// the window twice.
func (s *sink) load(out *cirrus.Output) error {
	rows := Rows(out.Batches)
	if len(rows) == 0 {
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	options := []Option{WithJSON(), WithLabel(Label(out))}
	if s.columns != "" {
		options = append(options, WithColumns(s.columns))
	}
	var lastErr error
	for _, frontend := range s.frontends {
		config := s.config
		config.Host = frontend
		result, err := newRequest(config, body, options...).load(s.ctx.Ctx())
		if err == nil {
			s.logger.Debugw("window loaded.", "label", result.Label, "status", result.Status, "rows", result.NumberLoadedRows)
			return nil
		}
		if errors.Is(err, ErrStreamLoad) && result != nil {
			// the frontend answered, another one would reject the data too
			return err
		}
		lastErr = err
		s.logger.Warnw("frontend unavailable.", "frontend", frontend, "err", err)
	}
	return lastErr
}

// Label names the load of one output window.
func Label(out *cirrus.Output) string {
	return illegalLabel.ReplaceAllString(strings.Join([]string{out.Function, out.Window.String()}, "_"), "_")
}

// Rows converts batches into json objects keyed by field name.
func Rows(batches []arrow.Record) []map[string]interface{} {
	var rows []map[string]interface{}
	for _, batch := range batches {
		fields := batch.Schema().Fields()
		for i := 0; i < int(batch.NumRows()); i++ {
			row := make(map[string]interface{}, len(fields))
			for j, field := range fields {
				row[field.Name] = value(batch.Column(j), i)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func value(arr arrow.Array, i int) interface{} {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	default:
		return plan.ValueString(arr, i)
	}
}

func New() cirrus.Sink {
	return &sink{}
}

func init() {
	component.RegisterNewSinkFunc("doris", New)
}
