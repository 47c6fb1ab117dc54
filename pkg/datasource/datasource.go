// Package datasource describes where the input of a function invocation
// originates.
package datasource

import (
	"github.com/spf13/cast"
)

// Kind of a data source.
type Kind string

const (
	// Unknown is the zero value.
	Unknown Kind = ""
	// Payload means the data arrives inline with the invocation.
	Payload Kind = "payload"
	Kafka   Kind = "kafka"
	NEXMark Kind = "nexmark"
	YSB     Kind = "ysb"
)

// DataSource is a descriptor, it carries no data.
type DataSource struct {
	Kind   Kind              `json:"kind,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func New(kind Kind, config map[string]string) DataSource {
	return DataSource{Kind: kind, Config: config}
}

func (d DataSource) String() string {
	if d.Kind == Unknown {
		return "unknown"
	}
	return string(d.Kind)
}

// Equal compares kind and config.
func (d DataSource) Equal(o DataSource) bool {
	if d.Kind != o.Kind || len(d.Config) != len(o.Config) {
		return false
	}
	for k, v := range d.Config {
		if ov, ok := o.Config[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Set stores a config value, allocating the map on first use.
func (d *DataSource) Set(key string, value interface{}) {
	if d.Config == nil {
		d.Config = map[string]string{}
	}
	d.Config[key] = cast.ToString(value)
}

// GetAsOr reads key as T, returning def when the key is absent or can't be converted.
func GetAsOr[T int | int64 | uint64 | float64 | bool | string](d DataSource, key string, def T) T {
	raw, ok := d.Config[key]
	if !ok {
		return def
	}
	var (
		v   interface{}
		err error
	)
	switch any(def).(type) {
	case int:
		v, err = cast.ToIntE(raw)
	case int64:
		v, err = cast.ToInt64E(raw)
	case uint64:
		v, err = cast.ToUint64E(raw)
	case float64:
		v, err = cast.ToFloat64E(raw)
	case bool:
		v, err = cast.ToBoolE(raw)
	case string:
		v = raw
	}
	if err != nil {
		return def
	}
	return v.(T)
}
