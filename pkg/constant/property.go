package constant

import (
	"cirrus/lib/invoke"
	"cirrus/lib/properties"
	"cirrus/pkg/encoding"
)

var (
	//runtime property

	RuntimeLogLevelProperty  = properties.NewProperty[string]("log-level", "debug, info, warn or error", "info")
	RuntimeLogFormatProperty = properties.NewProperty[string]("log-format", "console or json", "console")
	RuntimePoolSizeProperty  = properties.NewProperty[int]("pool-size", "local invoker worker pool size", 16)
	RuntimeInvokerProperty   = properties.NewProperty[string]("invoker", "local or kafka", invoke.LocalInvokerName)
	RuntimeBrokersProperty   = properties.NewProperty[[]string]("brokers", "kafka brokers of the kafka invoker", []string{})
	RuntimeSelectorProperty  = properties.NewProperty[string]("selector", "chorus selector, hash, round-robin, random or script", invoke.HashSelectorName)
	RuntimeScriptProperty    = properties.NewProperty[string]("script", "tengo script of the script selector", "")
	RuntimeEncodingProperty  = properties.NewProperty[string]("encoding", "encoding of payloads emitted by functions", string(encoding.Snappy))
	RuntimeMetricsProperty   = properties.NewProperty[string]("metrics", "prometheus listen address, empty disables it", "")

	//function property

	ContextProperty = properties.NewRequiredProperty[string]("context", "marshaled execution context")
	OutputsProperty = properties.NewProperty[[]string]("outputs", "regexps of the sinks receiving the output of a terminal function, empty means every sink", []string{})

	//component property

	TypeProperty = properties.NewRequiredProperty[string]("type", "component type")

	TargetProperty = properties.NewRequiredProperty[string]("target", "function receiving the source payloads")
)
