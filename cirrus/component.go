package cirrus

import (
	"cirrus/pkg/payload"

	"github.com/apache/arrow/go/v11/arrow"
)

//ACKHandler is called once the target function handled the payload without error,
//it is never called for a failed payload
type ACKHandler func()

//EmitNext send payload to the target function of a source
type EmitNext func(p *payload.Payload, handler ACKHandler)

//Output is the result of a terminal function, it flows into sinks
type Output struct {
	Function string
	Window   payload.WindowID
	Batches  []arrow.Record
}

//Emit describe sink Emit Func
type Emit func(out *Output)

//Component is core
type Component interface {
	//Open initialize the component
	Open(ctx Context) error
	//Close cleaning up after the context done.
	Close() error
	//PropertiesDef return Component properties defend
	PropertiesDef() PropertiesDef
}

type Source interface {
	Component
	//Collect should block caller,and wait for ctx done or source done.
	Collect(emitNext EmitNext) error
}

type Sink interface {
	Component
	//GenerateEmit is a method to receive function outputs
	GenerateEmit(upstreamCtx Context) Emit
}

type NewSourceFunc func() Source
type NewSinkFunc func() Sink
