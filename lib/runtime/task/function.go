package task

import (
	"cirrus/cirrus"
	"cirrus/lib/function"
	"cirrus/lib/log"
)

// FunctionTask keeps a function alive until its context is done. Invocations
// reach the handler through the invoker, not through the task.
type FunctionTask struct {
	*function.Handler
	Ctx cirrus.Context
}

func (f *FunctionTask) Run() error {
	<-f.Ctx.Done()
	if pending := f.Arena().Len(); pending > 0 {
		log.Ctx(f.Ctx).Warnw("function stopped with incomplete windows.", "windows", pending)
	}
	return nil
}
