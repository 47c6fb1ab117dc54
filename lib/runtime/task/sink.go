package task

import (
	"cirrus/cirrus"
)

// SinkTask closes an opened sink once the context is done.
type SinkTask struct {
	cirrus.Sink
	Ctx cirrus.Context
}

func (s *SinkTask) Run() error {
	//Sink does not block, so wait
	<-s.Ctx.Done()
	return s.Close()
}
