package task

import (
	"cirrus/cirrus"
)

type SourceTask struct {
	cirrus.Source
	Ctx      cirrus.Context
	EmitNext cirrus.EmitNext
	Name     string
	Target   string
}

func (s *SourceTask) Run() error {
	if err := s.Open(s.Ctx); err != nil {
		return err
	}
	if err := s.Collect(s.EmitNext); err != nil {
		_ = s.Close()
		return err
	}
	return s.Close()
}
