package log

import (
	"cirrus/cirrus"
)

// PoolLoggerWrapper adapts a cirrus.Logger to ants.Logger.
type PoolLoggerWrapper struct {
	cirrus.Logger
}

func (l *PoolLoggerWrapper) Printf(format string, args ...interface{}) {
	l.Logger.Infof(format, args...)
}
