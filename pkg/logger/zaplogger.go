package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

type ZapLogger struct {
	log *zap.SugaredLogger
}

var current atomic.Pointer[ZapLogger]

// NewLogger builds a logger from config and installs it as the package
// default used by Info, Warn, Error and Debug.
func NewLogger(config zap.Config) (*ZapLogger, error) {
	base, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	l := &ZapLogger{log: base.Sugar()}
	current.Store(l)
	return l, nil
}

func GetLogger() *ZapLogger {
	l := current.Load()
	if l == nil {
		panic("logger not initialized")
	}
	return l
}

func (l *ZapLogger) Info(message string, values ...any)  { l.log.Infow(message, values...) }
func (l *ZapLogger) Warn(message string, values ...any)  { l.log.Warnw(message, values...) }
func (l *ZapLogger) Error(message string, values ...any) { l.log.Errorw(message, values...) }
func (l *ZapLogger) Debug(message string, values ...any) { l.log.Debugw(message, values...) }

func (l *ZapLogger) Printf(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}
