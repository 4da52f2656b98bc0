package raft

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Logger is hclog.Logger plus the printf-style sugar the call sites in this
// package already assume (Infof/Errorf/Warnf/Debugf alongside hclog's own
// leveled key-value methods).
type Logger interface {
	hclog.Logger
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type sugaredLogger struct {
	hclog.Logger
}

// WrapLogger adapts a hclog.Logger into a Logger. Passing nil returns the
// package default.
func WrapLogger(l hclog.Logger) Logger {
	if l == nil {
		l = hclog.Default()
	}
	if sugared, ok := l.(Logger); ok {
		return sugared
	}
	return &sugaredLogger{l}
}

func NewLogger(name string) Logger {
	return WrapLogger(hclog.Default().Named(name))
}

func (s *sugaredLogger) Infof(format string, args ...interface{}) {
	s.Logger.Info(fmt.Sprintf(format, args...))
}

func (s *sugaredLogger) Errorf(format string, args ...interface{}) {
	s.Logger.Error(fmt.Sprintf(format, args...))
}

func (s *sugaredLogger) Warnf(format string, args ...interface{}) {
	s.Logger.Warn(fmt.Sprintf(format, args...))
}

func (s *sugaredLogger) Debugf(format string, args ...interface{}) {
	s.Logger.Debug(fmt.Sprintf(format, args...))
}

func (s *sugaredLogger) Named(name string) hclog.Logger {
	return WrapLogger(s.Logger.Named(name))
}
