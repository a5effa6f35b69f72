package notify

import (
	"go.uber.org/zap"
)

// LogSink writes notifications to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Show(n Notification) {
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("level", string(n.Level)),
		zap.Duration("auto_close", n.AutoClose),
	}
	switch n.Level {
	case LevelError:
		s.logger.Error(n.Text, fields...)
	case LevelWarning:
		s.logger.Warn(n.Text, fields...)
	default:
		s.logger.Info(n.Text, fields...)
	}
}

func (s *LogSink) Dismiss(n Notification) {
	s.logger.Debug("Notification dismissed", zap.String("id", n.ID), zap.String("level", string(n.Level)))
}

// FuncSink adapts a pair of functions to Sink. Either may be nil.
type FuncSink struct {
	OnShow    func(Notification)
	OnDismiss func(Notification)
}

func (s FuncSink) Show(n Notification) {
	if s.OnShow != nil {
		s.OnShow(n)
	}
}

func (s FuncSink) Dismiss(n Notification) {
	if s.OnDismiss != nil {
		s.OnDismiss(n)
	}
}
