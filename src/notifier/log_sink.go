package notifier

import (
	logger "github.com/sirupsen/logrus"
)

// LogSink writes notifications to the structured log. Always registered so
// every notification leaves a trace even with no external sinks configured.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(msg Message) error {
	entry := logger.WithFields(logger.Fields{
		"notification": msg.ID,
		"subject":      msg.Subject,
	})
	switch msg.Level {
	case LevelError:
		entry.Error(msg.Body)
	case LevelWarn:
		entry.Warn(msg.Body)
	default:
		entry.Info(msg.Body)
	}
	return nil
}
