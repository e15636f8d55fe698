// Package logging provides structured logging for the xsk socket family.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger wrapping a logrus entry.
type Logger struct {
	*logrus.Entry
}

// NewLogger creates a new structured logger at the given level.
func NewLogger(level string) (*Logger, error) {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	logger.SetOutput(os.Stdout)

	entry := logger.WithFields(logrus.Fields{
		"service": "xskd",
		"version": "1.0.0",
	})

	return &Logger{Entry: entry}, nil
}

// WithField adds a field to the logger.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithFields adds multiple fields to the logger.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields)}
}

// Info logs an info message with optional key-value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.Entry.WithFields(parseKeysAndValues(keysAndValues...)).Info(msg)
}

// Error logs an error message with optional key-value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.Entry.WithFields(parseKeysAndValues(keysAndValues...)).Error(msg)
}

// Warn logs a warning message with optional key-value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.Entry.WithFields(parseKeysAndValues(keysAndValues...)).Warn(msg)
}

// Debug logs a debug message with optional key-value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.Entry.WithFields(parseKeysAndValues(keysAndValues...)).Debug(msg)
}

func parseKeysAndValues(keysAndValues ...interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fields[fmt.Sprintf("%v", keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	return fields
}

// LogBind logs a socket bind or rebind transition.
func (l *Logger) LogBind(ifindex, queueID uint32, rebind bool) {
	l.Entry.WithFields(logrus.Fields{
		"ifindex":  ifindex,
		"queue_id": queueID,
		"rebind":   rebind,
		"type":     "bind",
	}).Info("socket bound")
}

// LogDrop logs a data-path drop with its cause.
func (l *Logger) LogDrop(reason string, ifindex, queueID uint32) {
	l.Entry.WithFields(logrus.Fields{
		"reason":   reason,
		"ifindex":  ifindex,
		"queue_id": queueID,
		"type":     "drop",
	}).Debug("rx dropped")
}

// LogFatal logs an invariant violation that must never happen on the data path.
func (l *Logger) LogFatal(component, detail string) {
	l.Entry.WithFields(logrus.Fields{
		"component": component,
		"detail":    detail,
		"type":      "invariant_violation",
	}).Error("fatal diagnostic")
}
