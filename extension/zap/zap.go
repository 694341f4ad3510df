// Package zap adapts a *zap.Logger to the eventstore.Logger interface.
package zap

import (
	"go.uber.org/zap"

	"github.com/ledgerflow/eventstore"
)

var _ eventstore.Logger = &Wrapper{}

// Wrapper embeds a *zap.Logger in order to implement eventstore.Logger
type Wrapper struct {
	*zap.Logger
}

// Wrap wraps a zap.Logger
func Wrap(logger *zap.Logger) *Wrapper {
	return &Wrapper{logger}
}

// Error writes a log with log level error
func (w *Wrapper) Error(msg string) {
	w.Logger.Error(msg)
}

// Warn writes a log with log level warning
func (w *Wrapper) Warn(msg string) {
	w.Logger.Warn(msg)
}

// Info writes a log with log level info
func (w *Wrapper) Info(msg string) {
	w.Logger.Info(msg)
}

// Debug writes a log with log level debug
func (w *Wrapper) Debug(msg string) {
	w.Logger.Debug(msg)
}

// WithField adds a field to the log entry
func (w *Wrapper) WithField(key string, val interface{}) eventstore.Logger {
	return Wrap(w.Logger.With(zap.Any(key, val)))
}

// WithFields adds a set of fields to the log entry
func (w *Wrapper) WithFields(fields eventstore.Fields) eventstore.Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}

	return Wrap(w.Logger.With(zapFields...))
}

// WithError adds an error as a single field to the log entry
func (w *Wrapper) WithError(err error) eventstore.Logger {
	return Wrap(w.Logger.With(zap.Error(err)))
}
