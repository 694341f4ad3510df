// Package logrus adapts a *logrus.Entry (or *logrus.Logger, via
// logrus.NewEntry) to the eventstore.Logger interface, mirroring the
// extension/zap wrapper's shape.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/eventstore"
)

var _ eventstore.Logger = &Wrapper{}

// Wrapper embeds a *logrus.Entry in order to implement eventstore.Logger
type Wrapper struct {
	*logrus.Entry
}

// Wrap wraps a logrus.Logger
func Wrap(logger *logrus.Logger) *Wrapper {
	return &Wrapper{logrus.NewEntry(logger)}
}

// WrapEntry wraps an existing logrus.Entry, preserving any fields already attached
func WrapEntry(entry *logrus.Entry) *Wrapper {
	return &Wrapper{entry}
}

// Error writes a log with log level error
func (w *Wrapper) Error(msg string) {
	w.Entry.Error(msg)
}

// Warn writes a log with log level warning
func (w *Wrapper) Warn(msg string) {
	w.Entry.Warn(msg)
}

// Info writes a log with log level info
func (w *Wrapper) Info(msg string) {
	w.Entry.Info(msg)
}

// Debug writes a log with log level debug
func (w *Wrapper) Debug(msg string) {
	w.Entry.Debug(msg)
}

// WithField adds a field to the log entry
func (w *Wrapper) WithField(key string, val interface{}) eventstore.Logger {
	return WrapEntry(w.Entry.WithField(key, val))
}

// WithFields adds a set of fields to the log entry
func (w *Wrapper) WithFields(fields eventstore.Fields) eventstore.Logger {
	return WrapEntry(w.Entry.WithFields(logrus.Fields(fields)))
}

// WithError adds an error as a single field to the log entry
func (w *Wrapper) WithError(err error) eventstore.Logger {
	return WrapEntry(w.Entry.WithError(err))
}
