package eventstore

// Fields is a set of structured key/value pairs attached to a log entry
type Fields map[string]interface{}

// Logger is the structured, chainable logging interface used throughout
// the store and projector. Adapters for logrus and zap are provided in
// extension/logrus and extension/zap.
type Logger interface {
	WithField(key string, val interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// nopLogger discards everything written to it
type nopLogger struct{}

// NopLogger is the Logger used by constructors when none is supplied
var NopLogger Logger = nopLogger{}

func (nopLogger) WithField(string, interface{}) Logger { return NopLogger }
func (nopLogger) WithFields(Fields) Logger              { return NopLogger }
func (nopLogger) WithError(error) Logger                { return NopLogger }
func (nopLogger) Debug(string)                          {}
func (nopLogger) Info(string)                            {}
func (nopLogger) Warn(string)                            {}
func (nopLogger) Error(string)                           {}
