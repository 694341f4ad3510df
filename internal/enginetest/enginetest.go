// Package enginetest holds hand-written test doubles for the small
// non-SQL interfaces (Message, PersistenceStrategy, MessageFactory,
// Logger) in the shape mockgen would produce, mirroring the teacher's
// mocks package without running codegen.
package enginetest

import (
	"time"

	"github.com/ledgerflow/eventstore"
	driversql "github.com/ledgerflow/eventstore/driver/sql"
	"github.com/ledgerflow/eventstore/metadata"
)

var _ eventstore.Message = &DummyMessage{}

// DummyMessage is a simple eventstore.Message implementation used for testing
type DummyMessage struct {
	id        eventstore.UUID
	name      string
	payload   interface{}
	metadata  metadata.Metadata
	createdAt time.Time
}

// NewDummyMessage returns a new DummyMessage
func NewDummyMessage(id eventstore.UUID, name string, payload interface{}, meta metadata.Metadata, createdAt time.Time) *DummyMessage {
	return &DummyMessage{id: id, name: name, payload: payload, metadata: meta, createdAt: createdAt}
}

// UUID returns the identifier of this message
func (d *DummyMessage) UUID() eventstore.UUID { return d.id }

// MessageName returns the name of this message
func (d *DummyMessage) MessageName() string { return d.name }

// CreatedAt returns the created time of the message
func (d *DummyMessage) CreatedAt() time.Time { return d.createdAt }

// Payload returns the payload of the message
func (d *DummyMessage) Payload() interface{} { return d.payload }

// Metadata returns the message metadata
func (d *DummyMessage) Metadata() metadata.Metadata { return d.metadata }

// WithMetadata returns a new instance of the message with key/value added to its metadata
func (d *DummyMessage) WithMetadata(key string, value interface{}) eventstore.Message {
	newMessage := *d
	newMessage.metadata = metadata.WithValue(d.metadata, key, value)
	return &newMessage
}

var _ driversql.PersistenceStrategy = &FakePersistenceStrategy{}

// FakePersistenceStrategy is a scriptable driversql.PersistenceStrategy:
// each field defaults to a trivial, always-succeeding implementation, and
// any field can be overridden per test to force a specific error.
type FakePersistenceStrategy struct {
	Schema       []string
	Columns      []string
	PrepareFunc  func([]eventstore.Message) ([]interface{}, error)
	TableName    string
	TableNameErr error
}

// CreateSchema implements driversql.PersistenceStrategy
func (f *FakePersistenceStrategy) CreateSchema(string) []string { return f.Schema }

// ColumnNames implements driversql.PersistenceStrategy
func (f *FakePersistenceStrategy) ColumnNames() []string {
	if f.Columns != nil {
		return f.Columns
	}
	return []string{"event_id", "event_name", "payload", "metadata", "created_at"}
}

// PrepareData implements driversql.PersistenceStrategy
func (f *FakePersistenceStrategy) PrepareData(messages []eventstore.Message) ([]interface{}, error) {
	if f.PrepareFunc != nil {
		return f.PrepareFunc(messages)
	}
	out := make([]interface{}, 0, len(messages)*5)
	for _, msg := range messages {
		out = append(out, msg.UUID(), msg.MessageName(), msg.Payload(), msg.Metadata().AsMap(), msg.CreatedAt())
	}
	return out, nil
}

// GenerateTableName implements driversql.PersistenceStrategy
func (f *FakePersistenceStrategy) GenerateTableName(streamName eventstore.StreamName) (string, error) {
	if f.TableNameErr != nil {
		return "", f.TableNameErr
	}
	if f.TableName != "" {
		return f.TableName, nil
	}
	return streamName.TableName(), nil
}

var _ driversql.MessageFactory = &FakeMessageFactory{}

// FakeMessageFactory is a scriptable driversql.MessageFactory
type FakeMessageFactory struct {
	CreateFunc func(id eventstore.UUID, name string, payload, rawMetadata []byte, createdAt time.Time) (eventstore.Message, error)
}

// CreateMessage implements driversql.MessageFactory
func (f *FakeMessageFactory) CreateMessage(id eventstore.UUID, name string, payload, rawMetadata []byte, createdAt time.Time) (eventstore.Message, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(id, name, payload, rawMetadata, createdAt)
	}
	return NewDummyMessage(id, name, string(payload), metadata.New(), createdAt), nil
}

var _ eventstore.Logger = &RecordingLogger{}

// RecordingLogger is a Logger that appends every call to Entries instead
// of writing anywhere, for asserting on log output in tests.
type RecordingLogger struct {
	fields  eventstore.Fields
	Entries *[]string
}

// NewRecordingLogger returns a RecordingLogger backed by a fresh log
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{fields: eventstore.Fields{}, Entries: &[]string{}}
}

// WithField implements eventstore.Logger
func (l *RecordingLogger) WithField(key string, val interface{}) eventstore.Logger {
	next := cloneFields(l.fields)
	next[key] = val
	return &RecordingLogger{fields: next, Entries: l.Entries}
}

// WithFields implements eventstore.Logger
func (l *RecordingLogger) WithFields(fields eventstore.Fields) eventstore.Logger {
	next := cloneFields(l.fields)
	for k, v := range fields {
		next[k] = v
	}
	return &RecordingLogger{fields: next, Entries: l.Entries}
}

// WithError implements eventstore.Logger
func (l *RecordingLogger) WithError(err error) eventstore.Logger {
	return l.WithField("error", err)
}

// Debug implements eventstore.Logger
func (l *RecordingLogger) Debug(msg string) { l.record("debug", msg) }

// Info implements eventstore.Logger
func (l *RecordingLogger) Info(msg string) { l.record("info", msg) }

// Warn implements eventstore.Logger
func (l *RecordingLogger) Warn(msg string) { l.record("warn", msg) }

// Error implements eventstore.Logger
func (l *RecordingLogger) Error(msg string) { l.record("error", msg) }

func (l *RecordingLogger) record(level, msg string) {
	*l.Entries = append(*l.Entries, level+": "+msg)
}

func cloneFields(f eventstore.Fields) eventstore.Fields {
	next := make(eventstore.Fields, len(f)+1)
	for k, v := range f {
		next[k] = v
	}
	return next
}
