package sql

import (
	"time"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/metadata"
)

// message is the concrete eventstore.Message reconstructed from a row by
// DefaultMessageFactory.
type message struct {
	uuid      eventstore.UUID
	name      string
	payload   interface{}
	metadata  metadata.Metadata
	createdAt time.Time
}

// NewMessage builds a Message from already-decoded fields. Exposed so a
// custom MessageFactory can reuse the default envelope shape.
func NewMessage(id eventstore.UUID, name string, payload interface{}, meta metadata.Metadata, createdAt time.Time) eventstore.Message {
	return &message{uuid: id, name: name, payload: payload, metadata: meta, createdAt: createdAt}
}

func (m *message) UUID() eventstore.UUID       { return m.uuid }
func (m *message) MessageName() string         { return m.name }
func (m *message) Payload() interface{}        { return m.payload }
func (m *message) Metadata() metadata.Metadata { return m.metadata }
func (m *message) CreatedAt() time.Time        { return m.createdAt }

func (m *message) WithMetadata(key string, value interface{}) eventstore.Message {
	clone := *m
	clone.metadata = metadata.WithValue(m.metadata, key, value)
	return &clone
}
