package sql

import (
	"time"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/internal/jsonx"
	"github.com/ledgerflow/eventstore/metadata"
)

// MessageFactory reconstructs a Message from a decoded row (spec §4.3).
// The stream iterator calls it once per fetched row.
type MessageFactory interface {
	CreateMessage(id eventstore.UUID, name string, payload, rawMetadata []byte, createdAt time.Time) (eventstore.Message, error)
}

// DefaultMessageFactory decodes payload and metadata generically (no
// struct registry): payload lands as whatever DecodeNumberPreserving
// produces (map/slice/scalar), metadata as a flat object. This mirrors
// the dynamically-typed payload the PHP source works with; a typed
// client can wrap DefaultMessageFactory and type-switch on name to
// unmarshal into concrete Go structs if it wants to.
type DefaultMessageFactory struct{}

// NewDefaultMessageFactory returns the zero-configuration MessageFactory
func NewDefaultMessageFactory() *DefaultMessageFactory {
	return &DefaultMessageFactory{}
}

// CreateMessage implements MessageFactory
func (f *DefaultMessageFactory) CreateMessage(id eventstore.UUID, name string, payload, rawMetadata []byte, createdAt time.Time) (eventstore.Message, error) {
	decodedPayload, err := jsonx.DecodeNumberPreserving(payload)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to decode event payload", err)
	}

	metaMap, err := jsonx.DecodeObjectNumberPreserving(rawMetadata)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to decode event metadata", err)
	}

	return NewMessage(id, name, decodedPayload, metadata.FromMap(metaMap), createdAt), nil
}
