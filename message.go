package eventstore

import (
	"crypto/sha1" // nolint:gosec // used for table name derivation, not security
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerflow/eventstore/metadata"
)

// UUID identifies a message
type UUID = uuid.UUID

// GenerateUUID returns a new random message identifier
func GenerateUUID() UUID {
	return uuid.New()
}

// Message is an immutable domain event as produced by a client of the
// store. The concrete envelope type (name, converter, factory) is an
// external collaborator (spec §1); this is the minimal surface the store
// and projector require of it.
type Message interface {
	// UUID returns the identifier of this message
	UUID() UUID
	// MessageName returns the name stored in the event_name column and
	// used to key named projection handlers.
	MessageName() string
	// Payload returns the decoded message payload
	Payload() interface{}
	// Metadata returns the message metadata
	Metadata() metadata.Metadata
	// CreatedAt returns the time the message was created
	CreatedAt() time.Time

	// WithMetadata returns a copy of the message with key set to value in its metadata
	WithMetadata(key string, value interface{}) Message
}

// StreamName is the logical name of a stream. When it contains a "-" the
// prefix before the first "-" is its category (spec §3); when it contains
// a "." the prefix is interpreted as a schema name on dialects that
// support one (spec §3).
type StreamName string

// Category returns the category of the stream name, and whether it has one.
func (s StreamName) Category() (string, bool) {
	name := string(s)
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}
	idx := strings.IndexByte(name, '-')
	if idx < 0 {
		return "", false
	}
	return name[:idx], true
}

// SchemaPrefix returns the portion of the stream name before the first "."
// and whether one was present. Only meaningful on dialects that support
// schemas (Postgres).
func (s StreamName) SchemaPrefix() (string, bool) {
	name := string(s)
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return "", false
	}
	return name[:idx], true
}

// TableName returns the physical table name for the stream: "_" followed
// by the hex-encoded SHA-1 of the logical name, with any schema prefix
// (spec §3) re-applied by the caller since schema support is dialect
// specific.
func (s StreamName) TableName() string {
	sum := sha1.Sum([]byte(s)) // nolint:gosec
	return "_" + hex.EncodeToString(sum[:])
}
