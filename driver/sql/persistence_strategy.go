package sql

import (
	"github.com/ledgerflow/eventstore"
)

// PersistenceStrategy bundles the per-stream-table decisions of C3: DDL,
// insert column order, and row serialization. The three families named
// by the spec (AggregateStream, SingleStream, SimpleStream) each
// implement this once per dialect.
type PersistenceStrategy interface {
	// CreateSchema returns the ordered DDL statements that establish the
	// stream's table (and any indexes/constraints it needs).
	CreateSchema(tableName string) []string

	// ColumnNames returns the columns to insert into, in order. No
	// strategy includes "no" in this list: "no" is always
	// database-assigned.
	ColumnNames() []string

	// PrepareData flattens a batch of messages into a single value slice,
	// ColumnNames()-wide per message, in insert order.
	PrepareData(messages []eventstore.Message) ([]interface{}, error)

	// GenerateTableName returns the physical table name for streamName.
	GenerateTableName(streamName eventstore.StreamName) (string, error)
}

// IndexHinter is optionally implemented by a PersistenceStrategy to
// advertise a query hint index name the event store should inject on
// dialects that support USE INDEX (spec §4.1, §4.4).
type IndexHinter interface {
	IndexName() string
}

// IndexedMetadataFields is optionally implemented by a PersistenceStrategy
// that projects selected metadata fields into plain columns; the event
// store rewrites matcher constraints against these fields to target the
// projected column instead of JSON extraction (spec §4.1, §4.4).
type IndexedMetadataFields interface {
	IndexedMetadataFields() map[string]string
}
