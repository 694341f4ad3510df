package postgres

import (
	"crypto/sha1" // nolint:gosec // table-name derivation, not security
	"encoding/hex"
	"fmt"

	"github.com/ledgerflow/eventstore"
	driversql "github.com/ledgerflow/eventstore/driver/sql"
	"github.com/ledgerflow/eventstore/internal/jsonx"
)

func tableName(streamName eventstore.StreamName) (string, error) {
	if streamName == "" {
		return "", eventstore.InvalidArgumentError("streamName")
	}
	name := "_" + hex.EncodeToString(sha1Sum([]byte(streamName))) // nolint:gosec
	if schema, ok := streamName.SchemaPrefix(); ok {
		return schema + "." + name, nil
	}
	return name, nil
}

func sha1Sum(b []byte) []byte {
	sum := sha1.Sum(b) // nolint:gosec
	return sum[:]
}

// AggregateStreamStrategy is C3's "one stream per aggregate instance"
// family (spec §4.1): uniqueness on metadata._aggregate_version alone.
type AggregateStreamStrategy struct{}

// NewAggregateStreamStrategy returns the AggregateStream persistence strategy
func NewAggregateStreamStrategy() *AggregateStreamStrategy { return &AggregateStreamStrategy{} }

// CreateSchema implements driversql.PersistenceStrategy
func (AggregateStreamStrategy) CreateSchema(table string) []string {
	quoted := Dialect{}.QuoteIdentifier(table)
	indexName := Dialect{}.QuoteIdentifier(table + "_unique_index__aggregate_version")
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
	no BIGSERIAL,
	event_id UUID NOT NULL,
	event_name VARCHAR(100) NOT NULL,
	payload JSON NOT NULL,
	metadata JSONB NOT NULL,
	created_at TIMESTAMP(6) NOT NULL,
	PRIMARY KEY (no),
	CONSTRAINT aggregate_version_not_null CHECK ((metadata->>'_aggregate_version') IS NOT NULL),
	UNIQUE (event_id)
);`, quoted),
		fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s (((metadata->>'_aggregate_version')::bigint));`, indexName, quoted),
	}
}

// ColumnNames implements driversql.PersistenceStrategy
func (AggregateStreamStrategy) ColumnNames() []string {
	return []string{"event_id", "event_name", "payload", "metadata", "created_at"}
}

// PrepareData implements driversql.PersistenceStrategy
func (AggregateStreamStrategy) PrepareData(messages []eventstore.Message) ([]interface{}, error) {
	for _, msg := range messages {
		if _, ok := msg.Metadata().Value("_aggregate_version"); !ok {
			return nil, eventstore.AggregateVersionMissingError()
		}
	}
	return prepareEventData(messages)
}

// GenerateTableName implements driversql.PersistenceStrategy
func (AggregateStreamStrategy) GenerateTableName(s eventstore.StreamName) (string, error) {
	return tableName(s)
}

// prepareEventData flattens a batch of messages into a flat value vector
// in (event_id, event_name, payload, metadata, created_at) order; "no" is
// always database-assigned and never part of an insert (spec §4.1).
func prepareEventData(messages []eventstore.Message) ([]interface{}, error) {
	out := make([]interface{}, 0, len(messages)*5)
	for _, msg := range messages {
		payload, err := jsonx.Marshal(msg.Payload())
		if err != nil {
			return nil, eventstore.RuntimeError("failed to encode event payload", err)
		}
		meta, err := jsonx.Marshal(msg.Metadata().AsMap())
		if err != nil {
			return nil, eventstore.RuntimeError("failed to encode event metadata", err)
		}
		out = append(out, msg.UUID(), msg.MessageName(), payload, meta, msg.CreatedAt())
	}
	return out, nil
}

// SingleStreamStrategy is C3's "one stream per aggregate type" family
// (spec §4.1): composite uniqueness on
// (aggregate_type, aggregate_id, aggregate_version), plus a non-unique
// lookup index, plus an advertised query-hint index name.
type SingleStreamStrategy struct{}

// NewSingleStreamStrategy returns the SingleStream persistence strategy
func NewSingleStreamStrategy() *SingleStreamStrategy { return &SingleStreamStrategy{} }

// CreateSchema implements driversql.PersistenceStrategy
func (SingleStreamStrategy) CreateSchema(table string) []string {
	quoted := Dialect{}.QuoteIdentifier(table)
	uniqueIndex := Dialect{}.QuoteIdentifier(table + "_unique_index__aggregate_type__aggregate_id__aggregate_version")
	lookupIndex := Dialect{}.QuoteIdentifier(table + "_index__aggregate_type__aggregate_id")
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
	no BIGSERIAL,
	event_id UUID NOT NULL,
	event_name VARCHAR(100) NOT NULL,
	payload JSON NOT NULL,
	metadata JSONB NOT NULL,
	created_at TIMESTAMP(6) NOT NULL,
	PRIMARY KEY (no),
	CONSTRAINT aggregate_type_not_null CHECK ((metadata->>'_aggregate_type') IS NOT NULL),
	CONSTRAINT aggregate_id_not_null CHECK ((metadata->>'_aggregate_id') IS NOT NULL),
	CONSTRAINT aggregate_version_not_null CHECK ((metadata->>'_aggregate_version') IS NOT NULL),
	UNIQUE (event_id)
);`, quoted),
		fmt.Sprintf(
			`CREATE UNIQUE INDEX %s ON %s ((metadata->>'_aggregate_type'), (metadata->>'_aggregate_id'), ((metadata->>'_aggregate_version')::bigint));`,
			uniqueIndex, quoted,
		),
		fmt.Sprintf(
			`CREATE INDEX %s ON %s ((metadata->>'_aggregate_type'), (metadata->>'_aggregate_id'), no);`,
			lookupIndex, quoted,
		),
	}
}

// ColumnNames implements driversql.PersistenceStrategy
func (SingleStreamStrategy) ColumnNames() []string {
	return []string{"event_id", "event_name", "payload", "metadata", "created_at"}
}

// PrepareData implements driversql.PersistenceStrategy
func (SingleStreamStrategy) PrepareData(messages []eventstore.Message) ([]interface{}, error) {
	for _, msg := range messages {
		meta := msg.Metadata()
		for _, field := range []string{"_aggregate_type", "_aggregate_id", "_aggregate_version"} {
			if _, ok := meta.Value(field); !ok {
				return nil, eventstore.AggregateVersionMissingError()
			}
		}
	}
	return prepareEventData(messages)
}

// GenerateTableName implements driversql.PersistenceStrategy
func (SingleStreamStrategy) GenerateTableName(s eventstore.StreamName) (string, error) {
	return tableName(s)
}

// IndexName implements driversql.IndexHinter
func (SingleStreamStrategy) IndexName() string { return "index__aggregate_type__aggregate_id" }

// SimpleStreamStrategy is C3's "no aggregate constraints" family (spec
// §4.1): only event_id uniqueness, and "no" is database-assigned, not
// part of the insert column list.
type SimpleStreamStrategy struct{}

// NewSimpleStreamStrategy returns the SimpleStream persistence strategy
func NewSimpleStreamStrategy() *SimpleStreamStrategy { return &SimpleStreamStrategy{} }

// CreateSchema implements driversql.PersistenceStrategy
func (SimpleStreamStrategy) CreateSchema(table string) []string {
	quoted := Dialect{}.QuoteIdentifier(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
	no BIGSERIAL,
	event_id UUID NOT NULL,
	event_name VARCHAR(100) NOT NULL,
	payload JSON NOT NULL,
	metadata JSONB NOT NULL,
	created_at TIMESTAMP(6) NOT NULL,
	PRIMARY KEY (no),
	UNIQUE (event_id)
);`, quoted),
	}
}

// ColumnNames implements driversql.PersistenceStrategy
func (SimpleStreamStrategy) ColumnNames() []string {
	return []string{"event_id", "event_name", "payload", "metadata", "created_at"}
}

// PrepareData implements driversql.PersistenceStrategy
func (SimpleStreamStrategy) PrepareData(messages []eventstore.Message) ([]interface{}, error) {
	return prepareEventData(messages)
}

// GenerateTableName implements driversql.PersistenceStrategy
func (SimpleStreamStrategy) GenerateTableName(s eventstore.StreamName) (string, error) {
	return tableName(s)
}

var (
	_ driversql.PersistenceStrategy = AggregateStreamStrategy{}
	_ driversql.PersistenceStrategy = SingleStreamStrategy{}
	_ driversql.PersistenceStrategy = SimpleStreamStrategy{}
	_ driversql.IndexHinter         = SingleStreamStrategy{}
)
