package mysql

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

// AggregateStreamStrategy is C3's "one stream per aggregate instance"
// family (spec §4.1). MySQL's JSON columns cannot carry a functional
// unique index directly, so a generated column materializes the
// aggregate version for indexing, mirroring how the source's MySQL
// schema dumps declare these tables.
type AggregateStreamStrategy struct{}

// NewAggregateStreamStrategy returns the AggregateStream persistence strategy
func NewAggregateStreamStrategy() *AggregateStreamStrategy { return &AggregateStreamStrategy{} }

// CreateSchema implements driversql.PersistenceStrategy
func (AggregateStreamStrategy) CreateSchema(table string) []string {
	quoted := Dialect{}.QuoteIdentifier(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
	no BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	event_id CHAR(36) NOT NULL,
	event_name VARCHAR(100) NOT NULL,
	payload JSON NOT NULL,
	metadata JSON NOT NULL,
	created_at DATETIME(6) NOT NULL,
	_aggregate_version BIGINT GENERATED ALWAYS AS (json_value(metadata, '$._aggregate_version')) STORED NOT NULL,
	PRIMARY KEY (no),
	UNIQUE KEY (event_id),
	UNIQUE KEY unique_index__aggregate_version (_aggregate_version)
);`, quoted),
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

// SingleStreamStrategy is C3's "one stream per aggregate type" family
// (spec §4.1), using generated columns for both the composite uniqueness
// constraint and the non-unique lookup index.
type SingleStreamStrategy struct{}

// NewSingleStreamStrategy returns the SingleStream persistence strategy
func NewSingleStreamStrategy() *SingleStreamStrategy { return &SingleStreamStrategy{} }

// CreateSchema implements driversql.PersistenceStrategy
func (SingleStreamStrategy) CreateSchema(table string) []string {
	quoted := Dialect{}.QuoteIdentifier(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
	no BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	event_id CHAR(36) NOT NULL,
	event_name VARCHAR(100) NOT NULL,
	payload JSON NOT NULL,
	metadata JSON NOT NULL,
	created_at DATETIME(6) NOT NULL,
	_aggregate_type VARCHAR(150) GENERATED ALWAYS AS (json_value(metadata, '$._aggregate_type')) STORED NOT NULL,
	_aggregate_id VARCHAR(150) GENERATED ALWAYS AS (json_value(metadata, '$._aggregate_id')) STORED NOT NULL,
	_aggregate_version BIGINT GENERATED ALWAYS AS (json_value(metadata, '$._aggregate_version')) STORED NOT NULL,
	PRIMARY KEY (no),
	UNIQUE KEY (event_id),
	UNIQUE KEY unique_index__aggregate_type__aggregate_id__aggregate_version (_aggregate_type, _aggregate_id, _aggregate_version),
	KEY index__aggregate_type__aggregate_id (_aggregate_type, _aggregate_id, no)
);`, quoted),
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
// §4.1): only event_id uniqueness.
type SimpleStreamStrategy struct{}

// NewSimpleStreamStrategy returns the SimpleStream persistence strategy
func NewSimpleStreamStrategy() *SimpleStreamStrategy { return &SimpleStreamStrategy{} }

// CreateSchema implements driversql.PersistenceStrategy
func (SimpleStreamStrategy) CreateSchema(table string) []string {
	quoted := Dialect{}.QuoteIdentifier(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
	no BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	event_id CHAR(36) NOT NULL,
	event_name VARCHAR(100) NOT NULL,
	payload JSON NOT NULL,
	metadata JSON NOT NULL,
	created_at DATETIME(6) NOT NULL,
	PRIMARY KEY (no),
	UNIQUE KEY (event_id)
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
