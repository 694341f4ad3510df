package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/internal/enginetest"
	"github.com/ledgerflow/eventstore/metadata"
)

func newTestMessage(meta metadata.Metadata) eventstore.Message {
	return enginetest.NewDummyMessage(eventstore.GenerateUUID(), "deposited", map[string]interface{}{"amount": 5}, meta, time.Now().UTC())
}

func TestTableNameIsDeterministic(t *testing.T) {
	name, err := tableName(eventstore.StreamName("account-1"))
	require.NoError(t, err)
	assert.Regexp(t, `^_[0-9a-f]{40}$`, name)
}

func TestAggregateStreamStrategyRequiresAggregateVersion(t *testing.T) {
	s := AggregateStreamStrategy{}
	_, err := s.PrepareData([]eventstore.Message{newTestMessage(metadata.New())})
	assert.True(t, eventstore.IsKind(err, eventstore.KindAggregateVersionMissing))
}

func TestAggregateStreamStrategyCreateSchemaUsesGeneratedColumn(t *testing.T) {
	stmts := AggregateStreamStrategy{}.CreateSchema("_abc")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "GENERATED ALWAYS AS")
	assert.Contains(t, stmts[0], "json_value(metadata, '$._aggregate_version')")
}

func TestSingleStreamStrategyIndexNameAndSchema(t *testing.T) {
	s := SingleStreamStrategy{}
	assert.Equal(t, "index__aggregate_type__aggregate_id", s.IndexName())

	stmts := s.CreateSchema("_abc")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "KEY index__aggregate_type__aggregate_id")
}

func TestSimpleStreamStrategyHasNoMetadataRequirement(t *testing.T) {
	_, err := SimpleStreamStrategy{}.PrepareData([]eventstore.Message{newTestMessage(metadata.New())})
	assert.NoError(t, err)
}
