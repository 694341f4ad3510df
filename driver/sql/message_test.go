package sql

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/metadata"
)

func TestMessageWithMetadataReturnsNewInstance(t *testing.T) {
	now := time.Now().UTC()
	m := NewMessage(eventstore.GenerateUUID(), "deposited", 5, metadata.New(), now)

	next := m.WithMetadata("k", "v")

	_, ok := m.Metadata().Value("k")
	assert.False(t, ok, "WithMetadata must not mutate the receiver")

	v, ok := next.Metadata().Value("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestDefaultMessageFactoryDecodesPayloadAndMetadata(t *testing.T) {
	f := NewDefaultMessageFactory()
	id := eventstore.GenerateUUID()
	now := time.Now().UTC()

	msg, err := f.CreateMessage(id, "deposited", []byte(`{"amount":5}`), []byte(`{"_aggregate_id":"a1"}`), now)
	require.NoError(t, err)

	assert.Equal(t, id, msg.UUID())
	assert.Equal(t, "deposited", msg.MessageName())

	payload, ok := msg.Payload().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, json.Number("5"), payload["amount"])

	aggID, ok := msg.Metadata().Value("_aggregate_id")
	require.True(t, ok)
	assert.Equal(t, "a1", aggID)
}

func TestDefaultMessageFactoryRejectsInvalidPayload(t *testing.T) {
	f := NewDefaultMessageFactory()
	_, err := f.CreateMessage(eventstore.GenerateUUID(), "x", []byte(`not json`), []byte(`{}`), time.Now())
	assert.True(t, eventstore.IsKind(err, eventstore.KindRuntime))
}
