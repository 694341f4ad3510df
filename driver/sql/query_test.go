package sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
)

func TestNewQueryValidatesRequiredFields(t *testing.T) {
	_, err := NewQuery(QueryConfig{})
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))

	_, err = NewQuery(QueryConfig{Store: newFakeStore()})
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument), "source must be validated too")
}

func TestQueryRunFoldsEventsAcrossStreamsIntoFinalState(t *testing.T) {
	store := newFakeStore()
	store.messages["account-1"] = []eventstore.Message{dummyAt("deposited", time.Now())}
	store.messages["account-2"] = []eventstore.Message{dummyAt("deposited", time.Now().Add(time.Second))}

	q, err := NewQuery(QueryConfig{
		Store:  store,
		Source: Source{Streams: []eventstore.StreamName{"account-1", "account-2"}},
		Handler: Handlers{All: func(state State, msg eventstore.Message, h *HandlerContext) State {
			count, _ := state["count"].(int)
			state["count"] = count + 1
			return state
		}},
	})
	require.NoError(t, err)

	state, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, state["count"])
}

func TestQueryRunStopsWhenHandlerCallsStop(t *testing.T) {
	store := newFakeStore()
	store.messages["account-1"] = []eventstore.Message{
		dummyAt("deposited", time.Now()),
		dummyAt("withdrawn", time.Now().Add(time.Second)),
	}

	q, err := NewQuery(QueryConfig{
		Store:  store,
		Source: Source{Streams: []eventstore.StreamName{"account-1"}},
		Handler: Handlers{All: func(state State, msg eventstore.Message, h *HandlerContext) State {
			h.Stop()
			return state
		}},
	})
	require.NoError(t, err)

	_, err = q.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, q.position["account-1"])
}

func TestQueryRunNeverPersistsStartsFromScratchEveryTime(t *testing.T) {
	store := newFakeStore()
	store.messages["account-1"] = []eventstore.Message{dummyAt("deposited", time.Now())}

	q, err := NewQuery(QueryConfig{
		Store:  store,
		Source: Source{Streams: []eventstore.StreamName{"account-1"}},
		Handler: Handlers{All: func(state State, msg eventstore.Message, h *HandlerContext) State {
			count, _ := state["count"].(int)
			state["count"] = count + 1
			return state
		}},
	})
	require.NoError(t, err)

	first, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first["count"])

	q2, err := NewQuery(QueryConfig{Store: store, Source: Source{Streams: []eventstore.StreamName{"account-1"}}, Handler: q.cfg.Handler})
	require.NoError(t, err)
	second, err := q2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second["count"], "a fresh Query re-reads from position zero rather than continuing")
}

func TestHandlerContextEmitIsUnavailableDuringQuery(t *testing.T) {
	store := newFakeStore()
	store.messages["account-1"] = []eventstore.Message{dummyAt("deposited", time.Now())}

	var emitErr error
	q, err := NewQuery(QueryConfig{
		Store:  store,
		Source: Source{Streams: []eventstore.StreamName{"account-1"}},
		Handler: Handlers{All: func(state State, msg eventstore.Message, h *HandlerContext) State {
			emitErr = h.Emit(context.Background(), msg)
			return state
		}},
	})
	require.NoError(t, err)

	_, err = q.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, eventstore.IsKind(emitErr, eventstore.KindInvalidArgument))
}
