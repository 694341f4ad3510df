package sql

import (
	"context"
	gosql "database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/internal/enginetest"
	"github.com/ledgerflow/eventstore/metadata"
)

type fakeLock struct {
	acquire bool
	err     error
}

func (f fakeLock) Acquire(ctx context.Context, conn LockConn, name string) (bool, error) {
	return f.acquire, f.err
}

func (f fakeLock) Release(ctx context.Context, conn LockConn, name string) (bool, error) {
	return true, nil
}

func newTestEventStore(t *testing.T, opts ...func(*Config)) (*EventStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := Config{
		DB:                  db,
		Dialect:             fakeDialect{},
		PersistenceStrategy: fakeStrategy{},
		WriteLock:           fakeLock{acquire: true},
	}
	for _, o := range opts {
		o(&cfg)
	}

	es, err := NewEventStore(cfg)
	require.NoError(t, err)
	return es, mock
}

func TestNewEventStoreValidatesRequiredFields(t *testing.T) {
	_, err := NewEventStore(Config{})
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))

	db, _, _ := sqlmock.New()
	defer db.Close()
	_, err = NewEventStore(Config{DB: db})
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))
}

func TestNewEventStoreAppliesDefaults(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	es, err := NewEventStore(Config{
		DB:                  db,
		Dialect:             fakeDialect{},
		PersistenceStrategy: fakeStrategy{},
		WriteLock:           fakeLock{acquire: true},
	})
	require.NoError(t, err)
	assert.Equal(t, defaultEventStreamsTable, es.eventStreamsTable)
	assert.Equal(t, defaultLoadBatchSize, es.loadBatchSize)
	assert.NotNil(t, es.logger)
	assert.NotNil(t, es.factory)
}

func TestHasStreamFound(t *testing.T) {
	es, mock := newTestEventStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "event_streams" WHERE real_stream_name = $1`)).
		WithArgs("account-1").
		WillReturnRows(sqlmock.NewRows([]string{"found"}).AddRow(1))

	ok, err := es.HasStream(context.Background(), "account-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasStreamNotFound(t *testing.T) {
	es, mock := newTestEventStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "event_streams" WHERE real_stream_name = $1`)).
		WillReturnError(gosql.ErrNoRows)

	ok, err := es.HasStream(context.Background(), "account-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testMessages() []eventstore.Message {
	return []eventstore.Message{
		enginetest.NewDummyMessage(eventstore.GenerateUUID(), "deposited", map[string]interface{}{"amount": 1}, metadata.New(), time.Now().UTC()),
	}
}

func TestAppendToAcquiresLockAndInserts(t *testing.T) {
	es, mock := newTestEventStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO .+ VALUES`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := es.AppendTo(context.Background(), "account-1", testMessages())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendToLockContentionReturnsConcurrencyError(t *testing.T) {
	es, mock := newTestEventStore(t, func(cfg *Config) { cfg.WriteLock = fakeLock{acquire: false} })

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := es.AppendTo(context.Background(), "account-1", testMessages())
	assert.True(t, eventstore.IsKind(err, eventstore.KindConcurrency))
}

func TestAppendToEmptyEventsIsNoop(t *testing.T) {
	es, mock := newTestEventStore(t)

	err := es.AppendTo(context.Background(), "account-1", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteStreamNotFound(t *testing.T) {
	es, mock := newTestEventStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM .+ WHERE real_stream_name`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := es.Delete(context.Background(), "account-1")
	assert.True(t, eventstore.IsKind(err, eventstore.KindStreamNotFound))
}

func TestDeleteStreamSuccess(t *testing.T) {
	es, mock := newTestEventStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM .+ WHERE real_stream_name`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DROP TABLE IF EXISTS .+`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := es.Delete(context.Background(), "account-1")
	require.NoError(t, err)
}

func TestCreateRejectsDisableTransactionHandling(t *testing.T) {
	es, _ := newTestEventStore(t, func(cfg *Config) { cfg.DisableTransactionHandling = true })

	err := es.Create(context.Background(), "account-1", nil)
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))
}
