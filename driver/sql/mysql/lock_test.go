package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestNamedLockAcquireSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK\(\?, \?\)`).
		WithArgs("stream-lock", -1).
		WillReturnRows(sqlmock.NewRows([]string{"acquired"}).AddRow(int64(1)))

	l := NewDefaultNamedLock()
	ok, err := l.Acquire(context.Background(), db, "stream-lock")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNamedLockAcquireAlreadyHeldByAnotherSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK\(\?, \?\)`).
		WillReturnRows(sqlmock.NewRows([]string{"acquired"}).AddRow(int64(0)))

	l := NewDefaultNamedLock()
	ok, err := l.Acquire(context.Background(), db, "stream-lock")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNamedLockAcquireDeadlockIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK\(\?, \?\)`).
		WillReturnError(&mysql.MySQLError{Number: 3058, Message: "deadlock"})

	l := NewDefaultNamedLock()
	ok, err := l.Acquire(context.Background(), db, "stream-lock")
	require.NoError(t, err, "deadlock must be reported as a non-acquisition, not an error")
	require.False(t, ok)
}

func TestNamedLockRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT RELEASE_LOCK\(\?\)`).
		WithArgs("stream-lock").
		WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(int64(1)))

	l := NewDefaultNamedLock()
	ok, err := l.Release(context.Background(), db, "stream-lock")
	require.NoError(t, err)
	require.True(t, ok)
}
