package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
)

func newTestManager(t *testing.T) (*ProjectionManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := NewProjectionManager(newFakeStore(), db, fakeDialect{}, "")
	require.NoError(t, err)
	return m, mock
}

func TestNewProjectionManagerValidatesRequiredFields(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	_, err := NewProjectionManager(nil, db, fakeDialect{}, "")
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))

	_, err = NewProjectionManager(newFakeStore(), nil, fakeDialect{}, "")
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))

	_, err = NewProjectionManager(newFakeStore(), db, nil, "")
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))
}

func TestNewProjectionManagerDefaultsProjectionsTable(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	m, err := NewProjectionManager(newFakeStore(), db, fakeDialect{}, "")
	require.NoError(t, err)
	assert.Equal(t, defaultProjectionsTable, m.projectionsTable)
}

func TestProjectionManagerStopProjectionWritesStoppingStatus(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`UPDATE "projections" SET status`).
		WithArgs(string(StatusStopping), "balances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.StopProjection(context.Background(), "balances"))
}

func TestProjectionManagerStopProjectionNotFound(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`UPDATE "projections" SET status`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := m.StopProjection(context.Background(), "balances")
	assert.True(t, eventstore.IsKind(err, eventstore.KindProjectionNotFound))
}

func TestProjectionManagerDeleteProjectionInclEmittedSetsDistinctStatus(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`UPDATE "projections" SET status`).
		WithArgs(string(StatusDeletingInclEmittedEvents), "balances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.DeleteProjection(context.Background(), "balances", true))
}

func TestProjectionManagerFetchProjectionStatus(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`SELECT status FROM "projections"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(StatusIdle)))

	status, err := m.FetchProjectionStatus(context.Background(), "balances")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
}

func TestProjectionManagerFetchProjectionPosition(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`SELECT position FROM "projections"`).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow([]byte(`{"account-1":5}`)))

	pos, err := m.FetchProjectionPosition(context.Background(), "balances")
	require.NoError(t, err)
	assert.EqualValues(t, 5, pos["account-1"])
}

func TestProjectionManagerFetchProjectionState(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`SELECT state FROM "projections"`).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow([]byte(`{"balance":10}`)))

	state, err := m.FetchProjectionState(context.Background(), "balances")
	require.NoError(t, err)
	assert.NotNil(t, state["balance"])
}

func TestProjectionManagerFetchProjectionNamesFiltersByExactMatch(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`SELECT name FROM "projections" WHERE name = \$1`).
		WithArgs("balances").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("balances"))

	name := "balances"
	names, err := m.FetchProjectionNames(context.Background(), &name, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"balances"}, names)
}

func TestProjectionManagerFetchProjectionNamesRegexRejectsEmptyPattern(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.FetchProjectionNamesRegex(context.Background(), "", 10, 0)
	assert.True(t, eventstore.IsKind(err, eventstore.KindInvalidArgument))
}

func TestProjectionManagerFetchProjectionNamesRegexUsesRegexOperator(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`SELECT name FROM "projections" WHERE name ~ \$1`).
		WithArgs("^bal.*").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("balances"))

	names, err := m.FetchProjectionNamesRegex(context.Background(), "^bal.*", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"balances"}, names)
}

func TestProjectionManagerNewProjectorWiresManagerFields(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.NewProjector("balances", Source{All: true},
		Handlers{All: func(s State, msg eventstore.Message, h *HandlerContext) State { return s }}, nil)
	require.NoError(t, err)
	assert.Equal(t, "balances", p.cfg.Name)
	assert.Equal(t, m.projectionsTable, p.cfg.ProjectionsTable)
}
