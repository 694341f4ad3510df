package sql

import (
	"context"
	"fmt"

	"github.com/ledgerflow/eventstore"
)

// ProjectionManager is thin CRUD over the projections registry (C10, spec
// §4.7): it does not run projectors itself, only creates them and reads/
// mutates their registry rows. It takes the Store/DB/Dialect triple a
// Projector needs; the store may be any eventstore.EventStore, which is
// neither checked against the dialect nor unwrapped from decorators.
type ProjectionManager struct {
	store            eventstore.EventStore
	db               DB
	dialect          Dialect
	projectionsTable string
}

// NewProjectionManager builds a ProjectionManager over a concrete dialect wiring
func NewProjectionManager(store eventstore.EventStore, db DB, dialect Dialect, projectionsTable string) (*ProjectionManager, error) {
	if store == nil {
		return nil, eventstore.InvalidArgumentError("store")
	}
	if db == nil {
		return nil, eventstore.InvalidArgumentError("db")
	}
	if dialect == nil {
		return nil, eventstore.InvalidArgumentError("dialect")
	}
	if projectionsTable == "" {
		projectionsTable = defaultProjectionsTable
	}
	return &ProjectionManager{store: store, db: db, dialect: dialect, projectionsTable: projectionsTable}, nil
}

// NewProjector builds a Projector registered under this manager's store/DB/dialect
func (m *ProjectionManager) NewProjector(name string, source Source, handlers Handlers, opts func(*ProjectorConfig)) (*Projector, error) {
	cfg := ProjectorConfig{
		Name:             name,
		Store:            m.store,
		Source:           source,
		Handler:          handlers,
		Dialect:          m.dialect,
		DB:               m.db,
		ProjectionsTable: m.projectionsTable,
	}
	if opts != nil {
		opts(&cfg)
	}
	return NewProjector(cfg)
}

// StopProjection writes status=stopping; the running projector observes
// it on its next polling cycle (spec §4.6 "External control").
func (m *ProjectionManager) StopProjection(ctx context.Context, name string) error {
	return m.setStatus(ctx, name, StatusStopping)
}

// ResetProjection writes status=resetting
func (m *ProjectionManager) ResetProjection(ctx context.Context, name string) error {
	return m.setStatus(ctx, name, StatusResetting)
}

// DeleteProjection writes status=deleting or deleting_incl_emitted_events
func (m *ProjectionManager) DeleteProjection(ctx context.Context, name string, deleteEmittedEvents bool) error {
	status := StatusDeleting
	if deleteEmittedEvents {
		status = StatusDeletingInclEmittedEvents
	}
	return m.setStatus(ctx, name, status)
}

func (m *ProjectionManager) setStatus(ctx context.Context, name string, status Status) error {
	query := fmt.Sprintf(`UPDATE %s SET status = %s WHERE name = %s`, m.dialect.QuoteIdentifier(m.projectionsTable), m.dialect.Placeholder(1), m.dialect.Placeholder(2))
	result, err := m.db.ExecContext(ctx, query, string(status), name)
	if err != nil {
		return eventstore.RuntimeError("failed to update projection status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return eventstore.RuntimeError("failed to determine rows affected", err)
	}
	if rows == 0 {
		return eventstore.ProjectionNotFoundError(name)
	}
	return nil
}

// FetchProjectionStatus returns the current status of a registered projection
func (m *ProjectionManager) FetchProjectionStatus(ctx context.Context, name string) (Status, error) {
	query := fmt.Sprintf(`SELECT status FROM %s WHERE name = %s`, m.dialect.QuoteIdentifier(m.projectionsTable), m.dialect.Placeholder(1))
	var status string
	if err := m.db.QueryRowContext(ctx, query, name).Scan(&status); err != nil {
		return "", eventstore.ProjectionNotFoundError(name)
	}
	return Status(status), nil
}

// FetchProjectionPosition returns the persisted stream->no position map
func (m *ProjectionManager) FetchProjectionPosition(ctx context.Context, name string) (map[eventstore.StreamName]int64, error) {
	query := fmt.Sprintf(`SELECT position FROM %s WHERE name = %s`, m.dialect.QuoteIdentifier(m.projectionsTable), m.dialect.Placeholder(1))
	var raw []byte
	if err := m.db.QueryRowContext(ctx, query, name).Scan(&raw); err != nil {
		return nil, eventstore.ProjectionNotFoundError(name)
	}
	return decodePositions(raw)
}

// FetchProjectionState returns the persisted, decoded fold state
func (m *ProjectionManager) FetchProjectionState(ctx context.Context, name string) (State, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE name = %s`, m.dialect.QuoteIdentifier(m.projectionsTable), m.dialect.Placeholder(1))
	var raw []byte
	if err := m.db.QueryRowContext(ctx, query, name).Scan(&raw); err != nil {
		return nil, eventstore.ProjectionNotFoundError(name)
	}
	return decodeMetadataObject(raw)
}

// FetchProjectionNames returns a page of registered projection names,
// filtered by exact match or left unfiltered when filter is nil.
func (m *ProjectionManager) FetchProjectionNames(ctx context.Context, filter *string, limit, offset uint) ([]string, error) {
	return m.fetchNames(ctx, filter, "", limit, offset)
}

// FetchProjectionNamesRegex returns a page of registered projection names
// matching pattern, validated client-side first (spec §4.7, §8 scenario 6).
func (m *ProjectionManager) FetchProjectionNamesRegex(ctx context.Context, pattern string, limit, offset uint) ([]string, error) {
	if err := validatePattern(m.dialect, pattern); err != nil {
		return nil, err
	}
	return m.fetchNames(ctx, nil, pattern, limit, offset)
}

func (m *ProjectionManager) fetchNames(ctx context.Context, filter *string, regex string, limit, offset uint) ([]string, error) {
	where := ""
	var params []interface{}
	if filter != nil {
		where = fmt.Sprintf("WHERE name = %s", m.dialect.Placeholder(1))
		params = append(params, *filter)
	} else if regex != "" {
		where = fmt.Sprintf("WHERE name %s %s", m.dialect.RegexOperator(), m.dialect.Placeholder(1))
		params = append(params, regex)
	}

	query := fmt.Sprintf(
		"SELECT name FROM %s %s ORDER BY name LIMIT %d OFFSET %d",
		m.dialect.QuoteIdentifier(m.projectionsTable), where, limit, offset,
	)
	rows, err := m.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to fetch projection names", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eventstore.RuntimeError("failed to scan projection name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, eventstore.RuntimeError("failed to fetch projection names", err)
	}
	return names, nil
}
