package sql

import (
	"context"
	gosql "database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/driver/sql/metrics"
	"github.com/ledgerflow/eventstore/internal/jsonx"
	"github.com/ledgerflow/eventstore/metadata"
)

const defaultLoadBatchSize = 10000
const defaultEventStreamsTable = "event_streams"

// EventStore is the dialect-agnostic core of C6. Every SQL-syntax
// difference between Postgres/MySQL/MariaDB is supplied through Dialect,
// PersistenceStrategy and WriteLockStrategy by the driver/sql/<dialect>
// packages; this type implements create/append/load/delete/metadata/
// enumeration exactly once.
type EventStore struct {
	db       *gosql.DB
	dialect  Dialect
	strategy PersistenceStrategy
	lock     WriteLockStrategy
	factory  MessageFactory
	logger   eventstore.Logger

	eventStreamsTable string
	loadBatchSize     int
	disableTx         bool
}

// Config configures an EventStore. DB, Dialect, PersistenceStrategy and
// WriteLock are required; the rest have defaults (MessageFactory falls
// back to DefaultMessageFactory, §6 "Event-store builder options").
type Config struct {
	DB                         *gosql.DB
	Dialect                    Dialect
	PersistenceStrategy        PersistenceStrategy
	WriteLock                  WriteLockStrategy
	MessageFactory             MessageFactory
	Logger                     eventstore.Logger
	EventStreamsTable          string
	LoadBatchSize              int
	DisableTransactionHandling bool
}

// NewEventStore validates cfg and returns an EventStore
func NewEventStore(cfg Config) (*EventStore, error) {
	switch {
	case cfg.DB == nil:
		return nil, eventstore.InvalidArgumentError("db")
	case cfg.Dialect == nil:
		return nil, eventstore.InvalidArgumentError("dialect")
	case cfg.PersistenceStrategy == nil:
		return nil, eventstore.InvalidArgumentError("persistenceStrategy")
	case cfg.WriteLock == nil:
		return nil, eventstore.InvalidArgumentError("writeLock")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = eventstore.NopLogger
	}

	factory := cfg.MessageFactory
	if factory == nil {
		factory = NewDefaultMessageFactory()
	}

	table := cfg.EventStreamsTable
	if table == "" {
		table = defaultEventStreamsTable
	}

	batchSize := cfg.LoadBatchSize
	if batchSize <= 0 {
		batchSize = defaultLoadBatchSize
	}

	return &EventStore{
		db:                cfg.DB,
		dialect:           cfg.Dialect,
		strategy:          cfg.PersistenceStrategy,
		lock:              cfg.WriteLock,
		factory:           factory,
		logger:            logger,
		eventStreamsTable: table,
		loadBatchSize:     batchSize,
		disableTx:         cfg.DisableTransactionHandling,
	}, nil
}

func (es *EventStore) quotedTable(streamName eventstore.StreamName) (physical string, err error) {
	table, err := es.strategy.GenerateTableName(streamName)
	if err != nil {
		return "", err
	}
	if table == "" {
		return "", eventstore.InvalidArgumentError("streamName")
	}
	return es.dialect.QuoteIdentifier(table), nil
}

// Create implements eventstore.EventStore. disable_transaction_handling
// is rejected here (spec §9 open question): a failed Create must never
// leave the registry row present without its table, and this store
// chooses to guarantee that by always transacting Create rather than
// document a caveat window.
func (es *EventStore) Create(ctx context.Context, streamName eventstore.StreamName, events []eventstore.Message) error {
	if es.disableTx {
		return eventstore.NewError(eventstore.KindInvalidArgument, "disableTransactionHandling is not supported for Create", nil)
	}

	rawTable, err := es.strategy.GenerateTableName(streamName)
	if err != nil {
		return err
	}
	table := es.dialect.QuoteIdentifier(rawTable)

	conn, err := es.db.Conn(ctx)
	if err != nil {
		return eventstore.RuntimeError("failed to acquire connection", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return eventstore.RuntimeError("failed to begin transaction", err)
	}

	if err := es.insertRegistryRow(ctx, tx, streamName, rawTable); err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, stmt := range es.strategy.CreateSchema(rawTable) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			es.cleanupFailedCreate(ctx, streamName, table)
			return eventstore.RuntimeError("failed to create stream schema", err)
		}
	}

	if len(events) > 0 {
		if err := es.appendRows(ctx, conn, tx, table, events); err != nil {
			_ = tx.Rollback()
			es.cleanupFailedCreate(ctx, streamName, table)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		es.cleanupFailedCreate(ctx, streamName, table)
		return eventstore.RuntimeError("failed to commit stream creation", err)
	}

	metrics.RecordStreamCreated(string(streamName))
	return nil
}

func (es *EventStore) insertRegistryRow(ctx context.Context, execer Execer, streamName eventstore.StreamName, rawTable string) error {
	var category interface{}
	if c, ok := streamName.Category(); ok {
		category = c
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (real_stream_name, stream_name, metadata, category) VALUES (%s, %s, %s, %s)`,
		es.dialect.QuoteIdentifier(es.eventStreamsTable),
		es.dialect.Placeholder(1),
		es.dialect.Placeholder(2),
		es.dialect.Placeholder(3),
		es.dialect.Placeholder(4),
	)

	_, err := execer.ExecContext(ctx, query, string(streamName), rawTable, []byte("{}"), category)
	if err != nil {
		if classified := es.dialect.ClassifyError(err); eventstore.IsKind(classified, eventstore.KindConcurrency) {
			return eventstore.StreamExistsError(streamName)
		}
		return eventstore.RuntimeError("failed to register stream", err)
	}
	return nil
}

// cleanupFailedCreate best-effort tears down a partially created stream
// (table and/or registry row) after a rolled-back Create.
func (es *EventStore) cleanupFailedCreate(ctx context.Context, streamName eventstore.StreamName, quotedTable string) {
	if _, err := es.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quotedTable)); err != nil {
		es.logger.WithError(err).WithField("stream", streamName).Warn("failed to drop table during create rollback")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE real_stream_name = %s`, es.dialect.QuoteIdentifier(es.eventStreamsTable), es.dialect.Placeholder(1))
	if _, err := es.db.ExecContext(ctx, query, string(streamName)); err != nil {
		es.logger.WithError(err).WithField("stream", streamName).Warn("failed to remove registry row during create rollback")
	}
}

// AppendTo implements eventstore.EventStore
func (es *EventStore) AppendTo(ctx context.Context, streamName eventstore.StreamName, events []eventstore.Message) error {
	if len(events) == 0 {
		return nil
	}

	table, err := es.quotedTable(streamName)
	if err != nil {
		return err
	}

	conn, err := es.db.Conn(ctx)
	if err != nil {
		return eventstore.RuntimeError("failed to acquire connection", err)
	}
	defer conn.Close()

	var tx *gosql.Tx
	if !es.disableTx {
		tx, err = conn.BeginTx(ctx, nil)
		if err != nil {
			return eventstore.RuntimeError("failed to begin transaction", err)
		}
	}

	if err := es.appendRows(ctx, conn, tx, table, events); err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		return err
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return eventstore.RuntimeError("failed to commit append", err)
		}
	}
	metrics.RecordAppend(string(streamName), len(events))
	return nil
}

// appendRows acquires the stream's write lock, builds and executes the
// multi-row insert, and releases the lock on every exit path (spec
// §4.4 "Releases the lock on all exits"). When tx is nil the statement
// runs directly on conn (disableTransactionHandling).
func (es *EventStore) appendRows(ctx context.Context, conn LockConn, tx *gosql.Tx, quotedTable string, events []eventstore.Message) error {
	lockName := quotedTable + "_write_lock"
	acquired, err := es.lock.Acquire(ctx, conn, lockName)
	if err != nil {
		return eventstore.ConcurrencyError("failed to acquire write lock", err)
	}
	if !acquired {
		metrics.RecordWriteLockContended(quotedTable)
		return eventstore.ConcurrencyError("write lock is held by another process", nil)
	}
	defer func() {
		if _, err := es.lock.Release(ctx, conn, lockName); err != nil {
			es.logger.WithError(err).WithField("lock", lockName).Warn("failed to release write lock")
		}
	}()

	data, err := es.strategy.PrepareData(events)
	if err != nil {
		return err
	}

	columns := es.strategy.ColumnNames()
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		quotedTable,
		quoteColumnList(es.dialect, columns),
		buildInsertPlaceholders(es.dialect, len(events), len(columns)),
	)

	var execer Execer = conn
	if tx != nil {
		execer = tx
	}

	start := time.Now()
	_, err = execer.ExecContext(ctx, query, data...)
	metrics.ObserveAppendLatency(time.Since(start).Seconds())
	if err != nil {
		return es.dialect.ClassifyError(err)
	}

	return nil
}

func quoteColumnList(dialect Dialect, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = dialect.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func buildInsertPlaceholders(dialect Dialect, rowCount, colCount int) string {
	var sb strings.Builder
	n := 0
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 0; c < colCount; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			n++
			sb.WriteString(dialect.Placeholder(n))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// HasStream implements eventstore.ReadOnlyEventStore
func (es *EventStore) HasStream(ctx context.Context, streamName eventstore.StreamName) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE real_stream_name = %s`, es.dialect.QuoteIdentifier(es.eventStreamsTable), es.dialect.Placeholder(1))

	var found int
	err := es.db.QueryRowContext(ctx, query, string(streamName)).Scan(&found)
	if err == gosql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eventstore.RuntimeError("failed to check stream existence", err)
	}
	return true, nil
}

const selectColumns = "no, event_id, event_name, payload, metadata, created_at"

func (es *EventStore) load(ctx context.Context, streamName eventstore.StreamName, fromNumber int64, count *uint, matcher metadata.Matcher, forward bool) (eventstore.EventStream, error) {
	rawTable, err := es.strategy.GenerateTableName(streamName)
	if err != nil {
		return nil, err
	}
	table := es.dialect.QuoteIdentifier(rawTable)

	if !forward && fromNumber <= 0 {
		fromNumber = math.MaxInt64
	}
	if forward && fromNumber <= 0 {
		fromNumber = 1
	}

	conditions, params := matchConditions(es.dialect, es.strategy, matcher, 0)
	cmp := ">="
	order := "ASC"
	if !forward {
		cmp = "<="
		order = "DESC"
	}
	cursorPlaceholder := es.dialect.Placeholder(len(params) + 1)
	conditions = append(conditions, fmt.Sprintf("no %s %s", cmp, cursorPlaceholder))
	whereSQL := strings.Join(conditions, " AND ")

	indexHint := ""
	if hinter, ok := es.strategy.(IndexHinter); ok {
		indexHint = es.dialect.IndexHint(hinter.IndexName())
	}

	queryFor := func(limit int) string {
		return fmt.Sprintf(
			"SELECT %s FROM %s%s WHERE %s ORDER BY no %s LIMIT %d",
			selectColumns, table, indexHint, whereSQL, order, limit,
		)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s WHERE %s", table, indexHint, whereSQL)
	countArgs := append(append([]interface{}{}, params...), fromNumber)

	classify := func(err error) error {
		metrics.RecordLoadError(string(streamName))
		if es.dialect.IsUnknownColumnError(err) {
			return eventstore.UnexpectedValueError("Unknown field given in metadata matcher", err)
		}
		return eventstore.StreamNotFoundError(streamName, err)
	}

	if !forward {
		var dbCount int64
		if err := es.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&dbCount); err != nil {
			return nil, classify(err)
		}
		effective := dbCount
		if count != nil && int64(*count) < effective {
			effective = int64(*count)
		}
		if effective == 0 {
			return NewEmptyStream(), nil
		}
	}

	batchSize := es.loadBatchSize
	if count != nil && int(*count) < batchSize {
		batchSize = int(*count)
	}
	if batchSize <= 0 {
		batchSize = es.loadBatchSize
	}

	iter := NewStreamIterator(
		ctx, es.db, queryFor, params, countQuery, countArgs,
		es.factory, classify, forward, batchSize, fromNumber, count,
	)
	return iter, nil
}

// Load implements eventstore.ReadOnlyEventStore
func (es *EventStore) Load(ctx context.Context, streamName eventstore.StreamName, fromNumber int64, count *uint, matcher metadata.Matcher) (eventstore.EventStream, error) {
	return es.load(ctx, streamName, fromNumber, count, matcher, true)
}

// LoadReverse implements eventstore.ReadOnlyEventStore
func (es *EventStore) LoadReverse(ctx context.Context, streamName eventstore.StreamName, fromNumber int64, count *uint, matcher metadata.Matcher) (eventstore.EventStream, error) {
	return es.load(ctx, streamName, fromNumber, count, matcher, false)
}

// Delete implements eventstore.EventStore
func (es *EventStore) Delete(ctx context.Context, streamName eventstore.StreamName) error {
	table, err := es.quotedTable(streamName)
	if err != nil {
		return err
	}

	var tx *gosql.Tx
	var execer Execer = es.db
	if !es.disableTx {
		tx, err = es.db.BeginTx(ctx, nil)
		if err != nil {
			return eventstore.RuntimeError("failed to begin transaction", err)
		}
		execer = tx
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE real_stream_name = %s`, es.dialect.QuoteIdentifier(es.eventStreamsTable), es.dialect.Placeholder(1))
	result, err := execer.ExecContext(ctx, deleteQuery, string(streamName))
	if err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		return eventstore.RuntimeError("failed to delete stream registry row", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		return eventstore.RuntimeError("failed to determine rows affected", err)
	}
	if rows == 0 {
		if tx != nil {
			_ = tx.Rollback()
		}
		return eventstore.StreamNotFoundError(streamName, nil)
	}

	if _, err := execer.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		return eventstore.RuntimeError("failed to drop stream table", err)
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return eventstore.RuntimeError("failed to commit delete", err)
		}
	}
	metrics.RecordStreamDeleted(string(streamName))
	return nil
}

// FetchStreamMetadata implements eventstore.ReadOnlyEventStore
func (es *EventStore) FetchStreamMetadata(ctx context.Context, streamName eventstore.StreamName) (map[string]interface{}, error) {
	query := fmt.Sprintf(`SELECT metadata FROM %s WHERE real_stream_name = %s`, es.dialect.QuoteIdentifier(es.eventStreamsTable), es.dialect.Placeholder(1))

	var raw []byte
	if err := es.db.QueryRowContext(ctx, query, string(streamName)).Scan(&raw); err != nil {
		if err == gosql.ErrNoRows {
			return nil, eventstore.StreamNotFoundError(streamName, nil)
		}
		return nil, eventstore.RuntimeError("failed to read stream metadata", err)
	}

	m, err := decodeMetadataObject(raw)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to decode stream metadata", err)
	}
	return m, nil
}

// UpdateStreamMetadata implements eventstore.EventStore
func (es *EventStore) UpdateStreamMetadata(ctx context.Context, streamName eventstore.StreamName, meta map[string]interface{}) error {
	encoded, err := encodeMetadataObject(meta)
	if err != nil {
		return eventstore.RuntimeError("failed to encode stream metadata", err)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET metadata = %s WHERE real_stream_name = %s`,
		es.dialect.QuoteIdentifier(es.eventStreamsTable), es.dialect.Placeholder(1), es.dialect.Placeholder(2),
	)
	result, err := es.db.ExecContext(ctx, query, encoded, string(streamName))
	if err != nil {
		return eventstore.RuntimeError("failed to update stream metadata", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return eventstore.RuntimeError("failed to determine rows affected", err)
	}
	if rows == 0 {
		return eventstore.StreamNotFoundError(streamName, nil)
	}
	return nil
}

// FetchStreamNames implements eventstore.ReadOnlyEventStore
func (es *EventStore) FetchStreamNames(ctx context.Context, filter *string, matcher metadata.Matcher, limit, offset uint) ([]eventstore.StreamName, error) {
	return es.fetchNames(ctx, "real_stream_name", filter, "", matcher, limit, offset)
}

// FetchStreamNamesRegex implements eventstore.ReadOnlyEventStore
func (es *EventStore) FetchStreamNamesRegex(ctx context.Context, pattern string, matcher metadata.Matcher, limit, offset uint) ([]eventstore.StreamName, error) {
	if err := validatePattern(es.dialect, pattern); err != nil {
		return nil, err
	}
	return es.fetchNames(ctx, "real_stream_name", nil, pattern, matcher, limit, offset)
}

func (es *EventStore) fetchNames(ctx context.Context, column string, filter *string, regex string, matcher metadata.Matcher, limit, offset uint) ([]eventstore.StreamName, error) {
	conditions, params := matchConditions(es.dialect, es.strategy, matcher, 0)
	n := len(params)
	if filter != nil {
		n++
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, es.dialect.Placeholder(n)))
		params = append(params, *filter)
	} else if regex != "" {
		n++
		conditions = append(conditions, fmt.Sprintf("%s %s %s", column, es.dialect.RegexOperator(), es.dialect.Placeholder(n)))
		params = append(params, regex)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s %s ORDER BY %s LIMIT %d OFFSET %d",
		column, es.dialect.QuoteIdentifier(es.eventStreamsTable), where, column, limit, offset,
	)

	rows, err := es.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to fetch stream names", err)
	}
	defer rows.Close()

	var names []eventstore.StreamName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eventstore.RuntimeError("failed to scan stream name", err)
		}
		names = append(names, eventstore.StreamName(name))
	}
	if err := rows.Err(); err != nil {
		return nil, eventstore.RuntimeError("failed to fetch stream names", err)
	}
	return names, nil
}

// FetchCategoryNames implements eventstore.ReadOnlyEventStore
func (es *EventStore) FetchCategoryNames(ctx context.Context, filter *string, limit, offset uint) ([]string, error) {
	return es.fetchCategories(ctx, filter, "", limit, offset)
}

// FetchCategoryNamesRegex implements eventstore.ReadOnlyEventStore
func (es *EventStore) FetchCategoryNamesRegex(ctx context.Context, pattern string, limit, offset uint) ([]string, error) {
	if err := validatePattern(es.dialect, pattern); err != nil {
		return nil, err
	}
	return es.fetchCategories(ctx, nil, pattern, limit, offset)
}

func (es *EventStore) fetchCategories(ctx context.Context, filter *string, regex string, limit, offset uint) ([]string, error) {
	var conditions []string
	var params []interface{}

	conditions = append(conditions, "category IS NOT NULL")
	if filter != nil {
		conditions = append(conditions, fmt.Sprintf("category = %s", es.dialect.Placeholder(len(params)+1)))
		params = append(params, *filter)
	} else if regex != "" {
		conditions = append(conditions, fmt.Sprintf("category %s %s", es.dialect.RegexOperator(), es.dialect.Placeholder(len(params)+1)))
		params = append(params, regex)
	}

	query := fmt.Sprintf(
		"SELECT category FROM %s WHERE %s GROUP BY category ORDER BY category LIMIT %d OFFSET %d",
		es.dialect.QuoteIdentifier(es.eventStreamsTable), strings.Join(conditions, " AND "), limit, offset,
	)

	rows, err := es.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to fetch category names", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, eventstore.RuntimeError("failed to scan category name", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, eventstore.RuntimeError("failed to fetch category names", err)
	}
	return categories, nil
}

func validatePattern(dialect Dialect, pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return eventstore.InvalidArgumentError("pattern")
	}
	if err := dialect.ValidateRegex(pattern); err != nil {
		return eventstore.InvalidArgumentError("pattern")
	}
	return nil
}

func decodeMetadataObject(raw []byte) (map[string]interface{}, error) {
	return jsonx.DecodeObjectNumberPreserving(raw)
}

func encodeMetadataObject(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	return jsonx.Marshal(m)
}

var _ eventstore.EventStore = (*EventStore)(nil)
