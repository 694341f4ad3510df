package sql

import (
	"context"
	"database/sql"
	"time"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/metadata"
)

// rowScanner is implemented by *sql.Rows; narrowed for testability.
type rowScanner interface {
	Next() bool
	Err() error
	Close() error
	Scan(dest ...interface{}) error
}

// StreamIterator is the lazy, finite, restartable paging iterator over a
// stream table (C5, spec §4.3). It re-executes its select statement in
// batches of batchSize, rebinding the "no" cursor to the last row seen
// each time a batch is exhausted, rather than loading the whole stream
// into memory.
type StreamIterator struct {
	ctx context.Context
	db  Queryer

	// queryFor renders the full SELECT text for a batch of at most limit
	// rows; baseArgs are the matcher-bound parameters, in order, that
	// precede the final "no" cursor parameter appended by fetchBatch.
	queryFor func(limit int) string
	baseArgs []interface{}

	countQuery string
	countArgs  []interface{}

	factory   MessageFactory
	classify  func(error) error
	forward   bool
	batchSize int

	startFrom     int64
	cursor        int64
	originalCount *int64 // nil => unbounded; copied into remaining on construction and Rewind
	remaining     *int64

	rows   rowScanner
	lastNo int64

	// batchLimit/batchSeen track the most recently fetched batch so Next
	// can tell a short (final) batch from one merely exhausted by paging.
	batchLimit int
	batchSeen  int
	exhausted  bool

	curMsg eventstore.Message
	curNo  int64

	closed bool
	err    error
}

// NewStreamIterator constructs a StreamIterator. queryFor must render a
// statement selecting (no, event_id, event_name, payload, metadata,
// created_at) ordered by no ascending (forward) or descending (reverse),
// with baseArgs bound first and the cursor value as the final parameter.
func NewStreamIterator(
	ctx context.Context,
	db Queryer,
	queryFor func(limit int) string,
	baseArgs []interface{},
	countQuery string,
	countArgs []interface{},
	factory MessageFactory,
	classify func(error) error,
	forward bool,
	batchSize int,
	fromNumber int64,
	count *uint,
) *StreamIterator {
	var original *int64
	var remaining *int64
	if count != nil {
		o := int64(*count)
		r := int64(*count)
		original = &o
		remaining = &r
	}

	return &StreamIterator{
		ctx:           ctx,
		db:            db,
		queryFor:      queryFor,
		baseArgs:      baseArgs,
		countQuery:    countQuery,
		countArgs:     countArgs,
		factory:       factory,
		classify:      classify,
		forward:       forward,
		batchSize:     batchSize,
		startFrom:     fromNumber,
		cursor:        fromNumber,
		originalCount: original,
		remaining:     remaining,
	}
}

// Next implements eventstore.EventStream
func (it *StreamIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}

	if it.remaining != nil && *it.remaining <= 0 {
		return false
	}

	if it.rows == nil {
		if it.exhausted {
			return false
		}
		if !it.fetchBatch() {
			return false
		}
	}

	if it.rows.Next() {
		it.batchSeen++
		return it.scanCurrent()
	}

	if err := it.rows.Err(); err != nil {
		it.err = it.classifyErr(err)
		return false
	}
	if err := it.rows.Close(); err != nil {
		it.err = it.classifyErr(err)
		return false
	}
	it.rows = nil

	// A batch shorter than requested means the stream has no more rows.
	if it.batchSeen < it.batchLimit {
		it.exhausted = true
		return false
	}

	if it.forward {
		it.cursor = it.lastNo + 1
	} else {
		it.cursor = it.lastNo - 1
	}
	if !it.fetchBatch() {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = it.classifyErr(err)
		}
		it.exhausted = true
		return false
	}
	it.batchSeen++
	return it.scanCurrent()
}

func (it *StreamIterator) fetchBatch() bool {
	limit := it.batchSize
	if it.remaining != nil && int64(limit) > *it.remaining {
		limit = int(*it.remaining)
	}
	if limit <= 0 {
		return false
	}

	args := make([]interface{}, len(it.baseArgs)+1)
	copy(args, it.baseArgs)
	args[len(args)-1] = it.cursor

	rows, err := it.db.QueryContext(it.ctx, it.queryFor(limit), args...)
	if err != nil {
		it.err = it.classifyErr(err)
		return false
	}
	it.rows = rows
	it.batchLimit = limit
	it.batchSeen = 0
	return true
}

func (it *StreamIterator) classifyErr(err error) error {
	if it.classify != nil {
		return it.classify(err)
	}
	return eventstore.RuntimeError("stream iteration failed", err)
}

func (it *StreamIterator) scanCurrent() bool {
	var (
		no        int64
		id        eventstore.UUID
		name      string
		payload   []byte
		rawMeta   []byte
		createdAt time.Time
	)

	if err := it.rows.Scan(&no, &id, &name, &payload, &rawMeta, &createdAt); err != nil {
		it.err = it.classifyErr(err)
		return false
	}

	it.lastNo = no

	msg, err := it.factory.CreateMessage(id, name, payload, rawMeta, createdAt)
	if err != nil {
		it.err = err
		return false
	}

	if _, ok := msg.Metadata().Value(metadata.FieldPosition); !ok {
		msg = msg.WithMetadata(metadata.FieldPosition, no)
	}

	it.curMsg = msg
	it.curNo = no

	if it.remaining != nil {
		*it.remaining--
	}

	return true
}

// Err implements eventstore.EventStream
func (it *StreamIterator) Err() error {
	return it.err
}

// Close implements eventstore.EventStream
func (it *StreamIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.rows != nil {
		err := it.rows.Close()
		it.rows = nil
		return err
	}
	return nil
}

// Message implements eventstore.EventStream
func (it *StreamIterator) Message() (eventstore.Message, int64, error) {
	if it.err != nil {
		return nil, 0, it.err
	}
	return it.curMsg, it.curNo, nil
}

// Rewind implements eventstore.EventStream: re-executes the original
// select from the iterator's starting position.
func (it *StreamIterator) Rewind() error {
	if err := it.Close(); err != nil {
		return err
	}
	it.closed = false
	it.cursor = it.startFrom
	it.exhausted = false
	it.batchSeen = 0
	it.batchLimit = 0
	it.err = nil
	it.curMsg = nil
	it.curNo = 0
	if it.originalCount != nil {
		r := *it.originalCount
		it.remaining = &r
	}
	return nil
}

// Count implements eventstore.EventStream
func (it *StreamIterator) Count(ctx context.Context) (int64, error) {
	if it.countQuery == "" {
		return 0, nil
	}

	var dbCount int64
	if err := it.db.QueryRowContext(ctx, it.countQuery, it.countArgs...).Scan(&dbCount); err != nil {
		return 0, it.classifyErr(err)
	}

	if it.remaining != nil && *it.remaining < dbCount {
		return *it.remaining, nil
	}
	return dbCount, nil
}

var _ eventstore.EventStream = (*StreamIterator)(nil)

// EmptyStream is a well-behaved zero-row EventStream, returned by
// LoadReverse when the eager count probe (spec §9 "Reverse-iteration
// empty-result shortcut") finds nothing to iterate.
type EmptyStream struct{}

// NewEmptyStream returns an EventStream that yields no rows
func NewEmptyStream() *EmptyStream { return &EmptyStream{} }

func (EmptyStream) Next() bool { return false }
func (EmptyStream) Err() error { return nil }
func (EmptyStream) Close() error { return nil }
func (EmptyStream) Message() (eventstore.Message, int64, error) {
	return nil, 0, nil
}
func (EmptyStream) Rewind() error { return nil }
func (EmptyStream) Count(context.Context) (int64, error) { return 0, nil }

var _ eventstore.EventStream = EmptyStream{}

// sql.Rows satisfies rowScanner
var _ rowScanner = (*sql.Rows)(nil)
