package sql

import (
	"context"

	"github.com/ledgerflow/eventstore"
)

// QueryConfig configures a Query (C9b, spec §4.6 "Query variant"): a
// projection with no locking, no persistence, and no emission. Emit/
// LinkTo are unavailable to its handlers since there is no registry row
// backing a lease to hold while appending.
type QueryConfig struct {
	Store   eventstore.ReadOnlyEventStore
	Source  Source
	Handler Handlers
	// LoadCount caps events loaded per stream, same as ProjectorConfig.LoadCount.
	LoadCount *uint
}

// Query runs a merged-stream fold to completion (or until a handler calls
// Stop) and returns only the final in-memory state: no position/state is
// ever persisted, so a Query always starts from scratch.
type Query struct {
	cfg      QueryConfig
	position map[eventstore.StreamName]int64
	state    State
	stopped  bool
}

// NewQuery validates cfg and returns a Query
func NewQuery(cfg QueryConfig) (*Query, error) {
	if cfg.Store == nil {
		return nil, eventstore.InvalidArgumentError("store")
	}
	if err := cfg.Source.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Handler.validate(); err != nil {
		return nil, err
	}
	return &Query{cfg: cfg, position: map[eventstore.StreamName]int64{}, state: State{}}, nil
}

// Run resolves the source streams once, folds every event through Handler
// in merged global order, and returns the final state.
func (q *Query) Run(ctx context.Context) (State, error) {
	streams, err := q.cfg.Source.resolve(ctx, q.cfg.Store)
	if err != nil {
		return nil, err
	}

	iters := map[eventstore.StreamName]eventstore.EventStream{}
	for _, name := range streams {
		iter, err := q.cfg.Store.Load(ctx, name, 1, q.cfg.LoadCount, nil)
		if err != nil {
			if eventstore.IsKind(err, eventstore.KindStreamNotFound) {
				continue
			}
			return nil, err
		}
		iters[name] = iter
	}

	merged := NewMergedStream(iters)
	defer merged.Close()

	for !q.stopped && merged.Next() {
		msg, stream, no, err := merged.Message()
		if err != nil {
			return nil, err
		}
		q.position[stream] = no

		hctx := &HandlerContext{
			streamName: stream,
			emit:       func(context.Context, eventstore.Message) error { return errQueryCannotEmit },
			linkTo:     func(context.Context, eventstore.StreamName, eventstore.Message) error { return errQueryCannotEmit },
		}
		q.state = q.cfg.Handler.dispatch(q.state, msg, hctx)
		if hctx.stopped {
			q.stopped = true
		}
	}
	if err := merged.Err(); err != nil {
		return nil, err
	}

	return q.state, nil
}

// Stop requests the current Run loop end after the in-flight event
func (q *Query) Stop() { q.stopped = true }

var errQueryCannotEmit = eventstore.NewError(eventstore.KindInvalidArgument, "a query cannot emit or link_to events", nil)
