package sql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerflow/eventstore"
	"github.com/ledgerflow/eventstore/driver/sql/metrics"
	"github.com/ledgerflow/eventstore/internal/jsonx"
)

// Status is a projection's control-plane state (spec §4.6, §6)
type Status string

// The projection statuses recognized by the registry (persisted lowercase)
const (
	StatusIdle                      Status = "idle"
	StatusRunning                   Status = "running"
	StatusStopping                  Status = "stopping"
	StatusDeleting                  Status = "deleting"
	StatusDeletingInclEmittedEvents Status = "deleting_incl_emitted_events"
	StatusResetting                 Status = "resetting"
)

// State is the user-defined, JSON-serializable fold state of a projection
type State = map[string]interface{}

// ReadModel is the external sink a read-model projector folds into in
// addition to (not instead of) the usual position/state checkpoint row
// (spec §4.6: "for read-model projectors, also invokes read_model.persist()
// immediately before the UPDATE"). Projector with a nil ReadModel behaves
// as a plain projector/projector-that-emits.
type ReadModel interface {
	Persist(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Handler folds one event into state. A nil return leaves state unchanged.
type Handler func(state State, msg eventstore.Message, ctx *HandlerContext) State

// Handlers is the tagged All(f)/Named(map) variant the spec requires:
// exactly one of the two must be set (spec §9 "Dynamic mapping handlers").
type Handlers struct {
	All   Handler
	Named map[string]Handler
}

func (h Handlers) validate() error {
	hasAll := h.All != nil
	hasNamed := len(h.Named) > 0
	if hasAll == hasNamed {
		return eventstore.InvalidArgumentError("handlers")
	}
	return nil
}

func (h Handlers) dispatch(state State, msg eventstore.Message, ctx *HandlerContext) State {
	fn := h.All
	if fn == nil {
		var ok bool
		if fn, ok = h.Named[msg.MessageName()]; !ok {
			return state
		}
	}
	if next := fn(state, msg, ctx); next != nil {
		return next
	}
	return state
}

// HandlerContext is the small trait-object-like API (spec §9 "Closures
// rebinding $this") a projector passes to every handler invocation:
// Stop/Emit/LinkTo act on the owning projector; StreamName reports the
// stream the current event came from, and is overwritten before each
// dispatch (spec §9 "Anonymous reference-sharing classes for stream name").
type HandlerContext struct {
	stopped    bool
	streamName eventstore.StreamName
	emit       func(ctx context.Context, msg eventstore.Message) error
	linkTo     func(ctx context.Context, stream eventstore.StreamName, msg eventstore.Message) error
}

// Stop requests that the current run cycle end after this event
func (h *HandlerContext) Stop() { h.stopped = true }

// StreamName returns the stream the event currently being handled came from
func (h *HandlerContext) StreamName() eventstore.StreamName { return h.streamName }

// Emit appends msg to the projection's own emitted stream (emit == LinkTo(name, msg))
func (h *HandlerContext) Emit(ctx context.Context, msg eventstore.Message) error {
	return h.emit(ctx, msg)
}

// LinkTo appends msg to an arbitrary stream, creating it on first use
func (h *HandlerContext) LinkTo(ctx context.Context, stream eventstore.StreamName, msg eventstore.Message) error {
	return h.linkTo(ctx, stream, msg)
}

// Source selects which streams a projector consumes (spec §4.6 step 2)
type Source struct {
	Streams    []eventstore.StreamName
	Categories []string
	All        bool
}

func (s Source) validate() error {
	n := 0
	if len(s.Streams) > 0 {
		n++
	}
	if len(s.Categories) > 0 {
		n++
	}
	if s.All {
		n++
	}
	if n != 1 {
		return eventstore.InvalidArgumentError("source")
	}
	return nil
}

// resolve returns the current set of logical streams this source covers
func (s Source) resolve(ctx context.Context, store eventstore.ReadOnlyEventStore) ([]eventstore.StreamName, error) {
	switch {
	case len(s.Streams) > 0:
		return s.Streams, nil
	case s.All:
		// approximates the source's "NOT LIKE '$%'" system-stream exclusion
		return store.FetchStreamNamesRegex(ctx, "^[^$].*", nil, 1<<20, 0)
	case len(s.Categories) > 0:
		all, err := store.FetchStreamNamesRegex(ctx, "^[^$].*", nil, 1<<20, 0)
		if err != nil {
			return nil, err
		}
		wanted := make(map[string]struct{}, len(s.Categories))
		for _, cat := range s.Categories {
			wanted[cat] = struct{}{}
		}
		var names []eventstore.StreamName
		for _, n := range all {
			if c, ok := n.Category(); ok {
				if _, match := wanted[c]; match {
					names = append(names, n)
				}
			}
		}
		return names, nil
	}
	return nil, nil
}

// ProjectorConfig configures a Projector (spec §6 "Configuration recognized by the projector builder")
type ProjectorConfig struct {
	Name    string
	Store   eventstore.EventStore
	Source  Source
	Handler Handlers

	LockTimeout           time.Duration
	CacheSize             int
	PersistBlockSize      int
	Sleep                 time.Duration
	LoadCount             *uint
	UpdateLockThreshold   time.Duration
	GapDetector           *GapDetector
	TriggerSignalDispatch bool
	SignalDispatch        func(ctx context.Context) bool

	InitCallback func() State

	// ReadModel makes this a read-model projector variant (spec §4.6): its
	// Persist is invoked on every checkpoint and its Reset on reset(),
	// and the lease is left held (status=RUNNING) across cycles that
	// observed at least one event instead of being released to IDLE.
	ReadModel ReadModel

	ProjectionsTable string
	Dialect          Dialect
	DB               DB
}

const (
	defaultLockTimeout         = 1 * time.Second
	defaultCacheSize           = 100
	defaultPersistBlockSize    = 1000
	defaultSleep               = 100 * time.Millisecond
	defaultUpdateLockThreshold = 0
	defaultProjectionsTable    = "projections"
)

// Projector is the cooperative single-writer scheduler of C9: it merges
// its source streams in global order, dispatches to Handler, checkpoints
// position/state into the projections table under a time-bounded lease,
// and reacts to external STOP/RESET/DELETE commands observed on the
// registry row (spec §4.6).
type Projector struct {
	cfg ProjectorConfig

	position map[eventstore.StreamName]int64
	state    State

	lastLockUpdate *time.Time
	emittedCache   *lruCache

	isStopped      bool
	observedEvents bool
}

// NewProjector validates cfg, applies defaults, and returns a Projector
func NewProjector(cfg ProjectorConfig) (*Projector, error) {
	if cfg.Name == "" {
		return nil, eventstore.InvalidArgumentError("name")
	}
	if cfg.Store == nil {
		return nil, eventstore.InvalidArgumentError("store")
	}
	if cfg.Dialect == nil {
		return nil, eventstore.InvalidArgumentError("dialect")
	}
	if cfg.DB == nil {
		return nil, eventstore.InvalidArgumentError("db")
	}
	if err := cfg.Source.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Handler.validate(); err != nil {
		return nil, err
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.PersistBlockSize <= 0 {
		cfg.PersistBlockSize = defaultPersistBlockSize
	}
	if cfg.Sleep <= 0 {
		cfg.Sleep = defaultSleep
	}
	if cfg.ProjectionsTable == "" {
		cfg.ProjectionsTable = defaultProjectionsTable
	}

	return &Projector{
		cfg:          cfg,
		position:     map[eventstore.StreamName]int64{},
		state:        State{},
		emittedCache: newLRUCache(cfg.CacheSize),
	}, nil
}

// Run executes the projection loop. With keepRunning=false it performs a
// single pass and returns (spec §5 "Cancellation").
func (p *Projector) Run(ctx context.Context, keepRunning bool) error {
	if err := p.ensureRegistryRow(ctx); err != nil {
		return err
	}

	status, err := p.fetchStatus(ctx)
	if err != nil {
		return err
	}
	if handled, err := p.handleControlStatus(ctx, status); handled {
		return err
	}

	if err := p.acquireLease(ctx); err != nil {
		return err
	}
	defer p.releaseLease(ctx)

	if err := p.loadPersisted(ctx); err != nil {
		return err
	}

	p.isStopped = false
	p.observedEvents = false
	for {
		if err := p.runCycle(ctx); err != nil {
			return err
		}

		if !keepRunning || p.isStopped {
			return nil
		}

		status, err := p.fetchStatus(ctx)
		if err != nil {
			return err
		}
		switch status {
		case StatusStopping:
			return nil
		case StatusDeleting, StatusDeletingInclEmittedEvents:
			return p.applyDelete(ctx, status == StatusDeletingInclEmittedEvents)
		case StatusResetting:
			if err := p.applyReset(ctx); err != nil {
				return err
			}
			if err := p.startAgain(ctx); err != nil {
				return err
			}
		}
	}
}

// handleControlStatus honors a STOPPING/RESETTING/DELETING status seen
// before the lease is even acquired (spec §4.6 "honors STOPPING/RESETTING/
// DELETING immediately"). handled is true when Run should return now.
func (p *Projector) handleControlStatus(ctx context.Context, status Status) (handled bool, err error) {
	switch status {
	case StatusDeleting:
		return true, p.applyDelete(ctx, false)
	case StatusDeletingInclEmittedEvents:
		return true, p.applyDelete(ctx, true)
	case StatusResetting:
		return true, p.applyReset(ctx)
	case StatusStopping:
		return true, p.setStatus(ctx, StatusIdle)
	}
	return false, nil
}

// runCycle executes one merge-and-dispatch pass over the current source
// streams (spec §4.6 steps 2-5).
func (p *Projector) runCycle(ctx context.Context) error {
	metrics.RecordProjectionCycle(p.cfg.Name)

	streams, err := p.cfg.Source.resolve(ctx, p.cfg.Store)
	if err != nil {
		return err
	}

	iters := map[eventstore.StreamName]eventstore.EventStream{}
	for _, name := range streams {
		from, ok := p.position[name]
		if !ok {
			from = 0
			p.position[name] = 0
		}
		iter, err := p.cfg.Store.Load(ctx, name, from+1, p.cfg.LoadCount, nil)
		if err != nil {
			if eventstore.IsKind(err, eventstore.KindStreamNotFound) {
				continue // spec §7: skip streams deleted mid-cycle
			}
			return err
		}
		iters[name] = iter
	}

	merged := NewMergedStream(iters)
	defer merged.Close()

	eventsConsumed := 0
	sinceCheckpoint := 0
	gapHit := false

	for merged.Next() {
		msg, stream, no, err := merged.Message()
		if err != nil {
			return err
		}

		if p.cfg.TriggerSignalDispatch && p.cfg.SignalDispatch != nil {
			if !p.cfg.SignalDispatch(ctx) {
				p.isStopped = true
				break
			}
		}

		if p.cfg.GapDetector != nil {
			prev := p.position[stream]
			if p.cfg.GapDetector.IsGap(prev, no) && p.cfg.GapDetector.ShouldRetry(time.Now(), msg.CreatedAt()) {
				gapHit = true
				metrics.RecordProjectionGapDetected(p.cfg.Name)
				break
			}
		}

		p.position[stream] = no
		eventsConsumed++
		sinceCheckpoint++
		p.observedEvents = true
		metrics.SetProjectionPosition(p.cfg.Name, string(stream), no)

		hctx := &HandlerContext{streamName: stream, emit: p.emit, linkTo: p.linkTo}
		p.state = p.cfg.Handler.dispatch(p.state, msg, hctx)
		if hctx.stopped {
			p.isStopped = true
		}

		if sinceCheckpoint >= p.cfg.PersistBlockSize {
			if err := p.persist(ctx); err != nil {
				return err
			}
			sinceCheckpoint = 0
			status, err := p.fetchStatus(ctx)
			if err != nil {
				return err
			}
			if status != StatusRunning {
				p.isStopped = true
			}
		}

		if p.isStopped {
			break
		}
	}
	if err := merged.Err(); err != nil {
		return err
	}
	if eventsConsumed > 0 {
		metrics.RecordProjectionEventsHandled(p.cfg.Name, eventsConsumed)
	}

	if gapHit {
		time.Sleep(p.cfg.GapDetector.SleepDuration())
		p.cfg.GapDetector.TrackRetry()
		return p.persist(ctx)
	}

	if p.cfg.GapDetector != nil {
		p.cfg.GapDetector.ResetRetries()
	}

	if eventsConsumed == 0 {
		time.Sleep(p.cfg.Sleep)
		return p.updateLock(ctx)
	}
	return p.persist(ctx)
}

func (p *Projector) emit(ctx context.Context, msg eventstore.Message) error {
	return p.linkTo(ctx, eventstore.StreamName(p.cfg.Name), msg)
}

func (p *Projector) linkTo(ctx context.Context, stream eventstore.StreamName, msg eventstore.Message) error {
	if !p.emittedCache.Contains(string(stream)) {
		exists, err := p.cfg.Store.HasStream(ctx, stream)
		if err != nil {
			return err
		}
		if !exists {
			if err := p.cfg.Store.Create(ctx, stream, nil); err != nil {
				return err
			}
		}
		p.emittedCache.Add(string(stream))
	}
	return p.cfg.Store.AppendTo(ctx, stream, []eventstore.Message{msg})
}

func (p *Projector) ensureRegistryRow(ctx context.Context) error {
	emptyPos, _ := jsonx.Marshal(map[string]interface{}{})
	emptyState, _ := jsonx.Marshal(map[string]interface{}{})

	query := fmt.Sprintf(
		`INSERT INTO %s (name, position, state, status, locked_until) VALUES (%s, %s, %s, %s, NULL)`,
		p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable),
		p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2), p.cfg.Dialect.Placeholder(3), p.cfg.Dialect.Placeholder(4),
	)
	_, err := p.cfg.DB.ExecContext(ctx, query, p.cfg.Name, emptyPos, emptyState, string(StatusIdle))
	if err != nil {
		classified := p.cfg.Dialect.ClassifyError(err)
		if eventstore.IsKind(classified, eventstore.KindConcurrency) {
			return nil // registry row already exists
		}
		return eventstore.RuntimeError("failed to create projection registry row", err)
	}
	return nil
}

func (p *Projector) fetchStatus(ctx context.Context) (Status, error) {
	query := fmt.Sprintf(`SELECT status FROM %s WHERE name = %s`, p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable), p.cfg.Dialect.Placeholder(1))
	var status string
	if err := p.cfg.DB.QueryRowContext(ctx, query, p.cfg.Name).Scan(&status); err != nil {
		return "", eventstore.ProjectionNotFoundError(p.cfg.Name)
	}
	return Status(status), nil
}

func (p *Projector) setStatus(ctx context.Context, status Status) error {
	query := fmt.Sprintf(`UPDATE %s SET status = %s WHERE name = %s`, p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable), p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2))
	_, err := p.cfg.DB.ExecContext(ctx, query, string(status), p.cfg.Name)
	if err != nil {
		return eventstore.RuntimeError("failed to update projection status", err)
	}
	return nil
}

// acquireLease implements spec §4.6 step 1
func (p *Projector) acquireLease(ctx context.Context) error {
	now := time.Now().UTC()
	until := now.Add(p.cfg.LockTimeout)

	query := fmt.Sprintf(
		`UPDATE %s SET locked_until = %s, status = %s WHERE name = %s AND (locked_until IS NULL OR locked_until < %s)`,
		p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable),
		p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2), p.cfg.Dialect.Placeholder(3), p.cfg.Dialect.Placeholder(4),
	)
	result, err := p.cfg.DB.ExecContext(ctx, query, until, string(StatusRunning), p.cfg.Name, now)
	if err != nil {
		return eventstore.RuntimeError("failed to acquire projection lease", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return eventstore.RuntimeError("failed to determine rows affected", err)
	}
	if rows != 1 {
		return eventstore.RuntimeError("another projection process is already running", nil)
	}
	p.lastLockUpdate = &now
	return nil
}

// updateLock implements spec §4.6 "update_lock()"
func (p *Projector) updateLock(ctx context.Context) error {
	now := time.Now().UTC()
	if p.lastLockUpdate != nil && p.lastLockUpdate.Add(p.cfg.UpdateLockThreshold).After(now) {
		return nil
	}

	until := now.Add(p.cfg.LockTimeout)
	query := fmt.Sprintf(`UPDATE %s SET locked_until = %s WHERE name = %s`, p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable), p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2))
	result, err := p.cfg.DB.ExecContext(ctx, query, until, p.cfg.Name)
	if err != nil {
		return eventstore.RuntimeError("failed to renew projection lease", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return eventstore.RuntimeError("failed to determine rows affected", err)
	}
	if rows != 1 {
		return eventstore.RuntimeError("projection lease was lost", nil)
	}
	p.lastLockUpdate = &now
	return nil
}

// persist implements spec §4.6 "persist()"
func (p *Projector) persist(ctx context.Context) error {
	if p.cfg.ReadModel != nil {
		if err := p.cfg.ReadModel.Persist(ctx); err != nil {
			return err
		}
	}

	positionRaw, err := encodePositions(p.position)
	if err != nil {
		return eventstore.RuntimeError("failed to encode projection position", err)
	}
	stateRaw, err := jsonx.Marshal(p.state)
	if err != nil {
		return eventstore.RuntimeError("failed to encode projection state", err)
	}

	now := time.Now().UTC()
	until := now.Add(p.cfg.LockTimeout)
	query := fmt.Sprintf(
		`UPDATE %s SET position = %s, state = %s, locked_until = %s WHERE name = %s`,
		p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable),
		p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2), p.cfg.Dialect.Placeholder(3), p.cfg.Dialect.Placeholder(4),
	)
	if _, err := p.cfg.DB.ExecContext(ctx, query, positionRaw, stateRaw, until, p.cfg.Name); err != nil {
		return eventstore.RuntimeError("failed to persist projection checkpoint", err)
	}
	p.lastLockUpdate = &now
	return nil
}

func (p *Projector) loadPersisted(ctx context.Context) error {
	query := fmt.Sprintf(`SELECT position, state FROM %s WHERE name = %s`, p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable), p.cfg.Dialect.Placeholder(1))
	var positionRaw, stateRaw []byte
	if err := p.cfg.DB.QueryRowContext(ctx, query, p.cfg.Name).Scan(&positionRaw, &stateRaw); err != nil {
		return eventstore.ProjectionNotFoundError(p.cfg.Name)
	}

	positions, err := decodePositions(positionRaw)
	if err != nil {
		return eventstore.RuntimeError("failed to decode projection position", err)
	}
	for name, no := range positions {
		p.position[name] = no
	}

	state, err := decodeMetadataObject(stateRaw)
	if err != nil {
		return eventstore.RuntimeError("failed to decode projection state", err)
	}
	p.state = state
	return nil
}

// releaseLease implements spec §4.6 step 7 "finally releases the lease...
// unless read-model projector observed events this cycle, in which case
// leave as RUNNING".
func (p *Projector) releaseLease(ctx context.Context) {
	if p.cfg.ReadModel != nil && p.observedEvents && !p.isStopped {
		return
	}

	query := fmt.Sprintf(`UPDATE %s SET locked_until = NULL, status = %s WHERE name = %s`, p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable), p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2))
	if _, err := p.cfg.DB.ExecContext(ctx, query, string(StatusIdle), p.cfg.Name); err != nil {
		// Best-effort: a failed release just leaves the lease to expire naturally.
		_ = err
	}
}

// applyReset implements spec §4.6 "reset() -> clears position, state"
func (p *Projector) applyReset(ctx context.Context) error {
	p.position = map[eventstore.StreamName]int64{}
	if p.cfg.InitCallback != nil {
		p.state = p.cfg.InitCallback()
	} else {
		p.state = State{}
	}

	emptyPos, _ := jsonx.Marshal(map[string]interface{}{})
	emptyState, _ := jsonx.Marshal(p.state)
	query := fmt.Sprintf(
		`UPDATE %s SET position = %s, state = %s, status = %s, locked_until = NULL WHERE name = %s`,
		p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable),
		p.cfg.Dialect.Placeholder(1), p.cfg.Dialect.Placeholder(2), p.cfg.Dialect.Placeholder(3), p.cfg.Dialect.Placeholder(4),
	)
	if _, err := p.cfg.DB.ExecContext(ctx, query, emptyPos, emptyState, string(StatusIdle), p.cfg.Name); err != nil {
		return eventstore.RuntimeError("failed to reset projection", err)
	}

	if p.cfg.ReadModel != nil {
		if err := p.cfg.ReadModel.Reset(ctx); err != nil {
			return err
		}
	} else {
		emittedStream := eventstore.StreamName(p.cfg.Name)
		if exists, err := p.cfg.Store.HasStream(ctx, emittedStream); err == nil && exists {
			_ = p.cfg.Store.Delete(ctx, emittedStream)
		}
	}
	p.emittedCache = newLRUCache(p.cfg.CacheSize)
	return nil
}

// applyDelete implements spec §4.6 "delete(delete_emitted)"
func (p *Projector) applyDelete(ctx context.Context, deleteEmitted bool) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = %s`, p.cfg.Dialect.QuoteIdentifier(p.cfg.ProjectionsTable), p.cfg.Dialect.Placeholder(1))
	if _, err := p.cfg.DB.ExecContext(ctx, query, p.cfg.Name); err != nil {
		return eventstore.RuntimeError("failed to delete projection", err)
	}

	if deleteEmitted {
		emittedStream := eventstore.StreamName(p.cfg.Name)
		if exists, err := p.cfg.Store.HasStream(ctx, emittedStream); err == nil && exists {
			_ = p.cfg.Store.Delete(ctx, emittedStream)
		}
	}

	p.position = map[eventstore.StreamName]int64{}
	p.state = State{}
	p.isStopped = true
	return nil
}

// startAgain implements spec §4.6 step 6 "on RESETTING while keep_running, start_again()"
func (p *Projector) startAgain(ctx context.Context) error {
	if err := p.acquireLease(ctx); err != nil {
		return err
	}
	return p.loadPersisted(ctx)
}

func encodePositions(positions map[eventstore.StreamName]int64) ([]byte, error) {
	m := make(map[string]interface{}, len(positions))
	for name, no := range positions {
		m[string(name)] = no
	}
	return jsonx.Marshal(m)
}

func decodePositions(raw []byte) (map[eventstore.StreamName]int64, error) {
	m, err := decodeMetadataObject(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[eventstore.StreamName]int64, len(m))
	for name, v := range m {
		switch n := v.(type) {
		case json.Number:
			i, _ := n.Int64()
			out[eventstore.StreamName(name)] = i
		case float64:
			out[eventstore.StreamName(name)] = int64(n)
		case int64:
			out[eventstore.StreamName(name)] = n
		default:
			out[eventstore.StreamName(name)] = 0
		}
	}
	return out, nil
}
