package sql

import (
	"container/heap"

	"github.com/ledgerflow/eventstore"
)

// MergedStream is the interface a projector consumes (C7, spec §4.6): an
// N-way merge of per-stream iterators in ascending (created_at, no)
// order, with per-event access to the stream the event came from.
type MergedStream interface {
	Next() bool
	Err() error
	Close() error
	// Message returns the current message, the name of the stream it
	// came from, and its position (no) within that stream.
	Message() (msg eventstore.Message, stream eventstore.StreamName, no int64, err error)
}

type mergedStreamHead struct {
	stream eventstore.StreamName
	iter   eventstore.EventStream
	msg    eventstore.Message
	no     int64
}

// mergedStreamHeap orders heads by (created_at, no) ascending
type mergedStreamHeap []*mergedStreamHead

func (h mergedStreamHeap) Len() int { return len(h) }
func (h mergedStreamHeap) Less(i, j int) bool {
	ti, tj := h[i].msg.CreatedAt(), h[j].msg.CreatedAt()
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return h[i].no < h[j].no
}
func (h mergedStreamHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergedStreamHeap) Push(x interface{}) {
	*h = append(*h, x.(*mergedStreamHead))
}
func (h *mergedStreamHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergedStream implements MergedStream over a fixed set of named
// per-stream iterators (spec §4.6 step 4: "Construct a merged iterator
// that returns events in ascending (created_at, no) order").
type mergedStream struct {
	heap    mergedStreamHeap
	current *mergedStreamHead
	curMsg  eventstore.Message
	curName eventstore.StreamName
	curNo   int64
	err     error
}

// NewMergedStream primes and merges iters, a map of stream name to an
// already-open (and already-advanced-past-position) EventStream. Streams
// that error on their very first Next() with *eventstore.Error of kind
// stream-not-found are skipped (the stream may have been deleted
// mid-cycle, spec §7 "the projection loop catches stream-not-found").
func NewMergedStream(iters map[eventstore.StreamName]eventstore.EventStream) MergedStream {
	m := &mergedStream{}
	for name, iter := range iters {
		if !iter.Next() {
			if err := iter.Err(); err != nil {
				if !isStreamNotFound(err) {
					m.err = err
				}
				continue
			}
			continue
		}
		msg, no, err := iter.Message()
		if err != nil {
			m.err = err
			continue
		}
		heap.Push(&m.heap, &mergedStreamHead{stream: name, iter: iter, msg: msg, no: no})
	}
	heap.Init(&m.heap)
	return m
}

func isStreamNotFound(err error) bool {
	e, ok := err.(*eventstore.Error)
	return ok && e.Kind == eventstore.KindStreamNotFound
}

// Next implements MergedStream
func (m *mergedStream) Next() bool {
	if m.err != nil {
		return false
	}
	if m.heap.Len() == 0 {
		return false
	}

	head := heap.Pop(&m.heap).(*mergedStreamHead)
	m.current = head
	m.curMsg = head.msg
	m.curName = head.stream
	m.curNo = head.no

	if head.iter.Next() {
		msg, no, err := head.iter.Message()
		if err != nil {
			m.err = err
			return true // the popped head is still valid to report
		}
		head.msg = msg
		head.no = no
		heap.Push(&m.heap, head)
		return true
	}
	if err := head.iter.Err(); err != nil && !isStreamNotFound(err) {
		m.err = err
	}
	return true
}

// Err implements MergedStream
func (m *mergedStream) Err() error { return m.err }

// Close closes every remaining underlying iterator
func (m *mergedStream) Close() error {
	var firstErr error
	if m.current != nil {
		if err := m.current.iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, head := range m.heap {
		if err := head.iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Message implements MergedStream
func (m *mergedStream) Message() (eventstore.Message, eventstore.StreamName, int64, error) {
	if m.current == nil {
		return nil, "", 0, nil
	}
	return m.curMsg, m.curName, m.curNo, nil
}
