// Package aggregate provides the minimal event-sourced aggregate root
// helper used by client code of the store (not part of the hard core,
// spec §1 — the "outer message-envelope type" is an external
// collaborator; this is one idiomatic shape for it).
package aggregate

import (
	"github.com/google/uuid"

	"github.com/ledgerflow/eventstore"
)

// ID identifies an aggregate instance
type ID = uuid.UUID

// GenerateID returns a new random aggregate identifier
func GenerateID() ID {
	return uuid.New()
}

// Changed is a single recorded state transition of an aggregate: its
// payload, the version it was recorded at, and the aggregate it belongs to.
type Changed struct {
	aggregateID ID
	version     uint
	payload     interface{}
}

// AggregateID returns the id of the aggregate the change belongs to
func (c *Changed) AggregateID() ID { return c.aggregateID }

// Version returns the version this change was recorded at
func (c *Changed) Version() uint { return c.version }

// Payload returns the domain event payload
func (c *Changed) Payload() interface{} { return c.payload }

// Root is the behavior an event-sourced aggregate must provide so that
// RecordChange can version and apply its own events.
type Root interface {
	// AggregateID returns the aggregate's identifier
	AggregateID() ID
	// Apply mutates the aggregate's state in response to a recorded change
	Apply(change *Changed)
}

// BaseRoot tracks recorded-but-not-yet-persisted changes and the
// aggregate's current version; embed it in a concrete Root.
type BaseRoot struct {
	version        uint
	recordedEvents []*Changed
}

// Version returns the aggregate's current version
func (r *BaseRoot) Version() uint { return r.version }

// RecordedEvents returns the changes recorded since the last call to ReleaseEvents
func (r *BaseRoot) RecordedEvents() []*Changed {
	return r.recordedEvents
}

// ReleaseEvents returns the recorded changes and clears them, for handing
// off to AppendTo after a successful command.
func (r *BaseRoot) ReleaseEvents() []*Changed {
	events := r.recordedEvents
	r.recordedEvents = nil
	return events
}

// RecordChange versions and applies a new change to root, and queues it
// for release via ReleaseEvents.
func RecordChange(root Root, payload interface{}) error {
	base, ok := root.(interface{ base() *BaseRoot })
	if !ok {
		return eventstore.InvalidArgumentError("root")
	}

	b := base.base()
	change := &Changed{
		aggregateID: root.AggregateID(),
		version:     b.version + 1,
		payload:     payload,
	}

	b.version = change.version
	b.recordedEvents = append(b.recordedEvents, change)
	root.Apply(change)

	return nil
}

// base lets RecordChange reach the embedded BaseRoot of a concrete Root
// without requiring every implementation to expose it directly.
func (r *BaseRoot) base() *BaseRoot { return r }
