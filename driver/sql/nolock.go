package sql

import "context"

// NoLock is the degenerate WriteLockStrategy that always succeeds (spec
// §4.2 "NoLock. Always returns true. Default."). It is dialect-agnostic
// and usable with any of the postgres/mysql/mariadb PersistenceStrategy
// implementations when write-lock coordination is not wanted.
type NoLock struct{}

// NewNoLock returns the no-op WriteLockStrategy
func NewNoLock() *NoLock { return &NoLock{} }

// Acquire implements WriteLockStrategy
func (NoLock) Acquire(context.Context, LockConn, string) (bool, error) { return true, nil }

// Release implements WriteLockStrategy
func (NoLock) Release(context.Context, LockConn, string) (bool, error) { return true, nil }

var _ WriteLockStrategy = NoLock{}
