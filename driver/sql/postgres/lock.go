package postgres

import (
	"context"

	driversql "github.com/ledgerflow/eventstore/driver/sql"
)

// AdvisoryLock is the Postgres WriteLockStrategy (spec §4.2): a
// non-blocking session-scoped advisory lock keyed by hashtext(name).
// pg_try_advisory_lock never blocks and never deadlocks, so unlike the
// MySQL/MariaDB named-lock variants there is no timeout or deadlock-code
// special case to handle here.
type AdvisoryLock struct{}

// NewAdvisoryLock returns the Postgres WriteLockStrategy
func NewAdvisoryLock() *AdvisoryLock { return &AdvisoryLock{} }

// Acquire implements driversql.WriteLockStrategy
func (AdvisoryLock) Acquire(ctx context.Context, conn driversql.LockConn, name string) (bool, error) {
	var acquired bool
	err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release implements driversql.WriteLockStrategy
func (AdvisoryLock) Release(ctx context.Context, conn driversql.LockConn, name string) (bool, error) {
	var released bool
	err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name).Scan(&released)
	if err != nil {
		return false, err
	}
	return released, nil
}

var _ driversql.WriteLockStrategy = AdvisoryLock{}
