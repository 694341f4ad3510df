package mysql

import (
	"context"

	driversql "github.com/ledgerflow/eventstore/driver/sql"
)

const defaultLockTimeoutSeconds = -1

// NamedLock is the MySQL WriteLockStrategy (spec §4.2): GET_LOCK/
// RELEASE_LOCK session-scoped named locks. A negative timeout blocks
// indefinitely (MySQL's own default); the deadlock error number 3058
// is treated as a non-acquisition rather than propagated, matching the
// PDO driver's behaviour the source is quoting.
type NamedLock struct {
	timeoutSeconds int
}

// NewNamedLock returns the MySQL WriteLockStrategy. A negative
// timeoutSeconds blocks indefinitely, matching GET_LOCK's own semantics.
func NewNamedLock(timeoutSeconds int) *NamedLock {
	return &NamedLock{timeoutSeconds: timeoutSeconds}
}

// NewDefaultNamedLock returns the MySQL WriteLockStrategy with the
// spec's default timeout of -1 (block indefinitely).
func NewDefaultNamedLock() *NamedLock {
	return &NamedLock{timeoutSeconds: defaultLockTimeoutSeconds}
}

// Acquire implements driversql.WriteLockStrategy
func (l NamedLock) Acquire(ctx context.Context, conn driversql.LockConn, name string) (bool, error) {
	var acquired interface{}
	err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, l.timeoutSeconds).Scan(&acquired)
	if err != nil {
		if isDeadlock(err) {
			return false, nil
		}
		return false, err
	}
	n, ok := acquired.(int64)
	return ok && n == 1, nil
}

// Release implements driversql.WriteLockStrategy
func (l NamedLock) Release(ctx context.Context, conn driversql.LockConn, name string) (bool, error) {
	var released interface{}
	err := conn.QueryRowContext(ctx, `SELECT RELEASE_LOCK(?)`, name).Scan(&released)
	if err != nil {
		return false, err
	}
	n, ok := released.(int64)
	return ok && n == 1, nil
}

var _ driversql.WriteLockStrategy = NamedLock{}
