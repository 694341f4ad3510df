package mariadb

import (
	"context"

	"github.com/ledgerflow/eventstore"
	driversql "github.com/ledgerflow/eventstore/driver/sql"
)

// defaultLockTimeoutSeconds matches the source's MariaDB default: a very
// large but finite wait, since unlike MySQL, MariaDB's GET_LOCK rejects a
// negative timeout outright rather than treating it as "forever".
const defaultLockTimeoutSeconds = 0xFFFFFF

// NamedLock is the MariaDB WriteLockStrategy (spec §4.2): GET_LOCK/
// RELEASE_LOCK named locks. The statements are the same SELECT GET_LOCK/
// SELECT RELEASE_LOCK that mysql.NamedLock issues; this implementation
// differs in rejecting negative timeouts, in its finite default timeout,
// and in reporting a deadlock error on release as a non-release.
type NamedLock struct {
	timeoutSeconds int
}

// NewNamedLock returns the MariaDB WriteLockStrategy. timeoutSeconds
// must be >= 0.
func NewNamedLock(timeoutSeconds int) (*NamedLock, error) {
	if timeoutSeconds < 0 {
		return nil, eventstore.InvalidArgumentError("timeoutSeconds")
	}
	return &NamedLock{timeoutSeconds: timeoutSeconds}, nil
}

// NewDefaultNamedLock returns the MariaDB WriteLockStrategy with the
// source's default timeout.
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
		if isDeadlock(err) {
			return false, nil
		}
		return false, err
	}
	n, ok := released.(int64)
	return ok && n == 1, nil
}

var _ driversql.WriteLockStrategy = NamedLock{}
