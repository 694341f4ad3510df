package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoLockAlwaysAcquiresAndReleases(t *testing.T) {
	lock := NewNoLock()

	ok, err := lock.Acquire(context.Background(), nil, "anything")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Release(context.Background(), nil, "anything")
	assert.NoError(t, err)
	assert.True(t, ok)
}
