package locks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExcludesSecondHolder(t *testing.T) {
	locker := NewMemoryLocker()
	name := CollectionLockName(7)

	acquired, err := locker.Acquire(context.Background(), name)
	require.NoError(t, err)
	require.True(t, acquired)

	again, err := locker.Acquire(context.Background(), name)
	require.NoError(t, err)
	require.False(t, again)

	require.NoError(t, locker.Release(context.Background(), name))

	reacquired, err := locker.Acquire(context.Background(), name)
	require.NoError(t, err)
	require.True(t, reacquired)
}

func TestMemoryLockerIsPerName(t *testing.T) {
	locker := NewMemoryLocker()

	first, err := locker.Acquire(context.Background(), CollectionLockName(7))
	require.NoError(t, err)
	require.True(t, first)

	other, err := locker.Acquire(context.Background(), CollectionLockName(8))
	require.NoError(t, err)
	require.True(t, other)
}
