package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassificationHelpers(t *testing.T) {
	require.True(t, IsConnectivity(ErrConnectivity))
	require.True(t, IsConnectivity(ErrOffline))
	require.False(t, IsConnectivity(ErrRemoteRejection))

	require.True(t, IsRejection(Clone(ErrRemoteRejection, "refused")))
	require.True(t, IsNotFound(ErrNotFound))
	require.True(t, IsBlocked(ErrSyncBlocked))
	require.False(t, IsBlocked(nil))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("sync collection 7: %w", Clone(ErrConnectivity, "timeout"))
	require.True(t, IsConnectivity(wrapped))
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrRemoteRejection, "entries can no longer be edited")
	require.Equal(t, ErrRemoteRejection.Code, clone.Code)
	require.Equal(t, ErrRemoteRejection.Status, clone.Status)
	require.Equal(t, "entries can no longer be edited", clone.Error())
	require.NotSame(t, ErrRemoteRejection, clone)
}

func TestFromErrorNormalisesUnknownErrors(t *testing.T) {
	err := FromError(fmt.Errorf("disk full"))
	require.Equal(t, ErrInternal.Code, err.Code)
	require.Nil(t, FromError(nil))
}
