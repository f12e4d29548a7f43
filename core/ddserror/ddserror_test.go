package ddserror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorsIsSentinel(t *testing.T) {
	err := New(NotEnabled, "entity %q", "writer-1")
	require.True(t, errors.Is(err, ErrNotEnabled))
	require.False(t, errors.Is(err, ErrTimeout))

	k, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, NotEnabled, k)
}

func TestErrorMessage(t *testing.T) {
	err := New(OutOfResources, "cache add refused for %s", "writer-2")
	require.Contains(t, err.Error(), "OutOfResources")
	require.Contains(t, err.Error(), "writer-2")
}
