package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfFindsWrappedError(t *testing.T) {
	t.Parallel()

	base := New(KindAuthenticationFailed, "ping", errors.New("exit status 2"))
	wrapped := fmt.Errorf("database step: %w", base)

	require.Equal(t, KindAuthenticationFailed, KindOf(wrapped))
	require.True(t, Is(wrapped, KindAuthenticationFailed))
	require.False(t, Is(wrapped, KindConnectivityFailed))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.False(t, Is(nil, KindUnknown))
}

func TestRemediationOfWalksChain(t *testing.T) {
	t.Parallel()

	inner := New(KindNotFound, "probe", nil).WithRemediation("install node")
	outer := New(KindExecutionFailed, "install", inner)

	require.Equal(t, "install node", RemediationOf(outer))
	require.Empty(t, RemediationOf(errors.New("plain")))
}

func TestErrorMessageUsesLastStderrLine(t *testing.T) {
	t.Parallel()

	err := New(KindExecutionFailed, "npm install", errors.New("exit status 1")).
		WithStderr("npm WARN deprecated\nnpm ERR! code E404\n\n")

	require.Equal(t, "npm install: execution_failed: exit status 1 (npm ERR! code E404)", err.Error())
	require.ErrorIs(t, err, err.Err)
}
