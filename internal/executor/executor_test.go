package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoReturnsArguments(t *testing.T) {
	out, err := Echo(context.Background(), "echo hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestEchoAliasHelp(t *testing.T) {
	out, err := Echo(context.Background(), "help whatever")
	require.NoError(t, err)
	assert.Equal(t, "whatever", out)
}

func TestEchoUnknownCommandFallsBack(t *testing.T) {
	out, err := Echo(context.Background(), "status everything fine")
	require.NoError(t, err)
	assert.Equal(t, "everything fine", out)
}

func TestEchoEmptyBody(t *testing.T) {
	out, err := Echo(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestWithTimeoutPassesThroughFastCall(t *testing.T) {
	wrapped := WithTimeout(Echo, time.Second)
	out, err := wrapped(context.Background(), "echo fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", out)
}

func TestWithTimeoutExpires(t *testing.T) {
	slow := func(ctx context.Context, command string) (string, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	wrapped := WithTimeout(slow, 5*time.Millisecond)
	_, err := wrapped(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrTimeout)
}
