package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectEmitsJSONFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcond.log")
	logger, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	Connect(logger, 7, "10.0.0.5", 54321)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, "transport.connect", fields["msg"])
	assert.EqualValues(t, 7, fields["connection_id"])
	assert.Equal(t, "10.0.0.5", fields["remote_ip"])
	assert.EqualValues(t, 54321, fields["remote_port"])
}

func TestCommandExecuteNeverLogsCommandBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcond.log")
	logger, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	CommandExecute(logger, 1, CommandName("echo super secret payload"), "ok", 3*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "echo")
	assert.NotContains(t, string(data), "secret")
	assert.NotContains(t, string(data), "payload")
}

func TestAuthEventNeverLogsCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcond.log")
	logger, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	Auth(logger, 3, "failure")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "failure", fields["result"])
}

func TestCommandNameTakesFirstToken(t *testing.T) {
	assert.Equal(t, "echo", CommandName("echo hello world"))
	assert.Equal(t, "", CommandName("   "))
	assert.Equal(t, "status", CommandName("status"))
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcond.log")
	logger, err := New(Config{Level: "warn", Format: "text", Output: path})
	require.NoError(t, err)

	SessionStart(logger, 1) // info-level, should be filtered out
	RateLimit(logger, "1.2.3.4") // warn-level, should appear

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "application.session.start")
	assert.Contains(t, string(data), "transport.rate_limit")
}

func TestInvalidOutputPathFails(t *testing.T) {
	_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing-dir", "rcond.log")})
	assert.Error(t, err)
}
