package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrcon/rcond/internal/auth"
	"github.com/opsrcon/rcond/internal/config"
)

func TestHashPasswordCmdEmitsVerifiableRecord(t *testing.T) {
	cmd := newHashPasswordCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hunter2"})

	require.NoError(t, cmd.Execute())

	line, _, _ := strings.Cut(out.String(), "\n")
	record, err := auth.ParseRecord(line)
	require.NoError(t, err)
	assert.True(t, auth.Verify("hunter2", record))
	assert.False(t, auth.Verify("wrong", record))
}

func TestHashPasswordCmdRequiresExactlyOneArg(t *testing.T) {
	cmd := newHashPasswordCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestConfigInitCmdWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcond.yaml")

	cmd := newConfigInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Port, cfg.Port)
}

func TestVersionCmdPrintsVersion(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "rcond")
}
