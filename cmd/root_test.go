package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/buildinfo"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(Shutdown)

	var out bytes.Buffer
	root := RootCommand(buildinfo.New("1.0.0-test", "2026-10-01", "abc1234"))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rtbridge 1.0.0-test (commit abc1234, built 2026-10-01)")
}

func TestConfigCommandAppliesFlags(t *testing.T) {
	path := writeConfig(t, "bridge:\n  userbufferframes: 32\nhost:\n  bufferframes: 480\n")

	out, err := execute(t, "config", "--config", path, "--userbuffer", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "userbufferframes: 64", "flag beats file")
	assert.Contains(t, out, "bufferframes: 480", "file beats default")
}

func TestConfigCommandRejectsInvalidSettings(t *testing.T) {
	path := writeConfig(t, "host:\n  type: carrier-pigeon\n")

	_, err := execute(t, "config", "--config", path)
	require.Error(t, err)
}

func TestSimulateCommand(t *testing.T) {
	path := writeConfig(t, `
host:
  type: simulated
  bufferframes: 128
bridge:
  userbufferframes: 64
  inputchannels: 1
  outputchannels: 2
processing:
  level:
    enabled: false
simulate:
  duration: 100ms
`)

	out, err := execute(t, "simulate", "--config", path, "--frequency", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "Bridge:")
	assert.Contains(t, out, "Cycles:")
	assert.Contains(t, out, "Failures:  0")
	assert.NotContains(t, out, "Debug:")
}
