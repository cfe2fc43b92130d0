package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/localfirst/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, core.DefaultAgentConfig(), cfg)
}

func TestLoadPartialFileOverridesOnlySetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 7\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, core.DefaultAgentConfig().MaxConcurrentTasks, cfg.MaxConcurrentTasks)
}

func TestLoadMalformedFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(": not: valid: yaml:"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 7\n"), 0o644))

	t.Setenv("AGENTCORE_MAX_RETRIES", "12")
	t.Setenv("AGENTCORE_AUTO_APPROVE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.MaxRetries)
	assert.True(t, cfg.AutoApprove)
}
