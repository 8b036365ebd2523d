package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8420", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, "recalld.db", cfg.Store.Path)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.LLM.Enabled())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  read_timeout: 5s
store:
  path: /var/lib/recalld/recalld.db
llm:
  api_key: sk-test
  model: gpt-4o
logging:
  level: debug
  format: console
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, "/var/lib/recalld/recalld.db", cfg.Store.Path)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.True(t, cfg.LLM.Enabled())
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o600))

	t.Setenv("RECALLD_SERVER_ADDR", ":7000")
	t.Setenv("RECALLD_LOGGING_LEVEL", "warn")
	t.Setenv("RECALLD_SERVER_READ_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8420", cfg.Server.Addr)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		wants string
	}{
		{"bad format", map[string]string{"RECALLD_LOGGING_FORMAT": "xml"}, "logging.format"},
		{"bad level", map[string]string{"RECALLD_LOGGING_LEVEL": "verbose"}, "logging.level"},
		{"tiny drain interval", map[string]string{"RECALLD_QUEUE_DRAIN_INTERVAL": "10ms"}, "drain_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wants)
		})
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))

	b, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "sk-very-secret")

	assert.Equal(t, "sk-very-secret", s.Value())
	assert.Equal(t, "", Secret("").String())
}
