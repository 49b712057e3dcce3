package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
assistant:
  base_url: http://localhost:5001
  timeout: 5s
session:
  backend: sqlite
  sqlite_path: /tmp/tabs.db
server:
  port: "9090"
  allowed_origins: ["http://localhost:3000"]
llm:
  model: gpt-4o
  api_key: dummy
concierge:
  bookings_path: ./bookings.json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = tmp.WriteString(body)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	return tmp.Name()
}

// TestLoad_File verifies that Load unmarshals every section from a YAML file.
func TestLoad_File(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, "http://localhost:5001", cfg.Assistant.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Assistant.Timeout)
	require.Equal(t, DefaultInitialQuery, cfg.Assistant.InitialQuery)
	require.Equal(t, "sqlite", cfg.Session.Backend)
	require.Equal(t, "/tmp/tabs.db", cfg.Session.SQLitePath)
	require.Equal(t, 12*time.Hour, cfg.Session.TTL)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 5, cfg.LLM.MaxTurns)
	require.Equal(t, "./bookings.json", cfg.Concierge.BookingsPath)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PORT", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Session.Backend)
	require.Equal(t, "5001", cfg.Server.Port)
	require.Equal(t, "0.0.0.0:5001", cfg.Server.Addr())
	require.Equal(t, 60*time.Second, cfg.Assistant.Timeout)
	require.Error(t, cfg.Validate(), "base url is required")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("GUEST_ASSISTANT_BASE_URL", "https://concierge.example.com")
	t.Setenv("GUEST_SESSION_BACKEND", "redis")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "https://concierge.example.com", cfg.Assistant.BaseURL)
	require.Equal(t, "redis", cfg.Session.Backend)
}

func TestLoad_FlagsWin(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("CONFIG_PATH", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--base-url", "http://flag:1", "--tab", "tab-1"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, "http://flag:1", cfg.Assistant.BaseURL)
	require.Equal(t, "tab-1", cfg.Session.TabID)
	require.Equal(t, "sqlite", cfg.Session.Backend, "unset flags must not override the file")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/does/not/exist.yaml")
	_, err := Load(nil)
	require.Error(t, err)
}

func TestValidate_Backend(t *testing.T) {
	cfg := &Config{Assistant: AssistantConfig{BaseURL: "http://x"}, Session: SessionConfig{Backend: "etcd"}}
	require.ErrorContains(t, cfg.Validate(), "etcd")
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("GUEST_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "8080")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.Equal(t, "8080", cfg.Server.Port)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
