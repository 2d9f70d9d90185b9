package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlovans/surveyor/pkg/survey"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "surveyor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults apply without a file or environment", func(t *testing.T) {
		cfg, err := LoadWithEnv("", env(nil))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.Equal(t, survey.PolicyLatest, cfg.Policy())
		assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	})

	t.Run("a missing file is not an error", func(t *testing.T) {
		cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeFile(t, `
catalog_path: /etc/surveyor/catalog.yaml
snapshot_policy: first
lock_timeout: 250ms
audit_workers: 8
log_format: json
`)
		cfg, err := LoadWithEnv(path, env(nil))
		require.NoError(t, err)
		assert.Equal(t, "/etc/surveyor/catalog.yaml", cfg.CatalogPath)
		assert.Equal(t, survey.PolicyFirst, cfg.Policy())
		assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
		assert.Equal(t, 8, cfg.AuditWorkers)
		assert.Equal(t, "info", cfg.LogLevel, "unset keys keep their default")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeFile(t, "snapshot_policy: first\naudit_workers: 8\n")
		cfg, err := LoadWithEnv(path, env(map[string]string{
			"SURVEYOR_SNAPSHOT_POLICY": "latest",
			"SURVEYOR_AUDIT_WORKERS":   "2",
			"SURVEYOR_LOCK_TIMEOUT":    "1s",
			"SURVEYOR_DSN":             "postgres://localhost/surveyor",
			"SURVEYOR_METRICS_ADDR":    "localhost:9090",
		}))
		require.NoError(t, err)
		assert.Equal(t, survey.PolicyLatest, cfg.Policy())
		assert.Equal(t, 2, cfg.AuditWorkers)
		assert.Equal(t, time.Second, cfg.LockTimeout)
		assert.Equal(t, "postgres://localhost/surveyor", cfg.DSN)
		assert.Equal(t, "localhost:9090", cfg.MetricsAddr)
	})

	invalid := []struct {
		name string
		file string
		env  map[string]string
		want string
	}{
		{"unknown policy", "snapshot_policy: random", nil, "invalid config"},
		{"too many workers", "audit_workers: 100", nil, "invalid config"},
		{"unknown log level", "", map[string]string{"SURVEYOR_LOG_LEVEL": "trace"}, "invalid config"},
		{"bad metrics address", "metrics_addr: not an address", nil, "invalid config"},
		{"unparsable duration", "", map[string]string{"SURVEYOR_LOCK_TIMEOUT": "soon"}, "SURVEYOR_LOCK_TIMEOUT"},
		{"unparsable worker count", "", map[string]string{"SURVEYOR_AUDIT_WORKERS": "four"}, "SURVEYOR_AUDIT_WORKERS"},
		{"malformed YAML", "audit_workers: [", nil, "load config file"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := LoadWithEnv(path, env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLogger(t *testing.T) {
	t.Run("json format at warn level", func(t *testing.T) {
		cfg := Default()
		cfg.LogFormat, cfg.LogLevel = "json", "warn"
		var buf bytes.Buffer
		logger := cfg.Logger(&buf)

		logger.Info("hidden")
		logger.Warn("shown", "number", "2.1")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"msg":"shown"`)
		assert.Contains(t, buf.String(), `"number":"2.1"`)
	})

	t.Run("text format by default", func(t *testing.T) {
		var buf bytes.Buffer
		Default().Logger(&buf).Info("ready", "policy", "latest")
		assert.Contains(t, buf.String(), "msg=ready")
		assert.Contains(t, buf.String(), "policy=latest")
	})
}
