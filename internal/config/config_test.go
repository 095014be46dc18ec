package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authz-engine/permission-rules/internal/cache"
	"github.com/authz-engine/permission-rules/internal/condition"
	"github.com/authz-engine/permission-rules/internal/persistence"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, condition.ModeFlat, cfg.Engine.GroupEvaluation)
	assert.Equal(t, cache.TypeLRU, cfg.Engine.Cache.Type)
	assert.Equal(t, persistence.DriverNone, cfg.Persistence.Driver)
	assert.Equal(t, 1000, cfg.Audit.Capacity)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: console
engine:
  group_evaluation: grouped
  trace_enabled: true
  cache:
    type: redis
    ttl: 90s
    redis:
      host: redis
      key_prefix: "test:"
audit:
  capacity: 50
  flush_interval: 1s
  sinks:
    - type: file
      file_path: /var/log/permrules/audit.log
persistence:
  driver: sqlite
  sqlite_path: /data/rules.db
server:
  port: 9090
rules:
  seed_path: /etc/permrules/rules
templates:
  dir: /etc/permrules/templates
  watch: true
shutdown_timeout: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, condition.ModeGrouped, cfg.Engine.GroupEvaluation)
	assert.True(t, cfg.Engine.TraceEnabled)
	assert.True(t, cfg.Engine.CacheEnabled, "unset fields keep their defaults")
	assert.Equal(t, cache.TypeRedis, cfg.Engine.Cache.Type)
	assert.Equal(t, 90*time.Second, cfg.Engine.Cache.TTL)
	require.NotNil(t, cfg.Engine.Cache.Redis)
	assert.Equal(t, "redis", cfg.Engine.Cache.Redis.Host)
	assert.Equal(t, 6379, cfg.Engine.Cache.Redis.Port, "partial redis section keeps defaults")
	assert.Equal(t, "test:", cfg.Engine.Cache.Redis.KeyPrefix)
	assert.Equal(t, 50, cfg.Audit.Capacity)
	assert.Equal(t, time.Second, cfg.Audit.FlushInterval)
	require.Len(t, cfg.Audit.Sinks, 1)
	assert.Equal(t, 100, cfg.Audit.Sinks[0].FileMaxSize)
	assert.Equal(t, persistence.DriverSQLite, cfg.Persistence.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/etc/permrules/rules", cfg.Rules.SeedPath)
	assert.True(t, cfg.Templates.Watch)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "log level", content: "log:\n  level: verbose\n", wantErr: "invalid log level"},
		{name: "log format", content: "log:\n  format: xml\n", wantErr: "invalid log format"},
		{name: "group mode", content: "engine:\n  group_evaluation: nested\n", wantErr: "engine"},
		{name: "cache type", content: "engine:\n  cache:\n    type: memcached\n", wantErr: "engine"},
		{name: "audit sink", content: "audit:\n  sinks:\n    - type: kafka\n", wantErr: "audit"},
		{name: "persistence", content: "persistence:\n  driver: postgres\n", wantErr: "persistence"},
		{name: "port", content: "server:\n  port: -1\n", wantErr: "server"},
		{name: "yaml", content: "log: [", wantErr: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
