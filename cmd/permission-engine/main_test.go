package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/config"
	"github.com/authz-engine/permission-rules/internal/persistence"
	"github.com/authz-engine/permission-rules/pkg/types"
)

const seedRules = `rules:
  - id: rule-admin-files
    name: Admin file access
    status: active
    priority: 100
    conditions:
      - field: user.role
        operator: equals
        value: admin
    actions:
      - type: allow
        target: any_user
        entityType: file
        permissions: [view, edit]
`

func testConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	seed := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedRules), 0644))

	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Persistence.Driver = persistence.DriverSQLite
	cfg.Persistence.SQLitePath = filepath.Join(dir, "rules.db")
	cfg.Rules.SeedPath = seed
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuild_SeedsOnceThenRestores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	first, err := build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, first.registry.Count())
	assert.Len(t, first.registry.ActiveRules(), 1)
	first.close(ctx)

	// A non-empty store wins over the seed file
	require.NoError(t, os.WriteFile(cfg.Rules.SeedPath, []byte("rules: []\n"), 0644))

	second, err := build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer second.close(ctx)

	rule, err := second.registry.Get("rule-admin-files")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, rule.Status)

	result, err := second.engine.EvaluatePermission(ctx, &types.EvaluationContext{
		User:   types.UserContext{ID: "u-1", Role: "admin"},
		Entity: types.EntityContext{Type: "file"},
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "rule-admin-files", result.MatchedRule)
}

func TestBuild_MissingSeedFails(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Rules.SeedPath = filepath.Join(t.TempDir(), "missing.yaml")
	require.NoError(t, cfg.Validate())

	_, err := build(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRunEvaluate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Persistence.Driver = persistence.DriverNone

	a, err := build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.close(ctx)

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	admin := write("admin.json", `{"user":{"id":"u-1","role":"admin"},"entity":{"type":"file"}}`)
	client := write("client.json", `{"user":{"id":"u-2","role":"client"},"entity":{"type":"file"}}`)
	broken := write("broken.json", `{"user":`)

	assert.Equal(t, 0, runEvaluate(ctx, a.engine, admin, false))
	assert.Equal(t, 2, runEvaluate(ctx, a.engine, client, true))
	assert.Equal(t, 1, runEvaluate(ctx, a.engine, broken, false))
	assert.Equal(t, 1, runEvaluate(ctx, a.engine, filepath.Join(dir, "missing.json"), false))
}
