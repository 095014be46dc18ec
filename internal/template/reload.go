package template

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/policy"
	"github.com/authz-engine/permission-rules/pkg/types"
)

// LoadDirectory replaces the file-backed custom templates with the templates
// found in dir. Files that fail to parse are skipped with a warning.
func (e *Engine) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read template directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && policy.IsRuleFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var templates []*types.PermissionTemplate
	for _, name := range names {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			e.logger.Warn("Failed to read template file", zap.String("file", path), zap.Error(err))
			continue
		}
		parsed, err := Parse(content)
		if err != nil {
			e.logger.Warn("Failed to load template file", zap.String("file", path), zap.Error(err))
			continue
		}
		templates = append(templates, parsed...)
	}

	loaded := e.ReplaceFileTemplates(templates)
	e.logger.Info("Loaded custom templates",
		zap.String("dir", dir),
		zap.Int("files", len(names)),
		zap.Int("templates", loaded),
	)
	return nil
}

// Watch loads dir and reloads it whenever its template files change. The
// returned watcher must be stopped by the caller.
func (e *Engine) Watch(ctx context.Context, dir string) (*policy.DirWatcher, error) {
	if err := e.LoadDirectory(dir); err != nil {
		return nil, err
	}

	watcher, err := policy.NewDirWatcher(dir, func() error {
		return e.LoadDirectory(dir)
	}, e.logger)
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(ctx); err != nil {
		watcher.Stop()
		return nil, err
	}
	return watcher, nil
}
