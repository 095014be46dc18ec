package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// RuleFile is the on-disk layout of a rule seed file
type RuleFile struct {
	Rules []*types.PermissionRule `yaml:"rules" json:"rules"`
}

// Loader loads and validates rule files from disk
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new rule loader
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// IsRuleFile reports whether path has a YAML or JSON extension
func IsRuleFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFromDirectory loads all rule files in a directory, in file name order.
// Files that fail to parse or validate are skipped with a warning.
func (l *Loader) LoadFromDirectory(path string) ([]*types.PermissionRule, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && IsRuleFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var rules []*types.PermissionRule
	for _, name := range names {
		filePath := filepath.Join(path, name)
		loaded, err := l.LoadFromFile(filePath)
		if err != nil {
			l.logger.Warn("Failed to load rule file",
				zap.String("file", filePath),
				zap.Error(err),
			)
			continue
		}
		rules = append(rules, loaded...)
	}

	return rules, nil
}

// LoadFromFile loads the rules of a single file. JSON is parsed as YAML.
func (l *Loader) LoadFromFile(filePath string) ([]*types.PermissionRule, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return l.Parse(content)
}

// Parse decodes and validates a rule document
func (l *Loader) Parse(content []byte) ([]*types.PermissionRule, error) {
	var file RuleFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	for i, rule := range file.Rules {
		if rule == nil {
			return nil, fmt.Errorf("rule %d is empty", i)
		}
		rule.NormalizeActions()
		if err := ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}

	return file.Rules, nil
}
