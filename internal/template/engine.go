// Package template instantiates draft rules from a catalog of reusable rule
// templates
package template

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/authz-engine/permission-rules/internal/metrics"
	"github.com/authz-engine/permission-rules/internal/policy"
	"github.com/authz-engine/permission-rules/pkg/types"
)

// FromTemplateSuffix is appended to the template name of a spawned rule
const FromTemplateSuffix = " (from template)"

var (
	// ErrTemplateNotFound is returned when operating on an unknown template id
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateExists is returned when adding a template whose id is taken
	ErrTemplateExists = errors.New("template already exists")

	// ErrSystemTemplate is returned when deleting or replacing a system template
	ErrSystemTemplate = errors.New("system templates cannot be modified")
)

//go:embed templates.yaml
var systemTemplates []byte

// RuleStore is the part of the rule registry templates need
type RuleStore interface {
	Get(id string) (*types.PermissionRule, error)
	Add(ctx context.Context, actor types.Actor, draft *types.PermissionRule) (*types.PermissionRule, error)
}

// File is the on-disk layout of a template file
type File struct {
	Templates []*types.PermissionTemplate `yaml:"templates" json:"templates"`
}

type origin int

const (
	originSystem origin = iota
	originRuntime
	originFile
)

type entry struct {
	template *types.PermissionTemplate
	origin   origin
}

// Engine holds the template catalog and spawns rules from it
type Engine struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	// usage counts outlive catalog reloads
	usageMu sync.Mutex
	usage   map[string]*atomic.Int64

	rules   RuleStore
	metrics metrics.Metrics
	logger  *zap.Logger
}

// New creates a template engine seeded with the embedded system templates
func New(rules RuleStore, logger *zap.Logger) (*Engine, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		entries: make(map[string]*entry),
		usage:   make(map[string]*atomic.Int64),
		rules:   rules,
		metrics: metrics.NewNoOpMetrics(),
		logger:  logger,
	}

	seeds, err := Parse(systemTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to load system templates: %w", err)
	}
	for _, t := range seeds {
		t.IsSystem = true
		e.put(t, originSystem)
	}

	return e, nil
}

// SetMetrics installs the metrics recorder
func (e *Engine) SetMetrics(m metrics.Metrics) {
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	e.metrics = m
}

// Parse decodes a template document and validates each embedded rule body
func Parse(content []byte) ([]*types.PermissionTemplate, error) {
	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	for i, t := range file.Templates {
		if t == nil {
			return nil, fmt.Errorf("template %d is empty", i)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("template %d (%s): id is required", i, t.Name)
		}
		if err := validate(t); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	return file.Templates, nil
}

func validate(t *types.PermissionTemplate) error {
	if strings.TrimSpace(t.Name) == "" {
		return &policy.ValidationError{Field: "name", Message: "template name is required"}
	}
	rule := t.Rule.ToRule()
	if rule.Name == "" {
		rule.Name = t.Name
	}
	rule.NormalizeActions()
	return policy.ValidateRule(rule)
}

// List returns the catalog in insertion order, filtered by category when
// category is not empty
func (e *Engine) List(category string) []*types.PermissionTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*types.PermissionTemplate, 0, len(e.order))
	for _, id := range e.order {
		t := e.entries[id].template
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, e.snapshot(t))
	}
	return out
}

// Categories returns the distinct categories in catalog order
func (e *Engine) Categories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, id := range e.order {
		c := e.entries[id].template.Category
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Get returns a copy of a template
func (e *Engine) Get(id string) (*types.PermissionTemplate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return e.snapshot(ent.template), nil
}

// Add stores a custom template. An empty id is assigned; IsSystem is cleared.
func (e *Engine) Add(t *types.PermissionTemplate) (*types.PermissionTemplate, error) {
	if t == nil {
		return nil, &policy.ValidationError{Field: "template", Message: "template cannot be nil"}
	}
	t = t.Clone()
	if t.ID == "" {
		t.ID = "template-" + uuid.NewString()
	}
	t.IsSystem = false
	t.UsageCount = 0

	if err := validate(t); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.entries[t.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTemplateExists, t.ID)
	}
	e.put(t, originRuntime)

	e.logger.Info("Template added",
		zap.String("template_id", t.ID),
		zap.String("category", t.Category),
	)
	return e.snapshot(t), nil
}

// Delete removes a custom template. System templates are refused.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	if ent.template.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemTemplate, id)
	}
	e.remove(id)

	e.logger.Info("Template deleted", zap.String("template_id", id))
	return nil
}

// CreateRuleFromTemplate adds a draft rule built from a template's rule body,
// named "<template name> (from template)" and authored by actor, and counts
// one use of the template
func (e *Engine) CreateRuleFromTemplate(ctx context.Context, actor types.Actor, templateID string) (*types.PermissionRule, error) {
	e.mu.RLock()
	ent, ok := e.entries[templateID]
	var t *types.PermissionTemplate
	if ok {
		t = ent.template.Clone()
	}
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}

	draft := t.Rule.ToRule()
	draft.Name = t.Name + FromTemplateSuffix
	draft.Status = types.StatusDraft
	draft.CreatedBy = actor.ID
	draft.LastModifiedBy = actor.ID

	rule, err := e.rules.Add(ctx, actor, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule from template %s: %w", templateID, err)
	}

	uses := e.counter(templateID).Add(1)
	e.metrics.RecordTemplateUse(templateID)

	e.logger.Info("Rule created from template",
		zap.String("template_id", templateID),
		zap.String("rule_id", rule.ID),
		zap.String("actor", actor.ID),
		zap.Int64("usage_count", uses),
	)
	return rule, nil
}

// SaveRuleAsTemplate stores the body of an existing rule as a new custom template
func (e *Engine) SaveRuleAsTemplate(ruleID, name, category string) (*types.PermissionTemplate, error) {
	rule, err := e.rules.Get(ruleID)
	if err != nil {
		return nil, err
	}

	return e.Add(&types.PermissionTemplate{
		Name:        name,
		Description: rule.Description,
		Category:    category,
		Rule:        types.BodyOf(rule),
	})
}

// ReplaceFileTemplates swaps the templates previously loaded from files for
// templates. Templates colliding with a system or runtime template are
// skipped. Usage counts are kept.
func (e *Engine) ReplaceFileTemplates(templates []*types.PermissionTemplate) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range append([]string(nil), e.order...) {
		if e.entries[id].origin == originFile {
			e.remove(id)
		}
	}

	loaded := 0
	for _, t := range templates {
		if existing, ok := e.entries[t.ID]; ok {
			e.logger.Warn("Skipping template file entry that shadows an existing template",
				zap.String("template_id", t.ID),
				zap.Bool("system", existing.template.IsSystem),
			)
			continue
		}
		t = t.Clone()
		t.IsSystem = false
		e.put(t, originFile)
		loaded++
	}
	return loaded
}

// Len returns the number of templates in the catalog
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

// put must be called with mu held for writing, or during construction
func (e *Engine) put(t *types.PermissionTemplate, o origin) {
	if _, exists := e.entries[t.ID]; !exists {
		e.order = append(e.order, t.ID)
	}
	e.entries[t.ID] = &entry{template: t, origin: o}
	// seeds may carry a usage count of their own
	if t.UsageCount > 0 {
		c := e.counter(t.ID)
		c.CompareAndSwap(0, int64(t.UsageCount))
	}
}

func (e *Engine) remove(id string) {
	delete(e.entries, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Engine) counter(id string) *atomic.Int64 {
	e.usageMu.Lock()
	defer e.usageMu.Unlock()

	c, ok := e.usage[id]
	if !ok {
		c = new(atomic.Int64)
		e.usage[id] = c
	}
	return c
}

func (e *Engine) snapshot(t *types.PermissionTemplate) *types.PermissionTemplate {
	out := t.Clone()
	out.UsageCount = int(e.counter(t.ID).Load())
	return out
}
