package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/audit"
	"github.com/authz-engine/permission-rules/internal/metrics"
	"github.com/authz-engine/permission-rules/pkg/types"
)

// CopySuffix is appended to the name of a duplicated rule
const CopySuffix = " (Copy)"

// Registry is the in-memory rule store. Every mutation is applied and audited
// under one write lock; readers see immutable snapshots, so evaluation never
// observes a rule mid-mutation.
type Registry struct {
	// writeMu serializes whole mutations including persistence hooks
	writeMu sync.Mutex

	mu         sync.RWMutex
	rules      map[string]*types.PermissionRule
	order      []string
	active     []*types.PermissionRule
	generation uint64

	// fingerprint identifies the active snapshot across processes
	fingerprint string

	audit     *audit.Log
	persister Persister
	metrics   metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates an empty registry recording mutations in auditLog.
// A nil auditLog gets an in-memory log of the default capacity.
func NewRegistry(auditLog *audit.Log, logger *zap.Logger) *Registry {
	if auditLog == nil {
		auditLog = audit.NewInMemory(audit.DefaultCapacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		rules:   make(map[string]*types.PermissionRule),
		audit:   auditLog,
		metrics: metrics.NewNoOpMetrics(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetPersister installs the durable storage collaborator
func (r *Registry) SetPersister(p Persister) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.persister = p
}

// SetMetrics installs the metrics recorder
func (r *Registry) SetMetrics(m metrics.Metrics) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	r.metrics = m
}

// AuditLog returns the audit log mutations are recorded in
func (r *Registry) AuditLog() *audit.Log {
	return r.audit
}

// Get retrieves a copy of a rule by id
func (r *Registry) Get(id string) (*types.PermissionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule.Clone(), nil
}

// List returns copies of all rules in insertion order
func (r *Registry) List() []*types.PermissionRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.PermissionRule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id].Clone())
	}
	return out
}

// ListByStatus returns copies of the rules with the given status
func (r *Registry) ListByStatus(status types.RuleStatus) []*types.PermissionRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.PermissionRule
	for _, id := range r.order {
		if rule := r.rules[id]; rule.Status == status {
			out = append(out, rule.Clone())
		}
	}
	return out
}

// Count returns the number of rules
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Generation changes whenever the rule set changes
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Fingerprint identifies the active rule snapshot. Registries holding the
// same active rules in the same order report the same fingerprint, in any
// process; any change to the active set changes it.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fingerprint == "" {
		return fingerprintOf(nil)
	}
	return r.fingerprint
}

// ActiveRules returns the shared snapshot of active rules in evaluation order
func (r *Registry) ActiveRules() []*types.PermissionRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// GetRulesForRole returns active rules whose role scope is empty or contains role
func (r *Registry) GetRulesForRole(role string) []*types.PermissionRule {
	var out []*types.PermissionRule
	for _, rule := range r.ActiveRules() {
		if rule.AppliesToRole(role) {
			out = append(out, rule.Clone())
		}
	}
	return out
}

// GetRulesForUser returns active rules whose user scope is empty or contains userID
func (r *Registry) GetRulesForUser(userID string) []*types.PermissionRule {
	var out []*types.PermissionRule
	for _, rule := range r.ActiveRules() {
		if rule.AppliesToUser(userID) {
			out = append(out, rule.Clone())
		}
	}
	return out
}

// Add inserts a new rule. The registry assigns an id when the draft has none,
// stamps timestamps and authorship, and defaults the status to draft.
func (r *Registry) Add(ctx context.Context, actor types.Actor, draft *types.PermissionRule) (*types.PermissionRule, error) {
	if draft == nil {
		return nil, invalid("rule", "rule cannot be nil")
	}

	rule := draft.Clone()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Status == "" {
		rule.Status = types.StatusDraft
	}
	rule.NormalizeActions()
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := r.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.CreatedBy == "" {
		rule.CreatedBy = actor.ID
	}
	rule.LastModifiedBy = actor.ID

	r.mu.Lock()
	if _, exists := r.rules[rule.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}
	r.rules[rule.ID] = rule
	r.order = append(r.order, rule.ID)
	r.commitLocked(types.NewAuditLogEntry(actor, types.AuditCreate, rule))
	r.mu.Unlock()

	r.persist(ctx, rule)
	return rule.Clone(), nil
}

// Update merges patch into a rule and records the changed fields
func (r *Registry) Update(ctx context.Context, actor types.Actor, id string, patch RulePatch) (*types.PermissionRule, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	before, err := r.current(id)
	if err != nil {
		return nil, err
	}

	after := patch.apply(before)
	after.NormalizeActions()
	if err := ValidateRule(after); err != nil {
		return nil, err
	}
	after.UpdatedAt = r.now()
	after.LastModifiedBy = actor.ID

	entry := types.NewAuditLogEntry(actor, types.AuditUpdate, after).WithChanges(diffRules(before, after))
	r.replace(after, entry)

	r.persist(ctx, after)
	return after.Clone(), nil
}

// Remove deletes a rule. Its audit history is kept.
func (r *Registry) Remove(ctx context.Context, actor types.Actor, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	rule, err := r.current(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.rules, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.commitLocked(types.NewAuditLogEntry(actor, types.AuditDelete, rule))
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.Delete(ctx, id); err != nil {
			r.persistenceFailed("delete", id, err)
		}
	}
	return nil
}

// Activate makes a rule participate in decisions. A rule without conditions
// or actions is rejected before the transition.
func (r *Registry) Activate(ctx context.Context, actor types.Actor, id string) (*types.PermissionRule, error) {
	return r.transition(ctx, actor, id, types.StatusActive, types.AuditActivate)
}

// Deactivate removes a rule from decisions without deleting it
func (r *Registry) Deactivate(ctx context.Context, actor types.Actor, id string) (*types.PermissionRule, error) {
	return r.transition(ctx, actor, id, types.StatusInactive, types.AuditDeactivate)
}

func (r *Registry) transition(ctx context.Context, actor types.Actor, id string, status types.RuleStatus, action types.AuditAction) (*types.PermissionRule, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.current(id)
	if err != nil {
		return nil, err
	}
	if status == types.StatusActive {
		if err := ValidateActivation(current); err != nil {
			return nil, err
		}
	}

	rule := current.Clone()
	rule.Status = status
	rule.UpdatedAt = r.now()
	rule.LastModifiedBy = actor.ID

	r.replace(rule, types.NewAuditLogEntry(actor, action, rule))

	r.persist(ctx, rule)
	return rule.Clone(), nil
}

// Duplicate copies a rule under a new id as a draft named "<name> (Copy)"
func (r *Registry) Duplicate(ctx context.Context, actor types.Actor, id string) (*types.PermissionRule, error) {
	original, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	copied := original.Clone()
	copied.ID = ""
	copied.Name = original.Name + CopySuffix
	copied.Status = types.StatusDraft
	copied.CreatedBy = ""

	return r.Add(ctx, actor, copied)
}

// Restore replaces the registry contents with rules loaded from storage.
// Restoring is not an administrative mutation and is not audited.
func (r *Registry) Restore(rules []*types.PermissionRule) error {
	loaded := make(map[string]*types.PermissionRule, len(rules))
	order := make([]string, 0, len(rules))
	for i, rule := range rules {
		if rule == nil || rule.ID == "" {
			return invalid(fmt.Sprintf("rules[%d]", i), "restored rule needs an id")
		}
		c := rule.Clone()
		c.NormalizeActions()
		if _, seen := loaded[c.ID]; !seen {
			order = append(order, c.ID)
		}
		loaded[c.ID] = c
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.rules = loaded
	r.order = order
	r.commitLocked(nil)
	r.mu.Unlock()

	r.logger.Info("Restored rules", zap.Int("count", len(order)))
	return nil
}

// current returns the stored rule; callers hold writeMu
func (r *Registry) current(id string) (*types.PermissionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule, nil
}

// replace swaps in a new version of a rule and records entry
func (r *Registry) replace(rule *types.PermissionRule, entry *types.AuditLogEntry) {
	r.mu.Lock()
	r.rules[rule.ID] = rule
	r.commitLocked(entry)
	r.mu.Unlock()
}

// commitLocked publishes a new snapshot and appends entry to the audit log.
// Callers hold mu.
func (r *Registry) commitLocked(entry *types.AuditLogEntry) {
	active := make([]*types.PermissionRule, 0, len(r.order))
	for _, id := range r.order {
		if rule := r.rules[id]; rule.IsActive() {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})

	r.active = active
	r.generation++
	r.fingerprint = fingerprintOf(active)
	r.metrics.UpdateRuleCounts(len(r.order), len(active))

	if entry == nil {
		return
	}
	if r.audit.Append(entry) {
		r.metrics.RecordAuditEviction()
	}
	r.metrics.RecordAuditEntry(string(entry.Action))
	r.metrics.RecordRuleMutation(string(entry.Action))

	r.logger.Info("Rule mutation",
		zap.String("action", string(entry.Action)),
		zap.String("rule_id", entry.RuleID),
		zap.String("rule_name", entry.RuleName),
		zap.String("actor", entry.UserID),
	)
}

func (r *Registry) persist(ctx context.Context, rule *types.PermissionRule) {
	if r.persister == nil {
		return
	}
	if err := r.persister.Persist(ctx, rule.Clone()); err != nil {
		r.persistenceFailed("persist", rule.ID, err)
	}
}

func (r *Registry) persistenceFailed(op, id string, err error) {
	r.metrics.RecordPersistenceError(op)
	r.logger.Warn("Rule persistence hook failed",
		zap.String("operation", op),
		zap.String("rule_id", id),
		zap.Error(err),
	)
}

// fingerprintOf hashes the evaluation-relevant snapshot. A snapshot that
// cannot be encoded gets a random fingerprint, which only costs cache hits.
func fingerprintOf(active []*types.PermissionRule) string {
	if active == nil {
		active = []*types.PermissionRule{}
	}
	data, err := json.Marshal(active)
	if err != nil {
		return "epoch-" + uuid.NewString()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
