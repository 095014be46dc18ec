// Package engine provides the permission decision engine
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/cache"
	"github.com/authz-engine/permission-rules/internal/condition"
	"github.com/authz-engine/permission-rules/internal/metrics"
	"github.com/authz-engine/permission-rules/internal/policy"
	"github.com/authz-engine/permission-rules/pkg/types"
)

// ErrNilContext is returned when evaluating without a context
var ErrNilContext = errors.New("evaluation context is required")

// Engine selects the highest-priority matching rule for a request
type Engine struct {
	store      policy.Store
	cache      cache.Cache
	workerPool *WorkerPool
	metrics    metrics.Metrics
	logger     *zap.Logger

	config Config
}

// Config configures the decision engine
type Config struct {
	// GroupEvaluation selects the condition fold: "flat" (default) or "grouped"
	GroupEvaluation condition.Mode `yaml:"group_evaluation"`
	// CacheEnabled enables caching of decisions
	CacheEnabled bool `yaml:"cache_enabled"`
	// Cache configures the decision cache backend
	Cache cache.Config `yaml:"cache"`
	// TraceEnabled records why each candidate rule was skipped or matched
	TraceEnabled bool `yaml:"trace_enabled"`
	// ParallelWorkers is the number of workers for batch evaluation
	ParallelWorkers int `yaml:"parallel_workers"`
}

// DefaultConfig returns a default engine configuration
func DefaultConfig() Config {
	return Config{
		GroupEvaluation: condition.ModeFlat,
		CacheEnabled:    true,
		Cache:           cache.DefaultConfig(),
		ParallelWorkers: 16,
	}
}

// Validate validates the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.GroupEvaluation == "" {
		c.GroupEvaluation = condition.ModeFlat
	}
	if !c.GroupEvaluation.Valid() {
		return fmt.Errorf("invalid group evaluation mode: %s (must be flat or grouped)", c.GroupEvaluation)
	}
	if c.ParallelWorkers <= 0 {
		c.ParallelWorkers = 16
	}
	if c.CacheEnabled {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("invalid cache config: %w", err)
		}
	}
	return nil
}

// New creates a new decision engine over store
func New(cfg Config, store policy.Store, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var c cache.Cache
	if cfg.CacheEnabled {
		var err error
		c, err = cache.New(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to create decision cache: %w", err)
		}
	}

	return &Engine{
		store:      store,
		cache:      c,
		workerPool: NewWorkerPool(cfg.ParallelWorkers),
		metrics:    metrics.NewNoOpMetrics(),
		logger:     logger,
		config:     cfg,
	}, nil
}

// SetMetrics installs the metrics recorder
func (e *Engine) SetMetrics(m metrics.Metrics) {
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	e.metrics = m
}

// SetCache replaces the decision cache; nil disables caching
func (e *Engine) SetCache(c cache.Cache) {
	e.cache = c
}

// EvaluatePermission returns the decision of the first active rule, in
// priority order, whose scope admits the requester, whose conditions hold
// and which has an action matching the request. Rules whose conditions are
// false are skipped.
func (e *Engine) EvaluatePermission(ctx context.Context, evalCtx *types.EvaluationContext) (*types.EvaluationResult, error) {
	return e.evaluateCached(evalCtx, false)
}

// EvaluateWithElse is EvaluatePermission honouring ELSE branches: a rule whose
// conditions are false decides through its else actions when it has any.
func (e *Engine) EvaluateWithElse(ctx context.Context, evalCtx *types.EvaluationContext) (*types.EvaluationResult, error) {
	return e.evaluateCached(evalCtx, true)
}

// EvaluateBatch evaluates contexts in parallel on the worker pool. Results are
// in input order; a nil context yields a nil result and ErrNilContext.
func (e *Engine) EvaluateBatch(ctx context.Context, contexts []*types.EvaluationContext) ([]*types.EvaluationResult, error) {
	results := make([]*types.EvaluationResult, len(contexts))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, evalCtx := range contexts {
		idx, ec := i, evalCtx

		wg.Add(1)
		err := e.workerPool.Submit(ctx, func() {
			defer wg.Done()

			result, err := e.evaluateCached(ec, false)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("context %d: %w", idx, err)
				}
				mu.Unlock()
				return
			}
			results[idx] = result
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return results, err
		}
	}

	wg.Wait()
	return results, firstErr
}

func (e *Engine) evaluateCached(evalCtx *types.EvaluationContext, withElse bool) (*types.EvaluationResult, error) {
	if evalCtx == nil {
		return nil, ErrNilContext
	}
	start := time.Now()

	var key string
	cacheable := false
	if e.cache != nil {
		key, cacheable = e.cacheKey(evalCtx, withElse)
	}
	if cacheable {
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.RecordCacheHit()
			cached.CacheHit = true
			e.record(cached, start)
			return cached, nil
		}
		e.metrics.RecordCacheMiss()
	}

	result := e.evaluate(evalCtx, withElse)

	if cacheable {
		e.cache.Set(key, result)
	}
	e.record(result, start)
	return result, nil
}

// cacheKey scopes a context hash to the active rule snapshot and branch mode.
// It reports false for contexts that cannot be cached.
func (e *Engine) cacheKey(evalCtx *types.EvaluationContext, withElse bool) (string, bool) {
	ctxKey, ok := evalCtx.CacheKey()
	if !ok {
		return "", false
	}
	branch := "then"
	if withElse {
		branch = "else"
	}
	return fmt.Sprintf("%s:%s:%s:%t:%s", e.store.Fingerprint(), branch, e.config.GroupEvaluation, e.config.TraceEnabled, ctxKey), true
}

func (e *Engine) evaluate(evalCtx *types.EvaluationContext, withElse bool) *types.EvaluationResult {
	attrs := evalCtx.ToMap()

	var trace []*types.RuleTrace
	note := func(rule *types.PermissionRule, outcome types.TraceOutcome) {
		if e.config.TraceEnabled {
			trace = append(trace, &types.RuleTrace{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Priority: rule.Priority,
				Outcome:  outcome,
			})
		}
	}

	for _, rule := range e.store.ActiveRules() {
		if !rule.AppliesToRole(evalCtx.User.Role) {
			note(rule, types.TraceRoleScope)
			continue
		}
		if !rule.AppliesToUser(evalCtx.User.ID) {
			note(rule, types.TraceUserScope)
			continue
		}

		actions, elseBranch := rule.Actions, false
		if !condition.FoldWith(e.config.GroupEvaluation, rule.Conditions, attrs) {
			if !withElse || len(rule.ElseActions) == 0 {
				note(rule, types.TraceConditions)
				continue
			}
			actions, elseBranch = rule.ElseActions, true
		}

		action := FirstMatch(actions, evalCtx)
		if action == nil {
			note(rule, types.TraceNoAction)
			continue
		}

		if elseBranch {
			note(rule, types.TraceMatchedElse)
		} else {
			note(rule, types.TraceMatched)
		}
		result := Decide(rule, action, elseBranch)
		result.Trace = trace
		return result
	}

	return &types.EvaluationResult{
		Allowed: false,
		Reason:  types.ReasonNoMatch,
		Trace:   trace,
	}
}

func (e *Engine) record(result *types.EvaluationResult, start time.Time) {
	outcome := metrics.OutcomeDeny
	switch {
	case result.Allowed:
		outcome = metrics.OutcomeAllow
	case result.MatchedRule == "":
		outcome = metrics.OutcomeNoMatch
	}
	elapsed := time.Since(start)
	e.metrics.RecordEvaluation(outcome, elapsed)

	if ce := e.logger.Check(zap.DebugLevel, "Permission evaluated"); ce != nil {
		ce.Write(
			zap.Bool("allowed", result.Allowed),
			zap.String("rule_id", result.MatchedRule),
			zap.String("reason", result.Reason),
			zap.Bool("cache_hit", result.CacheHit),
			zap.Duration("duration", elapsed),
		)
	}
}

// GetStore returns the rule store
func (e *Engine) GetStore() policy.Store {
	return e.store
}

// GetCacheStats returns cache statistics, or nil when caching is disabled
func (e *Engine) GetCacheStats() *cache.Stats {
	if e.cache == nil {
		return nil
	}
	stats := e.cache.Stats()
	return &stats
}

// ClearCache clears the decision cache
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Shutdown stops the worker pool and closes the decision cache
func (e *Engine) Shutdown(ctx context.Context) error {
	e.workerPool.Stop()

	if closer, ok := e.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close decision cache: %w", err)
		}
	}
	return nil
}
