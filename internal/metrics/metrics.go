// Package metrics provides observability for the permission rule engine
package metrics

import (
	"net/http"
	"time"
)

// Metrics provides observability for the permission rule engine
type Metrics interface {
	// Decision metrics
	RecordEvaluation(outcome string, duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()

	// Registry metrics
	RecordRuleMutation(action string)
	UpdateRuleCounts(total, active int)
	RecordPersistenceError(operation string)

	// Audit metrics
	RecordAuditEntry(action string)
	RecordAuditEviction()

	// Template metrics
	RecordTemplateUse(templateID string)

	// HTTP handler for Prometheus scraping
	HTTPHandler() http.Handler
}

// Evaluation outcomes
const (
	OutcomeAllow   = "allow"
	OutcomeDeny    = "deny"
	OutcomeNoMatch = "no_match"
)

// NoOpMetrics provides a no-op implementation for testing/disabled monitoring
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics instance
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordEvaluation(outcome string, duration time.Duration) {}
func (n *NoOpMetrics) RecordCacheHit()                                        {}
func (n *NoOpMetrics) RecordCacheMiss()                                       {}
func (n *NoOpMetrics) RecordRuleMutation(action string)                       {}
func (n *NoOpMetrics) UpdateRuleCounts(total, active int)                     {}
func (n *NoOpMetrics) RecordPersistenceError(operation string)                {}
func (n *NoOpMetrics) RecordAuditEntry(action string)                         {}
func (n *NoOpMetrics) RecordAuditEviction()                                   {}
func (n *NoOpMetrics) RecordTemplateUse(templateID string)                    {}

// HTTPHandler returns a no-op handler
func (n *NoOpMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# NoOp metrics - monitoring disabled\n"))
	})
}
