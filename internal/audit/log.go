// Package audit provides the append-only administrative audit log for rules
package audit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// DefaultCapacity is the number of entries kept in memory
const DefaultCapacity = 1000

// Config configures the audit log
type Config struct {
	// Capacity is the number of recent entries kept in memory
	Capacity int `yaml:"capacity"`

	// Forwarding to sinks
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	// Sinks to forward entries to
	Sinks []SinkConfig `yaml:"sinks"`
}

// SinkConfig configures one built-in sink
type SinkConfig struct {
	// Type: stdout, file, syslog
	Type string `yaml:"type"`

	// For file output
	FilePath       string `yaml:"file_path"`
	FileMaxSize    int    `yaml:"file_max_size_mb"`
	FileMaxAge     int    `yaml:"file_max_age_days"`
	FileMaxBackups int    `yaml:"file_max_backups"`

	// For syslog
	SyslogAddr     string `yaml:"syslog_addr"`
	SyslogProtocol string `yaml:"syslog_protocol"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Capacity:      DefaultCapacity,
		BufferSize:    1000,
		FlushInterval: 100 * time.Millisecond,
	}
}

// Validate validates the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}

	for i := range c.Sinks {
		if err := c.Sinks[i].Validate(); err != nil {
			return fmt.Errorf("sink[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate validates a sink configuration
func (c *SinkConfig) Validate() error {
	switch c.Type {
	case "stdout":
	case "file":
		if c.FilePath == "" {
			return fmt.Errorf("file path is required for file output")
		}
		if c.FileMaxSize <= 0 {
			c.FileMaxSize = 100
		}
		if c.FileMaxAge <= 0 {
			c.FileMaxAge = 30
		}
		if c.FileMaxBackups <= 0 {
			c.FileMaxBackups = 10
		}
	case "syslog":
		if c.SyslogAddr == "" {
			return fmt.Errorf("syslog address is required for syslog output")
		}
	case "":
		return fmt.Errorf("audit sink type is required")
	default:
		return fmt.Errorf("invalid audit sink type: %s (must be stdout, file, or syslog)", c.Type)
	}
	return nil
}

// NewSink creates a built-in sink from its configuration
func NewSink(cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "stdout":
		return NewStdoutWriter(), nil
	case "file":
		return NewFileWriter(cfg.FilePath, cfg.FileMaxSize, cfg.FileMaxAge, cfg.FileMaxBackups)
	default:
		return NewSyslogWriter(cfg.SyslogProtocol, cfg.SyslogAddr)
	}
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	RuleID  string
	UserID  string
	Actions []types.AuditAction
	Since   time.Time
	Until   time.Time
	// Limit keeps only the most recent matches
	Limit int
}

func (f *Filter) matches(e *types.AuditLogEntry) bool {
	if f.RuleID != "" && e.RuleID != f.RuleID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Log is a capped ring buffer of audit entries. When full, the oldest entry
// is evicted. Appended entries are also handed to the forwarder, if any.
type Log struct {
	entries []*types.AuditLogEntry
	head    int
	count   int
	evicted uint64
	mu      sync.RWMutex

	forwarder *forwarder
	logger    *zap.Logger
}

// New creates an audit log forwarding to sinks
func New(cfg Config, logger *zap.Logger, sinks ...Sink) (*Log, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audit config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Log{
		entries: make([]*types.AuditLogEntry, cfg.Capacity),
		logger:  logger,
	}
	if len(sinks) > 0 {
		l.forwarder = newForwarder(sinks, cfg, logger)
	}
	return l, nil
}

// NewInMemory creates an audit log with the given capacity and no sinks
func NewInMemory(capacity int) *Log {
	cfg := DefaultConfig()
	cfg.Capacity = capacity
	l, _ := New(cfg, nil)
	return l
}

// Append adds an entry, evicting the oldest when the log is full.
// It reports whether an entry was evicted.
func (l *Log) Append(entry *types.AuditLogEntry) bool {
	l.mu.Lock()
	size := len(l.entries)
	evicted := false
	if l.count < size {
		l.entries[(l.head+l.count)%size] = entry
		l.count++
	} else {
		l.entries[l.head] = entry
		l.head = (l.head + 1) % size
		l.evicted++
		evicted = true
	}
	l.mu.Unlock()

	if l.forwarder != nil {
		l.forwarder.enqueue(entry)
	}
	return evicted
}

// Entries returns all retained entries, oldest first
func (l *Log) Entries() []*types.AuditLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*types.AuditLogEntry, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(l.head+i)%len(l.entries)])
	}
	return out
}

// Query returns retained entries matching the filter, oldest first
func (l *Log) Query(filter Filter) []*types.AuditLogEntry {
	var out []*types.AuditLogEntry
	for _, e := range l.Entries() {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Len returns the number of retained entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the maximum number of retained entries
func (l *Log) Capacity() int {
	return len(l.entries)
}

// Evicted returns how many entries have been evicted since creation
func (l *Log) Evicted() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}

// Flush forwards pending entries to the sinks now
func (l *Log) Flush() error {
	if l.forwarder == nil {
		return nil
	}
	return l.forwarder.flush()
}

// Close drains pending entries and closes the sinks
func (l *Log) Close() error {
	if l.forwarder == nil {
		return nil
	}
	return l.forwarder.close()
}
