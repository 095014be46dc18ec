package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// forwarder hands audit entries to sinks asynchronously through a ring buffer
type forwarder struct {
	sinks  []Sink
	logger *zap.Logger

	// Ring buffer of pending entries
	buffer  []*types.AuditLogEntry
	size    int
	head    int
	tail    int
	dropped uint64
	mu      sync.Mutex

	// Serializes flushes so sinks see entries in order
	flushMu sync.Mutex

	flushCh  chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
	interval time.Duration
	closeErr error
	closed   sync.Once
}

func newForwarder(sinks []Sink, cfg Config, logger *zap.Logger) *forwarder {
	f := &forwarder{
		sinks:  sinks,
		logger: logger,
		// one slot stays empty to tell full from empty
		buffer:   make([]*types.AuditLogEntry, cfg.BufferSize+1),
		size:     cfg.BufferSize + 1,
		flushCh:  make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		interval: cfg.FlushInterval,
	}

	f.wg.Add(1)
	go f.run()

	return f
}

// enqueue adds an entry to the ring buffer (non-blocking)
func (f *forwarder) enqueue(entry *types.AuditLogEntry) {
	f.mu.Lock()
	f.buffer[f.tail] = entry
	f.tail = (f.tail + 1) % f.size

	// Drop oldest if buffer full
	if f.tail == f.head {
		f.head = (f.head + 1) % f.size
		f.dropped++
		f.logger.Warn("Audit forward buffer full, dropping oldest entry")
	}
	f.mu.Unlock()

	select {
	case f.flushCh <- struct{}{}:
	default:
	}
}

func (f *forwarder) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = f.flush()
		case <-f.flushCh:
			_ = f.flush()
		case <-f.doneCh:
			_ = f.flush()
			return
		}
	}
}

// flush writes all pending entries to every sink
func (f *forwarder) flush() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.mu.Lock()
	entries := f.drain()
	f.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	ctx := context.Background()
	var errs []error
	for _, entry := range entries {
		for _, sink := range f.sinks {
			if err := sink.Write(ctx, entry); err != nil {
				f.logger.Error("Failed to forward audit entry",
					zap.String("entry_id", entry.ID),
					zap.String("rule_id", entry.RuleID),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// drain copies pending entries out of the ring buffer and clears it
func (f *forwarder) drain() []*types.AuditLogEntry {
	if f.head == f.tail {
		return nil
	}

	var entries []*types.AuditLogEntry
	for i := f.head; i != f.tail; i = (i + 1) % f.size {
		entries = append(entries, f.buffer[i])
		f.buffer[i] = nil
	}
	f.head = f.tail

	return entries
}

func (f *forwarder) close() error {
	f.closed.Do(func() {
		close(f.doneCh)
		f.wg.Wait()

		var errs []error
		for _, sink := range f.sinks {
			if err := sink.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}
