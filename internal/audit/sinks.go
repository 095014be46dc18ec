package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/syslog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// Sink persists audit entries beyond the in-memory log
type Sink interface {
	Write(ctx context.Context, entry *types.AuditLogEntry) error
	Close() error
}

// jsonLines writes one JSON document per entry
type jsonLines struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

func (s *jsonLines) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(entry)
}

func (s *jsonLines) Close() error {
	if s.closer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closer.Close()
}

// NewStdoutWriter creates a sink writing JSON lines to stdout
func NewStdoutWriter() Sink {
	return NewStreamWriter(os.Stdout)
}

// NewStreamWriter creates a sink writing JSON lines to w. Closing the sink
// leaves w open.
func NewStreamWriter(w io.Writer) Sink {
	return &jsonLines{enc: json.NewEncoder(w)}
}

// NewFileWriter creates a JSON lines sink on a size-rotated, compressed file.
// The parent directory is created when missing.
func NewFileWriter(filename string, maxSizeMB, maxAgeDays, maxBackups int) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAgeDays,
		MaxBackups: maxBackups,
		LocalTime:  true,
		Compress:   true,
	}
	return &jsonLines{enc: json.NewEncoder(rotator), closer: rotator}, nil
}

// syslogSink sends each entry as a JSON message. Deletions are logged at
// warning severity, everything else at info.
type syslogSink struct {
	mu sync.Mutex
	w  *syslog.Writer
}

// NewSyslogWriter dials a syslog daemon; protocol defaults to tcp
func NewSyslogWriter(protocol, address string) (Sink, error) {
	if protocol == "" {
		protocol = "tcp"
	}

	w, err := syslog.Dial(protocol, address, syslog.LOG_INFO|syslog.LOG_LOCAL0, "permission-engine")
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}
	return &syslogSink{w: w}, nil
}

func (s *syslogSink) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Action == types.AuditDelete {
		return s.w.Warning(string(data))
	}
	return s.w.Info(string(data))
}

func (s *syslogSink) Close() error {
	return s.w.Close()
}
