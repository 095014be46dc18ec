package policy

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDirWatcher_ReloadsAfterChange(t *testing.T) {
	tmpDir := t.TempDir()

	var reloads atomic.Int32
	watcher, err := NewDirWatcher(tmpDir, func() error {
		reloads.Add(1)
		return nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	watcher.SetDebounceTimeout(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := watcher.Watch(ctx); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	if !watcher.IsWatching() {
		t.Error("Expected watcher to be running")
	}
	if err := watcher.Watch(ctx); err == nil {
		t.Error("Expected error when starting a running watcher")
	}

	// Several writes inside the debounce window collapse into one reload
	path := filepath.Join(tmpDir, "templates.yaml")
	for i := 0; i < 3; i++ {
		writeFile(t, path, seedRules)
	}
	writeFile(t, filepath.Join(tmpDir, "notes.txt"), "ignored")

	select {
	case event := <-watcher.EventChan():
		if event.Error != nil {
			t.Errorf("Unexpected reload error: %v", event.Error)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for reload")
	}

	if got := reloads.Load(); got != 1 {
		t.Errorf("Expected 1 reload, got %d", got)
	}
}

func TestDirWatcher_StopIsIdempotent(t *testing.T) {
	watcher, err := NewDirWatcher(t.TempDir(), func() error { return nil }, nil)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := watcher.Watch(context.Background()); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

func TestDirWatcher_MissingDirectory(t *testing.T) {
	watcher, err := NewDirWatcher(filepath.Join(t.TempDir(), "missing"), func() error { return nil }, nil)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Watch(context.Background()); err == nil {
		t.Error("Expected error watching a missing directory")
	}
	if watcher.IsWatching() {
		t.Error("Watcher should not be running")
	}
}
