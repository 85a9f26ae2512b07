package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDatasetWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loans.csv")
	if err := os.WriteFile(path, []byte("a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	changed := make(chan string, 10)
	w := NewDatasetWatcher(path, 100*time.Millisecond, func(ctx context.Context, p string) {
		changed <- p
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case p := <-changed:
		if p != path {
			t.Fatalf("unexpected path %s", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no change notification")
	}

	select {
	case <-changed:
		t.Fatalf("burst of writes produced more than one notification")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop")
	}
}
