package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSlotsPutGet(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if _, err := d.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := d.Put(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := d.Put(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := d.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestTrainingLog(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		err := d.SaveTrainingLog(ctx, TrainingLog{
			RunID:       id,
			ValLoss:     0.5,
			ValAccuracy: 0.8,
			Epochs:      10 + i,
			DataPoints:  100,
			TrainedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	logs, err := d.LoadTrainingLog(ctx, 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].RunID != "c" || logs[1].RunID != "b" {
		t.Fatalf("expected newest first, got %s, %s", logs[0].RunID, logs[1].RunID)
	}
	if logs[0].Epochs != 12 {
		t.Fatalf("unexpected epochs %d", logs[0].Epochs)
	}

	all, err := d.LoadTrainingLog(ctx, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}

func TestUninitializedDB(t *testing.T) {
	var d *DB
	if err := d.Put(context.Background(), "k", nil); err == nil {
		t.Fatalf("expected error")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
