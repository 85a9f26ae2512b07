package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DatasetWatcher calls OnChange after the dataset file has been written and
// then left alone for the debounce interval.
type DatasetWatcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context, path string)
	logger   *zap.Logger
}

// NewDatasetWatcher calls onChange once per burst of writes to path.
func NewDatasetWatcher(path string, debounce time.Duration, onChange func(ctx context.Context, path string), logger *zap.Logger) *DatasetWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run blocks until ctx is done. The parent directory is watched so that
// editors which replace the file by rename are still seen.
func (w *DatasetWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("dataset watcher error", zap.Error(err))
		case <-timer.C:
			pending = false
			w.logger.Info("dataset changed", zap.String("path", w.path))
			if w.onChange != nil {
				w.onChange(ctx, w.path)
			}
		}
	}
}
