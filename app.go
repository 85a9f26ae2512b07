package main

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"loanapproval/config"
	"loanapproval/db"
	"loanapproval/store"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSlots builds the artifact storage selected by the config. The returned
// training log is nil unless the SQLite driver is used.
func openSlots(cfg config.StoreConfig, logger *zap.Logger) (store.Slots, *db.DB, io.Closer, error) {
	switch cfg.Driver {
	case "sqlite":
		database, err := db.InitDB(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.Path))
		return database, database, database, nil
	case "file":
		slots, err := store.NewFileSlots(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("file store opened", zap.String("dir", cfg.Path))
		return slots, nil, nopCloser{}, nil
	default:
		logger.Warn("using in-memory store, models will not survive a restart")
		return store.NewMemorySlots(), nil, nopCloser{}, nil
	}
}
