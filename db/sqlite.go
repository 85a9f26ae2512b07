package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get when a slot has never been written.
var ErrNotFound = errors.New("slot not found")

// DB is the SQLite backing for artifact slots and the training log.
type DB struct {
	database *sql.DB
}

// TrainingLog is one completed training run.
type TrainingLog struct {
	RunID       string    `json:"runId"`
	ValLoss     float64   `json:"valLoss"`
	ValAccuracy float64   `json:"valAccuracy"`
	Epochs      int       `json:"epochs"`
	DataPoints  int       `json:"dataPoints"`
	TrainedAt   time.Time `json:"trainedAt"`
}

// InitDB opens the SQLite database at path and creates the schema.
func InitDB(path string) (*DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// single writer keeps slot writes serialized
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS artifact_slots (
        slot_key TEXT PRIMARY KEY,
        payload BLOB NOT NULL,
        updated_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL UNIQUE,
        val_loss REAL,
        val_accuracy REAL,
        epochs INTEGER,
        data_points INTEGER,
        trained_at DATETIME
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &DB{database: database}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	if d == nil || d.database == nil {
		return nil
	}
	return d.database.Close()
}

// Put overwrites a slot.
func (d *DB) Put(ctx context.Context, key string, payload []byte) error {
	if d == nil || d.database == nil {
		return errors.New("database not initialized")
	}
	_, err := d.database.ExecContext(ctx, `
        INSERT OR REPLACE INTO artifact_slots (slot_key, payload, updated_at)
        VALUES (?, ?, ?)`,
		key, payload, time.Now().UTC())
	return err
}

// Get reads a slot, returning ErrNotFound when absent.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if d == nil || d.database == nil {
		return nil, errors.New("database not initialized")
	}
	var payload []byte
	err := d.database.QueryRowContext(ctx,
		`SELECT payload FROM artifact_slots WHERE slot_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// SaveTrainingLog appends a run to the training_log table.
func (d *DB) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	if d == nil || d.database == nil {
		return errors.New("database not initialized")
	}
	_, err := d.database.ExecContext(ctx, `
        INSERT OR REPLACE INTO training_log (run_id, val_loss, val_accuracy, epochs, data_points, trained_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		log.RunID, log.ValLoss, log.ValAccuracy, log.Epochs, log.DataPoints, log.TrainedAt.UTC())
	return err
}

// LoadTrainingLog returns runs newest first, at most limit entries when limit > 0.
func (d *DB) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if d == nil || d.database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.database.QueryContext(ctx, `
        SELECT run_id, val_loss, val_accuracy, epochs, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.RunID, &log.ValLoss, &log.ValAccuracy, &log.Epochs, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
