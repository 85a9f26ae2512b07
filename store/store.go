// Package store persists trained artifacts under two fixed slot keys: one for
// the network and its metrics, one for the preprocessor.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loanapproval/db"
	"loanapproval/ml"
)

const (
	ModelKey        = "loan-approval-model-v1"
	PreprocessorKey = "loan-approval-pp"
)

// ErrSlotNotFound is returned by Slots.Get for a key that was never written.
var ErrSlotNotFound = db.ErrNotFound

// Slots is a key/value byte store.
type Slots interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Status is the outcome of a load.
type Status string

const (
	StatusFound   Status = "found"
	StatusMissing Status = "missing"
	StatusCorrupt Status = "corrupt"
)

// LoadResult reports what Load found. Err carries the cause when Status is
// not StatusFound.
type LoadResult struct {
	Status Status
	Err    error

	artifact *ml.Artifact
}

// Artifact returns the loaded artifact, or nil unless Status is StatusFound.
func (r LoadResult) Artifact() *ml.Artifact {
	if r.Status != StatusFound {
		return nil
	}
	return r.artifact
}

type modelDocument struct {
	RunID     string          `json:"runId"`
	TrainedAt time.Time       `json:"trainedAt"`
	Metrics   ml.Metrics      `json:"metrics"`
	Network   json.RawMessage `json:"network"`
}

// ModelStore persists artifacts as a model slot and a preprocessor slot.
type ModelStore struct {
	slots Slots
}

// NewModelStore returns a store over slots.
func NewModelStore(slots Slots) *ModelStore {
	return &ModelStore{slots: slots}
}

// Save overwrites both slots, model first.
func (s *ModelStore) Save(ctx context.Context, a *ml.Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save artifact: %w", err)
	}
	network, err := json.Marshal(a.Network)
	if err != nil {
		return fmt.Errorf("encode network: %w", err)
	}
	model, err := json.Marshal(modelDocument{
		RunID:     a.RunID,
		TrainedAt: a.TrainedAt,
		Metrics:   a.Metrics,
		Network:   network,
	})
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	pp, err := json.Marshal(a.Preprocessor)
	if err != nil {
		return fmt.Errorf("encode preprocessor: %w", err)
	}

	if err := s.slots.Put(ctx, ModelKey, model); err != nil {
		return fmt.Errorf("write %s: %w", ModelKey, err)
	}
	if err := s.slots.Put(ctx, PreprocessorKey, pp); err != nil {
		return fmt.Errorf("write %s: %w", PreprocessorKey, err)
	}
	return nil
}

// Load reads both slots. It never fails outright; problems are reported
// through the result status.
func (s *ModelStore) Load(ctx context.Context) LoadResult {
	model, err := s.slots.Get(ctx, ModelKey)
	if res, done := slotResult(ModelKey, err); done {
		return res
	}
	ppData, err := s.slots.Get(ctx, PreprocessorKey)
	if res, done := slotResult(PreprocessorKey, err); done {
		return res
	}

	var pp ml.Preprocessor
	if err := json.Unmarshal(ppData, &pp); err != nil {
		return corrupt(fmt.Errorf("decode preprocessor: %w", err))
	}
	var doc modelDocument
	if err := json.Unmarshal(model, &doc); err != nil {
		return corrupt(fmt.Errorf("decode model: %w", err))
	}
	var network ml.Network
	if err := json.Unmarshal(doc.Network, &network); err != nil {
		return corrupt(fmt.Errorf("decode network: %w", err))
	}

	a := &ml.Artifact{
		RunID:        doc.RunID,
		Preprocessor: &pp,
		Network:      &network,
		Metrics:      doc.Metrics,
		TrainedAt:    doc.TrainedAt,
	}
	if err := a.Validate(); err != nil {
		return corrupt(err)
	}
	return LoadResult{Status: StatusFound, artifact: a}
}

func slotResult(key string, err error) (LoadResult, bool) {
	switch {
	case err == nil:
		return LoadResult{}, false
	case errors.Is(err, ErrSlotNotFound):
		return LoadResult{Status: StatusMissing, Err: fmt.Errorf("%s: %w", key, err)}, true
	default:
		return corrupt(fmt.Errorf("read %s: %w", key, err)), true
	}
}

func corrupt(err error) LoadResult {
	return LoadResult{Status: StatusCorrupt, Err: err}
}

var (
	_ Slots = (*MemorySlots)(nil)
	_ Slots = (*FileSlots)(nil)
	_ Slots = (*db.DB)(nil)
)
