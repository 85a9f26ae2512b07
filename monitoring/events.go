package monitoring

import (
	"math"
	"time"

	"loanapproval/ml"
)

// EventType distinguishes training events.
type EventType string

const (
	EventStarted   EventType = "started"
	EventEpoch     EventType = "epoch"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// TrainingEvent is one progress update of a training run.
type TrainingEvent struct {
	Type        EventType     `json:"type"`
	RunID       string        `json:"runId,omitempty"`
	Epoch       int           `json:"epoch"`
	TotalEpochs int           `json:"totalEpochs"`
	Percent     int           `json:"percent"`
	Logs        *ml.EpochLogs `json:"logs,omitempty"`
	Metrics     *ml.Metrics   `json:"metrics,omitempty"`
	Status      string        `json:"status,omitempty"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ProgressPercent reports progress against the planned epoch count, so a run
// that stops early jumps straight to its completion event.
func ProgressPercent(epoch, planned int) int {
	if planned <= 0 {
		return 0
	}
	p := int(math.Round(float64(epoch+1) / float64(planned) * 100))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// EpochEvent builds the event published after each epoch.
func EpochEvent(runID string, epoch, planned int, logs ml.EpochLogs) TrainingEvent {
	return TrainingEvent{
		Type:        EventEpoch,
		RunID:       runID,
		Epoch:       epoch,
		TotalEpochs: planned,
		Percent:     ProgressPercent(epoch, planned),
		Logs:        &logs,
		Timestamp:   time.Now(),
	}
}
