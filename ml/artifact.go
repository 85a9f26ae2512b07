package ml

import (
	"errors"
	"fmt"
	"time"
)

// ErrModelNotReady is returned when no trained model is available.
var ErrModelNotReady = errors.New("model not ready")

// Metrics summarizes a completed training run.
type Metrics struct {
	ValLoss      float64 `json:"valLoss"`
	ValAccuracy  float64 `json:"valAccuracy"`
	Epochs       int     `json:"epochs"`
	StoppedEarly bool    `json:"stoppedEarly"`
	TrainRows    int     `json:"trainRows"`
	ValRows      int     `json:"valRows"`
}

// Artifact is the unit of persistence: a network together with the
// preprocessor that produced its inputs. The two never travel separately.
type Artifact struct {
	RunID        string
	Preprocessor *Preprocessor
	Network      *Network
	Metrics      Metrics
	TrainedAt    time.Time
}

// Validate checks that the network and preprocessor agree on the feature layout.
func (a *Artifact) Validate() error {
	if a == nil {
		return ErrModelNotReady
	}
	if a.Network == nil {
		return errors.New("artifact has no network")
	}
	if err := a.Preprocessor.Validate(); err != nil {
		return fmt.Errorf("artifact preprocessor: %w", err)
	}
	if a.Network.InputSize() != a.Preprocessor.FeatureCount() {
		return fmt.Errorf("network expects %d features, preprocessor yields %d",
			a.Network.InputSize(), a.Preprocessor.FeatureCount())
	}
	return nil
}
