package ml

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func trainedArtifact(t *testing.T) *Artifact {
	t.Helper()
	a, err := NewTrainer(smallTrainerConfig(), rand.New(rand.NewSource(4)), nil).
		Train(context.Background(), syntheticRows(80, 4), nil)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return a
}

func TestPredictWithoutModel(t *testing.T) {
	if _, err := Predict(Record{}, nil); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
	if _, err := Predict(Record{}, &Artifact{}); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
	if _, err := NewPredictor(nil, 10); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
}

func TestPredictorCachesByFeatureVector(t *testing.T) {
	a := trainedArtifact(t)
	p, err := NewPredictor(a, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := Record{ApplicantIncome: Num(4000), CreditHistory: Num(1), PropertyArea: "Rural"}
	first, err := p.Predict(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first < 0 || first > 1 {
		t.Fatalf("probability out of range: %v", first)
	}
	// the loan id does not reach the feature vector
	row.LoanID = "LP999999"
	second, _ := p.Predict(row)
	if first != second {
		t.Fatalf("cached prediction differs: %v vs %v", first, second)
	}
	if p.CacheLen() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", p.CacheLen())
	}

	direct, _ := Predict(row, a)
	if direct != first {
		t.Fatalf("predictor disagrees with Predict: %v vs %v", first, direct)
	}
}

func TestPredictorWithoutCache(t *testing.T) {
	p, err := NewPredictor(trainedArtifact(t), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Predict(Record{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CacheLen() != 0 {
		t.Fatalf("expected no cache")
	}
}
