package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"loanapproval/db"
	"loanapproval/ml"
)

func testArtifact(t *testing.T) *ml.Artifact {
	t.Helper()
	rows := make([]ml.Record, 0, 40)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 40; i++ {
		status := "N"
		if i%2 == 0 {
			status = "Y"
		}
		rows = append(rows, ml.Record{
			ApplicantIncome: ml.Num(2000 + rng.Float64()*5000),
			LoanAmount:      ml.Num(100 + rng.Float64()*100),
			CreditHistory:   ml.Num(float64(i % 2)),
			PropertyArea:    []string{"Urban", "Rural"}[i%2],
			Gender:          "Male",
			LoanStatus:      status,
		})
	}
	cfg := ml.DefaultTrainerConfig()
	cfg.Epochs = 3
	cfg.Network.Hidden = []int{8}
	a, err := ml.NewTrainer(cfg, rand.New(rand.NewSource(2)), nil).Train(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return a
}

func backends(t *testing.T) map[string]Slots {
	t.Helper()
	files, err := NewFileSlots(filepath.Join(t.TempDir(), "slots"))
	if err != nil {
		t.Fatalf("file slots: %v", err)
	}
	sqlite, err := db.InitDB(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("sqlite slots: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Slots{
		"memory": NewMemorySlots(),
		"file":   files,
		"sqlite": sqlite,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	a := testArtifact(t)
	sample := ml.Record{ApplicantIncome: ml.Num(3000), CreditHistory: ml.Num(1), PropertyArea: "Rural"}
	want, err := ml.Predict(sample, a)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	for name, slots := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewModelStore(slots)
			if err := s.Save(context.Background(), a); err != nil {
				t.Fatalf("save: %v", err)
			}
			res := s.Load(context.Background())
			if res.Status != StatusFound {
				t.Fatalf("expected found, got %s (%v)", res.Status, res.Err)
			}
			loaded := res.Artifact()
			if diff := cmp.Diff(a.Preprocessor, loaded.Preprocessor); diff != "" {
				t.Fatalf("preprocessor changed (-want +got):\n%s", diff)
			}
			if loaded.RunID != a.RunID || loaded.Metrics != a.Metrics {
				t.Fatalf("metadata changed: %+v vs %+v", loaded.Metrics, a.Metrics)
			}
			got, err := ml.Predict(sample, loaded)
			if err != nil {
				t.Fatalf("predict: %v", err)
			}
			if math.Abs(got-want) > 1e-5 {
				t.Fatalf("prediction drifted: %v vs %v", got, want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	for name, slots := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res := NewModelStore(slots).Load(context.Background())
			if res.Status != StatusMissing {
				t.Fatalf("expected missing, got %s", res.Status)
			}
			if res.Artifact() != nil {
				t.Fatalf("expected no artifact")
			}
			if !errors.Is(res.Err, ErrSlotNotFound) {
				t.Fatalf("expected ErrSlotNotFound, got %v", res.Err)
			}
		})
	}
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	a := testArtifact(t)

	cases := map[string]func(s Slots){
		"unparsable preprocessor": func(s Slots) {
			s.Put(ctx, PreprocessorKey, []byte("{not json"))
		},
		"unparsable model": func(s Slots) {
			s.Put(ctx, ModelKey, []byte(`{"network":"nope"}`))
		},
		"feature mismatch": func(s Slots) {
			pp := *a.Preprocessor
			pp.Categories = map[string][]string{}
			for _, col := range ml.CategoricalColumns() {
				pp.Categories[col] = nil
			}
			pp.FeatureOrder = ml.NumericColumns()
			other := &ml.Artifact{Preprocessor: &pp, Network: a.Network}
			data, _ := json.Marshal(other.Preprocessor)
			s.Put(ctx, PreprocessorKey, data)
		},
	}
	for name, corruptFn := range cases {
		t.Run(name, func(t *testing.T) {
			slots := NewMemorySlots()
			s := NewModelStore(slots)
			if err := s.Save(ctx, a); err != nil {
				t.Fatalf("save: %v", err)
			}
			corruptFn(slots)
			res := s.Load(ctx)
			if res.Status != StatusCorrupt {
				t.Fatalf("expected corrupt, got %s", res.Status)
			}
			if res.Err == nil || res.Artifact() != nil {
				t.Fatalf("expected error and no artifact, got %v", res.Err)
			}
		})
	}
}

func TestSaveRejectsInvalidArtifact(t *testing.T) {
	s := NewModelStore(NewMemorySlots())
	if err := s.Save(context.Background(), nil); !errors.Is(err, ml.ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
}
