package ml

import "testing"

func TestEarlyStoppingPatience(t *testing.T) {
	es := NewEarlyStopping(7, 1e-4)
	seq := []float64{0.5, 0.6, 0.6, 0.6, 0.60005, 0.6, 0.6, 0.6, 0.6}
	for i, acc := range seq {
		stop := es.Observe(acc)
		if i < len(seq)-1 && stop {
			t.Fatalf("stopped too early at observation %d", i)
		}
		if i == len(seq)-1 && !stop {
			t.Fatalf("expected stop after 7 flat epochs")
		}
	}
	if es.Best() != 0.6 {
		t.Fatalf("expected best 0.6, got %v", es.Best())
	}
}

func TestEarlyStoppingResetsOnImprovement(t *testing.T) {
	es := NewEarlyStopping(2, 0)
	if es.Observe(0) {
		t.Fatalf("zero accuracy is not an improvement but should not stop yet")
	}
	if es.Observe(0.5) {
		t.Fatalf("improvement must not stop")
	}
	if es.Observe(0.5) {
		t.Fatalf("one flat epoch must not stop with patience 2")
	}
	if es.Observe(0.7) {
		t.Fatalf("improvement must reset patience")
	}
	if es.Observe(0.7) {
		t.Fatalf("one flat epoch must not stop")
	}
	if !es.Observe(0.7) {
		t.Fatalf("expected stop")
	}
}
