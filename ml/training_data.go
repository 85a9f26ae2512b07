package ml

import (
	"errors"
	"math"
	"math/rand"
)

var (
	ErrNoLabeledRows    = errors.New("dataset has no labeled rows")
	ErrInsufficientData = errors.New("dataset too small to split into training and validation sets")
)

// BuildMatrix transforms every labeled row, preserving row order. Approved
// rows are labeled 1 and all other labeled rows 0.
func BuildMatrix(rows []Record, pp *Preprocessor) (X [][]float64, y []float64) {
	X = make([][]float64, 0, len(rows))
	y = make([]float64, 0, len(rows))
	for _, r := range rows {
		approved, ok := r.Label()
		if !ok {
			continue
		}
		X = append(X, pp.Transform(r))
		if approved {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	return X, y
}

// SplitIndices permutes 0..n-1 with rng and assigns the first
// floor(n*trainFraction) indices to training and the rest to validation.
func SplitIndices(n int, trainFraction float64, rng *rand.Rand) (train, val []int) {
	if n <= 0 {
		return nil, nil
	}
	indices := rng.Perm(n)
	split := int(math.Floor(float64(n) * trainFraction))
	if split < 0 {
		split = 0
	}
	if split > n {
		split = n
	}
	return indices[:split], indices[split:]
}

func gatherRows(X [][]float64, y []float64, indices []int) ([][]float64, []float64) {
	xs := make([][]float64, len(indices))
	ys := make([]float64, len(indices))
	for i, idx := range indices {
		xs[i] = X[idx]
		ys[i] = y[idx]
	}
	return xs, ys
}
