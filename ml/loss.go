package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const probabilityEpsilon = 1e-7

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func clipProbability(p float64) float64 {
	return math.Min(math.Max(p, probabilityEpsilon), 1-probabilityEpsilon)
}

// binaryCrossEntropy returns the mean loss of an n x 1 probability column
// against 0/1 targets.
func binaryCrossEntropy(probs mat.Matrix, y []float64) float64 {
	n := len(y)
	if n == 0 {
		return 0
	}
	s := 0.0
	for i := 0; i < n; i++ {
		p := clipProbability(probs.At(i, 0))
		s += -(y[i]*math.Log(p) + (1-y[i])*math.Log(1-p))
	}
	return s / float64(n)
}

// binaryAccuracy counts a prediction as positive when p > 0.5.
func binaryAccuracy(probs mat.Matrix, y []float64) float64 {
	n := len(y)
	if n == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < n; i++ {
		predicted := 0.0
		if probs.At(i, 0) > 0.5 {
			predicted = 1
		}
		if predicted == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(n)
}
