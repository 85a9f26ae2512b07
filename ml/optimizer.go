package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer with bias-corrected moment estimates. State is
// allocated lazily for the layers of the first network it steps.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	step  int
	state []adamState
}

type adamState struct {
	mW, vW []float64
	mB, vB []float64
}

// NewAdam returns Adam with beta1 0.9, beta2 0.999 and epsilon 1e-7.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LearningRate: lr,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}

type layerGradient struct {
	dW *mat.Dense
	dB []float64
}

func (o *Adam) apply(layers []*denseLayer, grads []layerGradient) {
	if o.state == nil {
		o.state = make([]adamState, len(layers))
		for i, l := range layers {
			size := len(l.w.RawMatrix().Data)
			o.state[i] = adamState{
				mW: make([]float64, size),
				vW: make([]float64, size),
				mB: make([]float64, len(l.b)),
				vB: make([]float64, len(l.b)),
			}
		}
	}
	o.step++
	c1 := 1 - math.Pow(o.Beta1, float64(o.step))
	c2 := 1 - math.Pow(o.Beta2, float64(o.step))
	for i, l := range layers {
		s := &o.state[i]
		o.update(l.w.RawMatrix().Data, grads[i].dW.RawMatrix().Data, s.mW, s.vW, c1, c2)
		o.update(l.b, grads[i].dB, s.mB, s.vB, c1, c2)
	}
}

func (o *Adam) update(params, grads, m, v []float64, c1, c2 float64) {
	for j := range params {
		g := grads[j]
		m[j] = o.Beta1*m[j] + (1-o.Beta1)*g
		v[j] = o.Beta2*v[j] + (1-o.Beta2)*g*g
		mHat := m[j] / c1
		vHat := v[j] / c2
		params[j] -= o.LearningRate * mHat / (math.Sqrt(vHat) + o.Epsilon)
	}
}
