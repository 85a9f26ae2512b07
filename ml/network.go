package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const networkFormatVersion = "loan-mlp.v1"

// Activation names a layer activation function.
type Activation string

const (
	ActivationReLU    Activation = "relu"
	ActivationSigmoid Activation = "sigmoid"
)

// NetworkConfig describes the hidden stack of the classifier. The output is
// always a single sigmoid unit.
type NetworkConfig struct {
	Hidden      []int   `json:"hidden"`
	DropoutRate float64 `json:"dropoutRate"`
	// DropoutAfter is the index of the hidden layer followed by dropout, -1 for none.
	DropoutAfter int     `json:"dropoutAfter"`
	L2           float64 `json:"l2"`
}

// DefaultNetworkConfig is the 64-32-1 network with dropout after the first layer.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Hidden:       []int{64, 32},
		DropoutRate:  0.1,
		DropoutAfter: 0,
		L2:           1e-4,
	}
}

type denseLayer struct {
	w       *mat.Dense
	b       []float64
	act     Activation
	l2      float64
	dropout float64
}

// Network is a small fully connected binary classifier.
type Network struct {
	inputSize int
	config    NetworkConfig
	layers    []*denseLayer
}

// NewNetwork builds a Glorot-initialized network for inputSize features.
func NewNetwork(inputSize int, config NetworkConfig, rng *rand.Rand) (*Network, error) {
	if inputSize <= 0 {
		return nil, errors.New("input size must be positive")
	}
	if config.DropoutRate < 0 || config.DropoutRate >= 1 {
		return nil, errors.New("dropout rate must be in [0, 1)")
	}
	for _, units := range config.Hidden {
		if units <= 0 {
			return nil, errors.New("hidden units must be positive")
		}
	}

	n := &Network{inputSize: inputSize, config: config}
	in := inputSize
	for i, units := range config.Hidden {
		l := newDenseLayer(in, units, ActivationReLU, rng)
		l.l2 = config.L2
		if i == config.DropoutAfter {
			l.dropout = config.DropoutRate
		}
		n.layers = append(n.layers, l)
		in = units
	}
	n.layers = append(n.layers, newDenseLayer(in, 1, ActivationSigmoid, rng))
	return n, nil
}

// newDenseLayer initializes the kernel with Glorot uniform values and zero bias.
func newDenseLayer(in, out int, act Activation, rng *rand.Rand) *denseLayer {
	limit := math.Sqrt(6.0 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return &denseLayer{
		w:   mat.NewDense(in, out, data),
		b:   make([]float64, out),
		act: act,
	}
}

// InputSize returns the expected feature count.
func (n *Network) InputSize() int {
	return n.inputSize
}

// Config returns the layer configuration.
func (n *Network) Config() NetworkConfig {
	return n.config
}

// Forward runs inference on a batch (one row per sample) and returns an
// n x 1 matrix of probabilities. Dropout is inactive.
func (n *Network) Forward(x mat.Matrix) *mat.Dense {
	var a mat.Matrix = x
	var out *mat.Dense
	for _, l := range n.layers {
		z := l.affine(a)
		out = activate(z, l.act)
		a = out
	}
	return out
}

// PredictProba scores a single feature vector.
func (n *Network) PredictProba(features []float64) (float64, error) {
	if len(features) != n.inputSize {
		return 0, fmt.Errorf("expected %d features, got %d", n.inputSize, len(features))
	}
	x := mat.NewDense(1, len(features), append([]float64(nil), features...))
	return n.Forward(x).At(0, 0), nil
}

// Evaluate returns binary cross-entropy and accuracy over a batch. The L2
// penalty is only part of the training loss.
func (n *Network) Evaluate(x mat.Matrix, y []float64) (loss, acc float64) {
	probs := n.Forward(x)
	return binaryCrossEntropy(probs, y), binaryAccuracy(probs, y)
}

func (n *Network) penalty() float64 {
	s := 0.0
	for _, l := range n.layers {
		if l.l2 == 0 {
			continue
		}
		w := l.w.RawMatrix().Data
		s += l.l2 * floats.Dot(w, w)
	}
	return s
}

func (l *denseLayer) affine(a mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(a, l.w)
	rows, cols := z.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			z.Set(i, j, z.At(i, j)+l.b[j])
		}
	}
	return &z
}

func activate(z *mat.Dense, act Activation) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if act == ActivationSigmoid {
			return sigmoid(v)
		}
		return relu(v)
	}, z)
	return &out
}

type layerCache struct {
	in   mat.Matrix
	z    *mat.Dense
	mask *mat.Dense
}

// trainBatch runs one forward/backward pass with dropout and applies the
// optimizer. It returns the batch loss (with penalty) and accuracy measured
// on the training-mode outputs.
func (n *Network) trainBatch(x *mat.Dense, y []float64, opt *Adam, rng *rand.Rand) (float64, float64) {
	caches := make([]layerCache, len(n.layers))
	var a mat.Matrix = x
	var out *mat.Dense
	for i, l := range n.layers {
		z := l.affine(a)
		out = activate(z, l.act)
		var mask *mat.Dense
		if l.dropout > 0 {
			r, c := out.Dims()
			mask = dropoutMask(r, c, l.dropout, rng)
			out.MulElem(out, mask)
		}
		caches[i] = layerCache{in: a, z: z, mask: mask}
		a = out
	}
	probs := out
	loss := binaryCrossEntropy(probs, y) + n.penalty()
	acc := binaryAccuracy(probs, y)

	batch := float64(len(y))
	rows, _ := probs.Dims()
	delta := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		delta.Set(i, 0, (probs.At(i, 0)-y[i])/batch)
	}

	grads := make([]layerGradient, len(n.layers))
	last := len(n.layers) - 1
	for i := last; i >= 0; i-- {
		l := n.layers[i]
		c := caches[i]
		dz := delta
		if i != last {
			dz = mat.DenseCopyOf(delta)
			if c.mask != nil {
				dz.MulElem(dz, c.mask)
			}
			dz.Apply(func(r, col int, v float64) float64 {
				return v * activationPrime(c.z.At(r, col), l.act)
			}, dz)
		}

		var dW mat.Dense
		dW.Mul(c.in.T(), dz)
		if l.l2 > 0 {
			var reg mat.Dense
			reg.Scale(2*l.l2, l.w)
			dW.Add(&dW, &reg)
		}
		_, cols := dz.Dims()
		dB := make([]float64, cols)
		for j := 0; j < cols; j++ {
			dB[j] = mat.Sum(dz.ColView(j))
		}
		grads[i] = layerGradient{dW: &dW, dB: dB}

		if i > 0 {
			var prev mat.Dense
			prev.Mul(dz, l.w.T())
			delta = &prev
		}
	}
	opt.apply(n.layers, grads)
	return loss, acc
}

func activationPrime(z float64, act Activation) float64 {
	if act == ActivationSigmoid {
		s := sigmoid(z)
		return s * (1 - s)
	}
	if z > 0 {
		return 1
	}
	return 0
}

// dropoutMask builds an inverted dropout mask: kept units are scaled by
// 1/(1-rate) so inference needs no rescaling.
func dropoutMask(rows, cols int, rate float64, rng *rand.Rand) *mat.Dense {
	keep := 1 - rate
	data := make([]float64, rows*cols)
	for i := range data {
		if rng.Float64() < keep {
			data[i] = 1 / keep
		}
	}
	return mat.NewDense(rows, cols, data)
}

type layerDocument struct {
	Units      int        `json:"units"`
	Activation Activation `json:"activation"`
	L2         float64    `json:"l2,omitempty"`
	Dropout    float64    `json:"dropout,omitempty"`
	Kernel     []byte     `json:"kernel"`
	Bias       []float64  `json:"bias"`
}

type networkDocument struct {
	Version   string          `json:"version"`
	InputSize int             `json:"inputSize"`
	Config    NetworkConfig   `json:"config"`
	Layers    []layerDocument `json:"layers"`
}

func (n *Network) MarshalJSON() ([]byte, error) {
	doc := networkDocument{
		Version:   networkFormatVersion,
		InputSize: n.inputSize,
		Config:    n.config,
		Layers:    make([]layerDocument, 0, len(n.layers)),
	}
	for _, l := range n.layers {
		kernel, err := l.w.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode kernel: %w", err)
		}
		_, units := l.w.Dims()
		doc.Layers = append(doc.Layers, layerDocument{
			Units:      units,
			Activation: l.act,
			L2:         l.l2,
			Dropout:    l.dropout,
			Kernel:     kernel,
			Bias:       append([]float64(nil), l.b...),
		})
	}
	return json.Marshal(doc)
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var doc networkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Version != networkFormatVersion {
		return fmt.Errorf("unsupported network format %q", doc.Version)
	}
	if doc.InputSize <= 0 || len(doc.Layers) == 0 {
		return errors.New("network document has no layers")
	}

	layers := make([]*denseLayer, 0, len(doc.Layers))
	in := doc.InputSize
	for i, ld := range doc.Layers {
		if ld.Activation != ActivationReLU && ld.Activation != ActivationSigmoid {
			return fmt.Errorf("layer %d: unknown activation %q", i, ld.Activation)
		}
		var w mat.Dense
		if err := w.UnmarshalBinary(ld.Kernel); err != nil {
			return fmt.Errorf("layer %d: decode kernel: %w", i, err)
		}
		rows, cols := w.Dims()
		if rows != in || cols != ld.Units || len(ld.Bias) != cols {
			return fmt.Errorf("layer %d: shape %dx%d does not follow input %d", i, rows, cols, in)
		}
		layers = append(layers, &denseLayer{
			w:       &w,
			b:       ld.Bias,
			act:     ld.Activation,
			l2:      ld.L2,
			dropout: ld.Dropout,
		})
		in = cols
	}
	if in != 1 || layers[len(layers)-1].act != ActivationSigmoid {
		return errors.New("network must end in a single sigmoid unit")
	}

	n.inputSize = doc.InputSize
	n.config = doc.Config
	n.layers = layers
	return nil
}
