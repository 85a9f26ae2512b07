package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// TrainerConfig holds the training hyperparameters.
type TrainerConfig struct {
	Epochs        int
	BatchSize     int
	LearningRate  float64
	TrainFraction float64
	Patience      int
	MinDelta      float64
	Network       NetworkConfig
}

// DefaultTrainerConfig is 50 epochs of batch 32 at learning rate 0.01.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:        50,
		BatchSize:     32,
		LearningRate:  0.01,
		TrainFraction: 0.8,
		Patience:      7,
		MinDelta:      1e-4,
		Network:       DefaultNetworkConfig(),
	}
}

// Validate rejects out-of-range hyperparameters.
func (c TrainerConfig) Validate() error {
	if c.Epochs <= 0 {
		return errors.New("epochs must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if c.LearningRate <= 0 {
		return errors.New("learning rate must be positive")
	}
	if c.TrainFraction <= 0 || c.TrainFraction >= 1 {
		return errors.New("train fraction must be in (0, 1)")
	}
	if c.Patience <= 0 {
		return errors.New("patience must be positive")
	}
	return nil
}

// EpochLogs are the metrics available at the end of an epoch.
type EpochLogs struct {
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"acc"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_acc"`
}

// EpochCallback receives progress once per completed epoch. It is purely
// informational and cannot influence training.
type EpochCallback func(epoch int, logs EpochLogs)

// Trainer fits a preprocessor and a network on a dataset. All randomness
// (split, initialization, shuffling, dropout) is drawn from the injected
// generator, so a fixed seed reproduces a run.
type Trainer struct {
	config TrainerConfig
	rng    *rand.Rand
	logger *zap.Logger
}

// NewTrainer returns a trainer drawing all randomness from rng.
func NewTrainer(config TrainerConfig, rng *rand.Rand, logger *zap.Logger) *Trainer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{config: config, rng: rng, logger: logger}
}

// Config returns the trainer configuration.
func (t *Trainer) Config() TrainerConfig {
	return t.config
}

type trainingTensors struct {
	xTrain *mat.Dense
	yTrain []float64
	xVal   *mat.Dense
	yVal   []float64
}

func (tt *trainingTensors) release() {
	tt.xTrain, tt.yTrain = nil, nil
	tt.xVal, tt.yVal = nil, nil
}

func denseFromRows(rows [][]float64, cols int) *mat.Dense {
	data := make([]float64, 0, len(rows)*cols)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), cols, data)
}

// Train runs one full training attempt. Cancellation is checked between
// epochs; the partially trained network is discarded when ctx is done.
func (t *Trainer) Train(ctx context.Context, rows []Record, onEpoch EpochCallback) (*Artifact, error) {
	if err := t.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trainer config: %w", err)
	}

	pp := Fit(rows)
	X, y := BuildMatrix(rows, pp)
	if len(X) == 0 {
		return nil, ErrNoLabeledRows
	}
	trainIdx, valIdx := SplitIndices(len(X), t.config.TrainFraction, t.rng)
	if len(trainIdx) == 0 || len(valIdx) == 0 {
		return nil, fmt.Errorf("%w: %d labeled rows", ErrInsufficientData, len(X))
	}

	inputSize := pp.FeatureCount()
	xs, ys := gatherRows(X, y, trainIdx)
	xv, yv := gatherRows(X, y, valIdx)
	tensors := &trainingTensors{
		xTrain: denseFromRows(xs, inputSize),
		yTrain: ys,
		xVal:   denseFromRows(xv, inputSize),
		yVal:   yv,
	}
	defer tensors.release()

	network, err := NewNetwork(inputSize, t.config.Network, t.rng)
	if err != nil {
		return nil, err
	}
	opt := NewAdam(t.config.LearningRate)
	stopper := NewEarlyStopping(t.config.Patience, t.config.MinDelta)

	t.logger.Info("training started",
		zap.Int("rows", len(X)),
		zap.Int("train_rows", len(trainIdx)),
		zap.Int("val_rows", len(valIdx)),
		zap.Int("features", inputSize))

	epochs := 0
	stoppedEarly := false
	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled after %d epochs: %w", epochs, err)
		}

		logs := t.runEpoch(network, opt, tensors)
		epochs++
		if onEpoch != nil {
			onEpoch(epoch, logs)
		}
		t.logger.Debug("epoch finished",
			zap.Int("epoch", epoch),
			zap.Float64("loss", logs.Loss),
			zap.Float64("acc", logs.Accuracy),
			zap.Float64("val_loss", logs.ValLoss),
			zap.Float64("val_acc", logs.ValAccuracy))

		if stopper.Observe(logs.ValAccuracy) {
			stoppedEarly = true
			break
		}
		runtime.Gosched()
	}

	valLoss, valAcc := network.Evaluate(tensors.xVal, tensors.yVal)
	artifact := &Artifact{
		RunID:        uuid.NewString(),
		Preprocessor: pp,
		Network:      network,
		Metrics: Metrics{
			ValLoss:      valLoss,
			ValAccuracy:  valAcc,
			Epochs:       epochs,
			StoppedEarly: stoppedEarly,
			TrainRows:    len(trainIdx),
			ValRows:      len(valIdx),
		},
		TrainedAt: time.Now().UTC(),
	}
	t.logger.Info("training finished",
		zap.String("run_id", artifact.RunID),
		zap.Int("epochs", epochs),
		zap.Bool("stopped_early", stoppedEarly),
		zap.Float64("val_loss", valLoss),
		zap.Float64("val_acc", valAcc))
	return artifact, nil
}

func (t *Trainer) runEpoch(network *Network, opt *Adam, tensors *trainingTensors) EpochLogs {
	n := len(tensors.yTrain)
	_, cols := tensors.xTrain.Dims()
	order := t.rng.Perm(n)

	var lossSum, accSum float64
	for start := 0; start < n; start += t.config.BatchSize {
		end := start + t.config.BatchSize
		if end > n {
			end = n
		}
		size := end - start
		data := make([]float64, 0, size*cols)
		by := make([]float64, size)
		for i, idx := range order[start:end] {
			data = append(data, tensors.xTrain.RawRowView(idx)...)
			by[i] = tensors.yTrain[idx]
		}
		loss, acc := network.trainBatch(mat.NewDense(size, cols, data), by, opt, t.rng)
		lossSum += loss * float64(size)
		accSum += acc * float64(size)
	}

	valLoss, valAcc := network.Evaluate(tensors.xVal, tensors.yVal)
	return EpochLogs{
		Loss:        lossSum / float64(n),
		Accuracy:    accSum / float64(n),
		ValLoss:     valLoss,
		ValAccuracy: valAcc,
	}
}
