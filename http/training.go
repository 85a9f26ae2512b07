package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"loanapproval/db"
	"loanapproval/ml"
	"loanapproval/monitoring"
	"loanapproval/store"
)

// ErrTrainingInProgress is returned when a run is already active.
var ErrTrainingInProgress = errors.New("training already in progress")

const (
	statusIdle      = "Idle"
	statusLoaded    = "Loaded saved model."
	statusLoading   = "Loading dataset..."
	statusTraining  = "Training model..."
	statusFailed    = "Error during training"
	statusCancelled = "Training cancelled"
)

// DatasetLoader reads the training dataset.
type DatasetLoader interface {
	Load(ctx context.Context, path string) ([]ml.Record, error)
}

// TrainingLog records completed runs. Optional.
type TrainingLog interface {
	SaveTrainingLog(ctx context.Context, log db.TrainingLog) error
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
}

// ServiceConfig configures a TrainingService.
type ServiceConfig struct {
	DatasetPath string
	Trainer     ml.TrainerConfig
	// Seed fixes all training randomness when non-zero.
	Seed      int64
	CacheSize int
	Threshold float64
	// AutoTrain trains on Start when no usable model is stored.
	AutoTrain bool
}

// TrainingService owns the current model and serializes training runs.
type TrainingService struct {
	config  ServiceConfig
	store   *store.ModelStore
	loader  DatasetLoader
	log     TrainingLog
	hub     *monitoring.ProgressHub
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger

	training atomic.Bool
	baseCtx  context.Context
	wg       sync.WaitGroup

	mu         sync.RWMutex
	predictor  ml.ArtifactScorer
	statusText string
	lastError  string
	lastEpochs int
}

// ServiceOption customizes a TrainingService.
type ServiceOption func(*TrainingService)

// WithTrainingLog records completed runs in log.
func WithTrainingLog(log TrainingLog) ServiceOption {
	return func(s *TrainingService) { s.log = log }
}

// WithProgressHub publishes training events to hub.
func WithProgressHub(hub *monitoring.ProgressHub) ServiceOption {
	return func(s *TrainingService) { s.hub = hub }
}

// WithMetrics replaces the default metrics collector.
func WithMetrics(metrics *monitoring.MetricsCollector) ServiceOption {
	return func(s *TrainingService) { s.metrics = metrics }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *TrainingService) { s.logger = logger }
}

// NewTrainingService returns a service with no model loaded. Call Start to load one.
func NewTrainingService(config ServiceConfig, modelStore *store.ModelStore, loader DatasetLoader, opts ...ServiceOption) *TrainingService {
	if config.Threshold <= 0 || config.Threshold >= 1 {
		config.Threshold = 0.5
	}
	s := &TrainingService{
		config:     config,
		store:      modelStore,
		loader:     loader,
		baseCtx:    context.Background(),
		statusText: statusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetricsCollector()
	}
	return s
}

// Start loads the stored model. A missing or corrupt model leaves the service
// not ready; with AutoTrain set a background run is started instead.
func (s *TrainingService) Start(ctx context.Context) error {
	s.baseCtx = ctx
	res := s.store.Load(ctx)
	switch res.Status {
	case store.StatusFound:
		if err := s.install(res.Artifact()); err != nil {
			return err
		}
		s.setStatus(statusLoaded, "")
		a := res.Artifact()
		s.logger.Info("saved model loaded",
			zap.String("run_id", a.RunID),
			zap.Float64("val_acc", a.Metrics.ValAccuracy))
		return nil
	case store.StatusCorrupt:
		s.logger.Warn("saved model is unusable", zap.Error(res.Err))
	default:
		s.logger.Info("no saved model")
	}
	if s.config.AutoTrain {
		if err := s.TrainAsync(); err != nil && !errors.Is(err, ErrTrainingInProgress) {
			return err
		}
	}
	return nil
}

// Wait blocks until background training runs have returned.
func (s *TrainingService) Wait() {
	s.wg.Wait()
}

// TrainAsync starts a training run in the background.
func (s *TrainingService) TrainAsync() error {
	if !s.training.CompareAndSwap(false, true) {
		return ErrTrainingInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.training.Store(false)
		if _, err := s.train(s.baseCtx); err != nil {
			s.logger.Error("background training failed", zap.Error(err))
		}
	}()
	return nil
}

// Train runs one training attempt and blocks until it finishes.
func (s *TrainingService) Train(ctx context.Context) (*ml.Artifact, error) {
	if !s.training.CompareAndSwap(false, true) {
		return nil, ErrTrainingInProgress
	}
	defer s.training.Store(false)
	return s.train(ctx)
}

func (s *TrainingService) train(ctx context.Context) (*ml.Artifact, error) {
	started := time.Now()
	planned := s.config.Trainer.Epochs
	s.metrics.IncrCounter(monitoring.MetricTrainingRuns, 1)
	s.setStatus(statusLoading, "")
	s.publish(monitoring.TrainingEvent{Type: monitoring.EventStarted, TotalEpochs: planned, Status: statusLoading, Timestamp: started})

	rows, err := s.loader.Load(ctx, s.config.DatasetPath)
	if err != nil {
		return nil, s.fail(fmt.Errorf("load dataset: %w", err))
	}

	s.setStatus(statusTraining, "")
	rng := rand.New(rand.NewSource(s.seed()))
	trainer := ml.NewTrainer(s.config.Trainer, rng, s.logger.Named("trainer"))
	artifact, err := trainer.Train(ctx, rows, func(epoch int, logs ml.EpochLogs) {
		status := fmt.Sprintf("Training epoch %d / %d", epoch+1, planned)
		s.setStatus(status, "")
		event := monitoring.EpochEvent("", epoch, planned, logs)
		event.Status = status
		s.publish(event)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.setStatus(statusCancelled, err.Error())
			s.publish(monitoring.TrainingEvent{Type: monitoring.EventFailed, Status: statusCancelled, Error: err.Error(), Timestamp: time.Now()})
			return nil, err
		}
		return nil, s.fail(err)
	}

	if err := s.install(artifact); err != nil {
		return nil, s.fail(err)
	}
	s.persist(ctx, artifact, len(rows))

	done := fmt.Sprintf("Done. Trained for %d epochs.", artifact.Metrics.Epochs)
	s.mu.Lock()
	s.statusText = done
	s.lastError = ""
	s.lastEpochs = artifact.Metrics.Epochs
	s.mu.Unlock()

	s.metrics.SetGauge(monitoring.MetricTrainingDuration, time.Since(started).Seconds())
	s.metrics.SetGauge(monitoring.MetricTrainingEpochs, float64(artifact.Metrics.Epochs))
	s.metrics.SetGauge(monitoring.MetricValAccuracy, artifact.Metrics.ValAccuracy)
	s.metrics.SetGauge(monitoring.MetricValLoss, artifact.Metrics.ValLoss)

	metrics := artifact.Metrics
	s.publish(monitoring.TrainingEvent{
		Type:        monitoring.EventCompleted,
		RunID:       artifact.RunID,
		Epoch:       metrics.Epochs - 1,
		TotalEpochs: planned,
		Percent:     100,
		Metrics:     &metrics,
		Status:      done,
		Timestamp:   time.Now(),
	})
	return artifact, nil
}

// persist writes the artifact and the training log entry. Failures are
// logged and do not undo the in-memory model.
func (s *TrainingService) persist(ctx context.Context, a *ml.Artifact, rows int) {
	if err := s.store.Save(ctx, a); err != nil {
		s.metrics.IncrCounter(monitoring.MetricPersistFailures, 1)
		s.logger.Warn("failed to persist model", zap.String("run_id", a.RunID), zap.Error(err))
	}
	if s.log == nil {
		return
	}
	entry := db.TrainingLog{
		RunID:       a.RunID,
		ValLoss:     a.Metrics.ValLoss,
		ValAccuracy: a.Metrics.ValAccuracy,
		Epochs:      a.Metrics.Epochs,
		DataPoints:  rows,
		TrainedAt:   a.TrainedAt,
	}
	if err := s.log.SaveTrainingLog(ctx, entry); err != nil {
		s.logger.Warn("failed to append training log", zap.String("run_id", a.RunID), zap.Error(err))
	}
}

func (s *TrainingService) fail(err error) error {
	s.metrics.IncrCounter(monitoring.MetricTrainingFailures, 1)
	s.setStatus(statusFailed, err.Error())
	s.publish(monitoring.TrainingEvent{Type: monitoring.EventFailed, Status: statusFailed, Error: err.Error(), Timestamp: time.Now()})
	return err
}

func (s *TrainingService) install(a *ml.Artifact) error {
	p, err := ml.NewPredictor(a, s.config.CacheSize)
	if err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	s.mu.Lock()
	s.predictor = p
	s.mu.Unlock()
	return nil
}

func (s *TrainingService) seed() int64 {
	if s.config.Seed != 0 {
		return s.config.Seed
	}
	return time.Now().UnixNano()
}

func (s *TrainingService) setStatus(text, lastError string) {
	s.mu.Lock()
	s.statusText = text
	s.lastError = lastError
	s.mu.Unlock()
}

func (s *TrainingService) publish(event monitoring.TrainingEvent) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(event); err != nil {
		s.logger.Warn("failed to publish training event", zap.Error(err))
	}
}

// Prediction is the scored result for one record.
type Prediction struct {
	Probability float64 `json:"probability"`
	Approved    bool    `json:"approved"`
	Threshold   float64 `json:"threshold"`
	RunID       string  `json:"run_id"`
}

// Predict scores one record with the current model.
func (s *TrainingService) Predict(row ml.Record) (Prediction, error) {
	s.mu.RLock()
	p := s.predictor
	s.mu.RUnlock()
	if p == nil {
		return Prediction{}, ml.ErrModelNotReady
	}
	prob, err := p.Predict(row)
	if err != nil {
		return Prediction{}, err
	}
	s.metrics.IncrCounter(monitoring.MetricPredictionsServed, 1)
	return Prediction{
		Probability: prob,
		Approved:    prob >= s.config.Threshold,
		Threshold:   s.config.Threshold,
		RunID:       p.Artifact().RunID,
	}, nil
}

// ModelStatus describes the installed model and the training state.
type ModelStatus struct {
	Ready         bool        `json:"ready"`
	Training      bool        `json:"training"`
	Status        string      `json:"status"`
	LastError     string      `json:"last_error,omitempty"`
	RunID         string      `json:"run_id,omitempty"`
	TrainedAt     *time.Time  `json:"trained_at,omitempty"`
	Metrics       *ml.Metrics `json:"metrics,omitempty"`
	Features      []string    `json:"features,omitempty"`
	PlannedEpochs int         `json:"planned_epochs"`
	LastEpochs    int         `json:"last_epochs,omitempty"`
}

// Status returns a snapshot of the service state.
func (s *TrainingService) Status() ModelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := ModelStatus{
		Training:      s.training.Load(),
		Status:        s.statusText,
		LastError:     s.lastError,
		PlannedEpochs: s.config.Trainer.Epochs,
		LastEpochs:    s.lastEpochs,
	}
	if s.predictor != nil {
		a := s.predictor.Artifact()
		metrics := a.Metrics
		trainedAt := a.TrainedAt
		st.Ready = true
		st.RunID = a.RunID
		st.TrainedAt = &trainedAt
		st.Metrics = &metrics
		st.Features = append([]string(nil), a.Preprocessor.FeatureOrder...)
	}
	return st
}

// TrainingHistory returns recent runs, newest first.
func (s *TrainingService) TrainingHistory(ctx context.Context, limit int) ([]db.TrainingLog, error) {
	if s.log == nil {
		return []db.TrainingLog{}, nil
	}
	return s.log.LoadTrainingLog(ctx, limit)
}

// Preview returns the first limit records of the dataset.
func (s *TrainingService) Preview(ctx context.Context, limit int) ([]ml.Record, error) {
	rows, err := s.loader.Load(ctx, s.config.DatasetPath)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// Metrics returns the service metrics collector.
func (s *TrainingService) Metrics() *monitoring.MetricsCollector {
	return s.metrics
}
