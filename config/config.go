// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"loanapproval/logging"
	"loanapproval/ml"
)

// Config is the YAML configuration of the service and the CLIs.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Store    StoreConfig    `yaml:"store"`
	Training TrainingConfig `yaml:"training"`
	Predict  PredictConfig  `yaml:"predict"`
}

// HTTPConfig configures the listener and middleware.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatasetConfig locates the training CSV.
type DatasetConfig struct {
	Path     string        `yaml:"path"`
	Charset  string        `yaml:"charset"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// StoreConfig selects where artifacts are kept: "sqlite", "file" or "memory".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// TrainingConfig holds the trainer hyperparameters.
type TrainingConfig struct {
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	TrainFraction float64 `yaml:"train_fraction"`
	Patience      int     `yaml:"patience"`
	MinDelta      float64 `yaml:"min_delta"`
	Hidden        []int   `yaml:"hidden"`
	Dropout       float64 `yaml:"dropout"`
	L2            float64 `yaml:"l2"`
	Seed          int64   `yaml:"seed"`
	AutoTrain     bool    `yaml:"auto_train"`
}

// PredictConfig controls approval threshold and the prediction cache.
type PredictConfig struct {
	Threshold float64 `yaml:"threshold"`
	CacheSize int     `yaml:"cache_size"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	trainer := ml.DefaultTrainerConfig()
	return Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Log: logging.Config{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dataset: DatasetConfig{
			Path:     "data/loan_prediction.csv",
			Debounce: 2 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "data/loanapproval.db",
		},
		Training: TrainingConfig{
			Epochs:        trainer.Epochs,
			BatchSize:     trainer.BatchSize,
			LearningRate:  trainer.LearningRate,
			TrainFraction: trainer.TrainFraction,
			Patience:      trainer.Patience,
			MinDelta:      trainer.MinDelta,
			Hidden:        trainer.Network.Hidden,
			Dropout:       trainer.Network.DropoutRate,
			L2:            trainer.Network.L2,
			AutoTrain:     true,
		},
		Predict: PredictConfig{
			Threshold: 0.5,
			CacheSize: 1024,
		},
	}
}

// Load reads path over the defaults. Fields absent from the file keep their
// default values.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Dataset.Path == "" {
		return errors.New("dataset.path is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Predict.Threshold <= 0 || c.Predict.Threshold >= 1 {
		return errors.New("predict.threshold must be in (0, 1)")
	}
	if c.Training.Dropout < 0 || c.Training.Dropout >= 1 {
		return errors.New("training.dropout must be in [0, 1)")
	}
	return c.TrainerConfig().Validate()
}

// TrainerConfig converts the training section for the ml package.
func (c Config) TrainerConfig() ml.TrainerConfig {
	t := c.Training
	network := ml.DefaultNetworkConfig()
	network.Hidden = append([]int(nil), t.Hidden...)
	network.DropoutRate = t.Dropout
	network.L2 = t.L2
	if t.Dropout == 0 {
		network.DropoutAfter = -1
	}
	return ml.TrainerConfig{
		Epochs:        t.Epochs,
		BatchSize:     t.BatchSize,
		LearningRate:  t.LearningRate,
		TrainFraction: t.TrainFraction,
		Patience:      t.Patience,
		MinDelta:      t.MinDelta,
		Network:       network,
	}
}
