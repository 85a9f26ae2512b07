package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"loanapproval/config"
	"loanapproval/db"
	"loanapproval/logging"
	"loanapproval/ml"
	"loanapproval/pipeline"
	"loanapproval/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	datasetPath := flag.String("dataset", "", "dataset CSV, overrides the config")
	storePath := flag.String("store", "", "sqlite store path, overrides the config")
	seed := flag.Int64("seed", 0, "random seed, 0 uses the config or the clock")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *datasetPath != "" {
		cfg.Dataset.Path = *datasetPath
	}
	if *storePath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = *storePath
	}
	if *seed != 0 {
		cfg.Training.Seed = *seed
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("training failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Store.Driver != "sqlite" {
		return fmt.Errorf("train_model writes to a sqlite store, got driver %q", cfg.Store.Driver)
	}
	loader, err := pipeline.NewLoader(pipeline.LoaderConfig{Charset: cfg.Dataset.Charset}, nil, logger)
	if err != nil {
		return err
	}
	rows, err := loader.Load(ctx, cfg.Dataset.Path)
	if err != nil {
		return err
	}

	seed := cfg.Training.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	trainer := ml.NewTrainer(cfg.TrainerConfig(), rand.New(rand.NewSource(seed)), logger)
	artifact, err := trainer.Train(ctx, rows, func(epoch int, logs ml.EpochLogs) {
		fmt.Printf("epoch %3d  loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f\n",
			epoch+1, logs.Loss, logs.Accuracy, logs.ValLoss, logs.ValAccuracy)
	})
	if err != nil {
		return err
	}

	database, err := db.InitDB(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := store.NewModelStore(database).Save(ctx, artifact); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := database.SaveTrainingLog(ctx, db.TrainingLog{
		RunID:       artifact.RunID,
		ValLoss:     artifact.Metrics.ValLoss,
		ValAccuracy: artifact.Metrics.ValAccuracy,
		Epochs:      artifact.Metrics.Epochs,
		DataPoints:  len(rows),
		TrainedAt:   artifact.TrainedAt,
	}); err != nil {
		logger.Warn("failed to append training log", zap.Error(err))
	}

	fmt.Printf("Done. Trained for %d epochs. val_acc=%.4f run_id=%s\n",
		artifact.Metrics.Epochs, artifact.Metrics.ValAccuracy, artifact.RunID)
	return nil
}
