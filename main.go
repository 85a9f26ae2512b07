package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loanapproval/config"
	lhttp "loanapproval/http"
	"loanapproval/logging"
	"loanapproval/monitoring"
	"loanapproval/pipeline"
	"loanapproval/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	slots, trainingLog, closer, err := openSlots(cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closer.Close()

	loader, err := pipeline.NewLoader(pipeline.LoaderConfig{Charset: cfg.Dataset.Charset}, pipeline.NewCleaner(), logger.Named("loader"))
	if err != nil {
		logger.Fatal("failed to build dataset loader", zap.Error(err))
	}

	// 3. Monitoring
	hub := monitoring.NewProgressHub(logger.Named("progress"))
	go hub.Run(ctx)
	metrics := monitoring.NewMetricsCollector()
	go metrics.CollectSystemMetrics(ctx, 15*time.Second)

	// 4. Training service
	opts := []lhttp.ServiceOption{
		lhttp.WithLogger(logger.Named("service")),
		lhttp.WithProgressHub(hub),
		lhttp.WithMetrics(metrics),
	}
	if trainingLog != nil {
		opts = append(opts, lhttp.WithTrainingLog(trainingLog))
	}
	service := lhttp.NewTrainingService(lhttp.ServiceConfig{
		DatasetPath: cfg.Dataset.Path,
		Trainer:     cfg.TrainerConfig(),
		Seed:        cfg.Training.Seed,
		CacheSize:   cfg.Predict.CacheSize,
		Threshold:   cfg.Predict.Threshold,
		AutoTrain:   cfg.Training.AutoTrain,
	}, store.NewModelStore(slots), loader, opts...)
	if err := service.Start(ctx); err != nil {
		logger.Fatal("failed to start training service", zap.Error(err))
	}

	if cfg.Dataset.Watch {
		watcher := pipeline.NewDatasetWatcher(cfg.Dataset.Path, cfg.Dataset.Debounce, func(ctx context.Context, path string) {
			if err := service.TrainAsync(); err != nil {
				logger.Warn("retrain on dataset change skipped", zap.Error(err))
			}
		}, logger.Named("watcher"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("dataset watcher stopped", zap.Error(err))
			}
		}()
	}

	// 5. HTTP server
	server := lhttp.NewServer(lhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, service, hub, logger.Named("http"))
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	// 6. Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	service.Wait()
	logger.Info("exiting")
}
