package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"heartrisk/config"
	"heartrisk/db"
	qhttp "heartrisk/http"
	"heartrisk/logging"
	"heartrisk/ml"
	"heartrisk/monitoring"
	"heartrisk/predict"
	"heartrisk/registry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("heartrisk failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Encoding schemas
	catalog, err := ml.NewSchemaCatalog()
	if err != nil {
		return err
	}
	for _, path := range cfg.Models.SchemaFiles {
		schema, err := ml.LoadSchemaFile(path)
		if err != nil {
			return err
		}
		if err := catalog.Add(schema); err != nil {
			return err
		}
		logger.Info("encoding schema loaded", zap.String("name", schema.Name), zap.String("path", path))
	}

	// 3. Model registry
	loaderCfg := registry.LoaderConfig{
		Dir:             cfg.Models.Dir,
		DefaultEncoding: cfg.Models.DefaultEncoding,
		Catalog:         catalog,
	}
	for _, v := range cfg.Models.Variants {
		loaderCfg.Variants = append(loaderCfg.Variants, registry.Variant{Dir: v.Dir, Label: v.Label})
	}
	registryLogger := logger.Named("registry")
	holder := registry.NewHolder(func() (*registry.Registry, error) {
		return registry.LoadDir(loaderCfg, registryLogger)
	}, registryLogger)
	if err := holder.Reload(); err != nil {
		logger.Error("initial model load failed, serving without models", zap.Error(err))
	}
	if cfg.Models.Watch {
		go func() {
			if err := holder.Watch(ctx, loaderCfg.Dirs(), cfg.Models.ReloadDebounce); err != nil {
				logger.Error("models watcher stopped", zap.Error(err))
			}
		}()
	}

	// 4. Prediction pipeline
	metrics := monitoring.NewPredictionMetrics()
	feed := monitoring.NewPredictionFeed(logger, cfg.HTTP.AllowedOrigins)
	go feed.Run()
	defer feed.Stop()

	opts := []predict.Option{
		predict.WithCache(cfg.Prediction.CacheSize),
		predict.WithLabels(cfg.Prediction.Labels),
		predict.WithObserver(metrics),
		predict.WithPublisher(feed),
	}
	deps := qhttp.Deps{
		Registry: holder,
		Catalog:  catalog,
		Reloader: holder,
		Feed:     feed,
		Metrics:  metrics,
		Logger:   logger,
	}
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("prediction audit log enabled", zap.String("path", cfg.Database.Path))
		opts = append(opts, predict.WithRecorder(store))
		deps.Store = store
	}
	deps.Predictor = predict.New(holder, logger.Named("predict"), opts...)

	// 5. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, deps)
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}
