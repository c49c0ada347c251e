package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tomato-leaves/disease-detection-api/advisory"
	"github.com/tomato-leaves/disease-detection-api/config"
	"github.com/tomato-leaves/disease-detection-api/detections"
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment(zap.AddCaller())
	}
	return zap.NewProduction(zap.AddStacktrace(zapcore.ErrorLevel), zap.AddCaller())
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), config.Usage())
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	detector, cleanup, err := newDetector(cfg.Model, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	state := &AppState{
		Detector:       detector,
		Advisor:        newAdvisor(cfg.Advisory, logger),
		Logger:         logger.Named("http"),
		Debug:          cfg.Server.Debug,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}

	srv := &http.Server{
		Handler:      state.Router(),
		Addr:         cfg.Server.Addr(),
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newDetector loads the weights once and fills the session pool. The returned
// cleanup releases the pool and the onnxruntime environment.
func newDetector(cfg config.ModelConfig, logger *zap.Logger) (*detections.Detector, func(), error) {
	weightsPath, libPath, err := resolveModelFiles(cfg.WeightsPath, cfg.LibraryPath)
	if err != nil {
		return nil, nil, err
	}

	if err := detections.InitializeRuntime(libPath); err != nil {
		return nil, nil, err
	}

	var labels detections.Labels
	if cfg.LabelsPath != "" {
		labels, err = detections.LoadLabelsFile(cfg.LabelsPath)
		if err != nil {
			_ = detections.DestroyRuntime()
			return nil, nil, err
		}
	}

	info, err := detections.InspectModel(weightsPath, labels)
	if err != nil {
		_ = detections.DestroyRuntime()
		return nil, nil, err
	}

	threads := detections.SessionThreads(cfg.PoolSize)
	pool, err := detections.NewSessionPool(cfg.PoolSize, func() (detections.Session, error) {
		return detections.NewModelSession(info, threads)
	}, logger)
	if err != nil {
		_ = detections.DestroyRuntime()
		return nil, nil, fmt.Errorf("failed to create model session pool: %w", err)
	}

	logger.Info("model loaded",
		zap.String("weights", weightsPath),
		zap.String("onnxruntime", libPath),
		zap.Int("classes", info.NumClasses()),
		zap.Int("anchors", info.NumAnchors()),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("threads_per_session", threads),
		zap.Strings("cpu_features", detections.CPUFeatures()))

	cleanup := func() {
		pool.Destroy()
		if err := detections.DestroyRuntime(); err != nil {
			logger.Warn("destroy onnxruntime", zap.Error(err))
		}
	}
	return detections.NewDetector(pool, info.Labels, info.NumAnchors(), logger), cleanup, nil
}

// newAdvisor returns nil when no API key is configured, which disables
// POST /api/advisory.
func newAdvisor(cfg config.AdvisoryConfig, logger *zap.Logger) Advisor {
	if cfg.APIKey == "" {
		logger.Warn("FIREWORKS_API_KEY not set, advisory disabled")
		return nil
	}

	provider := advisory.NewFireworksProvider(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	gen, err := advisory.NewGenerator(provider, advisory.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger)
	if err != nil {
		logger.Error("advisory disabled", zap.Error(err))
		return nil
	}
	return gen
}
