package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/describer/internal/config"
	"github.com/Brownie44l1/describer/internal/describe"
	"github.com/Brownie44l1/describer/internal/handlers"
	"github.com/Brownie44l1/describer/internal/imageproc"
	"github.com/Brownie44l1/describer/internal/logging"
	"github.com/Brownie44l1/describer/internal/model"
	"github.com/Brownie44l1/describer/internal/tokenizer"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("DESCRIBER_CONFIG", "config.yaml"), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		if errors.Is(err, model.ErrRuntimeUnavailable) {
			logger.Error("ONNX Runtime could not be loaded; install it or set ONNXRUNTIME_LIB to the shared library path", "err", err)
		} else {
			logger.Error("server failed", "err", err)
		}
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	runtime, err := model.InitRuntime(cfg.OnnxLibraryPath)
	if err != nil {
		return err
	}
	defer runtime.Close()

	logger.Info("loading classifier", "model", cfg.Classifier.ModelPath)
	classifierModel, err := model.NewClassifier(cfg.Classifier.ModelPath, cfg.Classifier.MetadataPath)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	defer classifierModel.Close()

	logger.Info("loading language model", "model", cfg.Generator.ModelPath)
	languageModel, err := model.NewLanguageModel(model.LanguageModelOptions{
		ModelPath:         cfg.Generator.ModelPath,
		InputIDsName:      cfg.Generator.InputIDsName,
		AttentionMaskName: cfg.Generator.AttentionMaskName,
			PositionIDsName:   cfg.Generator.PositionIDsName,
		LogitsName:        cfg.Generator.LogitsName,
		VocabSize:         cfg.Generator.VocabSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize language model: %w", err)
	}
	defer languageModel.Close()

	bpe, err := tokenizer.New(cfg.Generator.Encoding)
	if err != nil {
		return fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	preprocessor := &imageproc.Preprocessor{
		Width:  classifierModel.Metadata.ImageSize,
		Height: classifierModel.Metadata.ImageSize,
	}
	classifier := describe.NewClassifier(classifierModel)
	generator := describe.NewGenerator(bpe, logging.NewLanguageModelDecorator(languageModel, logger), cfg.Generator.GeneratorOptions())
	pipeline := describe.NewPipeline(preprocessor, classifier, generator, logger)

	var tensorShape [4]int64
	copy(tensorShape[:], classifierModel.Metadata.InputShape)
	handler := handlers.NewHandler(pipeline, classifier, handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RequestTimeout: cfg.RequestTimeout,
		TensorShape:    tensorShape,
		Logger:         logger,
	})

	// No write deadline unless requests have a timeout.
	var writeTimeout time.Duration
	if cfg.RequestTimeout > 0 {
		writeTimeout = cfg.RequestTimeout + 30*time.Second
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			"addr", srv.Addr,
			"classes", classifierModel.Metadata.NumClasses(),
			"image_size", classifierModel.Metadata.ImageSize,
			"beams", cfg.Generator.NumBeams)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("server stopping")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
