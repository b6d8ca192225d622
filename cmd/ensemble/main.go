package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cxr-zeroshot/internal/cfg"
	"cxr-zeroshot/internal/dataset"
	"cxr-zeroshot/internal/ensemble"
	"cxr-zeroshot/internal/inference"
	"cxr-zeroshot/internal/labels"
	"cxr-zeroshot/internal/metrics"
	"cxr-zeroshot/internal/report"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		checkpoints = flag.String("checkpoints", "", "Comma-separated checkpoint paths (overrides config)")
		datasetPath = flag.String("dataset", "", "Path to the image dataset (overrides config)")
		cacheDir    = flag.String("cache", "", "Prediction cache directory (overrides config)")
		outputPath  = flag.String("output", "", "Output directory for results (overrides config)")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// .env is optional
	_ = godotenv.Load()

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *checkpoints != "" {
		config.Checkpoints = parseList(*checkpoints)
	}
	if *datasetPath != "" {
		config.DatasetPath = *datasetPath
	}
	if *cacheDir != "" {
		config.CacheDir = *cacheDir
	}
	if *outputPath != "" {
		config.OutputDir = *outputPath
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	startMetricsServer(config.MetricsPort)

	ens, set, err := buildEnsembler(config, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build ensemble pipeline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(config.Checkpoints)+1)*config.InferenceTimeout)
	defer cancel()

	log.Info().
		Int("checkpoints", len(config.Checkpoints)).
		Strs("labels", set.Names()).
		Msg("Starting ensemble inference")

	out, err := ens.Run(ctx, config.Checkpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("Ensemble inference failed")
	}
	m.EnsembleSize.Set(float64(len(out.Checkpoints)))

	reporter := report.NewReporter(config.OutputDir)
	if err := reporter.WriteMeanPredictions(nil, set, out.Mean); err != nil {
		log.Fatal().Err(err).Msg("Failed to write mean predictions")
	}

	rows, cols := out.Mean.Dims()
	log.Info().
		Int("studies", rows).
		Int("labels", cols).
		Str("output", config.OutputDir).
		Msg("Ensemble completed successfully")
}

// buildEnsembler wires the configured backend, cache, and dataset
// fingerprint into an Ensembler.
func buildEnsembler(config cfg.Settings, mw *metrics.Wrapper) (*ensemble.Ensembler, labels.Set, error) {
	set, err := labels.New(config.Labels)
	if err != nil {
		return nil, labels.Set{}, fmt.Errorf("invalid labels: %w", err)
	}

	backend, err := buildBackend(config, set, mw)
	if err != nil {
		return nil, labels.Set{}, err
	}

	var datasetFP string
	if config.DatasetPath != "" {
		datasetFP, err = dataset.Fingerprint(config.DatasetPath)
		if err != nil {
			return nil, labels.Set{}, fmt.Errorf("dataset fingerprint: %w", err)
		}
	}

	var cache *ensemble.Cache
	if config.CacheDir != "" {
		cache, err = ensemble.NewCache(config.CacheDir)
		if err != nil {
			return nil, labels.Set{}, fmt.Errorf("prediction cache: %w", err)
		}
	}

	ens, err := ensemble.New(ensemble.Config{
		Backend:            backend,
		Labels:             set,
		DatasetFingerprint: datasetFP,
		Templates: inference.PromptPair{
			Positive: config.PositiveTemplate,
			Negative: config.NegativeTemplate,
		},
		Cache:   cache,
		Metrics: mw,
	})
	if err != nil {
		return nil, labels.Set{}, err
	}
	return ens, set, nil
}

func buildBackend(config cfg.Settings, set labels.Set, mw *metrics.Wrapper) (inference.Backend, error) {
	templates := inference.PromptPair{
		Positive: config.PositiveTemplate,
		Negative: config.NegativeTemplate,
	}

	switch config.Backend {
	case "remote":
		return inference.NewRemoteClient(inference.RemoteConfig{
			Endpoint:  config.Endpoint,
			Dataset:   config.DatasetPath,
			Labels:    set,
			Templates: templates,
			Timeout:   config.InferenceTimeout,
			Metrics:   mw,
		})
	default:
		return inference.NewScriptRunner(inference.ScriptConfig{
			PythonPath: config.PythonPath,
			ScriptPath: config.ScriptPath,
			Dataset:    config.DatasetPath,
			Labels:     set,
			Templates:  templates,
			Timeout:    config.InferenceTimeout,
			Metrics:    mw,
		})
	}
}

func startMetricsServer(port int) {
	if port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}

// parseList parses comma-separated values
func parseList(v string) []string {
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
