package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cxr-zeroshot/internal/cfg"
	"cxr-zeroshot/internal/dataset"
	"cxr-zeroshot/internal/ensemble"
	"cxr-zeroshot/internal/eval"
	"cxr-zeroshot/internal/inference"
	"cxr-zeroshot/internal/labels"
	"cxr-zeroshot/internal/metrics"
	"cxr-zeroshot/internal/report"
	"cxr-zeroshot/internal/runstore"

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
		truthPath   = flag.String("groundtruth", "", "Path to the ground truth CSV (overrides config)")
		cacheDir    = flag.String("cache", "", "Prediction cache directory (overrides config)")
		outputPath  = flag.String("output", "", "Output directory for results (overrides config)")
		iterations  = flag.Int("iterations", 0, "Bootstrap iterations (overrides config)")
		seed        = flag.Int64("seed", -1, "Bootstrap random seed (overrides config, -1 keeps config)")
		noBootstrap = flag.Bool("no-bootstrap", false, "Skip bootstrap confidence intervals")
		history     = flag.Int("history", 0, "Print the N most recent stored runs and exit")
		showRun     = flag.String("run", "", "Print one stored run record as JSON and exit")
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
	if *truthPath != "" {
		config.GroundTruthPath = *truthPath
	}
	if *cacheDir != "" {
		config.CacheDir = *cacheDir
	}
	if *outputPath != "" {
		config.OutputDir = *outputPath
	}
	if *iterations > 0 {
		config.Iterations = *iterations
	}
	if *seed >= 0 {
		config.Seed = *seed
	}

	if *history > 0 || *showRun != "" {
		if err := inspectRuns(config.DataPath, *history, *showRun); err != nil {
			log.Fatal().Err(err).Msg("Failed to read run history")
		}
		return
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	startMetricsServer(config.MetricsPort)

	set, err := labels.New(config.Labels)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid label configuration")
	}

	truth, err := dataset.LoadGroundTruth(config.GroundTruthPath, set)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load ground truth")
	}
	rows, _ := truth.Matrix.Dims()

	startedAt := time.Now()

	ens, err := buildEnsembler(config, set, rows, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build ensemble pipeline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(config.Checkpoints)+1)*config.InferenceTimeout)
	defer cancel()

	log.Info().
		Int("checkpoints", len(config.Checkpoints)).
		Int("studies", rows).
		Strs("labels", set.Names()).
		Msg("Starting evaluation run")

	out, err := ens.Run(ctx, config.Checkpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("Ensemble inference failed")
	}
	m.EnsembleSize.Set(float64(len(out.Checkpoints)))

	evalStart := time.Now()
	res, err := eval.Evaluate(out.Mean, truth.Matrix, set)
	if err != nil {
		log.Fatal().Err(err).Msg("AUC evaluation failed")
	}
	m.EvalDuration.Observe(time.Since(evalStart).Seconds())

	var boot *eval.BootstrapResult
	if !*noBootstrap {
		bootStart := time.Now()
		boot, err = eval.Bootstrap(out.Mean, truth.Matrix, set, eval.Options{
			Iterations: config.Iterations,
			Confidence: config.Confidence,
			Seed:       config.Seed,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Bootstrap failed")
		}
		m.BootstrapDuration.Observe(time.Since(bootStart).Seconds())
	}

	datasetFP, err := dataset.Fingerprint(config.GroundTruthPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fingerprint ground truth")
	}

	runID := startedAt.UTC().Format("20060102T150405Z")
	rec := report.NewRunRecord(runID, startedAt, out.Checkpoints, res, boot, config.Seed, datasetFP)

	if err := writeReports(config.OutputDir, truth.IDs, set, out, res, boot, rec); err != nil {
		log.Fatal().Err(err).Msg("Failed to write reports")
	}

	saveRun(config.DataPath, rec)

	log.Info().
		Str("run", runID).
		Str("output", config.OutputDir).
		Msg("Evaluation completed successfully")
}

func writeReports(outputDir string, ids []string, set labels.Set, out *ensemble.Output, res eval.Result, boot *eval.BootstrapResult, rec report.RunRecord) error {
	reporter := report.NewReporter(outputDir)

	if err := reporter.WriteMeanPredictions(ids, set, out.Mean); err != nil {
		return fmt.Errorf("mean predictions: %w", err)
	}
	if err := reporter.WriteAUC(res); err != nil {
		return fmt.Errorf("auc: %w", err)
	}
	var summary *eval.Summary
	if boot != nil {
		summary = &boot.Summary
		if err := reporter.WriteBootstrapSummary(boot.Summary); err != nil {
			return fmt.Errorf("bootstrap summary: %w", err)
		}
	}
	if err := reporter.WriteJSON(rec); err != nil {
		return fmt.Errorf("json record: %w", err)
	}

	reporter.PrintSummary(res, summary)
	return nil
}

// inspectRuns serves the -history and -run flags from the local store.
func inspectRuns(dataPath string, history int, runID string) error {
	if dataPath == "" {
		return fmt.Errorf("run history requires a data path (DATA_PATH or system.dataPath)")
	}
	store, err := runstore.New(dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID != "" {
		rec, err := store.Get(runID)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	recs, err := store.List(history)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, recs)
	return nil
}

// printHistory writes stored runs most recent first, one block per run.
func printHistory(w io.Writer, recs []report.RunRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No stored runs")
		return
	}
	for _, rec := range recs {
		fmt.Fprintf(w, "%s  started %s  checkpoints %d\n",
			rec.ID, rec.StartedAt.UTC().Format(time.RFC3339), len(rec.Checkpoints))
		for i, label := range rec.Labels {
			fmt.Fprintf(w, "  %-22s AUC %s\n", label, formatAUC(rec.AUC[i]))
		}
	}
}

func formatAUC(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.3f", *v)
}

// saveRun records the run in the local store when one is configured.
func saveRun(dataPath string, rec report.RunRecord) {
	if dataPath == "" {
		return
	}
	store, err := runstore.New(dataPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open run store")
		return
	}
	defer store.Close()

	if err := store.Save(rec); err != nil {
		log.Warn().Err(err).Msg("Failed to save run record")
		return
	}
	log.Info().Str("run", rec.ID).Msg("Run record saved")
}

func buildEnsembler(config cfg.Settings, set labels.Set, rows int, mw *metrics.Wrapper) (*ensemble.Ensembler, error) {
	backend, err := buildBackend(config, set, mw)
	if err != nil {
		return nil, err
	}

	var datasetFP string
	if config.DatasetPath != "" {
		datasetFP, err = dataset.Fingerprint(config.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("dataset fingerprint: %w", err)
		}
	}

	var cache *ensemble.Cache
	if config.CacheDir != "" {
		cache, err = ensemble.NewCache(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
	}

	return ensemble.New(ensemble.Config{
		Backend:            backend,
		Labels:             set,
		DatasetFingerprint: datasetFP,
		Templates: inference.PromptPair{
			Positive: config.PositiveTemplate,
			Negative: config.NegativeTemplate,
		},
		Rows:    rows,
		Cache:   cache,
		Metrics: mw,
	})
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
