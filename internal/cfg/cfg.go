package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLabels are the five competition pathologies evaluated when no
// label list is configured.
var DefaultLabels = []string{
	"Atelectasis",
	"Cardiomegaly",
	"Consolidation",
	"Edema",
	"Pleural Effusion",
}

type Settings struct {
	Checkpoints      []string
	DatasetPath      string
	GroundTruthPath  string
	Labels           []string
	PositiveTemplate string
	NegativeTemplate string
	CacheDir         string
	OutputDir        string
	DataPath         string
	Backend          string
	PythonPath       string
	ScriptPath       string
	Endpoint         string
	InferenceTimeout time.Duration
	Iterations       int
	Confidence       float64
	Seed             int64
	MetricsPort      int
}

type ConfigFile struct {
	Dataset struct {
		Path        string   `yaml:"path"`
		GroundTruth string   `yaml:"groundTruth"`
		Labels      []string `yaml:"labels"`
	} `yaml:"dataset"`

	Prompts struct {
		Positive string `yaml:"positive"`
		Negative string `yaml:"negative"`
	} `yaml:"prompts"`

	Ensemble struct {
		Checkpoints []string `yaml:"checkpoints"`
		CacheDir    string   `yaml:"cacheDir"`
	} `yaml:"ensemble"`

	Inference struct {
		Backend  string `yaml:"backend"`
		Python   string `yaml:"python"`
		Script   string `yaml:"script"`
		Endpoint string `yaml:"endpoint"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"inference"`

	Bootstrap struct {
		Iterations int     `yaml:"iterations"`
		Confidence float64 `yaml:"confidence"`
		Seed       int64   `yaml:"seed"`
	} `yaml:"bootstrap"`

	System struct {
		OutputDir   string `yaml:"outputDir"`
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Inference.Timeout)
	if err != nil {
		timeout = 10 * time.Minute
	}

	settings := Settings{
		Checkpoints:      getListFromEnvOrConfig("CHECKPOINTS", config.Ensemble.Checkpoints),
		DatasetPath:      getEnvOrDefault("DATASET_PATH", config.Dataset.Path),
		GroundTruthPath:  getEnvOrDefault("GROUND_TRUTH_PATH", config.Dataset.GroundTruth),
		Labels:           getListFromEnvOrConfig("LABELS", config.Dataset.Labels),
		PositiveTemplate: getEnvOrDefault("POSITIVE_TEMPLATE", config.Prompts.Positive),
		NegativeTemplate: getEnvOrDefault("NEGATIVE_TEMPLATE", config.Prompts.Negative),
		CacheDir:         getEnvOrDefault("CACHE_DIR", config.Ensemble.CacheDir),
		OutputDir:        getEnvOrDefault("OUTPUT_DIR", config.System.OutputDir),
		DataPath:         getEnvOrDefault("DATA_PATH", config.System.DataPath),
		Backend:          getEnvOrDefault("INFERENCE_BACKEND", config.Inference.Backend),
		PythonPath:       getEnvOrDefault("PYTHON_PATH", config.Inference.Python),
		ScriptPath:       getEnvOrDefault("INFERENCE_SCRIPT", config.Inference.Script),
		Endpoint:         getEnvOrDefault("INFERENCE_ENDPOINT", config.Inference.Endpoint),
		InferenceTimeout: timeout,
		Iterations:       getIntFromEnvOrConfig("BOOTSTRAP_ITERATIONS", config.Bootstrap.Iterations),
		Confidence:       getFloatFromEnvOrConfig("CONFIDENCE", config.Bootstrap.Confidence),
		Seed:             getInt64FromEnvOrConfig("SEED", config.Bootstrap.Seed),
		MetricsPort:      getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
	}
	applyDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Checkpoints:      splitOrDefault(os.Getenv("CHECKPOINTS"), nil),
		DatasetPath:      os.Getenv("DATASET_PATH"),
		GroundTruthPath:  os.Getenv("GROUND_TRUTH_PATH"),
		Labels:           splitOrDefault(os.Getenv("LABELS"), DefaultLabels),
		PositiveTemplate: getEnvOrDefault("POSITIVE_TEMPLATE", "{}"),
		NegativeTemplate: getEnvOrDefault("NEGATIVE_TEMPLATE", "no {}"),
		CacheDir:         os.Getenv("CACHE_DIR"), // optional
		OutputDir:        getEnvOrDefault("OUTPUT_DIR", "results"),
		DataPath:         os.Getenv("DATA_PATH"), // optional
		Backend:          getEnvOrDefault("INFERENCE_BACKEND", "script"),
		PythonPath:       os.Getenv("PYTHON_PATH"),
		ScriptPath:       getEnvOrDefault("INFERENCE_SCRIPT", "scripts/run_inference.py"),
		Endpoint:         os.Getenv("INFERENCE_ENDPOINT"),
		InferenceTimeout: getDurationOrDefault("INFERENCE_TIMEOUT", 10*time.Minute),
		Iterations:       getIntOrDefault("BOOTSTRAP_ITERATIONS", 1000),
		Confidence:       getFloatOrDefault("CONFIDENCE", 0.95),
		Seed:             getInt64OrDefault("SEED", 0),
		MetricsPort:      getIntOrDefault("METRICS_PORT", 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// applyDefaults fills the fields a YAML file may leave unset.
func applyDefaults(s *Settings) {
	if len(s.Labels) == 0 {
		s.Labels = append([]string(nil), DefaultLabels...)
	}
	if s.PositiveTemplate == "" {
		s.PositiveTemplate = "{}"
	}
	if s.NegativeTemplate == "" {
		s.NegativeTemplate = "no {}"
	}
	if s.OutputDir == "" {
		s.OutputDir = "results"
	}
	if s.Backend == "" {
		s.Backend = "script"
	}
	if s.ScriptPath == "" {
		s.ScriptPath = "scripts/run_inference.py"
	}
	if s.Iterations == 0 {
		s.Iterations = 1000
	}
	if s.Confidence == 0 {
		s.Confidence = 0.95
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getInt64FromEnvOrConfig(key string, configValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs validation of configuration values.
func validateSettings(settings *Settings) error {
	if len(settings.Labels) == 0 {
		return fmt.Errorf("at least one label must be specified")
	}
	seen := make(map[string]bool, len(settings.Labels))
	for _, label := range settings.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("labels must not be blank")
		}
		if seen[label] {
			return fmt.Errorf("duplicate label %q", label)
		}
		seen[label] = true
	}

	switch settings.Backend {
	case "script", "remote":
	default:
		return fmt.Errorf("inference backend must be script or remote, got %q", settings.Backend)
	}
	if settings.Backend == "remote" && settings.Endpoint == "" {
		return fmt.Errorf("remote backend requires an inference endpoint")
	}

	if settings.InferenceTimeout < time.Second || settings.InferenceTimeout > 4*time.Hour {
		return fmt.Errorf("inference timeout must be between 1s and 4h, got %v", settings.InferenceTimeout)
	}

	if settings.Iterations < 1 || settings.Iterations > 100000 {
		return fmt.Errorf("bootstrap iterations must be between 1 and 100000, got %d", settings.Iterations)
	}
	if settings.Confidence <= 0 || settings.Confidence >= 1 {
		return fmt.Errorf("confidence must be in (0, 1), got %f", settings.Confidence)
	}

	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 (disabled) or between 1024 and 65535, got %d", settings.MetricsPort)
	}

	return nil
}
