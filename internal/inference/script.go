package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/labels"
)

// ScriptRunner executes a local Python inference script per checkpoint.
// The request is written as JSON to the script's stdin, the response is
// read as JSON from its stdout, and the checkpoint path is passed as the
// single positional argument.
type ScriptRunner struct {
	pythonPath string
	scriptPath string
	dataset    string
	set        labels.Set
	pair       PromptPair
	timeout    time.Duration
	metrics    MetricsInterface
}

// ScriptConfig configures a ScriptRunner.
type ScriptConfig struct {
	// PythonPath overrides interpreter discovery when non-empty.
	PythonPath string
	ScriptPath string
	Dataset    string
	Labels     labels.Set
	Templates  PromptPair
	Timeout    time.Duration
	Metrics    MetricsInterface
}

// NewScriptRunner validates the script location and resolves a Python
// interpreter.
func NewScriptRunner(cfg ScriptConfig) (*ScriptRunner, error) {
	if cfg.ScriptPath == "" {
		return nil, fmt.Errorf("inference script path is required")
	}
	if _, err := os.Stat(cfg.ScriptPath); err != nil {
		return nil, fmt.Errorf("inference script not found: %w", err)
	}
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("dataset path is required")
	}

	python := cfg.PythonPath
	if python == "" {
		found, err := findPython()
		if err != nil {
			return nil, err
		}
		python = found
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &ScriptRunner{
		pythonPath: python,
		scriptPath: cfg.ScriptPath,
		dataset:    cfg.Dataset,
		set:        cfg.Labels,
		pair:       cfg.Templates,
		timeout:    timeout,
		metrics:    cfg.Metrics,
	}, nil
}

func (s *ScriptRunner) Name() string { return "script" }

// Predict runs the inference script for one checkpoint and parses its
// probability matrix.
func (s *ScriptRunner) Predict(ctx context.Context, checkpoint string) (*mat.Dense, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.InferenceLatencyObserve(time.Since(start).Seconds())
		}
	}()

	req := request{
		Checkpoint:       checkpoint,
		Dataset:          s.dataset,
		Labels:           s.set.Names(),
		PositiveTemplate: s.pair.Positive,
		NegativeTemplate: s.pair.Negative,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.pythonPath, s.scriptPath, checkpoint)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s.metrics != nil {
			s.metrics.InferenceFailuresInc()
		}
		log.Error().
			Err(err).
			Str("python_path", s.pythonPath).
			Str("script_path", s.scriptPath).
			Str("checkpoint", checkpoint).
			Str("stderr", stderr.String()).
			Msg("Inference script execution failed")

		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("inference timeout after %v for checkpoint %s", s.timeout, checkpoint)
		}
		return nil, fmt.Errorf("inference script failed: %w, stderr: %s", err, stderr.String())
	}

	var resp response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		if s.metrics != nil {
			s.metrics.InferenceFailuresInc()
		}
		return nil, fmt.Errorf("parse inference response: %w, stdout: %s", err, stdout.String())
	}

	m, err := resp.toMatrix(s.set)
	if err != nil {
		if s.metrics != nil {
			s.metrics.InferenceFailuresInc()
		}
		return nil, fmt.Errorf("checkpoint %s: %w", checkpoint, err)
	}

	if s.metrics != nil {
		s.metrics.InferencesInc()
	}

	rows, cols := m.Dims()
	log.Debug().
		Str("checkpoint", checkpoint).
		Int("rows", rows).
		Int("cols", cols).
		Msg("Inference completed")

	return m, nil
}

func findPython() (string, error) {
	// Prefer the active virtual environment when one is set.
	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates := []string{
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		}
		for _, venvPython := range candidates {
			if _, err := os.Stat(venvPython); err == nil {
				log.Info().Str("python_path", venvPython).Msg("Using virtual environment Python")
				return venvPython, nil
			}
		}
	}

	candidates := []string{"python3", "python", "python3.12", "python3.11", "python3.10"}
	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		cmd := exec.Command(path, "-c", "import sys; print('Python', sys.version)")
		if output, err := cmd.Output(); err == nil && strings.Contains(string(output), "Python 3") {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no suitable Python 3 executable found")
}
