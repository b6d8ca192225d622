package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/labels"
)

const predictPath = "/v1/predict"

// RemoteClient scores checkpoints through an HTTP inference service.
// Prediction requests are idempotent, so transient failures are retried by
// the transport.
type RemoteClient struct {
	base    string
	rest    *resty.Client
	dataset string
	set     labels.Set
	pair    PromptPair
	metrics MetricsInterface
}

// RemoteConfig configures a RemoteClient.
type RemoteConfig struct {
	Endpoint  string
	Dataset   string
	Labels    labels.Set
	Templates PromptPair
	Timeout   time.Duration
	Metrics   MetricsInterface
}

// NewRemoteClient builds a client for the given scoring service endpoint.
func NewRemoteClient(cfg RemoteConfig) (*RemoteClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference endpoint is required")
	}
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("dataset path is required")
	}

	r := resty.New()
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	} else {
		r.SetTimeout(10 * time.Minute)
	}
	r.SetRetryCount(2)
	r.SetRetryWaitTime(2 * time.Second)

	return &RemoteClient{
		base:    cfg.Endpoint,
		rest:    r,
		dataset: cfg.Dataset,
		set:     cfg.Labels,
		pair:    cfg.Templates,
		metrics: cfg.Metrics,
	}, nil
}

func (c *RemoteClient) Name() string { return "remote" }

// Predict requests a prediction matrix for one checkpoint from the service.
func (c *RemoteClient) Predict(ctx context.Context, checkpoint string) (*mat.Dense, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.InferenceLatencyObserve(time.Since(start).Seconds())
		}
	}()

	req := request{
		Checkpoint:       checkpoint,
		Dataset:          c.dataset,
		Labels:           c.set.Names(),
		PositiveTemplate: c.pair.Positive,
		NegativeTemplate: c.pair.Negative,
	}

	resp := &response{}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(resp).
		Post(c.base + predictPath)
	if err != nil {
		if c.metrics != nil {
			c.metrics.InferenceFailuresInc()
		}
		return nil, fmt.Errorf("inference request for %s: %w", checkpoint, err)
	}
	if httpResp.IsError() {
		if c.metrics != nil {
			c.metrics.InferenceFailuresInc()
		}
		return nil, fmt.Errorf("inference service returned %s for checkpoint %s: %s",
			httpResp.Status(), checkpoint, httpResp.String())
	}

	m, err := resp.toMatrix(c.set)
	if err != nil {
		if c.metrics != nil {
			c.metrics.InferenceFailuresInc()
		}
		return nil, fmt.Errorf("checkpoint %s: %w", checkpoint, err)
	}

	if c.metrics != nil {
		c.metrics.InferencesInc()
	}

	log.Debug().
		Str("checkpoint", checkpoint).
		Str("endpoint", c.base).
		Msg("Remote inference completed")

	return m, nil
}
