// Package mlclient calls the external ML scoring service the ML stage
// hands a feature vector to, and maps its response and failures onto
// models.MLOutput and the shared error taxonomy.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/errs"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// maxRetries caps the number of additional attempts after the first
// call, on top of the initial try (spec §4.5: "at most 2 retries").
const maxRetries = 2

// scoreRequest is the wire body POSTed to the ML service (spec §4.5:
// "features and feature_names as parallel ordered lists").
type scoreRequest struct {
	RequestID    string    `json:"request_id"`
	Features     []float64 `json:"features"`
	FeatureNames []string  `json:"feature_names"`
}

// scoreResponse is the ML service's JSON response body.
type scoreResponse struct {
	ConfidenceScore    float64             `json:"confidence_score"`
	TopFeatures        []models.TopFeature `json:"top_features"`
	ModelVersion       string              `json:"model_version"`
	CalibrationVersion string              `json:"calibration_version"`
}

// Client is an HTTP client for the ML scoring service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient constructs a Client from the ML client configuration.
func NewClient(cfg config.MLClientConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.ServiceURL,
	}
}

// Score submits a feature vector for scoring, retrying transient
// failures (5xx, timeout, connection errors) up to maxRetries times with
// jittered exponential backoff. A malformed response body is classified
// Permanent and is not retried.
func (c *Client) Score(ctx context.Context, requestID string, features models.FeatureVector) (*models.MLOutput, error) {
	reqBody, err := json.Marshal(scoreRequest{
		RequestID:    requestID,
		Features:     features.Values[:],
		FeatureNames: models.FeatureNames,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindPermanent, "marshal ml score request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, errs.Wrap(errs.KindTimeout, "ml client backoff interrupted", err)
			}
		}

		start := time.Now()
		out, err := c.doScore(ctx, reqBody)
		if err == nil {
			out.InferenceTimeMS = time.Since(start).Milliseconds()
			return out, nil
		}

		lastErr = err
		if !errs.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doScore(ctx context.Context, body []byte) (*models.MLOutput, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindPermanent, "build ml score request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Classify(err)
	}
	defer resp.Body.Close()

	if classified := errs.ClassifyHTTPStatus(resp.StatusCode); classified != nil {
		return nil, classified
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Classify(err)
	}

	var parsed scoreResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errs.Wrap(errs.KindPermanent, "decode ml score response", err)
	}
	if parsed.ConfidenceScore < 0 || parsed.ConfidenceScore > 1 {
		return nil, errs.New(errs.KindPermanent, fmt.Sprintf("ml confidence_score out of range: %v", parsed.ConfidenceScore))
	}
	if len(parsed.TopFeatures) == 0 {
		return nil, errs.New(errs.KindPermanent, "ml response missing top_features")
	}

	return &models.MLOutput{
		ConfidenceScore:    parsed.ConfidenceScore,
		TopFeatures:        parsed.TopFeatures,
		ModelVersion:       parsed.ModelVersion,
		CalibrationVersion: parsed.CalibrationVersion,
	}, nil
}

// Healthz probes the ML service's health endpoint (spec §6 "Health probe
// GET {ml_url}/healthz"). It reports connectivity only and never affects
// request routing.
func (c *Client) Healthz(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return errs.Wrap(errs.KindPermanent, "build ml healthz request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Classify(err)
	}
	defer resp.Body.Close()
	if classified := errs.ClassifyHTTPStatus(resp.StatusCode); classified != nil {
		return classified
	}
	return nil
}

// sleepBackoff waits base·2^(attempt-1) + jitter before a retry, honoring
// context cancellation (spec §4.6 retry formula, reused here for the ML
// client's own retry loop).
func sleepBackoff(ctx context.Context, attempt int) error {
	base := 100 * time.Millisecond
	backoff := base * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Intn(100)) * time.Millisecond
	select {
	case <-time.After(backoff + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
