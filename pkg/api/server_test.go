package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aboerstra/fraud-adjudicator/pkg/adjudicator"
	"github.com/aboerstra/fraud-adjudicator/pkg/breaker"
	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/masking"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
	"github.com/aboerstra/fraud-adjudicator/pkg/queue"
	"github.com/aboerstra/fraud-adjudicator/pkg/rules"
	"github.com/aboerstra/fraud-adjudicator/pkg/store"
)

type fakeDBHealth struct{ err error }

func (f *fakeDBHealth) Health(_ context.Context) (*store.HealthStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &store.HealthStatus{}, nil
}

type fakeMLHealth struct{ err error }

func (f *fakeMLHealth) Healthz(_ context.Context) error { return f.err }

// fakeReserver and fakeHealthStore satisfy queue.Reserver/queue.HealthStore
// without ever being exercised in these tests; the worker pool built from
// them is never started.
type fakeReserver struct{}

func (fakeReserver) ReserveNext(_ context.Context, _ string, _ time.Time) (*models.QueueEntry, error) {
	return nil, nil
}
func (fakeReserver) Requeue(_ context.Context, _ string, _ time.Duration, _ time.Time) error {
	return nil
}
func (fakeReserver) Finalize(_ context.Context, _ string, _ *models.Decision, _ string, _ time.Time) error {
	return nil
}

type fakeHealthStore struct {
	depth  int
	failed int
}

func (f fakeHealthStore) QueueDepth(_ context.Context, _ time.Time) (int, error) { return f.depth, nil }
func (f fakeHealthStore) FailedRecentCount(_ context.Context, _ time.Time, _ time.Duration) (int, error) {
	return f.failed, nil
}

// unusedJobStore, unusedExtractor and unusedScorer back the Pipeline that
// queue.NewWorkerPool requires; like fakeReserver, they are never called.
type unusedJobStore struct{}

func (unusedJobStore) LoadRequest(_ context.Context, _ string) (*models.ApplicationRequest, error) {
	return nil, nil
}
func (unusedJobStore) MarkProcessing(_ context.Context, _ string) error          { return nil }
func (unusedJobStore) AppendStage(_ context.Context, _ models.StageRecord) error { return nil }
func (unusedJobStore) Finalize(_ context.Context, _ string, _ *models.Decision, _ string, _ time.Time) error {
	return nil
}

type unusedExtractor struct{}

func (unusedExtractor) Extract(_ context.Context, _ string, _ models.ApplicationPayload, _ time.Time) (models.FeatureVector, error) {
	return models.FeatureVector{}, nil
}

type unusedScorer struct{}

func (unusedScorer) Score(_ context.Context, _ string, _ models.FeatureVector) (*models.MLOutput, error) {
	return nil, nil
}

func newTestWorkerPool(depth, failed int) *queue.WorkerPool {
	cfg := config.QueueConfig{WorkerCount: 1, HealthMaxQueued: 100, HealthMaxFailed: 10}
	llmCfg := config.LLMConfig{}
	llm := adjudicator.NewStage(adjudicator.NewClient(llmCfg, breaker.NewRegistry()), llmCfg, masking.NewService(), slog.Default())
	pipeline := queue.NewPipeline(unusedJobStore{}, rules.BuiltinRulePack(), unusedExtractor{}, unusedScorer{}, llm, config.PolicyConfig{}, masking.NewService(), nil)
	return queue.NewWorkerPool("test-pool", fakeReserver{}, fakeHealthStore{depth: depth, failed: failed}, pipeline, cfg, masking.NewService(), nil)
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	s := NewServer(nil, newTestWorkerPool(0, 0), &fakeDBHealth{}, &fakeMLHealth{})

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Services.Database)
	assert.Equal(t, "healthy", body.Services.MLService)
	assert.Equal(t, "healthy", body.Services.Queue)
}

func TestHealthHandler_DatabaseDownIsUnhealthy(t *testing.T) {
	s := NewServer(nil, newTestWorkerPool(0, 0), &fakeDBHealth{err: assert.AnError}, &fakeMLHealth{})

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
}

func TestHealthHandler_MLDownIsDegradedNotUnhealthy(t *testing.T) {
	s := NewServer(nil, newTestWorkerPool(0, 0), &fakeDBHealth{}, &fakeMLHealth{err: assert.AnError})

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unhealthy", body.Services.MLService)
}

func TestHealthHandler_OverloadedQueueIsUnhealthy(t *testing.T) {
	s := NewServer(nil, newTestWorkerPool(100, 0), &fakeDBHealth{}, &fakeMLHealth{})

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "overloaded", body.Services.Queue)
}

func TestSecurityHeaders_SetOnEveryResponse(t *testing.T) {
	s := NewServer(nil, newTestWorkerPool(0, 0), &fakeDBHealth{}, &fakeMLHealth{})

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
