package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/ingress"
	"github.com/aboerstra/fraud-adjudicator/pkg/store"
)

const testHMACSecret = "test-hmac-secret"

// newTestServer starts a throwaway Postgres container, wires a real
// ingress.Service over it, and returns a Server ready to exercise
// Submit/Poll over HTTP (mirrors store's own testcontainers harness,
// since ingress.Service is built directly on *store.Client).
func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	db, err := store.NewClient(ctx, config.DatabaseConfig{
		Host: host, Port: portNum, User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 5, MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ingressSvc := ingress.NewService(db, config.IngressConfig{HMACSecret: testHMACSecret, NonceWindowSeconds: 300})
	return NewServer(ingressSvc, newTestWorkerPool(0, 0), db, &fakeMLHealth{})
}

func sign(t *testing.T, secret, method, path string, body []byte, timestamp, nonce string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

func validSubmitBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"personal": map[string]any{
			"first_name": "Jane", "last_name": "Doe",
			"date_of_birth": "1990-06-15", "sin": "123456782", "province": "ON",
		},
		"contact": map[string]any{
			"email": "jane.doe@gmail.com", "phone": "4165551234",
			"address_line": "1 Main St", "city": "Toronto", "postal_code": "M5V 2T6", "ip_address": "1.2.3.4",
		},
		"financial": map[string]any{
			"annual_income": 80000, "employment_months": 36, "employment_type": "full_time", "credit_score": 720,
		},
		"loan": map[string]any{
			"amount": 25000, "term_months": 60, "rate_apr": 0.06, "down_payment": 5000,
		},
		"vehicle": map[string]any{
			"year": 2022, "make": "Honda", "model": "Civic", "vin": "1HGCM82633A004352",
			"purchase_value": 30000, "mileage": 15000,
		},
		"dealer": map[string]any{"id": "dealer-1", "name": "Acme Motors"},
	})
	return body
}

func signedRequest(t *testing.T, method, path string, body []byte) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := "nonce-" + timestamp
	sig := sign(t, testHMACSecret, method, path, body, timestamp, nonce)

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-Api-Key", "test-api-key")
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)
	return req
}

func TestSubmitHandler_AcceptsValidSignedApplication(t *testing.T) {
	s := newTestServer(t)
	body := validSubmitBody()
	req := signedRequest(t, http.MethodPost, "/v1/applications", body)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result ingress.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, "queued", result.Status)
}

func TestSubmitHandler_MissingAuthHeadersIs400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/applications", bytes.NewReader(validSubmitBody()))

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitHandler_BadSignatureIs400(t *testing.T) {
	s := newTestServer(t)
	body := validSubmitBody()
	req := signedRequest(t, http.MethodPost, "/v1/applications", body)
	req.Header.Set("X-Signature", "0000000000000000000000000000000000000000000000000000000000000000")

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitHandler_ReplayedNonceIsRejected(t *testing.T) {
	s := newTestServer(t)
	body := validSubmitBody()
	req1 := signedRequest(t, http.MethodPost, "/v1/applications", body)
	timestamp := req1.Header.Get("X-Timestamp")
	nonce := req1.Header.Get("X-Nonce")

	rec1 := httptest.NewRecorder()
	s.echo.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusCreated, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/applications", bytes.NewReader(body))
	req2.Header.Set("X-Api-Key", "test-api-key")
	req2.Header.Set("X-Timestamp", timestamp)
	req2.Header.Set("X-Nonce", nonce)
	req2.Header.Set("X-Signature", sign(t, testHMACSecret, http.MethodPost, "/v1/applications", body, timestamp, nonce))

	rec2 := httptest.NewRecorder()
	s.echo.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestSubmitHandler_InvalidFieldsReturnsFieldErrors(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"personal": map[string]any{"sin": "000000000"}})
	req := signedRequest(t, http.MethodPost, "/v1/applications", body)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp FieldErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.FieldErrors)
}

func TestPollHandler_QueuedApplicationReturnsStatus(t *testing.T) {
	s := newTestServer(t)
	body := validSubmitBody()
	submitReq := signedRequest(t, http.MethodPost, "/v1/applications", body)

	submitRec := httptest.NewRecorder()
	s.echo.ServeHTTP(submitRec, submitReq)
	require.Equal(t, http.StatusCreated, submitRec.Code)
	var submitResult ingress.SubmitResult
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResult))

	pollRec := httptest.NewRecorder()
	s.echo.ServeHTTP(pollRec, httptest.NewRequest(http.MethodGet, "/v1/decision/"+submitResult.JobID, nil))

	assert.Equal(t, http.StatusOK, pollRec.Code)
	var pollResult ingress.PollResult
	require.NoError(t, json.Unmarshal(pollRec.Body.Bytes(), &pollResult))
	assert.Equal(t, "queued", string(pollResult.Status))
	assert.Nil(t, pollResult.Decision)
}

func TestPollHandler_UnknownJobIs404(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/decision/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
