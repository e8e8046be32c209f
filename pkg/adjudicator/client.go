package adjudicator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/errs"
)

// chatCompletionRequest is the OpenAI-compatible request body (spec §4.6
// "Transport contract", §6 "LLM endpoint (consumed)").
type chatCompletionRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	MaxTokens      int                `json:"max_tokens"`
	Temperature    float64            `json:"temperature"`
	TopP           float64            `json:"top_p"`
	ResponseFormat responseFormatJSON `json:"response_format"`
	Seed           int64              `json:"seed"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormatJSON struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// deterministicSeed is sent with every request (spec §4.6 "a deterministic
// seed if supported"). The canonical fraud-adjudication call has no
// legitimate use for sampling variance between retries of the same
// analysis.
const deterministicSeed int64 = 42

// Client is an HTTP client for the LLM provider's chat-completions
// endpoint, with schema-constrained requests, jittered retry/backoff, and
// per-(provider,endpoint) circuit breaking (spec §4.6).
type Client struct {
	httpClient *http.Client
	cfg        config.LLMConfig
	breaker    CircuitBreaker
}

// CircuitBreaker is the subset of *breaker.Registry the adjudicator
// client needs, narrowed to an interface so tests can substitute a fake
// without standing up the real registry.
type CircuitBreaker interface {
	Allow(provider, endpoint string, now time.Time) bool
	RecordSuccess(provider, endpoint string)
	RecordFailure(provider, endpoint string, now time.Time)
}

// NewClient constructs a Client. breaker must not be nil.
func NewClient(cfg config.LLMConfig, breaker CircuitBreaker) *Client {
	if breaker == nil {
		panic("adjudicator.NewClient: breaker must not be nil")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		breaker:    breaker,
	}
}

// rawCompletion is one successful (possibly malformed) call to the LLM
// provider: the assistant message content, before JSON recovery/parse.
func (c *Client) rawCompletion(ctx context.Context, userPrompt string, timeout time.Duration) (string, error) {
	if !c.breaker.Allow(c.cfg.Provider, c.cfg.Endpoint, time.Now()) {
		return "", errs.New(errs.KindBreakerOpen, "llm circuit breaker open")
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        1.0,
		Seed:        deterministicSeed,
		ResponseFormat: responseFormatJSON{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   "fraud_analysis",
				Strict: true,
				Schema: json.RawMessage(responseJSONSchema),
			},
		},
	})
	if err != nil {
		return "", errs.Wrap(errs.KindPermanent, "marshal llm request", err)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.KindPermanent, "build llm request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := errs.Classify(err)
		c.breaker.RecordFailure(c.cfg.Provider, c.cfg.Endpoint, time.Now())
		return "", classified
	}
	defer resp.Body.Close()

	if classified := errs.ClassifyHTTPStatus(resp.StatusCode); classified != nil {
		if classified.Kind == errs.KindTransient {
			c.breaker.RecordFailure(c.cfg.Provider, c.cfg.Endpoint, time.Now())
		}
		return "", classified
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Classify(err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errs.Wrap(errs.KindPermanent, "decode llm transport envelope", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errs.New(errs.KindPermanent, "llm response has no choices")
	}

	c.breaker.RecordSuccess(c.cfg.Provider, c.cfg.Endpoint)
	return parsed.Choices[0].Message.Content, nil
}

// Complete calls the LLM provider, making at most cfg.RetryAttempts
// attempts in total and retrying only retryable errors, with jittered
// exponential backoff (spec §4.6
// "Retries and backoff": delay_k = base*2^(k-1) + Uniform(0,100)ms), and
// returns the raw assistant message content for the caller to recover/
// parse into an LLMAnalysis.
func (c *Client) Complete(ctx context.Context, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt-1, c.cfg.RetryDelay); err != nil {
				return "", errs.Wrap(errs.KindTimeout, "llm retry backoff interrupted", err)
			}
		}

		content, err := c.rawCompletion(ctx, userPrompt, c.cfg.Timeout)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !errs.IsRetryable(err) {
			return "", err
		}
	}
	return "", lastErr
}

// sleepBackoff waits base*2^(k-1) + Uniform(0,100)ms before attempt k+1
// (spec §4.6 retry formula), honoring context cancellation.
func sleepBackoff(ctx context.Context, k int, base time.Duration) error {
	backoff := base * time.Duration(1<<uint(k-1))
	jitter := time.Duration(rand.Intn(100)) * time.Millisecond
	select {
	case <-time.After(backoff + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecoverJSON implements the single recovery attempt spec §4.6 mandates
// for malformed LLM output: strip common code-fence markers, then take
// the substring between the first '{' and the last '}'. If that
// substring still doesn't parse, the caller treats it as invalid JSON.
func RecoverJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
