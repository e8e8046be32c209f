package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/errs"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
	"github.com/aboerstra/fraud-adjudicator/pkg/store"
)

// estimatedProcessingTime is the fixed completion estimate returned with
// every accepted submission (spec §4.1 "now + 2 min").
const estimatedProcessingTime = 2 * time.Minute

// Service implements Submit and Poll over the Job Store and Nonce Store
// (spec §4.1).
type Service struct {
	store *store.Client
	cfg   config.IngressConfig
}

// NewService constructs a Service. store must not be nil.
func NewService(st *store.Client, cfg config.IngressConfig) *Service {
	if st == nil {
		panic("ingress.NewService: store must not be nil")
	}
	return &Service{store: st, cfg: cfg}
}

// SubmitInput is everything the HTTP layer extracts from the request
// before calling Submit.
type SubmitInput struct {
	Headers   Headers
	Method    string
	Path      string
	Body      []byte
	ClientIP  string
	UserAgent string
}

// SubmitResult is returned to the client on acceptance.
type SubmitResult struct {
	JobID               string    `json:"job_id"`
	Status              string    `json:"status"`
	PollURL             string    `json:"poll_url"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

// Submit validates and persists a signed application, in the order spec
// §4.1 mandates, stopping at the first failure.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	now := time.Now().UTC()

	// 1. All four auth headers present.
	if in.Headers.APIKey == "" || in.Headers.Timestamp == "" || in.Headers.Nonce == "" || in.Headers.Signature == "" {
		return nil, errs.New(errs.KindAuthMissing, "missing one or more of X-Api-Key, X-Timestamp, X-Nonce, X-Signature")
	}
	if len(in.Headers.Nonce) > 255 {
		return nil, errs.New(errs.KindAuthMissing, "X-Nonce exceeds 255 bytes")
	}

	// 2. Timestamp freshness.
	ts, err := strconv.ParseInt(in.Headers.Timestamp, 10, 64)
	if err != nil {
		return nil, errs.New(errs.KindStale, "X-Timestamp is not a valid unix timestamp")
	}
	if math.Abs(float64(now.Unix()-ts)) > 300 {
		return nil, errs.New(errs.KindStale, "X-Timestamp is more than 300s from server time")
	}

	// 3. Replay check.
	fresh, err := s.store.SeenAndRemember(ctx, in.Headers.APIKey, in.Headers.Nonce, now, time.Duration(s.cfg.NonceWindowSeconds)*time.Second)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "nonce store unavailable", err)
	}
	if !fresh {
		return nil, errs.New(errs.KindReplay, "nonce already used for this api key")
	}

	// 4. Signature.
	if !verifySignature(s.cfg.HMACSecret, in.Method, in.Path, in.Body, in.Headers.Timestamp, in.Headers.Nonce, in.Headers.Signature) {
		return nil, errs.New(errs.KindBadSignature, "signature does not match")
	}

	// 5. Schema validation.
	var payload models.ApplicationPayload
	if err := json.Unmarshal(in.Body, &payload); err != nil {
		return nil, errs.Wrap(errs.KindInvalidPayload, "body is not valid JSON", err)
	}
	if fieldErrs := validatePayload(payload); len(fieldErrs) > 0 {
		return nil, &PayloadError{FieldErrors: fieldErrs}
	}

	requestID, err := s.store.CreateRequest(ctx, payload, store.RequestMeta{ClientIP: in.ClientIP, UserAgent: in.UserAgent}, now)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "failed to persist application", err)
	}

	return &SubmitResult{
		JobID:               requestID,
		Status:              string(models.StatusQueued),
		PollURL:             fmt.Sprintf("/v1/decision/%s", requestID),
		EstimatedCompletion: now.Add(estimatedProcessingTime),
	}, nil
}

// PayloadError is a classified InvalidPayload failure carrying the
// individual field errors (spec §4.1 "InvalidPayload(field_errors)").
type PayloadError struct {
	FieldErrors []FieldError
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("InvalidPayload: %d field error(s)", len(e.FieldErrors))
}

// Kind reports the error's classification, errs.KindInvalidPayload.
func (e *PayloadError) Kind() errs.Kind { return errs.KindInvalidPayload }

// PollResult is the status projection returned by Poll (spec §4.1).
type PollResult struct {
	Status      models.RequestStatus `json:"status"`
	SubmittedAt time.Time            `json:"submitted_at"`

	ErrorMessage string        `json:"error_message,omitempty"`
	Decision     *DecisionView `json:"decision,omitempty"`
}

// DecisionView is the enriched projection added once a request reaches
// status=decided (spec §4.1 "Decision block plus three score bands ...").
type DecisionView struct {
	FinalDecision models.FinalDecision `json:"final_decision"`
	Reasons       []string             `json:"reasons"`
	Stipulations  []models.Stipulation `json:"stipulations"`
	PolicyVersion string               `json:"policy_version"`
	Timing        map[string]int64     `json:"timing_ms"`

	RuleScoreBand models.Band `json:"rule_score_band"`
	MLScoreBand   models.Band `json:"ml_score_band"`
	LLMScoreBand  models.Band `json:"llm_score_band"`

	RuleFlags            []string            `json:"rule_flags"`
	TopFeatures          []models.TopFeature `json:"top_features"`
	AdjudicatorRationale string              `json:"adjudicator_rationale,omitempty"`
}

// Poll returns the current status projection for a job (spec §4.1).
func (s *Service) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	req, err := s.store.LoadRequest(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.KindNotFound, "job not found")
		}
		return nil, errs.Wrap(errs.KindTransient, "job store unavailable", err)
	}

	result := &PollResult{Status: req.Status, SubmittedAt: req.ReceivedAt}

	switch req.Status {
	case models.StatusFailed:
		result.ErrorMessage = req.ErrorMessage
	case models.StatusDecided:
		view, err := s.buildDecisionView(ctx, jobID)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "failed to assemble decision view", err)
		}
		result.Decision = view
	}

	return result, nil
}

func (s *Service) buildDecisionView(ctx context.Context, jobID string) (*DecisionView, error) {
	decision, err := s.store.LoadDecision(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &DecisionView{
		FinalDecision: decision.FinalDecision,
		Reasons:       decision.Reasons,
		Stipulations:  decision.Stipulations,
		PolicyVersion: decision.PolicyVersion,
		Timing:        decision.Timing,
		RuleScoreBand: models.BandUnknown,
		MLScoreBand:   models.BandUnknown,
		LLMScoreBand:  models.BandUnknown,
	}

	if rec, err := s.store.LatestStage(ctx, jobID, models.StageRules); err == nil {
		var rules models.RulesOutput
		if json.Unmarshal(rec.Output, &rules) == nil {
			view.RuleScoreBand = models.ScoreBand(rules.RuleScore, true)
			view.RuleFlags = rules.RuleFlags
		}
	}

	if rec, err := s.store.LatestStage(ctx, jobID, models.StageML); err == nil {
		var ml models.MLOutput
		if json.Unmarshal(rec.Output, &ml) == nil {
			view.MLScoreBand = models.ScoreBand(ml.ConfidenceScore, true)
			view.TopFeatures = ml.TopFeatures
		}
	}

	if rec, err := s.store.LatestStage(ctx, jobID, models.StageLLM); err == nil {
		var llm models.LLMAnalysis
		if json.Unmarshal(rec.Output, &llm) == nil {
			view.LLMScoreBand = models.ScoreBand(llm.FraudProbability, true)
			view.AdjudicatorRationale = llm.Reasoning
		}
	}

	return view, nil
}
