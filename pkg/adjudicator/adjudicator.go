package adjudicator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/masking"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// triggerConfidenceCeiling is the literal confidence threshold below
// which the adjudicator always runs, independent of the [TriggerMin,
// TriggerMax] band (spec §4.6 "Trigger": "ml.confidence_score < 0.8").
const triggerConfidenceCeiling = 0.8

// Triggered reports whether the LLM Adjudicator should run for this
// request (spec §4.6 "Trigger"): the ML stage is absent or errored, its
// confidence is below the fixed ceiling, or its confidence falls inside
// the configured trigger band.
func Triggered(mlOut *models.MLOutput, mlErrored bool, cfg config.LLMConfig) bool {
	if mlErrored || mlOut == nil {
		return true
	}
	c := mlOut.ConfidenceScore
	if c < triggerConfidenceCeiling {
		return true
	}
	return c >= cfg.TriggerMin && c <= cfg.TriggerMax
}

// Stage runs the LLM Adjudicator pipeline stage: trigger check, prompt
// construction, schema-constrained call, JSON recovery, and schema
// validation (spec §4.6).
type Stage struct {
	client  *Client
	cfg     config.LLMConfig
	masker  *masking.Service
	logger  *slog.Logger
}

// NewStage constructs a Stage. client and masker must not be nil.
func NewStage(client *Client, cfg config.LLMConfig, masker *masking.Service, logger *slog.Logger) *Stage {
	if client == nil {
		panic("adjudicator.NewStage: client must not be nil")
	}
	if masker == nil {
		panic("adjudicator.NewStage: masker must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{client: client, cfg: cfg, masker: masker, logger: logger}
}

// Result is what Run hands back to the caller (the Dispatcher's pipeline
// orchestration). Exactly one of Analysis/InvalidJSON/(both nil/false) is
// meaningful: Analysis set means the stage produced a validated
// LLMAnalysis; InvalidJSON means the stage exhausted its one recovery
// attempt and is yielding a REVIEW outcome per spec §4.6/§7; neither set
// means the stage wasn't triggered, or was triggered but the provider
// call never succeeded (breaker open or retries exhausted) — in both
// cases the stage writes no record and the Decision Assembler falls back
// to the rules+ML combine (spec §8 scenario 4).
type Result struct {
	Analysis    *models.LLMAnalysis
	InvalidJSON bool
}

// Run executes the stage for one request. mlOut is nil when the ML stage
// didn't run; mlErrored is true when it ran but errored.
func (s *Stage) Run(ctx context.Context, payload models.ApplicationPayload, rulesOut models.RulesOutput, mlOut *models.MLOutput, mlErrored bool, now time.Time) Result {
	if !Triggered(mlOut, mlErrored, s.cfg) {
		return Result{}
	}

	var mlForPrompt models.MLOutput
	if mlOut != nil {
		mlForPrompt = *mlOut
	}

	prompt, err := BuildUserPrompt(payload, rulesOut, mlForPrompt, now)
	if err != nil {
		s.logger.Error("adjudicator: failed to build prompt", "error", s.masker.Redact(err.Error()))
		return Result{}
	}

	raw, err := s.client.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("adjudicator: llm call did not complete, falling back",
			"error", s.masker.Redact(err.Error()))
		return Result{}
	}

	analysis, ok := parseAnalysis(raw)
	if !ok {
		s.logger.Warn("adjudicator: llm returned invalid json after recovery attempt")
		return Result{InvalidJSON: true}
	}

	analysis.ModelID = s.cfg.Model
	analysis.PromptTemplateVersion = PromptTemplateVersion

	s.logger.Info("adjudicator: analysis produced",
		"risk_tier", analysis.RiskTier,
		"recommendation", analysis.Recommendation,
		"fraud_probability", analysis.FraudProbability,
		"confidence", analysis.Confidence,
	)
	return Result{Analysis: &analysis}
}

// parseAnalysis attempts a direct JSON parse, then (on failure) the
// single recovery pass, validating the schema either way (spec §4.6
// "On malformed JSON, the adjudicator attempts a single recovery ...").
func parseAnalysis(raw string) (models.LLMAnalysis, bool) {
	var a models.LLMAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err == nil && ValidateSchema(&a) == nil {
		return a, true
	}

	recovered, ok := RecoverJSON(raw)
	if !ok {
		return models.LLMAnalysis{}, false
	}
	var a2 models.LLMAnalysis
	if err := json.Unmarshal([]byte(recovered), &a2); err != nil {
		return models.LLMAnalysis{}, false
	}
	if err := ValidateSchema(&a2); err != nil {
		return models.LLMAnalysis{}, false
	}
	return a2, true
}
