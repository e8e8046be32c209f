// Package decision implements the Decision Assembler: the final pipeline
// stage that consumes the Rules, ML, and optional LLM Analysis records
// and computes the terminal routing decision (spec §4.5).
package decision

import (
	"github.com/aboerstra/fraud-adjudicator/pkg/adjudicator"
	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// combineDeclineAt and combineReviewAt are the cutoffs for the
// rule_score/ml.confidence_score fallback combine (spec §4.5 step 8),
// used only when no LLM analysis is available to route on.
const (
	combineDeclineAt = 0.8
	combineReviewAt  = 0.6
)

// Input bundles everything the assembler needs for one request. MLOut is
// nil when the ML stage never ran or errored. LLMOut is nil when the LLM
// Adjudicator wasn't triggered, or was triggered but failed open (breaker
// open / retries exhausted) without producing an analysis. LLMInvalidJSON
// is true when the LLM stage received a response that even its single
// recovery parse couldn't turn into valid JSON (spec §4.6, §7
// SchemaViolation).
type Input struct {
	RulesOut       models.RulesOutput
	MLOut          *models.MLOutput
	LLMOut         *models.LLMAnalysis
	LLMInvalidJSON bool
	Policy         config.PolicyConfig
	Timing         map[string]int64
}

// Assemble runs the top-down, first-match-wins routing algorithm (spec
// §4.5) and returns the terminal Decision.
func Assemble(in Input) models.Decision {
	var reasons []string

	switch {
	case in.RulesOut.HardFail:
		reasons = appendCapped(reasons, in.RulesOut.RuleFlags...)
		return finalize(models.DecisionDecline, reasons, nil, in)

	case in.LLMInvalidJSON:
		reasons = appendCapped(reasons, "LLM invalid JSON")
		reasons = appendRuleAndMLReasons(reasons, in)
		return finalize(models.DecisionReview, reasons, nil, in)

	case in.LLMOut != nil:
		d := adjudicator.Decide(*in.LLMOut, in.Policy)
		reasons = appendCapped(reasons, in.RulesOut.RuleFlags...)
		reasons = appendMLReasons(reasons, in.MLOut)
		reasons = appendCapped(reasons, d.Reason)
		reasons = appendCapped(reasons, llmRationaleBullets(*in.LLMOut)...)
		return finalize(outcomeToFinal(d.Outcome), reasons, d.Stipulations, in)

	default:
		reasons = appendRuleAndMLReasons(reasons, in)
		final := combine(in.RulesOut.RuleScore, in.MLOut)
		return finalize(final, reasons, nil, in)
	}
}

func combine(ruleScore float64, mlOut *models.MLOutput) models.FinalDecision {
	mlConfidence := 0.0
	if mlOut != nil {
		mlConfidence = mlOut.ConfidenceScore
	}
	combined := ruleScore
	if mlConfidence > combined {
		combined = mlConfidence
	}
	switch {
	case combined >= combineDeclineAt:
		return models.DecisionDecline
	case combined >= combineReviewAt:
		return models.DecisionReview
	default:
		return models.DecisionApprove
	}
}

func outcomeToFinal(o adjudicator.Outcome) models.FinalDecision {
	switch o {
	case adjudicator.OutcomeApprove:
		return models.DecisionApprove
	case adjudicator.OutcomeConditional:
		return models.DecisionConditional
	case adjudicator.OutcomeDecline:
		return models.DecisionDecline
	default:
		return models.DecisionReview
	}
}

func finalize(final models.FinalDecision, reasons []string, stips []models.Stipulation, in Input) models.Decision {
	return models.Decision{
		FinalDecision: final,
		Reasons:       reasons,
		Stipulations:  stips,
		PolicyVersion: in.Policy.Version,
		Timing:        in.Timing,
	}
}

func appendRuleAndMLReasons(reasons []string, in Input) []string {
	reasons = appendCapped(reasons, in.RulesOut.RuleFlags...)
	return appendMLReasons(reasons, in.MLOut)
}

func appendMLReasons(reasons []string, mlOut *models.MLOutput) []string {
	if mlOut == nil {
		return reasons
	}
	names := make([]string, 0, len(mlOut.TopFeatures))
	for _, f := range mlOut.TopFeatures {
		names = append(names, f.Name)
	}
	return appendCapped(reasons, names...)
}

// llmRationaleBullets extracts the LLM's rationale as an ordered list of
// short reasons: its red flags first (the concrete risk drivers), then
// its primary concerns.
func llmRationaleBullets(a models.LLMAnalysis) []string {
	bullets := make([]string, 0, len(a.RedFlags)+len(a.PrimaryConcerns))
	bullets = append(bullets, a.RedFlags...)
	bullets = append(bullets, a.PrimaryConcerns...)
	return bullets
}

// appendCapped appends items to reasons, stopping once reasons reaches
// models.MaxReasons (spec §4.5 "capped at 5").
func appendCapped(reasons []string, items ...string) []string {
	for _, item := range items {
		if len(reasons) >= models.MaxReasons {
			break
		}
		reasons = append(reasons, item)
	}
	return reasons
}
