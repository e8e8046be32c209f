// Package adjudicator implements the LLM Adjudicator submodule: schema-
// constrained LLM invocation, a per-(provider,endpoint) circuit breaker,
// PII redaction of outbound log lines, and the deterministic decide()
// routing function that turns a validated analysis into one of four
// outcomes plus auto-generated stipulations (spec §4.6).
package adjudicator

import (
	"fmt"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// Limits on the response schema's string/array fields (spec §4.6 response
// schema table).
const (
	maxReasoningChars      = 3000
	maxPrimaryConcerns     = 10
	maxRedFlags            = 20
	maxMitigatingFactors   = 10
	maxMarginalReasonChars = 200
	maxStipulationDetail   = 500
)

// validRiskTiers and validRecommendations enumerate the closed enums the
// schema allows (spec §9: the strict four-valued recommendation form is
// adopted; a response missing/mismatching it is SchemaViolation).
var (
	validRiskTiers = map[models.RiskTier]bool{
		models.RiskLow: true, models.RiskMedium: true, models.RiskHigh: true,
	}
	validRecommendations = map[models.Recommendation]bool{
		models.RecommendApprove: true, models.RecommendConditional: true,
		models.RecommendDecline: true, models.RecommendReview: true,
	}
	validDocVerification = map[models.DocVerification]bool{
		models.DocVerificationPass: true, models.DocVerificationFail: true,
		models.DocVerificationNotPerformed: true,
	}
	validVelocity = map[models.Velocity]bool{
		models.VelocityNone: true, models.VelocityLow: true,
		models.VelocityMedium: true, models.VelocityHigh: true,
	}
	validStipulationTypes = map[models.StipulationType]bool{
		models.StipIncreaseDownPayment:  true,
		models.StipReduceTerm:           true,
		models.StipAddCoBorrower:        true,
		models.StipProvideIncomeDocs:    true,
		models.StipAddressProof:         true,
		models.StipEmployerVerification: true,
	}
)

// ValidateSchema checks a, parsed from the LLM's JSON body, against
// every constraint in spec §4.6's response schema table. It returns the
// first violation found, formatted so it can be wrapped as a
// SchemaViolation by the caller.
func ValidateSchema(a *models.LLMAnalysis) error {
	if a == nil {
		return fmt.Errorf("nil analysis")
	}
	if a.FraudProbability < 0 || a.FraudProbability > 1 {
		return fmt.Errorf("fraud_probability %v out of [0,1]", a.FraudProbability)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", a.Confidence)
	}
	if !validRiskTiers[a.RiskTier] {
		return fmt.Errorf("risk_tier %q not one of low|medium|high", a.RiskTier)
	}
	if !validRecommendations[a.Recommendation] {
		return fmt.Errorf("recommendation %q not one of approve|conditional|decline|review", a.Recommendation)
	}
	if len(a.Reasoning) > maxReasoningChars {
		return fmt.Errorf("reasoning exceeds %d chars", maxReasoningChars)
	}
	if len(a.PrimaryConcerns) > maxPrimaryConcerns {
		return fmt.Errorf("primary_concerns exceeds %d entries", maxPrimaryConcerns)
	}
	if len(a.RedFlags) > maxRedFlags {
		return fmt.Errorf("red_flags exceeds %d entries", maxRedFlags)
	}
	if len(a.MitigatingFactors) > maxMitigatingFactors {
		return fmt.Errorf("mitigating_factors exceeds %d entries", maxMitigatingFactors)
	}
	if !validDocVerification[a.Signals.DocVerification] {
		return fmt.Errorf("signals.doc_verification %q not one of pass|fail|not_performed", a.Signals.DocVerification)
	}
	if !validVelocity[a.Signals.Velocity] {
		return fmt.Errorf("signals.velocity %q not one of none|low|medium|high", a.Signals.Velocity)
	}
	if a.Credit.Score < 300 || a.Credit.Score > 900 {
		return fmt.Errorf("credit.score %d out of [300,900]", a.Credit.Score)
	}
	if a.Credit.PTI < 0 || a.Credit.PTI > 1 {
		return fmt.Errorf("credit.pti %v out of [0,1]", a.Credit.PTI)
	}
	if a.Credit.TDS < 0 || a.Credit.TDS > 1 {
		return fmt.Errorf("credit.tds %v out of [0,1]", a.Credit.TDS)
	}
	if a.Credit.LTV < 0 || a.Credit.LTV > 3 {
		return fmt.Errorf("credit.ltv %v out of [0,3]", a.Credit.LTV)
	}
	if len(a.Credit.MarginalReason) > maxMarginalReasonChars {
		return fmt.Errorf("credit.marginal_reason exceeds %d chars", maxMarginalReasonChars)
	}
	for i, s := range a.Stipulations {
		if !validStipulationTypes[s.Type] {
			return fmt.Errorf("stipulations[%d].type %q not recognized", i, s.Type)
		}
		if len(s.Detail) > maxStipulationDetail {
			return fmt.Errorf("stipulations[%d].detail exceeds %d chars", i, maxStipulationDetail)
		}
	}
	return nil
}

// responseJSONSchema is the JSON Schema document sent as
// response_format.json_schema to providers that enforce it server-side
// (spec §4.6 "enforced by provider when supported"). Providers that
// don't honor response_format still get ValidateSchema's post-parse
// check as the source of truth.
const responseJSONSchema = `{
  "type": "object",
  "required": ["fraud_probability", "confidence", "risk_tier", "recommendation", "reasoning", "signals", "credit", "stipulations"],
  "properties": {
    "fraud_probability": {"type": "number", "minimum": 0, "maximum": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "risk_tier": {"type": "string", "enum": ["low", "medium", "high"]},
    "recommendation": {"type": "string", "enum": ["approve", "conditional", "decline", "review"]},
    "reasoning": {"type": "string", "maxLength": 3000},
    "primary_concerns": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
    "red_flags": {"type": "array", "items": {"type": "string"}, "maxItems": 20},
    "mitigating_factors": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
    "signals": {
      "type": "object",
      "required": ["fraud_hard_fail", "consortium_hit", "doc_verification", "synthetic_id", "velocity"],
      "properties": {
        "fraud_hard_fail": {"type": "boolean"},
        "consortium_hit": {"type": "boolean"},
        "doc_verification": {"type": "string", "enum": ["pass", "fail", "not_performed"]},
        "synthetic_id": {"type": "boolean"},
        "velocity": {"type": "string", "enum": ["none", "low", "medium", "high"]}
      }
    },
    "credit": {
      "type": "object",
      "required": ["score", "pti", "tds", "ltv", "structure_ok"],
      "properties": {
        "score": {"type": "integer", "minimum": 300, "maximum": 900},
        "pti": {"type": "number", "minimum": 0, "maximum": 1},
        "tds": {"type": "number", "minimum": 0, "maximum": 1},
        "ltv": {"type": "number", "minimum": 0, "maximum": 3},
        "structure_ok": {"type": "boolean"},
        "marginal_reason": {"type": "string", "maxLength": 200}
      }
    },
    "stipulations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "detail"],
        "properties": {
          "type": {"type": "string", "enum": ["increase_down_payment", "reduce_term", "add_co_borrower", "provide_income_docs", "address_proof", "employer_verification"]},
          "detail": {"type": "string", "maxLength": 500}
        }
      }
    }
  }
}`
