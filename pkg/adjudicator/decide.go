package adjudicator

import (
	"fmt"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// Outcome is the closed set of routing results decide() can produce
// (spec §4.6 decide(), §9 "outcomes as tagged variants"). It is a
// narrower enum than models.FinalDecision in name only: the Decision
// Assembler (pkg/decision) maps Outcome 1:1 onto models.FinalDecision.
type Outcome string

const (
	OutcomeApprove     Outcome = "APPROVE"
	OutcomeConditional Outcome = "CONDITIONAL"
	OutcomeDecline     Outcome = "DECLINE"
	OutcomeReview      Outcome = "REVIEW"
)

// Decision is decide()'s return value: the routing outcome, the reason
// it fired, whether the case should additionally be queued for human
// review, and any mechanical stipulations generated along the way.
type Decision struct {
	Outcome      Outcome
	Reason       string
	Queue        bool
	Stipulations []models.Stipulation
}

// Decide is the adjudicator's routing function (spec §4.6 "decide() —
// the routing function"). It is pure: given the same analysis and the
// same policy thresholds, it always returns the same Decision. No I/O,
// no clock, no randomness.
func Decide(a models.LLMAnalysis, policy config.PolicyConfig) Decision {
	if a.Signals.FraudHardFail {
		return Decision{Outcome: OutcomeDecline, Reason: "Hard fraud signal"}
	}

	if a.Confidence < policy.MinConfidenceForAuto {
		return Decision{Outcome: OutcomeReview, Reason: "LLM confidence below auto-decision threshold", Queue: true}
	}

	// Strict '>' per spec §8 boundary test: fraud_probability equal to
	// the decline threshold does NOT decline.
	if a.FraudProbability > policy.FraudDeclineThreshold {
		return Decision{Outcome: OutcomeDecline, Reason: "Fraud probability above decline threshold"}
	}
	if a.FraudProbability > policy.FraudReviewThreshold {
		return Decision{Outcome: OutcomeReview, Reason: "Fraud probability above review threshold"}
	}

	ptiOK := a.Credit.PTI <= policy.PTICap
	tdsOK := a.Credit.TDS <= policy.TDSCap
	ltvOK := a.Credit.LTV <= policy.LTVCap
	structureOK := a.Credit.StructureOK

	if ptiOK && tdsOK && ltvOK && structureOK {
		return Decision{Outcome: OutcomeApprove, Reason: "All credit gates passed"}
	}

	stips := buildStipulations(a.Credit, policy, ptiOK, ltvOK, tdsOK)
	if len(stips) > 0 {
		return Decision{Outcome: OutcomeConditional, Reason: "Credit gate(s) failed with a mechanical remedy", Stipulations: stips}
	}
	return Decision{Outcome: OutcomeReview, Reason: "Credit gate(s) failed with no mechanical remedy", Queue: true}
}

// buildStipulations generates mechanical loan-term remedies in
// pti, ltv, tds order, deduplicated by type (spec §4.6 step 7).
func buildStipulations(credit models.CreditBlock, policy config.PolicyConfig, ptiOK, ltvOK, tdsOK bool) []models.Stipulation {
	var out []models.Stipulation
	seen := make(map[models.StipulationType]bool)

	add := func(t models.StipulationType, detail string) {
		if seen[t] {
			return
		}
		seen[t] = true
		out = append(out, models.Stipulation{Type: t, Detail: detail})
	}

	if !ptiOK {
		add(models.StipReduceTerm, "reduce term by 12 months")
		add(models.StipIncreaseDownPayment, fmt.Sprintf("until PTI <= %.0f%%", policy.PTICap*100))
	}
	if !ltvOK {
		add(models.StipIncreaseDownPayment, fmt.Sprintf("decrease LTV to <= %.0f%%", policy.LTVCap*100))
	}
	if !tdsOK {
		add(models.StipAddCoBorrower, "qualified co-borrower to reduce TDS")
	}
	_ = credit
	return out
}
