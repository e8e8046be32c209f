package adjudicator

import (
	"context"
	"fmt"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// DefaultHealthTimeout is the canary/health probe's default timeout,
// shorter than the 30s used for real adjudication calls (spec §9 open
// question: "canary timing should be configurable but default to the
// shorter bound", resolved against the source's getHealthStatus() 5s).
const DefaultHealthTimeout = 5 * time.Second

// healthCheckPrompt is a minimal request sent by Probe; it exercises the
// transport and schema path without representing a real applicant.
const healthCheckPrompt = `Respond with your standard JSON schema using placeholder low-risk values so this health probe can verify transport and schema conformance.`

// canaryFixture is a fixed, synthetic low-risk application used by
// Canary to assert the routing function still produces the expected
// outcome end-to-end (spec §4.6 "Health").
var canaryFixture = models.LLMAnalysis{
	FraudProbability: 0.02,
	Confidence:       0.95,
	RiskTier:         models.RiskLow,
	Recommendation:   models.RecommendApprove,
	Signals: models.Signals{
		FraudHardFail:   false,
		ConsortiumHit:   false,
		DocVerification: models.DocVerificationPass,
		SyntheticID:     false,
		Velocity:        models.VelocityNone,
	},
	Credit: models.CreditBlock{
		Score:       780,
		PTI:         0.08,
		TDS:         0.20,
		LTV:         0.75,
		StructureOK: true,
	},
}

// Probe sends a minimal request to the LLM provider with the same
// schema the adjudicator uses, honoring timeout independently of the
// adjudicator's normal 30s call timeout (spec §4.6 "Health"). It reports
// failures but never affects traffic routing — callers surface the
// result as a health/readiness signal only.
func (c *Client) Probe(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	_, err := c.rawCompletion(ctx, healthCheckPrompt, timeout)
	return err
}

// Canary runs decide() against a fixed low-risk fixture and asserts the
// outcome is APPROVE with every schema field present, independent of any
// live provider call (spec §4.6 "a canary additionally runs a fixed
// low-risk sample and asserts the decide() outcome equals approve").
func Canary(policy config.PolicyConfig) error {
	fixture := canaryFixture
	if err := ValidateSchema(&fixture); err != nil {
		return fmt.Errorf("adjudicator canary: fixture fails schema validation: %w", err)
	}
	d := Decide(fixture, policy)
	if d.Outcome != OutcomeApprove {
		return &CanaryError{Outcome: d.Outcome, Reason: d.Reason}
	}
	return nil
}

// CanaryError reports that the fixed low-risk fixture didn't route to
// APPROVE, which means the configured policy thresholds (or decide()
// itself) have drifted from the documented defaults.
type CanaryError struct {
	Outcome Outcome
	Reason  string
}

func (e *CanaryError) Error() string {
	return "adjudicator canary: expected APPROVE, got " + string(e.Outcome) + ": " + e.Reason
}
