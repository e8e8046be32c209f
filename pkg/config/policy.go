package config

// PolicyYAML is the on-disk shape of the policy pack: a versioned,
// hot-swappable set of thresholds the Decision Assembler and LLM router
// consult (spec §9 "rules and thresholds are versioned data, not code").
// A zero value for a threshold means "not set in this file, keep the
// built-in default" and is left alone by the mergo merge.
type PolicyYAML struct {
	Version               string  `yaml:"version"`
	MinConfidenceForAuto  float64 `yaml:"min_confidence_for_auto"`
	FraudDeclineThreshold float64 `yaml:"fraud_decline_threshold"`
	FraudReviewThreshold  float64 `yaml:"fraud_review_threshold"`
	PTICap                float64 `yaml:"pti_cap"`
	TDSCap                float64 `yaml:"tds_cap"`
	LTVCap                float64 `yaml:"ltv_cap"`
}

// DefaultPolicyConfig returns the built-in policy thresholds.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		MinConfidenceForAuto:  DefaultMinConfidenceForAuto,
		FraudDeclineThreshold: DefaultFraudDeclineThreshold,
		FraudReviewThreshold:  DefaultFraudReviewThreshold,
		PTICap:                DefaultPTICap,
		TDSCap:                DefaultTDSCap,
		LTVCap:                DefaultLTVCap,
		Version:               "builtin",
	}
}
