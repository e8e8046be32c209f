package models

// RiskTier is the LLM's coarse risk classification (spec §4.6 response schema).
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Recommendation is the LLM's own suggested outcome. The routing decision
// is made independently by decide() (spec §9 open question: the strict
// four-valued enum is adopted).
type Recommendation string

const (
	RecommendApprove     Recommendation = "approve"
	RecommendConditional Recommendation = "conditional"
	RecommendDecline     Recommendation = "decline"
	RecommendReview      Recommendation = "review"
)

// DocVerification is the signals.doc_verification enum.
type DocVerification string

const (
	DocVerificationPass         DocVerification = "pass"
	DocVerificationFail         DocVerification = "fail"
	DocVerificationNotPerformed DocVerification = "not_performed"
)

// Velocity is the signals.velocity enum.
type Velocity string

const (
	VelocityNone   Velocity = "none"
	VelocityLow    Velocity = "low"
	VelocityMedium Velocity = "medium"
	VelocityHigh   Velocity = "high"
)

// Signals carries the LLM's structured fraud-signal flags.
type Signals struct {
	FraudHardFail   bool            `json:"fraud_hard_fail"`
	ConsortiumHit   bool            `json:"consortium_hit"`
	DocVerification DocVerification `json:"doc_verification"`
	SyntheticID     bool            `json:"synthetic_id"`
	Velocity        Velocity        `json:"velocity"`
}

// CreditBlock carries the LLM's read of the credit-policy gates.
type CreditBlock struct {
	Score          int     `json:"score"`    // [300,900]
	PTI            float64 `json:"pti"`      // [0,1]
	TDS            float64 `json:"tds"`      // [0,1]
	LTV            float64 `json:"ltv"`      // [0,3]
	StructureOK    bool    `json:"structure_ok"`
	MarginalReason string  `json:"marginal_reason"` // <= 200 chars
}

// StipulationType is the closed enum of mechanical loan-term remedies
// (spec §4.6, §GLOSSARY).
type StipulationType string

const (
	StipIncreaseDownPayment  StipulationType = "increase_down_payment"
	StipReduceTerm           StipulationType = "reduce_term"
	StipAddCoBorrower        StipulationType = "add_co_borrower"
	StipProvideIncomeDocs    StipulationType = "provide_income_docs"
	StipAddressProof         StipulationType = "address_proof"
	StipEmployerVerification StipulationType = "employer_verification"
)

// Stipulation is a single mechanical modification to loan terms that, if
// accepted, would move the case into approve.
type Stipulation struct {
	Type   StipulationType `json:"type"`
	Detail string          `json:"detail"` // <= 500 chars
}

// LLMAnalysis is the validated, schema-conformant result of one LLM call
// (spec §3, §4.6 response schema table). It is written by the LLM stage
// only when the stage is triggered; Analysis is the nil zero value
// otherwise.
type LLMAnalysis struct {
	FraudProbability  float64        `json:"fraud_probability"`  // [0,1]
	Confidence        float64        `json:"confidence"`         // [0,1]
	RiskTier          RiskTier       `json:"risk_tier"`
	Recommendation    Recommendation `json:"recommendation"`
	Reasoning         string         `json:"reasoning"`          // <= 3000 chars
	PrimaryConcerns   []string       `json:"primary_concerns"`   // <= 10
	RedFlags          []string       `json:"red_flags"`          // <= 20
	MitigatingFactors []string       `json:"mitigating_factors"` // <= 10
	Signals           Signals        `json:"signals"`
	Credit            CreditBlock    `json:"credit"`
	Stipulations      []Stipulation  `json:"stipulations"`

	ModelID               string `json:"-"`
	PromptTemplateVersion string `json:"-"`
}
