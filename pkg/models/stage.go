package models

import "time"

// StageName identifies one of the five fixed pipeline stages (spec §4.5).
type StageName string

const (
	StageRules    StageName = "rules"
	StageFeatures StageName = "features"
	StageML       StageName = "ml"
	StageLLM      StageName = "llm"
	StageDecision StageName = "decision"
)

// Ordered is the fixed execution order of the pipeline stages.
var Ordered = []StageName{StageRules, StageFeatures, StageML, StageLLM, StageDecision}

// StageRecord is an append-only record of one stage's execution for one
// attempt of one request. A replayed attempt writes a new record rather
// than mutating the previous one (spec §3 invariants).
type StageRecord struct {
	RequestID string
	Stage     StageName
	Version   string
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration

	// Output holds the stage-specific payload, JSON-encoded for storage.
	// Callers decode it into RulesOutput / FeatureVector / MLOutput /
	// LLMAnalysis as appropriate for Stage.
	Output []byte

	// Error is set when the stage produced a terminal error for this
	// attempt (HardFail short-circuits rather than erroring; Transient
	// and Permanent failures are recorded here).
	Error string
}
