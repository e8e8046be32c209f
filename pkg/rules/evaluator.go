package rules

import (
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// maxRuleScore is the cap on the additive rule_score (spec §4.5 "capped
// at 1.0").
const maxRuleScore = 1.0

// Evaluate runs every rule in pack against the payload and produces the
// Rules stage's output (spec §3, §4.5). This is the one generic
// evaluator: it does not branch per rule code beyond the registry
// lookup, so adding a rule is a rule-pack change, not a code change.
func Evaluate(pack *RulePack, payload models.ApplicationPayload, now time.Time) models.RulesOutput {
	out := models.RulesOutput{RulepackVersion: pack.Version}

	var score float64
	for _, def := range pack.Rules {
		fn, ok := registry[def.Code]
		if !ok {
			continue // unknown code in a stale rule pack: skip rather than fail the pipeline
		}
		if !fn(payload, pack.DenyList, now) {
			continue
		}

		out.RuleFlags = append(out.RuleFlags, def.Code)
		if def.HardFail {
			out.HardFail = true
		}
		score += def.Weight
	}

	if score > maxRuleScore {
		score = maxRuleScore
	}
	out.RuleScore = score
	return out
}
