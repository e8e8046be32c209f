package models

// RulesOutput is the record written by the Rules stage (spec §3, §4.5).
type RulesOutput struct {
	RuleFlags       []string `json:"rule_flags"`
	RuleScore       float64  `json:"rule_score"` // [0,1], sum of contributions capped at 1.0
	HardFail        bool     `json:"hard_fail"`
	RulepackVersion string   `json:"rulepack_version"`
}
