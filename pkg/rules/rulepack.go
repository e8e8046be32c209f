// Package rules evaluates the deterministic Rules stage: a fixed set of
// named checks, weighted and flagged by a versioned rule pack, run
// through one generic evaluator rather than one type per rule (spec §4.5,
// §9 "rules engine as data, not classes as code").
package rules

// RuleDef is one entry in a rule pack: the weight it contributes to
// rule_score when triggered, and whether triggering it is an automatic
// hard fail. The check itself is identified by Code and looked up in the
// fixed registry of checks in checks.go — the registry is code (a check
// is, irreducibly, a predicate over the payload), but which checks run,
// their weights, and their hard-fail status are data.
type RuleDef struct {
	Code     string  `yaml:"code"`
	Weight   float64 `yaml:"weight"`
	HardFail bool    `yaml:"hard_fail"`
}

// DenyList holds salted-hash deny entries for email/phone/VIN (spec §4.5
// "deny values stored as salted hashes").
type DenyList struct {
	Salt   string   `yaml:"salt"`
	Emails []string `yaml:"emails"` // sha256(salt || lowercased email)
	Phones []string `yaml:"phones"` // sha256(salt || digits-only phone)
	VINs   []string `yaml:"vins"`   // sha256(salt || uppercased VIN)
}

// RulePack is the versioned rule configuration. The service runs the pack
// returned by BuiltinRulePack; nothing reloads or swaps a pack while running.
type RulePack struct {
	Version  string    `yaml:"version"`
	Rules    []RuleDef `yaml:"rules"`
	DenyList DenyList  `yaml:"deny_list"`
}

// BuiltinRulePack returns the default rule pack shipped with the service.
// Weights were chosen so that every non-hard-fail rule firing at once
// sums to 1.0, matching rule_score's declared [0,1] range before the cap.
func BuiltinRulePack() *RulePack {
	return &RulePack{
		Version: "builtin",
		Rules: []RuleDef{
			{Code: CodeInvalidSIN, HardFail: true},
			{Code: CodeMissingMandatoryField, HardFail: true},
			{Code: CodeEmailDenyList, HardFail: true},
			{Code: CodePhoneDenyList, HardFail: true},
			{Code: CodeVINDenyList, HardFail: true},
			{Code: CodeNewEmploymentShortTenure, Weight: 0.15},
			{Code: CodeLowIncomeHighLoan, Weight: 0.20},
			{Code: CodeHighMileageForAge, Weight: 0.15},
			{Code: CodeMinorAge, Weight: 0.25},
			{Code: CodeSelfEmployedNoVerification, Weight: 0.15},
			{Code: CodeAddressMismatchProvince, Weight: 0.10},
		},
	}
}
