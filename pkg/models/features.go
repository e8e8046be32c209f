package models

// FeatureNames is the declared order of the 15 named numeric features
// produced by the Features stage (spec §4.5). Order is load-bearing: the ML
// endpoint receives features and feature_names as parallel ordered lists.
var FeatureNames = []string{
	"age",
	"sin_valid",
	"email_domain_category",
	"phone_reuse_count",
	"email_reuse_count",
	"vin_reuse_flag",
	"dealer_volume_24h",
	"dealer_fraud_percentile",
	"province_ip_mismatch",
	"address_postal_match",
	"loan_to_value_ratio",
	"purchase_loan_ratio",
	"dp_income_ratio",
	"mileage_plausibility",
	"high_value_low_income",
}

// FeatureVector is the record written by the Features stage: exactly 15
// named numeric features in FeatureNames order.
type FeatureVector struct {
	Values            [15]float64 `json:"values"`
	FeatureSetVersion string      `json:"feature_set_version"`
}

// Named returns the feature vector as a name->value map, for logging and
// for the prompt-construction projection in the LLM adjudicator.
func (f FeatureVector) Named() map[string]float64 {
	out := make(map[string]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		out[name] = f.Values[i]
	}
	return out
}
