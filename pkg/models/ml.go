package models

// TopFeature is one entry in the ML service's feature-importance ranking.
type TopFeature struct {
	Name         string  `json:"feature_name"`
	Value        float64 `json:"feature_value"`
	Importance   float64 `json:"importance"`
	Contribution float64 `json:"contribution"`
}

// MLOutput is the record written by the ML Client stage (spec §3, §4.5).
type MLOutput struct {
	ConfidenceScore    float64      `json:"confidence_score"` // [0,1]
	TopFeatures        []TopFeature `json:"top_features"`
	ModelVersion       string       `json:"model_version"`
	CalibrationVersion string       `json:"calibration_version"`
	InferenceTimeMS    int64        `json:"inference_time_ms"`
}
