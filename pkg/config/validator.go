package config

// validate checks cross-field and required-value constraints that can't
// be expressed by the zero-value defaults alone (spec §6).
func validate(cfg *Config) error {
	if cfg.Ingress.HMACSecret == "" {
		return NewValidationError("HMAC_SECRET", "is required")
	}
	if cfg.Ingress.NonceWindowSeconds <= 0 {
		return NewValidationError("NONCE_WINDOW_SECONDS", "must be positive")
	}

	if cfg.DB.Password == "" {
		return NewValidationError("DB_PASSWORD", "is required")
	}
	if cfg.DB.MaxIdleConns > cfg.DB.MaxOpenConns {
		return NewValidationError("DB_MAX_IDLE_CONNS", "cannot exceed DB_MAX_OPEN_CONNS")
	}
	if cfg.DB.MaxOpenConns < 1 {
		return NewValidationError("DB_MAX_OPEN_CONNS", "must be at least 1")
	}

	if cfg.LLM.Endpoint == "" {
		return NewValidationError("LLM_ENDPOINT", "is required")
	}
	if cfg.LLM.Model == "" {
		return NewValidationError("LLM_MODEL", "is required")
	}
	if cfg.LLM.TriggerMin < 0 || cfg.LLM.TriggerMax > 1 || cfg.LLM.TriggerMin >= cfg.LLM.TriggerMax {
		return NewValidationError("LLM_TRIGGER_MIN/LLM_TRIGGER_MAX", "must satisfy 0 <= min < max <= 1")
	}
	if cfg.LLM.RetryAttempts < 0 {
		return NewValidationError("LLM_RETRY_ATTEMPTS", "cannot be negative")
	}

	if cfg.Policy.FraudReviewThreshold >= cfg.Policy.FraudDeclineThreshold {
		return NewValidationError("FRAUD_REVIEW_THRESHOLD", "must be less than FRAUD_DECLINE_THRESHOLD")
	}
	if cfg.Policy.MinConfidenceForAuto < 0 || cfg.Policy.MinConfidenceForAuto > 1 {
		return NewValidationError("MIN_CONFIDENCE_FOR_AUTO", "must be in [0,1]")
	}

	if cfg.MLClient.ServiceURL == "" {
		return NewValidationError("ML_SERVICE_URL", "is required")
	}

	if cfg.Queue.MaxTries < 1 {
		return NewValidationError("MAX_TRIES", "must be at least 1")
	}
	if len(cfg.Queue.BackoffSeconds) == 0 {
		return NewValidationError("BACKOFF_SECONDS", "must not be empty")
	}
	if cfg.Queue.WorkerCount < 1 {
		return NewValidationError("QUEUE_WORKER_COUNT", "must be at least 1")
	}
	if cfg.Queue.PipelineTimeout <= 0 {
		return NewValidationError("PIPELINE_TIMEOUT", "must be positive")
	}

	return nil
}
