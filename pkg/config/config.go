// Package config loads and validates the environment-driven settings and
// the YAML policy pack that govern the adjudication pipeline: HMAC/nonce
// ingress settings, the LLM transport contract, policy thresholds, the
// ML client endpoint, and the Dispatcher's retry schedule (spec §6).
package config

import "time"

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	Server   ServerConfig
	DB       DatabaseConfig
	Ingress  IngressConfig
	LLM      LLMConfig
	Policy   PolicyConfig
	MLClient MLClientConfig
	Queue    QueueConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig configures the Postgres connection pool backing the Job
// Store, Nonce Store, and queue table (spec §4.2, §4.3).
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// IngressConfig governs request authentication and replay defense
// (spec §4.1).
type IngressConfig struct {
	HMACSecret         string
	NonceWindowSeconds int
}

// LLMConfig is the transport contract for the adjudicator's LLM calls
// (spec §4.6).
type LLMConfig struct {
	Provider      string
	Endpoint      string
	Model         string
	APIKey        string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	TriggerMin    float64
	TriggerMax    float64
	HealthTimeout time.Duration
}

// PolicyConfig carries the decision thresholds the Decision Assembler and
// LLM routing logic consult (spec §4.5, §4.6).
type PolicyConfig struct {
	MinConfidenceForAuto  float64
	FraudDeclineThreshold float64
	FraudReviewThreshold  float64
	PTICap                float64
	TDSCap                float64
	LTVCap                float64
	Version               string
}

// MLClientConfig is the ML scoring service's HTTP endpoint (spec §4.5).
type MLClientConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// QueueConfig controls the Dispatcher's claim/retry/backoff behavior
// (spec §4.3, §5).
type QueueConfig struct {
	MaxTries        int
	BackoffSeconds  []int
	WorkerCount     int
	PipelineTimeout time.Duration
	HealthMaxQueued int
	HealthMaxFailed int
}
