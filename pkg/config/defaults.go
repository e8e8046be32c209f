package config

import "time"

// Built-in defaults for every environment variable the loader recognizes
// (spec §6). A user-supplied value always overrides these.
const (
	DefaultLLMMaxTokens     = 2000
	DefaultLLMTemperature   = 0.1
	DefaultLLMTimeout       = 30 * time.Second
	DefaultLLMRetryAttempts = 3
	DefaultLLMRetryDelay    = 200 * time.Millisecond
	DefaultLLMTriggerMin    = 0.3
	DefaultLLMTriggerMax    = 0.7
	DefaultLLMHealthTimeout = 5 * time.Second

	DefaultMinConfidenceForAuto  = 0.75
	DefaultFraudDeclineThreshold = 0.8
	DefaultFraudReviewThreshold  = 0.35
	DefaultPTICap                = 0.15
	DefaultTDSCap                = 0.45
	DefaultLTVCap                = 1.20

	DefaultMaxTries             = 3
	DefaultNonceWindowSeconds   = 300
	DefaultWorkerCount          = 3
	DefaultPipelineTimeout      = 300 * time.Second
	DefaultQueueHealthMaxQueued = 100
	DefaultQueueHealthMaxFailed = 10

	DefaultMLClientTimeout = 30 * time.Second

	DefaultDBPort            = 5432
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 10
	DefaultDBConnMaxLifetime = time.Hour
	DefaultDBConnMaxIdleTime = 15 * time.Minute

	DefaultServerAddr = ":8080"
)

// DefaultBackoffSeconds is the Dispatcher's fixed retry schedule: 30s,
// 60s, 120s for attempts 1 through 3 (spec §5, §6).
var DefaultBackoffSeconds = []int{30, 60, 120}
