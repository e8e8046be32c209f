package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the environment and, if present, a policy pack YAML file at
// policyPath, and returns a fully validated Config (spec §6). policyPath
// may be empty, in which case the built-in policy thresholds apply.
func Load(policyPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnvOrDefault("SERVER_ADDR", DefaultServerAddr),
		},
	}

	db, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}
	cfg.DB = db

	ingress, err := loadIngressConfig()
	if err != nil {
		return nil, err
	}
	cfg.Ingress = ingress

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}
	cfg.LLM = llm

	policy, err := loadPolicyConfig(policyPath)
	if err != nil {
		return nil, err
	}
	cfg.Policy = *policy

	cfg.MLClient = MLClientConfig{
		ServiceURL: os.Getenv("ML_SERVICE_URL"),
		Timeout:    DefaultMLClientTimeout,
	}

	queue, err := loadQueueConfig()
	if err != nil {
		return nil, err
	}
	cfg.Queue = queue

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", strconv.Itoa(DefaultDBPort)))
	if err != nil {
		return DatabaseConfig{}, NewLoadError("DB_PORT", err)
	}
	maxOpen, err := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", strconv.Itoa(DefaultDBMaxOpenConns)))
	if err != nil {
		return DatabaseConfig{}, NewLoadError("DB_MAX_OPEN_CONNS", err)
	}
	maxIdle, err := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", strconv.Itoa(DefaultDBMaxIdleConns)))
	if err != nil {
		return DatabaseConfig{}, NewLoadError("DB_MAX_IDLE_CONNS", err)
	}
	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime.String()))
	if err != nil {
		return DatabaseConfig{}, NewLoadError("DB_CONN_MAX_LIFETIME", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", DefaultDBConnMaxIdleTime.String()))
	if err != nil {
		return DatabaseConfig{}, NewLoadError("DB_CONN_MAX_IDLE_TIME", err)
	}

	return DatabaseConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "fraudadjudicator"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "fraudadjudicator"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}, nil
}

func loadIngressConfig() (IngressConfig, error) {
	window, err := strconv.Atoi(getEnvOrDefault("NONCE_WINDOW_SECONDS", strconv.Itoa(DefaultNonceWindowSeconds)))
	if err != nil {
		return IngressConfig{}, NewLoadError("NONCE_WINDOW_SECONDS", err)
	}
	return IngressConfig{
		HMACSecret:         os.Getenv("HMAC_SECRET"),
		NonceWindowSeconds: window,
	}, nil
}

func loadLLMConfig() (LLMConfig, error) {
	maxTokens, err := strconv.Atoi(getEnvOrDefault("LLM_MAX_TOKENS", strconv.Itoa(DefaultLLMMaxTokens)))
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_MAX_TOKENS", err)
	}
	temperature, err := strconv.ParseFloat(getEnvOrDefault("LLM_TEMPERATURE", fmt.Sprintf("%v", DefaultLLMTemperature)), 64)
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_TEMPERATURE", err)
	}
	timeoutSeconds, err := strconv.Atoi(getEnvOrDefault("LLM_TIMEOUT", "30"))
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_TIMEOUT", err)
	}
	retryAttempts, err := strconv.Atoi(getEnvOrDefault("LLM_RETRY_ATTEMPTS", strconv.Itoa(DefaultLLMRetryAttempts)))
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_RETRY_ATTEMPTS", err)
	}
	retryDelayMS, err := strconv.Atoi(getEnvOrDefault("LLM_RETRY_DELAY_MS", "200"))
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_RETRY_DELAY_MS", err)
	}
	triggerMin, err := strconv.ParseFloat(getEnvOrDefault("LLM_TRIGGER_MIN", fmt.Sprintf("%v", DefaultLLMTriggerMin)), 64)
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_TRIGGER_MIN", err)
	}
	triggerMax, err := strconv.ParseFloat(getEnvOrDefault("LLM_TRIGGER_MAX", fmt.Sprintf("%v", DefaultLLMTriggerMax)), 64)
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_TRIGGER_MAX", err)
	}
	healthTimeout, err := time.ParseDuration(getEnvOrDefault("LLM_HEALTH_TIMEOUT", DefaultLLMHealthTimeout.String()))
	if err != nil {
		return LLMConfig{}, NewLoadError("LLM_HEALTH_TIMEOUT", err)
	}

	return LLMConfig{
		Provider:      os.Getenv("LLM_PROVIDER"),
		Endpoint:      os.Getenv("LLM_ENDPOINT"),
		Model:         os.Getenv("LLM_MODEL"),
		APIKey:        os.Getenv("LLM_API_KEY"),
		MaxTokens:     maxTokens,
		Temperature:   temperature,
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
		RetryAttempts: retryAttempts,
		RetryDelay:    time.Duration(retryDelayMS) * time.Millisecond,
		TriggerMin:    triggerMin,
		TriggerMax:    triggerMax,
		HealthTimeout: healthTimeout,
	}, nil
}

// loadPolicyConfig starts from the built-in thresholds and merges an
// optional policy pack file on top, non-zero fields overriding (spec §9).
func loadPolicyConfig(policyPath string) (*PolicyConfig, error) {
	cfg := DefaultPolicyConfig()
	if policyPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(policyPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, NewLoadError(policyPath, err)
	}

	var override PolicyYAML
	if err := yaml.Unmarshal(ExpandEnv(data), &override); err != nil {
		return nil, NewLoadError(policyPath, err)
	}

	if err := mergo.Merge(cfg, policyYAMLToConfig(override), mergo.WithOverride); err != nil {
		return nil, NewLoadError(policyPath, err)
	}
	return cfg, nil
}

func policyYAMLToConfig(y PolicyYAML) PolicyConfig {
	return PolicyConfig{
		Version:               y.Version,
		MinConfidenceForAuto:  y.MinConfidenceForAuto,
		FraudDeclineThreshold: y.FraudDeclineThreshold,
		FraudReviewThreshold:  y.FraudReviewThreshold,
		PTICap:                y.PTICap,
		TDSCap:                y.TDSCap,
		LTVCap:                y.LTVCap,
	}
}

func loadQueueConfig() (QueueConfig, error) {
	maxTries, err := strconv.Atoi(getEnvOrDefault("MAX_TRIES", strconv.Itoa(DefaultMaxTries)))
	if err != nil {
		return QueueConfig{}, NewLoadError("MAX_TRIES", err)
	}

	backoff := DefaultBackoffSeconds
	if raw := os.Getenv("BACKOFF_SECONDS"); raw != "" {
		parsed, err := parseBackoffSeconds(raw)
		if err != nil {
			return QueueConfig{}, NewLoadError("BACKOFF_SECONDS", err)
		}
		backoff = parsed
	}

	workerCount, err := strconv.Atoi(getEnvOrDefault("QUEUE_WORKER_COUNT", strconv.Itoa(DefaultWorkerCount)))
	if err != nil {
		return QueueConfig{}, NewLoadError("QUEUE_WORKER_COUNT", err)
	}
	pipelineTimeout, err := time.ParseDuration(getEnvOrDefault("PIPELINE_TIMEOUT", DefaultPipelineTimeout.String()))
	if err != nil {
		return QueueConfig{}, NewLoadError("PIPELINE_TIMEOUT", err)
	}
	healthMaxQueued, err := strconv.Atoi(getEnvOrDefault("QUEUE_HEALTH_MAX_QUEUED", strconv.Itoa(DefaultQueueHealthMaxQueued)))
	if err != nil {
		return QueueConfig{}, NewLoadError("QUEUE_HEALTH_MAX_QUEUED", err)
	}
	healthMaxFailed, err := strconv.Atoi(getEnvOrDefault("QUEUE_HEALTH_MAX_FAILED", strconv.Itoa(DefaultQueueHealthMaxFailed)))
	if err != nil {
		return QueueConfig{}, NewLoadError("QUEUE_HEALTH_MAX_FAILED", err)
	}

	return QueueConfig{
		MaxTries:        maxTries,
		BackoffSeconds:  backoff,
		WorkerCount:     workerCount,
		PipelineTimeout: pipelineTimeout,
		HealthMaxQueued: healthMaxQueued,
		HealthMaxFailed: healthMaxFailed,
	}, nil
}

// parseBackoffSeconds parses a comma-separated list like "30,60,120".
func parseBackoffSeconds(raw string) ([]int, error) {
	var out []int
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			tok := raw[start:i]
			start = i + 1
			if tok == "" {
				continue
			}
			n, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("invalid backoff value %q: %w", tok, err)
			}
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty backoff schedule")
	}
	return out, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
