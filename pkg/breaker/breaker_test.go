package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_ClosedByDefault(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Allow("openai", "/v1/chat", time.Now()))
}

func TestRecordFailure_OpensAtThreshold(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	for i := 0; i < FailureThreshold-1; i++ {
		r.RecordFailure("openai", "/v1/chat", now)
	}
	assert.True(t, r.Allow("openai", "/v1/chat", now), "should stay closed below threshold")

	r.RecordFailure("openai", "/v1/chat", now)
	assert.False(t, r.Allow("openai", "/v1/chat", now), "should open at threshold")
}

func TestAllow_ReopensAfterDuration(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	for i := 0; i < FailureThreshold; i++ {
		r.RecordFailure("openai", "/v1/chat", now)
	}
	assert.False(t, r.Allow("openai", "/v1/chat", now))

	later := now.Add(OpenDuration)
	assert.True(t, r.Allow("openai", "/v1/chat", later), "should reset after OpenDuration")

	open, failures := r.State("openai", "/v1/chat")
	assert.False(t, open)
	assert.Equal(t, 0, failures)
}

func TestRecordSuccess_ZeroesCounterAndCloses(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	for i := 0; i < FailureThreshold; i++ {
		r.RecordFailure("openai", "/v1/chat", now)
	}
	assert.False(t, r.Allow("openai", "/v1/chat", now))

	r.RecordSuccess("openai", "/v1/chat")
	assert.True(t, r.Allow("openai", "/v1/chat", now))

	open, failures := r.State("openai", "/v1/chat")
	assert.False(t, open)
	assert.Equal(t, 0, failures)
}

func TestCircuits_AreIndependentPerKey(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	for i := 0; i < FailureThreshold; i++ {
		r.RecordFailure("openai", "/v1/chat", now)
	}
	assert.False(t, r.Allow("openai", "/v1/chat", now))
	assert.True(t, r.Allow("anthropic", "/v1/messages", now))
}
