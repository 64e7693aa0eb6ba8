package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, "op", nil))
}

func TestClassifyCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"rate limit phrase", errors.New("rate limit exceeded, retry later"), CategoryRateLimit},
		{"http 429", errors.New("API returned 429 Too Many Requests"), CategoryRateLimit},
		{"quota", errors.New("monthly quota exceeded"), CategoryRateLimit},
		{"unauthorized", errors.New("401 Unauthorized"), CategoryAuthentication},
		{"invalid key", errors.New("invalid API key provided"), CategoryAuthentication},
		{"forbidden", errors.New("403 Forbidden"), CategoryAuthentication},
		{"timeout phrase", errors.New("request timed out after 30s"), CategoryTimeout},
		{"deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"connection refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), CategoryNetwork},
		{"no such host", errors.New("lookup api.example.com: no such host"), CategoryNetwork},
		{"validation", errors.New("validation failed: missing required field name"), CategoryValidation},
		{"unprocessable", errors.New("server returned 422"), CategoryValidation},
		{"parse", errors.New("parse error in provider response"), CategoryProcessing},
		{"unmarshal", errors.New("json: cannot unmarshal string into int"), CategoryProcessing},
		{"sqlite", errors.New("sqlite: disk I/O error"), CategoryStorage},
		{"disk full", errors.New("write /var/lib/scout: no space left on device"), CategoryStorage},
		{"oom", errors.New("fork: cannot allocate memory"), CategorySystem},
		{"fd exhaustion", errors.New("accept: too many open files"), CategorySystem},
		{"unmatched", errors.New("something completely different"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(tt.err, "discover", nil)
			require.NotNil(t, info)
			assert.Equal(t, tt.want, info.Category)
		})
	}
}

func TestClassifyTimeoutBeatsNetwork(t *testing.T) {
	// A net.Error that is also a timeout must classify as timeout.
	err := &net.DNSError{Err: "i/o timeout", IsTimeout: true}
	info := Classify(fmt.Errorf("fetch: %w", err), "discover", nil)
	assert.Equal(t, CategoryTimeout, info.Category)
}

func TestClassifyNetErrorWithoutSubstring(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("weird transport issue")}
	info := Classify(err, "discover", nil)
	assert.Equal(t, CategoryNetwork, info.Category)
}

func TestClassifyRateLimitBeatsAuthentication(t *testing.T) {
	// Some providers mention auth scopes in 429 bodies.
	err := errors.New("429 too many requests for authorization scope")
	info := Classify(err, "discover", nil)
	assert.Equal(t, CategoryRateLimit, info.Category)
}

func TestClassifyDescriptorFields(t *testing.T) {
	info := Classify(errors.New("rate limit"), "llm.claude", map[string]string{"track": "government"})

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "llm.claude", info.Operation)
	assert.Equal(t, "rate limit", info.Message)
	assert.NotEmpty(t, info.UserMessage)
	assert.NotContains(t, info.UserMessage, "rate limit") // technical detail stays internal
	assert.Equal(t, "government", info.ContextData["track"])
	assert.WithinDuration(t, time.Now(), info.Timestamp, 5*time.Second)

	// Two classifications of the same failure get distinct IDs.
	other := Classify(errors.New("rate limit"), "llm.claude", nil)
	assert.NotEqual(t, info.ID, other.ID)
}

func TestEveryCategoryHasActionsAndSeverity(t *testing.T) {
	categories := []ErrorCategory{
		CategoryRateLimit, CategoryAuthentication, CategoryTimeout,
		CategoryNetwork, CategoryValidation, CategoryProcessing,
		CategoryStorage, CategorySystem, CategoryUnknown,
	}
	for _, c := range categories {
		profile, ok := categoryProfiles[c]
		require.True(t, ok, "category %s has no profile", c)
		assert.NotEmpty(t, profile.actions, "category %s has no actions", c)
		assert.NotEmpty(t, profile.severity, "category %s has no severity", c)
		assert.NotEmpty(t, profile.userMessage, "category %s has no user message", c)
	}
}

func TestNonRetryableCategoriesNeverRecommendRetry(t *testing.T) {
	for _, c := range []ErrorCategory{CategoryAuthentication, CategoryValidation} {
		info := newErrorInfo(c, "op", "msg", nil)
		assert.False(t, info.HasAction(ActionRetry), "category %s must not recommend retry", c)
	}
}

func TestSeverityAssignments(t *testing.T) {
	assert.Equal(t, SeverityHigh, categoryProfiles[CategoryAuthentication].severity)
	assert.Equal(t, SeverityHigh, categoryProfiles[CategoryStorage].severity)
	assert.Equal(t, SeverityHigh, categoryProfiles[CategorySystem].severity)
	assert.Equal(t, SeverityLow, categoryProfiles[CategoryValidation].severity)
	assert.Equal(t, SeverityMedium, categoryProfiles[CategoryUnknown].severity)
}
