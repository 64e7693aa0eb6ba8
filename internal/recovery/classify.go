package recovery

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// Classification is an explicit, ordered, data-driven rule list. String
// matching is the only portable way to classify arbitrary third-party
// failures without type coupling; structural checks (net.Error, context
// deadline) run inside the same rule table so the priority order stays in
// one place. First match wins.

// classificationRule pairs a predicate with the category it assigns.
type classificationRule struct {
	name     string
	category ErrorCategory
	matches  func(err error, msg string) bool
}

func matchAny(substrings ...string) func(err error, msg string) bool {
	return func(_ error, msg string) bool {
		for _, s := range substrings {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// classificationRules is evaluated in order. Rate limiting is checked before
// authentication because 429 bodies from some providers also mention auth
// scopes; timeouts before network because timeout errors often satisfy
// net.Error.
var classificationRules = []classificationRule{
	{
		name:     "rate_limit",
		category: CategoryRateLimit,
		matches:  matchAny("rate limit", "too many requests", "429", "quota exceeded", "throttle"),
	},
	{
		name:     "authentication",
		category: CategoryAuthentication,
		matches:  matchAny("unauthorized", "401", "403", "forbidden", "invalid api key", "authentication failed", "permission denied"),
	},
	{
		name:     "timeout",
		category: CategoryTimeout,
		matches: func(err error, msg string) bool {
			if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
				return true
			}
			return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
				strings.Contains(msg, "deadline exceeded")
		},
	},
	{
		name:     "network",
		category: CategoryNetwork,
		matches: func(err error, msg string) bool {
			var netErr net.Error
			if errors.As(err, &netErr) {
				return true
			}
			return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
				strings.Contains(msg, "no such host") || strings.Contains(msg, "broken pipe") ||
				strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "unexpected eof")
		},
	},
	{
		name:     "validation",
		category: CategoryValidation,
		matches:  matchAny("validation", "invalid input", "invalid argument", "missing required", "malformed request", "422"),
	},
	{
		name:     "processing",
		category: CategoryProcessing,
		matches:  matchAny("parse error", "unmarshal", "decode", "unexpected response format", "invalid json"),
	},
	{
		name:     "storage",
		category: CategoryStorage,
		matches:  matchAny("database", "sqlite", "disk full", "no space left", "read-only file system"),
	},
	{
		name:     "system",
		category: CategorySystem,
		matches:  matchAny("out of memory", "cannot allocate", "resource temporarily unavailable", "too many open files"),
	},
}

// Classify maps a failure to a structured, actionable descriptor.
// Unmatched errors fall through to CategoryUnknown, which is still
// actionable (retry, then escalate).
func Classify(err error, operation string, contextData map[string]string) *ErrorInfo {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		if rule.matches(err, msg) {
			return newErrorInfo(rule.category, operation, err.Error(), contextData)
		}
	}
	return newErrorInfo(CategoryUnknown, operation, err.Error(), contextData)
}
