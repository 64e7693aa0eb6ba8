// Package recovery makes calls to unreliable downstream services fail
// predictably: a classifier turns arbitrary failures into structured,
// actionable descriptors, a retry policy computes backoff, per-operation
// circuit breakers fail fast on chronic failure, and the Manager composes
// them with registered fallbacks into one call wrapper.
package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fundscout/scout/internal/models"
)

// ErrorCategory buckets a downstream failure by cause.
type ErrorCategory string

// Error categories, in rough classification priority order.
const (
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryNetwork        ErrorCategory = "network"
	CategoryValidation     ErrorCategory = "validation"
	CategoryProcessing     ErrorCategory = "processing"
	CategoryStorage        ErrorCategory = "storage"
	CategorySystem         ErrorCategory = "system"
	CategoryUnknown        ErrorCategory = "unknown"
)

// Severity grades how urgently a failure needs attention.
type Severity string

// Severity levels.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RecoveryAction is a recommended response to a classified failure.
type RecoveryAction string

// Recovery actions.
const (
	ActionRetry    RecoveryAction = "retry"
	ActionFallback RecoveryAction = "fallback"
	ActionWait     RecoveryAction = "wait"
	ActionEscalate RecoveryAction = "escalate"
)

// ErrorInfo is the structured descriptor produced by classification.
// Message is the internal technical message; UserMessage is safe to show
// outside the system.
type ErrorInfo struct {
	ID              string            `json:"id"`
	Category        ErrorCategory     `json:"category"`
	Severity        Severity          `json:"severity"`
	Message         string            `json:"message"`
	UserMessage     string            `json:"user_message"`
	Operation       string            `json:"operation"`
	ContextData     map[string]string `json:"context,omitempty"`
	RecoveryActions []RecoveryAction  `json:"recovery_actions"`
	Timestamp       time.Time         `json:"timestamp"`
}

// HasAction reports whether the descriptor recommends the given action.
func (e *ErrorInfo) HasAction(a RecoveryAction) bool {
	for _, act := range e.RecoveryActions {
		if act == a {
			return true
		}
	}
	return false
}

func newErrorInfo(category ErrorCategory, operation, message string, contextData map[string]string) *ErrorInfo {
	profile := categoryProfiles[category]
	actions := make([]RecoveryAction, len(profile.actions))
	copy(actions, profile.actions)
	return &ErrorInfo{
		ID:              uuid.NewString(),
		Category:        category,
		Severity:        profile.severity,
		Message:         message,
		UserMessage:     profile.userMessage,
		Operation:       operation,
		ContextData:     contextData,
		RecoveryActions: actions,
		Timestamp:       time.Now().UTC(),
	}
}

// categoryProfile fixes the severity, user-safe message, and default recovery
// actions for a category. Every category has a non-empty action set.
type categoryProfile struct {
	severity    Severity
	userMessage string
	actions     []RecoveryAction
}

var categoryProfiles = map[ErrorCategory]categoryProfile{
	CategoryRateLimit: {
		severity:    SeverityMedium,
		userMessage: "The service is receiving too many requests. Please try again shortly.",
		actions:     []RecoveryAction{ActionWait, ActionRetry},
	},
	CategoryAuthentication: {
		severity:    SeverityHigh,
		userMessage: "The service could not authenticate with a downstream provider.",
		actions:     []RecoveryAction{ActionEscalate},
	},
	CategoryTimeout: {
		severity:    SeverityMedium,
		userMessage: "A downstream service took too long to respond.",
		actions:     []RecoveryAction{ActionRetry, ActionFallback},
	},
	CategoryNetwork: {
		severity:    SeverityMedium,
		userMessage: "A network problem interrupted the operation.",
		actions:     []RecoveryAction{ActionRetry, ActionFallback},
	},
	CategoryValidation: {
		severity:    SeverityLow,
		userMessage: "The request contained invalid data.",
		actions:     []RecoveryAction{ActionEscalate},
	},
	CategoryProcessing: {
		severity:    SeverityMedium,
		userMessage: "The service could not process a downstream response.",
		actions:     []RecoveryAction{ActionRetry, ActionFallback},
	},
	CategoryStorage: {
		severity:    SeverityHigh,
		userMessage: "A storage problem interrupted the operation.",
		actions:     []RecoveryAction{ActionRetry, ActionEscalate},
	},
	CategorySystem: {
		severity:    SeverityHigh,
		userMessage: "An internal system problem interrupted the operation.",
		actions:     []RecoveryAction{ActionEscalate},
	},
	CategoryUnknown: {
		severity:    SeverityMedium,
		userMessage: "An unexpected error interrupted the operation.",
		actions:     []RecoveryAction{ActionRetry, ActionEscalate},
	},
}

// ErrCircuitOpen is returned when a circuit breaker rejects a call without
// invoking the underlying action. Like lock timeouts, it means "try later".
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError replaces ErrCircuitOpen with structured context.
type CircuitOpenError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for operation %s", e.Operation)
}
func (e *CircuitOpenError) ErrorCode() string { return "CIRCUIT_OPEN" }
func (e *CircuitOpenError) Context() map[string]string {
	ctx := map[string]string{"operation": e.Operation}
	if e.RetryAfter > 0 {
		ctx["retry_after"] = e.RetryAfter.String()
	}
	return ctx
}
func (e *CircuitOpenError) SuggestedAction() string {
	return "the downstream operation is failing repeatedly; wait for the breaker to reset"
}
func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// Interface guard: command-layer error reporting depends on this.
var _ models.RecoverableError = (*CircuitOpenError)(nil)
