package models

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints. The lock, recovery, and output packages all
// use this interface to avoid import cycles.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}
