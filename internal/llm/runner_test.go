package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePrompt(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		wantErr bool
	}{
		{"valid", "find grants for Acme", false},
		{"empty", "", true},
		{"null byte", "bad\x00prompt", true},
		{"too long", strings.Repeat("a", 16001), true},
		{"at limit", strings.Repeat("a", 16000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePrompt(tt.prompt)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveRunner(t *testing.T) {
	r, err := resolveRunner("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", r.Command())

	r, err = resolveRunner("")
	require.NoError(t, err)
	assert.Equal(t, "claude", r.Command())

	r, err = resolveRunner("opencode")
	require.NoError(t, err)
	assert.Equal(t, "opencode", r.Command())
	assert.Equal(t, []string{"run", "hi"}, r.args("hi"))

	_, err = resolveRunner("gemini")
	assert.Error(t, err)
}

func TestNewRunnerDisabledByEnv(t *testing.T) {
	t.Setenv(disableExternalLLMEnv, "1")

	_, err := NewRunner("claude")
	require.Error(t, err)
	assert.Contains(t, err.Error(), disableExternalLLMEnv)
}

func TestLimitedWriterTruncates(t *testing.T) {
	w := &limitedWriter{maxBytes: 10}

	n, err := w.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n) // reports full length to avoid short-write errors
	assert.Equal(t, "0123456789", w.buf.String())

	n, err = w.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123456789", w.buf.String())
}

func TestTrackPrompt(t *testing.T) {
	p := TrackPrompt("Acme Community Foundation", "government")
	assert.Contains(t, p, "Acme Community Foundation")
	assert.Contains(t, p, "government")
	assert.NoError(t, validatePrompt(p))
}

func TestCountOpportunities(t *testing.T) {
	assert.Equal(t, 0, CountOpportunities(""))
	assert.Equal(t, 0, CountOpportunities("\n\n  \n"))
	assert.Equal(t, 2, CountOpportunities("Grant A | Funder | 2026-10-01\nGrant B | Funder | 2026-11-15\n"))
}
