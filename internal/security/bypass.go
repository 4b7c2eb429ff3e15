package security

import (
	"context"
	"crypto/subtle"

	"github.com/chirino/case-recorder/internal/config"
)

// IsBypass reports whether token is the configured bypass credential. The
// bypass token skips every case and owner check on reads; callers must only
// pass tokens that originate inside the process, never from a request.
func IsBypass(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	want := config.FromContext(ctx).ResolvedBypassToken()
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// BypassToken returns the bypass credential for trusted internal callers.
func BypassToken(ctx context.Context) string {
	return config.FromContext(ctx).ResolvedBypassToken()
}

// Redact shortens a token for logging.
func Redact(token string) string {
	if len(token) <= 3 {
		return "…"
	}
	return token[:3] + "…"
}
