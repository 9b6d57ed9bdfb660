package embed

import "strings"

// FailureClass is the embedder batch processor's classification of a
// provider error, driving retry behavior.
type FailureClass string

const (
	FailureRateLimit FailureClass = "rate_limit"
	FailureAuth      FailureClass = "auth_error"
	FailureTransient FailureClass = "transient"
	FailureFatal     FailureClass = "fatal"
)

var rateLimitSubstrings = []string{
	"rate limit", "rate_limit", "ratelimit", "429", "too many requests",
	"quota exceeded", "throttl",
}

var authSubstrings = []string{
	"unauthorized", "forbidden", "401", "403", "invalid api key",
	"invalid_api_key", "authentication", "api key not valid",
}

var transientSubstrings = []string{
	"timeout", "timed out", "connection reset", "connection refused",
	"temporarily unavailable", "service unavailable", "502", "503", "504",
	"eof", "broken pipe",
}

// ClassifyFailure matches err's text against known substrings,
// case-insensitively, in the priority order rate-limit, auth,
// transient; anything unmatched is fatal.
func ClassifyFailure(err error) FailureClass {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	if containsAny(msg, rateLimitSubstrings) {
		return FailureRateLimit
	}
	if containsAny(msg, authSubstrings) {
		return FailureAuth
	}
	if containsAny(msg, transientSubstrings) {
		return FailureTransient
	}
	return FailureFatal
}

func containsAny(msg string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
