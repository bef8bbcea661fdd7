// Package reliability classifies upstream failures as transient or final
// and sizes retry waits.
package reliability

import "time"

// IsRetryableHTTPStatus reports whether a backend status code is transient.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableProviderCode reports whether a speech provider error code is
// transient. It covers ElevenLabs realtime message types and Polly API
// error codes; unknown codes are treated as transient.
func IsRetryableProviderCode(code string) bool {
	switch code {
	case "auth_error", "invalid_request", "quota_exceeded", "voice_not_found",
		"InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
		"InvalidSampleRateException", "UnsupportedPlsLanguageException":
		return false
	default:
		return true
	}
}

// Backoff doubles base per attempt and caps the result. Attempt 0 waits base.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
