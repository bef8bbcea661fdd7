package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestIsRetryableProviderCode(t *testing.T) {
	for _, code := range []string{"rate_limited", "TooManyRequestsException", "ServiceFailureException", "timeout"} {
		if !IsRetryableProviderCode(code) {
			t.Fatalf("IsRetryableProviderCode(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"auth_error", "TextLengthExceededException"} {
		if IsRetryableProviderCode(code) {
			t.Fatalf("IsRetryableProviderCode(%q) = true, want false", code)
		}
	}
}

func TestBackoff(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for attempt, w := range want {
		if got := Backoff(attempt, base, max); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}
