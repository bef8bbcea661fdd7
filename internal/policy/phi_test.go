package policy

import (
	"strings"
	"testing"
)

func TestRedactPHI(t *testing.T) {
	input := "NPI 1456789123, member BCX-4821937, date of birth 03/22/1974, call back at +1 (555) 123-9876."
	out, changed := RedactPHI(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_NPI]", "[REDACTED_MEMBER_ID]", "[REDACTED_DOB]", "[REDACTED_PHONE]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	for _, leaked := range []string{"1456789123", "4821937", "1974"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("output leaks %q: %q", leaked, out)
		}
	}
}

func TestRedactPHIClaimsAndContactDetails(t *testing.T) {
	input := "Claim CLM-20260203-4471 for sam@example.com, SSN 123-45-6789, card 4242 4242 4242 4242."
	out, changed := RedactPHI(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	want := "Claim [REDACTED_CLAIM_ID] for [REDACTED_EMAIL], SSN [REDACTED_SSN], card [REDACTED_CARD]."
	if out != want {
		t.Fatalf("RedactPHI() = %q, want %q", out, want)
	}
}

func TestRedactPHILongDOBAndNoop(t *testing.T) {
	out, changed := RedactPHI("Born March 22, 1974.")
	if !changed || out != "Born [REDACTED_DOB]." {
		t.Fatalf("RedactPHI() = %q, %v", out, changed)
	}
	if out, changed := RedactPHI("Coverage is active."); changed || out != "Coverage is active." {
		t.Fatalf("RedactPHI() on clean text = %q, %v", out, changed)
	}
}

func TestMaskID(t *testing.T) {
	if got := MaskID("1456789123"); got != "******9123" {
		t.Fatalf("MaskID() = %q", got)
	}
	if got := MaskID("abc"); got != "***" {
		t.Fatalf("MaskID() = %q", got)
	}
}
