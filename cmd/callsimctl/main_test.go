package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const referralYAML = `
templates:
  - name: Referral Status
    intent: Referral Status
    caller_type: Provider
    confidence: {min: 87, max: 93}
    lines:
      - speaker: caller
        text: "This is {provider_name} following up on a referral."
        phase: awaiting
      - speaker: ai
        text: "May I have your NPI?"
      - speaker: caller
        text: "NPI {npi}."
        phase: provider-verifying
      - speaker: ai
        text: "Provider verified. The referral for {member_id} was approved."
        phase: response-ready
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunPlaysRequestedCalls(t *testing.T) {
	out, err := execute(t, "run", "--seed", "42", "-n", "3")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "calls=3") {
		t.Fatalf("missing totals line:\n%s", out)
	}
	if got := strings.Count(out, "F9-"); got != 3 {
		t.Fatalf("outcome lines = %d, want 3:\n%s", got, out)
	}
}

func TestRunJSONIsDeterministicPerSeed(t *testing.T) {
	decode := func(raw string) []map[string]any {
		var outcomes []map[string]any
		dec := json.NewDecoder(strings.NewReader(raw))
		for dec.More() {
			var m map[string]any
			if err := dec.Decode(&m); err != nil {
				t.Fatalf("decode outcome: %v", err)
			}
			outcomes = append(outcomes, m)
		}
		return outcomes
	}

	first, err := execute(t, "run", "--seed", "7", "-n", "2", "--json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	second, err := execute(t, "run", "--seed", "7", "-n", "2", "--json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	a, b := decode(first), decode(second)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("outcomes = %d/%d, want 2", len(a), len(b))
	}
	for i := range a {
		for _, key := range []string{"template_name", "edge_case", "confidence", "escalated", "status"} {
			if a[i][key] != b[i][key] {
				t.Fatalf("call %d %s differs: %v vs %v", i, key, a[i][key], b[i][key])
			}
		}
	}
}

func TestRunWritesAudio(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "run", "--seed", "3", "--audio-dir", dir); err != nil {
		t.Fatalf("run error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected wav files in %s", dir)
	}
}

func TestRunRejectsBadThreshold(t *testing.T) {
	if _, err := execute(t, "run", "--threshold", "140"); err == nil {
		t.Fatalf("expected threshold outside [0,100] to fail")
	}
}

func TestTemplatesValidateAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	if err := os.WriteFile(path, []byte(referralYAML), 0o644); err != nil {
		t.Fatalf("write templates: %v", err)
	}

	out, err := execute(t, "templates", "validate", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if strings.TrimSpace(out) != "ok: 1 templates" {
		t.Fatalf("validate output = %q", out)
	}

	out, err = execute(t, "templates", "list", "--file", path)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "Referral Status") {
		t.Fatalf("list output missing extra template:\n%s", out)
	}
}

func TestTemplatesValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("templates: [{name: x}]"), 0o644); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	if _, err := execute(t, "templates", "validate", path); err == nil {
		t.Fatalf("expected invalid template file to fail")
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":         "ws://localhost:8080/v1/sim/ws",
		"https://sim.example.com/":      "wss://sim.example.com/v1/sim/ws",
		"ws://localhost:8080/v1/sim/ws": "ws://localhost:8080/v1/sim/ws",
		"wss://sim.example.com/custom":  "wss://sim.example.com/custom",
	}
	for in, want := range cases {
		got, err := wsURL(in)
		if err != nil {
			t.Fatalf("wsURL(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := wsURL("ftp://host"); err == nil {
		t.Fatalf("expected ftp scheme to be rejected")
	}
}

func TestParseLevel(t *testing.T) {
	if _, err := parseLevel("loud"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
	if lvl, err := parseLevel("DEBUG"); err != nil || lvl.String() != "DEBUG" {
		t.Fatalf("parseLevel(DEBUG) = %v, %v", lvl, err)
	}
}
