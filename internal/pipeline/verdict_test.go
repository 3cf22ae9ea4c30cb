package pipeline

import (
	"errors"
	"testing"
)

func TestParseVerdictValid(t *testing.T) {
	verdict, err := ParseVerdict(`{"status": "VALID", "response": "SELECT name FROM partner"}`)
	if err != nil {
		t.Fatalf("ParseVerdict returned error: %v", err)
	}
	if verdict.Status != VerdictValid {
		t.Fatalf("expected VALID, got %q", verdict.Status)
	}
	if verdict.Response != "SELECT name FROM partner" {
		t.Fatalf("unexpected response: %q", verdict.Response)
	}
}

func TestParseVerdictInvalidCarriesExplanation(t *testing.T) {
	verdict, err := ParseVerdict(`{"status": "INVALID", "response": "This query would delete data."}`)
	if err != nil {
		t.Fatalf("ParseVerdict returned error: %v", err)
	}
	if verdict.Status != VerdictInvalid {
		t.Fatalf("expected INVALID, got %q", verdict.Status)
	}
	if verdict.Response != "This query would delete data." {
		t.Fatalf("unexpected response: %q", verdict.Response)
	}
}

func TestParseVerdictToleratesMarkdownFence(t *testing.T) {
	raw := "```json\n{\"status\": \"VALID\", \"response\": \"SELECT 1\"}\n```"
	verdict, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict returned error: %v", err)
	}
	if verdict.Response != "SELECT 1" {
		t.Fatalf("unexpected response: %q", verdict.Response)
	}
}

func TestParseVerdictRejectsMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "sure, that SQL looks fine to me"},
		{"unknown status", `{"status": "MAYBE", "response": "SELECT 1"}`},
		{"unknown field", `{"status": "VALID", "response": "SELECT 1", "confidence": 0.9}`},
		{"valid with empty response", `{"status": "VALID", "response": "  "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseVerdict(tc.raw)
			var parseErr *VerdictParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected VerdictParseError, got %v", err)
			}
		})
	}
}

func TestGuardViolationMatchesWholeWords(t *testing.T) {
	if got := GuardViolation("DELETE FROM partner"); got != "DELETE" {
		t.Fatalf("expected DELETE, got %q", got)
	}
	if got := GuardViolation("select updated_at, created_at from partner"); got != "" {
		t.Fatalf("expected no violation for column aliases, got %q", got)
	}
	if got := GuardViolation("drop table application"); got != "DROP" {
		t.Fatalf("expected DROP regardless of case, got %q", got)
	}
	if got := GuardViolation("SELECT name FROM partner WHERE segment = 'RETAIL'"); got != "" {
		t.Fatalf("expected clean read to pass, got %q", got)
	}
}
