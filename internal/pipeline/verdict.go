package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VerdictStatus is the reflection stage's classification of a candidate
// statement.
type VerdictStatus string

const (
	VerdictValid   VerdictStatus = "VALID"
	VerdictInvalid VerdictStatus = "INVALID"
)

// Verdict is the decoded reflection response. Response carries the approved
// or corrected SQL when Status is VALID, and a human-readable explanation
// when Status is INVALID.
type Verdict struct {
	Status   VerdictStatus
	Response string
}

// VerdictParseError reports a reflection response that was not valid JSON in
// the documented shape. It is terminal for the run; nothing executes.
type VerdictParseError struct {
	Raw string
	Err error
}

func (e *VerdictParseError) Error() string {
	return fmt.Sprintf("parse reflection verdict: %v", e.Err)
}

func (e *VerdictParseError) Unwrap() error { return e.Err }

// ParseVerdict strictly decodes the model's reflection response. Markdown
// fences around the JSON are tolerated; anything else that deviates from the
// documented shape is a VerdictParseError.
func ParseVerdict(raw string) (Verdict, error) {
	cleaned := stripMarkdownFence(raw)

	var decoded struct {
		Status   string `json:"status"`
		Response string `json:"response"`
	}
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&decoded); err != nil {
		return Verdict{}, &VerdictParseError{Raw: raw, Err: err}
	}

	switch VerdictStatus(decoded.Status) {
	case VerdictValid:
		if strings.TrimSpace(decoded.Response) == "" {
			return Verdict{}, &VerdictParseError{Raw: raw, Err: fmt.Errorf("valid verdict with empty response")}
		}
		return Verdict{Status: VerdictValid, Response: strings.TrimSpace(decoded.Response)}, nil
	case VerdictInvalid:
		return Verdict{Status: VerdictInvalid, Response: strings.TrimSpace(decoded.Response)}, nil
	default:
		return Verdict{}, &VerdictParseError{Raw: raw, Err: fmt.Errorf("unknown verdict status %q", decoded.Status)}
	}
}

// guardKeywords is the deterministic deny-list applied when the strict guard
// is enabled. The default behavior leaves the decision entirely to the
// reflection model.
var guardKeywords = []string{
	"DELETE", "UPDATE", "INSERT", "DROP", "ALTER", "TRUNCATE", "CREATE", "GRANT",
}

// GuardViolation returns the first denied keyword found in the statement, or
// an empty string when the statement passes. Matching is on whole uppercase
// words so column aliases like "updated_at" do not trip it.
func GuardViolation(sqlText string) string {
	upper := strings.ToUpper(sqlText)
	tokens := strings.FieldsFunc(upper, func(r rune) bool {
		return !(r == '_' || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9'))
	})
	for _, token := range tokens {
		for _, keyword := range guardKeywords {
			if token == keyword {
				return keyword
			}
		}
	}
	return ""
}

func stripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
