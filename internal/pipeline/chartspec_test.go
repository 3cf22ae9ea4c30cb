package pipeline

import (
	"errors"
	"testing"
)

func TestParseChartSpecValid(t *testing.T) {
	raw := `{"status": "VALID", "response": {"title": "Average amount by province", "categories": ["avg_amount"], "minValue": 0, "maxValue": 1300, "data": [{"topic": "ON", "avg_amount": 1250.5}]}}`
	spec, err := ParseChartSpec(raw)
	if err != nil {
		t.Fatalf("ParseChartSpec returned error: %v", err)
	}
	if spec.Title != "Average amount by province" {
		t.Fatalf("unexpected title: %q", spec.Title)
	}
	if len(spec.Categories) != 1 || spec.Categories[0] != "avg_amount" {
		t.Fatalf("unexpected categories: %v", spec.Categories)
	}
	if spec.MinValue == nil || *spec.MinValue != 0 {
		t.Fatalf("unexpected min value: %v", spec.MinValue)
	}
	if len(spec.Data) != 1 || spec.Data[0]["topic"] != "ON" {
		t.Fatalf("unexpected data: %v", spec.Data)
	}
}

func TestParseChartSpecTruncatesLongTopics(t *testing.T) {
	raw := `{"status": "VALID", "response": {"title": "Catch by species", "categories": ["count"], "data": [{"topic": "Crustaceans!!", "count": 7}]}}`
	spec, err := ParseChartSpec(raw)
	if err != nil {
		t.Fatalf("ParseChartSpec returned error: %v", err)
	}
	topic, _ := spec.Data[0]["topic"].(string)
	if len([]rune(topic)) > 10 {
		t.Fatalf("expected topic truncated to 10 characters, got %q", topic)
	}
	if topic != "Crustacean" {
		t.Fatalf("unexpected truncation: %q", topic)
	}
}

func TestParseChartSpecInvalidIsNotChartable(t *testing.T) {
	_, err := ParseChartSpec(`{"status": "INVALID", "response": null}`)
	if !errors.Is(err, ErrNotChartable) {
		t.Fatalf("expected ErrNotChartable, got %v", err)
	}
}

func TestParseChartSpecRejectsMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "here is a nice chart for you"},
		{"unknown status", `{"status": "PENDING", "response": null}`},
		{"valid with null response", `{"status": "VALID", "response": null}`},
		{"empty title", `{"status": "VALID", "response": {"title": " ", "categories": ["c"], "data": []}}`},
		{"no categories", `{"status": "VALID", "response": {"title": "t", "categories": [], "data": []}}`},
		{"data entry without topic", `{"status": "VALID", "response": {"title": "t", "categories": ["c"], "data": [{"c": 1}]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseChartSpec(tc.raw)
			var parseErr *ChartParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ChartParseError, got %v", err)
			}
		})
	}
}
