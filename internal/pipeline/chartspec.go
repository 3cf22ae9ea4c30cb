package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxTopicLength bounds the label on each chart data row. The chart template
// instructs the model to truncate, but the stage also truncates defensively
// on receipt.
const maxTopicLength = 10

// ErrNotChartable reports that the model judged the rows unsuitable for a
// chart, for example no numeric field or too many distinct topics.
var ErrNotChartable = errors.New("rows cannot be charted")

// ChartParseError reports a chart response that did not match the documented
// JSON shape.
type ChartParseError struct {
	Raw string
	Err error
}

func (e *ChartParseError) Error() string {
	return fmt.Sprintf("parse chart specification: %v", e.Err)
}

func (e *ChartParseError) Unwrap() error { return e.Err }

// ChartSpec is the structure a bar-chart renderer consumes. Each data entry
// carries a "topic" label plus one value per category.
type ChartSpec struct {
	Title      string           `json:"title"`
	Categories []string         `json:"categories"`
	MinValue   *float64         `json:"minValue,omitempty"`
	MaxValue   *float64         `json:"maxValue,omitempty"`
	Data       []map[string]any `json:"data"`
}

// ParseChartSpec decodes the model's chart response. An INVALID envelope is
// ErrNotChartable; a malformed one is a ChartParseError. Topic labels longer
// than ten characters are truncated.
func ParseChartSpec(raw string) (ChartSpec, error) {
	cleaned := stripMarkdownFence(raw)

	var envelope struct {
		Status   string          `json:"status"`
		Response json.RawMessage `json:"response"`
	}
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&envelope); err != nil {
		return ChartSpec{}, &ChartParseError{Raw: raw, Err: err}
	}

	switch VerdictStatus(envelope.Status) {
	case VerdictInvalid:
		return ChartSpec{}, ErrNotChartable
	case VerdictValid:
	default:
		return ChartSpec{}, &ChartParseError{Raw: raw, Err: fmt.Errorf("unknown chart status %q", envelope.Status)}
	}

	if len(envelope.Response) == 0 || string(envelope.Response) == "null" {
		return ChartSpec{}, &ChartParseError{Raw: raw, Err: fmt.Errorf("valid chart status with null response")}
	}

	var spec ChartSpec
	if err := json.Unmarshal(envelope.Response, &spec); err != nil {
		return ChartSpec{}, &ChartParseError{Raw: raw, Err: err}
	}
	if strings.TrimSpace(spec.Title) == "" {
		return ChartSpec{}, &ChartParseError{Raw: raw, Err: fmt.Errorf("chart title is empty")}
	}
	if len(spec.Categories) == 0 {
		return ChartSpec{}, &ChartParseError{Raw: raw, Err: fmt.Errorf("chart has no categories")}
	}

	for _, entry := range spec.Data {
		topic, ok := entry["topic"].(string)
		if !ok {
			return ChartSpec{}, &ChartParseError{Raw: raw, Err: fmt.Errorf("chart data entry is missing a topic label")}
		}
		entry["topic"] = truncateTopic(topic)
	}
	return spec, nil
}

func truncateTopic(topic string) string {
	runes := []rune(topic)
	if len(runes) <= maxTopicLength {
		return topic
	}
	return string(runes[:maxTopicLength])
}
