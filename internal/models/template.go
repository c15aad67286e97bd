package models

import (
	"fmt"
	"time"
)

// AnswerType is the expected type of one field in a template's structured output.
type AnswerType string

const (
	AnswerString     AnswerType = "string"
	AnswerNumber     AnswerType = "number"
	AnswerBoolean    AnswerType = "boolean"
	AnswerStringList AnswerType = "string_list"
)

// AnswerSpec declares one field the scoring model must return. The scheduler
// validates job results against these specs before storing them.
type AnswerSpec struct {
	Field       string     `json:"field" yaml:"field"`
	Type        AnswerType `json:"type" yaml:"type"`
	Required    bool       `json:"required" yaml:"required"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Template is a scoring prompt plus its typed answer contract.
type Template struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Content     string       `json:"content"`
	Answers     []AnswerSpec `json:"answers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateAnswers checks a scoring result against the answer specs. A nil or
// empty spec list accepts anything.
func ValidateAnswers(result map[string]any, specs []AnswerSpec) error {
	for _, spec := range specs {
		raw, present := result[spec.Field]
		if !present {
			if spec.Required {
				return fmt.Errorf("missing required answer field %q", spec.Field)
			}
			continue
		}
		if err := checkAnswerType(raw, spec.Type); err != nil {
			return fmt.Errorf("answer field %q: %w", spec.Field, err)
		}
	}
	return nil
}

func checkAnswerType(v any, t AnswerType) error {
	switch t {
	case AnswerString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case AnswerNumber:
		switch v.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case AnswerBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case AnswerStringList:
		switch list := v.(type) {
		case []string:
		case []any:
			for _, item := range list {
				if _, ok := item.(string); !ok {
					return fmt.Errorf("expected string list, got %T element", item)
				}
			}
		default:
			return fmt.Errorf("expected string list, got %T", v)
		}
	}
	return nil
}

// NumberField extracts a numeric result field, returning 0 and false when the
// field is absent or not numeric.
func NumberField(result map[string]any, field string) (float64, bool) {
	if result == nil || field == "" {
		return 0, false
	}
	switch v := result[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// DefaultTemplates returns the built-in scoring templates seeded on first run.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:          "patent-score",
			Name:        "Per-Patent Scoring",
			Description: ptr("Score a single patent for licensing strength"),
			Content: `Evaluate the patent below for licensing campaign strength.
Consider claim breadth, forward citation count, remaining term, and assignee posture.

Patent:
{{payload}}

Respond with JSON: {"score": <0-100>, "rationale": "<one paragraph>"}`,
			Answers: []AnswerSpec{
				{Field: "score", Type: AnswerNumber, Required: true},
				{Field: "rationale", Type: AnswerString, Required: false},
			},
		},
		{
			ID:          "cluster-rank",
			Name:        "Cluster Ranking",
			Description: ptr("Rank a cluster of patents and name which advance"),
			Content: `Rank the patents below against each other for litigation value.
Name the strongest patents that should advance to the next round.

Patents:
{{payload}}

Respond with JSON: {"advancing": ["<patent id>", ...], "rationale": "<one paragraph>"}`,
			Answers: []AnswerSpec{
				{Field: AnswerFieldAdvancing, Type: AnswerStringList, Required: true},
				{Field: "rationale", Type: AnswerString, Required: false},
			},
		},
		{
			ID:          "synthesis",
			Name:        "Campaign Synthesis",
			Description: ptr("Aggregate prior round results into a final ranking"),
			Content: `Combine the scoring results below into a final ranked recommendation
for the licensing campaign.

Results:
{{payload}}

Respond with JSON: {"ranking": ["<patent id>", ...], "summary": "<two paragraphs>"}`,
			Answers: []AnswerSpec{
				{Field: "ranking", Type: AnswerStringList, Required: true},
				{Field: "summary", Type: AnswerString, Required: false},
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }
