package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

const scoringSystemPrompt = `You are a patent analysis assistant. Follow the instructions in the task exactly.
Respond with a single JSON object and nothing else. No prose before or after the JSON.`

// Generator is the text-generation dependency of a Scorer, satisfied by Model.
type Generator interface {
	GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, int, error)
}

// Scorer turns a template plus target payload into a structured scoring
// result. Calls pass through a circuit breaker so a failing provider sheds
// load instead of tying up worker slots.
type Scorer struct {
	model   Generator
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewScorer creates a scorer over the given generator.
func NewScorer(model Generator, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-scoring",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &Scorer{model: model, breaker: breaker, logger: logger}
}

// Score renders the template against the payload, invokes the model, and
// parses the structured JSON answer. Any failure is a ScoringError.
func (s *Scorer) Score(ctx context.Context, tmpl *models.Template, payload map[string]any) (*models.ScoreResult, error) {
	prompt, err := RenderPrompt(tmpl.Content, payload)
	if err != nil {
		return nil, &models.ScoringError{TemplateID: tmpl.ID, Err: err}
	}

	raw, err := s.breaker.Execute(func() (any, error) {
		text, tokens, genErr := s.model.GenerateWithUsage(ctx, scoringSystemPrompt, prompt)
		if genErr != nil {
			return nil, genErr
		}
		return &generation{text: text, tokens: tokens}, nil
	})
	if err != nil {
		return nil, &models.ScoringError{TemplateID: tmpl.ID, Err: err}
	}
	gen := raw.(*generation)

	data, err := ExtractJSON(gen.text)
	if err != nil {
		s.logger.Warn("unparseable scoring output", "template", tmpl.ID, "error", err)
		return nil, &models.ScoringError{TemplateID: tmpl.ID, Err: err}
	}

	return &models.ScoreResult{Data: data, TokensUsed: gen.tokens}, nil
}

type generation struct {
	text   string
	tokens int
}

// RenderPrompt substitutes the {{payload}} placeholder with the indented
// JSON form of the target payload. Templates without the placeholder get the
// payload appended.
func RenderPrompt(content string, payload map[string]any) (string, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	if strings.Contains(content, "{{payload}}") {
		return strings.ReplaceAll(content, "{{payload}}", string(encoded)), nil
	}
	return content + "\n\n" + string(encoded), nil
}

// ExtractJSON pulls the first JSON object out of model output, tolerating
// fenced code blocks and surrounding prose.
func ExtractJSON(text string) (map[string]any, error) {
	candidate := strings.TrimSpace(text)

	if idx := strings.Index(candidate, "```"); idx >= 0 {
		rest := candidate[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(candidate, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(candidate); i++ {
		c := candidate[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var data map[string]any
				if err := json.Unmarshal([]byte(candidate[start:i+1]), &data); err != nil {
					return nil, fmt.Errorf("parse JSON output: %w", err)
				}
				return data, nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in output")
}
