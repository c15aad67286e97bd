package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// UpsertTemplate creates or replaces a scoring template by id.
func (c *Client) UpsertTemplate(ctx context.Context, tmpl *models.Template) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("template", $id) CONTENT {
			name: $name,
			description: $description,
			content: $content,
			answers: $answers,
			created_at: created_at ?? time::now(),
			updated_at: time::now()
		}
	`, map[string]any{
		"id":          tmpl.ID,
		"name":        tmpl.Name,
		"description": tmpl.Description,
		"content":     tmpl.Content,
		"answers":     tmpl.Answers,
	})
	if err != nil {
		return fmt.Errorf("upsert template: %w", wrapQueryError(err))
	}
	return nil
}

// Template returns a scoring template by id.
func (c *Client) Template(ctx context.Context, id string) (*models.Template, error) {
	results, err := surrealdb.Query[[]templateRow](ctx, c.db, `
		SELECT * FROM type::record("template", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get template: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return (*results)[0].Result[0].toModel()
}

// ListTemplates returns all templates ordered by id.
func (c *Client) ListTemplates(ctx context.Context) ([]models.Template, error) {
	results, err := surrealdb.Query[[]templateRow](ctx, c.db, `
		SELECT * FROM template ORDER BY id
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	templates := make([]models.Template, 0, len((*results)[0].Result))
	for i := range (*results)[0].Result {
		tmpl, err := (*results)[0].Result[i].toModel()
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	return templates, nil
}

// DeleteTemplate removes a template by id.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("template", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete template: %w", wrapQueryError(err))
	}
	return nil
}

// EnsureDefaultTemplates seeds the built-in templates that do not exist yet.
// Existing templates are left untouched so local edits survive restarts.
func (c *Client) EnsureDefaultTemplates(ctx context.Context) error {
	for _, tmpl := range models.DefaultTemplates() {
		_, err := c.Template(ctx, tmpl.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := c.UpsertTemplate(ctx, &tmpl); err != nil {
			return err
		}
	}
	return nil
}
