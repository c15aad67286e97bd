package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// CreateExploration persists a new exploration aggregate, seed rows included.
func (c *Client) CreateExploration(ctx context.Context, exp *models.Exploration) error {
	var sb strings.Builder
	vars := map[string]any{
		"id": exp.ID,
		"row": map[string]any{
			"name":                 exp.Name,
			"seed_ids":             exp.SeedIDs,
			"generation":           exp.Generation,
			"weights":              exp.Weights,
			"membership_threshold": exp.MembershipThreshold,
			"expansion_threshold":  exp.ExpansionThreshold,
			"portfolio_boost":      exp.PortfolioBoost,
			"portfolio_ids":        emptyIfNil(exp.PortfolioIDs),
			"created_at":           exp.CreatedAt,
			"updated_at":           exp.UpdatedAt,
		},
	}
	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString("CREATE type::record(\"exploration\", $id) CONTENT $row;\n")
	appendPatentStatements(&sb, vars, exp)
	sb.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, c.db, sb.String(), vars); err != nil {
		return fmt.Errorf("create exploration: %w", wrapQueryError(err))
	}
	return nil
}

// Exploration loads an exploration and all its patent rows.
func (c *Client) Exploration(ctx context.Context, id string) (*models.Exploration, error) {
	results, err := surrealdb.Query[[]explorationRow](ctx, c.db, `
		SELECT * FROM type::record("exploration", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get exploration: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("exploration %s: %w", id, ErrNotFound)
	}
	exp, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, err
	}

	patents, err := surrealdb.Query[[]explorationPatentRow](ctx, c.db, `
		SELECT * FROM exploration_patent WHERE exploration = $id
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get exploration patents: %w", wrapQueryError(err))
	}
	if patents != nil && len(*patents) > 0 {
		for i := range (*patents)[0].Result {
			p := (*patents)[0].Result[i].toModel()
			exp.Patents[p.PatentID] = p
		}
	}
	return exp, nil
}

// ListExplorations returns all explorations without their patent rows,
// newest first.
func (c *Client) ListExplorations(ctx context.Context) ([]models.Exploration, error) {
	results, err := surrealdb.Query[[]explorationRow](ctx, c.db, `
		SELECT * FROM exploration ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list explorations: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	explorations := make([]models.Exploration, 0, len((*results)[0].Result))
	for i := range (*results)[0].Result {
		exp, err := (*results)[0].Result[i].toModel()
		if err != nil {
			return nil, err
		}
		explorations = append(explorations, *exp)
	}
	return explorations, nil
}

// SaveExploration writes back the full aggregate after an expand, rescore, or
// manual override. Patent rows are replaced wholesale inside one transaction;
// the aggregate is small by construction (bounded discovered set, never the
// whole citation graph).
func (c *Client) SaveExploration(ctx context.Context, exp *models.Exploration) error {
	var sb strings.Builder
	vars := map[string]any{
		"id":         exp.ID,
		"generation": exp.Generation,
		"weights":    exp.Weights,
		"membership": exp.MembershipThreshold,
		"expansion":  exp.ExpansionThreshold,
		"boost":      exp.PortfolioBoost,
		"portfolio":  emptyIfNil(exp.PortfolioIDs),
		"updated":    exp.UpdatedAt,
	}
	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString(`UPDATE type::record("exploration", $id) SET
		generation = $generation,
		weights = $weights,
		membership_threshold = $membership,
		expansion_threshold = $expansion,
		portfolio_boost = $boost,
		portfolio_ids = $portfolio,
		updated_at = $updated;
`)
	sb.WriteString("DELETE exploration_patent WHERE exploration = $id;\n")
	appendPatentStatements(&sb, vars, exp)
	sb.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, c.db, sb.String(), vars); err != nil {
		return fmt.Errorf("save exploration: %w", wrapQueryError(err))
	}
	return nil
}

// DeleteExploration removes an exploration and its patent rows.
func (c *Client) DeleteExploration(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		DELETE exploration_patent WHERE exploration = $id;
		DELETE type::record("exploration", $id);
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete exploration: %w", wrapQueryError(err))
	}
	return nil
}

// CreateFocusArea exports a set of accepted members as a named focus area.
func (c *Client) CreateFocusArea(ctx context.Context, id, name, explorationID string, patentIDs []string) (*FocusArea, error) {
	now := time.Now()
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("focus_area", $id) CONTENT {
			name: $name,
			exploration: $exploration,
			patent_ids: $patent_ids,
			created_at: $created_at
		}
	`, map[string]any{
		"id":          id,
		"name":        name,
		"exploration": explorationID,
		"patent_ids":  emptyIfNil(patentIDs),
		"created_at":  now,
	})
	if err != nil {
		return nil, fmt.Errorf("create focus area: %w", wrapQueryError(err))
	}
	return &FocusArea{
		ID:            id,
		Name:          name,
		ExplorationID: explorationID,
		PatentIDs:     patentIDs,
		CreatedAt:     now,
	}, nil
}

// ListFocusAreas returns all focus areas, newest first.
func (c *Client) ListFocusAreas(ctx context.Context) ([]FocusArea, error) {
	results, err := surrealdb.Query[[]focusAreaRow](ctx, c.db, `
		SELECT * FROM focus_area ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list focus areas: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	areas := make([]FocusArea, 0, len((*results)[0].Result))
	for i := range (*results)[0].Result {
		area, err := (*results)[0].Result[i].toModel()
		if err != nil {
			return nil, err
		}
		areas = append(areas, *area)
	}
	return areas, nil
}

// appendPatentStatements adds one CREATE per patent row to a transaction.
func appendPatentStatements(sb *strings.Builder, vars map[string]any, exp *models.Exploration) {
	ids := make([]string, 0, len(exp.Patents))
	for id := range exp.Patents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		p := exp.Patents[id]
		sb.WriteString(fmt.Sprintf("CREATE exploration_patent CONTENT $patent_%d;\n", i))
		vars[fmt.Sprintf("patent_%d", i)] = explorationPatentRow{
			Exploration: exp.ID,
			PatentID:    p.PatentID,
			Status:      string(p.Status),
			Score:       p.Score,
			Generation:  p.Generation,
			Role:        string(p.Role),
			Seed:        p.Seed,
			Overridden:  p.Overridden,
		}
	}
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
