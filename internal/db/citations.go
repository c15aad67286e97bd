package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// citationRow is one cached neighbor set.
type citationRow struct {
	PatentID    string   `json:"patent_id"`
	ForwardIDs  []string `json:"forward_ids"`
	BackwardIDs []string `json:"backward_ids"`
}

// GetCitations reads a cached citation entry. The second return is false on
// a cache miss.
func (c *Client) GetCitations(ctx context.Context, patentID string) (*models.Citations, bool, error) {
	results, err := surrealdb.Query[[]citationRow](ctx, c.db, `
		SELECT * FROM type::record("citation_cache", $id)
	`, map[string]any{"id": patentID})
	if err != nil {
		return nil, false, fmt.Errorf("get citations: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false, nil
	}
	row := (*results)[0].Result[0]
	return &models.Citations{
		ForwardIDs:  row.ForwardIDs,
		BackwardIDs: row.BackwardIDs,
	}, true, nil
}

// PutCitations stores a citation entry. Citation facts are immutable, so a
// concurrent double write is harmless; UPSERT keeps it idempotent.
func (c *Client) PutCitations(ctx context.Context, patentID string, citations *models.Citations) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("citation_cache", $id) CONTENT {
			patent_id: $id,
			forward_ids: $forward,
			backward_ids: $backward,
			cached_at: time::now()
		}
	`, map[string]any{
		"id":       patentID,
		"forward":  emptyIfNil(citations.ForwardIDs),
		"backward": emptyIfNil(citations.BackwardIDs),
	})
	if err != nil {
		return fmt.Errorf("put citations: %w", wrapQueryError(err))
	}
	return nil
}
