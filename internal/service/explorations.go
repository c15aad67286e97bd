package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/mcdaddytn/patentgraph/internal/db"
	"github.com/mcdaddytn/patentgraph/internal/family"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

// ExplorationService runs family explorations against the persisted store:
// load the aggregate, apply one engine operation, write it back.
type ExplorationService struct {
	db     *db.Client
	engine *family.Engine
	logger *slog.Logger
}

// NewExplorationService creates an exploration service.
func NewExplorationService(dbClient *db.Client, engine *family.Engine, logger *slog.Logger) *ExplorationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExplorationService{db: dbClient, engine: engine, logger: logger}
}

// Create starts a new exploration from seed patents.
func (s *ExplorationService) Create(ctx context.Context, name string, seedIDs []string, opts *family.Options) (*models.Exploration, error) {
	exp, err := s.engine.NewExploration(name, seedIDs, opts)
	if err != nil {
		return nil, err
	}
	if err := s.db.CreateExploration(ctx, exp); err != nil {
		return nil, err
	}
	s.logger.Info("exploration created", "exploration_id", exp.ID, "name", name, "seeds", len(seedIDs))
	return exp, nil
}

// Get loads an exploration with all its patent rows.
func (s *ExplorationService) Get(ctx context.Context, id string) (*models.Exploration, error) {
	return s.db.Exploration(ctx, id)
}

// List returns all explorations without patent rows.
func (s *ExplorationService) List(ctx context.Context) ([]models.Exploration, error) {
	return s.db.ListExplorations(ctx)
}

// Delete removes an exploration and its patent rows.
func (s *ExplorationService) Delete(ctx context.Context, id string) error {
	return s.db.DeleteExploration(ctx, id)
}

// Expand performs one generation of citation-graph growth and persists the
// result. The summary reports discoveries, promotions, and skips.
func (s *ExplorationService) Expand(ctx context.Context, id string, params family.ExpandParams) (*models.GenerationSummary, error) {
	exp, err := s.db.Exploration(ctx, id)
	if err != nil {
		return nil, err
	}
	summary, err := s.engine.ExpandGeneration(ctx, exp, params)
	if err != nil {
		return nil, err
	}
	if err := s.db.SaveExploration(ctx, exp); err != nil {
		return nil, err
	}
	s.logger.Info("exploration expanded",
		"exploration_id", id, "generation", summary.Generation,
		"discovered", summary.Discovered, "promoted", summary.Promoted,
		"skipped", summary.Skipped)
	return summary, nil
}

// ExpandSiblings admits the other children of each member's parents.
func (s *ExplorationService) ExpandSiblings(ctx context.Context, id string, params family.ExpandParams) (*models.GenerationSummary, error) {
	exp, err := s.db.Exploration(ctx, id)
	if err != nil {
		return nil, err
	}
	summary, err := s.engine.ExpandSiblings(ctx, exp, params)
	if err != nil {
		return nil, err
	}
	if err := s.db.SaveExploration(ctx, exp); err != nil {
		return nil, err
	}
	s.logger.Info("sibling expansion complete",
		"exploration_id", id, "discovered", summary.Discovered, "skipped", summary.Skipped)
	return summary, nil
}

// Rescore re-applies scoring and thresholds over the already-discovered set.
func (s *ExplorationService) Rescore(ctx context.Context, id string, params family.ExpandParams) (*models.GenerationSummary, error) {
	exp, err := s.db.Exploration(ctx, id)
	if err != nil {
		return nil, err
	}
	summary, err := s.engine.Rescore(ctx, exp, params)
	if err != nil {
		return nil, err
	}
	if err := s.db.SaveExploration(ctx, exp); err != nil {
		return nil, err
	}
	return summary, nil
}

// SetStatuses applies manual classification overrides.
func (s *ExplorationService) SetStatuses(ctx context.Context, id string, updates []family.StatusUpdate) error {
	exp, err := s.db.Exploration(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.UpdateStatuses(exp, updates); err != nil {
		return err
	}
	return s.db.SaveExploration(ctx, exp)
}

// ExportFocusArea freezes the current members of an exploration into a named
// focus area, the downstream input for workflow planning.
func (s *ExplorationService) ExportFocusArea(ctx context.Context, id, name string) (*db.FocusArea, error) {
	exp, err := s.db.Exploration(ctx, id)
	if err != nil {
		return nil, err
	}
	members := exp.ByStatus(models.StatusMember)
	if len(members) == 0 {
		return nil, models.Validationf("exploration %s has no members to export", id)
	}
	sort.Strings(members)

	area, err := s.db.CreateFocusArea(ctx, uuid.New().String()[:8], name, id, members)
	if err != nil {
		return nil, err
	}
	s.logger.Info("focus area exported",
		"focus_area_id", area.ID, "exploration_id", id, "members", len(members))
	return area, nil
}

// ListFocusAreas returns all exported focus areas.
func (s *ExplorationService) ListFocusAreas(ctx context.Context) ([]db.FocusArea, error) {
	return s.db.ListFocusAreas(ctx)
}
