package db

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// recordIDString safely extracts the string ID from a SurrealDB RecordID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// workflowRow is the persisted shape of a workflow.
type workflowRow struct {
	ID          surrealmodels.RecordID `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Status      string                 `json:"status"`
	Scope       []string               `json:"scope"`
	Config      *models.WorkflowConfig `json:"config,omitempty"`
	Error       *string                `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func (r *workflowRow) toModel() (*models.Workflow, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	wf := &models.Workflow{
		ID:          id,
		Name:        r.Name,
		Type:        models.WorkflowType(r.Type),
		Status:      models.WorkflowStatus(r.Status),
		Scope:       r.Scope,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.Config != nil {
		wf.Config = *r.Config
	}
	return wf, nil
}

// jobRow is the persisted shape of a job.
type jobRow struct {
	ID           surrealmodels.RecordID `json:"id,omitempty"`
	WorkflowID   string                 `json:"workflow_id"`
	TemplateID   string                 `json:"template_id"`
	Target       models.TargetSpec      `json:"target"`
	Status       string                 `json:"status"`
	Round        int                    `json:"round"`
	ClusterIndex int                    `json:"cluster_index"`
	Priority     int                    `json:"priority"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	Result       map[string]any         `json:"result,omitempty"`
	TokensUsed   int                    `json:"tokens_used"`
	Error        *string                `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

func jobToRow(j *models.Job) map[string]any {
	row := map[string]any{
		"workflow_id":   j.WorkflowID,
		"template_id":   j.TemplateID,
		"target":        j.Target,
		"status":        string(j.Status),
		"round":         j.Round,
		"cluster_index": j.ClusterIndex,
		"priority":      j.Priority,
		"retry_count":   j.RetryCount,
		"max_retries":   j.MaxRetries,
		"tokens_used":   j.TokensUsed,
		"created_at":    j.CreatedAt,
	}
	if j.Result != nil {
		row["result"] = j.Result
	}
	if j.Error != nil {
		row["error"] = *j.Error
	}
	return row
}

func (r *jobRow) toModel() (*models.Job, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	return &models.Job{
		ID:           id,
		WorkflowID:   r.WorkflowID,
		TemplateID:   r.TemplateID,
		Target:       r.Target,
		Status:       models.JobStatus(r.Status),
		Round:        r.Round,
		ClusterIndex: r.ClusterIndex,
		Priority:     r.Priority,
		RetryCount:   r.RetryCount,
		MaxRetries:   r.MaxRetries,
		Result:       r.Result,
		TokensUsed:   r.TokensUsed,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}, nil
}

// depRow is the persisted shape of a dependency edge.
type depRow struct {
	WorkflowID string `json:"workflow_id"`
	Upstream   string `json:"upstream"`
	Downstream string `json:"downstream"`
}

// explorationRow is the persisted shape of an exploration aggregate, minus
// its per-patent rows.
type explorationRow struct {
	ID                  surrealmodels.RecordID `json:"id,omitempty"`
	Name                string                 `json:"name"`
	SeedIDs             []string               `json:"seed_ids"`
	Generation          int                    `json:"generation"`
	Weights             models.Weights         `json:"weights"`
	MembershipThreshold float64                `json:"membership_threshold"`
	ExpansionThreshold  float64                `json:"expansion_threshold"`
	PortfolioBoost      float64                `json:"portfolio_boost"`
	PortfolioIDs        []string               `json:"portfolio_ids"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

func (r *explorationRow) toModel() (*models.Exploration, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	return &models.Exploration{
		ID:                  id,
		Name:                r.Name,
		SeedIDs:             r.SeedIDs,
		Generation:          r.Generation,
		Weights:             r.Weights,
		MembershipThreshold: r.MembershipThreshold,
		ExpansionThreshold:  r.ExpansionThreshold,
		PortfolioBoost:      r.PortfolioBoost,
		PortfolioIDs:        r.PortfolioIDs,
		Patents:             make(map[string]*models.ExplorationPatent),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

// explorationPatentRow is one discovered patent's classification row.
type explorationPatentRow struct {
	Exploration string  `json:"exploration"`
	PatentID    string  `json:"patent_id"`
	Status      string  `json:"status"`
	Score       float64 `json:"score"`
	Generation  int     `json:"generation"`
	Role        string  `json:"role"`
	Seed        bool    `json:"seed"`
	Overridden  bool    `json:"overridden"`
}

func (r *explorationPatentRow) toModel() *models.ExplorationPatent {
	return &models.ExplorationPatent{
		PatentID:   r.PatentID,
		Status:     models.PatentStatus(r.Status),
		Score:      r.Score,
		Generation: r.Generation,
		Role:       models.DiscoveryRole(r.Role),
		Seed:       r.Seed,
		Overridden: r.Overridden,
	}
}

// templateRow is the persisted shape of a scoring template.
type templateRow struct {
	ID          surrealmodels.RecordID `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Description *string                `json:"description,omitempty"`
	Content     string                 `json:"content"`
	Answers     []models.AnswerSpec    `json:"answers"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func (r *templateRow) toModel() (*models.Template, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	return &models.Template{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Content:     r.Content,
		Answers:     r.Answers,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// focusAreaRow is the persisted shape of an exported focus area.
type focusAreaRow struct {
	ID          surrealmodels.RecordID `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Exploration string                 `json:"exploration"`
	PatentIDs   []string               `json:"patent_ids"`
	CreatedAt   time.Time              `json:"created_at"`
}

// FocusArea is an exported set of accepted exploration members, the terminal
// artifact of a family exploration.
type FocusArea struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ExplorationID string    `json:"exploration_id"`
	PatentIDs     []string  `json:"patent_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *focusAreaRow) toModel() (*FocusArea, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	return &FocusArea{
		ID:            id,
		Name:          r.Name,
		ExplorationID: r.Exploration,
		PatentIDs:     r.PatentIDs,
		CreatedAt:     r.CreatedAt,
	}, nil
}
