// Package service provides business logic for patentgraph operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mcdaddytn/patentgraph/internal/db"
	"github.com/mcdaddytn/patentgraph/internal/models"
	"github.com/mcdaddytn/patentgraph/internal/workflow"
)

// WorkflowService plans, runs, and inspects scoring workflows. Planning is
// all-or-nothing; execution is fire-and-forget with status polling.
type WorkflowService struct {
	db        *db.Client
	scheduler *workflow.Scheduler
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewWorkflowService creates a workflow service.
func NewWorkflowService(dbClient *db.Client, scheduler *workflow.Scheduler, logger *slog.Logger) *WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		db:        dbClient,
		scheduler: scheduler,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CreateCustom plans a workflow from explicit job specs.
func (s *WorkflowService) CreateCustom(ctx context.Context, name string, specs []workflow.JobSpec, maxRetries int) (*models.Workflow, error) {
	for i, spec := range specs {
		if err := s.validate.Struct(spec); err != nil {
			return nil, models.Validationf("job spec %d: %v", i, err)
		}
	}

	wf := s.newWorkflow(name, models.WorkflowCustom, nil, models.WorkflowConfig{MaxRetries: maxRetries})
	plan, err := workflow.PlanCustom(wf.ID, specs, maxRetries)
	if err != nil {
		return nil, err
	}
	return s.commitPlan(ctx, wf, plan)
}

// CreateTournament plans a multi-round elimination tournament over the
// population.
func (s *WorkflowService) CreateTournament(ctx context.Context, name string, population []string, cfg workflow.TournamentConfig) (*models.Workflow, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, models.Validationf("tournament config: %v", err)
	}

	wf := s.newWorkflow(name, models.WorkflowTournament, population, models.WorkflowConfig{
		Rounds:              cfg.Rounds,
		Clustering:          cfg.Clustering,
		SynthesisTemplateID: cfg.SynthesisTemplateID,
		MaxRetries:          cfg.MaxRetries,
	})
	plan, err := workflow.PlanTournament(wf.ID, population, cfg)
	if err != nil {
		return nil, err
	}
	return s.commitPlan(ctx, wf, plan)
}

// CreateTwoStage plans one job per patent plus a synthesis over all of them.
func (s *WorkflowService) CreateTwoStage(ctx context.Context, name string, population []string, cfg workflow.TwoStageConfig) (*models.Workflow, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, models.Validationf("two-stage config: %v", err)
	}

	wf := s.newWorkflow(name, models.WorkflowTwoStage, population, models.WorkflowConfig{
		PerPatentTemplateID: cfg.PerPatentTemplateID,
		SynthesisTemplateID: cfg.SynthesisTemplateID,
		SortScoreField:      cfg.SortScoreField,
		MaxRetries:          cfg.MaxRetries,
	})
	plan, err := workflow.PlanTwoStage(wf.ID, population, cfg)
	if err != nil {
		return nil, err
	}
	return s.commitPlan(ctx, wf, plan)
}

func (s *WorkflowService) newWorkflow(name string, wfType models.WorkflowType, scope []string, config models.WorkflowConfig) *models.Workflow {
	return &models.Workflow{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Name:      name,
		Type:      wfType,
		Status:    models.WorkflowDraft,
		Scope:     scope,
		Config:    config,
		CreatedAt: time.Now(),
	}
}

func (s *WorkflowService) commitPlan(ctx context.Context, wf *models.Workflow, plan *workflow.Plan) (*models.Workflow, error) {
	if err := s.db.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	if err := s.db.CreateJobs(ctx, plan.Jobs, plan.Deps); err != nil {
		// Planning is all-or-nothing: tear the workflow down again
		if delErr := s.db.DeleteWorkflow(ctx, wf.ID); delErr != nil {
			s.logger.Warn("failed to clean up workflow after plan commit failure",
				"workflow_id", wf.ID, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("workflow planned",
		"workflow_id", wf.ID, "name", wf.Name, "type", wf.Type,
		"jobs", len(plan.Jobs), "dependencies", len(plan.Deps))
	return wf, nil
}

// Start launches workflow execution in the background and returns
// immediately. Callers poll Status separately. The goroutine owns its own
// context so the caller's lifetime does not bound the run.
func (s *WorkflowService) Start(ctx context.Context, id string) error {
	// Fail fast on unknown workflows before detaching
	if _, err := s.db.Workflow(ctx, id); err != nil {
		return err
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("workflow execution panicked", "workflow_id", id, "panic", r)
				msg := fmt.Sprintf("internal panic: %v", r)
				_, _ = s.db.UpdateWorkflowStatus(context.Background(), id,
					[]models.WorkflowStatus{models.WorkflowRunning}, models.WorkflowError, &msg)
			}
		}()

		if err := s.scheduler.ExecuteWorkflow(context.Background(), id); err != nil {
			s.logger.Error("workflow execution finished with error", "workflow_id", id, "error", err)
		}
	}()

	s.logger.Info("workflow started", "workflow_id", id)
	return nil
}

// Resume relaunches workflows left in running state by a previous process.
// Claimed-but-unfinished jobs from the dead process stay running in the
// store; callers retry them once they surface as errors or cancel the run.
func (s *WorkflowService) Resume(ctx context.Context) error {
	workflows, err := s.db.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, wf := range workflows {
		if wf.Status != models.WorkflowRunning {
			continue
		}
		s.logger.Info("resuming workflow", "workflow_id", wf.ID, "name", wf.Name)
		if err := s.Start(ctx, wf.ID); err != nil {
			s.logger.Warn("failed to resume workflow", "workflow_id", wf.ID, "error", err)
		}
	}
	return nil
}

// Get returns a workflow by id.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.db.Workflow(ctx, id)
}

// List returns all workflows, newest first.
func (s *WorkflowService) List(ctx context.Context) ([]models.Workflow, error) {
	return s.db.ListWorkflows(ctx)
}

// Status returns the aggregate execution state of a workflow including the
// derived blocked indicator per job.
func (s *WorkflowService) Status(ctx context.Context, id string) (*workflow.Status, error) {
	return s.scheduler.Status(ctx, id)
}

// RetryJob resets one errored job for another attempt.
func (s *WorkflowService) RetryJob(ctx context.Context, jobID string) error {
	return s.scheduler.RetryJob(ctx, jobID)
}

// Cancel cooperatively cancels a workflow.
func (s *WorkflowService) Cancel(ctx context.Context, id string) error {
	return s.scheduler.CancelWorkflow(ctx, id)
}

// Delete removes a workflow and everything it owns. Running workflows must
// be cancelled first.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	wf, err := s.db.Workflow(ctx, id)
	if err != nil {
		return err
	}
	if wf.Status == models.WorkflowRunning {
		return &models.InvalidStateError{Op: "delete workflow", State: string(wf.Status)}
	}
	return s.db.DeleteWorkflow(ctx, id)
}
