package workflow

import (
	"context"
	"errors"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// ErrNotFound indicates the requested workflow or job does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persisted job graph consumed by the scheduler. Conditional
// updates (claim, complete, fail, retry, status moves) must be atomic per
// record: each returns false when the precondition no longer held, and the
// caller treats that as "someone else got there first", never as corruption.
type Store interface {
	// Workflow returns the workflow or ErrNotFound.
	Workflow(ctx context.Context, id string) (*models.Workflow, error)

	// UpdateWorkflowStatus moves a workflow to status only if its current
	// status is one of from. Returns false if the precondition failed.
	UpdateWorkflowStatus(ctx context.Context, id string, from []models.WorkflowStatus, to models.WorkflowStatus, errMsg *string) (bool, error)

	// CreateJobs persists a plan all-or-nothing: either every job and edge is
	// committed or none are.
	CreateJobs(ctx context.Context, jobs []models.Job, deps []models.JobDependency) error

	// Job returns the job or ErrNotFound.
	Job(ctx context.Context, id string) (*models.Job, error)

	// WorkflowJobs returns every job of a workflow.
	WorkflowJobs(ctx context.Context, workflowID string) ([]models.Job, error)

	// Dependencies returns every dependency edge of a workflow.
	Dependencies(ctx context.Context, workflowID string) ([]models.JobDependency, error)

	// ClaimJob transitions pending->running iff the job is still pending and
	// every upstream dependency is complete. This is the claim-once gate: a
	// job is never handed to two executors.
	ClaimJob(ctx context.Context, id string) (bool, error)

	// UpdateJobTarget stores a late-bound target resolved at execution time.
	UpdateJobTarget(ctx context.Context, id string, target models.TargetSpec) error

	// CompleteJob transitions running->complete and stores the result.
	// Returns false if the job is no longer running (e.g. cancelled while the
	// external call was in flight); the result is then discarded.
	CompleteJob(ctx context.Context, id string, result map[string]any, tokensUsed int) (bool, error)

	// FailJob transitions running->error and records the message. Returns
	// false if the job is no longer running.
	FailJob(ctx context.Context, id string, errMsg string) (bool, error)

	// RetryJob transitions error->pending and increments the retry count,
	// only while retryCount < maxRetries. Returns false otherwise.
	RetryJob(ctx context.Context, id string) (bool, error)

	// CancelWorkflowJobs moves every non-terminal job of the workflow to
	// cancelled and returns how many were moved.
	CancelWorkflowJobs(ctx context.Context, workflowID string) (int, error)
}
