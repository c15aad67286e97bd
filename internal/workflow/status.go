package workflow

import (
	"context"
	"fmt"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// JobView is a job plus its derived blocked indicator.
type JobView struct {
	models.Job
	// Blocked means the job can never become ready without intervention: an
	// upstream dependency is cancelled, exhausted its retries in error, or is
	// itself blocked.
	Blocked bool `json:"blocked"`
}

// Status is the aggregate state of a workflow for polling callers. A
// permanently blocked job is distinguishable from one that is genuinely still
// pending, so a stuck workflow is reported, never silent.
type Status struct {
	Workflow   models.Workflow          `json:"workflow"`
	Counts     map[models.JobStatus]int `json:"counts"`
	Jobs       []JobView                `json:"jobs"`
	BlockedIDs []string                 `json:"blocked_ids,omitempty"`
	TokensUsed int                      `json:"tokens_used"`
}

// Status computes the current aggregate state of a workflow.
func (s *Scheduler) Status(ctx context.Context, workflowID string) (*Status, error) {
	wf, err := s.store.Workflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	jobs, err := s.store.WorkflowJobs(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	deps, err := s.store.Dependencies(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}

	blocked := blockedJobs(jobs, deps)

	st := &Status{
		Workflow: *wf,
		Counts:   make(map[models.JobStatus]int),
	}
	for _, j := range jobs {
		st.Counts[j.Status]++
		st.TokensUsed += j.TokensUsed
		view := JobView{Job: j, Blocked: blocked[j.ID]}
		if blocked[j.ID] {
			st.BlockedIDs = append(st.BlockedIDs, j.ID)
		}
		st.Jobs = append(st.Jobs, view)
	}
	return st, nil
}

// blockedJobs finds every pending job that can never become ready: one of its
// upstream jobs is cancelled or has exhausted retries in error, or an upstream
// is itself blocked. Computed as a fixpoint over the dependency edges.
func blockedJobs(jobs []models.Job, deps []models.JobDependency) map[string]bool {
	byID := make(map[string]*models.Job, len(jobs))
	for i := range jobs {
		byID[jobs[i].ID] = &jobs[i]
	}
	upstreams := make(map[string][]string)
	for _, d := range deps {
		upstreams[d.DownstreamID] = append(upstreams[d.DownstreamID], d.UpstreamID)
	}

	dead := func(j *models.Job) bool {
		if j == nil {
			return false
		}
		if j.Status == models.JobCancelled {
			return true
		}
		return j.Status == models.JobError && j.RetryCount >= j.MaxRetries
	}

	blocked := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, j := range jobs {
			if j.Status != models.JobPending || blocked[j.ID] {
				continue
			}
			for _, up := range upstreams[j.ID] {
				if dead(byID[up]) || blocked[up] {
					blocked[j.ID] = true
					changed = true
					break
				}
			}
		}
	}
	return blocked
}
