package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mcdaddytn/patentgraph/internal/models"
	"github.com/mcdaddytn/patentgraph/internal/workflow"
)

// CreateWorkflow persists a new workflow record.
func (c *Client) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	config := wf.Config
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("workflow", $id) CONTENT {
			name: $name,
			type: $type,
			status: $status,
			scope: $scope,
			config: $config,
			created_at: $created_at
		}
	`, map[string]any{
		"id":         wf.ID,
		"name":       wf.Name,
		"type":       string(wf.Type),
		"status":     string(wf.Status),
		"scope":      wf.Scope,
		"config":     config,
		"created_at": wf.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create workflow: %w", wrapQueryError(err))
	}
	return nil
}

// Workflow returns a workflow by id.
func (c *Client) Workflow(ctx context.Context, id string) (*models.Workflow, error) {
	results, err := surrealdb.Query[[]workflowRow](ctx, c.db, `
		SELECT * FROM type::record("workflow", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("workflow %s: %w", id, workflow.ErrNotFound)
	}
	return (*results)[0].Result[0].toModel()
}

// ListWorkflows returns all workflows, newest first.
func (c *Client) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	results, err := surrealdb.Query[[]workflowRow](ctx, c.db, `
		SELECT * FROM workflow ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	workflows := make([]models.Workflow, 0, len((*results)[0].Result))
	for i := range (*results)[0].Result {
		wf, err := (*results)[0].Result[i].toModel()
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, nil
}

// DeleteWorkflow removes a workflow and cascades to its jobs and edges.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		DELETE depends_on WHERE workflow_id = $id;
		DELETE job WHERE workflow_id = $id;
		DELETE type::record("workflow", $id);
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete workflow: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateWorkflowStatus moves a workflow to a new status only if its current
// status is one of from. Returns false when the precondition failed.
func (c *Client) UpdateWorkflowStatus(ctx context.Context, id string, from []models.WorkflowStatus, to models.WorkflowStatus, errMsg *string) (bool, error) {
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = string(s)
	}

	set := "status = $to"
	switch {
	case to == models.WorkflowRunning:
		set += ", started_at = started_at ?? time::now(), error = NONE, completed_at = NONE"
	case to.Terminal():
		set += ", completed_at = time::now()"
	}
	if errMsg != nil {
		set += ", error = $err"
	}

	sql := fmt.Sprintf(`
		UPDATE type::record("workflow", $id) SET %s WHERE status IN $from RETURN AFTER
	`, set)
	vars := map[string]any{
		"id":   id,
		"to":   string(to),
		"from": fromStatuses,
	}
	if errMsg != nil {
		vars["err"] = *errMsg
	}

	results, err := surrealdb.Query[[]workflowRow](ctx, c.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("update workflow status: %w", wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// CreateJobs persists a plan in one transaction: all jobs and edges commit
// together or not at all.
func (c *Client) CreateJobs(ctx context.Context, jobs []models.Job, deps []models.JobDependency) error {
	if len(jobs) == 0 {
		return nil
	}

	var sb strings.Builder
	vars := make(map[string]any, len(jobs)*2+len(deps))
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i := range jobs {
		sb.WriteString(fmt.Sprintf("CREATE type::record(\"job\", $job_id_%d) CONTENT $job_%d;\n", i, i))
		vars[fmt.Sprintf("job_id_%d", i)] = jobs[i].ID
		vars[fmt.Sprintf("job_%d", i)] = jobToRow(&jobs[i])
	}
	for i, dep := range deps {
		sb.WriteString(fmt.Sprintf("CREATE depends_on CONTENT $dep_%d;\n", i))
		vars[fmt.Sprintf("dep_%d", i)] = depRow{
			WorkflowID: jobs[0].WorkflowID,
			Upstream:   dep.UpstreamID,
			Downstream: dep.DownstreamID,
		}
	}
	sb.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, c.db, sb.String(), vars); err != nil {
		return fmt.Errorf("create jobs: %w", wrapQueryError(err))
	}
	return nil
}

// Job returns a job by id.
func (c *Client) Job(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("job %s: %w", id, workflow.ErrNotFound)
	}
	return (*results)[0].Result[0].toModel()
}

// WorkflowJobs returns every job of a workflow ordered by round and lane.
func (c *Client) WorkflowJobs(ctx context.Context, workflowID string) ([]models.Job, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM job WHERE workflow_id = $wf ORDER BY round, cluster_index
	`, map[string]any{"wf": workflowID})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	jobs := make([]models.Job, 0, len((*results)[0].Result))
	for i := range (*results)[0].Result {
		job, err := (*results)[0].Result[i].toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// Dependencies returns every dependency edge of a workflow.
func (c *Client) Dependencies(ctx context.Context, workflowID string) ([]models.JobDependency, error) {
	results, err := surrealdb.Query[[]depRow](ctx, c.db, `
		SELECT * FROM depends_on WHERE workflow_id = $wf
	`, map[string]any{"wf": workflowID})
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	deps := make([]models.JobDependency, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		deps = append(deps, models.JobDependency{
			UpstreamID:   row.Upstream,
			DownstreamID: row.Downstream,
		})
	}
	return deps, nil
}

// ClaimJob transitions a job pending->running iff it is still pending and
// every upstream dependency is complete. Dependencies only ever move toward
// complete, so the check-then-claim pair cannot admit a job early; the claim
// itself is a single conditional update, so two claimers never both win.
func (c *Client) ClaimJob(ctx context.Context, id string) (bool, error) {
	upstreams, err := surrealdb.Query[[]string](ctx, c.db, `
		SELECT VALUE upstream FROM depends_on WHERE downstream = $id
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("claim job deps: %w", wrapQueryError(err))
	}
	if upstreams != nil && len(*upstreams) > 0 && len((*upstreams)[0].Result) > 0 {
		counts, err := surrealdb.Query[[]struct {
			C int `json:"c"`
		}](ctx, c.db, `
			SELECT count() AS c FROM job
			WHERE record::id(id) IN $ups AND status != 'complete'
			GROUP ALL
		`, map[string]any{"ups": (*upstreams)[0].Result})
		if err != nil {
			return false, fmt.Errorf("claim job dep check: %w", wrapQueryError(err))
		}
		if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 && (*counts)[0].Result[0].C > 0 {
			return false, nil
		}
	}

	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE type::record("job", $id)
		SET status = 'running', started_at = time::now()
		WHERE status = 'pending'
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("claim job: %w", wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// UpdateJobTarget stores a late-bound target resolved at execution time.
func (c *Client) UpdateJobTarget(ctx context.Context, id string, target models.TargetSpec) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job", $id) SET target = $target
	`, map[string]any{"id": id, "target": target})
	if err != nil {
		return fmt.Errorf("update job target: %w", wrapQueryError(err))
	}
	return nil
}

// CompleteJob transitions running->complete and stores the result. Returns
// false when the job is no longer running; the caller discards the result.
func (c *Client) CompleteJob(ctx context.Context, id string, result map[string]any, tokensUsed int) (bool, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE type::record("job", $id)
		SET status = 'complete', result = $result, tokens_used = $tokens, completed_at = time::now()
		WHERE status = 'running'
		RETURN AFTER
	`, map[string]any{"id": id, "result": result, "tokens": tokensUsed})
	if err != nil {
		return false, fmt.Errorf("complete job: %w", wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// FailJob transitions running->error and records the message.
func (c *Client) FailJob(ctx context.Context, id string, errMsg string) (bool, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE type::record("job", $id)
		SET status = 'error', error = $err, completed_at = time::now()
		WHERE status = 'running'
		RETURN AFTER
	`, map[string]any{"id": id, "err": errMsg})
	if err != nil {
		return false, fmt.Errorf("fail job: %w", wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// RetryJob transitions error->pending while retries remain.
func (c *Client) RetryJob(ctx context.Context, id string) (bool, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE type::record("job", $id)
		SET status = 'pending', retry_count += 1, error = NONE, started_at = NONE, completed_at = NONE
		WHERE status = 'error' AND retry_count < max_retries
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("retry job: %w", wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// CancelWorkflowJobs moves every non-terminal job of a workflow to cancelled.
func (c *Client) CancelWorkflowJobs(ctx context.Context, workflowID string) (int, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE job
		SET status = 'cancelled', completed_at = time::now()
		WHERE workflow_id = $wf AND status IN ['pending', 'running']
		RETURN AFTER
	`, map[string]any{"wf": workflowID})
	if err != nil {
		return 0, fmt.Errorf("cancel jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
