package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdaddytn/patentgraph/internal/metrics"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

// TemplateSource resolves scoring templates by id.
type TemplateSource interface {
	Template(ctx context.Context, id string) (*models.Template, error)
}

// PatentSource resolves patent records. A nil record with nil error means the
// patent is unresolvable; executors degrade rather than fail.
type PatentSource interface {
	Resolve(ctx context.Context, patentID string) (*models.PatentRecord, error)
}

// Scorer is the external LLM scoring collaborator: prompt in, structured
// JSON plus token usage out.
type Scorer interface {
	Score(ctx context.Context, tmpl *models.Template, payload map[string]any) (*models.ScoreResult, error)
}

// Config tunes a Scheduler.
type Config struct {
	// Workers bounds how many scoring calls are in flight at once.
	Workers int
	// CallTimeout bounds one external scoring call so a stalled call cannot
	// hold a worker slot forever.
	CallTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// Scheduler drives planned job graphs to completion: claims ready jobs,
// invokes the scorer, records results, and unblocks downstream work.
type Scheduler struct {
	store     Store
	scorer    Scorer
	templates TemplateSource
	patents   PatentSource

	workers     int
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Collector

	// executing guards at-most-one execution per job id within this process.
	mu        sync.Mutex
	executing map[string]struct{}
}

// New creates a scheduler. Zero config fields get working defaults.
func New(store Store, scorer Scorer, templates TemplateSource, patents PatentSource, cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		store:       store,
		scorer:      scorer,
		templates:   templates,
		patents:     patents,
		workers:     cfg.Workers,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		executing:   make(map[string]struct{}),
	}
}

// ReadyJobs returns the jobs of a workflow that are pending with every
// upstream dependency complete, highest priority first. Readiness is
// monotonic: once every upstream is complete it stays complete, so a job
// reported here remains claimable until something claims it.
func (s *Scheduler) ReadyJobs(ctx context.Context, workflowID string) ([]models.Job, error) {
	jobs, err := s.store.WorkflowJobs(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	deps, err := s.store.Dependencies(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}

	statusByID := make(map[string]models.JobStatus, len(jobs))
	for _, j := range jobs {
		statusByID[j.ID] = j.Status
	}
	upstreams := make(map[string][]string, len(jobs))
	for _, d := range deps {
		upstreams[d.DownstreamID] = append(upstreams[d.DownstreamID], d.UpstreamID)
	}

	var ready []models.Job
	for _, j := range jobs {
		if j.Status != models.JobPending {
			continue
		}
		ok := true
		for _, up := range upstreams[j.ID] {
			if statusByID[up] != models.JobComplete {
				ok = false
				break
			}
		}
		if ok {
			j.Status = models.JobReady
			ready = append(ready, j)
		}
	}

	sort.SliceStable(ready, func(a, b int) bool {
		if ready[a].Priority != ready[b].Priority {
			return ready[a].Priority > ready[b].Priority
		}
		if ready[a].Round != ready[b].Round {
			return ready[a].Round < ready[b].Round
		}
		return ready[a].ClusterIndex < ready[b].ClusterIndex
	})
	return ready, nil
}

// ExecuteJob claims and runs a single job to a terminal state. Concurrent
// calls on the same job id beyond the first fail with an InvalidStateError,
// as does claiming a job that is not ready.
func (s *Scheduler) ExecuteJob(ctx context.Context, jobID string) error {
	if !s.lockJob(jobID) {
		return &models.InvalidStateError{Op: "execute job", State: string(models.JobRunning)}
	}
	defer s.unlockJob(jobID)

	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	claimed, err := s.store.ClaimJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		return &models.InvalidStateError{Op: "execute job", State: string(job.Status)}
	}
	s.runClaimed(ctx, job)
	return nil
}

func (s *Scheduler) lockJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.executing[id]; busy {
		return false
	}
	s.executing[id] = struct{}{}
	return true
}

func (s *Scheduler) unlockJob(id string) {
	s.mu.Lock()
	delete(s.executing, id)
	s.mu.Unlock()
}

// runClaimed executes a job already transitioned to running. Failures land on
// the job record, never on the caller: an independent branch must not be
// disturbed by this job's outcome.
func (s *Scheduler) runClaimed(ctx context.Context, job *models.Job) {
	start := time.Now()
	log := s.logger.With("job_id", job.ID, "workflow_id", job.WorkflowID, "template_id", job.TemplateID)

	tmpl, err := s.templates.Template(ctx, job.TemplateID)
	if err != nil {
		s.recordFailure(ctx, job, fmt.Errorf("load template %s: %w", job.TemplateID, err))
		return
	}

	payload, err := s.resolveTarget(ctx, job)
	if err != nil {
		s.recordFailure(ctx, job, fmt.Errorf("resolve target: %w", err))
		return
	}

	if job.Target.Type == models.TargetCluster && len(job.Target.PatentIDs) == 0 {
		// Fewer patents advanced than the plan allowed for; nothing to score
		// in this lane, so complete it without spending a scoring call.
		result := map[string]any{models.AnswerFieldAdvancing: []any{}}
		if _, err := s.store.CompleteJob(ctx, job.ID, result, 0); err != nil {
			log.Error("failed to store job result", "error", err)
			return
		}
		log.Info("cluster empty after advancement, completed without scoring")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	result, err := s.scorer.Score(callCtx, tmpl, payload)
	if s.metrics != nil {
		s.metrics.Record(metrics.OpLLMScore, time.Since(start))
	}
	if err != nil {
		s.recordFailure(ctx, job, &models.ScoringError{TemplateID: job.TemplateID, Err: err})
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTokens(metrics.OpLLMScore, result.TokensUsed)
	}

	if err := models.ValidateAnswers(result.Data, tmpl.Answers); err != nil {
		s.recordFailure(ctx, job, &models.ScoringError{TemplateID: job.TemplateID, Err: err})
		return
	}

	stored, err := s.store.CompleteJob(ctx, job.ID, result.Data, result.TokensUsed)
	if err != nil {
		log.Error("failed to store job result", "error", err)
		return
	}
	if !stored {
		// Cancelled while the call was in flight; result discarded.
		log.Info("job no longer running, result discarded")
		return
	}
	log.Info("job complete", "tokens", result.TokensUsed, "elapsed", time.Since(start))
}

func (s *Scheduler) recordFailure(ctx context.Context, job *models.Job, cause error) {
	s.logger.Error("job failed", "job_id", job.ID, "error", cause)
	if _, err := s.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
}

// resolveTarget builds the scoring payload for a job's target variant.
func (s *Scheduler) resolveTarget(ctx context.Context, job *models.Job) (map[string]any, error) {
	switch job.Target.Type {
	case models.TargetSingle:
		return s.singlePayload(ctx, job.Target.PatentID)
	case models.TargetCluster:
		ids := job.Target.PatentIDs
		if len(ids) == 0 {
			// Tournament round > 1: bind the cluster from upstream results.
			bound, err := s.lateClusterIDs(ctx, job)
			if err != nil {
				return nil, err
			}
			ids = bound
			target := models.ClusterTarget(ids)
			if err := s.store.UpdateJobTarget(ctx, job.ID, target); err != nil {
				return nil, fmt.Errorf("bind cluster target: %w", err)
			}
			job.Target = target
		}
		return s.clusterPayload(ctx, ids)
	case models.TargetSynthesis:
		return s.synthesisPayload(ctx, job)
	}
	return nil, fmt.Errorf("unknown target type %q", job.Target.Type)
}

func (s *Scheduler) singlePayload(ctx context.Context, patentID string) (map[string]any, error) {
	payload := map[string]any{"patent_id": patentID}
	rec, err := s.patents.Resolve(ctx, patentID)
	if err != nil {
		return nil, fmt.Errorf("resolve patent %s: %w", patentID, err)
	}
	if rec != nil {
		payload["patent"] = rec
	}
	return payload, nil
}

func (s *Scheduler) clusterPayload(ctx context.Context, ids []string) (map[string]any, error) {
	patents := make([]any, 0, len(ids))
	for _, id := range ids {
		rec, err := s.patents.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve patent %s: %w", id, err)
		}
		if rec != nil {
			patents = append(patents, rec)
		} else {
			patents = append(patents, map[string]any{"patent_id": id})
		}
	}
	return map[string]any{"patent_ids": ids, "patents": patents}, nil
}

// lateClusterIDs resolves a round r>1 cluster target by regrouping the
// advancing ids declared by the previous round's results. The scheduler does
// not interpret scores; it regroups whatever id lists the results declare.
func (s *Scheduler) lateClusterIDs(ctx context.Context, job *models.Job) ([]string, error) {
	wf, err := s.store.Workflow(ctx, job.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	jobs, err := s.store.WorkflowJobs(ctx, job.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var prev []models.Job
	for _, j := range jobs {
		if j.Round == job.Round-1 {
			prev = append(prev, j)
		}
	}
	sort.Slice(prev, func(a, b int) bool { return prev[a].ClusterIndex < prev[b].ClusterIndex })

	lanes := make([][]string, 0, len(prev))
	for _, p := range prev {
		lanes = append(lanes, models.AdvancingIDs(p.Result))
	}

	clusterSize := 1
	if job.Round-1 < len(wf.Config.Rounds) {
		clusterSize = wf.Config.Rounds[job.Round-1].ClusterSize
	}
	clusters := Recluster(wf.Config.Clustering, lanes, clusterSize)
	if job.ClusterIndex >= len(clusters) {
		// Fewer patents advanced than planned for; this lane scores nothing.
		return []string{}, nil
	}
	return clusters[job.ClusterIndex], nil
}

func (s *Scheduler) synthesisPayload(ctx context.Context, job *models.Job) (map[string]any, error) {
	wf, err := s.store.Workflow(ctx, job.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	type upstreamResult struct {
		JobID  string            `json:"job_id"`
		Target models.TargetSpec `json:"target"`
		Result map[string]any    `json:"result"`
	}
	results := make([]upstreamResult, 0, len(job.Target.UpstreamRefs))
	for _, upID := range job.Target.UpstreamRefs {
		up, err := s.store.Job(ctx, upID)
		if err != nil {
			return nil, fmt.Errorf("load upstream job %s: %w", upID, err)
		}
		results = append(results, upstreamResult{JobID: up.ID, Target: up.Target, Result: up.Result})
	}

	// Presentation ordering only; correctness never depends on it.
	if field := wf.Config.SortScoreField; field != "" {
		sort.SliceStable(results, func(a, b int) bool {
			av, _ := models.NumberField(results[a].Result, field)
			bv, _ := models.NumberField(results[b].Result, field)
			return av > bv
		})
	}

	payload := make([]any, len(results))
	for i, r := range results {
		payload[i] = r
	}
	return map[string]any{"results": payload}, nil
}

// ExecuteWorkflow is the driver loop: claim ready jobs, run them on a bounded
// worker pool, repeat until nothing is ready and nothing is running, then
// finalize the workflow status. Designed to run as a fire-and-forget
// background task; callers poll Status separately.
func (s *Scheduler) ExecuteWorkflow(ctx context.Context, workflowID string) error {
	moved, err := s.store.UpdateWorkflowStatus(ctx, workflowID,
		[]models.WorkflowStatus{models.WorkflowDraft, models.WorkflowRunning, models.WorkflowError},
		models.WorkflowRunning, nil)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	if !moved {
		wf, err := s.store.Workflow(ctx, workflowID)
		if err != nil {
			return fmt.Errorf("load workflow: %w", err)
		}
		return &models.InvalidStateError{Op: "execute workflow", State: string(wf.Status)}
	}

	s.logger.Info("workflow execution started", "workflow_id", workflowID, "workers", s.workers)

	sem := make(chan struct{}, s.workers)
	done := make(chan struct{}, 1)
	var wg sync.WaitGroup
	var inflight atomic.Int64

	notify := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

loop:
	for {
		if ctx.Err() != nil {
			break
		}
		wf, err := s.store.Workflow(ctx, workflowID)
		if err != nil {
			break
		}
		if wf.Status == models.WorkflowCancelled {
			// Cooperative cancellation: stop scheduling, let in-flight calls
			// drain; their results are discarded by the conditional complete.
			break
		}

		ready, err := s.ReadyJobs(ctx, workflowID)
		if err != nil {
			s.logger.Error("failed to compute ready jobs", "workflow_id", workflowID, "error", err)
			break
		}

		launched := 0
		for _, j := range ready {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break loop
			}
			// Lock before claiming, same order as ExecuteJob. Claiming first
			// could strand a job in running when ExecuteJob holds the lock.
			if !s.lockJob(j.ID) {
				<-sem
				continue
			}
			claimed, err := s.store.ClaimJob(ctx, j.ID)
			if err != nil {
				s.logger.Error("failed to claim job", "job_id", j.ID, "error", err)
			}
			if err != nil || !claimed {
				s.unlockJob(j.ID)
				<-sem
				continue
			}
			launched++
			inflight.Add(1)
			wg.Add(1)
			go func(job models.Job) {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("job execution panicked", "job_id", job.ID, "panic", r)
						_, _ = s.store.FailJob(context.WithoutCancel(ctx), job.ID, fmt.Sprintf("internal panic: %v", r))
					}
					s.unlockJob(job.ID)
					<-sem
					inflight.Add(-1)
					wg.Done()
					notify()
				}()
				s.runClaimed(ctx, &job)
			}(j)
		}

		if launched == 0 {
			if inflight.Load() == 0 {
				break
			}
			select {
			case <-done:
			case <-ctx.Done():
				break loop
			}
		}
	}

	wg.Wait()
	return s.finalize(context.WithoutCancel(ctx), workflowID)
}

// finalize derives the workflow's terminal status from its jobs.
func (s *Scheduler) finalize(ctx context.Context, workflowID string) error {
	wf, err := s.store.Workflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	if wf.Status == models.WorkflowCancelled {
		return nil
	}

	jobs, err := s.store.WorkflowJobs(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	complete, failed, stuck := 0, 0, 0
	for _, j := range jobs {
		switch j.Status {
		case models.JobComplete:
			complete++
		case models.JobError:
			failed++
		default:
			stuck++
		}
	}

	if complete == len(jobs) {
		_, err = s.store.UpdateWorkflowStatus(ctx, workflowID,
			[]models.WorkflowStatus{models.WorkflowRunning}, models.WorkflowComplete, nil)
		if err != nil {
			return err
		}
		s.logger.Info("workflow complete", "workflow_id", workflowID, "jobs", len(jobs))
		return nil
	}

	msg := fmt.Sprintf("%d job(s) failed, %d blocked or unfinished", failed, stuck)
	_, err = s.store.UpdateWorkflowStatus(ctx, workflowID,
		[]models.WorkflowStatus{models.WorkflowRunning}, models.WorkflowError, &msg)
	if err != nil {
		return err
	}
	s.logger.Warn("workflow finished with failures", "workflow_id", workflowID,
		"complete", complete, "failed", failed, "stuck", stuck)
	return nil
}

// RetryJob resets an errored job to pending for another attempt. Fails with an
// InvalidStateError when the job is not in error or its retries are exhausted;
// no state is mutated in that case.
func (s *Scheduler) RetryJob(ctx context.Context, jobID string) error {
	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != models.JobError {
		return &models.InvalidStateError{Op: "retry job", State: string(job.Status)}
	}
	if job.RetryCount >= job.MaxRetries {
		return &models.InvalidStateError{Op: "retry job", State: "retries exhausted"}
	}
	moved, err := s.store.RetryJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("retry job %s: %w", jobID, err)
	}
	if !moved {
		return &models.InvalidStateError{Op: "retry job", State: string(job.Status)}
	}
	s.logger.Info("job reset for retry", "job_id", jobID, "retry", job.RetryCount+1)
	return nil
}

// CancelWorkflow marks every non-terminal job cancelled and the workflow
// cancelled. In-flight external calls are not aborted; their results are
// discarded when they try to complete against a cancelled job.
func (s *Scheduler) CancelWorkflow(ctx context.Context, workflowID string) error {
	wf, err := s.store.Workflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	if wf.Status.Terminal() {
		return &models.InvalidStateError{Op: "cancel workflow", State: string(wf.Status)}
	}

	n, err := s.store.CancelWorkflowJobs(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("cancel jobs: %w", err)
	}
	_, err = s.store.UpdateWorkflowStatus(ctx, workflowID,
		[]models.WorkflowStatus{models.WorkflowDraft, models.WorkflowRunning}, models.WorkflowCancelled, nil)
	if err != nil {
		return fmt.Errorf("cancel workflow: %w", err)
	}
	s.logger.Info("workflow cancelled", "workflow_id", workflowID, "jobs_cancelled", n)
	return nil
}
