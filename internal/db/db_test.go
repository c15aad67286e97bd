// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcdaddytn/patentgraph/internal/models"
	"github.com/mcdaddytn/patentgraph/internal/workflow"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	// Start SurrealDB container
	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	// Get container host and port
	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	// Connect to test database
	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Run tests
	code := m.Run()

	// Cleanup
	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:        id,
		Name:      "test workflow " + id,
		Type:      models.WorkflowCustom,
		Status:    models.WorkflowDraft,
		Scope:     []string{"US10000000B2", "US10000001B2"},
		CreatedAt: time.Now(),
	}
}

func testJob(id, workflowID string) models.Job {
	return models.Job{
		ID:         id,
		WorkflowID: workflowID,
		TemplateID: "patent-score",
		Target:     models.SingleTarget("US10000000B2"),
		Status:     models.JobPending,
		MaxRetries: 2,
		CreatedAt:  time.Now(),
	}
}

// =============================================================================
// WORKFLOW TESTS
// =============================================================================

func TestCreateAndGetWorkflow(t *testing.T) {
	ctx := context.Background()

	if err := testDB.CreateWorkflow(ctx, testWorkflow("wf-get")); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	defer testDB.DeleteWorkflow(ctx, "wf-get")

	wf, err := testDB.Workflow(ctx, "wf-get")
	if err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}
	if wf.Type != models.WorkflowCustom {
		t.Errorf("Expected type custom, got %q", wf.Type)
	}
	if wf.Status != models.WorkflowDraft {
		t.Errorf("Expected status draft, got %q", wf.Status)
	}
	if len(wf.Scope) != 2 {
		t.Errorf("Expected 2 scope patents, got %d", len(wf.Scope))
	}
}

func TestWorkflowNotFound(t *testing.T) {
	_, err := testDB.Workflow(context.Background(), "wf-missing")
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateWorkflowStatusConditional(t *testing.T) {
	ctx := context.Background()

	if err := testDB.CreateWorkflow(ctx, testWorkflow("wf-status")); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	defer testDB.DeleteWorkflow(ctx, "wf-status")

	moved, err := testDB.UpdateWorkflowStatus(ctx, "wf-status",
		[]models.WorkflowStatus{models.WorkflowDraft}, models.WorkflowRunning, nil)
	if err != nil {
		t.Fatalf("UpdateWorkflowStatus failed: %v", err)
	}
	if !moved {
		t.Fatal("Expected draft->running move to succeed")
	}

	// Precondition no longer holds
	moved, err = testDB.UpdateWorkflowStatus(ctx, "wf-status",
		[]models.WorkflowStatus{models.WorkflowDraft}, models.WorkflowRunning, nil)
	if err != nil {
		t.Fatalf("UpdateWorkflowStatus failed: %v", err)
	}
	if moved {
		t.Fatal("Expected second draft->running move to fail the precondition")
	}

	wf, err := testDB.Workflow(ctx, "wf-status")
	if err != nil {
		t.Fatalf("Workflow failed: %v", err)
	}
	if wf.Status != models.WorkflowRunning {
		t.Errorf("Expected status running, got %q", wf.Status)
	}
	if wf.StartedAt == nil {
		t.Error("Expected started_at to be set")
	}
}

// =============================================================================
// JOB TESTS
// =============================================================================

func TestCreateJobsAndDependencies(t *testing.T) {
	ctx := context.Background()

	if err := testDB.CreateWorkflow(ctx, testWorkflow("wf-jobs")); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	defer testDB.DeleteWorkflow(ctx, "wf-jobs")

	jobs := []models.Job{testJob("job-a", "wf-jobs"), testJob("job-b", "wf-jobs")}
	deps := []models.JobDependency{{UpstreamID: "job-a", DownstreamID: "job-b"}}
	if err := testDB.CreateJobs(ctx, jobs, deps); err != nil {
		t.Fatalf("CreateJobs failed: %v", err)
	}

	listed, err := testDB.WorkflowJobs(ctx, "wf-jobs")
	if err != nil {
		t.Fatalf("WorkflowJobs failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(listed))
	}

	edges, err := testDB.Dependencies(ctx, "wf-jobs")
	if err != nil {
		t.Fatalf("Dependencies failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(edges))
	}
	if edges[0].UpstreamID != "job-a" || edges[0].DownstreamID != "job-b" {
		t.Errorf("Unexpected edge %+v", edges[0])
	}
}

func TestClaimJobDependencyGate(t *testing.T) {
	ctx := context.Background()

	if err := testDB.CreateWorkflow(ctx, testWorkflow("wf-claim")); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	defer testDB.DeleteWorkflow(ctx, "wf-claim")

	jobs := []models.Job{testJob("claim-up", "wf-claim"), testJob("claim-down", "wf-claim")}
	deps := []models.JobDependency{{UpstreamID: "claim-up", DownstreamID: "claim-down"}}
	if err := testDB.CreateJobs(ctx, jobs, deps); err != nil {
		t.Fatalf("CreateJobs failed: %v", err)
	}

	// Downstream must not claim while upstream is incomplete
	claimed, err := testDB.ClaimJob(ctx, "claim-down")
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if claimed {
		t.Fatal("Expected downstream claim to fail while upstream pending")
	}

	// Run the upstream to completion
	claimed, err = testDB.ClaimJob(ctx, "claim-up")
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if !claimed {
		t.Fatal("Expected upstream claim to succeed")
	}

	// Claim-once: a second claim on a running job must fail
	claimed, err = testDB.ClaimJob(ctx, "claim-up")
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if claimed {
		t.Fatal("Expected second claim on running job to fail")
	}

	ok, err := testDB.CompleteJob(ctx, "claim-up", map[string]any{"score": 80}, 100)
	if err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected CompleteJob to succeed")
	}

	// Now the downstream is claimable
	claimed, err = testDB.ClaimJob(ctx, "claim-down")
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if !claimed {
		t.Fatal("Expected downstream claim to succeed after upstream complete")
	}
}

func TestFailAndRetryJob(t *testing.T) {
	ctx := context.Background()

	if err := testDB.CreateWorkflow(ctx, testWorkflow("wf-retry")); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	defer testDB.DeleteWorkflow(ctx, "wf-retry")

	job := testJob("retry-job", "wf-retry")
	job.MaxRetries = 1
	if err := testDB.CreateJobs(ctx, []models.Job{job}, nil); err != nil {
		t.Fatalf("CreateJobs failed: %v", err)
	}

	if _, err := testDB.ClaimJob(ctx, "retry-job"); err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	ok, err := testDB.FailJob(ctx, "retry-job", "scoring timed out")
	if err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected FailJob to succeed")
	}

	retried, err := testDB.RetryJob(ctx, "retry-job")
	if err != nil {
		t.Fatalf("RetryJob failed: %v", err)
	}
	if !retried {
		t.Fatal("Expected retry to succeed with retries remaining")
	}

	got, err := testDB.Job(ctx, "retry-job")
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if got.Status != models.JobPending {
		t.Errorf("Expected status pending after retry, got %q", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("Expected retry_count 1, got %d", got.RetryCount)
	}
	if got.Error != nil {
		t.Errorf("Expected error cleared after retry, got %v", *got.Error)
	}

	// Exhaust retries: fail again, then the retry must be refused
	if _, err := testDB.ClaimJob(ctx, "retry-job"); err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if _, err := testDB.FailJob(ctx, "retry-job", "scoring timed out again"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	retried, err = testDB.RetryJob(ctx, "retry-job")
	if err != nil {
		t.Fatalf("RetryJob failed: %v", err)
	}
	if retried {
		t.Fatal("Expected retry to be refused after retries exhausted")
	}
}

func TestCancelWorkflowJobs(t *testing.T) {
	ctx := context.Background()

	if err := testDB.CreateWorkflow(ctx, testWorkflow("wf-cancel")); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	defer testDB.DeleteWorkflow(ctx, "wf-cancel")

	jobs := []models.Job{
		testJob("cancel-a", "wf-cancel"),
		testJob("cancel-b", "wf-cancel"),
		testJob("cancel-c", "wf-cancel"),
	}
	if err := testDB.CreateJobs(ctx, jobs, nil); err != nil {
		t.Fatalf("CreateJobs failed: %v", err)
	}

	// Complete one so it is untouched by the cancel
	if _, err := testDB.ClaimJob(ctx, "cancel-a"); err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if _, err := testDB.CompleteJob(ctx, "cancel-a", nil, 0); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	moved, err := testDB.CancelWorkflowJobs(ctx, "wf-cancel")
	if err != nil {
		t.Fatalf("CancelWorkflowJobs failed: %v", err)
	}
	if moved != 2 {
		t.Errorf("Expected 2 cancelled jobs, got %d", moved)
	}

	got, err := testDB.Job(ctx, "cancel-a")
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if got.Status != models.JobComplete {
		t.Errorf("Expected completed job untouched, got %q", got.Status)
	}
}

// =============================================================================
// EXPLORATION TESTS
// =============================================================================

func TestExplorationRoundTrip(t *testing.T) {
	ctx := context.Background()

	exp := &models.Exploration{
		ID:                  "exp-rt",
		Name:                "round trip",
		SeedIDs:             []string{"US10000000B2"},
		Weights:             models.DefaultWeights(),
		MembershipThreshold: 0.7,
		ExpansionThreshold:  0.4,
		Patents: map[string]*models.ExplorationPatent{
			"US10000000B2": {
				PatentID: "US10000000B2",
				Status:   models.StatusMember,
				Score:    1.0,
				Role:     models.RoleSeed,
				Seed:     true,
			},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := testDB.CreateExploration(ctx, exp); err != nil {
		t.Fatalf("CreateExploration failed: %v", err)
	}
	defer testDB.DeleteExploration(ctx, "exp-rt")

	// Simulate one expansion and save
	exp.Generation = 1
	exp.Patents["US10000001B2"] = &models.ExplorationPatent{
		PatentID:   "US10000001B2",
		Status:     models.StatusCandidate,
		Score:      0.55,
		Generation: 1,
		Role:       models.RoleDescendant,
	}
	if err := testDB.SaveExploration(ctx, exp); err != nil {
		t.Fatalf("SaveExploration failed: %v", err)
	}

	loaded, err := testDB.Exploration(ctx, "exp-rt")
	if err != nil {
		t.Fatalf("Exploration failed: %v", err)
	}
	if loaded.Generation != 1 {
		t.Errorf("Expected generation 1, got %d", loaded.Generation)
	}
	if len(loaded.Patents) != 2 {
		t.Fatalf("Expected 2 patents, got %d", len(loaded.Patents))
	}
	candidate := loaded.Patents["US10000001B2"]
	if candidate == nil || candidate.Status != models.StatusCandidate {
		t.Errorf("Expected candidate row, got %+v", candidate)
	}
	if seed := loaded.Patents["US10000000B2"]; seed == nil || !seed.Seed {
		t.Errorf("Expected seed row preserved, got %+v", seed)
	}
}

// =============================================================================
// CITATION CACHE TESTS
// =============================================================================

func TestCitationCache(t *testing.T) {
	ctx := context.Background()

	_, found, err := testDB.GetCitations(ctx, "US99999999B2")
	if err != nil {
		t.Fatalf("GetCitations failed: %v", err)
	}
	if found {
		t.Fatal("Expected cache miss for unknown patent")
	}

	citations := &models.Citations{
		ForwardIDs:  []string{"US10000001B2"},
		BackwardIDs: []string{"US9000000B2"},
	}
	if err := testDB.PutCitations(ctx, "US10000000B2", citations); err != nil {
		t.Fatalf("PutCitations failed: %v", err)
	}
	// Idempotent double write
	if err := testDB.PutCitations(ctx, "US10000000B2", citations); err != nil {
		t.Fatalf("Second PutCitations failed: %v", err)
	}

	got, found, err := testDB.GetCitations(ctx, "US10000000B2")
	if err != nil {
		t.Fatalf("GetCitations failed: %v", err)
	}
	if !found {
		t.Fatal("Expected cache hit")
	}
	if len(got.ForwardIDs) != 1 || got.ForwardIDs[0] != "US10000001B2" {
		t.Errorf("Unexpected forward ids: %v", got.ForwardIDs)
	}
	if len(got.BackwardIDs) != 1 || got.BackwardIDs[0] != "US9000000B2" {
		t.Errorf("Unexpected backward ids: %v", got.BackwardIDs)
	}
}

// =============================================================================
// TEMPLATE TESTS
// =============================================================================

func TestEnsureDefaultTemplates(t *testing.T) {
	ctx := context.Background()

	if err := testDB.EnsureDefaultTemplates(ctx); err != nil {
		t.Fatalf("EnsureDefaultTemplates failed: %v", err)
	}
	// Second run is a no-op
	if err := testDB.EnsureDefaultTemplates(ctx); err != nil {
		t.Fatalf("Second EnsureDefaultTemplates failed: %v", err)
	}

	tmpl, err := testDB.Template(ctx, "cluster-rank")
	if err != nil {
		t.Fatalf("Template failed: %v", err)
	}
	if len(tmpl.Answers) == 0 {
		t.Error("Expected answer specs on default template")
	}

	listed, err := testDB.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(listed) < 3 {
		t.Errorf("Expected at least 3 templates, got %d", len(listed))
	}
}
