// Package workflow plans and executes DAGs of LLM scoring jobs: custom graphs,
// multi-round elimination tournaments, and two-stage map-reduce runs.
package workflow

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

var validate = validator.New()

// JobSpec declares one job in a custom workflow plan. Upstream references use
// planner-local handles since database ids do not exist yet.
type JobSpec struct {
	Handle     string            `yaml:"handle" validate:"required"`
	TemplateID string            `yaml:"template_id" validate:"required"`
	Target     models.TargetSpec `yaml:"target"`
	DependsOn  []string          `yaml:"depends_on,omitempty"`
	Priority   int               `yaml:"priority,omitempty"`
}

// TournamentConfig describes a multi-round elimination tournament.
type TournamentConfig struct {
	Rounds              []models.RoundConfig   `yaml:"rounds" validate:"required,min=1,dive"`
	Clustering          models.ClusterStrategy `yaml:"clustering,omitempty"`
	SynthesisTemplateID string                 `yaml:"synthesis_template_id" validate:"required"`
	MaxRetries          int                    `yaml:"max_retries,omitempty" validate:"min=0"`
}

// TwoStageConfig describes a map-reduce workflow: one job per patent, then a
// single synthesis over every per-patent result.
type TwoStageConfig struct {
	PerPatentTemplateID string `yaml:"per_patent_template_id" validate:"required"`
	SynthesisTemplateID string `yaml:"synthesis_template_id" validate:"required"`
	// SortScoreField orders per-patent results feeding the synthesis job.
	SortScoreField string `yaml:"sort_score_field,omitempty"`
	MaxRetries     int    `yaml:"max_retries,omitempty" validate:"min=0"`
}

// Plan is the output of a planning call: jobs in pending state plus their
// dependency edges. Nothing is persisted until the whole plan validates.
type Plan struct {
	Jobs []models.Job
	Deps []models.JobDependency
}

func newJobID() string {
	// Short ids, same convenience trade-off the job manager has always made.
	return uuid.New().String()[:8]
}

// PlanCustom turns explicit job specs into a pending job graph. Fails with a
// ValidationError if a spec references an unknown handle or the declared
// dependencies contain a cycle; in that case no jobs are produced.
func PlanCustom(workflowID string, specs []JobSpec, maxRetries int) (*Plan, error) {
	if len(specs) == 0 {
		return nil, models.Validationf("custom plan has no job specs")
	}

	now := time.Now()
	idByHandle := make(map[string]string, len(specs))
	plan := &Plan{}

	for _, spec := range specs {
		if err := validate.Struct(spec); err != nil {
			return nil, models.Validationf("job spec %q: %v", spec.Handle, err)
		}
		if _, dup := idByHandle[spec.Handle]; dup {
			return nil, models.Validationf("duplicate job handle %q", spec.Handle)
		}
		id := newJobID()
		idByHandle[spec.Handle] = id
		plan.Jobs = append(plan.Jobs, models.Job{
			ID:         id,
			WorkflowID: workflowID,
			TemplateID: spec.TemplateID,
			Target:     spec.Target,
			Status:     models.JobPending,
			Priority:   spec.Priority,
			MaxRetries: maxRetries,
			CreatedAt:  now,
		})
	}

	for _, spec := range specs {
		downstream := idByHandle[spec.Handle]
		for _, upHandle := range spec.DependsOn {
			upstream, ok := idByHandle[upHandle]
			if !ok {
				return nil, models.Validationf("job %q depends on unknown handle %q", spec.Handle, upHandle)
			}
			if upstream == downstream {
				return nil, models.Validationf("job %q depends on itself", spec.Handle)
			}
			plan.Deps = append(plan.Deps, models.JobDependency{
				UpstreamID:   upstream,
				DownstreamID: downstream,
			})
		}
	}

	if err := checkAcyclic(plan.Jobs, plan.Deps); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanTournament partitions the population into round-1 cluster jobs and lays
// out the later rounds. The membership of rounds after the first depends on
// which patents each cluster advances, which is only known at run time, so
// every round r job is created with an empty target and a dependency on every
// round r-1 job; the executor re-clusters the advancing pool when the job is
// claimed. A single synthesis job depends on every final-round job.
func PlanTournament(workflowID string, population []string, cfg TournamentConfig) (*Plan, error) {
	if len(population) == 0 {
		return nil, models.Validationf("tournament population is empty")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, models.Validationf("tournament config: %v", err)
	}

	now := time.Now()
	plan := &Plan{}

	// Round 1: real targets from the input population.
	clusters := chunk(population, cfg.Rounds[0].ClusterSize)
	var prevRound []string // job ids of the previous round
	expected := 0
	for i, cluster := range clusters {
		id := newJobID()
		prevRound = append(prevRound, id)
		expected += cfg.Rounds[0].Advancing(len(cluster))
		plan.Jobs = append(plan.Jobs, models.Job{
			ID:           id,
			WorkflowID:   workflowID,
			TemplateID:   cfg.Rounds[0].TemplateID,
			Target:       models.ClusterTarget(cluster),
			Status:       models.JobPending,
			Round:        1,
			ClusterIndex: i,
			MaxRetries:   cfg.MaxRetries,
			CreatedAt:    now,
		})
	}

	// Later rounds: job count from the expected advancing pool, targets bound
	// at execution time.
	for r := 1; r < len(cfg.Rounds); r++ {
		round := cfg.Rounds[r]
		sizes := chunkSizes(expected, round.ClusterSize)
		var thisRound []string
		nextExpected := 0
		for i, size := range sizes {
			id := newJobID()
			thisRound = append(thisRound, id)
			nextExpected += round.Advancing(size)
			plan.Jobs = append(plan.Jobs, models.Job{
				ID:           id,
				WorkflowID:   workflowID,
				TemplateID:   round.TemplateID,
				Target:       models.ClusterTarget(nil),
				Status:       models.JobPending,
				Round:        r + 1,
				ClusterIndex: i,
				MaxRetries:   cfg.MaxRetries,
				CreatedAt:    now,
			})
			for _, up := range prevRound {
				plan.Deps = append(plan.Deps, models.JobDependency{UpstreamID: up, DownstreamID: id})
			}
		}
		prevRound = thisRound
		expected = nextExpected
	}

	// Synthesis over the terminal round.
	synthID := newJobID()
	plan.Jobs = append(plan.Jobs, models.Job{
		ID:         synthID,
		WorkflowID: workflowID,
		TemplateID: cfg.SynthesisTemplateID,
		Target:     models.SynthesisTarget(prevRound),
		Status:     models.JobPending,
		Round:      len(cfg.Rounds) + 1,
		MaxRetries: cfg.MaxRetries,
		CreatedAt:  now,
	})
	for _, up := range prevRound {
		plan.Deps = append(plan.Deps, models.JobDependency{UpstreamID: up, DownstreamID: synthID})
	}

	if err := checkAcyclic(plan.Jobs, plan.Deps); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanTwoStage creates one independent single-patent job per population entry
// plus one synthesis job depending on all of them.
func PlanTwoStage(workflowID string, population []string, cfg TwoStageConfig) (*Plan, error) {
	if len(population) == 0 {
		return nil, models.Validationf("two-stage population is empty")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, models.Validationf("two-stage config: %v", err)
	}

	now := time.Now()
	plan := &Plan{}
	var perPatent []string

	for _, patentID := range population {
		id := newJobID()
		perPatent = append(perPatent, id)
		plan.Jobs = append(plan.Jobs, models.Job{
			ID:         id,
			WorkflowID: workflowID,
			TemplateID: cfg.PerPatentTemplateID,
			Target:     models.SingleTarget(patentID),
			Status:     models.JobPending,
			Round:      1,
			MaxRetries: cfg.MaxRetries,
			CreatedAt:  now,
		})
	}

	synthID := newJobID()
	plan.Jobs = append(plan.Jobs, models.Job{
		ID:         synthID,
		WorkflowID: workflowID,
		TemplateID: cfg.SynthesisTemplateID,
		Target:     models.SynthesisTarget(perPatent),
		Status:     models.JobPending,
		Round:      2,
		MaxRetries: cfg.MaxRetries,
		CreatedAt:  now,
	})
	for _, up := range perPatent {
		plan.Deps = append(plan.Deps, models.JobDependency{UpstreamID: up, DownstreamID: synthID})
	}

	return plan, nil
}

// checkAcyclic runs Kahn's algorithm over the planned graph and fails with a
// ValidationError if a topological order does not exist.
func checkAcyclic(jobs []models.Job, deps []models.JobDependency) error {
	indegree := make(map[string]int, len(jobs))
	downstream := make(map[string][]string, len(jobs))
	for _, j := range jobs {
		indegree[j.ID] = 0
	}
	for _, d := range deps {
		if _, ok := indegree[d.UpstreamID]; !ok {
			return models.Validationf("dependency references unknown job %s", d.UpstreamID)
		}
		if _, ok := indegree[d.DownstreamID]; !ok {
			return models.Validationf("dependency references unknown job %s", d.DownstreamID)
		}
		indegree[d.DownstreamID]++
		downstream[d.UpstreamID] = append(downstream[d.UpstreamID], d.DownstreamID)
	}

	queue := make([]string, 0, len(jobs))
	for id, n := range indegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range downstream[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(jobs) {
		return models.Validationf("job graph contains a cycle")
	}
	return nil
}

// chunk splits ids into consecutive groups of at most size.
func chunk(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// chunkSizes returns the sizes chunk would produce for a population of n.
func chunkSizes(n, size int) []int {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	var sizes []int
	for n > 0 {
		if n >= size {
			sizes = append(sizes, size)
			n -= size
		} else {
			sizes = append(sizes, n)
			n = 0
		}
	}
	return sizes
}

// Recluster partitions an advancing pool into clusters of at most clusterSize
// using the workflow's clustering strategy. The pool arrives as one ranked id
// list per upstream cluster; by_score merges lanes rank-by-rank so equally
// ranked patents compete together, sequential concatenates lanes in order.
func Recluster(strategy models.ClusterStrategy, lanes [][]string, clusterSize int) [][]string {
	var pool []string
	seen := make(map[string]bool)

	appendID := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		pool = append(pool, id)
	}

	switch strategy {
	case models.ClusterByScore:
		for rank := 0; ; rank++ {
			advanced := false
			for _, lane := range lanes {
				if rank < len(lane) {
					appendID(lane[rank])
					advanced = true
				}
			}
			if !advanced {
				break
			}
		}
	default:
		for _, lane := range lanes {
			for _, id := range lane {
				appendID(id)
			}
		}
	}

	return chunk(pool, clusterSize)
}
