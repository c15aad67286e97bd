package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

func population(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("US%03d", i+1)
	}
	return ids
}

func TestPlanCustom(t *testing.T) {
	specs := []JobSpec{
		{Handle: "score-a", TemplateID: "patent-score", Target: models.SingleTarget("US001")},
		{Handle: "score-b", TemplateID: "patent-score", Target: models.SingleTarget("US002")},
		{Handle: "summary", TemplateID: "synthesis", Target: models.SynthesisTarget(nil),
			DependsOn: []string{"score-a", "score-b"}},
	}

	plan, err := PlanCustom("wf1", specs, 2)
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 3)
	require.Len(t, plan.Deps, 2)

	for _, j := range plan.Jobs {
		assert.Equal(t, "wf1", j.WorkflowID)
		assert.Equal(t, models.JobPending, j.Status)
		assert.Equal(t, 2, j.MaxRetries)
		assert.Len(t, j.ID, 8)
	}

	// Both edges point at the synthesis job.
	synth := plan.Jobs[2]
	for _, d := range plan.Deps {
		assert.Equal(t, synth.ID, d.DownstreamID)
		assert.NotEqual(t, synth.ID, d.UpstreamID)
	}
}

func TestPlanCustom_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		specs []JobSpec
	}{
		{"no specs", nil},
		{"missing template", []JobSpec{{Handle: "a"}}},
		{"duplicate handle", []JobSpec{
			{Handle: "a", TemplateID: "t"},
			{Handle: "a", TemplateID: "t"},
		}},
		{"unknown dependency", []JobSpec{
			{Handle: "a", TemplateID: "t", DependsOn: []string{"ghost"}},
		}},
		{"self dependency", []JobSpec{
			{Handle: "a", TemplateID: "t", DependsOn: []string{"a"}},
		}},
		{"cycle", []JobSpec{
			{Handle: "a", TemplateID: "t", DependsOn: []string{"b"}},
			{Handle: "b", TemplateID: "t", DependsOn: []string{"a"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanCustom("wf1", tt.specs, 0)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			// A rejected plan produces no jobs at all.
			assert.Nil(t, plan)
		})
	}
}

func TestPlanTwoStage(t *testing.T) {
	plan, err := PlanTwoStage("wf1", population(3), TwoStageConfig{
		PerPatentTemplateID: "patent-score",
		SynthesisTemplateID: "synthesis",
	})
	require.NoError(t, err)

	// Three per-patent jobs plus one synthesis.
	require.Len(t, plan.Jobs, 4)
	require.Len(t, plan.Deps, 3)

	for _, j := range plan.Jobs[:3] {
		assert.Equal(t, models.TargetSingle, j.Target.Type)
		assert.Equal(t, 1, j.Round)
	}

	synth := plan.Jobs[3]
	assert.Equal(t, models.TargetSynthesis, synth.Target.Type)
	assert.Equal(t, 2, synth.Round)
	assert.Len(t, synth.Target.UpstreamRefs, 3)

	for _, d := range plan.Deps {
		assert.Equal(t, synth.ID, d.DownstreamID)
	}
}

func TestPlanTwoStage_EmptyPopulation(t *testing.T) {
	_, err := PlanTwoStage("wf1", nil, TwoStageConfig{
		PerPatentTemplateID: "patent-score",
		SynthesisTemplateID: "synthesis",
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestPlanTournament(t *testing.T) {
	// 10 patents, round 1 clusters of 4 advancing 2 each: clusters are
	// 4+4+2, expected pool 2+2+2=6. Round 2 clusters of 6: one job. Plus
	// one synthesis job.
	plan, err := PlanTournament("wf1", population(10), TournamentConfig{
		Rounds: []models.RoundConfig{
			{TemplateID: "cluster-rank", ClusterSize: 4, AdvanceCount: 2},
			{TemplateID: "cluster-rank", ClusterSize: 6, AdvanceCount: 1},
		},
		SynthesisTemplateID: "synthesis",
	})
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 5)

	var round1, round2, synthesis []models.Job
	for _, j := range plan.Jobs {
		switch j.Round {
		case 1:
			round1 = append(round1, j)
		case 2:
			round2 = append(round2, j)
		case 3:
			synthesis = append(synthesis, j)
		}
	}
	require.Len(t, round1, 3)
	require.Len(t, round2, 1)
	require.Len(t, synthesis, 1)

	// Round 1 jobs carry real cluster targets covering the population.
	covered := 0
	for _, j := range round1 {
		assert.Equal(t, models.TargetCluster, j.Target.Type)
		covered += len(j.Target.PatentIDs)
	}
	assert.Equal(t, 10, covered)

	// Round 2 membership is only known at run time: empty target, one
	// dependency per round 1 job.
	assert.Empty(t, round2[0].Target.PatentIDs)
	deps := depsByDownstream(plan.Deps)
	assert.Len(t, deps[round2[0].ID], 3)

	// Synthesis depends on the terminal round only.
	assert.Equal(t, []string{round2[0].ID}, deps[synthesis[0].ID])
}

func TestPlanTournament_AdvanceFraction(t *testing.T) {
	plan, err := PlanTournament("wf1", population(8), TournamentConfig{
		Rounds: []models.RoundConfig{
			{TemplateID: "cluster-rank", ClusterSize: 4, AdvanceFraction: 0.5},
		},
		SynthesisTemplateID: "synthesis",
	})
	require.NoError(t, err)

	// Two round 1 clusters plus synthesis.
	require.Len(t, plan.Jobs, 3)
}

func TestPlanTournament_Invalid(t *testing.T) {
	valid := TournamentConfig{
		Rounds:              []models.RoundConfig{{TemplateID: "t", ClusterSize: 4}},
		SynthesisTemplateID: "synthesis",
	}

	t.Run("empty population", func(t *testing.T) {
		_, err := PlanTournament("wf1", nil, valid)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("no rounds", func(t *testing.T) {
		cfg := valid
		cfg.Rounds = nil
		_, err := PlanTournament("wf1", population(4), cfg)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("missing synthesis template", func(t *testing.T) {
		cfg := valid
		cfg.SynthesisTemplateID = ""
		_, err := PlanTournament("wf1", population(4), cfg)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"even split", 8, 4, []int{4, 4}},
		{"remainder", 10, 4, []int{4, 4, 2}},
		{"single chunk", 3, 10, []int{3}},
		{"size clamped to one", 3, 0, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunk(population(tt.n), tt.size)
			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.want, sizes)
			assert.Equal(t, tt.want, chunkSizes(tt.n, tt.size))
		})
	}
}

func TestRecluster(t *testing.T) {
	lanes := [][]string{
		{"A1", "A2", "A3"},
		{"B1", "B2"},
		{"C1", "C2", "C3"},
	}

	t.Run("by score interleaves ranks", func(t *testing.T) {
		got := Recluster(models.ClusterByScore, lanes, 4)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"A1", "B1", "C1", "A2"}, got[0])
		assert.Equal(t, []string{"B2", "C2", "A3", "C3"}, got[1])
	})

	t.Run("sequential concatenates lanes", func(t *testing.T) {
		got := Recluster(models.ClusterSequential, lanes, 4)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"A1", "A2", "A3", "B1"}, got[0])
		assert.Equal(t, []string{"B2", "C1", "C2", "C3"}, got[1])
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		got := Recluster(models.ClusterSequential, [][]string{{"X", "Y"}, {"Y", "Z"}}, 10)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"X", "Y", "Z"}, got[0])
	})
}

func depsByDownstream(deps []models.JobDependency) map[string][]string {
	out := make(map[string][]string)
	for _, d := range deps {
		out[d.DownstreamID] = append(out[d.DownstreamID], d.UpstreamID)
	}
	return out
}
