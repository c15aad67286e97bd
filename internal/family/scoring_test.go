package family

import (
	"math"
	"testing"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		in           models.Weights
		wantCitation float64
		wantCPC      float64
	}{
		{"even split", models.Weights{Citation: 50, CPC: 50}, 0.5, 0.5},
		{"sixty forty", models.Weights{Citation: 60, CPC: 40}, 0.6, 0.4},
		{"already normalized", models.Weights{Citation: 0.7, CPC: 0.3}, 0.7, 0.3},
		{"same proportions different scale", models.Weights{Citation: 6, CPC: 4}, 0.6, 0.4},
		{"single factor", models.Weights{Citation: 10, CPC: 0}, 1.0, 0.0},
		{"zero total falls back to default", models.Weights{}, 0.5, 0.5},
		{"negative clamped to zero", models.Weights{Citation: -5, CPC: 10}, 0.0, 1.0},
		{"all negative falls back to default", models.Weights{Citation: -1, CPC: -1}, 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if math.Abs(got.Citation-tt.wantCitation) > 1e-9 || math.Abs(got.CPC-tt.wantCPC) > 1e-9 {
				t.Errorf("Normalize(%+v) = %+v, want {%v %v}", tt.in, got, tt.wantCitation, tt.wantCPC)
			}
		})
	}
}

func TestCitationProximity(t *testing.T) {
	tests := []struct {
		generation int
		want       float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 0.5},
		{3, 1.0 / 3.0},
		{10, 0.1},
	}

	for _, tt := range tests {
		got := CitationProximity(tt.generation)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CitationProximity(%d) = %v, want %v", tt.generation, got, tt.want)
		}
	}
}

func TestCPCOverlap(t *testing.T) {
	seeds := map[string]struct{}{
		"H04L": {}, "G06F": {}, "H04W": {},
	}

	tests := []struct {
		name  string
		codes []string
		want  float64
	}{
		{"no codes", nil, 0},
		{"disjoint", []string{"A61K"}, 0},
		{"identical", []string{"H04L", "G06F", "H04W"}, 1.0},
		{"partial", []string{"H04L", "A61K"}, 0.25}, // 1 shared, 4 in union
		{"duplicates counted once", []string{"H04L", "H04L", "A61K"}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CPCOverlap(tt.codes, seeds)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CPCOverlap(%v) = %v, want %v", tt.codes, got, tt.want)
			}
		})
	}

	t.Run("empty seed set", func(t *testing.T) {
		if got := CPCOverlap([]string{"H04L"}, nil); got != 0 {
			t.Errorf("CPCOverlap with no seed codes = %v, want 0", got)
		}
	})
}

func TestCompositeScore(t *testing.T) {
	w := Normalize(models.Weights{Citation: 60, CPC: 40})

	// First-generation patent with 0.3 CPC overlap: 0.6*1.0 + 0.4*0.3 = 0.72
	got := CompositeScore(w, 1.0, 0.3, 0)
	if math.Abs(got-0.72) > 1e-9 {
		t.Errorf("CompositeScore = %v, want 0.72", got)
	}
}

func TestCompositeScore_Clamped(t *testing.T) {
	w := Normalize(models.Weights{Citation: 50, CPC: 50})

	if got := CompositeScore(w, 1.0, 1.0, 0.5); got != 1.0 {
		t.Errorf("boosted score = %v, want clamp at 1.0", got)
	}
	if got := CompositeScore(w, 0, 0, -0.5); got != 0.0 {
		t.Errorf("negative score = %v, want clamp at 0.0", got)
	}
}

// Raising the citation weight must never lower the score of a patent whose
// citation factor beats its CPC factor, and vice versa.
func TestCompositeScore_WeightMonotonicity(t *testing.T) {
	proximity, overlap := 1.0, 0.2

	prev := -1.0
	for citation := 10.0; citation <= 90.0; citation += 10 {
		w := Normalize(models.Weights{Citation: citation, CPC: 100 - citation})
		got := CompositeScore(w, proximity, overlap, 0)
		if got < prev {
			t.Fatalf("score decreased from %v to %v at citation weight %v", prev, got, citation)
		}
		prev = got
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		membership float64
		expansion  float64
		want       models.PatentStatus
	}{
		{"above membership", 0.8, 0.7, 0.4, models.StatusMember},
		{"at membership boundary", 0.7, 0.7, 0.4, models.StatusMember},
		{"between thresholds", 0.5, 0.7, 0.4, models.StatusCandidate},
		{"at expansion boundary", 0.4, 0.7, 0.4, models.StatusCandidate},
		{"below expansion", 0.3, 0.7, 0.4, models.StatusExcluded},
		{"equal thresholds skip candidate band", 0.6, 0.7, 0.7, models.StatusExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.score, tt.membership, tt.expansion)
			if got != tt.want {
				t.Errorf("Classify(%v, %v, %v) = %v, want %v", tt.score, tt.membership, tt.expansion, got, tt.want)
			}
		})
	}
}
