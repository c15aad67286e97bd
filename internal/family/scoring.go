package family

import (
	"github.com/mcdaddytn/patentgraph/internal/models"
)

// NormalizedWeights are scoring weights rescaled to sum to 1. Callers supply
// arbitrary non-negative magnitudes; normalization happens here so two configs
// with the same relative proportions score identically.
type NormalizedWeights struct {
	Citation float64
	CPC      float64
}

// Normalize rescales the weights to sum to 1. A zero or negative total falls
// back to the default even split.
func Normalize(w models.Weights) NormalizedWeights {
	citation := w.Citation
	cpc := w.CPC
	if citation < 0 {
		citation = 0
	}
	if cpc < 0 {
		cpc = 0
	}
	total := citation + cpc
	if total <= 0 {
		d := models.DefaultWeights()
		total = d.Citation + d.CPC
		citation = d.Citation
		cpc = d.CPC
	}
	return NormalizedWeights{
		Citation: citation / total,
		CPC:      cpc / total,
	}
}

// CitationProximity maps a discovery generation to a [0,1] factor. Seeds and
// first-generation neighbors score 1.0, then decay as 1/generation.
func CitationProximity(generation int) float64 {
	if generation <= 1 {
		return 1.0
	}
	return 1.0 / float64(generation)
}

// CPCOverlap is the Jaccard similarity between a patent's CPC codes and the
// union of the seed set's codes. An unresolvable patent contributes zero.
func CPCOverlap(codes []string, seedCodes map[string]struct{}) float64 {
	if len(codes) == 0 || len(seedCodes) == 0 {
		return 0
	}
	intersection := 0
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if _, ok := seedCodes[c]; ok {
			intersection++
		}
	}
	union := len(seedCodes) + len(seen) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// CompositeScore combines the normalized factors into a single [0,1] score.
// portfolioBoost is a flat bonus applied after the weighted sum; the result is
// clamped so a boosted score never exceeds 1.
func CompositeScore(w NormalizedWeights, proximity, cpcOverlap, portfolioBoost float64) float64 {
	score := w.Citation*proximity + w.CPC*cpcOverlap + portfolioBoost
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Classify maps a score onto the member / candidate / excluded partition.
func Classify(score, membershipThreshold, expansionThreshold float64) models.PatentStatus {
	switch {
	case score >= membershipThreshold:
		return models.StatusMember
	case score >= expansionThreshold:
		return models.StatusCandidate
	default:
		return models.StatusExcluded
	}
}
