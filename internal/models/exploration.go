package models

import "time"

// PatentStatus classifies a discovered patent within one exploration.
// Every discovered patent is in exactly one of these states.
type PatentStatus string

const (
	StatusMember    PatentStatus = "member"
	StatusCandidate PatentStatus = "candidate"
	StatusExcluded  PatentStatus = "excluded"
)

// ValidPatentStatus reports whether s is one of the three classification states.
func ValidPatentStatus(s PatentStatus) bool {
	switch s {
	case StatusMember, StatusCandidate, StatusExcluded:
		return true
	}
	return false
}

// Direction selects which citation edges a traversal follows.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionBoth     Direction = "both"
)

// DiscoveryRole records how a patent entered the exploration.
type DiscoveryRole string

const (
	RoleSeed       DiscoveryRole = "seed"
	RoleDescendant DiscoveryRole = "descendant" // found via forward citation
	RoleAncestor   DiscoveryRole = "ancestor"   // found via backward citation
	RoleSibling    DiscoveryRole = "sibling"    // other child of a shared parent
)

// Weights are the named scoring factors for family admission. Callers supply
// them as arbitrary non-negative magnitudes (percentages, counts, whatever);
// the engine renormalizes to sum 1 before combining.
type Weights struct {
	// Citation weights citation-path proximity: closer generation scores higher.
	Citation float64 `json:"citation" yaml:"citation"`
	// CPC weights CPC classification overlap with the seed set.
	CPC float64 `json:"cpc" yaml:"cpc"`
}

// DefaultWeights splits evenly between citation proximity and CPC overlap.
func DefaultWeights() Weights {
	return Weights{Citation: 50, CPC: 50}
}

// ExplorationPatent is one discovered patent within an exploration, carrying
// its classification, score, and discovery provenance.
type ExplorationPatent struct {
	PatentID string       `json:"patent_id"`
	Status   PatentStatus `json:"status"`
	Score    float64      `json:"score"`
	// Generation is the hop at which the patent was discovered (seeds are 0).
	Generation int           `json:"generation"`
	Role       DiscoveryRole `json:"role"`
	Seed       bool          `json:"seed"`
	// Overridden marks a manual status override; automatic reclassification
	// leaves overridden rows alone until the next explicit rescore.
	Overridden bool `json:"overridden,omitempty"`
}

// Exploration is the owning aggregate of an iterative family expansion: seeds,
// thresholds, weights, and the partitioned set of discovered patents.
type Exploration struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	SeedIDs []string `json:"seed_ids"`

	// Generation counts completed one-hop expansions.
	Generation int `json:"generation"`

	Weights             Weights `json:"weights"`
	MembershipThreshold float64 `json:"membership_threshold"`
	ExpansionThreshold  float64 `json:"expansion_threshold"`
	// PortfolioBoost is a flat score bonus for patents in PortfolioIDs.
	PortfolioBoost float64  `json:"portfolio_boost,omitempty"`
	PortfolioIDs   []string `json:"portfolio_ids,omitempty"`

	// Patents holds every discovered patent keyed by id. The member /
	// candidate / excluded partition lives in each row's Status.
	Patents map[string]*ExplorationPatent `json:"patents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InPortfolio reports whether the patent is part of the caller's own portfolio.
func (e *Exploration) InPortfolio(patentID string) bool {
	for _, id := range e.PortfolioIDs {
		if id == patentID {
			return true
		}
	}
	return false
}

// ByStatus returns the patent ids currently in the given state.
func (e *Exploration) ByStatus(status PatentStatus) []string {
	var ids []string
	for id, p := range e.Patents {
		if p.Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// GenerationSummary reports what one expansion call did. Skips are surfaced
// here rather than aborting the generation.
type GenerationSummary struct {
	Generation      int      `json:"generation"`
	Discovered      int      `json:"discovered"`
	Promoted        int      `json:"promoted"`
	Candidates      int      `json:"candidates"`
	Excluded        int      `json:"excluded"`
	DroppedOverflow int      `json:"dropped_overflow"`
	Skipped         int      `json:"skipped"`
	SkippedIDs      []string `json:"skipped_ids,omitempty"`
}
