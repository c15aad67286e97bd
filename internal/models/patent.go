package models

import "time"

// PatentRecord is the resolved bibliographic data for one patent, as returned
// by the external patent record collaborator. A patent that cannot be resolved
// (foreign filing, withdrawn application) is represented by a nil record, not
// an error.
type PatentRecord struct {
	PatentID  string     `json:"patent_id"`
	Title     string     `json:"title"`
	Date      *time.Time `json:"date,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
	CPCCodes  []string   `json:"cpc_codes,omitempty"`
	CitedBy   int        `json:"cited_by_count"`
	Citing    int        `json:"citing_count"`
	Abstract  string     `json:"abstract,omitempty"`
}

// Citations holds the one-generation neighbor sets of a patent. Citation facts
// are immutable, so cached copies never go stale.
type Citations struct {
	// ForwardIDs are patents citing this one (descendants).
	ForwardIDs []string `json:"forward_ids"`
	// BackwardIDs are patents this one cites (ancestors / prior art).
	BackwardIDs []string `json:"backward_ids"`
}

// InDirection returns the neighbor ids selected by direction.
func (c *Citations) InDirection(d Direction) []string {
	switch d {
	case DirectionForward:
		return c.ForwardIDs
	case DirectionBackward:
		return c.BackwardIDs
	default:
		ids := make([]string, 0, len(c.ForwardIDs)+len(c.BackwardIDs))
		ids = append(ids, c.ForwardIDs...)
		ids = append(ids, c.BackwardIDs...)
		return ids
	}
}

// ScoreResult is the structured output of one LLM scoring call.
type ScoreResult struct {
	Data       map[string]any `json:"data"`
	TokensUsed int            `json:"tokens_used"`
}
