// Package models defines data structures for the patentgraph research core.
package models

import "time"

// WorkflowType identifies the planning pattern used to build a workflow's job graph.
type WorkflowType string

const (
	WorkflowCustom     WorkflowType = "custom"
	WorkflowTournament WorkflowType = "tournament"
	WorkflowTwoStage   WorkflowType = "two_stage"
)

// WorkflowStatus represents the aggregate state of a workflow.
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "draft"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowComplete  WorkflowStatus = "complete"
	WorkflowCancelled WorkflowStatus = "cancelled"
	WorkflowError     WorkflowStatus = "error"
)

// ClusterStrategy controls how a patent population is partitioned into cluster jobs.
type ClusterStrategy string

const (
	// ClusterSequential chunks the population in input order.
	ClusterSequential ClusterStrategy = "sequential"
	// ClusterByScore sorts by a per-patent score before chunking, so each
	// cluster holds patents of comparable strength.
	ClusterByScore ClusterStrategy = "by_score"
)

// RoundConfig describes one elimination round of a tournament workflow.
type RoundConfig struct {
	TemplateID string `json:"template_id" yaml:"template_id" validate:"required"`
	// ClusterSize is the number of patents scored together in one LLM call.
	ClusterSize int `json:"cluster_size" yaml:"cluster_size" validate:"min=1"`
	// AdvanceCount is how many patents each cluster job advances to the next
	// round. If zero, AdvanceFraction is used instead.
	AdvanceCount    int     `json:"advance_count,omitempty" yaml:"advance_count,omitempty" validate:"min=0"`
	AdvanceFraction float64 `json:"advance_fraction,omitempty" yaml:"advance_fraction,omitempty" validate:"min=0,max=1"`
}

// Advancing returns the number of patents a cluster of the given size advances.
func (r RoundConfig) Advancing(clusterLen int) int {
	if clusterLen <= 0 {
		return 0
	}
	n := r.AdvanceCount
	if n == 0 && r.AdvanceFraction > 0 {
		n = int(r.AdvanceFraction*float64(clusterLen) + 0.5)
	}
	if n < 1 {
		n = 1
	}
	if n > clusterLen {
		n = clusterLen
	}
	return n
}

// WorkflowConfig captures the planning parameters of a workflow so a plan can
// be audited and re-run. Only the fields relevant to the workflow type are set.
type WorkflowConfig struct {
	// Tournament
	Rounds              []RoundConfig   `json:"rounds,omitempty" yaml:"rounds,omitempty"`
	Clustering          ClusterStrategy `json:"clustering,omitempty" yaml:"clustering,omitempty"`
	SynthesisTemplateID string          `json:"synthesis_template_id,omitempty" yaml:"synthesis_template_id,omitempty"`

	// Two-stage
	PerPatentTemplateID string `json:"per_patent_template_id,omitempty" yaml:"per_patent_template_id,omitempty"`
	// SortScoreField orders per-patent results feeding the synthesis job.
	// Presentation only, not a correctness requirement.
	SortScoreField string `json:"sort_score_field,omitempty" yaml:"sort_score_field,omitempty"`

	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Workflow is a named execution plan over a patent population.
type Workflow struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   WorkflowType   `json:"type"`
	Status WorkflowStatus `json:"status"`
	// Scope is the patent population the workflow operates over.
	Scope  []string       `json:"scope"`
	Config WorkflowConfig `json:"config"`
	Error  *string        `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the workflow is in a terminal state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowComplete, WorkflowCancelled, WorkflowError:
		return true
	}
	return false
}
