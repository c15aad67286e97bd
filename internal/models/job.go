package models

import "time"

// JobStatus represents the state of one job in a workflow's graph.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	// JobReady is a derived state: pending with every upstream dependency
	// complete. It is reported, never persisted; claiming moves a job
	// straight from pending to running.
	JobReady     JobStatus = "ready"
	JobRunning   JobStatus = "running"
	JobComplete  JobStatus = "complete"
	JobError     JobStatus = "error"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is terminal for automatic scheduling.
// Error jobs can still leave this state via an explicit retry.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobComplete, JobError, JobCancelled:
		return true
	}
	return false
}

// TargetType discriminates the shape of a job's scoring target.
type TargetType string

const (
	TargetSingle    TargetType = "single"
	TargetCluster   TargetType = "cluster"
	TargetSynthesis TargetType = "synthesis"
)

// TargetSpec is a tagged variant describing what a job scores: one patent, a
// cluster of patents, or a synthesis over upstream results. Only the fields
// for the tagged type are populated.
type TargetSpec struct {
	Type TargetType `json:"type" yaml:"type"`

	// Single
	PatentID string `json:"patent_id,omitempty" yaml:"patent_id,omitempty"`

	// Cluster. Empty for tournament rounds after the first: those targets are
	// resolved at execution time from the advancing output of upstream jobs.
	PatentIDs []string `json:"patent_ids,omitempty" yaml:"patent_ids,omitempty"`

	// Synthesis: job ids whose results are aggregated.
	UpstreamRefs []string `json:"upstream_refs,omitempty" yaml:"upstream_refs,omitempty"`
}

// SingleTarget builds a target for one patent.
func SingleTarget(patentID string) TargetSpec {
	return TargetSpec{Type: TargetSingle, PatentID: patentID}
}

// ClusterTarget builds a target for a group of patents scored together.
func ClusterTarget(patentIDs []string) TargetSpec {
	return TargetSpec{Type: TargetCluster, PatentIDs: patentIDs}
}

// SynthesisTarget builds a target aggregating the results of upstream jobs.
func SynthesisTarget(upstreamJobIDs []string) TargetSpec {
	return TargetSpec{Type: TargetSynthesis, UpstreamRefs: upstreamJobIDs}
}

// Job is one unit of work bound to a scoring template and a target.
type Job struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	TemplateID string     `json:"template_id"`
	Target     TargetSpec `json:"target"`
	Status     JobStatus  `json:"status"`

	// Round orders jobs within a tournament; ClusterIndex is the parallel
	// lane within a round.
	Round        int `json:"round"`
	ClusterIndex int `json:"cluster_index"`
	Priority     int `json:"priority"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	Result     map[string]any `json:"result,omitempty"`
	TokensUsed int            `json:"tokens_used"`
	Error      *string        `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobDependency is a directed edge: the downstream job may not start until the
// upstream job is complete.
type JobDependency struct {
	UpstreamID   string `json:"upstream_id"`
	DownstreamID string `json:"downstream_id"`
}

// AnswerFieldAdvancing is the conventional result field a cluster job's
// template populates with the patent ids that advance to the next round. The
// scheduler reads this field; it never interprets scores itself.
const AnswerFieldAdvancing = "advancing"

// AdvancingIDs extracts the advancing patent ids from a cluster job result.
// Returns nil if the field is absent or malformed.
func AdvancingIDs(result map[string]any) []string {
	if result == nil {
		return nil
	}
	raw, ok := result[AnswerFieldAdvancing]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}
