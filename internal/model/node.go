package model

import "time"

// Node is one unit of work in a plan's dependency graph. There is
// currently a single node variant, the job node; the Kind field leaves
// room for others without a wire format change.
type Node struct {
	// ID is the internal node identifier. It may be regenerated when a
	// plan is rebuilt; external lookups must go through ProducerID.
	ID string `json:"id"`

	// ProducerID is the stable external name for this node, taken from
	// the job spec. It survives id regeneration.
	ProducerID string `json:"producer_id"`

	// Kind is the node variant. Currently always "job".
	Kind string `json:"kind"`

	// Name is a human-readable display name.
	Name string `json:"name"`

	// Task describes what this node is meant to accomplish.
	Task string `json:"task"`

	// Dependencies are internal ids of nodes that must succeed first.
	// Together with Dependents these form the DAG edges; the graph
	// builder guarantees acyclicity and that every id resolves.
	Dependencies []string `json:"dependencies"`

	// Dependents are internal ids of nodes that wait on this one.
	Dependents []string `json:"dependents"`

	// Prechecks optionally runs before the work spec.
	Prechecks *WorkSpec `json:"prechecks,omitempty"`

	// Work is the node's main work spec.
	Work *WorkSpec `json:"work,omitempty"`

	// Postchecks optionally runs after the work spec.
	Postchecks *WorkSpec `json:"postchecks,omitempty"`

	// ExpectsNoChanges declares that a successful run legitimately
	// produces zero file changes. Affects evidence validation and the
	// reverse-integration merge decision.
	ExpectsNoChanges bool `json:"expects_no_changes,omitempty"`

	// AutoHeal toggles the single self-repair pass on work failure.
	AutoHeal bool `json:"auto_heal,omitempty"`

	// GroupPath is the hierarchical group this node belongs to, if any.
	GroupPath string `json:"group_path,omitempty"`
}

// IsRoot returns true if the node has no dependencies.
func (n *Node) IsRoot() bool {
	return len(n.Dependencies) == 0
}

// IsLeaf returns true if the node has no dependents.
func (n *Node) IsLeaf() bool {
	return len(n.Dependents) == 0
}

// SpecFor returns the work spec a phase executes, or nil when the phase
// does not run a spec.
func (n *Node) SpecFor(phase NodePhase) *WorkSpec {
	switch phase {
	case PhasePrechecks:
		return n.Prechecks
	case PhaseWork:
		return n.Work
	case PhasePostchecks:
		return n.Postchecks
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Attempt Records
// -----------------------------------------------------------------------------

// AttemptRecord captures one complete attempt of a node's pipeline.
//
// When AttemptHistory is non-empty it is the authoritative source for
// aggregated metrics; the state's Metrics field is a snapshot of the
// latest attempt and must never be summed against the history.
type AttemptRecord struct {
	// AttemptNumber is 1-based and monotonically increasing.
	AttemptNumber int `json:"attempt_number"`

	// Status is the terminal status of this attempt.
	Status NodeStatus `json:"status"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the attempt reached a terminal status.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// Metrics is the usage recorded for this attempt, if any.
	Metrics *UsageMetrics `json:"metrics,omitempty"`

	// Error is the failure message when Status is failed.
	Error string `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// Node Execution State
// -----------------------------------------------------------------------------

// NodeExecutionState is the mutable execution record for one node.
type NodeExecutionState struct {
	// NodeID is the internal id of the node this state belongs to.
	NodeID string `json:"node_id"`

	// Status is the node's current status.
	Status NodeStatus `json:"status"`

	// Phase is the pipeline phase the node is in (or crashed in).
	// Persisted so that a restart resumes at the right phase.
	Phase NodePhase `json:"phase,omitempty"`

	// Version is a local optimistic counter bumped on every mutation.
	Version int64 `json:"version"`

	// Attempts counts pipeline attempts, including heal passes' parents.
	Attempts int `json:"attempts"`

	// StartedAt is when the first attempt began.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// EndedAt is when the node reached a terminal status.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// WorktreePath is the node's isolated workspace, while it exists.
	WorktreePath string `json:"worktree_path,omitempty"`

	// BaseCommit is the commit the worktree was created from. It carries
	// upstream work through chains even when this node produces nothing.
	BaseCommit string `json:"base_commit,omitempty"`

	// CompletedCommit is the node's own result commit, if any.
	CompletedCommit string `json:"completed_commit,omitempty"`

	// Metrics is the latest attempt's usage snapshot. When
	// AttemptHistory is non-empty the history is authoritative and this
	// field must not be independently summed against it.
	Metrics *UsageMetrics `json:"metrics,omitempty"`

	// AttemptHistory is the ordered record of completed attempts.
	AttemptHistory []AttemptRecord `json:"attempt_history,omitempty"`

	// Error is the most recent failure message, if any.
	Error string `json:"error,omitempty"`
}

// Transition moves the state to a new status, returning false when the
// transition is illegal. Legal transitions bump Version.
func (s *NodeExecutionState) Transition(to NodeStatus) bool {
	if !s.Status.CanTransition(to) {
		return false
	}
	s.Status = to
	s.Version++
	return true
}

// BeginAttempt records the start of a new attempt.
func (s *NodeExecutionState) BeginAttempt(now time.Time) {
	s.Attempts++
	if s.StartedAt == nil {
		t := now
		s.StartedAt = &t
	}
	s.Error = ""
	s.Version++
}

// RecordAttempt appends a completed attempt to the history and snapshots
// its metrics as the current metrics value.
func (s *NodeExecutionState) RecordAttempt(rec AttemptRecord) {
	s.AttemptHistory = append(s.AttemptHistory, rec)
	if rec.Metrics != nil {
		s.Metrics = rec.Metrics.Clone()
	}
	if rec.Error != "" {
		s.Error = rec.Error
	}
	s.Version++
}

// LatestAttempt returns the most recent attempt record, or nil.
func (s *NodeExecutionState) LatestAttempt() *AttemptRecord {
	if len(s.AttemptHistory) == 0 {
		return nil
	}
	return &s.AttemptHistory[len(s.AttemptHistory)-1]
}

// MergeSource returns the commit a reverse integration would use:
// the node's own result commit when present, otherwise the base commit
// that carried upstream work into the node. Empty when neither exists.
func (s *NodeExecutionState) MergeSource() string {
	if s.CompletedCommit != "" {
		return s.CompletedCommit
	}
	return s.BaseCommit
}
