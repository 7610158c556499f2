package model

import "time"

// JobSpec describes one job in a plan spec, before graph construction.
type JobSpec struct {
	// ProducerID is the stable external name for the job. Must be unique
	// within the plan.
	ProducerID string `json:"producer_id" yaml:"producer_id"`

	// Name is a human-readable display name. Defaults to ProducerID.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Task describes what the job accomplishes.
	Task string `json:"task,omitempty" yaml:"task,omitempty"`

	// DependsOn lists producer ids of jobs that must succeed first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Prechecks optionally runs before the work spec.
	Prechecks *WorkSpec `json:"prechecks,omitempty" yaml:"prechecks,omitempty"`

	// Work is the job's main work spec.
	Work *WorkSpec `json:"work,omitempty" yaml:"work,omitempty"`

	// Postchecks optionally runs after the work spec.
	Postchecks *WorkSpec `json:"postchecks,omitempty" yaml:"postchecks,omitempty"`

	// ExpectsNoChanges declares that success legitimately produces zero
	// file changes.
	ExpectsNoChanges bool `json:"expects_no_changes,omitempty" yaml:"expects_no_changes,omitempty"`

	// AutoHeal toggles the self-repair pass on work failure.
	AutoHeal bool `json:"auto_heal,omitempty" yaml:"auto_heal,omitempty"`

	// Group is the hierarchical group path this job belongs to, if any.
	// Path segments are separated by "/".
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
}

// PlanSpec is the immutable description of a plan, as enqueued by a caller.
type PlanSpec struct {
	// Name is the display name of the plan.
	Name string `json:"name" yaml:"name"`

	// BaseBranch is the branch node worktrees start from.
	BaseBranch string `json:"base_branch" yaml:"base_branch"`

	// TargetBranch, when set, receives reverse-integration merges from
	// leaf nodes and the final whole-plan merge.
	TargetBranch string `json:"target_branch,omitempty" yaml:"target_branch,omitempty"`

	// Jobs are the plan's work units.
	Jobs []JobSpec `json:"jobs" yaml:"jobs"`

	// MaxParallel bounds concurrently running nodes for this plan.
	// Zero means the configured default.
	MaxParallel int `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`

	// CleanUpSuccessfulWork removes worktrees of succeeded nodes during
	// the cleanup phase rather than waiting for plan deletion.
	CleanUpSuccessfulWork bool `json:"clean_up_successful_work,omitempty" yaml:"clean_up_successful_work,omitempty"`
}

// PlanInstance is the complete runtime record of one plan: the immutable
// spec, the built node graph, all execution state, and lifecycle
// timestamps. It is owned exclusively by the engine while executing and
// handed to the store for durability after every mutation.
type PlanInstance struct {
	// ID uniquely identifies this plan.
	ID string `json:"id"`

	// Spec is the immutable plan description.
	Spec PlanSpec `json:"spec"`

	// Nodes maps internal node id to node.
	Nodes map[string]*Node `json:"nodes"`

	// ProducerIDToNodeID maps the user-facing producer id to the internal
	// node id. All external lookups resolve through this index because
	// internal ids may be regenerated.
	ProducerIDToNodeID map[string]string `json:"producer_id_to_node_id"`

	// Roots are internal ids of nodes with no dependencies.
	Roots []string `json:"roots"`

	// Leaves are internal ids of nodes with no dependents.
	Leaves []string `json:"leaves"`

	// NodeStates maps internal node id to execution state.
	NodeStates map[string]*NodeExecutionState `json:"node_states"`

	// Groups maps group id to group, for nested sub-graphs.
	Groups map[string]*GroupInstance `json:"groups,omitempty"`

	// GroupStates maps group id to group execution state.
	GroupStates map[string]*GroupExecutionState `json:"group_states,omitempty"`

	// GroupPathToID maps hierarchical group path to group id.
	GroupPathToID map[string]string `json:"group_path_to_id,omitempty"`

	// RepoPath is the root of the shared repository.
	RepoPath string `json:"repo_path"`

	// WorktreeRoot is the directory node worktrees are created under.
	WorktreeRoot string `json:"worktree_root"`

	// CreatedAt is when the plan was enqueued.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the first node was scheduled.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// EndedAt is when the plan reached a terminal status.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// StateVersion is a monotonic counter incremented on every mutation,
	// used for optimistic concurrency and change detection.
	StateVersion int64 `json:"state_version"`

	// IsPaused halts admission of new ready nodes.
	IsPaused bool `json:"is_paused,omitempty"`

	// WorkSummary is the aggregated, derived summary of work performed.
	// Recomputed from git diffs; never authoritative state.
	WorkSummary *WorkSummary `json:"work_summary,omitempty"`
}

// Touch bumps the plan's state version. Every mutation path calls this
// before the instance is handed to the store.
func (p *PlanInstance) Touch() {
	p.StateVersion++
}

// NodeByProducerID resolves a node through the producer id index.
func (p *PlanInstance) NodeByProducerID(producerID string) *Node {
	id, ok := p.ProducerIDToNodeID[producerID]
	if !ok {
		return nil
	}
	return p.Nodes[id]
}

// StateFor returns the execution state for an internal node id, or nil.
func (p *PlanInstance) StateFor(nodeID string) *NodeExecutionState {
	return p.NodeStates[nodeID]
}

// IsLeafNode reports whether the internal node id names a leaf.
func (p *PlanInstance) IsLeafNode(nodeID string) bool {
	for _, id := range p.Leaves {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Status derives the plan status from the aggregate of node statuses.
//
// The plan is running while any node occupies a slot or progress is still
// possible; succeeded only when every node succeeded; failed when a node
// failed and nothing further can proceed; canceled when every unfinished
// node was canceled. The explicit paused flag overrides a non-terminal
// derivation.
func (p *PlanInstance) Status() PlanStatus {
	var (
		total     int
		succeeded int
		failed    int
		canceled  int
		blocked   int
		active    int
		started   int
	)
	for _, st := range p.NodeStates {
		total++
		switch st.Status {
		case NodeSucceeded:
			succeeded++
			started++
		case NodeFailed:
			failed++
			started++
		case NodeCanceled:
			canceled++
			started++
		case NodeBlocked:
			blocked++
			started++
		case NodeScheduled, NodeRunning:
			active++
			started++
		case NodePaused:
			started++
		}
	}

	if total == 0 {
		return PlanPending
	}
	if succeeded == total {
		return PlanSucceeded
	}
	if active > 0 {
		return PlanRunning
	}
	if p.IsPaused {
		return PlanPaused
	}
	terminal := succeeded + failed + canceled + blocked
	if terminal == total {
		if failed > 0 || blocked > 0 {
			return PlanFailed
		}
		if canceled > 0 {
			return PlanCanceled
		}
	}
	if failed > 0 && active == 0 && !progressPossible(p) {
		return PlanFailed
	}
	if started == 0 {
		return PlanPending
	}
	return PlanRunning
}

// progressPossible reports whether any pending or ready node could still
// run given current terminal statuses.
func progressPossible(p *PlanInstance) bool {
	for id, st := range p.NodeStates {
		if st.Status != NodePending && st.Status != NodeReady {
			continue
		}
		node := p.Nodes[id]
		if node == nil {
			continue
		}
		runnable := true
		for _, dep := range node.Dependencies {
			depState := p.NodeStates[dep]
			if depState == nil || depState.Status == NodeFailed ||
				depState.Status == NodeCanceled || depState.Status == NodeBlocked {
				runnable = false
				break
			}
		}
		if runnable {
			return true
		}
	}
	return false
}
