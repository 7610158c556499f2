package model

// -----------------------------------------------------------------------------
// Node Status
// -----------------------------------------------------------------------------

// NodeStatus represents the execution status of a single node.
//
// The happy path is pending -> ready -> scheduled -> running -> succeeded.
// A node whose dependency fails or is canceled becomes blocked. Canceled
// and paused are reachable from any non-terminal status; paused is the
// only suspending status a node can leave again.
type NodeStatus string

const (
	// NodePending indicates the node is waiting on unmet dependencies.
	NodePending NodeStatus = "pending"

	// NodeReady indicates all dependencies succeeded and the node is
	// eligible for scheduling.
	NodeReady NodeStatus = "ready"

	// NodeScheduled indicates the node has been admitted by the capacity
	// gate and is about to start its phase pipeline.
	NodeScheduled NodeStatus = "scheduled"

	// NodeRunning indicates the phase pipeline is executing.
	NodeRunning NodeStatus = "running"

	// NodeSucceeded indicates the node completed all phases.
	NodeSucceeded NodeStatus = "succeeded"

	// NodeFailed indicates a phase failed with no remaining heal attempt.
	NodeFailed NodeStatus = "failed"

	// NodeBlocked indicates an upstream dependency failed or was canceled.
	NodeBlocked NodeStatus = "blocked"

	// NodeCanceled indicates the node was canceled before completion.
	NodeCanceled NodeStatus = "canceled"

	// NodePaused indicates the node is suspended; it may re-enter ready.
	NodePaused NodeStatus = "paused"
)

// String returns the string representation of the status.
func (s NodeStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeSucceeded, NodeFailed, NodeBlocked, NodeCanceled:
		return true
	default:
		return false
	}
}

// IsActive returns true if the node currently occupies a scheduling slot.
func (s NodeStatus) IsActive() bool {
	return s == NodeScheduled || s == NodeRunning
}

// nodeTransitions lists the legal next statuses for each node status.
// Retrying a failed or canceled node re-enters pending with a fresh
// attempt; succeeded is absorbing within an execution lineage. Scheduled
// and running can fall back to ready: a restart re-queues nodes the
// stopped process left in flight.
var nodeTransitions = map[NodeStatus][]NodeStatus{
	NodePending:   {NodeReady, NodeBlocked, NodeCanceled, NodePaused},
	NodeReady:     {NodeScheduled, NodeBlocked, NodeCanceled, NodePaused},
	NodeScheduled: {NodeRunning, NodeReady, NodeCanceled, NodePaused, NodeBlocked},
	NodeRunning:   {NodeSucceeded, NodeFailed, NodeReady, NodeCanceled, NodePaused},
	NodePaused:    {NodeReady, NodePending, NodeCanceled},
	NodeFailed:    {NodePending}, // manual retry starts a new attempt
	NodeCanceled:  {NodePending}, // manual retry starts a new attempt
	NodeBlocked:   {NodePending}, // retry after upstream is repaired
	NodeSucceeded: {},
}

// CanTransition reports whether moving a node from one status to another
// is legal. Illegal transitions are rejected by callers and logged, never
// silently applied; this protects the invariant that attempts and attempt
// history only grow monotonically within an execution lineage.
func (s NodeStatus) CanTransition(to NodeStatus) bool {
	if s == to {
		return false
	}
	for _, next := range nodeTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Plan Status
// -----------------------------------------------------------------------------

// PlanStatus represents the overall status of a plan. It is derived from
// the aggregate of node statuses, never stored as independent truth,
// except for the explicit paused flag.
type PlanStatus string

const (
	// PlanPending indicates no node has started yet.
	PlanPending PlanStatus = "pending"

	// PlanRunning indicates at least one node is scheduled or running,
	// or further progress is still possible.
	PlanRunning PlanStatus = "running"

	// PlanSucceeded indicates every node succeeded.
	PlanSucceeded PlanStatus = "succeeded"

	// PlanFailed indicates a node failed and no further progress is possible.
	PlanFailed PlanStatus = "failed"

	// PlanCanceled indicates the plan was canceled.
	PlanCanceled PlanStatus = "canceled"

	// PlanPaused indicates the plan is explicitly paused.
	PlanPaused PlanStatus = "paused"
)

// String returns the string representation of the status.
func (s PlanStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanSucceeded, PlanFailed, PlanCanceled:
		return true
	default:
		return false
	}
}
