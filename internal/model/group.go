package model

import "time"

// GroupInstance is a named sub-collection of nodes addressable by a
// hierarchical path, enabling nested plans. Group semantics mirror node
// semantics at coarser granularity: a group's status derives from its
// member nodes the same way a plan's derives from all nodes.
type GroupInstance struct {
	// ID uniquely identifies the group within the plan.
	ID string `json:"id"`

	// Path is the hierarchical address, segments separated by "/".
	Path string `json:"path"`

	// Name is the display name, the last path segment by default.
	Name string `json:"name"`

	// NodeIDs are internal ids of member nodes.
	NodeIDs []string `json:"node_ids"`

	// ChildGroupIDs are ids of directly nested groups.
	ChildGroupIDs []string `json:"child_group_ids,omitempty"`
}

// GroupExecutionState tracks execution at group granularity.
type GroupExecutionState struct {
	// GroupID is the id of the group this state belongs to.
	GroupID string `json:"group_id"`

	// Status is derived from member node statuses.
	Status NodeStatus `json:"status"`

	// Version is a local optimistic counter bumped on every mutation.
	Version int64 `json:"version"`

	// StartedAt is when the first member node started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// EndedAt is when the last member node reached a terminal status.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// DeriveGroupStatus computes a group's status from its member nodes'
// statuses, using the same aggregation rules as plan status.
func DeriveGroupStatus(states []*NodeExecutionState) NodeStatus {
	if len(states) == 0 {
		return NodePending
	}
	var succeeded, failed, canceled, blocked, active, paused int
	for _, st := range states {
		switch st.Status {
		case NodeSucceeded:
			succeeded++
		case NodeFailed:
			failed++
		case NodeCanceled:
			canceled++
		case NodeBlocked:
			blocked++
		case NodeScheduled, NodeRunning:
			active++
		case NodePaused:
			paused++
		}
	}
	switch {
	case succeeded == len(states):
		return NodeSucceeded
	case active > 0:
		return NodeRunning
	case paused > 0:
		return NodePaused
	case failed > 0:
		return NodeFailed
	case blocked > 0:
		return NodeBlocked
	case canceled > 0:
		return NodeCanceled
	default:
		return NodePending
	}
}
