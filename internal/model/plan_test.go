package model

import (
	"testing"
	"time"
)

// twoNodeChain builds a plan instance with a -> b and the given statuses.
func twoNodeChain(aStatus, bStatus NodeStatus) *PlanInstance {
	return &PlanInstance{
		ID: "p1",
		Nodes: map[string]*Node{
			"a": {ID: "a", ProducerID: "a", Dependents: []string{"b"}},
			"b": {ID: "b", ProducerID: "b", Dependencies: []string{"a"}},
		},
		ProducerIDToNodeID: map[string]string{"a": "a", "b": "b"},
		Roots:              []string{"a"},
		Leaves:             []string{"b"},
		NodeStates: map[string]*NodeExecutionState{
			"a": {NodeID: "a", Status: aStatus},
			"b": {NodeID: "b", Status: bStatus},
		},
	}
}

func TestPlanStatusDerivation(t *testing.T) {
	tests := []struct {
		name string
		a, b NodeStatus
		want PlanStatus
	}{
		{"all pending", NodePending, NodePending, PlanPending},
		{"one running", NodeRunning, NodePending, PlanRunning},
		{"one scheduled", NodeScheduled, NodePending, PlanRunning},
		{"all succeeded", NodeSucceeded, NodeSucceeded, PlanSucceeded},
		{"root failed blocks leaf", NodeFailed, NodeBlocked, PlanFailed},
		{"all canceled", NodeCanceled, NodeCanceled, PlanCanceled},
		{"failure with running node still running", NodeFailed, NodeRunning, PlanRunning},
		{"succeeded root, pending leaf still progressing", NodeSucceeded, NodePending, PlanRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := twoNodeChain(tt.a, tt.b)
			if got := p.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlanStatusFailedWhenNoProgressPossible(t *testing.T) {
	// Root failed, leaf still pending but depends on the failed root:
	// no progress is possible, the plan is failed.
	p := twoNodeChain(NodeFailed, NodePending)
	if got := p.Status(); got != PlanFailed {
		t.Errorf("Status() = %s, want failed", got)
	}
}

func TestPlanStatusPausedFlag(t *testing.T) {
	p := twoNodeChain(NodeSucceeded, NodePaused)
	p.IsPaused = true
	if got := p.Status(); got != PlanPaused {
		t.Errorf("Status() = %s, want paused", got)
	}

	// The paused flag never overrides a terminal derivation.
	p = twoNodeChain(NodeSucceeded, NodeSucceeded)
	p.IsPaused = true
	if got := p.Status(); got != PlanSucceeded {
		t.Errorf("Status() = %s, want succeeded", got)
	}
}

func TestProducerIDLookup(t *testing.T) {
	p := twoNodeChain(NodePending, NodePending)
	if n := p.NodeByProducerID("a"); n == nil || n.ID != "a" {
		t.Errorf("NodeByProducerID(a) = %+v", n)
	}
	if n := p.NodeByProducerID("nope"); n != nil {
		t.Errorf("NodeByProducerID(nope) = %+v, want nil", n)
	}
}

func TestTouchBumpsStateVersion(t *testing.T) {
	p := twoNodeChain(NodePending, NodePending)
	before := p.StateVersion
	p.Touch()
	p.Touch()
	if p.StateVersion != before+2 {
		t.Errorf("StateVersion = %d, want %d", p.StateVersion, before+2)
	}
}

func TestBeginAndRecordAttempt(t *testing.T) {
	st := &NodeExecutionState{NodeID: "n1", Status: NodePending}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	st.BeginAttempt(now)
	if st.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", st.Attempts)
	}
	if st.StartedAt == nil || !st.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", st.StartedAt, now)
	}

	later := now.Add(2 * time.Minute)
	st.BeginAttempt(later)
	if st.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", st.Attempts)
	}
	if !st.StartedAt.Equal(now) {
		t.Error("StartedAt must keep the first attempt's start time")
	}

	end := later.Add(time.Minute)
	st.RecordAttempt(AttemptRecord{
		AttemptNumber: 2,
		Status:        NodeFailed,
		StartedAt:     later,
		EndedAt:       &end,
		Metrics:       &UsageMetrics{DurationMS: 60000},
		Error:         "exit status 1",
	})
	if len(st.AttemptHistory) != 1 {
		t.Fatalf("AttemptHistory length = %d, want 1", len(st.AttemptHistory))
	}
	if st.Metrics == nil || st.Metrics.DurationMS != 60000 {
		t.Errorf("Metrics snapshot = %+v", st.Metrics)
	}
	if st.Error != "exit status 1" {
		t.Errorf("Error = %q", st.Error)
	}
	if got := st.LatestAttempt(); got == nil || got.AttemptNumber != 2 {
		t.Errorf("LatestAttempt = %+v", got)
	}
}

func TestMergeSource(t *testing.T) {
	st := &NodeExecutionState{}
	if st.MergeSource() != "" {
		t.Error("no commits should yield empty merge source")
	}
	st.BaseCommit = "base1"
	if st.MergeSource() != "base1" {
		t.Errorf("MergeSource = %q, want base1", st.MergeSource())
	}
	st.CompletedCommit = "done1"
	if st.MergeSource() != "done1" {
		t.Errorf("MergeSource = %q, want done1 (own commit wins)", st.MergeSource())
	}
}

func TestDeriveGroupStatus(t *testing.T) {
	mk := func(statuses ...NodeStatus) []*NodeExecutionState {
		out := make([]*NodeExecutionState, len(statuses))
		for i, s := range statuses {
			out[i] = &NodeExecutionState{Status: s}
		}
		return out
	}
	tests := []struct {
		name   string
		states []*NodeExecutionState
		want   NodeStatus
	}{
		{"empty", nil, NodePending},
		{"all succeeded", mk(NodeSucceeded, NodeSucceeded), NodeSucceeded},
		{"one running", mk(NodeSucceeded, NodeRunning), NodeRunning},
		{"one paused", mk(NodeSucceeded, NodePaused), NodePaused},
		{"failure wins over cancel", mk(NodeFailed, NodeCanceled), NodeFailed},
		{"blocked without failure", mk(NodeSucceeded, NodeBlocked), NodeBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveGroupStatus(tt.states); got != tt.want {
				t.Errorf("DeriveGroupStatus = %s, want %s", got, tt.want)
			}
		})
	}
}
