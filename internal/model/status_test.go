package model

import "testing"

func TestNodeStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from NodeStatus
		to   NodeStatus
		want bool
	}{
		{"pending to ready", NodePending, NodeReady, true},
		{"ready to scheduled", NodeReady, NodeScheduled, true},
		{"scheduled to running", NodeScheduled, NodeRunning, true},
		{"running to succeeded", NodeRunning, NodeSucceeded, true},
		{"running to failed", NodeRunning, NodeFailed, true},
		{"pending to blocked", NodePending, NodeBlocked, true},
		{"ready to canceled", NodeReady, NodeCanceled, true},
		{"running to paused", NodeRunning, NodePaused, true},
		{"paused resumes to ready", NodePaused, NodeReady, true},
		{"running re-queues after restart", NodeRunning, NodeReady, true},
		{"scheduled re-queues after restart", NodeScheduled, NodeReady, true},
		{"failed retries via pending", NodeFailed, NodePending, true},
		{"canceled retries via pending", NodeCanceled, NodePending, true},

		{"succeeded to running rejected", NodeSucceeded, NodeRunning, false},
		{"succeeded to pending rejected", NodeSucceeded, NodePending, false},
		{"pending to running skips ready", NodePending, NodeRunning, false},
		{"ready to succeeded skips running", NodeReady, NodeSucceeded, false},
		{"failed directly to running rejected", NodeFailed, NodeRunning, false},
		{"self transition rejected", NodeRunning, NodeRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestNodeStatusTerminal(t *testing.T) {
	terminal := []NodeStatus{NodeSucceeded, NodeFailed, NodeBlocked, NodeCanceled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []NodeStatus{NodePending, NodeReady, NodeScheduled, NodeRunning, NodePaused}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNodeStatusActive(t *testing.T) {
	if !NodeScheduled.IsActive() || !NodeRunning.IsActive() {
		t.Error("scheduled and running should occupy a slot")
	}
	for _, s := range []NodeStatus{NodePending, NodeReady, NodeSucceeded, NodePaused} {
		if s.IsActive() {
			t.Errorf("%s should not occupy a slot", s)
		}
	}
}

func TestTransitionBumpsVersion(t *testing.T) {
	st := &NodeExecutionState{NodeID: "n1", Status: NodePending}
	if !st.Transition(NodeReady) {
		t.Fatal("pending -> ready should be legal")
	}
	if st.Version != 1 {
		t.Errorf("version = %d, want 1", st.Version)
	}
	if st.Transition(NodeSucceeded) {
		t.Error("ready -> succeeded should be rejected")
	}
	if st.Version != 1 {
		t.Errorf("rejected transition must not bump version, got %d", st.Version)
	}
	if st.Status != NodeReady {
		t.Errorf("rejected transition must not change status, got %s", st.Status)
	}
}
