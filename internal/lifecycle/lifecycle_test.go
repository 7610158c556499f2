package lifecycle

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/model"
)

type fakeWorktrees struct {
	mu      sync.Mutex
	removed []string
	pruned  bool
	failOn  string
}

func (f *fakeWorktrees) AddWorktree(path, branch, commit string) error { return nil }

func (f *fakeWorktrees) HeadCommit(path string) (string, error) { return "", nil }

func (f *fakeWorktrees) RemoveWorktree(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == f.failOn {
		return errors.NewGitError("worktree is locked", nil)
	}
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeWorktrees) ListWorktrees() ([]string, error) { return nil, nil }

func (f *fakeWorktrees) PruneWorktrees() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = true
	return nil
}

func planWithWorktrees(paths map[string]string) *model.PlanInstance {
	plan := &model.PlanInstance{
		ID:         "plan-1",
		NodeStates: make(map[string]*model.NodeExecutionState),
	}
	for nodeID, path := range paths {
		plan.NodeStates[nodeID] = &model.NodeExecutionState{NodeID: nodeID, WorktreePath: path}
	}
	return plan
}

func TestReleaseWorktrees(t *testing.T) {
	git := &fakeWorktrees{}
	plan := planWithWorktrees(map[string]string{
		"n1": "/tmp/wt/a",
		"n2": "/tmp/wt/b",
		"n3": "",
	})

	m := NewManager(t.TempDir(), nil)
	m.ReleaseWorktrees(git, plan)

	if len(git.removed) != 2 {
		t.Fatalf("removed %d worktrees, want 2: %v", len(git.removed), git.removed)
	}
	if !git.pruned {
		t.Error("worktree records were not pruned")
	}
	for nodeID, state := range plan.NodeStates {
		if state.WorktreePath != "" {
			t.Errorf("node %s still holds worktree path %q", nodeID, state.WorktreePath)
		}
	}
}

func TestReleaseWorktreesToleratesFailure(t *testing.T) {
	git := &fakeWorktrees{failOn: "/tmp/wt/stuck"}
	plan := planWithWorktrees(map[string]string{
		"n1": "/tmp/wt/stuck",
		"n2": "/tmp/wt/fine",
	})

	m := NewManager(t.TempDir(), nil)
	m.ReleaseWorktrees(git, plan)

	if len(git.removed) != 1 || git.removed[0] != "/tmp/wt/fine" {
		t.Errorf("removed = %v, want only the removable worktree", git.removed)
	}
	// The stuck node keeps its path so a later release can retry.
	if got := plan.NodeStates["n1"].WorktreePath; got != "/tmp/wt/stuck" {
		t.Errorf("stuck node path = %q, want preserved", got)
	}
}

func TestDeleteLogsOnlyTouchesOwnFiles(t *testing.T) {
	dir := t.TempDir()
	own := []string{"plan-1-node-a.log", "plan-1-node-b.log"}
	other := []string{"plan-2-node-a.log", "unrelated.txt"}
	for _, name := range append(append([]string{}, own...), other...) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	m := NewManager(dir, nil)
	if err := m.DeleteLogs("plan-1"); err != nil {
		t.Fatalf("DeleteLogs: %v", err)
	}

	for _, name := range own {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still exists", name)
		}
	}
	for _, name := range other {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s was deleted but belongs to another plan", name)
		}
	}
}

func TestDeleteLogsMissingDirectory(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "never-created"), nil)
	if err := m.DeleteLogs("plan-1"); err != nil {
		t.Errorf("DeleteLogs on a missing directory: %v", err)
	}
}
