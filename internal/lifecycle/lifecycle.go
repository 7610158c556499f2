// Package lifecycle releases the on-disk resources a plan accumulates:
// node worktrees and per-node log files. Release is best effort; a
// worktree that cannot be removed is logged and skipped so that plan
// deletion always completes.
package lifecycle

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/plandeck/plandeck/internal/gitops"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/model"
)

// Manager releases plan resources.
type Manager struct {
	logDir string
	log    *logging.Logger
}

// NewManager creates a Manager. logDir is where per-node log files live;
// a nil logger disables logging.
func NewManager(logDir string, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Manager{logDir: logDir, log: log}
}

// ReleaseWorktrees removes every worktree the plan still holds and
// prunes the repository's worktree records. Nodes whose worktrees were
// already cleaned up are skipped; removal failures are logged, not
// returned. The cleared paths are reflected on the plan in place.
func (m *Manager) ReleaseWorktrees(git gitops.WorktreeOperations, plan *model.PlanInstance) {
	log := m.log.WithPlan(plan.ID)

	var group errgroup.Group
	group.SetLimit(4)
	for nodeID, state := range plan.NodeStates {
		if state.WorktreePath == "" {
			continue
		}
		nodeID, state := nodeID, state
		group.Go(func() error {
			if err := git.RemoveWorktree(state.WorktreePath); err != nil {
				log.WithNode(nodeID).Warn("failed to remove worktree",
					"path", state.WorktreePath, "error", err)
				return nil
			}
			state.WorktreePath = ""
			state.Version++
			return nil
		})
	}
	_ = group.Wait()

	if err := git.PruneWorktrees(); err != nil {
		log.Warn("failed to prune worktree records", "error", err)
	}
}

// DeleteLogs removes the plan's node log files. Only files whose name
// starts with the plan id are touched; everything else in the log
// directory belongs to other plans.
func (m *Manager) DeleteLogs(planID string) error {
	entries, err := os.ReadDir(m.logDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), planID) {
			continue
		}
		path := filepath.Join(m.logDir, entry.Name())
		if err := os.Remove(path); err != nil {
			m.log.WithPlan(planID).Warn("failed to delete node log", "path", path, "error", err)
		}
	}
	return nil
}

// Release tears down everything a plan left behind.
func (m *Manager) Release(git gitops.WorktreeOperations, plan *model.PlanInstance) {
	m.ReleaseWorktrees(git, plan)
	if err := m.DeleteLogs(plan.ID); err != nil {
		m.log.WithPlan(plan.ID).Warn("failed to delete node logs", "error", err)
	}
}
