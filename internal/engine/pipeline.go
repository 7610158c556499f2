package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/evidence"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/metrics"
	"github.com/plandeck/plandeck/internal/model"
)

// runNode drives one node through its phase pipeline. The pipeline is an
// explicit state machine over the persisted Phase field: each phase is
// stamped and saved before it executes, so a crash resumes at the phase
// that was interrupted instead of redoing finished work.
func (r *planRun) runNode(nodeID string) {
	defer r.release(nodeID)

	r.mu.Lock()
	node := r.plan.Nodes[nodeID]
	state := r.plan.StateFor(nodeID)
	if node == nil || state == nil {
		r.mu.Unlock()
		return
	}
	if !state.Transition(model.NodeRunning) {
		r.mu.Unlock()
		return
	}
	state.BeginAttempt(r.engine.now())
	attempt := state.Attempts
	startPhase := state.Phase
	r.persistLocked()
	r.mu.Unlock()

	log := r.log.WithNode(nodeID)
	nodeLog, err := logging.OpenNodeLog(r.engine.nodeLogDir, r.plan.ID, nodeID, attempt)
	if err != nil {
		log.Warn("failed to open node log", "error", err)
		nodeLog = nil
	} else {
		defer nodeLog.Close()
	}

	attemptStart := r.engine.now()
	var attemptMetrics []*model.UsageMetrics
	var failure error
	healed := false

	for _, phase := range model.PipelineFrom(startPhase) {
		if r.ctx.Err() != nil {
			failure = errors.NewPhaseError("plan canceled", errors.ErrPhaseCanceled).
				WithNodeID(nodeID).WithPhase(string(phase))
			break
		}

		r.setPhase(nodeID, phase)
		log.WithPhase(string(phase)).Debug("phase starting")

		m, err := r.executePhase(node, phase, nodeLog)
		if m != nil {
			attemptMetrics = append(attemptMetrics, m)
		}
		if err == nil {
			continue
		}

		// One self-repair pass, unless the spec opted out, validation
		// failed (nothing to repair), or the plan is being canceled.
		if r.healable(node, phase, err) && !healed {
			healed = true
			log.WithPhase(string(phase)).Info("attempting auto-heal pass")
			if nodeLog != nil {
				nodeLog.Append(string(phase), "WARN", "phase failed, attempting auto-heal: "+err.Error())
			}
			healMetrics, healErr := r.executePhase(node, phase, nodeLog)
			if healMetrics != nil {
				attemptMetrics = append(attemptMetrics, healMetrics)
			}
			if healErr == nil {
				continue
			}
			err = healErr
		}

		failure = err
		break
	}

	r.finishAttempt(nodeID, attempt, attemptStart, attemptMetrics, failure)
}

// healable reports whether a phase failure qualifies for the single
// auto-heal pass: only spec phases, only when the node and the failing
// spec allow it, and never for validation failures or cancellation.
func (r *planRun) healable(node *model.Node, phase model.NodePhase, err error) bool {
	spec := node.SpecFor(phase)
	if spec == nil {
		return false
	}
	if !node.AutoHeal || !spec.AutoHealAllowed() {
		return false
	}
	if errors.Is(err, errors.ErrEvidenceMissing) || errors.Is(err, errors.ErrPhaseCanceled) {
		return false
	}
	var validation *errors.ValidationError
	return !errors.As(err, &validation)
}

// setPhase stamps and persists the node's current phase.
func (r *planRun) setPhase(nodeID string, phase model.NodePhase) {
	r.mu.Lock()
	if state := r.plan.StateFor(nodeID); state != nil {
		state.Phase = phase
		state.Version++
		r.persistLocked()
	}
	r.mu.Unlock()
}

// finishAttempt records the attempt outcome and moves the node to its
// terminal (or canceled) status. Failures never escape to the scheduler;
// they land in the attempt history where a retry can inspect them.
func (r *planRun) finishAttempt(nodeID string, attempt int, started time.Time, attemptMetrics []*model.UsageMetrics, failure error) {
	now := r.engine.now()

	r.mu.Lock()
	defer func() {
		r.persistLocked()
		r.mu.Unlock()
		r.wakeUp()
	}()

	state := r.plan.StateFor(nodeID)
	if state == nil {
		return
	}

	// Fold the node's code-change diff into the attempt metrics.
	if state.CompletedCommit != "" && state.BaseCommit != "" && state.CompletedCommit != state.BaseCommit {
		if stats, err := r.git.DiffStats(state.BaseCommit, state.CompletedCommit); err == nil {
			attemptMetrics = append(attemptMetrics, &model.UsageMetrics{
				LinesAdded:   model.Int64Ptr(int64(stats.LinesAdded)),
				LinesRemoved: model.Int64Ptr(int64(stats.LinesRemoved)),
			})
		}
	}

	record := model.AttemptRecord{
		AttemptNumber: attempt,
		StartedAt:     started,
		EndedAt:       &now,
		Metrics:       metrics.Aggregate(attemptMetrics),
	}

	switch {
	case failure == nil:
		record.Status = model.NodeSucceeded
		state.RecordAttempt(record)
		state.Transition(model.NodeSucceeded)
		state.EndedAt = &now
		r.log.WithNode(nodeID).Info("node succeeded", "attempt", attempt)

	case errors.Is(failure, errors.ErrPhaseCanceled):
		record.Status = model.NodeCanceled
		record.Error = failure.Error()
		state.RecordAttempt(record)
		state.Transition(model.NodeCanceled)
		state.EndedAt = &now
		r.log.WithNode(nodeID).Info("node canceled", "attempt", attempt)

	default:
		record.Status = model.NodeFailed
		record.Error = failure.Error()
		state.RecordAttempt(record)
		state.Transition(model.NodeFailed)
		state.EndedAt = &now
		r.log.WithNode(nodeID).Error("node failed", "attempt", attempt, "error", failure)
	}
}

// executePhase dispatches one pipeline phase.
func (r *planRun) executePhase(node *model.Node, phase model.NodePhase, nodeLog *logging.NodeLog) (*model.UsageMetrics, error) {
	switch phase {
	case model.PhaseMergeFI:
		return nil, r.phaseMergeFI(node)
	case model.PhaseSetup:
		return nil, r.phaseSetup(node)
	case model.PhasePrechecks, model.PhaseWork, model.PhasePostchecks:
		return r.phaseSpec(node, phase, nodeLog)
	case model.PhaseCommit:
		return nil, r.phaseCommit(node)
	case model.PhaseMergeRI:
		return nil, r.phaseMergeRI(node)
	case model.PhaseCleanup:
		return nil, r.phaseCleanup(node)
	default:
		return nil, errors.NewPhaseError(fmt.Sprintf("unknown phase %q", phase), nil).
			WithNodeID(node.ID)
	}
}

// -----------------------------------------------------------------------------
// Phases
// -----------------------------------------------------------------------------

// phaseMergeFI roots the node's worktree at its best available upstream
// commit. The base commit is the first dependency's merge source with the
// remaining sources merged in, or the plan's base branch for a root node.
// A dependency that produced nothing contributes its own base commit, so
// chains of no-op nodes still carry real upstream work forward.
func (r *planRun) phaseMergeFI(node *model.Node) error {
	r.mu.Lock()
	state := r.plan.StateFor(node.ID)
	existingPath := state.WorktreePath
	var sources []string
	for _, dep := range node.Dependencies {
		if depState := r.plan.StateFor(dep); depState != nil {
			if src := depState.MergeSource(); src != "" {
				sources = append(sources, src)
			}
		}
	}
	baseBranch := r.plan.Spec.BaseBranch
	r.mu.Unlock()

	// Reuse a surviving worktree from a previous attempt.
	if existingPath != "" {
		if _, err := os.Stat(existingPath); err == nil {
			if head, err := r.git.HeadCommit(existingPath); err == nil {
				r.mu.Lock()
				if state.BaseCommit == "" {
					state.BaseCommit = head
					state.Version++
				}
				r.persistLocked()
				r.mu.Unlock()
				return nil
			}
		}
	}

	primary := ""
	if len(sources) > 0 {
		primary = sources[0]
	} else {
		resolved, err := r.git.ResolveRef(baseBranch)
		if err != nil {
			return errors.NewPhaseError("failed to resolve base branch", err).
				WithNodeID(node.ID).WithPhase(string(model.PhaseMergeFI))
		}
		primary = resolved
	}

	branch := r.nodeBranch(node)
	path := r.nodeWorktreePath(node)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewPhaseError("failed to create worktree root", err).
			WithNodeID(node.ID).WithPhase(string(model.PhaseMergeFI))
	}

	r.refMu.Lock()
	if r.git.BranchExists(branch) {
		// Leftover from an attempt whose worktree was cleaned up.
		_ = r.git.DeleteBranch(branch)
	}
	err := r.git.AddWorktree(path, branch, primary)
	r.refMu.Unlock()
	if err != nil {
		return errors.NewPhaseError("failed to create worktree", err).
			WithNodeID(node.ID).WithPhase(string(model.PhaseMergeFI))
	}

	// Fold in the remaining upstream sources.
	if len(sources) > 1 {
		for _, src := range sources[1:] {
			if err := r.git.Merge(path, src); err != nil {
				return err
			}
		}
	}

	head, err := r.git.HeadCommit(path)
	if err != nil {
		return errors.NewPhaseError("failed to resolve worktree head", err).
			WithNodeID(node.ID).WithPhase(string(model.PhaseMergeFI))
	}

	r.mu.Lock()
	state.WorktreePath = path
	state.BaseCommit = head
	state.Version++
	r.persistLocked()
	r.mu.Unlock()
	return nil
}

// phaseSetup prepares the worktree for the work specs: the evidence
// document must never become part of the integrated result, so it is
// excluded repo-locally rather than through a tracked ignore file.
func (r *planRun) phaseSetup(node *model.Node) error {
	path := r.worktreePath(node.ID)
	if path == "" {
		return errors.NewPhaseError("node has no worktree", errors.ErrWorktreeNotFound).
			WithNodeID(node.ID).WithPhase(string(model.PhaseSetup))
	}
	if err := r.git.EnsureIgnored(path, evidence.FileName); err != nil {
		return errors.NewPhaseError("failed to exclude evidence file", err).
			WithNodeID(node.ID).WithPhase(string(model.PhaseSetup))
	}
	return nil
}

// phaseSpec runs the phase's work spec, if the node carries one, and for
// the work phase validates that the node actually produced something.
func (r *planRun) phaseSpec(node *model.Node, phase model.NodePhase, nodeLog *logging.NodeLog) (*model.UsageMetrics, error) {
	spec := node.SpecFor(phase)
	if spec == nil {
		return nil, nil
	}

	// Never run a spec outside a worktree: an empty dir would resolve to
	// the process working directory, i.e. the shared checkout.
	path := r.worktreePath(node.ID)
	if path == "" {
		return nil, errors.NewPhaseError("node has no worktree", errors.ErrWorktreeNotFound).
			WithNodeID(node.ID).WithPhase(string(phase))
	}
	result, err := r.engine.runner.Run(r.ctx, RunRequest{
		Spec:    spec,
		Dir:     path,
		Phase:   phase,
		NodeLog: nodeLog,
	})

	var m *model.UsageMetrics
	if result != nil {
		m = result.Metrics
	}
	if err != nil {
		if phaseErr, ok := err.(*errors.PhaseError); ok {
			phaseErr.WithNodeID(node.ID)
		}
		return m, err
	}

	if phase == model.PhaseWork {
		if err := r.validateWork(node, path); err != nil {
			return m, err
		}
	}
	return m, nil
}

// validateWork accepts a work phase that changed files, committed work,
// or produced valid evidence. A node that did none of those fails
// validation, and validation failures skip auto-heal because there is
// nothing to repair.
func (r *planRun) validateWork(node *model.Node, path string) error {
	r.mu.Lock()
	base := r.plan.StateFor(node.ID).BaseCommit
	r.mu.Unlock()

	if changed, err := r.git.HasUncommittedChanges(path); err == nil && changed {
		return nil
	}
	if head, err := r.git.HeadCommit(path); err == nil && head != base {
		return nil
	}

	result := evidence.Validate(path, node.ExpectsNoChanges)
	if result.Valid {
		return nil
	}
	return errors.NewValidationError("no file changes and no evidence document", errors.ErrEvidenceMissing).
		WithNodeID(node.ID).
		WithMethod(string(result.Method))
}

// phaseCommit captures the node's result as a commit. Nothing new to
// commit is not a failure: an existing completed commit is preserved,
// and a node with no result at all falls back to its base commit at
// merge time. An existing completed commit is never overwritten by the
// absence of new work.
func (r *planRun) phaseCommit(node *model.Node) error {
	path := r.worktreePath(node.ID)
	if path == "" {
		return nil
	}

	changed, err := r.git.HasUncommittedChanges(path)
	if err != nil {
		return errors.NewPhaseError("failed to inspect worktree", err).
			WithNodeID(node.ID).WithPhase(string(model.PhaseCommit))
	}
	if changed {
		if err := r.git.StageAll(path); err != nil {
			return errors.NewPhaseError("failed to stage result", err).
				WithNodeID(node.ID).WithPhase(string(model.PhaseCommit))
		}
		message := fmt.Sprintf("%s: %s", node.ProducerID, node.Name)
		if _, err := r.git.Commit(path, message); err != nil {
			return errors.NewPhaseError("failed to commit result", err).
				WithNodeID(node.ID).WithPhase(string(model.PhaseCommit))
		}
	}

	head, err := r.git.HeadCommit(path)
	if err != nil {
		return errors.NewPhaseError("failed to resolve result commit", err).
			WithNodeID(node.ID).WithPhase(string(model.PhaseCommit))
	}

	r.mu.Lock()
	state := r.plan.StateFor(node.ID)
	if head != state.BaseCommit {
		state.CompletedCommit = head
		state.Version++
	}
	r.persistLocked()
	r.mu.Unlock()
	return nil
}

// phaseMergeRI reverse-integrates a leaf node's result into the target
// branch. The decision is diff-gated: any leaf whose merge source
// differs from the target tip merges, no matter which ancestor produced
// the difference. Ref mutations are serialized per plan.
func (r *planRun) phaseMergeRI(node *model.Node) error {
	r.mu.Lock()
	isLeaf := r.plan.IsLeafNode(node.ID)
	target := r.plan.Spec.TargetBranch
	state := r.plan.StateFor(node.ID)
	completed, base := state.CompletedCommit, state.BaseCommit
	planName := r.plan.Spec.Name
	r.mu.Unlock()

	if !isLeaf || target == "" {
		return nil
	}

	source := completed
	if source == "" {
		source = base
	}
	if source == "" {
		// Isolated validation-only node with no ancestors: nothing to
		// contribute, resolved as merged.
		r.log.WithNode(node.ID).Debug("reverse integration skipped, no merge source")
		return nil
	}

	r.refMu.Lock()
	defer r.refMu.Unlock()

	targetTip, err := r.git.ResolveRef(target)
	if errors.Is(err, errors.ErrRefNotFound) {
		// First result to arrive creates the target branch.
		if err := r.git.CreateBranch(target, source); err != nil {
			return err
		}
		r.log.WithNode(node.ID).Info("created target branch", "branch", target)
		return nil
	}
	if err != nil {
		return err
	}

	hasDiff, err := r.git.HasDiff(targetTip, source)
	if err != nil {
		return err
	}

	decision := DecideReverseIntegration(isLeaf, target, completed, base, hasDiff)
	if decision.Outcome != RIMerge {
		r.log.WithNode(node.ID).Debug("reverse integration resolved without merge",
			"outcome", string(decision.Outcome))
		return nil
	}

	mergeCommit, err := FinalMerge(r.git, target, decision.Source, planName+"/"+node.ProducerID)
	if err != nil {
		return err
	}
	r.log.WithNode(node.ID).Info("reverse integration merged",
		"branch", target, "commit", mergeCommit)
	return nil
}

// phaseCleanup removes the node's worktree when the plan opted in to
// eager cleanup. Failures are logged, never fatal.
func (r *planRun) phaseCleanup(node *model.Node) error {
	r.mu.Lock()
	cleanup := r.plan.Spec.CleanUpSuccessfulWork
	state := r.plan.StateFor(node.ID)
	path := state.WorktreePath
	r.mu.Unlock()

	if !cleanup || path == "" {
		return nil
	}

	if err := r.git.RemoveWorktree(path); err != nil {
		r.log.WithNode(node.ID).Warn("failed to remove worktree", "path", path, "error", err)
		return nil
	}
	_ = r.git.PruneWorktrees()

	r.mu.Lock()
	state.WorktreePath = ""
	state.Version++
	r.persistLocked()
	r.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// worktreePath reads a node's worktree path under the plan lock.
func (r *planRun) worktreePath(nodeID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state := r.plan.StateFor(nodeID); state != nil {
		return state.WorktreePath
	}
	return ""
}

// nodeBranch is the branch a node's worktree lives on.
func (r *planRun) nodeBranch(node *model.Node) string {
	return fmt.Sprintf("plandeck/%s/%s", shortID(r.plan.ID), node.ProducerID)
}

// nodeWorktreePath is where a node's worktree is created.
func (r *planRun) nodeWorktreePath(node *model.Node) string {
	return filepath.Join(r.plan.WorktreeRoot, shortID(r.plan.ID)+"-"+node.ProducerID)
}

// shortID shortens a plan id for branch and path names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
