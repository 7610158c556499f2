// Package engine drives plan execution: it builds plan instances from
// specs, schedules ready nodes under parallelism limits, runs each node
// through its phase pipeline inside an isolated worktree, and persists
// every state transition so a crashed process resumes where it stopped.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plandeck/plandeck/internal/config"
	"github.com/plandeck/plandeck/internal/engine/capacity"
	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/gitops"
	"github.com/plandeck/plandeck/internal/graph"
	"github.com/plandeck/plandeck/internal/lifecycle"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/model"
	"github.com/plandeck/plandeck/internal/store"
)

// Options configures an Engine.
type Options struct {
	// Store persists plan state. Required.
	Store *store.Store

	// Config supplies scheduling and runner settings. Nil means defaults.
	Config *config.Config

	// Log is the structured engine log. Nil means no logging.
	Log *logging.Logger

	// Runner executes work specs. Nil means an ExecRunner built from
	// the configuration.
	Runner Runner

	// Capacity is the optional global slot pool. Nil means unlimited.
	Capacity *capacity.Manager

	// GitFactory creates the git client for a repository. Nil means the
	// CLI client.
	GitFactory func(repoPath string) gitops.Git

	// NodeLogDir is where per-node log files are written.
	NodeLogDir string
}

// Engine owns every in-memory plan and its scheduling loop.
type Engine struct {
	store      *store.Store
	cfg        *config.Config
	log        *logging.Logger
	runner     Runner
	capacity   *capacity.Manager
	gitFactory func(repoPath string) gitops.Git
	nodeLogDir string
	lifecycle  *lifecycle.Manager
	now        func() time.Time

	mu   sync.RWMutex
	runs map[string]*planRun
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine requires a store")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = logging.NopLogger()
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner(cfg.Agent.Command, cfg.Agent.DefaultModel, cfg.Shell.DefaultDialect)
	}
	gitFactory := opts.GitFactory
	if gitFactory == nil {
		gitFactory = func(repoPath string) gitops.Git { return gitops.NewClient(repoPath) }
	}

	return &Engine{
		store:      opts.Store,
		cfg:        cfg,
		log:        log,
		runner:     runner,
		capacity:   opts.Capacity,
		gitFactory: gitFactory,
		nodeLogDir: opts.NodeLogDir,
		lifecycle:  lifecycle.NewManager(opts.NodeLogDir, log),
		now:        time.Now,
		runs:       make(map[string]*planRun),
	}, nil
}

// Enqueue validates a plan spec, builds its graph, and persists the new
// plan instance in pending state. It does not start execution.
func (e *Engine) Enqueue(spec *model.PlanSpec, repoPath string) (*model.PlanInstance, error) {
	git := e.gitFactory(repoPath)
	if !git.IsRepository(repoPath) {
		return nil, errors.NewGitError("not a git repository", errors.ErrNotGitRepository).
			WithRepository(repoPath)
	}
	if spec.BaseBranch == "" {
		return nil, errors.NewGraphError("plan spec has no base branch", errors.ErrEmptyPlan).
			WithPlanName(spec.Name)
	}

	built, err := graph.Build(spec)
	if err != nil {
		return nil, err
	}

	plan := &model.PlanInstance{
		ID:                 uuid.NewString(),
		Spec:               *spec,
		Nodes:              built.Nodes,
		ProducerIDToNodeID: built.ProducerIDToNodeID,
		Roots:              built.Roots,
		Leaves:             built.Leaves,
		Groups:             built.Groups,
		GroupPathToID:      built.GroupPathToID,
		GroupStates:        make(map[string]*model.GroupExecutionState, len(built.Groups)),
		NodeStates:         make(map[string]*model.NodeExecutionState, len(built.Nodes)),
		RepoPath:           repoPath,
		WorktreeRoot:       e.cfg.WorktreeDir(repoPath),
		CreatedAt:          e.now(),
	}
	for id := range built.Nodes {
		plan.NodeStates[id] = &model.NodeExecutionState{NodeID: id, Status: model.NodePending}
	}
	for id := range built.Groups {
		plan.GroupStates[id] = &model.GroupExecutionState{GroupID: id, Status: model.NodePending}
	}

	if err := e.store.Save(plan); err != nil {
		return nil, err
	}

	run := newPlanRun(e, plan, git)
	e.mu.Lock()
	e.runs[plan.ID] = run
	e.mu.Unlock()

	e.log.WithPlan(plan.ID).Info("plan enqueued",
		"name", spec.Name, "nodes", len(plan.Nodes), "base_branch", spec.BaseBranch)
	return e.snapshot(run), nil
}

// Start begins (or resumes) executing a plan's scheduling loop.
func (e *Engine) Start(planID string) error {
	run, err := e.run(planID)
	if err != nil {
		return err
	}
	run.start()
	return nil
}

// Wait blocks until the plan's scheduling loop finishes or ctx is done.
func (e *Engine) Wait(ctx context.Context, planID string) error {
	run, err := e.run(planID)
	if err != nil {
		return err
	}
	select {
	case <-run.doneCh():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore loads every stored plan and resumes the ones that were active
// when the previous process stopped. Nodes crashed mid-pipeline restart
// at their persisted phase.
func (e *Engine) Restore() error {
	plans, err := e.store.LoadAll()
	if err != nil {
		return err
	}

	for _, plan := range plans {
		if recovered := recoverInFlight(plan); recovered > 0 {
			plan.Touch()
			if err := e.store.Save(plan); err != nil {
				e.log.WithPlan(plan.ID).Error("failed to persist recovered state", "error", err)
			}
			e.log.WithPlan(plan.ID).Info("re-queued nodes interrupted by restart", "nodes", recovered)
		}

		run := newPlanRun(e, plan, e.gitFactory(plan.RepoPath))
		e.mu.Lock()
		e.runs[plan.ID] = run
		e.mu.Unlock()

		status := plan.Status()
		if status == model.PlanRunning || status == model.PlanPending && plan.StartedAt != nil {
			e.log.WithPlan(plan.ID).Info("resuming plan after restart", "status", string(status))
			run.start()
		}
	}
	return nil
}

// recoverInFlight re-queues nodes a stopped process left scheduled or
// running. The persisted phase is kept, so the pipeline resumes at the
// interrupted phase instead of redoing finished work.
func recoverInFlight(plan *model.PlanInstance) int {
	n := 0
	for _, state := range plan.NodeStates {
		if state.Status.IsActive() && state.Transition(model.NodeReady) {
			n++
		}
	}
	return n
}

// Snapshot returns a consistent deep copy of a plan's state. External
// readers never observe a partially mutated instance.
func (e *Engine) Snapshot(planID string) (*model.PlanInstance, error) {
	run, err := e.run(planID)
	if err != nil {
		// Fall back to a stored plan the engine is not holding.
		plan, loadErr := e.store.Load(planID)
		if loadErr == nil && plan != nil {
			return plan, nil
		}
		return nil, err
	}
	return e.snapshot(run), nil
}

// List returns index entries for every stored plan, newest first.
func (e *Engine) List() ([]store.IndexEntry, error) {
	return e.store.List()
}

// Cancel stops a plan: running nodes are interrupted, pending and ready
// nodes move to canceled, and no new nodes are admitted. Already merged
// work is not undone.
func (e *Engine) Cancel(planID string) error {
	run, err := e.run(planID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	for _, state := range run.plan.NodeStates {
		switch state.Status {
		case model.NodePending, model.NodeReady, model.NodePaused:
			state.Transition(model.NodeCanceled)
			now := e.now()
			state.EndedAt = &now
		}
	}
	run.plan.IsPaused = false
	run.persistLocked()
	run.mu.Unlock()

	run.cancel()
	run.wakeUp()
	e.log.WithPlan(planID).Info("plan canceled")
	return nil
}

// Pause suspends a plan: pending and ready nodes move to paused and no
// new nodes are admitted. In-flight phases finish.
func (e *Engine) Pause(planID string) error {
	run, err := e.run(planID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	run.plan.IsPaused = true
	for _, state := range run.plan.NodeStates {
		switch state.Status {
		case model.NodePending, model.NodeReady:
			state.Transition(model.NodePaused)
		}
	}
	run.persistLocked()
	run.mu.Unlock()

	e.log.WithPlan(planID).Info("plan paused")
	return nil
}

// Resume re-enables admission after a pause. Paused nodes return to
// pending and re-enter the ready-set computation.
func (e *Engine) Resume(planID string) error {
	run, err := e.run(planID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	run.plan.IsPaused = false
	for _, state := range run.plan.NodeStates {
		if state.Status == model.NodePaused {
			state.Transition(model.NodePending)
		}
	}
	run.persistLocked()
	run.mu.Unlock()

	run.start()
	run.wakeUp()
	e.log.WithPlan(planID).Info("plan resumed")
	return nil
}

// Retry re-queues a failed, blocked, or canceled node. Execution resumes
// from the failing spec's configured resume phase, defaulting to
// prechecks, and the node's dependents unblock for re-evaluation.
func (e *Engine) Retry(planID, producerID string) error {
	run, err := e.run(planID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	node := run.plan.NodeByProducerID(producerID)
	if node == nil {
		run.mu.Unlock()
		return errors.NewNotFoundError("node", producerID)
	}
	state := run.plan.StateFor(node.ID)

	switch state.Status {
	case model.NodeFailed, model.NodeCanceled, model.NodeBlocked:
	default:
		run.mu.Unlock()
		return errors.NewValidationError("node is not in a retryable status", errors.ErrIllegalTransition).
			WithNodeID(node.ID)
	}

	state.Transition(model.NodePending)
	state.Phase = retryPhase(node, state)
	state.EndedAt = nil
	state.Error = ""

	// Blocked dependents re-enter the ready-set computation.
	unblockDependents(run.plan, node.ID)

	run.persistLocked()
	run.mu.Unlock()

	run.start()
	run.wakeUp()
	e.log.WithPlan(planID).WithNode(node.ID).Info("node retry requested", "producer_id", producerID)
	return nil
}

// Delete removes a plan entirely: worktrees, logs, stored document, and
// the in-memory run. Deleting an unknown plan returns a typed not-found.
func (e *Engine) Delete(planID string) error {
	run, runErr := e.run(planID)
	if runErr != nil {
		// The plan may exist on disk without a live run.
		plan, err := e.store.Load(planID)
		if err != nil || plan == nil {
			return errors.NewNotFoundError("plan", planID)
		}
		e.lifecycle.Release(e.gitFactory(plan.RepoPath), plan)
		return e.store.Delete(planID)
	}

	run.cancel()
	select {
	case <-run.doneCh():
	case <-time.After(5 * time.Second):
		e.log.WithPlan(planID).Warn("timed out waiting for scheduling loop before delete")
	}

	e.mu.Lock()
	delete(e.runs, planID)
	e.mu.Unlock()

	run.mu.Lock()
	e.lifecycle.Release(run.git, run.plan)
	run.mu.Unlock()

	if err := e.store.Delete(planID); err != nil {
		return err
	}
	e.log.WithPlan(planID).Info("plan deleted")
	return nil
}

// run resolves a live plan run, with a typed not-found for unknown ids.
func (e *Engine) run(planID string) (*planRun, error) {
	e.mu.RLock()
	run, ok := e.runs[planID]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("plan", planID)
	}
	return run, nil
}

// snapshot deep-copies a run's plan under its lock.
func (e *Engine) snapshot(run *planRun) *model.PlanInstance {
	run.mu.Lock()
	defer run.mu.Unlock()
	return clonePlan(run.plan)
}

// clonePlan deep-copies a plan instance through its JSON form.
func clonePlan(plan *model.PlanInstance) *model.PlanInstance {
	data, err := json.Marshal(plan)
	if err != nil {
		return plan
	}
	var out model.PlanInstance
	if err := json.Unmarshal(data, &out); err != nil {
		return plan
	}
	return &out
}

// retryPhase picks the phase a manual retry resumes from: the failing
// spec's configured resume phase when set, otherwise prechecks. A node
// that failed before its worktree existed restarts at merge-fi, since
// every later phase assumes an isolated workspace.
func retryPhase(node *model.Node, state *model.NodeExecutionState) model.NodePhase {
	if state.WorktreePath == "" || state.Phase.Index() < model.PhasePrechecks.Index() {
		return model.PhaseMergeFI
	}
	if spec := node.SpecFor(state.Phase); spec != nil {
		return spec.ResumePhase()
	}
	return model.PhasePrechecks
}

// unblockDependents returns blocked downstream nodes to pending so the
// ready-set computation reconsiders them.
func unblockDependents(plan *model.PlanInstance, nodeID string) {
	node := plan.Nodes[nodeID]
	if node == nil {
		return
	}
	for _, depID := range node.Dependents {
		state := plan.StateFor(depID)
		if state != nil && state.Status == model.NodeBlocked {
			state.Transition(model.NodePending)
			state.EndedAt = nil
			unblockDependents(plan, depID)
		}
	}
}
