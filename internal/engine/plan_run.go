package engine

import (
	"context"
	"sync"
	"time"

	"github.com/plandeck/plandeck/internal/gitops"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/model"
)

// planRun couples a plan instance with its scheduling loop. The plan is
// mutated only under mu; the loop is the single writer for scheduling
// decisions, node pipelines take the lock for each transition, and
// readers clone under the same lock.
type planRun struct {
	engine *Engine
	plan   *model.PlanInstance
	git    gitops.Git
	log    *logging.Logger

	// mu guards plan.
	mu sync.Mutex

	// refMu serializes repo-level ref mutations (branch updates,
	// reverse-integration merges) across this plan's nodes.
	refMu sync.Mutex

	// wake nudges the loop to recompute the ready set.
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// loopRunning guards against concurrent scheduling loops. Guarded
	// by mu, like done.
	loopRunning bool
	done        chan struct{}

	// running tracks node ids currently holding a scheduling slot.
	running map[string]struct{}
}

func newPlanRun(e *Engine, plan *model.PlanInstance, git gitops.Git) *planRun {
	ctx, cancel := context.WithCancel(context.Background())
	// With no loop running the plan counts as settled, so waiters on a
	// never-started plan return immediately.
	done := make(chan struct{})
	close(done)
	return &planRun{
		engine:  e,
		plan:    plan,
		git:     git,
		log:     e.log.WithPlan(plan.ID),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    done,
		running: make(map[string]struct{}),
	}
}

// doneCh returns the current settle channel.
func (r *planRun) doneCh() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// start launches the scheduling loop if one is not already running. A
// retry on a finished plan gets a fresh loop and a fresh context.
func (r *planRun) start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loopRunning || !activeWork(r.plan) {
		return
	}
	if r.ctx.Err() != nil {
		r.ctx, r.cancel = context.WithCancel(context.Background())
	}
	r.loopRunning = true
	done := make(chan struct{})
	r.done = done
	go r.loop(done)
}

// activeWork reports whether any node could still make progress.
func activeWork(plan *model.PlanInstance) bool {
	for _, st := range plan.NodeStates {
		switch st.Status {
		case model.NodePending, model.NodeReady, model.NodeScheduled, model.NodeRunning:
			return true
		}
	}
	return false
}

// wakeUp nudges the loop without blocking.
func (r *planRun) wakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// loop is the plan's single logical scheduling loop: promote nodes whose
// dependencies resolved, admit ready nodes up to the parallelism limits,
// and finalize once every node is terminal.
func (r *planRun) loop(done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.loopRunning = false
		r.mu.Unlock()
		close(done)
	}()
	r.log.Info("scheduling loop started")

	for {
		if r.ctx.Err() != nil {
			r.drainRunning()
			r.finalize()
			return
		}

		r.admit()

		r.mu.Lock()
		status := r.plan.Status()
		idle := len(r.running) == 0
		r.mu.Unlock()

		if idle && (status.IsTerminal() || status == model.PlanPaused) {
			r.finalize()
			return
		}

		select {
		case <-r.wake:
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

// admit promotes and launches nodes under the plan's max-parallel limit
// and the engine's global capacity pool.
func (r *planRun) admit() {
	r.mu.Lock()
	promoted := promoteReady(r.plan)

	if r.plan.IsPaused {
		if promoted > 0 {
			r.persistLocked()
		}
		r.mu.Unlock()
		return
	}

	limit := r.plan.Spec.MaxParallel
	if limit <= 0 {
		limit = r.engine.cfg.Engine.DefaultMaxParallel
	}

	var launched []string
	for id, state := range r.plan.NodeStates {
		if state.Status != model.NodeReady {
			continue
		}
		if len(r.running)+len(launched) >= limit {
			break
		}
		if !r.engine.capacity.TryAcquire() {
			// No global slot. Not an error: admission defers to the
			// next pass.
			break
		}
		state.Transition(model.NodeScheduled)
		if r.plan.StartedAt == nil {
			now := r.engine.now()
			r.plan.StartedAt = &now
		}
		launched = append(launched, id)
	}

	for _, id := range launched {
		r.running[id] = struct{}{}
	}
	if len(launched) > 0 || promoted > 0 {
		r.persistLocked()
	}
	r.mu.Unlock()

	for _, id := range launched {
		go r.runNode(id)
	}
}

// promoteReady advances dependency-resolved pending nodes to ready and
// blocks nodes downstream of terminal failures. Returns the number of
// nodes it moved.
func promoteReady(plan *model.PlanInstance) int {
	changed := 0
	for id, state := range plan.NodeStates {
		if state.Status != model.NodePending {
			continue
		}
		node := plan.Nodes[id]
		if node == nil {
			continue
		}

		ready := true
		doomed := false
		for _, dep := range node.Dependencies {
			depState := plan.StateFor(dep)
			if depState == nil {
				doomed = true
				break
			}
			switch depState.Status {
			case model.NodeSucceeded:
			case model.NodeFailed, model.NodeCanceled, model.NodeBlocked:
				doomed = true
			default:
				ready = false
			}
			if doomed {
				break
			}
		}

		if doomed {
			if state.Transition(model.NodeBlocked) {
				changed++
			}
		} else if ready {
			if state.Transition(model.NodeReady) {
				changed++
			}
		}
	}
	return changed
}

// release returns a node's scheduling slot and nudges the loop.
func (r *planRun) release(nodeID string) {
	r.mu.Lock()
	delete(r.running, nodeID)
	r.mu.Unlock()
	r.engine.capacity.Release()
	r.wakeUp()
}

// drainRunning waits for in-flight nodes to observe cancellation.
func (r *planRun) drainRunning() {
	for {
		r.mu.Lock()
		n := len(r.running)
		r.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-r.wake:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// finalize stamps the end time, refreshes derived state, and persists.
func (r *planRun) finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.plan.Status()
	if status.IsTerminal() && r.plan.EndedAt == nil {
		now := r.engine.now()
		r.plan.EndedAt = &now
	}
	refreshGroupStates(r.plan, r.engine.now())
	r.plan.WorkSummary = ComputeWorkSummary(r.git, r.plan)
	r.persistLocked()
	r.log.Info("scheduling loop finished", "status", string(status))
}

// persistLocked bumps the state version and saves. Callers hold mu.
func (r *planRun) persistLocked() {
	r.plan.Touch()
	if err := r.engine.store.Save(r.plan); err != nil {
		r.log.Error("failed to persist plan state", "error", err)
	}
}

// refreshGroupStates rederives every group's status from its members.
func refreshGroupStates(plan *model.PlanInstance, now time.Time) {
	for id, group := range plan.Groups {
		groupState := plan.GroupStates[id]
		if groupState == nil {
			groupState = &model.GroupExecutionState{GroupID: id}
			plan.GroupStates[id] = groupState
		}

		states := make([]*model.NodeExecutionState, 0, len(group.NodeIDs))
		for _, nodeID := range group.NodeIDs {
			if st := plan.StateFor(nodeID); st != nil {
				states = append(states, st)
			}
		}

		derived := model.DeriveGroupStatus(states)
		if derived != groupState.Status {
			groupState.Status = derived
			groupState.Version++
		}
		if groupState.StartedAt == nil {
			for _, st := range states {
				if st.StartedAt != nil && (groupState.StartedAt == nil || st.StartedAt.Before(*groupState.StartedAt)) {
					groupState.StartedAt = st.StartedAt
				}
			}
		}
		if derived.IsTerminal() && groupState.EndedAt == nil {
			t := now
			groupState.EndedAt = &t
		}
	}
}
