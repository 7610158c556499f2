package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/gitops"
	"github.com/plandeck/plandeck/internal/model"
)

// fakeGit is an in-memory gitops.Git. Commits are opaque sequential ids;
// a worktree's head advances whenever something is committed or merged
// into it.
type fakeGit struct {
	mu        sync.Mutex
	refs      map[string]string
	heads     map[string]string
	dirty     map[string]bool
	commitSeq int

	createdBranches  []string
	removedWorktrees []string

	// conflict forces merge-tree results to report conflicts.
	conflict bool
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		refs:  map[string]string{"main": "base0"},
		heads: make(map[string]string),
		dirty: make(map[string]bool),
	}
}

func (f *fakeGit) newCommit() string {
	f.commitSeq++
	return fmt.Sprintf("commit%d", f.commitSeq)
}

func (f *fakeGit) setDirty(path string) {
	f.mu.Lock()
	f.dirty[path] = true
	f.mu.Unlock()
}

func (f *fakeGit) ref(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[name]
}

// ---- BranchOperations ----

func (f *fakeGit) CreateBranch(name, startPoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[name] = startPoint
	f.createdBranches = append(f.createdBranches, name)
	return nil
}

func (f *fakeGit) DeleteBranch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refs, name)
	return nil
}

func (f *fakeGit) BranchExists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.refs[name]
	return ok
}

func (f *fakeGit) CurrentBranch(path string) (string, error) { return "", nil }

func (f *fakeGit) MergeBase(a, b string) (string, error) { return "base0", nil }

// ---- WorktreeOperations ----

func (f *fakeGit) AddWorktree(path, branch, commit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads[path] = commit
	f.refs[branch] = commit
	return nil
}

func (f *fakeGit) HeadCommit(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	head, ok := f.heads[path]
	if !ok {
		return "", errors.NewGitError("no such worktree", errors.ErrWorktreeNotFound)
	}
	return head, nil
}

func (f *fakeGit) RemoveWorktree(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.heads, path)
	f.removedWorktrees = append(f.removedWorktrees, path)
	return nil
}

func (f *fakeGit) ListWorktrees() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.heads))
	for path := range f.heads {
		paths = append(paths, path)
	}
	return paths, nil
}

func (f *fakeGit) PruneWorktrees() error { return nil }

// ---- MergeOperations ----

func (f *fakeGit) Merge(path, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflict {
		return errors.NewMergeConflictError("merge conflict", []string{"pkg/conflicted.go"}).
			WithSource(ref).WithTarget(path)
	}
	f.heads[path] = f.newCommit()
	return nil
}

func (f *fakeGit) MergeTree(ours, theirs string) (*gitops.MergeTreeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflict {
		return &gitops.MergeTreeResult{
			TreeID:    "tree-conflicted",
			Clean:     false,
			Conflicts: []string{"pkg/conflicted.go"},
		}, nil
	}
	return &gitops.MergeTreeResult{TreeID: "tree-" + ours + "-" + theirs, Clean: true}, nil
}

func (f *fakeGit) CommitTree(tree, message string, parents ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newCommit(), nil
}

func (f *fakeGit) AbortMerge(path string) error { return nil }

func (f *fakeGit) MergeInProgress(path string) bool { return false }

func (f *fakeGit) ConflictingFiles(path string) ([]string, error) { return nil, nil }

// ---- RepositoryOperations ----

func (f *fakeGit) IsRepository(path string) bool { return true }

func (f *fakeGit) Fetch(ref string) error { return nil }

func (f *fakeGit) Push(branch string, force bool) error { return nil }

func (f *fakeGit) StageAll(path string) error { return nil }

func (f *fakeGit) Commit(path, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty[path] {
		return "", nil
	}
	commit := f.newCommit()
	f.heads[path] = commit
	f.dirty[path] = false
	return commit, nil
}

func (f *fakeGit) ResolveRef(ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	commit, ok := f.refs[ref]
	if !ok {
		return "", errors.ErrRefNotFound
	}
	return commit, nil
}

func (f *fakeGit) UpdateBranch(branch, commit, oldCommit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if oldCommit != "" && f.refs[branch] != oldCommit {
		return errors.NewGitError("ref moved", nil).WithBranch(branch)
	}
	f.refs[branch] = commit
	return nil
}

func (f *fakeGit) HasDiff(from, to string) (bool, error) { return from != to, nil }

func (f *fakeGit) DiffStats(from, to string) (*gitops.DiffStats, error) {
	return &gitops.DiffStats{FilesChanged: 1, LinesAdded: 5, LinesRemoved: 2}, nil
}

func (f *fakeGit) CountCommits(from, to string) (int, error) { return 1, nil }

func (f *fakeGit) FileChangesBetween(from, to string) ([]gitops.FileChange, error) {
	return []gitops.FileChange{
		{Path: "pkg/added.go", Status: "A"},
		{Path: "pkg/changed.go", Status: "M"},
	}, nil
}

func (f *fakeGit) HasUncommittedChanges(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty[path], nil
}

func (f *fakeGit) StashPush(path, message string) error { return nil }

func (f *fakeGit) StashPop(path string) error { return nil }

func (f *fakeGit) EnsureIgnored(path string, patterns ...string) error { return nil }

var _ gitops.Git = (*fakeGit)(nil)

// fakeRunner pretends to execute work specs. By default a work phase
// leaves the worktree dirty so the commit phase has something to
// capture; failWork injects per-producer failures, consumed one per
// call so a heal pass or retry can observe recovery.
type fakeRunner struct {
	git *fakeGit

	mu       sync.Mutex
	calls    []string
	failWork map[string][]error

	// noChanges leaves every worktree clean after the work phase;
	// noChangesFor does the same for single producers.
	noChanges    bool
	noChangesFor map[string]bool

	// block makes work phases wait for cancellation.
	block bool
}

func newFakeRunner(git *fakeGit) *fakeRunner {
	return &fakeRunner{
		git:          git,
		failWork:     make(map[string][]error),
		noChangesFor: make(map[string]bool),
	}
}

// noChangesFrom makes the producer's work phases leave the worktree clean.
func (r *fakeRunner) noChangesFrom(producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noChangesFor[producerID] = true
}

// failNext queues an error for the producer's next work phase call.
func (r *fakeRunner) failNext(producerID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWork[producerID] = append(r.failWork[producerID], err)
}

func (r *fakeRunner) callsFor(producerID, phase string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, call := range r.calls {
		if call == producerID+"/"+phase {
			n++
		}
	}
	return n
}

// producerFromDir recovers the producer id from the worktree path, which
// the engine names <short-plan-id>-<producer-id>.
func producerFromDir(dir string) string {
	base := filepath.Base(dir)
	if i := strings.Index(base, "-"); i >= 0 {
		return base[i+1:]
	}
	return base
}

func (r *fakeRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Spec == nil {
		return &RunResult{Metrics: &model.UsageMetrics{}}, nil
	}
	producer := producerFromDir(req.Dir)

	r.mu.Lock()
	r.calls = append(r.calls, producer+"/"+string(req.Phase))
	var failure error
	if req.Phase == model.PhaseWork {
		if queue := r.failWork[producer]; len(queue) > 0 {
			failure = queue[0]
			r.failWork[producer] = queue[1:]
		}
	}
	block := r.block
	clean := r.noChanges || r.noChangesFor[producer]
	r.mu.Unlock()

	if block && req.Phase == model.PhaseWork {
		<-ctx.Done()
		return nil, errors.NewPhaseError("work interrupted", errors.ErrPhaseCanceled).
			WithPhase(string(req.Phase))
	}

	result := &RunResult{Metrics: &model.UsageMetrics{DurationMS: 5}}
	if failure != nil {
		result.ExitCode = 1
		return result, failure
	}

	if req.Phase == model.PhaseWork && !clean {
		r.git.setDirty(req.Dir)
	}
	return result, nil
}

var _ Runner = (*fakeRunner)(nil)
