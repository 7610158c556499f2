package gitops

// BranchOperations defines branch-level git operations.
type BranchOperations interface {
	// CreateBranch creates a branch at the given start point without
	// checking it out.
	CreateBranch(name, startPoint string) error

	// DeleteBranch force-deletes a branch by name.
	DeleteBranch(name string) error

	// BranchExists reports whether a local branch exists.
	BranchExists(name string) bool

	// CurrentBranch returns the branch checked out at path, or "" for a
	// detached HEAD.
	CurrentBranch(path string) (string, error)

	// MergeBase returns the best common ancestor commit of two refs.
	MergeBase(a, b string) (string, error)
}

// WorktreeOperations defines operations on isolated workspaces.
// Each node of a plan executes inside its own worktree so that parallel
// nodes never contend for a working directory.
type WorktreeOperations interface {
	// AddWorktree creates a worktree at path on a new branch rooted at
	// the given commit.
	AddWorktree(path, branch, commit string) error

	// HeadCommit returns the commit checked out in the worktree at path.
	HeadCommit(path string) (string, error)

	// RemoveWorktree removes the worktree at path, discarding its state.
	RemoveWorktree(path string) error

	// ListWorktrees returns the paths of all worktrees of the repository.
	ListWorktrees() ([]string, error)

	// PruneWorktrees drops administrative records of deleted worktrees.
	PruneWorktrees() error
}

// MergeOperations defines merge operations, both working-tree merges and
// index-free merges used for snapshot integration.
type MergeOperations interface {
	// Merge merges ref into the branch checked out at path. A conflicted
	// merge is aborted and reported as a MergeConflictError carrying the
	// conflicting paths.
	Merge(path, ref string) error

	// MergeTree performs a three-way merge of ours and theirs without
	// touching any working tree. The result reports the merged tree id
	// and, when the merge is not clean, the conflicting paths.
	MergeTree(ours, theirs string) (*MergeTreeResult, error)

	// CommitTree creates a commit object wrapping tree with the given
	// parents and message, returning the new commit id. No ref is moved.
	CommitTree(tree, message string, parents ...string) (string, error)

	// AbortMerge aborts an in-progress merge at path.
	AbortMerge(path string) error

	// MergeInProgress reports whether path has an unfinished merge.
	MergeInProgress(path string) bool

	// ConflictingFiles returns paths with unresolved conflicts at path.
	ConflictingFiles(path string) ([]string, error)
}

// RepositoryOperations defines repository-level queries and mutations.
type RepositoryOperations interface {
	// IsRepository reports whether path is inside a git work tree.
	IsRepository(path string) bool

	// Fetch fetches a ref from origin.
	Fetch(ref string) error

	// Push pushes a branch to origin.
	Push(branch string, force bool) error

	// StageAll stages every change in the worktree at path.
	StageAll(path string) error

	// Commit commits staged changes at path and returns the new commit
	// id. Committing with nothing staged returns ("", nil).
	Commit(path, message string) (string, error)

	// ResolveRef resolves a ref to a commit id. An unknown ref returns
	// ErrRefNotFound.
	ResolveRef(ref string) (string, error)

	// UpdateBranch moves a branch ref to a commit, guarded by the
	// expected old value when oldCommit is non-empty.
	UpdateBranch(branch, commit, oldCommit string) error

	// HasDiff reports whether two commits differ in content.
	HasDiff(from, to string) (bool, error)

	// DiffStats returns aggregate diff statistics between two commits.
	DiffStats(from, to string) (*DiffStats, error)

	// CountCommits returns the number of commits in from..to.
	CountCommits(from, to string) (int, error)

	// FileChangesBetween lists per-file change status between two commits.
	FileChangesBetween(from, to string) ([]FileChange, error)

	// HasUncommittedChanges reports whether path has uncommitted changes.
	HasUncommittedChanges(path string) (bool, error)

	// StashPush stashes uncommitted changes at path.
	StashPush(path, message string) error

	// StashPop restores the most recent stash at path.
	StashPop(path string) error

	// EnsureIgnored adds patterns to the repository-local exclude file of
	// the worktree at path, skipping patterns already present.
	EnsureIgnored(path string, patterns ...string) error
}

// Git combines all version-control capability interfaces. Components that
// need the full surface accept this; most accept one of the narrower
// interfaces above.
type Git interface {
	BranchOperations
	WorktreeOperations
	MergeOperations
	RepositoryOperations
}

// MergeTreeResult is the outcome of an index-free three-way merge.
type MergeTreeResult struct {
	// TreeID is the id of the merged tree. Populated even for conflicted
	// merges, with conflict markers embedded.
	TreeID string

	// Clean is true when the merge produced no conflicts.
	Clean bool

	// Conflicts lists conflicting paths for an unclean merge.
	Conflicts []string
}

// DiffStats summarizes a diff between two commits.
type DiffStats struct {
	FilesChanged int
	LinesAdded   int
	LinesRemoved int
}

// FileChange is one changed file between two commits.
type FileChange struct {
	// Path is the file path relative to the repository root.
	Path string

	// Status is the single-letter git status code (A, M, D, R, ...).
	Status string
}

// Compile-time assertions that Client implements every capability.
var (
	_ BranchOperations     = (*Client)(nil)
	_ WorktreeOperations   = (*Client)(nil)
	_ MergeOperations      = (*Client)(nil)
	_ RepositoryOperations = (*Client)(nil)
	_ Git                  = (*Client)(nil)
)
