package gitops

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/plandeck/plandeck/internal/errors"
)

// Client implements the git capability interfaces by shelling out to the
// git CLI through a CommandExecutor. Repository-level operations run in
// the repository root; path-taking operations run in that path so they
// work inside any worktree.
type Client struct {
	repoDir  string
	executor CommandExecutor
}

// NewClient creates a Client for the repository rooted at repoDir.
func NewClient(repoDir string) *Client {
	return &Client{
		repoDir:  repoDir,
		executor: NewCLICommandExecutor(),
	}
}

// NewClientWithExecutor creates a Client with a custom executor.
// This is primarily useful for testing.
func NewClientWithExecutor(repoDir string, executor CommandExecutor) *Client {
	return &Client{
		repoDir:  repoDir,
		executor: executor,
	}
}

// RepoDir returns the repository root this client operates on.
func (c *Client) RepoDir() string {
	return c.repoDir
}

// -----------------------------------------------------------------------------
// Branch operations
// -----------------------------------------------------------------------------

// CreateBranch creates a branch at startPoint without checking it out.
func (c *Client) CreateBranch(name, startPoint string) error {
	output, err := c.executor.Run(c.repoDir, "git", "branch", name, startPoint)
	if err != nil {
		return errors.NewGitError("failed to create branch "+name, err).
			WithRepository(c.repoDir).
			WithBranch(name).
			WithGitOutput(string(output))
	}
	return nil
}

// DeleteBranch force-deletes a branch by name.
func (c *Client) DeleteBranch(name string) error {
	output, err := c.executor.Run(c.repoDir, "git", "branch", "-D", name)
	if err != nil {
		if strings.Contains(string(output), "not found") {
			return errors.NewGitError("branch not found", errors.ErrBranchNotFound).
				WithRepository(c.repoDir).
				WithBranch(name)
		}
		return errors.NewGitError("failed to delete branch "+name, err).
			WithRepository(c.repoDir).
			WithBranch(name).
			WithGitOutput(string(output))
	}
	return nil
}

// BranchExists reports whether a local branch exists.
func (c *Client) BranchExists(name string) bool {
	err := c.executor.RunQuiet(c.repoDir, "git", "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// CurrentBranch returns the branch checked out at path, "" when detached.
func (c *Client) CurrentBranch(path string) (string, error) {
	output, err := c.executor.Run(path, "git", "branch", "--show-current")
	if err != nil {
		return "", errors.NewGitError("failed to get current branch", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// MergeBase returns the best common ancestor commit of two refs.
func (c *Client) MergeBase(a, b string) (string, error) {
	output, err := c.executor.Run(c.repoDir, "git", "merge-base", a, b)
	if err != nil {
		return "", errors.NewGitError("failed to get merge base", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// -----------------------------------------------------------------------------
// Worktree operations
// -----------------------------------------------------------------------------

// AddWorktree creates a worktree at path on a new branch rooted at commit.
func (c *Client) AddWorktree(path, branch, commit string) error {
	output, err := c.executor.Run(c.repoDir, "git", "worktree", "add", "-b", branch, path, commit)
	if err != nil {
		return errors.NewGitError("failed to add worktree", err).
			WithRepository(c.repoDir).
			WithBranch(branch).
			WithGitOutput(string(output))
	}
	return nil
}

// HeadCommit returns the commit checked out in the worktree at path.
func (c *Client) HeadCommit(path string) (string, error) {
	output, err := c.executor.Run(path, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", errors.NewGitError("failed to resolve HEAD", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// RemoveWorktree removes the worktree at path, discarding its state.
func (c *Client) RemoveWorktree(path string) error {
	output, err := c.executor.Run(c.repoDir, "git", "worktree", "remove", "--force", path)
	if err != nil {
		if strings.Contains(string(output), "is not a working tree") {
			return errors.NewGitError("worktree not found", errors.ErrWorktreeNotFound).
				WithRepository(c.repoDir)
		}
		return errors.NewGitError("failed to remove worktree", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	return nil
}

// ListWorktrees returns the paths of all worktrees of the repository.
func (c *Client) ListWorktrees() ([]string, error) {
	output, err := c.executor.Run(c.repoDir, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.NewGitError("failed to list worktrees", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}

	var paths []string
	for _, line := range strings.Split(string(output), "\n") {
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// PruneWorktrees drops administrative records of deleted worktrees.
func (c *Client) PruneWorktrees() error {
	output, err := c.executor.Run(c.repoDir, "git", "worktree", "prune")
	if err != nil {
		return errors.NewGitError("failed to prune worktrees", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Merge operations
// -----------------------------------------------------------------------------

// Merge merges ref into the branch checked out at path. A conflicted
// merge is aborted before the conflict error is returned, so the worktree
// is never left mid-merge.
func (c *Client) Merge(path, ref string) error {
	output, err := c.executor.Run(path, "git", "merge", "--no-edit", ref)
	if err != nil {
		outputStr := string(output)
		if strings.Contains(outputStr, "CONFLICT") || strings.Contains(outputStr, "Automatic merge failed") {
			conflicts, _ := c.ConflictingFiles(path)
			_, _ = c.executor.Run(path, "git", "merge", "--abort")
			return errors.NewMergeConflictError("merge conflicts detected", conflicts).
				WithSource(ref).
				WithTarget(path)
		}
		return errors.NewGitError("failed to merge "+ref, err).
			WithRepository(path).
			WithGitOutput(outputStr)
	}
	return nil
}

// MergeTree performs a three-way merge of ours and theirs without touching
// any working tree. git exits non-zero for a conflicted merge but still
// prints the result, so the output is parsed before the error is trusted.
func (c *Client) MergeTree(ours, theirs string) (*MergeTreeResult, error) {
	output, err := c.executor.Run(c.repoDir, "git", "merge-tree", "--write-tree", "--name-only", ours, theirs)
	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")

	if err == nil {
		return &MergeTreeResult{TreeID: strings.TrimSpace(lines[0]), Clean: true}, nil
	}

	// Conflicted merges report the tree id on the first line, a blank
	// separator, then one conflicting path per line.
	if len(lines) > 0 && isObjectID(strings.TrimSpace(lines[0])) {
		result := &MergeTreeResult{TreeID: strings.TrimSpace(lines[0])}
		for _, line := range lines[1:] {
			if line = strings.TrimSpace(line); line != "" {
				result.Conflicts = append(result.Conflicts, line)
			}
		}
		return result, nil
	}

	return nil, errors.NewGitError("failed to run merge-tree", err).
		WithRepository(c.repoDir).
		WithGitOutput(string(output))
}

// CommitTree creates a commit object wrapping tree, returning its id.
func (c *Client) CommitTree(tree, message string, parents ...string) (string, error) {
	args := []string{"commit-tree", tree, "-m", message}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	output, err := c.executor.Run(c.repoDir, "git", args...)
	if err != nil {
		return "", errors.NewGitError("failed to create commit from tree", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// AbortMerge aborts an in-progress merge at path.
func (c *Client) AbortMerge(path string) error {
	output, err := c.executor.Run(path, "git", "merge", "--abort")
	if err != nil {
		return errors.NewGitError("failed to abort merge", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return nil
}

// MergeInProgress reports whether path has an unfinished merge.
func (c *Client) MergeInProgress(path string) bool {
	err := c.executor.RunQuiet(path, "git", "rev-parse", "--verify", "--quiet", "MERGE_HEAD")
	return err == nil
}

// ConflictingFiles returns paths with unresolved conflicts at path.
func (c *Client) ConflictingFiles(path string) ([]string, error) {
	output, err := c.executor.Run(path, "git", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, errors.NewGitError("failed to list conflicting files", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// -----------------------------------------------------------------------------
// Repository operations
// -----------------------------------------------------------------------------

// IsRepository reports whether path is inside a git work tree.
func (c *Client) IsRepository(path string) bool {
	output, err := c.executor.Run(path, "git", "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(output)) == "true"
}

// Fetch fetches a ref from origin.
func (c *Client) Fetch(ref string) error {
	output, err := c.executor.Run(c.repoDir, "git", "fetch", "origin", ref)
	if err != nil {
		return errors.NewGitError("failed to fetch origin/"+ref, err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	return nil
}

// Push pushes a branch to origin. Force pushes use --force-with-lease.
func (c *Client) Push(branch string, force bool) error {
	args := []string{"push", "-u", "origin", branch}
	if force {
		args = append(args, "--force-with-lease")
	}
	output, err := c.executor.Run(c.repoDir, "git", args...)
	if err != nil {
		return errors.NewGitError("failed to push", err).
			WithRepository(c.repoDir).
			WithBranch(branch).
			WithGitOutput(string(output))
	}
	return nil
}

// StageAll stages every change in the worktree at path.
func (c *Client) StageAll(path string) error {
	output, err := c.executor.Run(path, "git", "add", "-A")
	if err != nil {
		return errors.NewGitError("failed to stage changes", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return nil
}

// Commit commits staged changes at path and returns the new commit id.
// An empty index is not an error: ("", nil) signals nothing was committed.
func (c *Client) Commit(path, message string) (string, error) {
	output, err := c.executor.Run(path, "git", "commit", "-m", message)
	if err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return "", nil
		}
		return "", errors.NewGitError("failed to commit changes", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return c.HeadCommit(path)
}

// ResolveRef resolves a ref to a commit id. Unknown refs return
// ErrRefNotFound so callers can probe speculatively.
func (c *Client) ResolveRef(ref string) (string, error) {
	output, err := c.executor.Run(c.repoDir, "git", "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", errors.NewGitError("ref not found: "+ref, errors.ErrRefNotFound).
			WithRepository(c.repoDir)
	}
	return strings.TrimSpace(string(output)), nil
}

// UpdateBranch moves a branch ref to commit. When oldCommit is non-empty
// the update is compare-and-swap guarded against concurrent movement.
func (c *Client) UpdateBranch(branch, commit, oldCommit string) error {
	args := []string{"update-ref", "refs/heads/" + branch, commit}
	if oldCommit != "" {
		args = append(args, oldCommit)
	}
	output, err := c.executor.Run(c.repoDir, "git", args...)
	if err != nil {
		return errors.NewGitError("failed to update branch "+branch, err).
			WithRepository(c.repoDir).
			WithBranch(branch).
			WithGitOutput(string(output))
	}
	return nil
}

// HasDiff reports whether two commits differ in content.
func (c *Client) HasDiff(from, to string) (bool, error) {
	output, err := c.executor.Run(c.repoDir, "git", "diff", "--name-only", from, to)
	if err != nil {
		return false, errors.NewGitError("failed to diff commits", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// DiffStats returns aggregate diff statistics between two commits.
func (c *Client) DiffStats(from, to string) (*DiffStats, error) {
	output, err := c.executor.Run(c.repoDir, "git", "diff", "--numstat", from, to)
	if err != nil {
		return nil, errors.NewGitError("failed to compute diff stats", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}

	stats := &DiffStats{}
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		stats.FilesChanged++
		// Binary files report "-" for both counts.
		if added, err := strconv.Atoi(fields[0]); err == nil {
			stats.LinesAdded += added
		}
		if removed, err := strconv.Atoi(fields[1]); err == nil {
			stats.LinesRemoved += removed
		}
	}
	return stats, nil
}

// CountCommits returns the number of commits in from..to.
func (c *Client) CountCommits(from, to string) (int, error) {
	output, err := c.executor.Run(c.repoDir, "git", "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, errors.NewGitError("failed to count commits", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, errors.NewGitError("failed to parse commit count", err).
			WithRepository(c.repoDir)
	}
	return count, nil
}

// FileChangesBetween lists per-file change status between two commits.
func (c *Client) FileChangesBetween(from, to string) ([]FileChange, error) {
	output, err := c.executor.Run(c.repoDir, "git", "diff", "--name-status", from, to)
	if err != nil {
		return nil, errors.NewGitError("failed to list file changes", err).
			WithRepository(c.repoDir).
			WithGitOutput(string(output))
	}

	var changes []FileChange
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Rename/copy lines carry a score suffix (R100) and two paths;
		// the new path is the last field.
		changes = append(changes, FileChange{
			Path:   fields[len(fields)-1],
			Status: fields[0][:1],
		})
	}
	return changes, nil
}

// HasUncommittedChanges reports whether path has uncommitted changes.
func (c *Client) HasUncommittedChanges(path string) (bool, error) {
	output, err := c.executor.Run(path, "git", "status", "--porcelain")
	if err != nil {
		return false, errors.NewGitError("failed to check git status", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// StashPush stashes uncommitted changes at path.
func (c *Client) StashPush(path, message string) error {
	args := []string{"stash", "push"}
	if message != "" {
		args = append(args, "-m", message)
	}
	output, err := c.executor.Run(path, "git", args...)
	if err != nil {
		return errors.NewGitError("failed to stash changes", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return nil
}

// StashPop restores the most recent stash at path.
func (c *Client) StashPop(path string) error {
	output, err := c.executor.Run(path, "git", "stash", "pop")
	if err != nil {
		return errors.NewGitError("failed to pop stash", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	return nil
}

// EnsureIgnored adds patterns to the repository-local exclude file of the
// worktree at path. The exclude file is used instead of .gitignore so the
// patterns never appear in the work being integrated.
func (c *Client) EnsureIgnored(path string, patterns ...string) error {
	output, err := c.executor.Run(path, "git", "rev-parse", "--git-path", "info/exclude")
	if err != nil {
		return errors.NewGitError("failed to locate exclude file", err).
			WithRepository(path).
			WithGitOutput(string(output))
	}
	excludePath := strings.TrimSpace(string(output))
	if !filepath.IsAbs(excludePath) {
		excludePath = filepath.Join(path, excludePath)
	}

	existing, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return errors.NewGitError("failed to read exclude file", err).WithRepository(path)
	}
	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, p := range patterns {
		if !present[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(excludePath), 0o755); err != nil {
		return errors.NewGitError("failed to create exclude directory", err).WithRepository(path)
	}
	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.NewGitError("failed to open exclude file", err).WithRepository(path)
	}
	defer f.Close()

	content := strings.Join(missing, "\n") + "\n"
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		content = "\n" + content
	}
	if _, err := f.WriteString(content); err != nil {
		return errors.NewGitError("failed to write exclude file", err).WithRepository(path)
	}
	return nil
}

// isObjectID reports whether s looks like a full git object id.
func isObjectID(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
