// Package errors provides centralized error definitions and error handling
// utilities for the plandeck codebase. It defines domain-specific errors,
// error constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - GraphError: a malformed plan graph (cycles, dangling dependencies)
//   - PhaseError: a node phase failed (non-zero exit, timeout)
//   - MergeConflictError: the git collaborator reported merge conflicts
//   - ValidationError: evidence of work was required and absent
//   - StoreError: a persisted document is unreadable or invalid
//   - GitError: a git collaborator call failed
//   - NotFoundError: a plan or node id did not resolve
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewGraphError("dependency cycle detected", nil).WithNodeID("build")
//	err := errors.NewPhaseError("work command exited non-zero", cause).
//		WithPhase("work").WithAttempt(2)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrPlanNotFound) { ... }
//
//	var phaseErr *errors.PhaseError
//	if errors.As(err, &phaseErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Classification
//
// Graph and validation errors are never retryable: the former is fatal at
// build time and the latter has nothing to repair. Phase errors and git
// errors are retryable unless marked otherwise. Merge conflicts require a
// human; they are surfaced with the conflicting paths and left unresolved.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Plan and node lookup sentinels.
var (
	// ErrPlanNotFound indicates that a plan id did not resolve.
	ErrPlanNotFound = New("plan not found")
	// ErrNodeNotFound indicates that a node id or producer id did not resolve.
	ErrNodeNotFound = New("node not found")
	// ErrGroupNotFound indicates that a group path did not resolve.
	ErrGroupNotFound = New("group not found")
)

// Graph construction sentinels.
var (
	// ErrDependencyCycle indicates a circular dependency between nodes.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrUnknownDependency indicates a dependency naming a node that does not exist.
	ErrUnknownDependency = New("dependency references unknown node")
	// ErrDuplicateProducerID indicates two jobs sharing a producer id.
	ErrDuplicateProducerID = New("duplicate producer id")
	// ErrEmptyPlan indicates a plan spec with no jobs.
	ErrEmptyPlan = New("plan has no jobs")
)

// Execution sentinels.
var (
	// ErrPhaseTimeout indicates a work spec exceeded its deadline.
	ErrPhaseTimeout = New("phase timed out")
	// ErrPhaseCanceled indicates a phase was interrupted by cancellation.
	ErrPhaseCanceled = New("phase canceled")
	// ErrIllegalTransition indicates a rejected status transition.
	ErrIllegalTransition = New("illegal status transition")
	// ErrPlanNotActive indicates a control operation on a plan that is not running.
	ErrPlanNotActive = New("plan is not active")
	// ErrEvidenceMissing indicates required evidence of work was absent.
	ErrEvidenceMissing = New("evidence of work missing")
)

// Git collaborator sentinels.
var (
	// ErrNotGitRepository indicates the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorktreeNotFound indicates a worktree could not be found.
	ErrWorktreeNotFound = New("worktree not found")
	// ErrBranchNotFound indicates a branch could not be found.
	ErrBranchNotFound = New("branch not found")
	// ErrRefNotFound indicates a ref failed to resolve.
	ErrRefNotFound = New("ref not found")
	// ErrMergeConflict indicates a merge produced conflicts.
	ErrMergeConflict = New("merge conflict")
)

// Persistence sentinels.
var (
	// ErrDocumentCorrupt indicates a stored document failed to decode.
	ErrDocumentCorrupt = New("stored document corrupt")
	// ErrDocumentNotFound indicates a stored document does not exist.
	ErrDocumentNotFound = New("stored document not found")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// IsRetryable returns whether the operation may succeed on retry.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// contextPrefix formats a "kind [k=v, ...]" prefix for Error methods.
func contextPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// GraphError
// -----------------------------------------------------------------------------

// GraphError represents a malformed plan graph. Graph errors are fatal:
// they are rejected at plan build time and never retried.
type GraphError struct {
	baseError
	PlanName string
	NodeID   string
}

// NewGraphError creates a new GraphError.
func NewGraphError(message string, cause error) *GraphError {
	return &GraphError{baseError: baseError{message: message, cause: cause}}
}

// WithPlanName adds the plan name to the error context.
func (e *GraphError) WithPlanName(name string) *GraphError {
	e.PlanName = name
	return e
}

// WithNodeID adds the offending node id to the error context.
func (e *GraphError) WithNodeID(id string) *GraphError {
	e.NodeID = id
	return e
}

// Error returns the formatted error message.
func (e *GraphError) Error() string {
	var parts []string
	if e.PlanName != "" {
		parts = append(parts, fmt.Sprintf("plan=%s", e.PlanName))
	}
	if e.NodeID != "" {
		parts = append(parts, fmt.Sprintf("node=%s", e.NodeID))
	}
	prefix := contextPrefix("graph error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *GraphError) Is(target error) bool {
	if _, ok := target.(*GraphError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// PhaseError
// -----------------------------------------------------------------------------

// PhaseError represents a failed node phase: a work spec that exited
// non-zero, timed out, or could not be started. Phase errors are
// recoverable through retry and auto-heal unless the failing spec's
// on-failure config disables healing.
type PhaseError struct {
	baseError
	NodeID   string
	Phase    string
	Attempt  int
	ExitCode int
	Timeout  bool
}

// NewPhaseError creates a new PhaseError.
func NewPhaseError(message string, cause error) *PhaseError {
	return &PhaseError{
		baseError: baseError{message: message, cause: cause, retryable: true},
		Attempt:   -1,
		ExitCode:  -1,
	}
}

// WithNodeID adds the node id to the error context.
func (e *PhaseError) WithNodeID(id string) *PhaseError {
	e.NodeID = id
	return e
}

// WithPhase adds the phase name to the error context.
func (e *PhaseError) WithPhase(phase string) *PhaseError {
	e.Phase = phase
	return e
}

// WithAttempt records which attempt failed.
func (e *PhaseError) WithAttempt(n int) *PhaseError {
	e.Attempt = n
	return e
}

// WithExitCode records the process exit code.
func (e *PhaseError) WithExitCode(code int) *PhaseError {
	e.ExitCode = code
	return e
}

// WithTimeout marks this failure as a deadline expiry.
func (e *PhaseError) WithTimeout() *PhaseError {
	e.Timeout = true
	return e
}

// Error returns the formatted error message.
func (e *PhaseError) Error() string {
	var parts []string
	if e.NodeID != "" {
		parts = append(parts, fmt.Sprintf("node=%s", e.NodeID))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Attempt >= 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	prefix := contextPrefix("phase error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PhaseError) Is(target error) bool {
	if _, ok := target.(*PhaseError); ok {
		return true
	}
	if e.Timeout && target == ErrPhaseTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// MergeConflictError
// -----------------------------------------------------------------------------

// MergeConflictError represents conflicts reported by the git collaborator.
// The plan is left unmerged; conflicts are never force-resolved.
type MergeConflictError struct {
	baseError
	Source        string
	Target        string
	ConflictPaths []string
}

// NewMergeConflictError creates a new MergeConflictError.
func NewMergeConflictError(message string, conflicts []string) *MergeConflictError {
	return &MergeConflictError{
		baseError:     baseError{message: message, cause: ErrMergeConflict},
		ConflictPaths: conflicts,
	}
}

// WithSource records the merge source ref.
func (e *MergeConflictError) WithSource(ref string) *MergeConflictError {
	e.Source = ref
	return e
}

// WithTarget records the merge target ref.
func (e *MergeConflictError) WithTarget(ref string) *MergeConflictError {
	e.Target = ref
	return e
}

// Error returns the formatted error message.
func (e *MergeConflictError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	if e.Target != "" {
		parts = append(parts, fmt.Sprintf("target=%s", e.Target))
	}
	prefix := contextPrefix("merge conflict", parts)
	if len(e.ConflictPaths) > 0 {
		return fmt.Sprintf("%s: %s: conflicting paths: %s", prefix, e.message, strings.Join(e.ConflictPaths, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *MergeConflictError) Is(target error) bool {
	if _, ok := target.(*MergeConflictError); ok {
		return true
	}
	return target == ErrMergeConflict || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents a node that completed its work phase but
// produced no verifiable evidence. Validation failures skip auto-heal:
// there is nothing to repair.
type ValidationError struct {
	baseError
	NodeID string
	Method string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{baseError: baseError{message: message, cause: cause}}
}

// WithNodeID adds the node id to the error context.
func (e *ValidationError) WithNodeID(id string) *ValidationError {
	e.NodeID = id
	return e
}

// WithMethod records the validation method that rejected the result.
func (e *ValidationError) WithMethod(method string) *ValidationError {
	e.Method = method
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.NodeID != "" {
		parts = append(parts, fmt.Sprintf("node=%s", e.NodeID))
	}
	if e.Method != "" {
		parts = append(parts, fmt.Sprintf("method=%s", e.Method))
	}
	prefix := contextPrefix("validation error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// StoreError
// -----------------------------------------------------------------------------

// StoreError represents a persistence failure: an unreadable file, a
// document that fails to decode, or a write that could not complete.
// Corrupt documents are logged and treated as absent by loaders; they
// never crash the process.
type StoreError struct {
	baseError
	Path string
}

// NewStoreError creates a new StoreError.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{baseError: baseError{message: message, cause: cause, retryable: true}}
}

// WithPath adds the file path to the error context.
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	prefix := contextPrefix("store error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// GitError
// -----------------------------------------------------------------------------

// GitError represents a failed git collaborator call. The raw git output
// is preserved for diagnostics but not parsed further here.
type GitError struct {
	baseError
	Repository string
	Branch     string
	GitOutput  string
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{baseError: baseError{message: message, cause: cause, retryable: true}}
}

// WithRepository adds the repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithGitOutput preserves the raw git output for diagnostics.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	prefix := contextPrefix("git error", parts)
	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	if e.GitOutput != "" {
		return fmt.Sprintf("%s: %s: %s", prefix, msg, e.GitOutput)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError represents a lookup that did not resolve. Control
// operations return these rather than panicking so that cancel, pause,
// retry, and delete are idempotent and safe to call speculatively.
type NotFoundError struct {
	baseError
	Resource string
	ID       string
}

// NewNotFoundError creates a NotFoundError for the given resource kind and id.
func NewNotFoundError(resource, id string) *NotFoundError {
	var cause error
	switch resource {
	case "plan":
		cause = ErrPlanNotFound
	case "node":
		cause = ErrNodeNotFound
	case "group":
		cause = ErrGroupNotFound
	}
	return &NotFoundError{
		baseError: baseError{message: fmt.Sprintf("%s %q not found", resource, id), cause: cause},
		Resource:  resource,
		ID:        id,
	}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return e.message
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// retryable is implemented by errors that know whether a retry may succeed.
type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether the error is transient enough that the same
// operation may succeed on retry. Graph errors, validation errors, merge
// conflicts, and not-found results are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var mc *MergeConflictError
	if errors.As(err, &mc) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// IsNotFound reports whether the error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return Is(err, ErrPlanNotFound) || Is(err, ErrNodeNotFound) ||
		Is(err, ErrGroupNotFound) || Is(err, ErrDocumentNotFound)
}

// IsTimeout reports whether the error is a phase deadline expiry.
func IsTimeout(err error) bool {
	if Is(err, ErrPhaseTimeout) {
		return true
	}
	var pe *PhaseError
	return As(err, &pe) && pe.Timeout
}
