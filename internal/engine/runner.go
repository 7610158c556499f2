package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/model"
)

// RunRequest carries everything a runner needs to execute one work spec.
type RunRequest struct {
	// Spec is the work spec to execute.
	Spec *model.WorkSpec

	// Dir is the worktree the spec runs in.
	Dir string

	// Phase tags output lines in the node log.
	Phase model.NodePhase

	// NodeLog receives the spec's combined output, line by line.
	// May be nil.
	NodeLog *logging.NodeLog
}

// RunResult is the outcome of one work spec execution.
type RunResult struct {
	// ExitCode is the process exit code, 0 on success.
	ExitCode int

	// Metrics holds usage recorded for the run. DurationMS is always
	// present; runners fill in what they can observe.
	Metrics *model.UsageMetrics
}

// Runner executes work specs. The engine holds one runner and feeds it
// every phase's spec; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// ExecRunner runs work specs as subprocesses through os/exec. Process
// specs execute directly, shell specs through the selected shell, agent
// specs through the configured agent CLI.
type ExecRunner struct {
	// AgentCommand is the agent CLI executable for agent specs.
	AgentCommand string

	// DefaultModel is used when an agent spec names no model.
	DefaultModel string

	// DefaultDialect interprets shell specs with no dialect.
	DefaultDialect model.ShellDialect
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(agentCommand, defaultModel, defaultDialect string) *ExecRunner {
	return &ExecRunner{
		AgentCommand:   agentCommand,
		DefaultModel:   defaultModel,
		DefaultDialect: model.ShellDialect(defaultDialect),
	}
}

// Run executes the spec, honoring its timeout as a hard deadline. A
// deadline expiry kills the process and fails the phase with a timeout
// error so it stays eligible for the normal retry path.
func (r *ExecRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	spec := req.Spec
	if spec == nil {
		return &RunResult{Metrics: &model.UsageMetrics{}}, nil
	}

	runCtx := ctx
	if timeout := spec.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd, cleanup, err := r.command(runCtx, req)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	cmd.Dir = req.Dir

	started := time.Now()
	output, runErr := cmd.CombinedOutput()
	elapsed := time.Since(started)

	logOutput(req, output)

	result := &RunResult{
		Metrics: &model.UsageMetrics{DurationMS: elapsed.Milliseconds()},
	}

	if runErr == nil {
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, errors.NewPhaseError("work spec exceeded its deadline", errors.ErrPhaseTimeout).
			WithPhase(string(req.Phase)).
			WithTimeout()
	}
	if ctx.Err() == context.Canceled {
		result.ExitCode = -1
		return result, errors.NewPhaseError("work spec canceled", errors.ErrPhaseCanceled).
			WithPhase(string(req.Phase))
	}

	exitCode := -1
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	result.ExitCode = exitCode
	return result, errors.NewPhaseError("work spec exited non-zero", runErr).
		WithPhase(string(req.Phase)).
		WithExitCode(exitCode)
}

// command builds the subprocess for a spec. The returned cleanup removes
// any temporary files and may be nil.
func (r *ExecRunner) command(ctx context.Context, req RunRequest) (*exec.Cmd, func(), error) {
	spec := req.Spec
	switch spec.Kind {
	case model.WorkProcess:
		return exec.CommandContext(ctx, spec.Command, spec.Args...), nil, nil

	case model.WorkShell:
		dialect := spec.Dialect
		if dialect == "" {
			dialect = r.DefaultDialect
		}
		if dialect == "" {
			dialect = model.ShellBash
		}
		return exec.CommandContext(ctx, string(dialect), "-c", spec.Script), nil, nil

	case model.WorkAgent:
		return r.agentCommand(ctx, req)

	default:
		return nil, nil, errors.NewPhaseError(fmt.Sprintf("unknown work spec kind %q", spec.Kind), nil).
			WithPhase(string(req.Phase))
	}
}

// agentCommand builds the agent CLI invocation. Instructions go through
// a file rather than argv so that long prompts survive intact.
func (r *ExecRunner) agentCommand(ctx context.Context, req RunRequest) (*exec.Cmd, func(), error) {
	spec := req.Spec

	instrFile, err := os.CreateTemp("", "plandeck-instructions-*.md")
	if err != nil {
		return nil, nil, errors.NewPhaseError("failed to write instructions file", err).
			WithPhase(string(req.Phase))
	}
	if _, err := instrFile.WriteString(spec.Instructions); err != nil {
		instrFile.Close()
		os.Remove(instrFile.Name())
		return nil, nil, errors.NewPhaseError("failed to write instructions file", err).
			WithPhase(string(req.Phase))
	}
	instrFile.Close()
	cleanup := func() { os.Remove(instrFile.Name()) }

	args := []string{"--instructions-file", instrFile.Name()}
	modelName := spec.Model
	if modelName == "" {
		modelName = r.DefaultModel
	}
	if modelName != "" {
		args = append(args, "--model", modelName)
	}
	for _, folder := range spec.AllowedFolders {
		args = append(args, "--allow-folder", folder)
	}
	for _, url := range spec.AllowedURLs {
		args = append(args, "--allow-url", url)
	}

	return exec.CommandContext(ctx, r.AgentCommand, args...), cleanup, nil
}

// logOutput copies subprocess output into the node log, one line per
// entry, tagged with the running phase.
func logOutput(req RunRequest, output []byte) {
	if req.NodeLog == nil || len(output) == 0 {
		return
	}
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		req.NodeLog.Append(string(req.Phase), "INFO", scanner.Text())
	}
}

