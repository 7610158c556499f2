package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkSpecKind discriminates the closed set of work spec variants.
type WorkSpecKind string

const (
	// WorkProcess runs an executable with explicit arguments and no shell
	// interpretation.
	WorkProcess WorkSpecKind = "process"

	// WorkShell runs a command string through a shell dialect.
	WorkShell WorkSpecKind = "shell"

	// WorkAgent hands natural-language instructions to an agent subprocess.
	WorkAgent WorkSpecKind = "agent"
)

// IsValid returns true if this is a recognized work spec kind.
func (k WorkSpecKind) IsValid() bool {
	switch k {
	case WorkProcess, WorkShell, WorkAgent:
		return true
	default:
		return false
	}
}

// ShellDialect selects which shell interprets a shell work spec.
type ShellDialect string

const (
	// ShellSh is POSIX sh.
	ShellSh ShellDialect = "sh"
	// ShellBash is GNU bash.
	ShellBash ShellDialect = "bash"
	// ShellZsh is zsh.
	ShellZsh ShellDialect = "zsh"
)

// OnFailureConfig controls what happens when a work spec fails.
type OnFailureConfig struct {
	// NoAutoHeal disables the single self-repair pass for this spec.
	NoAutoHeal bool `json:"no_auto_heal,omitempty" yaml:"no_auto_heal,omitempty"`

	// UserMessage is shown alongside the failure when surfaced.
	UserMessage string `json:"user_message,omitempty" yaml:"user_message,omitempty"`

	// ResumeFromPhase is the phase a manual retry resumes from.
	// Empty means the default (prechecks).
	ResumeFromPhase NodePhase `json:"resume_from_phase,omitempty" yaml:"resume_from_phase,omitempty"`
}

// WorkSpec describes what one phase executes. It is a closed tagged union:
// exactly the fields for its Kind are meaningful. Legacy free-text specs
// are normalized into shell specs once at ingestion; nothing downstream
// dispatches on anything but Kind.
type WorkSpec struct {
	// Kind discriminates the variant: process, shell, or agent.
	Kind WorkSpecKind `json:"kind" yaml:"kind"`

	// Command is the executable path for process specs.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Args are the executable arguments for process specs.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Script is the command string for shell specs.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// Dialect selects the interpreting shell for shell specs.
	Dialect ShellDialect `json:"dialect,omitempty" yaml:"dialect,omitempty"`

	// Instructions are the natural-language instructions for agent specs.
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`

	// Model is the preferred model for agent specs.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// AllowedFolders are sandbox folder allow-list entries for agent specs.
	AllowedFolders []string `json:"allowed_folders,omitempty" yaml:"allowed_folders,omitempty"`

	// AllowedURLs are sandbox URL allow-list entries for agent specs.
	AllowedURLs []string `json:"allowed_urls,omitempty" yaml:"allowed_urls,omitempty"`

	// TimeoutSeconds is a hard deadline for the spawned process.
	// Zero means no per-spec deadline.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// OnFailure configures retry and auto-heal behavior for this spec.
	OnFailure *OnFailureConfig `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Timeout returns the spec's deadline as a duration, or zero if unset.
func (w *WorkSpec) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// AutoHealAllowed reports whether the auto-heal pass may run after this
// spec fails.
func (w *WorkSpec) AutoHealAllowed() bool {
	return w.OnFailure == nil || !w.OnFailure.NoAutoHeal
}

// ResumePhase returns the phase a manual retry resumes from, defaulting
// to prechecks when the spec does not override it.
func (w *WorkSpec) ResumePhase() NodePhase {
	if w.OnFailure != nil && w.OnFailure.ResumeFromPhase != "" {
		return w.OnFailure.ResumeFromPhase
	}
	return PhasePrechecks
}

// Validate checks that the spec carries the fields its kind requires.
func (w *WorkSpec) Validate() error {
	switch w.Kind {
	case WorkProcess:
		if w.Command == "" {
			return fmt.Errorf("process spec requires a command")
		}
	case WorkShell:
		if strings.TrimSpace(w.Script) == "" {
			return fmt.Errorf("shell spec requires a script")
		}
	case WorkAgent:
		if strings.TrimSpace(w.Instructions) == "" {
			return fmt.Errorf("agent spec requires instructions")
		}
	default:
		return fmt.Errorf("unknown work spec kind %q", w.Kind)
	}
	if w.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if w.OnFailure != nil && w.OnFailure.ResumeFromPhase != "" && !w.OnFailure.ResumeFromPhase.IsValid() {
		return fmt.Errorf("unknown resume phase %q", w.OnFailure.ResumeFromPhase)
	}
	return nil
}

// NormalizeWorkSpec converts a legacy free-text spec into the closed
// union. Historic plan files stored bare command strings; those become
// shell specs with the default dialect. A spec that already carries a
// kind is validated and returned unchanged.
func NormalizeWorkSpec(raw json.RawMessage) (*WorkSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		legacy = strings.TrimSpace(legacy)
		if legacy == "" {
			return nil, nil
		}
		return &WorkSpec{Kind: WorkShell, Script: legacy, Dialect: ShellBash}, nil
	}

	var spec WorkSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode work spec: %w", err)
	}
	if spec.Kind == WorkShell && spec.Dialect == "" {
		spec.Dialect = ShellBash
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}
