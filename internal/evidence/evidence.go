// Package evidence validates that a node actually produced (or
// legitimately did not produce) output.
//
// Nodes prove work in one of two ways: by committing file changes, or by
// writing an evidence document into their worktree. Some nodes, such as
// pure validation steps, declare up front that success produces zero file
// changes; for those an empty diff is itself valid.
//
// Validation rules, in order:
//  1. a present, well-formed, current-version evidence document is
//     valid, independent of any declaration
//  2. an expects-no-changes declaration makes a zero-diff result valid
//  3. otherwise the result is invalid
//
// Reading the evidence document never fails outward: a missing file, a
// version this build does not recognize, missing required fields, or
// corrupt JSON all read as "absent".
package evidence

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// FileName is the evidence document nodes write into their worktree.
const FileName = ".plandeck-evidence.json"

// DocumentVersion is the evidence format version this build accepts.
const DocumentVersion = 1

// Method identifies which rule validated (or rejected) a node's result.
type Method string

const (
	// MethodExpectsNoChanges means the node declared a zero-diff success.
	MethodExpectsNoChanges Method = "expects_no_changes"

	// MethodEvidenceFile means a well-formed evidence document was found.
	MethodEvidenceFile Method = "evidence_file"

	// MethodNone means no rule validated the result.
	MethodNone Method = "none"
)

// Document is the versioned evidence record a node writes when its work
// cannot be proven by a diff alone.
type Document struct {
	// Version is the evidence format version. Must equal DocumentVersion.
	Version int `json:"version"`

	// ProducerID names the node that wrote the document.
	ProducerID string `json:"producer_id"`

	// Status is the node's own report: "complete", "blocked", or "failed".
	Status string `json:"status"`

	// Summary describes what was done.
	Summary string `json:"summary"`

	// FilesTouched lists files the node examined or modified.
	FilesTouched []string `json:"files_touched,omitempty"`

	// Notes carries free-form observations for downstream consumers.
	Notes string `json:"notes,omitempty"`
}

// wellFormed reports whether the document carries the fields this build
// requires of a valid evidence record.
func (d *Document) wellFormed() bool {
	return d.Version == DocumentVersion && d.ProducerID != "" && d.Status != ""
}

// Result is the outcome of validating one node's output.
type Result struct {
	// Valid reports whether the node's result is accepted.
	Valid bool `json:"valid"`

	// Method identifies the rule that produced this result.
	Method Method `json:"method"`

	// Document is the parsed evidence record when Method is
	// MethodEvidenceFile, nil otherwise.
	Document *Document `json:"document,omitempty"`
}

// Path returns the evidence document path for a worktree.
func Path(worktreePath string) string {
	return filepath.Join(worktreePath, FileName)
}

// Read loads the evidence document from a worktree. It returns nil for
// a missing file, corrupt JSON, a wrong version, or missing required
// fields; none of those conditions is an error.
func Read(worktreePath string) *Document {
	data, err := os.ReadFile(Path(worktreePath))
	if err != nil {
		return nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	if !doc.wellFormed() {
		return nil
	}
	return &doc
}

// Validate checks a node's output. A present, well-formed evidence
// document validates independently of the expects-no-changes
// declaration; the declaration alone validates a node that wrote
// nothing; otherwise the result is invalid.
func Validate(worktreePath string, expectsNoChanges bool) Result {
	if doc := Read(worktreePath); doc != nil {
		return Result{Valid: true, Method: MethodEvidenceFile, Document: doc}
	}
	if expectsNoChanges {
		return Result{Valid: true, Method: MethodExpectsNoChanges}
	}
	return Result{Valid: false, Method: MethodNone}
}
