package model

// NodePhase represents one step of a node's execution pipeline.
//
// The pipeline runs in a fixed order:
//
//	merge-fi -> setup -> prechecks -> work -> postchecks -> commit -> merge-ri -> cleanup
//
// The current phase is persisted with the node's execution state so that a
// crash mid-pipeline resumes at the correct phase instead of redoing work
// already committed.
type NodePhase string

const (
	// PhaseMergeFI is forward integration: the node's isolated worktree is
	// created at the best available upstream commit.
	PhaseMergeFI NodePhase = "merge-fi"

	// PhaseSetup prepares the worktree (ignore entries, log header).
	PhaseSetup NodePhase = "setup"

	// PhasePrechecks runs the node's precheck work spec, if any.
	PhasePrechecks NodePhase = "prechecks"

	// PhaseWork runs the node's main work spec.
	PhaseWork NodePhase = "work"

	// PhasePostchecks runs the node's postcheck work spec, if any.
	PhasePostchecks NodePhase = "postchecks"

	// PhaseCommit captures the worktree HEAD as the node's completed commit.
	PhaseCommit NodePhase = "commit"

	// PhaseMergeRI is reverse integration: a leaf node's result is merged
	// back to the target branch when a real diff exists.
	PhaseMergeRI NodePhase = "merge-ri"

	// PhaseCleanup releases the worktree per the plan's cleanup policy.
	PhaseCleanup NodePhase = "cleanup"
)

// pipelineOrder is the canonical phase sequence.
var pipelineOrder = []NodePhase{
	PhaseMergeFI,
	PhaseSetup,
	PhasePrechecks,
	PhaseWork,
	PhasePostchecks,
	PhaseCommit,
	PhaseMergeRI,
	PhaseCleanup,
}

// String returns the string representation of the phase.
func (p NodePhase) String() string {
	return string(p)
}

// IsValid returns true if this is a recognized phase value.
func (p NodePhase) IsValid() bool {
	for _, q := range pipelineOrder {
		if p == q {
			return true
		}
	}
	return false
}

// Index returns the position of the phase in the pipeline, or -1 if the
// phase is not recognized.
func (p NodePhase) Index() int {
	for i, q := range pipelineOrder {
		if p == q {
			return i
		}
	}
	return -1
}

// Next returns the phase after p, or "" when p is the last phase or unknown.
func (p NodePhase) Next() NodePhase {
	i := p.Index()
	if i < 0 || i+1 >= len(pipelineOrder) {
		return ""
	}
	return pipelineOrder[i+1]
}

// Pipeline returns the canonical phase sequence. The returned slice is a
// copy; callers may reorder it freely.
func Pipeline() []NodePhase {
	out := make([]NodePhase, len(pipelineOrder))
	copy(out, pipelineOrder)
	return out
}

// PipelineFrom returns the phase sequence starting at the given phase.
// An unknown starting phase yields the full pipeline, which makes resume
// safe when older persisted state carries a phase this build no longer
// recognizes.
func PipelineFrom(start NodePhase) []NodePhase {
	i := start.Index()
	if i < 0 {
		return Pipeline()
	}
	out := make([]NodePhase, len(pipelineOrder)-i)
	copy(out, pipelineOrder[i:])
	return out
}
