package engine

import (
	"fmt"
	"sort"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/gitops"
	"github.com/plandeck/plandeck/internal/model"
)

// -----------------------------------------------------------------------------
// Reverse integration decision
// -----------------------------------------------------------------------------

// RIOutcome classifies what reverse integration should do for a node.
type RIOutcome string

const (
	// RINotApplicable: non-leaf node or no target branch configured.
	RINotApplicable RIOutcome = "not_applicable"

	// RIMerge: the node has a merge source and a real diff against the
	// target; the source must be merged.
	RIMerge RIOutcome = "merge"

	// RINoOp: the node has a merge source but its content already
	// matches the target. Resolved as merged with nothing applied.
	RINoOp RIOutcome = "no_op"

	// RINothingToMerge: the node has neither a result commit nor a base
	// commit. Resolved as merged with nothing to contribute.
	RINothingToMerge RIOutcome = "nothing_to_merge"
)

// RIDecision is the outcome of the reverse-integration decision.
type RIDecision struct {
	Outcome RIOutcome

	// Source is the commit to merge when Outcome is RIMerge.
	Source string
}

// DecideReverseIntegration decides whether a node's result merges into
// the target branch. It is a pure function of the node's position and
// commits plus whether the merge source actually differs from the
// target tip.
//
// The diff gate is what carries chains of no-change nodes correctly: a
// leaf whose baseCommit inherited real upstream work merges that work
// even though the leaf itself produced nothing.
func DecideReverseIntegration(isLeaf bool, targetBranch, completedCommit, baseCommit string, hasDiffFromTarget bool) RIDecision {
	if !isLeaf || targetBranch == "" {
		return RIDecision{Outcome: RINotApplicable}
	}

	source := completedCommit
	if source == "" {
		source = baseCommit
	}
	if source == "" {
		return RIDecision{Outcome: RINothingToMerge}
	}
	if !hasDiffFromTarget {
		return RIDecision{Outcome: RINoOp, Source: source}
	}
	return RIDecision{Outcome: RIMerge, Source: source}
}

// -----------------------------------------------------------------------------
// Final merge
// -----------------------------------------------------------------------------

// FinalMerge integrates a plan's aggregate result commit into the target
// branch as a snapshot: a three-way merge-tree against the current
// target tip, wrapped in a synthetic merge commit, with a guarded ref
// update. No working tree is checked out and a conflicted merge leaves
// the target branch untouched.
func FinalMerge(git gitops.Git, targetBranch, sourceCommit, planName string) (string, error) {
	targetTip, err := git.ResolveRef(targetBranch)
	if err != nil {
		return "", err
	}

	hasDiff, err := git.HasDiff(targetTip, sourceCommit)
	if err != nil {
		return "", err
	}
	if !hasDiff {
		return targetTip, nil
	}

	result, err := git.MergeTree(targetTip, sourceCommit)
	if err != nil {
		return "", err
	}
	if !result.Clean {
		return "", errors.NewMergeConflictError("final merge has conflicts", result.Conflicts).
			WithSource(sourceCommit).
			WithTarget(targetBranch)
	}

	message := fmt.Sprintf("Integrate plan %s", planName)
	mergeCommit, err := git.CommitTree(result.TreeID, message, targetTip, sourceCommit)
	if err != nil {
		return "", err
	}

	// Guarded against the tip moving between resolve and update.
	if err := git.UpdateBranch(targetBranch, mergeCommit, targetTip); err != nil {
		return "", err
	}
	return mergeCommit, nil
}

// -----------------------------------------------------------------------------
// Work summary
// -----------------------------------------------------------------------------

// ComputeWorkSummary derives per-node and aggregate work summaries from
// git diffs. The summary is presentation data recomputed on demand;
// failures to read any one node's diff skip that node rather than
// failing the whole summary.
func ComputeWorkSummary(git gitops.Git, plan *model.PlanInstance) *model.WorkSummary {
	summary := &model.WorkSummary{}

	producers := make([]string, 0, len(plan.ProducerIDToNodeID))
	for producer := range plan.ProducerIDToNodeID {
		producers = append(producers, producer)
	}
	sort.Strings(producers)

	for _, producer := range producers {
		nodeID := plan.ProducerIDToNodeID[producer]
		state := plan.StateFor(nodeID)
		if state == nil || state.BaseCommit == "" || state.CompletedCommit == "" ||
			state.BaseCommit == state.CompletedCommit {
			continue
		}

		commits, err := git.CountCommits(state.BaseCommit, state.CompletedCommit)
		if err != nil {
			continue
		}
		changes, err := git.FileChangesBetween(state.BaseCommit, state.CompletedCommit)
		if err != nil {
			continue
		}

		job := model.JobWorkSummary{ProducerID: producer, Commits: commits}
		for _, change := range changes {
			switch change.Status {
			case "A":
				job.FilesAdded++
			case "D":
				job.FilesDeleted++
			default:
				job.FilesModified++
			}
		}
		summary.AddJob(job)
	}
	return summary
}
