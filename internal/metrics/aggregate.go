// Package metrics provides pure aggregation of usage metrics across
// attempts, nodes, and plans, plus deterministic formatting helpers.
//
// Aggregation is an algebra over [model.UsageMetrics]:
//   - the empty list aggregates to a zero-duration result
//   - a single input is the identity (returned as a copy, unchanged)
//   - multiple inputs sum the duration and every optional field that is
//     present in at least one input; fields absent from all inputs stay
//     absent rather than becoming zero
//   - per-model breakdown entries are merged by model name, counts
//     summed, distinct names kept separate
//
// # Double Counting
//
// A node's current Metrics field is a snapshot of its latest attempt.
// Summing it against the attempt history would count that attempt twice,
// and a reference-identity guard does not survive a serialize/deserialize
// round trip. The rule here is explicit instead: when attempt history
// exists, it is the only metrics source for that node, full stop.
package metrics

import (
	"sort"

	"github.com/plandeck/plandeck/internal/model"
)

// accumulator carries running sums alongside has-this-field-been-seen
// flags, so absent-in-all-inputs fields stay absent in the output while
// absent-in-some inputs count as zero in the sum.
type accumulator struct {
	durationMS int64

	premiumRequests int64
	seenPremium     bool

	apiTimeSeconds float64
	seenAPITime    bool

	sessionTimeSeconds float64
	seenSessionTime    bool

	linesAdded    int64
	seenLinesAdd  bool
	linesRemoved  int64
	seenLinesRem  bool
	turns         int64
	seenTurns     bool
	toolCalls     int64
	seenToolCalls bool

	breakdown map[string]model.ModelUsage
}

// add folds one metrics record into the accumulator.
func (a *accumulator) add(m *model.UsageMetrics) {
	if m == nil {
		return
	}
	a.durationMS += m.DurationMS

	if m.PremiumRequests != nil {
		a.premiumRequests += *m.PremiumRequests
		a.seenPremium = true
	}
	if m.APITimeSeconds != nil {
		a.apiTimeSeconds += *m.APITimeSeconds
		a.seenAPITime = true
	}
	if m.SessionTimeSeconds != nil {
		a.sessionTimeSeconds += *m.SessionTimeSeconds
		a.seenSessionTime = true
	}
	if m.LinesAdded != nil {
		a.linesAdded += *m.LinesAdded
		a.seenLinesAdd = true
	}
	if m.LinesRemoved != nil {
		a.linesRemoved += *m.LinesRemoved
		a.seenLinesRem = true
	}
	if m.Turns != nil {
		a.turns += *m.Turns
		a.seenTurns = true
	}
	if m.ToolCalls != nil {
		a.toolCalls += *m.ToolCalls
		a.seenToolCalls = true
	}

	for name, usage := range m.ModelBreakdown {
		if a.breakdown == nil {
			a.breakdown = make(map[string]model.ModelUsage)
		}
		merged := a.breakdown[name]
		merged.TokensIn += usage.TokensIn
		merged.TokensOut += usage.TokensOut
		merged.CachedTokens += usage.CachedTokens
		merged.PremiumRequests += usage.PremiumRequests
		merged.CostUSD += usage.CostUSD
		a.breakdown[name] = merged
	}
}

// result materializes the accumulator into a metrics record.
func (a *accumulator) result() *model.UsageMetrics {
	out := &model.UsageMetrics{DurationMS: a.durationMS}
	if a.seenPremium {
		out.PremiumRequests = model.Int64Ptr(a.premiumRequests)
	}
	if a.seenAPITime {
		out.APITimeSeconds = model.Float64Ptr(a.apiTimeSeconds)
	}
	if a.seenSessionTime {
		out.SessionTimeSeconds = model.Float64Ptr(a.sessionTimeSeconds)
	}
	if a.seenLinesAdd {
		out.LinesAdded = model.Int64Ptr(a.linesAdded)
	}
	if a.seenLinesRem {
		out.LinesRemoved = model.Int64Ptr(a.linesRemoved)
	}
	if a.seenTurns {
		out.Turns = model.Int64Ptr(a.turns)
	}
	if a.seenToolCalls {
		out.ToolCalls = model.Int64Ptr(a.toolCalls)
	}
	out.ModelBreakdown = a.breakdown
	return out
}

// Aggregate combines a list of metrics records into one. It is pure:
// inputs are never mutated and the result shares no memory with them.
func Aggregate(list []*model.UsageMetrics) *model.UsageMetrics {
	if len(list) == 0 {
		return &model.UsageMetrics{}
	}
	if len(list) == 1 {
		if list[0] == nil {
			return &model.UsageMetrics{}
		}
		return list[0].Clone()
	}
	var acc accumulator
	for _, m := range list {
		acc.add(m)
	}
	return acc.result()
}

// NodeMetrics returns the aggregated metrics for one node's execution
// state, or nil when the node has recorded nothing.
//
// When the attempt history is non-empty it is the authoritative source:
// only the history's recorded metrics are aggregated and the state's
// current Metrics snapshot is ignored entirely. This holds even when the
// snapshot is a deep-equal copy of the latest attempt after a round trip
// through the store. Only with an empty history does the snapshot count.
func NodeMetrics(state *model.NodeExecutionState) *model.UsageMetrics {
	if state == nil {
		return nil
	}
	if len(state.AttemptHistory) > 0 {
		var recorded []*model.UsageMetrics
		for i := range state.AttemptHistory {
			if state.AttemptHistory[i].Metrics != nil {
				recorded = append(recorded, state.AttemptHistory[i].Metrics)
			}
		}
		if len(recorded) == 0 {
			return nil
		}
		return Aggregate(recorded)
	}
	if state.Metrics != nil {
		return state.Metrics.Clone()
	}
	return nil
}

// PlanMetrics aggregates NodeMetrics over every node in the plan,
// skipping nodes that contributed nothing. It returns nil when no node
// contributed, so callers can distinguish "no usage recorded" from an
// all-zero aggregate.
func PlanMetrics(plan *model.PlanInstance) *model.UsageMetrics {
	if plan == nil {
		return nil
	}
	ids := make([]string, 0, len(plan.NodeStates))
	for id := range plan.NodeStates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var contributed []*model.UsageMetrics
	for _, id := range ids {
		if m := NodeMetrics(plan.NodeStates[id]); m != nil {
			contributed = append(contributed, m)
		}
	}
	if len(contributed) == 0 {
		return nil
	}
	return Aggregate(contributed)
}
