package metrics

import (
	"encoding/json"
	"testing"

	"github.com/plandeck/plandeck/internal/model"
)

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if got == nil {
		t.Fatal("Aggregate(nil) should return a zero result, not nil")
	}
	if got.DurationMS != 0 {
		t.Errorf("DurationMS = %d, want 0", got.DurationMS)
	}
	if got.PremiumRequests != nil || got.SessionTimeSeconds != nil {
		t.Error("optional fields must stay absent for the empty aggregate")
	}
}

func TestAggregateIdentity(t *testing.T) {
	in := &model.UsageMetrics{
		DurationMS:      1500,
		PremiumRequests: model.Int64Ptr(3),
		ModelBreakdown: map[string]model.ModelUsage{
			"gpt-5": {TokensIn: 100, TokensOut: 50},
		},
	}
	got := Aggregate([]*model.UsageMetrics{in})
	if got.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", got.DurationMS)
	}
	if got.PremiumRequests == nil || *got.PremiumRequests != 3 {
		t.Errorf("PremiumRequests = %v, want 3", got.PremiumRequests)
	}
	if got == in {
		t.Error("identity must still return a copy, not the input")
	}
	got.ModelBreakdown["gpt-5"] = model.ModelUsage{TokensIn: 999}
	if in.ModelBreakdown["gpt-5"].TokensIn != 100 {
		t.Error("mutating the result must not affect the input")
	}
}

func TestAggregateSumsDurations(t *testing.T) {
	list := []*model.UsageMetrics{
		{DurationMS: 100},
		{DurationMS: 250},
		{DurationMS: 650},
	}
	got := Aggregate(list)
	if got.DurationMS != 1000 {
		t.Errorf("DurationMS = %d, want 1000", got.DurationMS)
	}
}

func TestAggregateOptionalFieldPresence(t *testing.T) {
	list := []*model.UsageMetrics{
		{DurationMS: 10, PremiumRequests: model.Int64Ptr(2)},
		{DurationMS: 20}, // premium absent here, still sums correctly
		{DurationMS: 30, PremiumRequests: model.Int64Ptr(5)},
	}
	got := Aggregate(list)
	if got.PremiumRequests == nil || *got.PremiumRequests != 7 {
		t.Errorf("PremiumRequests = %v, want 7", got.PremiumRequests)
	}
	// Absent from all inputs: stays absent, not zero.
	if got.SessionTimeSeconds != nil {
		t.Errorf("SessionTimeSeconds = %v, want absent", got.SessionTimeSeconds)
	}
	if got.Turns != nil {
		t.Errorf("Turns = %v, want absent", got.Turns)
	}
}

func TestAggregateMergesModelBreakdown(t *testing.T) {
	list := []*model.UsageMetrics{
		{
			DurationMS: 1,
			ModelBreakdown: map[string]model.ModelUsage{
				"gpt-5": {TokensIn: 100, TokensOut: 40, CachedTokens: 10, PremiumRequests: 1},
			},
		},
		{
			DurationMS: 1,
			ModelBreakdown: map[string]model.ModelUsage{
				"gpt-5":       {TokensIn: 200, TokensOut: 60, CachedTokens: 30, PremiumRequests: 2},
				"gpt-5-codex": {TokensIn: 500},
			},
		},
	}
	got := Aggregate(list)
	if len(got.ModelBreakdown) != 2 {
		t.Fatalf("breakdown entries = %d, want 2", len(got.ModelBreakdown))
	}
	merged := got.ModelBreakdown["gpt-5"]
	if merged.TokensIn != 300 || merged.TokensOut != 100 || merged.CachedTokens != 40 || merged.PremiumRequests != 3 {
		t.Errorf("merged gpt-5 = %+v", merged)
	}
	if got.ModelBreakdown["gpt-5-codex"].TokensIn != 500 {
		t.Errorf("gpt-5-codex entry = %+v", got.ModelBreakdown["gpt-5-codex"])
	}
}

func TestNodeMetricsHistoryIsAuthoritative(t *testing.T) {
	m := &model.UsageMetrics{DurationMS: 5000, SessionTimeSeconds: model.Float64Ptr(100)}
	state := &model.NodeExecutionState{
		Metrics: m,
		AttemptHistory: []model.AttemptRecord{
			{AttemptNumber: 1, Status: model.NodeSucceeded, Metrics: m},
		},
	}
	got := NodeMetrics(state)
	if got == nil || got.SessionTimeSeconds == nil {
		t.Fatalf("NodeMetrics = %+v", got)
	}
	if *got.SessionTimeSeconds != 100 {
		t.Errorf("SessionTimeSeconds = %v, want 100 (not double counted)", *got.SessionTimeSeconds)
	}
}

func TestNodeMetricsNoDoubleCountAfterRoundTrip(t *testing.T) {
	state := &model.NodeExecutionState{
		Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(100)},
		AttemptHistory: []model.AttemptRecord{
			{AttemptNumber: 1, Status: model.NodeSucceeded,
				Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(100)}},
		},
	}

	// Round trip through JSON so any reference identity is gone.
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored model.NodeExecutionState
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := NodeMetrics(&restored)
	if got == nil || got.SessionTimeSeconds == nil {
		t.Fatalf("NodeMetrics = %+v", got)
	}
	if *got.SessionTimeSeconds != 100 {
		t.Errorf("SessionTimeSeconds = %v, want 100 after round trip", *got.SessionTimeSeconds)
	}
}

func TestNodeMetricsMultiAttempt(t *testing.T) {
	state := &model.NodeExecutionState{
		// The snapshot is ignored entirely when history exists.
		Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(200)},
		AttemptHistory: []model.AttemptRecord{
			{AttemptNumber: 1, Status: model.NodeFailed,
				Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(80)}},
			{AttemptNumber: 2, Status: model.NodeSucceeded,
				Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(200)}},
		},
	}
	got := NodeMetrics(state)
	if got == nil || got.SessionTimeSeconds == nil {
		t.Fatalf("NodeMetrics = %+v", got)
	}
	if *got.SessionTimeSeconds != 280 {
		t.Errorf("SessionTimeSeconds = %v, want 280", *got.SessionTimeSeconds)
	}
}

func TestNodeMetricsFallbacks(t *testing.T) {
	if NodeMetrics(nil) != nil {
		t.Error("nil state should yield nil")
	}
	if NodeMetrics(&model.NodeExecutionState{}) != nil {
		t.Error("state with no metrics should yield nil")
	}

	// Empty history falls back to the snapshot.
	state := &model.NodeExecutionState{Metrics: &model.UsageMetrics{DurationMS: 42}}
	got := NodeMetrics(state)
	if got == nil || got.DurationMS != 42 {
		t.Errorf("NodeMetrics = %+v, want snapshot fallback", got)
	}

	// History whose attempts carry no metrics yields nil, not the snapshot.
	state = &model.NodeExecutionState{
		Metrics:        &model.UsageMetrics{DurationMS: 42},
		AttemptHistory: []model.AttemptRecord{{AttemptNumber: 1, Status: model.NodeFailed}},
	}
	if got := NodeMetrics(state); got != nil {
		t.Errorf("NodeMetrics = %+v, want nil when history has no metrics", got)
	}
}

func TestPlanMetrics(t *testing.T) {
	mkState := func(sessionSeconds float64, withHistory bool) *model.NodeExecutionState {
		m := &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(sessionSeconds)}
		st := &model.NodeExecutionState{Metrics: m}
		if withHistory {
			st.AttemptHistory = []model.AttemptRecord{{AttemptNumber: 1, Status: model.NodeSucceeded, Metrics: m}}
		}
		return st
	}
	plan := &model.PlanInstance{
		NodeStates: map[string]*model.NodeExecutionState{
			"a": mkState(100, true),
			"b": {
				AttemptHistory: []model.AttemptRecord{
					{AttemptNumber: 1, Status: model.NodeFailed,
						Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(80)}},
					{AttemptNumber: 2, Status: model.NodeSucceeded,
						Metrics: &model.UsageMetrics{SessionTimeSeconds: model.Float64Ptr(200)}},
				},
			},
			"c": mkState(50, false),
			"d": {}, // contributes nothing
		},
	}
	got := PlanMetrics(plan)
	if got == nil || got.SessionTimeSeconds == nil {
		t.Fatalf("PlanMetrics = %+v", got)
	}
	if *got.SessionTimeSeconds != 430 {
		t.Errorf("SessionTimeSeconds = %v, want 430", *got.SessionTimeSeconds)
	}
}

func TestPlanMetricsNoContribution(t *testing.T) {
	plan := &model.PlanInstance{
		NodeStates: map[string]*model.NodeExecutionState{
			"a": {},
			"b": {},
		},
	}
	if got := PlanMetrics(plan); got != nil {
		t.Errorf("PlanMetrics = %+v, want nil when nothing contributed", got)
	}
}
