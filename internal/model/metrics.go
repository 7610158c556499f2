package model

// ModelUsage is the per-model slice of a usage metrics record. Entries
// are keyed by model name in UsageMetrics.ModelBreakdown and merged
// additively when metrics are aggregated.
type ModelUsage struct {
	// TokensIn is the input token count.
	TokensIn int64 `json:"tokens_in"`

	// TokensOut is the output token count.
	TokensOut int64 `json:"tokens_out"`

	// CachedTokens is the count of tokens served from prompt cache.
	CachedTokens int64 `json:"cached_tokens"`

	// PremiumRequests is the count of premium-billed requests.
	PremiumRequests int64 `json:"premium_requests"`

	// CostUSD is the estimated cost in US dollars.
	CostUSD float64 `json:"cost_usd"`
}

// UsageMetrics records resource usage for one attempt of one node.
//
// DurationMS is always present. Every other numeric field is optional:
// a nil pointer means "not yet observed", which aggregation treats
// differently from an observed zero. Fields absent from every input stay
// absent in the aggregate.
type UsageMetrics struct {
	// DurationMS is wall-clock duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// PremiumRequests is the total premium-billed request count.
	PremiumRequests *int64 `json:"premium_requests,omitempty"`

	// APITimeSeconds is time spent inside model API calls.
	APITimeSeconds *float64 `json:"api_time_seconds,omitempty"`

	// SessionTimeSeconds is total agent session time.
	SessionTimeSeconds *float64 `json:"session_time_seconds,omitempty"`

	// LinesAdded is the count of lines the attempt added.
	LinesAdded *int64 `json:"lines_added,omitempty"`

	// LinesRemoved is the count of lines the attempt removed.
	LinesRemoved *int64 `json:"lines_removed,omitempty"`

	// Turns is the agent conversation turn count.
	Turns *int64 `json:"turns,omitempty"`

	// ToolCalls is the agent tool invocation count.
	ToolCalls *int64 `json:"tool_calls,omitempty"`

	// ModelBreakdown holds per-model usage keyed by model name.
	ModelBreakdown map[string]ModelUsage `json:"model_breakdown,omitempty"`
}

// Clone returns a deep copy of the metrics record.
func (m *UsageMetrics) Clone() *UsageMetrics {
	if m == nil {
		return nil
	}
	cp := UsageMetrics{DurationMS: m.DurationMS}
	cp.PremiumRequests = cloneInt64(m.PremiumRequests)
	cp.APITimeSeconds = cloneFloat64(m.APITimeSeconds)
	cp.SessionTimeSeconds = cloneFloat64(m.SessionTimeSeconds)
	cp.LinesAdded = cloneInt64(m.LinesAdded)
	cp.LinesRemoved = cloneInt64(m.LinesRemoved)
	cp.Turns = cloneInt64(m.Turns)
	cp.ToolCalls = cloneInt64(m.ToolCalls)
	if m.ModelBreakdown != nil {
		cp.ModelBreakdown = make(map[string]ModelUsage, len(m.ModelBreakdown))
		for name, usage := range m.ModelBreakdown {
			cp.ModelBreakdown[name] = usage
		}
	}
	return &cp
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat64(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Int64Ptr returns a pointer to v. Convenience for building optional fields.
func Int64Ptr(v int64) *int64 { return &v }

// Float64Ptr returns a pointer to v. Convenience for building optional fields.
func Float64Ptr(v float64) *float64 { return &v }
