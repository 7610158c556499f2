package metrics

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders a duration as "1h 5m 30s", dropping leading
// units that are zero. Sub-second durations render as "0s". The output
// is locale-free and stable for a given input.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 || h > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}

// FormatTokens renders a token count with a compact suffix:
// 950 -> "950", 1234 -> "1.2k", 1000000 -> "1.0m".
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fm", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatPremiumRequests renders a premium request count with correct
// pluralization: "1 premium request", "3 premium requests".
func FormatPremiumRequests(n int64) string {
	if n == 1 {
		return "1 premium request"
	}
	return fmt.Sprintf("%d premium requests", n)
}
