package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

// FormatFallbackAlert reports that synthetic data replaced a provider result.
func FormatFallbackAlert(symbol, provider, dateRange, reason string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>Synthetic fallback</b> | %s\n\n", html.EscapeString(symbol)))
	b.WriteString(fmt.Sprintf("Range: %s\n", dateRange))
	b.WriteString(fmt.Sprintf("Provider: %s\n", html.EscapeString(provider)))
	b.WriteString(fmt.Sprintf("Reason: %s\n", html.EscapeString(reason)))
	return b.String()
}

// WarmupResult is the outcome of warming one symbol.
type WarmupResult struct {
	Symbol string
	Rows   int
	Err    error
}

// FormatWarmupSummary lists the warm-up outcome per symbol, failures first.
func FormatWarmupSummary(at time.Time, results []WarmupResult, elapsed time.Duration) string {
	sorted := append([]WarmupResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if (sorted[i].Err != nil) != (sorted[j].Err != nil) {
			return sorted[i].Err != nil
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	failed := 0
	for _, r := range sorted {
		if r.Err != nil {
			failed++
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Cache warm-up</b> | %s\n\n", at.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Symbols: %d | failed: %d | took %s\n\n", len(sorted), failed, elapsed.Round(time.Millisecond)))
	for _, r := range sorted {
		if r.Err != nil {
			b.WriteString(fmt.Sprintf("❌ %s: %s\n", html.EscapeString(r.Symbol), html.EscapeString(r.Err.Error())))
			continue
		}
		b.WriteString(fmt.Sprintf("✅ %s: %d rows\n", html.EscapeString(r.Symbol), r.Rows))
	}
	return b.String()
}
