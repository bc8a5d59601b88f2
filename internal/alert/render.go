package alert

import (
	"sort"
	"strings"
	"time"
)

// Render turns one alert into its notification message body.
//
// The layout is load-bearing: operators have dashboards and muting rules
// keyed on these exact lines, so changes here break downstream tooling.
//
//	[FIRING]: HighCPU
//
//	[FIRED AT]: 2024-01-01T00:00:00Z
//
//	[RESOLVED AT]: ...        (only when the alert resolved)
//
//	[SUMMARY]
//	cpu too high
//
// Annotations are emitted sorted by key so a batch renders identically on
// every node.
func Render(a Alert) string {
	var b strings.Builder

	b.WriteString("[")
	b.WriteString(strings.ToUpper(strings.TrimSpace(a.Status)))
	b.WriteString("]: ")
	b.WriteString(strings.TrimSpace(a.Labels["alertname"]))
	b.WriteString("\n\n")

	b.WriteString("[FIRED AT]: ")
	b.WriteString(a.StartsAt.Format(time.RFC3339))
	b.WriteString("\n\n")

	if a.Resolved() {
		b.WriteString("[RESOLVED AT]: ")
		b.WriteString(a.EndsAt.Format(time.RFC3339))
		b.WriteString("\n\n")
	}

	keys := make([]string, 0, len(a.Annotations))
	for k := range a.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(strings.ToUpper(strings.TrimSpace(k)))
		b.WriteString("]\n")
		b.WriteString(strings.TrimSpace(a.Annotations[k]))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderBatch renders every alert of a batch in arrival order.
func RenderBatch(batch Batch) []string {
	out := make([]string, 0, len(batch.Alerts))
	for _, a := range batch.Alerts {
		out = append(out, Render(a))
	}
	return out
}
