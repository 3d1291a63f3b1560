package rules

import (
	"sort"
	"time"
)

// seqItem is a timestamp-comparable z entry used when a rule consumes a mixed
// chronological sequence (same-timestamp peers merged with history).
type seqItem struct {
	Z  *float64
	TS time.Time
}

// mergeSeries merges the given groups into one sequence sorted by timestamp
// descending and truncated to window entries (window <= 0 means no limit).
// The sort is stable, so ties at the same timestamp keep the caller's order
// (current point before its peers).
func mergeSeries(window int, groups ...[]seqItem) []seqItem {
	var merged []seqItem
	for _, g := range groups {
		merged = append(merged, g...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TS.After(merged[j].TS)
	})
	if window > 0 && len(merged) > window {
		merged = merged[:window]
	}
	return merged
}
