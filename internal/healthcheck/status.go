package healthcheck

import (
	"sort"

	"github.com/hazz-dev/healthgate/internal/task"
)

// OverallStatus is the aggregate health of all checks.
type OverallStatus string

const (
	// StatusGray means no check has produced a result yet.
	StatusGray OverallStatus = "gray"
	// StatusGreen means every finished check succeeded.
	StatusGreen OverallStatus = "green"
	// StatusYellow means a non-critical check is failing.
	StatusYellow OverallStatus = "yellow"
	// StatusRed means a critical check is failing.
	StatusRed OverallStatus = "red"
)

// Snapshot is the published aggregate value. Each publish is a full
// replacement; snapshots are never mutated after publishing.
type Snapshot struct {
	Status OverallStatus `json:"status"`
	Checks []task.Info   `json:"checks"`
	Error  string        `json:"error,omitempty"`
}

// OK reports whether the snapshot gates startup: green and yellow pass,
// red and gray do not.
func (s Snapshot) OK() bool {
	return s.Status == StatusGreen || s.Status == StatusYellow
}

// computeOverall reduces check snapshots to an aggregate status. The
// reduction is order-independent: start green, degrade to yellow on any
// finished non-critical non-success, escalate to red on any finished
// critical non-success. An empty set is vacuously green; a set where
// nothing has finished yet is gray.
func computeOverall(checks []task.Info) OverallStatus {
	if len(checks) == 0 {
		return StatusGreen
	}

	finished := false
	status := StatusGreen
	for _, c := range checks {
		if c.Status != task.StatusFinished {
			continue
		}
		finished = true
		if c.Result == task.ResultSuccess {
			continue
		}
		if c.Meta.Critical {
			return StatusRed
		}
		status = StatusYellow
	}

	if !finished {
		return StatusGray
	}
	return status
}

// mergeChecks overlays next onto prev by task name. Entries in next replace
// same-named entries in prev; all other prev entries are preserved
// untouched. The merged set is sorted by name for deterministic rendering.
func mergeChecks(prev, next []task.Info) []task.Info {
	merged := make([]task.Info, 0, len(prev)+len(next))
	replaced := make(map[string]int, len(prev))

	for _, c := range prev {
		replaced[c.Name] = len(merged)
		merged = append(merged, c)
	}
	for _, c := range next {
		if i, ok := replaced[c.Name]; ok {
			merged[i] = c
			continue
		}
		replaced[c.Name] = len(merged)
		merged = append(merged, c)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

// newSnapshot builds a published value from a check set.
func newSnapshot(checks []task.Info) Snapshot {
	sorted := make([]task.Info, len(checks))
	copy(sorted, checks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return Snapshot{
		Status: computeOverall(sorted),
		Checks: sorted,
	}
}
