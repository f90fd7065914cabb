// Package filter selects trial log records.
package filter

import (
	"path/filepath"

	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/timespec"
)

// Criteria defines filtering criteria for trial records.
// All filters are ANDed together - a record must match ALL criteria to pass.
type Criteria struct {
	Range     timespec.Range // zero bounds = no filter
	EventGlob string         // Glob pattern for the event name, empty = no filter
	Model     string         // Exact match on data.model, empty = no filter
}

// Matches returns true if the record matches all filter criteria.
func (c *Criteria) Matches(rec logging.TrialRecord) bool {
	if !c.Range.Contains(rec.Time()) {
		return false
	}

	if c.EventGlob != "" {
		matched, err := filepath.Match(c.EventGlob, rec.Event)
		if err != nil || !matched {
			return false
		}
	}

	if c.Model != "" {
		name, _ := rec.Data["model"].(string)
		if name != c.Model {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Range.IsOpen() || c.EventGlob != "" || c.Model != ""
}

// Apply returns the records that match c, in order.
func (c *Criteria) Apply(records []logging.TrialRecord) []logging.TrialRecord {
	if !c.HasFilters() {
		return records
	}
	out := make([]logging.TrialRecord, 0, len(records))
	for _, rec := range records {
		if c.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}
