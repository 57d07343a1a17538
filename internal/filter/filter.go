// Package filter narrows a list of scan records for the history view.
package filter

import (
	"strings"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

// All disables the status or risk criterion, same as leaving it empty
const All = "all"

// Criteria selects records. Zero value matches everything.
type Criteria struct {
	// Search is matched case-insensitively against the target, and verbatim against the
	// port range spec
	Search string
	Status string
	Risk   string
}

// IsZero reports whether the criteria match every record
func (c Criteria) IsZero() bool {
	return c.Search == "" && isAll(c.Status) && isAll(c.Risk)
}

// Matches reports whether rec satisfies every criterion
func Matches(rec schema.ScanRecord, c Criteria) bool {
	if c.Search != "" {
		inTarget := strings.Contains(strings.ToLower(rec.Target), strings.ToLower(c.Search))
		if !inTarget && !strings.Contains(rec.PortRangeSpec, c.Search) {
			return false
		}
	}
	if !isAll(c.Status) && !strings.EqualFold(string(rec.Status), c.Status) {
		return false
	}
	if !isAll(c.Risk) && !strings.EqualFold(string(rec.OverallRisk), c.Risk) {
		return false
	}
	return true
}

// Apply returns the matching records in their original order. With zero criteria the
// input slice is returned as-is.
func Apply(records []schema.ScanRecord, c Criteria) []schema.ScanRecord {
	if c.IsZero() {
		return records
	}
	out := make([]schema.ScanRecord, 0, len(records))
	for _, r := range records {
		if Matches(r, c) {
			out = append(out, r)
		}
	}
	return out
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}
