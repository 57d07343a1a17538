// Package stats reduces a set of scan records to dashboard counters.
package stats

import "github.com/yorozuya-cybersecurity/scanwatch/internal/schema"

// Stats are the aggregate counters shown on the overview and history views.
// Pending+Running+Completed+Failed always equals Total.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Running    int `json:"running"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	HighRisk   int `json:"high_risk"`
	MediumRisk int `json:"medium_risk"`
	LowRisk    int `json:"low_risk"`
}

// Compute recounts everything from scratch. Records carrying a status outside the enum are
// counted as pending so the partition holds even for hand-built input.
func Compute(records []schema.ScanRecord) Stats {
	s := Stats{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case schema.StatusRunning:
			s.Running++
		case schema.StatusCompleted:
			s.Completed++
		case schema.StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}

		switch r.OverallRisk {
		case schema.RiskHigh:
			s.HighRisk++
		case schema.RiskMedium:
			s.MediumRisk++
		case schema.RiskLow:
			s.LowRisk++
		}
	}
	return s
}

// ActiveScan returns the first running record, in input order
func ActiveScan(records []schema.ScanRecord) (schema.ScanRecord, bool) {
	for _, r := range records {
		if r.Status == schema.StatusRunning {
			return r, true
		}
	}
	return schema.ScanRecord{}, false
}
