package stats

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/normalize"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

func rec(id string, st schema.Status, risk schema.Risk) schema.ScanRecord {
	return schema.ScanRecord{ID: id, Status: st, OverallRisk: risk}
}

func TestCompute(t *testing.T) {
	records := []schema.ScanRecord{
		rec("1", schema.StatusCompleted, schema.RiskHigh),
		rec("2", schema.StatusCompleted, schema.RiskLow),
		rec("3", schema.StatusRunning, schema.RiskNone),
		rec("4", schema.StatusFailed, schema.RiskNone),
		rec("5", schema.StatusPending, schema.RiskNone),
		rec("6", schema.StatusCompleted, schema.RiskMedium),
		rec("7", schema.StatusCompleted, schema.RiskHigh),
	}

	assert.Equal(t, Stats{
		Total:      7,
		Pending:    1,
		Running:    1,
		Completed:  4,
		Failed:     1,
		HighRisk:   2,
		MediumRisk: 1,
		LowRisk:    1,
	}, Compute(records))
}

func TestComputeEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, Compute(nil))
}

func TestPartition(t *testing.T) {
	raws := []string{"pending", "RUNNING", "completed", "failed", "queued", "", "Completed", "cancelled"}
	for n := 0; n <= len(raws); n++ {
		var records []schema.ScanRecord
		for i, st := range raws[:n] {
			records = append(records, normalize.Normalize(map[string]any{
				"id":     fmt.Sprint(i),
				"status": st,
			}))
		}
		s := Compute(records)
		assert.Equal(t, s.Total, s.Pending+s.Running+s.Completed+s.Failed, "n=%d", n)
		assert.Equal(t, n, s.Total)
	}

	// hand-built record with an out-of-enum status still lands in a bucket
	s := Compute([]schema.ScanRecord{{ID: "x", Status: "weird"}})
	assert.Equal(t, 1, s.Pending)
}

func TestActiveScan(t *testing.T) {
	records := []schema.ScanRecord{
		rec("a", schema.StatusCompleted, schema.RiskNone),
		rec("b", schema.StatusRunning, schema.RiskNone),
		rec("c", schema.StatusRunning, schema.RiskNone),
	}

	got, ok := ActiveScan(records)
	assert.True(t, ok)
	assert.Equal(t, "b", got.ID)

	_, ok = ActiveScan(records[:1])
	assert.False(t, ok)
}
