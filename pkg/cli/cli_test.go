package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/filter"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi/scanapitest"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/stats"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
)

func run(t *testing.T, srv *scanapitest.Server, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append(args, "--api-url", srv.BaseURL(), "--log-level", "error"))
	return rootCmd.Execute()
}

func newServer(t *testing.T) *scanapitest.Server {
	t.Helper()
	srv := scanapitest.NewServer()
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthCommand(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, run(t, srv, "health"))
	assert.Equal(t, int64(1), srv.Requests("GET /api/health"))
}

func TestDeleteCommand(t *testing.T) {
	srv := newServer(t)
	srv.Put("a", map[string]any{"id": "a", "status": "completed"})

	require.NoError(t, run(t, srv, "delete", "a"))
	assert.False(t, srv.Has("a"))

	err := run(t, srv, "delete", "a")
	assert.True(t, scanapi.IsNotFound(err))
}

func TestScanCommandValidation(t *testing.T) {
	srv := newServer(t)

	err := run(t, srv, "scan", "--target", "localhost")
	var valErr *scanapi.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, scanapi.KindValidation, scanapi.Classify(err))
}

func TestReportCommandFromAPI(t *testing.T) {
	srv := newServer(t)
	srv.Put("s1", map[string]any{
		"id":           "s1",
		"target":       "scanme.example.org",
		"port_range":   "1-1024",
		"status":       "completed",
		"started_at":   "2025-09-11T13:17:22",
		"overall_risk": "low",
		"port_results": []any{map[string]any{"port": 22, "state": "open", "service": "ssh"}},
	})
	out := t.TempDir()

	require.NoError(t, run(t, srv, "report", "--id", "s1", "--format", "html,json", "--output", out))

	dir := filepath.Join(out, "scanme.example.org_20250911_131722")
	assert.FileExists(t, filepath.Join(dir, "record.json"))
	assert.FileExists(t, filepath.Join(dir, "report.html"))
}

func TestValidateCriteria(t *testing.T) {
	assert.NoError(t, validateCriteria(filter.Criteria{Status: "all", Risk: "all"}))
	assert.NoError(t, validateCriteria(filter.Criteria{Status: "Running", Risk: "high"}))
	assert.Error(t, validateCriteria(filter.Criteria{Status: "queued"}))
	assert.Error(t, validateCriteria(filter.Criteria{Risk: "critical"}))
}

func TestRenderHistory(t *testing.T) {
	records := []schema.ScanRecord{
		{ID: "a", Target: "scanme.example.org", PortRangeSpec: "1-1024", Status: schema.StatusCompleted, OverallRisk: schema.RiskHigh},
	}
	out, err := renderHistory(view.HistorySnapshot{Records: records, Stats: stats.Compute(records), Loaded: true})
	require.NoError(t, err)
	assert.Contains(t, out, "scanme.example.org")
	assert.Contains(t, out, "showing 1 of 1")

	out, err = renderHistory(view.HistorySnapshot{Loaded: true})
	require.NoError(t, err)
	assert.Contains(t, out, "No scans match.")
}
