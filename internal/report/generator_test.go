package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/normalize"
)

func sampleRecord() map[string]any {
	return map[string]any{
		"id":           "s1",
		"target":       "scanme.example.org",
		"port_range":   "1-1024",
		"status":       "completed",
		"started_at":   "2025-09-11T13:17:22",
		"completed_at": "2025-09-11T13:19:02",
		"overall_risk": "high",
		"port_results": []any{
			map[string]any{
				"port": 22, "state": "open", "service": "ssh", "version": "OpenSSH 7.4",
				"latency": 12.34, "tls": false,
				"findings": []any{map[string]any{"type": "outdated", "detail": "OpenSSH <script>7.4</script>", "severity": "medium"}},
			},
			map[string]any{
				"port": 443, "state": "open", "service": "https", "tls": true, "risk": "high",
				"findings": []any{
					map[string]any{"type": "weak-cipher", "detail": "TLS 1.0 enabled", "severity": "HIGH"},
					map[string]any{"type": "banner", "detail": "nginx"},
				},
			},
			map[string]any{"port": 80, "is_open": false},
		},
	}
}

func TestBuildViewModel(t *testing.T) {
	rec := normalize.Normalize(sampleRecord())
	vm := buildViewModel(rec, time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "high", vm.OverallRisk)
	assert.Equal(t, "1m40s", vm.Duration)
	assert.Equal(t, "2025-09-11T13:17:22Z", vm.StartedAt)
	assert.Equal(t, map[string]int{"CRITICAL": 0, "HIGH": 1, "MEDIUM": 1, "LOW": 0, "INFO": 1}, vm.Counts)

	require.Len(t, vm.Findings, 3)
	assert.Equal(t, "HIGH", vm.Findings[0].Severity)
	assert.Equal(t, 443, vm.Findings[0].Port)
	assert.Equal(t, "MEDIUM", vm.Findings[1].Severity)
	assert.Equal(t, "INFO", vm.Findings[2].Severity)

	require.Len(t, vm.Ports, 3)
	assert.Equal(t, "12.3 ms", vm.Ports[0].Latency)
	assert.Equal(t, "no", vm.Ports[0].TLS)
	assert.Equal(t, "—", vm.Ports[0].Risk)
	assert.Equal(t, "yes", vm.Ports[1].TLS)
	assert.Equal(t, "closed", vm.Ports[2].State)
	assert.Equal(t, 2025, vm.Year)
}

func TestGenerateHTML(t *testing.T) {
	dir := t.TempDir()
	rec := normalize.Normalize(sampleRecord())

	path, err := GenerateHTML(rec, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "report.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "scanme.example.org")
	assert.Contains(t, html, "OpenSSH 7.4")
	assert.Contains(t, html, "TLS 1.0 enabled")
	assert.NotContains(t, html, "<script>7.4</script>", "finding detail must be escaped")
}

func TestGenerateHTMLEmptyRecord(t *testing.T) {
	rec := normalize.Normalize(map[string]any{"id": "x", "status": "pending"})

	path, err := GenerateHTML(rec, t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No port results.")
	assert.Contains(t, string(data), "No findings.")
}

func TestLoadRecordMissing(t *testing.T) {
	_, err := LoadRecord(t.TempDir())
	assert.ErrorContains(t, err, "record.json")
}

func TestTrimToKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", trimTo("  short ", 10))

	banner := strings.Repeat("a", 299) + "ü" + "tail"
	got := trimTo(banner, 300)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 299)+"…", got)

	got = trimTo(strings.Repeat("日本", 10), 7)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "日本…", got)
}
