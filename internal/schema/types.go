package schema

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a scan job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// ParseStatus resolves a raw status string. ok is false for anything outside the enum.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are expected
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return 0
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic:
// pending -> running -> {completed, failed}, terminal states never change.
func (s Status) CanAdvanceTo(next Status) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// PortState is the observed state of a single port
type PortState string

const (
	PortOpen     PortState = "open"
	PortClosed   PortState = "closed"
	PortFiltered PortState = "filtered"
	PortUnknown  PortState = "unknown"
)

// Risk is a coarse risk level. The zero value means "not reported".
type Risk string

const (
	RiskNone   Risk = ""
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ParseRisk resolves a raw risk level, returning RiskNone when unrecognized
func ParseRisk(s string) Risk {
	r := Risk(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return r
	}
	return RiskNone
}

// Display renders a risk for humans, "—" when absent
func (r Risk) Display() string {
	if r == RiskNone {
		return "—"
	}
	return string(r)
}

// Finding is a single security observation attached to a port
type Finding struct {
	Type     string `json:"type" mapstructure:"type"`
	Detail   string `json:"detail" mapstructure:"detail"`
	Severity string `json:"severity" mapstructure:"severity"`
}

type TLSInfo struct {
	Issuer       string `json:"issuer" mapstructure:"issuer"`
	NotBefore    string `json:"not_before" mapstructure:"not_before"`
	NotAfter     string `json:"not_after" mapstructure:"not_after"`
	Version      string `json:"version" mapstructure:"version"`
	SerialNumber string `json:"serial_number" mapstructure:"serial_number"`
}

type HTTPInfo struct {
	ServerHeader string `json:"server_header" mapstructure:"server_header"`
	StatusCode   int    `json:"status_code" mapstructure:"status_code"`
}

// PortFinding is the per-port observation within a scan
type PortFinding struct {
	Port           int       `json:"port"`
	State          PortState `json:"state"`
	Protocol       string    `json:"protocol"`
	Service        string    `json:"service,omitempty"`
	Version        string    `json:"version,omitempty"`
	Banner         string    `json:"banner,omitempty"`
	TLS            *bool     `json:"tls,omitempty"`
	Risk           string    `json:"risk,omitempty"`
	Latency        *float64  `json:"latency,omitempty"`
	TLSInfo        *TLSInfo  `json:"tls_info,omitempty"`
	HTTPInfo       *HTTPInfo `json:"http_info,omitempty"`
	MappingSummary string    `json:"mapping_summary,omitempty"`
	Remediation    string    `json:"remediation,omitempty"`
	Error          string    `json:"error,omitempty"`
	Findings       []Finding `json:"findings"`
}

// Summary is the aggregate view of one scan, server supplied or derived
type Summary struct {
	PortsScanned     int     `json:"ports_scanned" mapstructure:"ports_scanned"`
	OpenPorts        int     `json:"open_ports" mapstructure:"open_ports"`
	ClosedPorts      int     `json:"closed_ports" mapstructure:"closed_ports"`
	ErrorCount       int     `json:"error_count" mapstructure:"error_count"`
	TotalFindings    int     `json:"total_findings" mapstructure:"total_findings"`
	CriticalFindings int     `json:"critical_findings" mapstructure:"critical_findings"`
	HighFindings     int     `json:"high_findings" mapstructure:"high_findings"`
	RiskLevel        string  `json:"risk_level" mapstructure:"risk_level"`
	RiskScore        float64 `json:"risk_score" mapstructure:"risk_score"`
}

// RecordFile is the file name a saved record snapshot lives under
const RecordFile = "record.json"

// ScanRecord is the canonical client-side state of one scan job.
// Records are replaced, never mutated, on every successful poll.
type ScanRecord struct {
	ID            string        `json:"id"`
	Target        string        `json:"target"`
	PortRangeSpec string        `json:"port_range"`
	Status        Status        `json:"status"`
	StartedAt     *time.Time    `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at"`
	OverallRisk   Risk          `json:"overall_risk"`
	Summary       Summary       `json:"scan_summary"`
	PortResults   []PortFinding `json:"port_results"`
}

// Health is the liveness document served by the scan API
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// PortRangePresets is the preset vocabulary offered to users. Custom ranges pass through untouched.
var PortRangePresets = []string{"1-1024", "1-5000", "1-10000", "1-65535"}
