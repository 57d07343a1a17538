// Package normalize reconciles the scan API's versioned payload shapes into schema.ScanRecord.
//
// The fallback order of every field is the contract with older servers. Each resolver takes
// the first key that is present and non-null, so a field that exists but is empty still wins
// over its legacy alias.
//
//	id            id -> scan_id -> ""
//	target        target -> host -> ""
//	port range    port_range -> ports -> ""
//	port list     port_results -> results -> []
//	status        recognized string -> pending
//	port state    recognized state string -> is_open bool -> unknown
//	port risk     risk -> base_severity -> ""
//	protocol      protocol -> "tcp"
//	summary       scan_summary (ports_scanned reconciled) -> derived from the port list
//
// Normalize never fails and never panics. Malformed input degrades to sentinel values.
package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

const (
	defaultProtocol  = "tcp"
	defaultSeverity  = "info"
	unknownRiskLevel = "unknown"
)

// Normalize converts a decoded JSON payload into a canonical record
func Normalize(raw any) schema.ScanRecord {
	m := asMap(raw)

	rec := schema.ScanRecord{
		ID:            firstString(m, "id", "scan_id"),
		Target:        firstString(m, "target", "host"),
		PortRangeSpec: firstString(m, "port_range", "ports"),
		Status:        resolveStatus(m["status"]),
		StartedAt:     resolveTime(m["started_at"]),
		CompletedAt:   resolveTime(m["completed_at"]),
		OverallRisk:   schema.ParseRisk(cast.ToString(m["overall_risk"])),
	}
	rec.PortResults = resolvePorts(m)
	rec.Summary = resolveSummary(m, rec)
	return rec
}

// NormalizeList normalizes every element, preserving order
func NormalizeList(raws []map[string]any) []schema.ScanRecord {
	out := make([]schema.ScanRecord, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

// Canonical renders a record back into the canonical wire shape.
// Normalize(Canonical(rec)) == rec for any rec produced by Normalize.
// Non-finite numbers have no JSON form and are dropped first.
func Canonical(rec schema.ScanRecord) map[string]any {
	rec = dropNonFinite(rec)
	out := map[string]any{}
	data, err := json.Marshal(rec)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	if rec.OverallRisk == schema.RiskNone {
		out["overall_risk"] = nil
	}
	return out
}

func dropNonFinite(rec schema.ScanRecord) schema.ScanRecord {
	if !finite(rec.Summary.RiskScore) {
		rec.Summary.RiskScore = 0
	}
	for i, p := range rec.PortResults {
		if p.Latency != nil && !finite(*p.Latency) {
			ports := make([]schema.PortFinding, len(rec.PortResults))
			copy(ports, rec.PortResults)
			for j := i; j < len(ports); j++ {
				if ports[j].Latency != nil && !finite(*ports[j].Latency) {
					ports[j].Latency = nil
				}
			}
			rec.PortResults = ports
			break
		}
	}
	return rec
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case schema.ScanRecord:
		return Canonical(m)
	case *schema.ScanRecord:
		if m != nil {
			return Canonical(*m)
		}
	}
	return map[string]any{}
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// lookup returns the first present, non-null value among keys
func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func resolveStatus(v any) schema.Status {
	s, _ := v.(string)
	if st, ok := schema.ParseStatus(s); ok {
		return st
	}
	return schema.StatusPending
}

func resolveTime(v any) *time.Time {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func resolvePorts(m map[string]any) []schema.PortFinding {
	var list []any
	if s, ok := asSlice(m["port_results"]); ok {
		list = s
	} else if s, ok := asSlice(m["results"]); ok {
		list = s
	}

	ports := make([]schema.PortFinding, 0, len(list))
	for _, item := range list {
		ports = append(ports, resolvePort(asMap(item)))
	}
	return ports
}

func resolvePort(p map[string]any) schema.PortFinding {
	pf := schema.PortFinding{
		Port:           cast.ToInt(p["port"]),
		State:          resolvePortState(p),
		Protocol:       firstString(p, "protocol"),
		Service:        firstString(p, "service"),
		Version:        firstString(p, "version"),
		Banner:         firstString(p, "banner"),
		Risk:           strings.ToLower(firstString(p, "risk", "base_severity")),
		MappingSummary: firstString(p, "mapping_summary"),
		Remediation:    firstString(p, "remediation"),
		Error:          firstString(p, "error"),
		Findings:       resolveFindings(p["findings"]),
	}
	if pf.Protocol == "" {
		pf.Protocol = defaultProtocol
	}
	if b, ok := p["tls"].(bool); ok {
		pf.TLS = &b
	}
	if v, ok := lookup(p, "latency"); ok {
		if f, err := cast.ToFloat64E(v); err == nil && finite(f) {
			pf.Latency = &f
		}
	}
	if info, ok := p["tls_info"].(map[string]any); ok {
		var ti schema.TLSInfo
		weakDecode(info, &ti)
		pf.TLSInfo = &ti
	}
	if info, ok := p["http_info"].(map[string]any); ok {
		var hi schema.HTTPInfo
		weakDecode(info, &hi)
		pf.HTTPInfo = &hi
	}
	return pf
}

func resolvePortState(p map[string]any) schema.PortState {
	if s, ok := p["state"].(string); ok {
		switch st := schema.PortState(strings.ToLower(strings.TrimSpace(s))); st {
		case schema.PortOpen, schema.PortClosed, schema.PortFiltered:
			return st
		}
	}
	if open, ok := p["is_open"].(bool); ok {
		if open {
			return schema.PortOpen
		}
		return schema.PortClosed
	}
	return schema.PortUnknown
}

func resolveFindings(v any) []schema.Finding {
	list, _ := asSlice(v)
	findings := make([]schema.Finding, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var f schema.Finding
		weakDecode(m, &f)
		f.Severity = strings.ToLower(f.Severity)
		if f.Severity == "" {
			f.Severity = defaultSeverity
		}
		findings = append(findings, f)
	}
	return findings
}

func resolveSummary(m map[string]any, rec schema.ScanRecord) schema.Summary {
	if raw, ok := m["scan_summary"].(map[string]any); ok {
		var s schema.Summary
		weakDecode(raw, &s)
		if !finite(s.RiskScore) {
			s.RiskScore = 0
		}
		if len(rec.PortResults) > 0 {
			s.PortsScanned = len(rec.PortResults)
		}
		return s
	}
	return derive(rec)
}

func derive(rec schema.ScanRecord) schema.Summary {
	s := schema.Summary{
		PortsScanned: len(rec.PortResults),
		RiskLevel:    unknownRiskLevel,
	}
	for _, p := range rec.PortResults {
		switch p.State {
		case schema.PortOpen:
			s.OpenPorts++
		case schema.PortClosed:
			s.ClosedPorts++
		}
		if p.Error != "" {
			s.ErrorCount++
		}
		s.TotalFindings += len(p.Findings)
		for _, f := range p.Findings {
			switch f.Severity {
			case "critical":
				s.CriticalFindings++
			case "high":
				s.HighFindings++
			}
		}
	}
	if rec.OverallRisk != schema.RiskNone {
		s.RiskLevel = string(rec.OverallRisk)
	}
	return s
}

// weakDecode is best effort: fields that fail to convert keep their zero value
func weakDecode(in map[string]any, out any) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return
	}
	_ = dec.Decode(in)
}
