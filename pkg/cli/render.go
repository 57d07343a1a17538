package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/stats"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
)

func statusText(s schema.Status) string {
	switch s {
	case schema.StatusRunning:
		return pterm.FgCyan.Sprint(s)
	case schema.StatusCompleted:
		return pterm.FgGreen.Sprint(s)
	case schema.StatusFailed:
		return pterm.FgRed.Sprint(s)
	default:
		return pterm.FgGray.Sprint(s)
	}
}

func riskText(r schema.Risk) string {
	switch r {
	case schema.RiskHigh:
		return pterm.FgRed.Sprint(r)
	case schema.RiskMedium:
		return pterm.FgYellow.Sprint(r)
	case schema.RiskLow:
		return pterm.FgGreen.Sprint(r)
	default:
		return r.Display()
	}
}

func timeText(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func renderTable(headers []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	tableData := pterm.TableData{headers}
	tableData = append(tableData, rows...)

	out, err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(tableData).
		Srender()
	if err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return out, nil
}

func recordsTable(records []schema.ScanRecord) (string, error) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.Target,
			r.PortRangeSpec,
			statusText(r.Status),
			riskText(r.OverallRisk),
			timeText(r.StartedAt),
		})
	}
	return renderTable([]string{"ID", "Target", "Ports", "Status", "Risk", "Started"}, rows)
}

func statsLine(s stats.Stats) string {
	return fmt.Sprintf("total %d · pending %d · running %d · completed %d · failed %d · high risk %d",
		s.Total, s.Pending, s.Running, s.Completed, s.Failed, s.HighRisk)
}

func renderOverview(snap view.OverviewSnapshot, recent int) (string, error) {
	var b strings.Builder
	b.WriteString(pterm.DefaultSection.Sprint("Overview"))
	b.WriteString(statsLine(snap.Stats) + "\n\n")

	if snap.Active != nil {
		fmt.Fprintf(&b, "Active scan: %s %s (%s)\n\n", snap.Active.ID, snap.Active.Target, snap.Active.PortRangeSpec)
	} else {
		b.WriteString("No active scan\n\n")
	}

	records := snap.Records
	if len(records) > recent {
		records = records[:recent]
	}
	table, err := recordsTable(records)
	if err != nil {
		return "", err
	}
	b.WriteString(table)
	b.WriteString(errorLine(snap.Err, snap.UpdatedAt))
	return b.String(), nil
}

func renderHistory(snap view.HistorySnapshot) (string, error) {
	var b strings.Builder
	b.WriteString(statsLine(snap.Stats) + "\n")
	fmt.Fprintf(&b, "showing %d of %d\n\n", len(snap.Records), snap.Stats.Total)

	if len(snap.Records) == 0 {
		b.WriteString("No scans match.\n")
	} else {
		table, err := recordsTable(snap.Records)
		if err != nil {
			return "", err
		}
		b.WriteString(table)
	}
	b.WriteString(errorLine(snap.Err, snap.UpdatedAt))
	return b.String(), nil
}

func renderDetail(snap view.DetailSnapshot) (string, error) {
	var b strings.Builder
	switch {
	case snap.Deleted:
		return fmt.Sprintf("Scan %s was deleted.\n", snap.ID), nil
	case snap.NotFound:
		return fmt.Sprintf("Scan %s not found.\n", snap.ID), nil
	case snap.Record == nil:
		fmt.Fprintf(&b, "Waiting for scan %s...\n", snap.ID)
		b.WriteString(errorLine(snap.Err, snap.UpdatedAt))
		return b.String(), nil
	}

	rec := snap.Record
	b.WriteString(pterm.DefaultSection.Sprint(rec.Target))
	fmt.Fprintf(&b, "id %s · ports %s · status %s · risk %s\n", rec.ID, rec.PortRangeSpec, statusText(rec.Status), riskText(rec.OverallRisk))
	fmt.Fprintf(&b, "started %s · completed %s\n", timeText(rec.StartedAt), timeText(rec.CompletedAt))
	s := rec.Summary
	fmt.Fprintf(&b, "scanned %d · open %d · closed %d · errors %d · findings %d (critical %d, high %d) · score %.1f\n\n",
		s.PortsScanned, s.OpenPorts, s.ClosedPorts, s.ErrorCount, s.TotalFindings, s.CriticalFindings, s.HighFindings, s.RiskScore)

	rows := make([][]string, 0, len(rec.PortResults))
	for _, p := range rec.PortResults {
		rows = append(rows, []string{
			strconv.Itoa(p.Port),
			string(p.State),
			p.Protocol,
			p.Service,
			p.Version,
			schema.Risk(p.Risk).Display(),
			strconv.Itoa(len(p.Findings)),
		})
	}
	table, err := renderTable([]string{"Port", "State", "Proto", "Service", "Version", "Risk", "Findings"}, rows)
	if err != nil {
		return "", err
	}
	b.WriteString(table)
	b.WriteString(errorLine(snap.Err, snap.UpdatedAt))
	return b.String(), nil
}

func errorLine(err error, updated time.Time) string {
	if err == nil {
		return ""
	}
	if updated.IsZero() {
		return pterm.Warning.Sprintln(err.Error())
	}
	return pterm.Warning.Sprintfln("%s (showing data from %s)", err.Error(), updated.Local().Format("15:04:05"))
}
