package report

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

//go:embed templates/report.html.tmpl
var reportHTMLTemplate string

// ---------- Public API ----------

// LoadRecord reads a record saved with utils.SaveResult
func LoadRecord(fromDir string) (schema.ScanRecord, error) {
	var rec schema.ScanRecord
	data, err := os.ReadFile(filepath.Join(fromDir, schema.RecordFile))
	if err != nil {
		return rec, fmt.Errorf("read %s: %w", schema.RecordFile, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse %s: %w", schema.RecordFile, err)
	}
	return rec, nil
}

// GenerateHTML renders rec into outDir/report.html
func GenerateHTML(rec schema.ScanRecord, outDir string) (string, error) {
	vm := buildViewModel(rec, time.Now())

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create out dir: %w", err)
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"lower": strings.ToLower,
	}).Parse(reportHTMLTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vm); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	htmlPath := filepath.Join(outDir, "report.html")
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write report.html: %w", err)
	}

	logger.WithField("path", htmlPath).Debug("html report written")
	return htmlPath, nil
}

var ErrChromeNotFound = errors.New("chrome/chromium not found")

var chromeNames = []string{
	"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome", "headless-shell",
}

// GeneratePDF prints an HTML report to PDF next to it with headless Chrome
func GeneratePDF(ctx context.Context, htmlPath string) (string, error) {
	browser, err := findChrome()
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", htmlPath, err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(browser))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var pdf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("file://"+filepath.ToSlash(abs)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp: %w", err)
	}

	pdfPath := strings.TrimSuffix(htmlPath, ".html") + ".pdf"
	if err := os.WriteFile(pdfPath, pdf, 0644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return pdfPath, nil
}

func findChrome() (string, error) {
	for _, name := range chromeNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrChromeNotFound
}

// ---------- View Model & helpers ----------

type viewModel struct {
	ID          string
	Target      string
	PortRange   string
	Status      string
	StartedAt   string
	CompletedAt string
	Duration    string
	OverallRisk string
	Summary     schema.Summary
	Counts      map[string]int
	Ports       []portRow
	Findings    []findingRow
	Generator   string
	GeneratedAt string
	Legend      []string
	Year        int
}

type portRow struct {
	Port        int
	State       string
	Protocol    string
	Service     string
	Version     string
	Risk        string
	Latency     string
	TLS         string
	Remediation string
}

type findingRow struct {
	Severity string
	Port     int
	Type     string
	Detail   string
}

var sevOrder = []string{"critical", "high", "medium", "low", "info"}

func buildViewModel(rec schema.ScanRecord, now time.Time) viewModel {
	now = now.UTC()
	counts := map[string]int{}
	var ports []portRow
	var rows []findingRow

	for _, p := range rec.PortResults {
		ports = append(ports, portRow{
			Port:        p.Port,
			State:       string(p.State),
			Protocol:    p.Protocol,
			Service:     emptyFallback(p.Service, "-"),
			Version:     emptyFallback(p.Version, "-"),
			Risk:        schema.Risk(p.Risk).Display(),
			Latency:     latency(p.Latency),
			TLS:         tls(p.TLS),
			Remediation: trimTo(p.Remediation, 300),
		})
		for _, f := range p.Findings {
			sev := strings.ToLower(f.Severity)
			if sev == "" {
				sev = "info"
			}
			counts[sev]++
			rows = append(rows, findingRow{
				Severity: strings.ToUpper(sev),
				Port:     p.Port,
				Type:     emptyFallback(f.Type, "N/A"),
				Detail:   trimTo(f.Detail, 500),
			})
		}
	}

	// Sort findings: severity -> port
	sort.SliceStable(rows, func(i, j int) bool {
		ai := indexOf(sevOrder, strings.ToLower(rows[i].Severity))
		bi := indexOf(sevOrder, strings.ToLower(rows[j].Severity))
		if ai != bi {
			return ai < bi
		}
		return rows[i].Port < rows[j].Port
	})

	return viewModel{
		ID:          rec.ID,
		Target:      rec.Target,
		PortRange:   emptyFallback(rec.PortRangeSpec, "-"),
		Status:      string(rec.Status),
		StartedAt:   formatTime(rec.StartedAt),
		CompletedAt: formatTime(rec.CompletedAt),
		Duration:    duration(rec.StartedAt, rec.CompletedAt),
		OverallRisk: rec.OverallRisk.Display(),
		Summary:     rec.Summary,
		Counts:      normalizeCounts(counts, sevOrder),
		Ports:       ports,
		Findings:    rows,
		Generator:   "scanwatch",
		GeneratedAt: now.Format(time.RFC3339),
		Legend:      []string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "INFO"},
		Year:        now.Year(),
	}
}

func indexOf(arr []string, s string) int {
	for i, v := range arr {
		if v == s {
			return i
		}
	}
	return len(arr)
}

func normalizeCounts(in map[string]int, order []string) map[string]int {
	out := make(map[string]int)
	for _, k := range order {
		out[strings.ToUpper(k)] = in[k]
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func duration(start, end *time.Time) string {
	if start == nil || end == nil || end.Before(*start) {
		return "-"
	}
	return end.Sub(*start).Round(time.Second).String()
}

func latency(ms *float64) string {
	if ms == nil {
		return "-"
	}
	return strconv.FormatFloat(*ms, 'f', 1, 64) + " ms"
}

func tls(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return "yes"
	default:
		return "no"
	}
}

func trimTo(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func emptyFallback(s, fb string) string {
	if strings.TrimSpace(s) == "" {
		return fb
	}
	return s
}
