package cli

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	reportpkg "github.com/yorozuya-cybersecurity/scanwatch/internal/report"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
	"github.com/yorozuya-cybersecurity/scanwatch/pkg/utils"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate HTML/PDF/JSON reports for a scan",
		Example: `scanwatch report --id 3f2c9a4e-... --format html,pdf
scanwatch report --from ./reports/example.com_20250911_131722 --format html`,
		RunE: runReport,
	}

	cmd.Flags().String("id", "", "Scan id to fetch from the API")
	cmd.Flags().String("from", "", "Saved record directory (must contain record.json)")
	cmd.Flags().String("format", "html,pdf", "Output formats: html,pdf,json")

	_ = viper.BindPFlag("report.id", cmd.Flags().Lookup("id"))
	_ = viper.BindPFlag("report.from", cmd.Flags().Lookup("from"))
	_ = viper.BindPFlag("report.format", cmd.Flags().Lookup("format"))
	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	id := viper.GetString("report.id")
	from := viper.GetString("report.from")
	if (id == "") == (from == "") {
		return errors.New("please provide exactly one of --id or --from")
	}

	formats := strings.Split(viper.GetString("report.format"), ",")
	for i := range formats {
		formats[i] = strings.TrimSpace(strings.ToLower(formats[i]))
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var (
		rec schema.ScanRecord
		dir = from
	)
	if from != "" {
		loaded, err := reportpkg.LoadRecord(from)
		if err != nil {
			return err
		}
		rec = loaded
	} else {
		d := view.NewDetail(newClient(), id)
		updates, unsubscribe := d.Subscribe()
		defer unsubscribe()
		snap, err := first(ctx, updates, d.Refresh)
		if err != nil {
			return err
		}
		if snap.Record == nil {
			return snap.Err
		}
		rec = *snap.Record
		dir = utils.RecordDir(rec, cfg.Output)
		if !rec.Status.IsTerminal() {
			pterm.Warning.Printfln("Scan %s is still %s, the report is a partial snapshot", rec.ID, rec.Status)
		}
	}

	// Optional JSON snapshot
	if contains(formats, "json") {
		if from != "" {
			pterm.Info.Printfln("JSON already exists at: %s", filepath.Join(from, schema.RecordFile))
		} else {
			file, err := utils.SaveResult(rec, cfg.Output)
			if err != nil {
				return err
			}
			pterm.Info.Printfln("JSON record: %s", file)
		}
	}

	if !contains(formats, "html") && !contains(formats, "pdf") {
		return nil
	}
	htmlPath, err := reportpkg.GenerateHTML(rec, dir)
	if err != nil {
		return err
	}
	pterm.Info.Printfln("HTML report: %s", htmlPath)

	// Optional PDF (chromedp-based)
	if contains(formats, "pdf") {
		pdfPath, err := reportpkg.GeneratePDF(ctx, htmlPath)
		if err != nil {
			pterm.Warning.Printfln("PDF generation failed: %v", err)
		} else {
			pterm.Info.Printfln("PDF report:  %s", pdfPath)
		}
	}

	return nil
}

func contains(arr []string, v string) bool {
	for _, x := range arr {
		if x == v {
			return true
		}
	}
	return false
}
