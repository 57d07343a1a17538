package cli

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	reportpkg "github.com/yorozuya-cybersecurity/scanwatch/internal/report"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
	"github.com/yorozuya-cybersecurity/scanwatch/pkg/utils"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch <scan-id>",
		Short:   "Follow one scan live until it completes or fails",
		Example: "scanwatch watch 3f2c9a4e-... --save --html",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return watchScan(ctx, args[0], viper.GetBool("watch.save"), viper.GetBool("watch.html"))
		},
	}

	cmd.Flags().Bool("save", false, "Save the final record as JSON")
	cmd.Flags().Bool("html", false, "Render an HTML report once the scan finishes")
	_ = viper.BindPFlag("watch.save", cmd.Flags().Lookup("save"))
	_ = viper.BindPFlag("watch.html", cmd.Flags().Lookup("html"))
	return cmd
}

func watchScan(ctx context.Context, id string, save, html bool) error {
	d := view.NewDetail(newClient(), id, view.DetailOptions(cfg.Poll)...)
	updates, unsubscribe := d.Subscribe()
	defer unsubscribe()

	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	if err := live(ctx, updates, d.Done(), renderDetail); err != nil {
		return err
	}

	snap := d.Snapshot()
	switch {
	case snap.NotFound:
		return snap.Err
	case ctx.Err() != nil:
		pterm.Info.Printfln("Stopped watching %s", id)
		return nil
	case snap.Record == nil:
		return fmt.Errorf("no data received for scan %s", id)
	}

	rec := *snap.Record
	pterm.Success.Printfln("Scan %s %s", rec.ID, rec.Status)

	dir := utils.RecordDir(rec, cfg.Output)
	if save {
		file, err := utils.SaveResult(rec, cfg.Output)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("Record saved to %s", file)
	}
	if html {
		htmlPath, err := reportpkg.GenerateHTML(rec, dir)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("HTML report: %s", htmlPath)
	}
	return nil
}
