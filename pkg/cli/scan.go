package cli

import (
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Submit a new port scan",
		Example: `scanwatch scan --target scanme.example.org
scanwatch scan --target 203.0.113.7 --port-range 1-65535 --watch --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(viper.GetString("scan.target"))
			if target == "" {
				return errors.New("please provide --target")
			}
			portRange := viper.GetString("scan.port_range")

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ov := view.NewOverview(newClient(), view.ListOptions(cfg.Poll)...)
			id, err := ov.StartScan(ctx, target, portRange)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Scan %s submitted for %s (ports %s)", id, target, portRange)

			if !viper.GetBool("scan.watch") {
				pterm.Info.Printfln("Follow it with: scanwatch watch %s", id)
				return nil
			}
			return watchScan(ctx, id, viper.GetBool("scan.save"), false)
		},
	}

	cmd.Flags().String("target", "", "Domain or public IP address to scan")
	cmd.Flags().String("port-range", schema.PortRangePresets[0],
		"Port range: "+strings.Join(schema.PortRangePresets, ", ")+" or a custom list such as 22,80,443")
	cmd.Flags().Bool("watch", false, "Follow the scan until it finishes")
	cmd.Flags().Bool("save", false, "Save the final record as JSON (requires --watch)")
	_ = viper.BindPFlag("scan.target", cmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("scan.port_range", cmd.Flags().Lookup("port-range"))
	_ = viper.BindPFlag("scan.watch", cmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("scan.save", cmd.Flags().Lookup("save"))

	return cmd
}
