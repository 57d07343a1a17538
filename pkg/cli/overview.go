package cli

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
)

func newOverviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "overview",
		Aliases: []string{"dashboard"},
		Short:   "Show scan counters, the active scan and the most recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			recent := viper.GetInt("overview.recent")
			render := func(s view.OverviewSnapshot) (string, error) { return renderOverview(s, recent) }

			ov := view.NewOverview(newClient(), view.ListOptions(cfg.Poll)...)
			updates, unsubscribe := ov.Subscribe()
			defer unsubscribe()

			if viper.GetBool("overview.watch") {
				if err := ov.Start(ctx); err != nil {
					return err
				}
				defer ov.Stop()
				return live(ctx, updates, ov.Done(), render)
			}

			snap, err := first(ctx, updates, ov.Refresh)
			if err != nil {
				return err
			}
			if snap.Err != nil {
				return snap.Err
			}
			out, err := render(snap)
			if err != nil {
				return err
			}
			pterm.Print(out)
			return nil
		},
	}

	cmd.Flags().Int("recent", 5, "Number of recent scans to show")
	cmd.Flags().Bool("watch", false, "Keep refreshing")
	_ = viper.BindPFlag("overview.recent", cmd.Flags().Lookup("recent"))
	_ = viper.BindPFlag("overview.watch", cmd.Flags().Lookup("watch"))
	return cmd
}
