package cli

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/filter"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"history"},
		Short:   "List recent scans with optional search and filters",
		Example: `scanwatch list --search example.org --status completed
scanwatch list --risk high --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria := filter.Criteria{
				Search: viper.GetString("list.search"),
				Status: viper.GetString("list.status"),
				Risk:   viper.GetString("list.risk"),
			}
			if err := validateCriteria(criteria); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			opts := view.ListOptions(cfg.Poll)
			if limit := viper.GetInt("list.limit"); limit > 0 {
				opts = append(opts, view.WithLimit(limit))
			}
			h := view.NewHistory(newClient(), opts...)
			h.SetCriteria(criteria)
			updates, unsubscribe := h.Subscribe()
			defer unsubscribe()

			if viper.GetBool("list.watch") {
				if err := h.Start(ctx); err != nil {
					return err
				}
				defer h.Stop()
				return live(ctx, updates, h.Done(), renderHistory)
			}

			snap, err := first(ctx, updates, h.Refresh)
			if err != nil {
				return err
			}
			if snap.Err != nil {
				return snap.Err
			}
			out, err := renderHistory(snap)
			if err != nil {
				return err
			}
			pterm.Print(out)
			return nil
		},
	}

	cmd.Flags().String("search", "", "Match target (case-insensitive) or port range")
	cmd.Flags().String("status", filter.All, "Status filter: all, pending, running, completed, failed")
	cmd.Flags().String("risk", filter.All, "Risk filter: all, low, medium, high")
	cmd.Flags().Int("limit", 0, "Number of scans to fetch (1-100, default from config)")
	cmd.Flags().Bool("watch", false, "Keep refreshing")
	_ = viper.BindPFlag("list.search", cmd.Flags().Lookup("search"))
	_ = viper.BindPFlag("list.status", cmd.Flags().Lookup("status"))
	_ = viper.BindPFlag("list.risk", cmd.Flags().Lookup("risk"))
	_ = viper.BindPFlag("list.limit", cmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag("list.watch", cmd.Flags().Lookup("watch"))
	return cmd
}

func validateCriteria(c filter.Criteria) error {
	if st := strings.TrimSpace(c.Status); st != "" && !strings.EqualFold(st, filter.All) {
		if _, ok := schema.ParseStatus(st); !ok {
			return fmt.Errorf("unknown status %q", c.Status)
		}
	}
	if r := strings.TrimSpace(c.Risk); r != "" && !strings.EqualFold(r, filter.All) {
		if schema.ParseRisk(r) == schema.RiskNone {
			return fmt.Errorf("unknown risk %q", c.Risk)
		}
	}
	return nil
}
