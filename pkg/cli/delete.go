package cli

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/view"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scan-id>...",
		Short: "Delete one or more scans",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := view.NewHistory(newClient(), view.ListOptions(cfg.Poll)...)
			for _, id := range args {
				msg, err := h.Delete(cmd.Context(), id)
				if err != nil {
					return err
				}
				pterm.Success.Printfln("%s: %s", id, msg)
			}
			return nil
		},
	}
}
