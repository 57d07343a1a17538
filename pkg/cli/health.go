package cli

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the scan API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newClient().Health(cmd.Context())
			if err != nil {
				return err
			}
			pterm.Success.Printfln("%s %s is %s (%s)", h.Service, h.Version, h.Status, cfg.API.BaseURL)
			return nil
		},
	}
}
