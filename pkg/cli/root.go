package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/config"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/logger"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi"
)

var (
	Version = "0.1.0"
	rootCmd *cobra.Command
	cfgFile string
	cfg     *config.Config
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "scanwatch",
		Short: "Watch remote port scans from the terminal",
		Long: `scanwatch submits scans to an nScanner-compatible API and follows them until they finish:
a dashboard overview, a searchable history and a live per-scan detail view.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./scanwatch.yaml or ./configs/scanwatch.yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "Scan API base URL, e.g. http://localhost:8000/api")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-request timeout")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output directory for saved records and reports")
	_ = viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("api.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	// Environment variable support (SCANWATCH_API_BASE_URL, etc.)
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	// Subcommands
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newOverviewCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(scanapi.Message(err))
		os.Exit(1)
	}
}

// setup loads configuration and installs the logger before any command runs
func setup(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	if err := config.ReadFile(v, cfgFile); err != nil {
		return err
	}
	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	if _, err := logger.Init(&cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	switch cfg.Log.Level {
	case "debug":
		pterm.EnableDebugMessages()
	case "error", "fatal", "panic":
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	logger.WithField("config", v.ConfigFileUsed()).Debug("configuration loaded")
	return nil
}

func newClient() scanapi.Client {
	return scanapi.NewClient(cfg.API.BaseURL,
		scanapi.WithTimeout(cfg.API.Timeout),
		scanapi.WithUserAgent("scanwatch/"+Version),
	)
}

// signalContext is cancelled on Ctrl-C so watch loops can exit cleanly
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scanwatch version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scanwatch %s\n", Version)
		},
	}
}
