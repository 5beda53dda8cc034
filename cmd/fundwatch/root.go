package main

import (
	"github.com/spf13/cobra"

	"github.com/bobmcallan/fundwatch/internal/app"
	"github.com/bobmcallan/fundwatch/internal/common"
)

// cliOptions holds dependencies shared by all commands.
type cliOptions struct {
	configPath string
	jsonMode   bool
	newApp     func(configPath string) (*app.App, error)
}

func defaultOptions() *cliOptions {
	return &cliOptions{
		newApp: func(configPath string) (*app.App, error) {
			return app.NewApp(configPath)
		},
	}
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	common.LoadVersionFromFile()

	root := &cobra.Command{
		Use:   "fundwatch",
		Short: "Fund holdings and daily profit tracker",
		Long: `fundwatch tracks mutual fund holdings across two accounts and computes today's
profit from intraday estimates and published end-of-day values.`,
		Version:      common.GetFullVersion(),
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to fundwatch.toml (default: $FUNDWATCH_CONFIG, then alongside the binary)")
	root.PersistentFlags().BoolVarP(&opts.jsonMode, "json", "j", false, "Output in JSON format")

	root.AddCommand(
		newServeCmd(opts),
		newRefreshCmd(opts),
		newSearchCmd(opts),
		newSessionCmd(opts),
		newHoldingsCmd(opts),
		newReportCmd(opts),
		newVersionCmd(),
	)
	return root
}
