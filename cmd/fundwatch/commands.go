package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/bobmcallan/fundwatch/internal/app"
	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
	"github.com/bobmcallan/fundwatch/internal/services/holdings"
	"github.com/bobmcallan/fundwatch/internal/services/report"
)

const commandTimeout = 60 * time.Second

// withApp opens the app for a one-shot command and closes it afterwards.
func withApp(opts *cliOptions, fn func(ctx context.Context, a *app.App) error) error {
	a, err := opts.newApp(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return fn(ctx, a)
}

func newRefreshCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch fresh percentages once and print today's profit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				snap, err := a.Refresh.Refresh(ctx)
				if err != nil {
					return err
				}
				return printSnapshot(newFormatter(cmd.OutOrStdout(), opts.jsonMode), snap)
			})
		},
	}
}

func newSearchCmd(opts *cliOptions) *cobra.Command {
	var add bool
	cmd := &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Search funds by code, name or pinyin abbreviation",
		Long: `Search funds by code, name or pinyin abbreviation.

Examples:
  fundwatch search 白酒
  fundwatch search zzbj
  fundwatch search 161725 --add`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				results, err := a.Quotes.SearchFunds(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if add {
					added, dupes, err := a.Holdings.AddFromSearch(ctx, results)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Added %d, skipped %d already held\n", added, dupes)
					return nil
				}

				f := newFormatter(out, opts.jsonMode)
				if f.JSONMode {
					return f.JSON(results)
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "No matching funds")
					return nil
				}
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Code, r.Name, r.Category})
				}
				return f.Table([]string{"Code", "Name", "Category"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&add, "add", false, "Add every match to the holdings")
	return cmd
}

func newSessionCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the market session window in UTC+8",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				info := a.Session.Info(a.Now())
				f := newFormatter(cmd.OutOrStdout(), opts.jsonMode)
				if f.JSONMode {
					return f.JSON(info)
				}
				return f.Table([]string{"Field", "Value"}, [][]string{
					{"State", string(info.State)},
					{"Now", info.Now.Format("2006-01-02 15:04")},
					{"Trading day", strconv.FormatBool(info.TradingDay)},
					{"Estimate only", strconv.FormatBool(info.EstimateOnly)},
					{"Manual real fetch", strconv.FormatBool(info.ManualRealFetch)},
					{"Expected date", info.ExpectedDate},
				})
			})
		},
	}
}

func newHoldingsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "List and edit tracked funds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				list, err := a.Holdings.List(ctx)
				if err != nil {
					return err
				}
				f := newFormatter(cmd.OutOrStdout(), opts.jsonMode)
				if f.JSONMode {
					return f.JSON(list)
				}
				rows := make([][]string, 0, len(list))
				for _, h := range list {
					rows = append(rows, []string{h.Code, h.Name, money(h.CapitalA), money(h.CapitalB)})
				}
				return f.Table([]string{"Code", "Name", "Capital A", "Capital B"}, rows)
			})
		},
	}

	var capA, capB float64
	add := &cobra.Command{
		Use:   "add CODE",
		Short: "Add a fund by its 6-digit code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				h, err := a.Holdings.Add(ctx, models.Holding{
					Name:     args[0],
					Code:     holdings.ParseCode(args[0]),
					CapitalA: capA,
					CapitalB: capB,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", h.Name)
				return nil
			})
		},
	}
	add.Flags().Float64VarP(&capA, "capital-a", "a", 0, "Yesterday's position value in account A")
	add.Flags().Float64VarP(&capB, "capital-b", "b", 0, "Yesterday's position value in account B")

	remove := &cobra.Command{
		Use:   "remove CODE",
		Short: "Remove a fund by its 6-digit code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				list, err := a.Holdings.List(ctx)
				if err != nil {
					return err
				}
				for _, h := range list {
					if h.Code == args[0] {
						if err := a.Holdings.Remove(ctx, h.ID); err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", h.Name)
						return nil
					}
				}
				return fmt.Errorf("%s: %w", args[0], holdings.ErrNotFound)
			})
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func newReportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Refresh once and print the plain-text daily report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				snap, err := a.Refresh.Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.Summary(snap, a.Now()))
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := common.VersionInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "fundwatch %s (build %s, commit %s)\n", info.Version, info.Build, info.GitCommit)
		},
	}
}

func printSnapshot(f *formatter, snap *models.Snapshot) error {
	if f.JSONMode {
		return f.JSON(snap)
	}

	rows := make([][]string, 0, len(snap.Result.Rows)+1)
	for _, i := range snap.Order {
		r := snap.Result.Rows[i]
		rows = append(rows, []string{r.Code, r.Name, percent(r), money(r.RowProfit)})
	}
	t := snap.Result.Totals
	rows = append(rows, []string{"", "Total", money(t.TotalPercent) + "%", money(t.TotalProfit)})

	if err := f.Table([]string{"Code", "Name", "Percent", "Profit"}, rows); err != nil {
		return err
	}
	if snap.Attempted > 0 && snap.Succeeded < snap.Attempted {
		fmt.Fprintf(f.Writer, "\n%d of %d funds could not be fetched\n", snap.Attempted-snap.Succeeded, snap.Attempted)
	}
	return nil
}

func percent(r models.ProfitRow) string {
	if math.IsNaN(r.Percent) {
		return "--"
	}
	s := money(r.Percent) + "%"
	if r.IsReal {
		s += " (real)"
	}
	return s
}

func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "--"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
