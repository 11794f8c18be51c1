package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chatello/gateway/pkg/analytics"
	"chatello/gateway/pkg/cli"
)

var analyticsFlags struct {
	date     string
	backfill int
	days     int
	output   string
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Run and inspect daily analytics",
	Long: `Compute daily business snapshots (customers, MRR, ARR, usage) and list them.

Snapshots are stored in analytics.database_path. The server computes the
previous day on analytics.schedule; these commands run the job by hand.

Examples:
  # Snapshot yesterday
  chatello analytics run

  # Snapshot a specific day
  chatello analytics run --date 2026-03-14

  # Recompute the last 30 days
  chatello analytics run --backfill 30

  # Show the last week as CSV
  chatello analytics list --days 7 --output csv`,
}

var analyticsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute and store daily snapshots",
	RunE:  runAnalytics,
}

var analyticsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	RunE:  runAnalyticsList,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsRunCmd, analyticsListCmd)

	analyticsRunCmd.Flags().StringVar(&analyticsFlags.date, "date", "", "UTC day YYYY-MM-DD (default yesterday)")
	analyticsRunCmd.Flags().IntVar(&analyticsFlags.backfill, "backfill", 0, "recompute this many days ending at --date")
	analyticsListCmd.Flags().IntVar(&analyticsFlags.days, "days", 30, "number of days to list")
	analyticsListCmd.Flags().StringVarP(&analyticsFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	day := time.Now().UTC().AddDate(0, 0, -1)
	if analyticsFlags.date != "" {
		parsed, err := time.Parse(time.DateOnly, analyticsFlags.date)
		if err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", analyticsFlags.date)
		}
		day = parsed
	}
	if analyticsFlags.backfill < 0 {
		return fmt.Errorf("--backfill must not be negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, logger, nil)
	if err != nil {
		return cli.NewCommandError("analytics run", err)
	}
	defer a.Close()

	snapshots, err := analytics.NewSQLiteStore(cfg.Analytics.DatabasePath)
	if err != nil {
		return cli.NewCommandError("analytics run", err)
	}
	defer snapshots.Close()

	job := analytics.NewJob(a.store, snapshots, cfg.Analytics.RetentionDays, nil, logger)

	if analyticsFlags.backfill <= 1 {
		snap, err := job.Run(ctx, day)
		if err != nil {
			return cli.NewCommandError("analytics run", err)
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), snap)
	}

	total := analyticsFlags.backfill
	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "Backfilling")
	progress.Start(int64(total))
	for i := range total {
		d := day.AddDate(0, 0, -(total - 1 - i))
		if _, err := job.Run(ctx, d); err != nil {
			progress.Error(err)
			return cli.NewCommandError("analytics run", err)
		}
		progress.Update(int64(i + 1))
	}
	progress.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d snapshots computed through %s\n", total, analytics.DayKey(day))
	return nil
}

func runAnalyticsList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(analyticsFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := newLogger(cfg, os.Stderr); err != nil {
		return err
	}

	snapshots, err := analytics.NewSQLiteStore(cfg.Analytics.DatabasePath)
	if err != nil {
		return cli.NewCommandError("analytics list", err)
	}
	defer snapshots.Close()

	now := time.Now().UTC()
	days := max(analyticsFlags.days, 1)
	list, err := snapshots.ListSnapshots(cmd.Context(),
		analytics.DayKey(now.AddDate(0, 0, -(days-1))), analytics.DayKey(now))
	if err != nil {
		return cli.NewCommandError("analytics list", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), snapshotTable(list))
}

// snapshotTable renders snapshots for text and CSV output.
type snapshotTable []*analytics.DailySnapshot

func (snapshotTable) Header() []string {
	return []string{"DATE", "CUSTOMERS", "ACTIVE", "PAYING", "MRR", "ARR", "ONE_TIME", "REQUESTS", "TOKENS", "COST"}
}

func (t snapshotTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			s.Date,
			strconv.FormatInt(s.TotalCustomers, 10),
			strconv.FormatInt(s.ActiveLicenses, 10),
			strconv.FormatInt(s.PayingCustomers, 10),
			strconv.FormatFloat(s.MRR, 'f', 2, 64),
			strconv.FormatFloat(s.ARR, 'f', 2, 64),
			strconv.FormatFloat(s.OneTimeRevenue, 'f', 2, 64),
			strconv.FormatInt(s.Requests, 10),
			strconv.FormatInt(s.Tokens, 10),
			strconv.FormatFloat(s.Cost, 'f', 4, 64),
		})
	}
	return rows
}
