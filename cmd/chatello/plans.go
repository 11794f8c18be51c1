package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"chatello/gateway/pkg/cli"
	"chatello/gateway/pkg/licensing"
)

var plansFlags struct {
	file   string
	output string
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage the plan catalog",
	Long: `Seed, sync, and list subscription plans.

Plans are stored in the configured storage backend. The built-in catalog
(starter, pro, agency, founders) is seeded into an empty store; a YAML
catalog file upserts plans by name.

Examples:
  # Seed built-in plans and apply the configured catalog file
  chatello plans seed

  # Apply a specific catalog file
  chatello plans seed --file plans.yaml

  # List plans with seat usage as CSV
  chatello plans list --output csv`,
}

var plansSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed built-in plans and sync the catalog file",
	RunE:  runPlansSeed,
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE:  runPlansList,
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansSeedCmd, plansListCmd)

	plansSeedCmd.Flags().StringVarP(&plansFlags.file, "file", "f", "", "catalog file (overrides catalog.file)")
	plansListCmd.Flags().StringVarP(&plansFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func runPlansSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if plansFlags.file != "" {
		cfg.Catalog.File = plansFlags.file
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, logger, nil)
	if err != nil {
		return cli.NewCommandError("plans seed", err)
	}
	defer a.Close()

	if err := a.syncCatalog(ctx); err != nil {
		return cli.NewCommandError("plans seed", err)
	}

	plans, err := a.store.ListPlans(ctx)
	if err != nil {
		return cli.NewCommandError("plans seed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d plans in catalog\n", len(plans))
	return nil
}

func runPlansList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(plansFlags.output)
	if err != nil {
		return err
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
		return cli.NewCommandError("plans list", err)
	}
	defer a.Close()

	plans, err := a.store.ListPlans(ctx)
	if err != nil {
		return cli.NewCommandError("plans list", err)
	}

	allocator := a.allocator()
	rows := make(planTable, 0, len(plans))
	for _, p := range plans {
		seats, err := allocator.Seats(ctx, p)
		if err != nil {
			return cli.NewCommandError("plans list", err)
		}
		rows = append(rows, planRow{Plan: p, Seats: seats})
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), rows)
}

type planRow struct {
	*licensing.Plan
	Seats licensing.SeatUsage `json:"seats"`
}

// planTable renders plans for text and CSV output.
type planTable []planRow

func (planTable) Header() []string {
	return []string{"NAME", "PRICE", "MONTHLY", "PER_MIN", "PER_HOUR", "BUDGET", "LIFETIME", "SEATS", "ACTIVE"}
}

func (t planTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		seats := strconv.FormatInt(r.Seats.Sold, 10)
		if r.Plan.SeatLimited() {
			seats += "/" + strconv.FormatInt(r.Seats.Limit, 10)
		}
		rows = append(rows, []string{
			r.Plan.Name,
			fmt.Sprintf("%.2f %s", r.Plan.Price, r.Plan.Currency),
			limitString(r.Plan.MonthlyRequestLimit),
			limitString(r.Plan.RequestsPerMinute),
			limitString(r.Plan.RequestsPerHour),
			budgetString(r.Plan.MonthlyBudget),
			strconv.FormatBool(r.Plan.IsLifetime),
			seats,
			strconv.FormatBool(r.Plan.IsActive),
		})
	}
	return rows
}

func limitString(n int64) string {
	if n == 0 {
		return "unlimited"
	}
	return strconv.FormatInt(n, 10)
}

func budgetString(b float64) string {
	if b == 0 {
		return "unlimited"
	}
	return strconv.FormatFloat(b, 'f', 2, 64)
}
