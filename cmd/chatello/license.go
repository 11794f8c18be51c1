package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatello/gateway/pkg/cli"
	"chatello/gateway/pkg/licensing"
)

var licenseFlags struct {
	email   string
	name    string
	plan    string
	domain  string
	expires string
	output  string
}

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Issue and manage licenses",
	Long: `Issue licenses and change their status from the command line.

Examples:
  # Issue a pro license, creating the customer when needed
  chatello license create --email owner@example.com --plan pro --domain example.com

  # Issue a license that expires at the end of the year
  chatello license create --email owner@example.com --plan agency --expires 2026-12-31

  # Suspend a license
  chatello license status CHA-0A1B2C3D-... suspended`,
}

var licenseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a license",
	RunE:  runLicenseCreate,
}

var licenseStatusCmd = &cobra.Command{
	Use:   "status <license-key> <status>",
	Short: "Set the status of a license",
	Long: `Set the status of a license to active, inactive, suspended, expired, or
cancelled. Cancelled is terminal and releases a founders seat.`,
	Args: cobra.ExactArgs(2),
	RunE: runLicenseStatus,
}

func init() {
	rootCmd.AddCommand(licenseCmd)
	licenseCmd.AddCommand(licenseCreateCmd, licenseStatusCmd)

	licenseCreateCmd.Flags().StringVar(&licenseFlags.email, "email", "", "customer email (required)")
	licenseCreateCmd.Flags().StringVar(&licenseFlags.name, "name", "", "customer name for a new customer")
	licenseCreateCmd.Flags().StringVar(&licenseFlags.plan, "plan", "", "plan name (required)")
	licenseCreateCmd.Flags().StringVar(&licenseFlags.domain, "domain", "", "site domain")
	licenseCreateCmd.Flags().StringVar(&licenseFlags.expires, "expires", "", "expiration date YYYY-MM-DD (ignored for lifetime plans)")
	licenseCreateCmd.Flags().StringVarP(&licenseFlags.output, "output", "o", "text", "output format: text, json")
	_ = licenseCreateCmd.MarkFlagRequired("email")
	_ = licenseCreateCmd.MarkFlagRequired("plan")
}

func runLicenseCreate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(licenseFlags.output)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if licenseFlags.expires != "" {
		day, err := time.Parse(time.DateOnly, licenseFlags.expires)
		if err != nil {
			return fmt.Errorf("invalid --expires %q: want YYYY-MM-DD", licenseFlags.expires)
		}
		end := day.Add(24*time.Hour - time.Second).UTC()
		expiresAt = &end
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
		return cli.NewCommandError("license create", err)
	}
	defer a.Close()

	if err := a.syncCatalog(ctx); err != nil {
		return cli.NewCommandError("license create", err)
	}

	customer, err := ensureCustomer(ctx, a, licenseFlags.email, licenseFlags.name)
	if err != nil {
		return cli.NewCommandError("license create", err)
	}

	lic, err := a.allocator().Allocate(ctx, licensing.AllocateRequest{
		CustomerID: customer.ID,
		PlanName:   strings.ToLower(licenseFlags.plan),
		Domain:     licenseFlags.domain,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return cli.NewCommandError("license create", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), lic)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ License issued\n")
	fmt.Fprintf(out, "Key:      %s\n", lic.Key)
	fmt.Fprintf(out, "Plan:     %s\n", strings.ToLower(licenseFlags.plan))
	fmt.Fprintf(out, "Customer: %s\n", customer.Email)
	if lic.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires:  %s\n", lic.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(out, "Expires:  never\n")
	}
	return nil
}

// ensureCustomer returns the customer with email, creating it when absent.
func ensureCustomer(ctx context.Context, a *app, email, name string) (*licensing.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	c, err := a.store.GetCustomerByEmail(ctx, email)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, licensing.ErrCustomerNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c = &licensing.Customer{
		Email:     email,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	a.logger.Info("customer created", "customer_id", c.ID)
	return c, nil
}

func runLicenseStatus(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	next := licensing.Status(strings.ToLower(args[1]))
	if !next.Valid() {
		return fmt.Errorf("invalid status %q", args[1])
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
		return cli.NewCommandError("license status", err)
	}
	defer a.Close()

	lic, err := a.store.GetLicenseByKey(ctx, key)
	if err != nil {
		return cli.NewCommandError("license status", err)
	}
	if !lic.Status.CanTransitionTo(next) {
		return cli.NewCommandError("license status",
			fmt.Errorf("cannot change a %s license to %s", lic.Status, next))
	}

	if lic.Status != next {
		if err := a.store.UpdateLicenseStatus(ctx, lic.ID, lic.Status, next, time.Now().UTC()); err != nil {
			return cli.NewCommandError("license status", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ License %s is %s\n", lic.Key, next)
	return nil
}
