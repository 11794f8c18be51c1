package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/security/auth"
)

var adminFlags struct {
	name string
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin API access",
}

var adminNewKeyCmd = &cobra.Command{
	Use:   "new-key",
	Short: "Generate an admin API key",
	Long: `Generate a random admin API key and its bcrypt hash.

Only the hash belongs in the configuration. The key is printed once and
cannot be recovered from the hash.

Examples:
  chatello admin new-key --name ops`,
	RunE: runAdminNewKey,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminNewKeyCmd)

	adminNewKeyCmd.Flags().StringVar(&adminFlags.name, "name", "admin", "key name reported in audit logs")
}

func runAdminNewKey(cmd *cobra.Command, args []string) error {
	key, err := auth.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	hash, err := auth.HashKey(key)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	snippet, err := yaml.Marshal(map[string]any{
		"admin": map[string]any{
			"api_keys": []config.AdminKeyConfig{{Name: adminFlags.name, KeyHash: hash, Enabled: true}},
		},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Admin key: %s\n", key)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "⚠️  Store this key securely; it is not shown again")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprint(out, string(snippet))
	return nil
}
