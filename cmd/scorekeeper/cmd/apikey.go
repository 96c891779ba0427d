package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/config"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for registry writes and gRPC",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key (printed once)",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
	apiKeyCreateCmd.Flags().String("name", "default", "human readable key name")
}

func newCommandAuthenticator(cmd *cobra.Command) (*auth.Authenticator, func(), error) {
	cfg, _, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	database, queries, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := requireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	return auth.NewAuthenticator(secrets, queries), func() { database.Close() }, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	a, closeDB, err := newCommandAuthenticator(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	name, _ := cmd.Flags().GetString("name")
	id, key, err := a.CreateKey(cmd.Context(), name)
	if err != nil {
		if err == auth.ErrNoSecrets {
			return fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "api_key_id: %s\napi_key:    %s\n", id, key)
	fmt.Fprintln(cmd.ErrOrStderr(), "Store this key now; it cannot be shown again.")
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	a, closeDB, err := newCommandAuthenticator(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := a.Revoke(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
