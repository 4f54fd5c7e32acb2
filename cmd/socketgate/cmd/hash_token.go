package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socketgate/socketgate/internal/adapter/inbound/admin"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Generate an Argon2id hash for the admin token",
	Long: `Generate an Argon2id hash of an admin API token for use in config.

The output is a PHC string ("$argon2id$...") which can be used directly in
the admin.token_hash field, so the plain token never sits in the config file.

Example:
  socketgate hash-token "my-admin-token"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The token will appear in shell history.
Consider clearing history after use or using an environment variable:
  socketgate hash-token "$ADMIN_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := admin.HashToken(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
