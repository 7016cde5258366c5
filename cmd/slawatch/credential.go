package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/slawatch/internal/credential"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets kept in the OS keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store a secret read from stdin",
	Long: `Store a secret read from the first line of stdin.

The key defaults to store.password_key, which is where the PostgreSQL
password is looked up when store.driver is "postgres".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := credentialKey(args)
		if err != nil {
			return err
		}

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading secret: %w", err)
		}
		secret := strings.TrimRight(line, "\r\n")
		if secret == "" {
			return usageError{"secret must not be empty"}
		}

		if err := credential.NewVault().Set(key, secret); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Remove a stored secret",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := credentialKey(args)
		if err != nil {
			return err
		}
		err = credential.NewVault().Delete(key)
		if errors.Is(err, credential.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s was not set\n", key)
			return nil
		}
		return err
	},
}

func credentialKey(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfg.Store.PasswordKey == "" {
		return "", usageError{"no key given and store.password_key is not set"}
	}
	return cfg.Store.PasswordKey, nil
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd)
	rootCmd.AddCommand(credentialCmd)
}
