// Package commands implements the leadfin operator CLI: offline quoting,
// field encryption with the configured key and audit hash computation.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/teresa-solution/lead-finance-service/internal/config"
	"github.com/teresa-solution/lead-finance-service/internal/monitoring"
)

var (
	cfg           config.Config
	keyDerivation string
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leadfin",
		Short:         "Lead pricing and financial field encryption tools",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
			monitoring.ConfigureLogger(cfg.Log.Level, true)
			if keyDerivation != "" {
				cfg.Security.KeyDerivation = keyDerivation
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&keyDerivation, "key-derivation", "", "key derivation: hkdf or legacy (default from config)")

	root.AddCommand(quoteCmd(), encryptCmd(), decryptCmd(), auditCmd())
	return root
}
