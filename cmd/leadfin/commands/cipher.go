package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teresa-solution/lead-finance-service/internal/access"
	"github.com/teresa-solution/lead-finance-service/internal/crypto"
)

func newCipher() (*crypto.Cipher, error) {
	kd, err := crypto.ParseKeyDerivation(cfg.Security.KeyDerivation)
	if err != nil {
		return nil, err
	}
	return crypto.NewCipher(cfg.Security.EncryptionKey, kd)
}

func encryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a financial value with the configured key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCipher()
			if err != nil {
				return err
			}
			token, err := c.EncryptField([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

// newGuard builds the same access guard the server uses. The returned
// func releases the redis client, if one was opened.
func newGuard() (*access.Guard, func()) {
	if cfg.Security.CapabilitySource != "redis" {
		return access.NewGuard(access.AdminIdentity{ID: cfg.Security.AdminID}), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return access.NewGuard(access.NewRedisCapabilities(rdb, cfg.Security.CapabilityPrefix)), func() { _ = rdb.Close() }
}

func decryptCmd() *cobra.Command {
	var principal string
	cmd := &cobra.Command{
		Use:   "decrypt [token]",
		Short: "Decrypt a financial field token with the configured key",
		Long: `Decrypt a financial field token with the configured key.

The principal given with --as must pass the same access check as a
ReadFinancials call. Anyone holding the raw key can decrypt tokens
without this tool.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guard, release := newGuard()
			defer release()
			if guard.AuthorizeDecryption(cmd.Context(), principal) != access.Allow {
				return fmt.Errorf("principal %q may not decrypt financial fields", principal)
			}

			c, err := newCipher()
			if err != nil {
				return err
			}
			value, err := c.DecryptString(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	cmd.Flags().StringVar(&principal, "as", "", "principal to authorize the decryption as")
	return cmd
}
