package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teresa-solution/lead-finance-service/internal/audit"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail tools",
	}
	cmd.AddCommand(auditHashCmd())
	return cmd
}

func auditHashCmd() *cobra.Command {
	var leadID, price, userID, at string
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute the audit hash for a financial write",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := time.Now().UTC().Truncate(time.Millisecond)
			if at != "" {
				parsed, err := time.Parse(time.RFC3339Nano, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				ts = parsed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", audit.ComputeHash(leadID, price, userID, ts), ts.UTC().Format(audit.TimestampLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&leadID, "lead", "", "lead id")
	cmd.Flags().StringVar(&price, "price", "", "plaintext price quote")
	cmd.Flags().StringVar(&userID, "user", "", "acting user id")
	cmd.Flags().StringVar(&at, "at", "", "write timestamp, RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("lead")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
