package commands

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/teresa-solution/lead-finance-service/internal/model"
	"github.com/teresa-solution/lead-finance-service/internal/pricing"
)

func quoteCmd() *cobra.Command {
	var (
		req      model.QuoteRequest
		leadTime int
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute a price quote and lead/risk assessment",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if cmd.Flags().Changed("lead-time") {
				req.LeadTimeDays = &leadTime
			} else if d, err := pricing.ParseFunctionDate(req.FunctionDate, now.Location()); err == nil {
				days := model.LeadTimeDays(d, now)
				req.LeadTimeDays = &days
			}

			res, err := pricing.NewEngine().ComputeQuote(req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&req.Occasion, "occasion", "", "occasion, e.g. wedding")
	cmd.Flags().IntVar(&req.Pax, "pax", 0, "guest count")
	cmd.Flags().StringVar(&req.FunctionDate, "date", "", "function date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.MenuType, "menu", "", "menu type, e.g. premium")
	cmd.Flags().IntVar(&leadTime, "lead-time", 0, "lead time in days (default: derived from --date)")
	cmd.Flags().StringVar(&req.LeadSource, "source", "", "lead source, e.g. referral")
	return cmd
}
