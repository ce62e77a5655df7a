package main

import (
	"goldpay/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func transferCmd(opts *rootOptions) *cobra.Command {
	var req service.TransferRequest
	var amount string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send money from a ledger account to a CLABE",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := decimal.NewFromString(amount)
			if err != nil {
				return err
			}
			req.Amount = parsed

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.Services.Transfers.ExecuteTransfer(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	cmd.Flags().StringVar(&req.SourceAccountID, "from", "", "source account id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, at most two decimals")
	cmd.Flags().StringVar(&req.DestinationRoutingCode, "to", "", "destination CLABE")
	cmd.Flags().StringVar(&req.BeneficiaryName, "beneficiary", "", "beneficiary name")
	cmd.Flags().StringVar(&req.Concept, "concept", "", "payment concept")
	cmd.Flags().StringVar(&req.DestinationInstitution, "institution", "", "destination institution, resolved from the CLABE when empty")
	for _, name := range []string{"from", "amount", "to", "beneficiary", "concept"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
