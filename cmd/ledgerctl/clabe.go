package main

import (
	"fmt"

	"goldpay/internal/clabe"

	"github.com/spf13/cobra"
)

func clabeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clabe",
		Short: "Validate and generate 18-digit CLABE routing codes",
	}
	cmd.AddCommand(clabeValidateCmd())
	cmd.AddCommand(clabeGenerateCmd())
	return cmd
}

func clabeValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [code]",
		Short: "Check the control digit of a CLABE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			institution := clabe.LookupInstitution(code)
			if err := clabe.Check(code); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\t%s\t%v\n", code, institution, err)
				return fmt.Errorf("invalid clabe %s", code)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tvalid\t%s\n", code, institution)
			return nil
		},
	}
}

func clabeGenerateCmd() *cobra.Command {
	var bank, region string
	var count int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate random valid CLABEs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < count; i++ {
				code, err := clabe.Generate(bank, region)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", clabe.DefaultBankCode, "3-digit bank code")
	cmd.Flags().StringVar(&region, "region", clabe.DefaultRegionCode, "3-digit region code")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "how many codes")
	return cmd
}
