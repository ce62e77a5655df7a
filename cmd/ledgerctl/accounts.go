package main

import (
	"goldpay/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func accountsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Open and list ledger accounts",
	}
	cmd.AddCommand(accountsListCmd(opts))
	cmd.AddCommand(accountsOnboardCmd(opts))
	cmd.AddCommand(accountsLinkCmd(opts))
	return cmd
}

func accountsListCmd(opts *rootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the accounts of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.Services.Accounts.ListAccounts(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), accounts)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func accountsOnboardCmd(opts *rootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Open the main account of an owner with the signup bonus",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Services.Accounts.Onboard(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func accountsLinkCmd(opts *rootOptions) *cobra.Command {
	var req service.LinkAccountRequest
	var balance string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link an account held at another institution",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(balance)
			if err != nil {
				return err
			}
			req.OpeningBalance = amount

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.Services.Accounts.LinkExternalAccount(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), account)
		},
	}
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&req.Institution, "institution", "", "institution name")
	cmd.Flags().StringVar(&req.AccountName, "name", "", "account name")
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("institution")
	return cmd
}
