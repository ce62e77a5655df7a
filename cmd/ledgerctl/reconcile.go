package main

import (
	"github.com/spf13/cobra"
)

func reconcileCmd(opts *rootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a matcher pass for one owner, or for every owner with pending records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if owner != "" {
				report, err := a.Services.Reconcile.Reconcile(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}

			reports, err := a.Services.Reconcile.ReconcileAll(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), reports); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id; all owners when empty")
	return cmd
}
