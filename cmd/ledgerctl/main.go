package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"goldpay/internal/app"
	"goldpay/internal/config"
	"goldpay/internal/logger"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the goldpay ledger: CLABE checks, transfers and reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(clabeCmd())
	rootCmd.AddCommand(accountsCmd(opts))
	rootCmd.AddCommand(transferCmd(opts))
	rootCmd.AddCommand(reconcileCmd(opts))
	return rootCmd
}

// openApp wires the ledger against the configured store. Background jobs are
// not started; pending outbox messages are left for the server.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	path := opts.configPath
	if f := cmd.Flag("config"); f != nil && !f.Changed {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithOptions(logger.Options{Level: opts.logLevel, Out: cmd.ErrOrStderr()})
	return app.New(cfg, log)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
