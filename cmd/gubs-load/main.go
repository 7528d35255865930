// Package main provides gubs-load, a concurrency checker for a running gubs
// server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/gubs/internal/loadtest"
	"github.com/okian/gubs/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg     loadtest.Config
		verbose bool
	)

	root := &cobra.Command{
		Use:   "gubs-load",
		Short: "Hammer a gubs server with concurrent players",
		Long: `gubs-load drives a running gubs server with concurrent players and
verifies afterwards that no gub was created or lost.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Verbose = verbose
			if verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.BaseURL, "url", loadtest.DefaultBaseURL, "base URL of the gubs server")
	pf.StringVar(&cfg.UIDHeader, "header", loadtest.DefaultUIDHeader, "identity header trusted by the server")
	pf.IntVar(&cfg.Users, "users", loadtest.DefaultUsers, "number of concurrent players")
	pf.IntVar(&cfg.Calls, "calls", loadtest.DefaultCalls, "calls per player")
	pf.IntVar(&cfg.Workers, "workers", 0, "requests in flight (default: users)")
	pf.DurationVar(&cfg.Timeout, "timeout", loadtest.DefaultTimeout, "HTTP request timeout")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every failed call")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Race syncs per player and verify final scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := loadtest.RunSync(cmd.Context(), cfg)
			return err
		},
	}
	syncCmd.Flags().Int64Var(&cfg.Delta, "delta", loadtest.DefaultDelta, "clicks reported per sync")

	purchaseCmd := &cobra.Command{
		Use:   "purchase",
		Short: "Fund players, race purchases and verify conservation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := loadtest.RunPurchase(cmd.Context(), cfg)
			return err
		},
	}
	pflags := purchaseCmd.Flags()
	pflags.StringVar(&cfg.AdminUID, "admin", "", "admin uid used to fund players")
	pflags.Int64Var(&cfg.Fund, "fund", loadtest.DefaultFund, "starting balance per player")
	pflags.StringVar(&cfg.Item, "item", loadtest.DefaultItem, "item to purchase")
	_ = purchaseCmd.MarkFlagRequired("admin")

	root.AddCommand(syncCmd, purchaseCmd)
	return root
}
