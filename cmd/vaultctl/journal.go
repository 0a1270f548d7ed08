package vaultctl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/manifest-network/vaultctl/internal/client"
	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/output/postgresql"
	"github.com/manifest-network/vaultctl/internal/reconcile"
)

var errJournalNotConfigured = errors.New("no journal configured, set --journal or VAULTCTL_JOURNAL")

func newJournalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage the PostgreSQL transaction journal",
	}
	cmd.AddCommand(newJournalMigrateCmd(a), newJournalLatestCmd(a), newJournalReconcileCmd(a))
	return cmd
}

func (a *app) journal(cmd *cobra.Command) (*postgresql.Handler, error) {
	jcfg := config.LoadJournal(a.v)
	if !jcfg.Enabled() {
		return nil, errJournalNotConfigured
	}
	return postgresql.NewHandler(cmd.Context(), jcfg.ConnString)
}

func newJournalMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the journal schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.journal(cmd)
			if err != nil {
				return err
			}
			slog.Info("Journal schema is up to date")
			return h.Close()
		},
	}
}

func newJournalLatestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the most recently journaled transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.journal(cmd)
			if err != nil {
				return err
			}
			defer h.Close()
			tx, err := h.GetLatestTransaction(cmd.Context())
			if err != nil {
				return err
			}
			if tx == nil {
				slog.Info("Journal is empty")
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), tx)
		},
	}
}

func newJournalReconcileCmd(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Refresh unsettled journal entries from the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pcfg := config.LoadProvider(a.v)
			if pcfg.URL == "" {
				return fmt.Errorf("%w: %s is not set", config.ErrProviderNotConfigured, config.ProviderURLEnv)
			}
			h, err := a.journal(cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			rpc := client.NewRPCClient(pcfg.URL, config.LoadTx(a.v).MaxRetries)
			updated, err := reconcile.Run(cmd.Context(), rpc, h, reconcile.Options{
				MaxConcurrency: concurrency,
				Progress:       a.v.GetBool(config.KeyProgress),
			})
			if err != nil {
				return err
			}
			slog.Info("Journal reconciled", "updated", updated)
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "maxConcurrency", 4, "concurrent status requests")
	return cmd
}
