package vaultctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/metrics"
)

type app struct {
	v     *viper.Viper
	runID string
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Client and smoke test for the spl-vault-anchor program",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			if err := setupLogger(a.v.GetString(config.KeyLogLevel)); err != nil {
				return err
			}
			a.runID = uuid.New().String()
			slog.Debug("Starting run", "runID", a.runID, "command", cmd.CommandPath())

			if mcfg := config.LoadMetrics(a.v); mcfg.Enabled() {
				go func() {
					if err := metrics.Serve(cmd.Context(), mcfg.Addr); err != nil {
						slog.Error("Metrics server failed", "error", err)
					}
				}()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP(config.KeyURL, "u", "", "RPC endpoint or cluster moniker (localnet, devnet, testnet, mainnet); defaults to $"+config.ProviderURLEnv)
	pf.String(config.KeyWSURL, "", "websocket endpoint (derived from --url when empty)")
	pf.StringP(config.KeyWallet, "w", "", "path to the signing keypair; defaults to $"+config.WalletEnv)
	pf.String(config.KeyCommitment, config.CommitmentFinalized, "commitment to await (processed, confirmed, finalized)")
	pf.Duration(config.KeyTimeout, a.v.GetDuration(config.KeyTimeout), "how long to wait for confirmation")
	pf.Duration(config.KeyPollInterval, a.v.GetDuration(config.KeyPollInterval), "signature status poll interval")
	pf.Uint(config.KeyMaxRetries, a.v.GetUint(config.KeyMaxRetries), "retries for read-only RPC calls")
	pf.String(config.KeyConfirm, config.ConfirmPoll, "confirmation strategy (poll, ws)")
	pf.Bool(config.KeyProgress, false, "show a spinner while awaiting confirmation")
	pf.String(config.KeyJournalDSN, "", "PostgreSQL connection string for the transaction journal")
	pf.String(config.KeyMetricsAddr, "", "serve Prometheus metrics on this address")
	pf.String(config.KeyWorkspace, ".", "directory to start the Anchor.toml search from")
	pf.StringP(config.KeyLogLevel, "l", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newSmokeCmd(a),
		newVaultCmd(a),
		newPDACmd(),
		newJournalCmd(a),
	)
	return root
}

func setupLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}
