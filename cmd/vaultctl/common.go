package vaultctl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/output"
	"github.com/manifest-network/vaultctl/internal/output/postgresql"
	"github.com/manifest-network/vaultctl/internal/provider"
)

func (a *app) provider() (*provider.Provider, error) {
	p, err := provider.New(config.LoadProvider(a.v), config.LoadTx(a.v))
	if err != nil {
		return nil, err
	}
	p.RunID = a.runID
	return p, nil
}

// output returns the log sink, fanned out to the journal when one is configured.
func (a *app) output(ctx context.Context) (output.Handler, error) {
	logs := output.NewLogHandler(slog.Default())
	jcfg := config.LoadJournal(a.v)
	if !jcfg.Enabled() {
		return logs, nil
	}
	journal, err := postgresql.NewHandler(ctx, jcfg.ConnString)
	if err != nil {
		return nil, err
	}
	return output.Multi{logs, journal}, nil
}

func parsePublicKey(flag, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	return key, nil
}
