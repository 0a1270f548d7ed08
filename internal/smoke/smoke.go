// Package smoke runs the deployment smoke test: call initialize on the
// workspace program and report the confirmed signature.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/models"
	"github.com/manifest-network/vaultctl/internal/output"
	"github.com/manifest-network/vaultctl/internal/provider"
	"github.com/manifest-network/vaultctl/internal/workspace"
)

const (
	DefaultProgram = "splVaultAnchor"
	DefaultMethod  = "initialize"
)

var (
	// ErrSetup wraps failures that happen before any network call.
	ErrSetup = errors.New("smoke test setup failed")
	// ErrCall wraps a rejected or unconfirmed invocation.
	ErrCall = errors.New("smoke test call failed")
)

type Options struct {
	Provider config.ProviderConfig
	Tx       config.TxConfig
	// Workspace is where the Anchor.toml search starts. Defaults to the working directory.
	Workspace string
	Program   string
	Method    string
	RunID     string
	Output    output.Handler
}

type Result struct {
	Signature   string
	Transaction *models.Transaction
}

// Run configures the provider, resolves the program and invokes its method
// once. The signature is written to opts.Output on success.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Program == "" {
		opts.Program = DefaultProgram
	}
	if opts.Method == "" {
		opts.Method = DefaultMethod
	}
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	if opts.Output == nil {
		opts.Output = output.NewLogHandler(nil)
	}

	p, err := provider.New(opts.Provider, opts.Tx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	p.RunID = opts.RunID

	ws, err := workspace.Find(opts.Workspace)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	prog, err := ws.Program(opts.Program)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	method, err := prog.Method(opts.Method)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if _, err := method.Instruction(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	slog.Debug("Invoking program", "program", prog.Name, "address", prog.ID, "method", opts.Method, "wallet", p.PublicKey())
	rec, callErr := method.RPC(ctx, p)
	if rec != nil {
		if err := opts.Output.WriteTransaction(ctx, rec); err != nil {
			slog.Error("Failed to record transaction", "signature", rec.Signature, "error", err)
		}
	}
	if callErr != nil {
		return Result{Transaction: rec}, fmt.Errorf("%w: %w", ErrCall, callErr)
	}
	return Result{Signature: rec.Signature, Transaction: rec}, nil
}
