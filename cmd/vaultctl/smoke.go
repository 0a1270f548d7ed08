package vaultctl

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/smoke"
)

func newSmokeCmd(a *app) *cobra.Command {
	var programName, method string
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Call initialize on the workspace program and log the signature",
		Long: `Resolves the provider from ANCHOR_PROVIDER_URL and ANCHOR_WALLET, loads the
program from the Anchor workspace and sends a single initialize transaction.
The confirmed signature is logged as "Your transaction signature <sig>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.output(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to open output: %w", err)
			}
			defer func() {
				if err := out.Close(); err != nil {
					slog.Warn("Failed to close output", "error", err)
				}
			}()

			_, err = smoke.Run(cmd.Context(), smoke.Options{
				Provider:  config.LoadProvider(a.v),
				Tx:        config.LoadTx(a.v),
				Workspace: a.v.GetString(config.KeyWorkspace),
				Program:   programName,
				Method:    method,
				RunID:     a.runID,
				Output:    out,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&programName, "program", smoke.DefaultProgram, "workspace program name")
	cmd.Flags().StringVar(&method, "method", smoke.DefaultMethod, "zero-argument instruction to invoke")
	return cmd
}
