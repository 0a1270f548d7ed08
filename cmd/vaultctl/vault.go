package vaultctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/manifest-network/vaultctl/internal/models"
	"github.com/manifest-network/vaultctl/internal/output"
	"github.com/manifest-network/vaultctl/internal/vault"
)

type vaultFlags struct {
	programID string
	admin     string
}

func newVaultCmd(a *app) *cobra.Command {
	f := &vaultFlags{}
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Interact with a deployed vault",
	}
	cmd.PersistentFlags().StringVar(&f.programID, "programId", vault.ProgramID.String(), "vault program address")
	cmd.PersistentFlags().StringVar(&f.admin, "admin", "", "vault admin address (defaults to the wallet)")

	cmd.AddCommand(
		newVaultInitCmd(a, f),
		newVaultDepositCmd(a, f),
		newVaultWithdrawCmd(a, f),
		newVaultClaimCmd(a, f),
		newVaultShowCmd(a, f),
		newVaultTicketCmd(a, f),
	)
	return cmd
}

// vaultSession is the state shared by the vault subcommands.
type vaultSession struct {
	client *vault.Client
	admin  solana.PublicKey
	out    output.Handler
}

func (a *app) vaultSession(ctx context.Context, f *vaultFlags) (*vaultSession, error) {
	programID, err := parsePublicKey("programId", f.programID)
	if err != nil {
		return nil, err
	}
	p, err := a.provider()
	if err != nil {
		return nil, err
	}
	admin := p.PublicKey()
	if f.admin != "" {
		if admin, err = parsePublicKey("admin", f.admin); err != nil {
			return nil, err
		}
	}
	out, err := a.output(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	return &vaultSession{client: vault.NewClient(p, programID), admin: admin, out: out}, nil
}

// record writes rec to the output and passes err through.
func (s *vaultSession) record(ctx context.Context, rec *models.Transaction, err error) error {
	if rec != nil {
		if werr := s.out.WriteTransaction(ctx, rec); werr != nil {
			slog.Error("Failed to record transaction", "signature", rec.Signature, "error", werr)
		}
	}
	return err
}

// claimableAt reads the wallet's withdrawal ticket back and returns the
// maturity computed from its on-chain request time.
func (s *vaultSession) claimableAt(ctx context.Context) (time.Time, error) {
	ticket, err := s.client.Ticket(ctx, s.admin, s.client.Provider.PublicKey())
	if err != nil {
		return time.Time{}, err
	}
	return ticket.ClaimableAt(), nil
}

func (s *vaultSession) close() {
	if err := s.out.Close(); err != nil {
		slog.Warn("Failed to close output", "error", err)
	}
}

func newVaultInitCmd(a *app, f *vaultFlags) *cobra.Command {
	var mint string
	var feeBps uint16
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a vault administered by the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acceptedMint, err := parsePublicKey("mint", mint)
			if err != nil {
				return err
			}
			s, err := a.vaultSession(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.close()

			rec, addrs, receiptMint, err := s.client.Initialize(cmd.Context(), acceptedMint, feeBps)
			if err := s.record(cmd.Context(), rec, err); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"signature":   rec.Signature,
				"vaultState":  addrs.VaultState,
				"vaultToken":  addrs.VaultToken,
				"receiptMint": receiptMint,
			})
		},
	}
	cmd.Flags().StringVar(&mint, "mint", "", "accepted token mint")
	cmd.Flags().Uint16Var(&feeBps, "feeBps", 0, "withdrawal fee in basis points (at most 10000)")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

func newVaultDepositCmd(a *app, f *vaultFlags) *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit tokens and receive receipt tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.vaultSession(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.close()
			rec, err := s.client.Deposit(cmd.Context(), s.admin, amount)
			return s.record(cmd.Context(), rec, err)
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount in base units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newVaultWithdrawCmd(a *app, f *vaultFlags) *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn receipt tokens and open a withdrawal ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.vaultSession(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.close()
			rec, err := s.client.RequestWithdrawal(cmd.Context(), s.admin, amount)
			if err := s.record(cmd.Context(), rec, err); err != nil {
				return err
			}
			claimableAt, err := s.claimableAt(cmd.Context())
			if err != nil {
				slog.Warn("Withdrawal requested but the ticket could not be read back", "signature", rec.Signature, "error", err)
				return nil
			}
			slog.Info("Withdrawal requested", "signature", rec.Signature, "claimableAfter", claimableAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "receipt tokens to burn")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newVaultClaimCmd(a *app, f *vaultFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim a matured withdrawal ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.vaultSession(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.close()
			rec, split, err := s.client.Claim(cmd.Context(), s.admin)
			if err := s.record(cmd.Context(), rec, err); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"signature": rec.Signature,
				"fee":       split.Fee,
				"received":  split.User,
			})
		},
	}
}

func newVaultShowCmd(a *app, f *vaultFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show vault state and the wallet's position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.vaultSession(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.close()
			o, err := s.client.Overview(cmd.Context(), s.admin)
			if err != nil {
				return err
			}
			view := map[string]any{
				"vaultState":     o.Addresses.VaultState,
				"vaultToken":     o.Addresses.VaultToken,
				"admin":          o.State.Admin,
				"acceptedMint":   o.State.AcceptedMint,
				"receiptMint":    o.State.ReceiptMint,
				"totalDeposited": o.State.TotalDeposited,
				"feeBps":         o.State.FeeBps,
				"paused":         o.State.IsPaused,
				"vaultBalance":   o.VaultBalance,
			}
			if o.ReceiptBalance != nil {
				view["receiptBalance"] = *o.ReceiptBalance
			}
			if o.Ticket != nil {
				view["ticket"] = ticketView(o.Ticket)
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newVaultTicketCmd(a *app, f *vaultFlags) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Show the pending withdrawal of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.vaultSession(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.close()
			owner := s.client.Provider.PublicKey()
			if user != "" {
				if owner, err = parsePublicKey("user", user); err != nil {
					return err
				}
			}
			ticket, err := s.client.Ticket(cmd.Context(), s.admin, owner)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ticketView(ticket))
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "ticket owner (defaults to the wallet)")
	return cmd
}

func ticketView(t *vault.WithdrawalTicket) map[string]any {
	return map[string]any{
		"user":          t.User,
		"receiptAmount": t.ReceiptAmount,
		"requestedAt":   time.Unix(t.RequestedAt, 0).UTC().Format(time.RFC3339),
		"claimableAt":   t.ClaimableAt().Format(time.RFC3339),
		"claimable":     t.CanClaim(time.Now()),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
