package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/vaultctl/internal/models"
	"github.com/manifest-network/vaultctl/internal/provider"
)

var (
	ErrVaultNotFound          = errors.New("vault not found")
	ErrTokenAccountNotFound   = errors.New("token account not found")
	ErrWithdrawalAlreadyExist = errors.New("a withdrawal is already pending")
	ErrInvalidFee             = errors.New("fee must be at most 10000 basis points")
)

// Client submits vault instructions with the provider wallet as the user
// (or admin, for Initialize).
type Client struct {
	Provider  *provider.Provider
	ProgramID solana.PublicKey
	// Now is the clock used for the claim cooldown check.
	Now func() time.Time
}

func NewClient(p *provider.Provider, programID solana.PublicKey) *Client {
	return &Client{Provider: p, ProgramID: programID, Now: time.Now}
}

// Overview is a snapshot of a vault and the caller's position in it.
type Overview struct {
	Addresses      *Addresses
	State          *VaultState
	VaultBalance   uint64
	ReceiptBalance *uint64
	Ticket         *WithdrawalTicket
}

// Initialize creates a vault administered by the provider wallet. A fresh
// receipt mint keypair is generated and returned with the derived addresses.
func (c *Client) Initialize(ctx context.Context, acceptedMint solana.PublicKey, feeBps uint16) (*models.Transaction, *Addresses, solana.PublicKey, error) {
	if uint64(feeBps) > FeeDenominator {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}
	admin := c.Provider.PublicKey()
	addrs, err := DeriveAddresses(c.ProgramID, admin)
	if err != nil {
		return nil, nil, solana.PublicKey{}, err
	}
	receiptMint, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, nil, solana.PublicKey{}, fmt.Errorf("failed to generate receipt mint: %w", err)
	}
	ix, err := NewInitializeInstruction(c.ProgramID, admin, acceptedMint, receiptMint.PublicKey(), feeBps)
	if err != nil {
		return nil, nil, solana.PublicKey{}, err
	}
	rec, err := c.Provider.SendAndConfirm(ctx, InstructionInitialize, c.ProgramID, []solana.Instruction{ix}, receiptMint)
	if err != nil {
		return rec, addrs, receiptMint.PublicKey(), annotate(err)
	}
	// A confirmed transaction only proves the entrypoint accepted it.
	if _, _, err := c.loadVault(ctx, admin); err != nil {
		return rec, addrs, receiptMint.PublicKey(), fmt.Errorf("initialize confirmed as %s: %w", rec.Signature, err)
	}
	slog.Info("Vault initialised", "admin", admin, "vaultState", addrs.VaultState, "receiptMint", receiptMint.PublicKey())
	return rec, addrs, receiptMint.PublicKey(), nil
}

// Deposit moves amount of the accepted mint into the vault of admin and
// receives the same amount of receipt tokens. The receipt token account is
// created if missing.
func (c *Client) Deposit(ctx context.Context, admin solana.PublicKey, amount uint64) (*models.Transaction, error) {
	addrs, state, err := c.loadVault(ctx, admin)
	if err != nil {
		return nil, err
	}
	if state.IsPaused {
		return nil, ErrVaultPaused
	}
	if _, err := AddDeposit(state.TotalDeposited, amount); err != nil {
		return nil, err
	}

	user := c.Provider.PublicKey()
	userToken, _, err := solana.FindAssociatedTokenAddress(user, state.AcceptedMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account: %w", err)
	}
	createReceipt, userReceipt, err := NewCreateATAIdempotentInstruction(user, user, state.ReceiptMint)
	if err != nil {
		return nil, err
	}
	ix, err := NewDepositInstruction(c.ProgramID, DepositAccounts{
		User:               user,
		VaultState:         addrs.VaultState,
		UserTokenAccount:   userToken,
		VaultTokenAccount:  addrs.VaultToken,
		ReceiptMint:        state.ReceiptMint,
		UserReceiptAccount: userReceipt,
	}, amount)
	if err != nil {
		return nil, err
	}
	rec, err := c.Provider.SendAndConfirm(ctx, InstructionDeposit, c.ProgramID, []solana.Instruction{createReceipt, ix})
	return rec, annotate(err)
}

// RequestWithdrawal burns receiptAmount receipt tokens and opens a withdrawal
// ticket claimable after the cooldown.
func (c *Client) RequestWithdrawal(ctx context.Context, admin solana.PublicKey, receiptAmount uint64) (*models.Transaction, error) {
	addrs, state, err := c.loadVault(ctx, admin)
	if err != nil {
		return nil, err
	}
	if state.IsPaused {
		return nil, ErrVaultPaused
	}

	user := c.Provider.PublicKey()
	userReceipt, _, err := solana.FindAssociatedTokenAddress(user, state.ReceiptMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive receipt account: %w", err)
	}
	receipt, err := c.tokenAccount(ctx, userReceipt)
	if err != nil {
		return nil, err
	}
	if receipt.Amount < receiptAmount {
		return nil, fmt.Errorf("%w: have %d, requested %d", ErrInsufficientBalance, receipt.Amount, receiptAmount)
	}

	ticketAddr, _, err := WithdrawalTicketPDA(c.ProgramID, user, addrs.VaultState)
	if err != nil {
		return nil, err
	}
	existing, err := c.Provider.Client.GetAccountInfo(ctx, ticketAddr, c.Provider.Commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal ticket: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrWithdrawalAlreadyExist, ticketAddr)
	}

	ix, err := NewRequestWithdrawalInstruction(c.ProgramID, RequestWithdrawalAccounts{
		User:               user,
		VaultState:         addrs.VaultState,
		ReceiptMint:        state.ReceiptMint,
		UserReceiptAccount: userReceipt,
		WithdrawalTicket:   ticketAddr,
	}, receiptAmount)
	if err != nil {
		return nil, err
	}
	rec, err := c.Provider.SendAndConfirm(ctx, InstructionRequestWithdrawal, c.ProgramID, []solana.Instruction{ix})
	return rec, annotate(err)
}

// Claim pays out a matured withdrawal ticket, sending the fee to the admin.
func (c *Client) Claim(ctx context.Context, admin solana.PublicKey) (*models.Transaction, *ClaimSplit, error) {
	addrs, state, err := c.loadVault(ctx, admin)
	if err != nil {
		return nil, nil, err
	}
	user := c.Provider.PublicKey()
	ticketAddr, ticket, err := c.loadTicket(ctx, user, addrs.VaultState)
	if err != nil {
		return nil, nil, err
	}
	if now := c.Now(); !ticket.CanClaim(now) {
		return nil, nil, fmt.Errorf("%w: claimable at %s", ErrCooldownNotElapsed, ticket.ClaimableAt().Format(time.RFC3339))
	}
	split, err := SplitClaim(ticket.ReceiptAmount, state.FeeBps)
	if err != nil {
		return nil, nil, err
	}

	userToken, _, err := solana.FindAssociatedTokenAddress(user, state.AcceptedMint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive token account: %w", err)
	}
	adminToken, _, err := solana.FindAssociatedTokenAddress(state.Admin, state.AcceptedMint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive admin token account: %w", err)
	}
	ix, err := NewClaimInstruction(c.ProgramID, ClaimAccounts{
		User:              user,
		VaultState:        addrs.VaultState,
		VaultTokenAccount: addrs.VaultToken,
		UserTokenAccount:  userToken,
		AdminTokenAccount: adminToken,
		WithdrawalTicket:  ticketAddr,
	})
	if err != nil {
		return nil, nil, err
	}
	rec, err := c.Provider.SendAndConfirm(ctx, InstructionClaim, c.ProgramID, []solana.Instruction{ix})
	if err != nil {
		return rec, nil, annotate(err)
	}
	return rec, &split, nil
}

// Overview loads the vault of admin together with the provider wallet's
// receipt balance and pending ticket. The reads run concurrently.
func (c *Client) Overview(ctx context.Context, admin solana.PublicKey) (*Overview, error) {
	addrs, state, err := c.loadVault(ctx, admin)
	if err != nil {
		return nil, err
	}
	out := &Overview{Addresses: addrs, State: state}
	user := c.Provider.PublicKey()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		acct, err := c.tokenAccount(egCtx, addrs.VaultToken)
		if err != nil {
			return err
		}
		out.VaultBalance = acct.Amount
		return nil
	})
	eg.Go(func() error {
		receiptAddr, _, err := solana.FindAssociatedTokenAddress(user, state.ReceiptMint)
		if err != nil {
			return err
		}
		acct, err := c.tokenAccount(egCtx, receiptAddr)
		if errors.Is(err, ErrTokenAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.ReceiptBalance = &acct.Amount
		return nil
	})
	eg.Go(func() error {
		_, ticket, err := c.loadTicket(egCtx, user, addrs.VaultState)
		if errors.Is(err, ErrNoPendingWithdrawal) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Ticket = ticket
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load vault overview: %w", err)
	}
	return out, nil
}

// Ticket loads the pending withdrawal of user in the vault of admin.
func (c *Client) Ticket(ctx context.Context, admin, user solana.PublicKey) (*WithdrawalTicket, error) {
	addrs, err := DeriveAddresses(c.ProgramID, admin)
	if err != nil {
		return nil, err
	}
	_, ticket, err := c.loadTicket(ctx, user, addrs.VaultState)
	return ticket, err
}

func (c *Client) loadVault(ctx context.Context, admin solana.PublicKey) (*Addresses, *VaultState, error) {
	addrs, err := DeriveAddresses(c.ProgramID, admin)
	if err != nil {
		return nil, nil, err
	}
	info, err := c.Provider.Client.GetAccountInfo(ctx, addrs.VaultState, c.Provider.Commitment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load vault state: %w", err)
	}
	if info == nil {
		return nil, nil, fmt.Errorf("%w: no vault state at %s for admin %s", ErrVaultNotFound, addrs.VaultState, admin)
	}
	if !info.Owner.Equals(c.ProgramID) {
		return nil, nil, fmt.Errorf("vault state %s is owned by %s, not the vault program", addrs.VaultState, info.Owner)
	}
	state, err := DecodeVaultState(info.Data)
	if err != nil {
		return nil, nil, err
	}
	return addrs, state, nil
}

func (c *Client) loadTicket(ctx context.Context, user, vaultState solana.PublicKey) (solana.PublicKey, *WithdrawalTicket, error) {
	addr, _, err := WithdrawalTicketPDA(c.ProgramID, user, vaultState)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	info, err := c.Provider.Client.GetAccountInfo(ctx, addr, c.Provider.Commitment)
	if err != nil {
		return addr, nil, fmt.Errorf("failed to load withdrawal ticket: %w", err)
	}
	if info == nil {
		return addr, nil, ErrNoPendingWithdrawal
	}
	ticket, err := DecodeWithdrawalTicket(info.Data)
	if err != nil {
		return addr, nil, err
	}
	return addr, ticket, nil
}

func (c *Client) tokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	info, err := c.Provider.Client.GetAccountInfo(ctx, addr, c.Provider.Commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to load token account %s: %w", addr, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenAccountNotFound, addr)
	}
	return DecodeTokenAccount(info.Data)
}
