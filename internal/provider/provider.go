package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/manifest-network/vaultctl/internal/client"
	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/metrics"
	"github.com/manifest-network/vaultctl/internal/models"
)

var (
	// ErrBlockhashExpired means the transaction never reached the requested
	// commitment before its blockhash became invalid.
	ErrBlockhashExpired = errors.New("transaction expired before confirmation")
	// ErrConfirmationTimeout means the confirmation deadline passed first.
	ErrConfirmationTimeout = errors.New("timed out awaiting confirmation")
)

// TxFailedError is returned when a transaction is rejected by the node or
// lands with an instruction error.
type TxFailedError struct {
	Signature solana.Signature
	TxErr     *client.TransactionError
	Logs      []string
	Cause     error
}

func (e *TxFailedError) Error() string {
	if e.Signature.IsZero() {
		return fmt.Sprintf("transaction rejected: %v", e.Cause)
	}
	if e.TxErr != nil {
		return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.TxErr)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Cause)
}

func (e *TxFailedError) Unwrap() error { return e.Cause }

// Provider couples an RPC connection with the wallet that pays for and signs
// transactions.
type Provider struct {
	Client     *client.RPCClient
	Wallet     solana.PrivateKey
	Commitment string
	WSURL      string
	Tx         config.TxConfig
	RunID      string
}

// New validates cfg and loads the wallet keypair. Every failure wraps
// config.ErrProviderNotConfigured so callers can tell setup errors apart.
func New(cfg config.ProviderConfig, txCfg config.TxConfig) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := txCfg.Validate(); err != nil {
		return nil, err
	}
	walletPath, err := config.ExpandHome(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrProviderNotConfigured, err)
	}
	wallet, err := solana.PrivateKeyFromSolanaKeygenFile(walletPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load wallet %s: %v", config.ErrProviderNotConfigured, walletPath, err)
	}
	return &Provider{
		Client:     client.NewRPCClient(cfg.URL, txCfg.MaxRetries),
		Wallet:     wallet,
		Commitment: cfg.Commitment,
		WSURL:      cfg.WSURL,
		Tx:         txCfg,
	}, nil
}

// PublicKey is the wallet address, which is also the fee payer.
func (p *Provider) PublicKey() solana.PublicKey {
	return p.Wallet.PublicKey()
}

// SendAndConfirm builds, signs and submits one transaction, then blocks until
// it reaches the provider's commitment. The transaction is sent exactly once.
// The returned record is never nil and describes the outcome even on error.
func (p *Provider) SendAndConfirm(ctx context.Context, label string, program solana.PublicKey, instructions []solana.Instruction, signers ...solana.PrivateKey) (*models.Transaction, error) {
	record := &models.Transaction{
		RunID:       p.RunID,
		Program:     program.String(),
		Instruction: label,
		SubmittedAt: time.Now().UTC(),
	}
	defer func() {
		metrics.Transactions.WithLabelValues(label, record.Status).Inc()
	}()

	blockhash, err := p.Client.GetLatestBlockhash(ctx, p.Commitment)
	if err != nil {
		record.Status = models.StatusRejected
		record.Err = err.Error()
		return record, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	raw, err := p.sign(instructions, blockhash.Blockhash, signers)
	if err != nil {
		record.Status = models.StatusRejected
		record.Err = err.Error()
		return record, err
	}

	sig, err := p.Client.SendTransaction(ctx, raw, p.Commitment, false)
	if err != nil {
		record.Status = models.StatusRejected
		record.Err = err.Error()
		failed := &TxFailedError{Cause: err}
		var rpcErr *client.RPCError
		if errors.As(err, &rpcErr) {
			failed.TxErr = rpcErr.TransactionError()
			failed.Logs = rpcErr.Logs()
		}
		return record, failed
	}
	record.Signature = sig.String()
	slog.Debug("Transaction submitted", "instruction", label, "signature", record.Signature)

	confirmCtx, cancel := context.WithTimeout(ctx, p.Tx.Timeout)
	defer cancel()

	started := time.Now()
	slot, err := p.confirm(confirmCtx, sig, blockhash.LastValidBlockHeight)
	record.Slot = slot
	if err != nil {
		var failed *TxFailedError
		switch {
		case errors.As(err, &failed):
			record.Status = models.StatusFailed
		case errors.Is(err, ErrBlockhashExpired):
			record.Status = models.StatusExpired
		case errors.Is(confirmCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			record.Status = models.StatusExpired
			err = fmt.Errorf("%w after %s: %s", ErrConfirmationTimeout, p.Tx.Timeout, sig)
		default:
			record.Status = models.StatusExpired
		}
		record.Err = err.Error()
		return record, err
	}

	metrics.ConfirmationLatency.Observe(time.Since(started).Seconds())
	record.Status = p.Commitment
	record.ConfirmedAt = time.Now().UTC()
	return record, nil
}

func (p *Provider) sign(instructions []solana.Instruction, blockhash solana.Hash, signers []solana.PrivateKey) ([]byte, error) {
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(p.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	keys := append([]solana.PrivateKey{p.Wallet}, signers...)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return raw, nil
}

func (p *Provider) confirm(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) (uint64, error) {
	if p.Tx.Confirm == config.ConfirmWebsocket && p.WSURL != "" {
		slot, err := p.confirmWebsocket(ctx, sig)
		if err == nil || ctx.Err() != nil {
			return slot, err
		}
		var failed *TxFailedError
		if errors.As(err, &failed) {
			return slot, err
		}
		slog.Warn("Websocket confirmation failed, falling back to polling", "error", err)
	}
	return p.confirmPoll(ctx, sig, lastValidBlockHeight)
}

func (p *Provider) confirmWebsocket(ctx context.Context, sig solana.Signature) (uint64, error) {
	note, err := client.SubscribeSignature(ctx, p.WSURL, sig, p.Commitment)
	if err != nil {
		return 0, err
	}
	if note.Err != nil {
		return note.Slot, &TxFailedError{Signature: sig, TxErr: note.Err, Cause: note.Err}
	}
	return note.Slot, nil
}

func (p *Provider) confirmPoll(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) (uint64, error) {
	bar := newConfirmBar(p.Tx.Progress, p.Commitment, os.Stderr)
	defer bar.finish()

	for {
		statuses, err := p.Client.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return 0, fmt.Errorf("failed to get signature status: %w", err)
		}
		if st := statuses[0]; st != nil {
			if txErr := client.ParseTransactionError(st.Err); txErr != nil {
				return st.Slot, &TxFailedError{Signature: sig, TxErr: txErr, Cause: txErr}
			}
			if Reached(EffectiveStatus(st), p.Commitment) {
				return st.Slot, nil
			}
		}

		height, err := p.Client.GetBlockHeight(ctx, p.Commitment)
		if err != nil {
			return 0, fmt.Errorf("failed to get block height: %w", err)
		}
		if height > lastValidBlockHeight {
			return 0, fmt.Errorf("%w: %s (block height %d > %d)", ErrBlockhashExpired, sig, height, lastValidBlockHeight)
		}

		bar.tick()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(p.Tx.PollInterval):
		}
	}
}

// EffectiveStatus returns the commitment level of st. A status without
// confirmationStatus and without a confirmation count is rooted, which is how
// older nodes report finality.
func EffectiveStatus(st *client.SignatureStatus) string {
	if st.ConfirmationStatus == "" && st.Confirmations == nil {
		return config.CommitmentFinalized
	}
	return st.ConfirmationStatus
}

var commitmentRank = map[string]int{
	config.CommitmentProcessed: 1,
	config.CommitmentConfirmed: 2,
	config.CommitmentFinalized: 3,
}

// Reached reports whether status is at least as strong as want.
func Reached(status, want string) bool {
	got, ok := commitmentRank[status]
	if !ok {
		return false
	}
	return got >= commitmentRank[want]
}
