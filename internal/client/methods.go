package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

type commitmentConfig struct {
	Commitment string `json:"commitment,omitempty"`
}

type RPCContext struct {
	Slot uint64 `json:"slot"`
}

// LatestBlockhash is the result of getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	Slot                 uint64
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// AccountInfo is the decoded value of getAccountInfo.
type AccountInfo struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Executable bool
	Data       []byte
	Slot       uint64
}

// GetHealth returns nil when the node reports "ok".
func (c *RPCClient) GetHealth(ctx context.Context) error {
	var status string
	if err := c.call(ctx, true, "getHealth", &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}

func (c *RPCClient) GetLatestBlockhash(ctx context.Context, commitment string) (*LatestBlockhash, error) {
	var res struct {
		Context RPCContext `json:"context"`
		Value   struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.call(ctx, true, "getLatestBlockhash", &res, commitmentConfig{Commitment: commitment}); err != nil {
		return nil, err
	}
	hash, err := solana.HashFromBase58(res.Value.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("invalid blockhash %q: %w", res.Value.Blockhash, err)
	}
	return &LatestBlockhash{
		Blockhash:            hash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		Slot:                 res.Context.Slot,
	}, nil
}

func (c *RPCClient) GetBlockHeight(ctx context.Context, commitment string) (uint64, error) {
	var height uint64
	if err := c.call(ctx, true, "getBlockHeight", &height, commitmentConfig{Commitment: commitment}); err != nil {
		return 0, err
	}
	return height, nil
}

// SendTransaction submits a signed wire-format transaction exactly once.
func (c *RPCClient) SendTransaction(ctx context.Context, rawTx []byte, preflightCommitment string, skipPreflight bool) (solana.Signature, error) {
	opts := struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment,omitempty"`
	}{
		Encoding:            "base64",
		SkipPreflight:       skipPreflight,
		PreflightCommitment: preflightCommitment,
	}

	var sig string
	if err := c.call(ctx, false, "sendTransaction", &sig, base64.StdEncoding.EncodeToString(rawTx), opts); err != nil {
		return solana.Signature{}, err
	}
	out, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature %q returned by node: %w", sig, err)
	}
	return out, nil
}

// GetSignatureStatuses returns one entry per signature; unknown signatures are nil.
func (c *RPCClient) GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, s := range sigs {
		encoded[i] = s.String()
	}
	var res struct {
		Context RPCContext         `json:"context"`
		Value   []*SignatureStatus `json:"value"`
	}
	opts := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{SearchTransactionHistory: searchHistory}
	if err := c.call(ctx, true, "getSignatureStatuses", &res, encoded, opts); err != nil {
		return nil, err
	}
	if len(res.Value) != len(sigs) {
		return nil, fmt.Errorf("getSignatureStatuses returned %d statuses for %d signatures", len(res.Value), len(sigs))
	}
	return res.Value, nil
}

// GetAccountInfo returns nil, nil when the account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey, commitment string) (*AccountInfo, error) {
	opts := struct {
		Encoding   string `json:"encoding"`
		Commitment string `json:"commitment,omitempty"`
	}{Encoding: "base64", Commitment: commitment}

	var res struct {
		Context RPCContext `json:"context"`
		Value   *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Executable bool     `json:"executable"`
			Data       []string `json:"data"`
		} `json:"value"`
	}
	if err := c.call(ctx, true, "getAccountInfo", &res, account.String(), opts); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, nil
	}
	owner, err := solana.PublicKeyFromBase58(res.Value.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner %q for account %s: %w", res.Value.Owner, account, err)
	}
	if len(res.Value.Data) != 2 || res.Value.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected data encoding for account %s", account)
	}
	data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode data for account %s: %w", account, err)
	}
	return &AccountInfo{
		Lamports:   res.Value.Lamports,
		Owner:      owner,
		Executable: res.Value.Executable,
		Data:       data,
		Slot:       res.Context.Slot,
	}, nil
}

func (c *RPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64, commitment string) (uint64, error) {
	var lamports uint64
	if err := c.call(ctx, true, "getMinimumBalanceForRentExemption", &lamports, size, commitmentConfig{Commitment: commitment}); err != nil {
		return 0, err
	}
	return lamports, nil
}
