// Package vault is a typed client for the spl-vault-anchor program: a token
// vault that mints receipt tokens 1:1 on deposit and releases deposits, minus
// an admin fee, after a withdrawal cooldown.
package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramID is the address declared by the program.
var ProgramID = solana.MustPublicKeyFromBase58("9VfuUehi2JnBgWzN8kSYhyi7vTV3YCaKDmNqN6jpLL4F")

// PDA seeds.
var (
	SeedVaultState = []byte("vault_state")
	SeedVaultToken = []byte("vault_token")
	SeedWithdrawal = []byte("withdrawal")
)

const (
	// VaultStateLen is the allocated size of a VaultState account including
	// its 8-byte discriminator.
	VaultStateLen = 8 + 32 + 32 + 32 + 8 + 2 + 1 + 1 + 1
	// WithdrawalTicketLen is the allocated size of a WithdrawalTicket account.
	WithdrawalTicketLen = 8 + 32 + 8 + 8 + 1
	// CooldownSeconds must pass between requesting a withdrawal and claiming it.
	CooldownSeconds int64 = 86_400
	// FeeDenominator is the basis-point scale of VaultState.FeeBps.
	FeeDenominator uint64 = 10_000
)

// VaultStatePDA derives the vault state address owned by admin.
func VaultStatePDA(programID, admin solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{SeedVaultState, admin.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive vault state address: %w", err)
	}
	return addr, bump, nil
}

// VaultTokenPDA derives the token account holding deposits for vaultState.
func VaultTokenPDA(programID, vaultState solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{SeedVaultToken, vaultState.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive vault token address: %w", err)
	}
	return addr, bump, nil
}

// WithdrawalTicketPDA derives the pending withdrawal ticket of user in vaultState.
func WithdrawalTicketPDA(programID, user, vaultState solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{SeedWithdrawal, user.Bytes(), vaultState.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive withdrawal ticket address: %w", err)
	}
	return addr, bump, nil
}

// Addresses groups the derived accounts of one vault.
type Addresses struct {
	Admin          solana.PublicKey
	VaultState     solana.PublicKey
	VaultStateBump uint8
	VaultToken     solana.PublicKey
	VaultTokenBump uint8
}

// DeriveAddresses computes every PDA of the vault administered by admin.
func DeriveAddresses(programID, admin solana.PublicKey) (*Addresses, error) {
	state, stateBump, err := VaultStatePDA(programID, admin)
	if err != nil {
		return nil, err
	}
	token, tokenBump, err := VaultTokenPDA(programID, state)
	if err != nil {
		return nil, err
	}
	return &Addresses{
		Admin:          admin,
		VaultState:     state,
		VaultStateBump: stateBump,
		VaultToken:     token,
		VaultTokenBump: tokenBump,
	}, nil
}
