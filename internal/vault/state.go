package vault

import (
	"bytes"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/manifest-network/vaultctl/internal/program"
)

var (
	vaultStateDiscriminator       = program.AccountDiscriminator("VaultState")
	withdrawalTicketDiscriminator = program.AccountDiscriminator("WithdrawalTicket")
)

// VaultState is the global state of one vault, stored at VaultStatePDA(admin).
type VaultState struct {
	Admin          solana.PublicKey
	AcceptedMint   solana.PublicKey
	ReceiptMint    solana.PublicKey
	TotalDeposited uint64
	FeeBps         uint16
	IsPaused       bool
	Bump           uint8
	VaultTokenBump uint8
}

// WithdrawalTicket records a pending withdrawal; it is closed on claim.
type WithdrawalTicket struct {
	User          solana.PublicKey
	ReceiptAmount uint64
	RequestedAt   int64
	Bump          uint8
}

// ClaimableAt is the earliest time the ticket can be claimed.
func (t *WithdrawalTicket) ClaimableAt() time.Time {
	return time.Unix(t.RequestedAt+CooldownSeconds, 0).UTC()
}

// CanClaim mirrors the on-chain check now >= requested_at + cooldown.
func (t *WithdrawalTicket) CanClaim(now time.Time) bool {
	return now.Unix() >= t.RequestedAt+CooldownSeconds
}

func DecodeVaultState(data []byte) (*VaultState, error) {
	var s VaultState
	if err := decodeAccount(data, vaultStateDiscriminator, "VaultState", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func DecodeWithdrawalTicket(data []byte) (*WithdrawalTicket, error) {
	var t WithdrawalTicket
	if err := decodeAccount(data, withdrawalTicketDiscriminator, "WithdrawalTicket", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EncodeVaultState produces account data as the program stores it.
func EncodeVaultState(s *VaultState) ([]byte, error) {
	return encodeAccount(vaultStateDiscriminator, s, VaultStateLen)
}

func EncodeWithdrawalTicket(t *WithdrawalTicket) ([]byte, error) {
	return encodeAccount(withdrawalTicketDiscriminator, t, WithdrawalTicketLen)
}

func decodeAccount(data, discriminator []byte, name string, out any) error {
	if len(data) < 8 {
		return fmt.Errorf("%s account data too short: %d bytes", name, len(data))
	}
	if !bytes.Equal(data[:8], discriminator) {
		return fmt.Errorf("account is not a %s: discriminator mismatch", name)
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func encodeAccount(discriminator []byte, v any, size int) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	if buf.Len() > size {
		return nil, fmt.Errorf("encoded account is %d bytes, exceeds %d", buf.Len(), size)
	}
	out := make([]byte, size)
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeTokenAccount decodes an SPL token account.
func DecodeTokenAccount(data []byte) (*token.Account, error) {
	var acct token.Account
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("failed to decode token account: %w", err)
	}
	return &acct, nil
}
