package vault

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/manifest-network/vaultctl/internal/program"
)

// Instruction names as exposed by the program.
const (
	InstructionInitialize        = "initialize"
	InstructionDeposit           = "deposit"
	InstructionRequestWithdrawal = "request_withdrawal"
	InstructionClaim             = "claim"
)

func instructionData(name string, args ...any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(program.InstructionDiscriminator(name))
	enc := bin.NewBorshEncoder(buf)
	for _, a := range args {
		if err := enc.Encode(a); err != nil {
			return nil, fmt.Errorf("failed to encode %s arguments: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

// NewInitializeInstruction creates the vault of admin for acceptedMint.
// receiptMint must be a fresh keypair that signs the transaction.
func NewInitializeInstruction(programID, admin, acceptedMint, receiptMint solana.PublicKey, feeBps uint16) (solana.Instruction, error) {
	addrs, err := DeriveAddresses(programID, admin)
	if err != nil {
		return nil, err
	}
	data, err := instructionData(InstructionInitialize, feeBps)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(acceptedMint, false, false),
		solana.NewAccountMeta(receiptMint, true, true),
		solana.NewAccountMeta(addrs.VaultState, true, false),
		solana.NewAccountMeta(addrs.VaultToken, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}, data), nil
}

// DepositAccounts are the accounts touched by a deposit.
type DepositAccounts struct {
	User               solana.PublicKey
	VaultState         solana.PublicKey
	UserTokenAccount   solana.PublicKey
	VaultTokenAccount  solana.PublicKey
	ReceiptMint        solana.PublicKey
	UserReceiptAccount solana.PublicKey
}

func NewDepositInstruction(programID solana.PublicKey, accts DepositAccounts, amount uint64) (solana.Instruction, error) {
	data, err := instructionData(InstructionDeposit, amount)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.User, true, true),
		solana.NewAccountMeta(accts.VaultState, true, false),
		solana.NewAccountMeta(accts.UserTokenAccount, true, false),
		solana.NewAccountMeta(accts.VaultTokenAccount, true, false),
		solana.NewAccountMeta(accts.ReceiptMint, true, false),
		solana.NewAccountMeta(accts.UserReceiptAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}, data), nil
}

// RequestWithdrawalAccounts are the accounts touched by a withdrawal request.
type RequestWithdrawalAccounts struct {
	User               solana.PublicKey
	VaultState         solana.PublicKey
	ReceiptMint        solana.PublicKey
	UserReceiptAccount solana.PublicKey
	WithdrawalTicket   solana.PublicKey
}

func NewRequestWithdrawalInstruction(programID solana.PublicKey, accts RequestWithdrawalAccounts, receiptAmount uint64) (solana.Instruction, error) {
	data, err := instructionData(InstructionRequestWithdrawal, receiptAmount)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.User, true, true),
		solana.NewAccountMeta(accts.VaultState, true, false),
		solana.NewAccountMeta(accts.ReceiptMint, true, false),
		solana.NewAccountMeta(accts.UserReceiptAccount, true, false),
		solana.NewAccountMeta(accts.WithdrawalTicket, true, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, data), nil
}

// ClaimAccounts are the accounts touched by a claim.
type ClaimAccounts struct {
	User              solana.PublicKey
	VaultState        solana.PublicKey
	VaultTokenAccount solana.PublicKey
	UserTokenAccount  solana.PublicKey
	AdminTokenAccount solana.PublicKey
	WithdrawalTicket  solana.PublicKey
}

func NewClaimInstruction(programID solana.PublicKey, accts ClaimAccounts) (solana.Instruction, error) {
	data, err := instructionData(InstructionClaim)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.User, true, true),
		solana.NewAccountMeta(accts.VaultState, true, false),
		solana.NewAccountMeta(accts.VaultTokenAccount, true, false),
		solana.NewAccountMeta(accts.UserTokenAccount, true, false),
		solana.NewAccountMeta(accts.AdminTokenAccount, true, false),
		solana.NewAccountMeta(accts.WithdrawalTicket, true, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}, data), nil
}

// NewCreateATAIdempotentInstruction creates owner's associated token account
// for mint unless it already exists.
func NewCreateATAIdempotentInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to derive associated token account: %w", err)
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}, []byte{1}), ata, nil
}
