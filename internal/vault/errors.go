package vault

import (
	"errors"
	"fmt"

	"github.com/manifest-network/vaultctl/internal/client"
	"github.com/manifest-network/vaultctl/internal/provider"
)

// ProgramError is an error defined by the vault program or by the Anchor
// framework. Anchor numbers user errors from 6000.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Is matches any ProgramError with the same code.
func (e *ProgramError) Is(target error) bool {
	var pe *ProgramError
	return errors.As(target, &pe) && pe.Code == e.Code
}

var (
	ErrCooldownNotElapsed  = &ProgramError{6000, "CooldownNotElapsed", "Cooldown period has not elapsed. Wait 24hrs after requesting withdrawal."}
	ErrNoPendingWithdrawal = &ProgramError{6001, "NoPendingWithdrawal", "No pending withdrawal exists for this user."}
	ErrInsufficientBalance = &ProgramError{6002, "InsufficientBalance", "Withdrawal amount exceeds deposited balance."}
	ErrArithmeticOverflow  = &ProgramError{6003, "ArithmeticOverflow", "Arithmetic overflow in vault calculation."}
	ErrVaultPaused         = &ProgramError{6004, "VaultPaused", "Vault is paused by admin."}
)

// ErrInstructionNotExposed is Anchor's InstructionFallbackNotFound. The
// deployed program rejects an instruction its entrypoint does not dispatch.
var ErrInstructionNotExposed = &ProgramError{101, "InstructionFallbackNotFound", "instruction is not exposed by the deployed program"}

var programErrors = map[uint32]*ProgramError{}

func init() {
	for _, e := range []*ProgramError{ErrInstructionNotExposed, ErrCooldownNotElapsed, ErrNoPendingWithdrawal, ErrInsufficientBalance, ErrArithmeticOverflow, ErrVaultPaused} {
		programErrors[e.Code] = e
	}
}

// ProgramErrorFromCode returns the program error for code, if it is one.
func ProgramErrorFromCode(code uint32) (*ProgramError, bool) {
	e, ok := programErrors[code]
	return e, ok
}

// DecodeError extracts a vault program error from a transaction failure.
func DecodeError(err error) (*ProgramError, bool) {
	if err == nil {
		return nil, false
	}
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	var failed *provider.TxFailedError
	if errors.As(err, &failed) && failed.TxErr != nil && failed.TxErr.Custom != nil {
		return ProgramErrorFromCode(*failed.TxErr.Custom)
	}
	code, parseErr := client.ParseCustomErrorCode(err.Error())
	if parseErr != nil {
		return nil, false
	}
	return ProgramErrorFromCode(code)
}

// annotate attaches the decoded program error to err so callers can match it
// with errors.Is while keeping the transaction details.
func annotate(err error) error {
	if pe, ok := DecodeError(err); ok && !errors.Is(err, pe) {
		return fmt.Errorf("%w: %w", pe, err)
	}
	return err
}
