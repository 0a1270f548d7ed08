package vault

import "math/bits"

// ClaimSplit is how a claimed receipt amount is divided.
type ClaimSplit struct {
	Fee  uint64
	User uint64
}

// SplitClaim computes the admin fee (receipt * feeBps / 10000, rounded down)
// and the remainder paid to the user. Overflow yields ErrArithmeticOverflow.
func SplitClaim(receiptAmount uint64, feeBps uint16) (ClaimSplit, error) {
	hi, product := bits.Mul64(receiptAmount, uint64(feeBps))
	if hi != 0 {
		return ClaimSplit{}, ErrArithmeticOverflow
	}
	fee := product / FeeDenominator
	if fee > receiptAmount {
		return ClaimSplit{}, ErrArithmeticOverflow
	}
	return ClaimSplit{Fee: fee, User: receiptAmount - fee}, nil
}

// AddDeposit mirrors the checked addition applied to TotalDeposited on deposit.
func AddDeposit(total, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(total, amount, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}
