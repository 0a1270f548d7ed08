package models

import "time"

// Transaction statuses recorded for a submitted transaction.
const (
	StatusProcessed = "processed"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
	// StatusRejected means the node refused the transaction (preflight or signature check).
	StatusRejected = "rejected"
	// StatusFailed means the transaction landed but an instruction errored.
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

// Transaction represents a transaction submitted by this client.
type Transaction struct {
	RunID       string    `json:"runId"`
	Program     string    `json:"program"`
	Instruction string    `json:"instruction"`
	Signature   string    `json:"signature"`
	Slot        uint64    `json:"slot"`
	Status      string    `json:"status"`
	Err         string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Succeeded reports whether the transaction reached a commitment level without error.
func (t *Transaction) Succeeded() bool {
	switch t.Status {
	case StatusProcessed, StatusConfirmed, StatusFinalized:
		return t.Err == ""
	}
	return false
}
