package output

import (
	"context"
	"errors"
	"log/slog"

	"github.com/manifest-network/vaultctl/internal/models"
)

// Handler receives the record of every transaction submitted by a run.
type Handler interface {
	// WriteTransaction writes a transaction record to the output.
	WriteTransaction(ctx context.Context, tx *models.Transaction) error

	// GetLatestTransaction returns the most recently submitted transaction, or nil if there is none.
	GetLatestTransaction(ctx context.Context) (*models.Transaction, error)

	// Close closes the output handler.
	Close() error
}

// LogHandler reports transactions on a slog logger. A successful transaction
// is logged as "Your transaction signature <sig>" with the signature as
// returned by the node.
type LogHandler struct {
	Logger *slog.Logger
	latest *models.Transaction
}

func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{Logger: logger}
}

func (h *LogHandler) WriteTransaction(ctx context.Context, tx *models.Transaction) error {
	h.latest = tx
	if tx.Succeeded() {
		h.Logger.InfoContext(ctx, "Your transaction signature "+tx.Signature)
		return nil
	}
	h.Logger.WarnContext(ctx, "Transaction did not succeed",
		"instruction", tx.Instruction,
		"signature", tx.Signature,
		"status", tx.Status,
		"error", tx.Err)
	return nil
}

func (h *LogHandler) GetLatestTransaction(context.Context) (*models.Transaction, error) {
	return h.latest, nil
}

func (h *LogHandler) Close() error { return nil }

// Multi writes to every handler in order. Reads are served by the first one.
type Multi []Handler

func (m Multi) WriteTransaction(ctx context.Context, tx *models.Transaction) error {
	var errs []error
	for _, h := range m {
		if err := h.WriteTransaction(ctx, tx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) GetLatestTransaction(ctx context.Context) (*models.Transaction, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].GetLatestTransaction(ctx)
}

func (m Multi) Close() error {
	var errs []error
	for _, h := range m {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
