package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/vaultctl/internal/client"
	"github.com/manifest-network/vaultctl/internal/models"
	"github.com/manifest-network/vaultctl/internal/provider"
)

// maxSignaturesPerRequest is the getSignatureStatuses limit.
const maxSignaturesPerRequest = 256

// Journal is the store of previously submitted transactions.
type Journal interface {
	GetUnsettledTransactions(ctx context.Context) ([]*models.Transaction, error)
	UpdateStatus(ctx context.Context, tx *models.Transaction) error
}

// StatusReader looks up signature statuses on the cluster.
type StatusReader interface {
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) ([]*client.SignatureStatus, error)
}

type Options struct {
	MaxConcurrency int
	Progress       bool
}

// Run refreshes the status of every unsettled journal entry from the cluster
// and returns how many entries changed.
func Run(ctx context.Context, rpc StatusReader, journal Journal, opts Options) (int, error) {
	pending, err := journal.GetUnsettledTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get unsettled transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.Info("No unsettled transactions in journal")
		return 0, nil
	}
	slog.Info("Reconciling journal", "count", len(pending))

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(
			len(pending),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Checking signatures..."),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return 0, fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	updated, err := processBatches(ctx, rpc, journal, pending, opts, bar)
	if err != nil {
		return updated, err
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return updated, fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}
	return updated, nil
}

func processBatches(ctx context.Context, rpc StatusReader, journal Journal, pending []*models.Transaction, opts Options, bar *progressbar.ProgressBar) (int, error) {
	eg, ctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrency > 0 {
		eg.SetLimit(opts.MaxConcurrency)
	}

	results := make([]int, (len(pending)+maxSignaturesPerRequest-1)/maxSignaturesPerRequest)
	for i := range results {
		i := i
		start := i * maxSignaturesPerRequest
		batch := pending[start:min(start+maxSignaturesPerRequest, len(pending))]
		eg.Go(func() error {
			n, err := processBatch(ctx, rpc, journal, batch)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Reconcile batch error", "first", batch[0].Signature, "size", len(batch), "error", err)
				}
				return err
			}
			results[i] = n
			if bar != nil {
				if err := bar.Add(len(batch)); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})
	}

	err := eg.Wait()
	total := 0
	for _, n := range results {
		total += n
	}
	if err != nil {
		return total, fmt.Errorf("error while reconciling journal: %w", err)
	}
	return total, nil
}

func processBatch(ctx context.Context, rpc StatusReader, journal Journal, batch []*models.Transaction) (int, error) {
	sigs := make([]solana.Signature, 0, len(batch))
	for _, tx := range batch {
		sig, err := solana.SignatureFromBase58(tx.Signature)
		if err != nil {
			return 0, fmt.Errorf("invalid signature %q in journal: %w", tx.Signature, err)
		}
		sigs = append(sigs, sig)
	}

	statuses, err := rpc.GetSignatureStatuses(ctx, true, sigs...)
	if err != nil {
		return 0, fmt.Errorf("failed to get signature statuses: %w", err)
	}

	updated := 0
	for i, tx := range batch {
		if i >= len(statuses) || !settle(tx, statuses[i]) {
			continue
		}
		if err := journal.UpdateStatus(ctx, tx); err != nil {
			return updated, err
		}
		slog.Debug("Journal entry updated", "signature", tx.Signature, "status", tx.Status)
		updated++
	}
	return updated, nil
}

// settle applies st to tx and reports whether anything changed. Unknown
// signatures keep their recorded status.
func settle(tx *models.Transaction, st *client.SignatureStatus) bool {
	if st == nil {
		return false
	}
	status, errMsg := provider.EffectiveStatus(st), ""
	if txErr := client.ParseTransactionError(st.Err); txErr != nil {
		status, errMsg = models.StatusFailed, txErr.Error()
	}
	if status == tx.Status && st.Slot == tx.Slot && errMsg == tx.Err {
		return false
	}
	tx.Status = status
	tx.Slot = st.Slot
	tx.Err = errMsg
	if tx.ConfirmedAt.IsZero() && status != models.StatusFailed {
		tx.ConfirmedAt = time.Now().UTC()
	}
	return true
}
