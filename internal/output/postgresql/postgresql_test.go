package postgresql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/vaultctl/internal/models"
)

var journalColumns = []string{"run_id", "program", "instruction", "signature", "slot", "status", "error", "submitted_at", "confirmed_at"}

func newMock(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHandlerWithDB(db), mock
}

func TestWriteTransaction(t *testing.T) {
	h, mock := newMock(t)
	tx := &models.Transaction{
		RunID:       "run-1",
		Program:     "9VfuUehi2JnBgWzN8kSYhyi7vTV3YCaKDmNqN6jpLL4F",
		Instruction: "initialize",
		Signature:   "sig",
		Slot:        42,
		Status:      models.StatusFinalized,
		SubmittedAt: time.Unix(100, 0),
		ConfirmedAt: time.Unix(110, 0),
	}

	mock.ExpectExec("INSERT INTO journal").
		WithArgs("run-1", tx.Program, "initialize", "sig", int64(42), models.StatusFinalized, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, h.WriteTransaction(context.Background(), tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteTransactionError(t *testing.T) {
	h, mock := newMock(t)
	mock.ExpectExec("INSERT INTO journal").WillReturnError(errors.New("connection reset"))

	err := h.WriteTransaction(context.Background(), &models.Transaction{Signature: "sig"})
	assert.ErrorContains(t, err, "failed to journal transaction sig")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestTransaction(t *testing.T) {
	h, mock := newMock(t)
	submitted := time.Unix(100, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM journal ORDER BY id DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows(journalColumns).
			AddRow("run-1", "prog", "deposit", "sig", int64(7), models.StatusConfirmed, "", submitted, nil))

	tx, err := h.GetLatestTransaction(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "deposit", tx.Instruction)
	assert.Equal(t, uint64(7), tx.Slot)
	assert.Equal(t, submitted, tx.SubmittedAt)
	assert.True(t, tx.ConfirmedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestTransactionEmpty(t *testing.T) {
	h, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM journal").WillReturnRows(sqlmock.NewRows(journalColumns))

	tx, err := h.GetLatestTransaction(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestGetUnsettledTransactions(t *testing.T) {
	h, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM journal WHERE signature <> '' AND status IN").
		WithArgs(models.StatusProcessed, models.StatusConfirmed, models.StatusExpired).
		WillReturnRows(sqlmock.NewRows(journalColumns).
			AddRow("run-1", "prog", "deposit", "a", int64(1), models.StatusConfirmed, "", now, now).
			AddRow("run-1", "prog", "claim", "b", int64(0), models.StatusExpired, "timed out", now, nil))

	txs, err := h.GetUnsettledTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "a", txs[0].Signature)
	assert.Equal(t, now, txs[0].ConfirmedAt)
	assert.Equal(t, models.StatusExpired, txs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	h, mock := newMock(t)
	mock.ExpectExec("UPDATE journal SET status = \\$1, slot = \\$2, error = \\$3, confirmed_at = \\$4 WHERE signature = \\$5").
		WithArgs(models.StatusFinalized, int64(9), "", sqlmock.AnyArg(), "sig").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := h.UpdateStatus(context.Background(), &models.Transaction{Signature: "sig", Slot: 9, Status: models.StatusFinalized, ConfirmedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
