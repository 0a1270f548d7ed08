package postgresql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/manifest-network/vaultctl/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const columns = "run_id, program, instruction, signature, slot, status, error, submitted_at, confirmed_at"

// Handler journals transactions to PostgreSQL.
type Handler struct {
	db *sql.DB
}

// NewHandler connects to connString and applies pending migrations.
func NewHandler(ctx context.Context, connString string) (*Handler, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewHandlerWithDB(db), nil
}

// NewHandlerWithDB wraps an open database without running migrations.
func NewHandlerWithDB(db *sql.DB) *Handler {
	return &Handler{db: db}
}

// Migrate brings the journal schema up to date.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Debug("Journal schema ready", "version", version, "dirty", dirty)
	return nil
}

func (h *Handler) WriteTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO journal ("+columns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		tx.RunID, tx.Program, tx.Instruction, tx.Signature, int64(tx.Slot), tx.Status, tx.Err,
		tx.SubmittedAt, nullTime(tx.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to journal transaction %s: %w", tx.Signature, err)
	}
	return nil
}

func (h *Handler) GetLatestTransaction(ctx context.Context) (*models.Transaction, error) {
	row := h.db.QueryRowContext(ctx, "SELECT "+columns+" FROM journal ORDER BY id DESC LIMIT 1")
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction: %w", err)
	}
	return tx, nil
}

// GetUnsettledTransactions returns landed or expired transactions that have
// not been recorded as finalized or failed.
func (h *Handler) GetUnsettledTransactions(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := h.db.QueryContext(ctx,
		"SELECT "+columns+" FROM journal WHERE signature <> '' AND status IN ($1, $2, $3) ORDER BY id",
		models.StatusProcessed, models.StatusConfirmed, models.StatusExpired,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// UpdateStatus records the settled status of every journal row for tx.Signature.
func (h *Handler) UpdateStatus(ctx context.Context, tx *models.Transaction) error {
	_, err := h.db.ExecContext(ctx,
		"UPDATE journal SET status = $1, slot = $2, error = $3, confirmed_at = $4 WHERE signature = $5",
		tx.Status, int64(tx.Slot), tx.Err, nullTime(tx.ConfirmedAt), tx.Signature,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.Signature, err)
	}
	return nil
}

func (h *Handler) Close() error {
	return h.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var (
		tx        models.Transaction
		slot      int64
		confirmed sql.NullTime
	)
	if err := s.Scan(&tx.RunID, &tx.Program, &tx.Instruction, &tx.Signature, &slot, &tx.Status, &tx.Err, &tx.SubmittedAt, &confirmed); err != nil {
		return nil, err
	}
	tx.Slot = uint64(slot)
	if confirmed.Valid {
		tx.ConfirmedAt = confirmed.Time
	}
	return &tx, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
