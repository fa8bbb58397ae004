package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/harrylevesque/makerdash/internal/models"
)

// SwapRepo handles swap history.
type SwapRepo struct {
	db *sql.DB
}

func NewSwapRepo(db *sql.DB) *SwapRepo {
	return &SwapRepo{db: db}
}

// Record inserts or updates a swap.
func (r *SwapRepo) Record(ctx context.Context, s models.Swap) (models.Swap, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now()
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO swaps(id, maker_id, amount, fee, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 amount=excluded.amount,
	 fee=excluded.fee,
	 status=excluded.status;
	`, s.ID, s.MakerID, s.Amount, s.Fee, s.Status, s.CreatedAt.UTC())
	return s, err
}

// ForMaker returns the maker's swaps, newest first.
func (r *SwapRepo) ForMaker(ctx context.Context, makerID string, limit int) ([]models.Swap, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, maker_id, amount, fee, status, created_at
	FROM swaps WHERE maker_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, makerID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Swap{}
	for rows.Next() {
		var s models.Swap
		if err := rows.Scan(&s.ID, &s.MakerID, &s.Amount, &s.Fee, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Stats returns the number of active swaps and the fees earned from
// completed ones, in sats.
func (r *SwapRepo) Stats(ctx context.Context, makerID string) (active int, earnings int64, err error) {
	err = r.db.QueryRowContext(ctx, `
	SELECT
	 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN status = ? THEN fee ELSE 0 END), 0)
	FROM swaps WHERE maker_id = ?`,
		models.SwapActive, models.SwapCompleted, makerID).Scan(&active, &earnings)
	return active, earnings, err
}
