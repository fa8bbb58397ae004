package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/harrylevesque/makerdash/internal/models"
)

// ActivityRepo handles the activity feed.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// Append stores a, filling ID and CreatedAt when unset, and returns it.
func (r *ActivityRepo) Append(ctx context.Context, a models.Activity) (models.Activity, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO activity(id, maker_id, maker_name, type, details, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MakerID, a.Maker, a.Type, a.Details, a.Status, a.CreatedAt.UTC())
	return a, err
}

// Recent returns the newest limit entries across all makers.
func (r *ActivityRepo) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	return r.query(ctx, `SELECT id, maker_id, maker_name, type, details, status, created_at
	FROM activity ORDER BY created_at DESC, rowid DESC LIMIT ?`, clampLimit(limit))
}

// ForMaker returns the newest limit entries for one maker.
func (r *ActivityRepo) ForMaker(ctx context.Context, makerID string, limit int) ([]models.Activity, error) {
	return r.query(ctx, `SELECT id, maker_id, maker_name, type, details, status, created_at
	FROM activity WHERE maker_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, makerID, clampLimit(limit))
}

func (r *ActivityRepo) query(ctx context.Context, q string, args ...any) ([]models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Activity{}
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.MakerID, &a.Maker, &a.Type, &a.Details, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
