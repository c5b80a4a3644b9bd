package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"docregistry/internal/domain"
)

// LockRepository keeps lock tokens on the canonicals table.
type LockRepository struct {
	db *sqlx.DB
}

func NewLockRepository(db *sqlx.DB) *LockRepository {
	return &LockRepository{db: db}
}

// LockDocument sets token on id unless another token holds it. Locking
// again with the held token is a no-op.
func (r *LockRepository) LockDocument(ctx context.Context, id, token string) error {
	query := r.db.Rebind(`UPDATE canonicals SET lock = ? WHERE id = ? AND (lock = '' OR lock = ?)`)

	res, err := r.db.ExecContext(ctx, query, token, id, token)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	if _, err := r.current(ctx, id); err != nil {
		return err
	}
	return domain.ErrConflict
}

func (r *LockRepository) UnlockDocument(ctx context.Context, id, token string) error {
	query := r.db.Rebind(`UPDATE canonicals SET lock = '' WHERE id = ? AND lock = ? AND lock <> ''`)

	res, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	held, err := r.current(ctx, id)
	if err != nil {
		return err
	}
	if held == "" {
		return domain.ErrNotLocked
	}
	return domain.ErrInvalidLock
}

func (r *LockRepository) current(ctx context.Context, id string) (string, error) {
	var held string
	err := r.db.GetContext(ctx, &held, r.db.Rebind(`SELECT lock FROM canonicals WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("canonical %s: %w", id, domain.ErrDoesNotExist)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lock of %s: %w", id, err)
	}
	return held, nil
}
