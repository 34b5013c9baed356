package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

type TimeBlockRepo struct {
	db *bun.DB
}

func NewTimeBlockRepo(db *bun.DB) *TimeBlockRepo {
	return &TimeBlockRepo{db: db}
}

type blockTx struct {
	tx bun.Tx
}

// InProviderTransaction serializes all availability-then-write sequences for
// one provider behind an advisory lock keyed by the provider id. Two
// concurrent hold attempts for the same provider cannot both pass the
// availability re-check.
func (r *TimeBlockRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.BlockTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, blockTx{tx: tx})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (r *TimeBlockRepo) ListForProvider(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
	return listBlocks(ctx, r.db, providerID, before)
}

func (r *TimeBlockRepo) DeleteForEngagement(ctx context.Context, engagementID uuid.UUID) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*domain.TimeBlock)(nil)).
		Where("engagement_id = ?", engagementID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TimeBlockRepo) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*domain.TimeBlock)(nil)).
		Where("status = ?", domain.TimeBlockStatusHeld).
		Where("hold_expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t blockTx) ListBlocks(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
	return listBlocks(ctx, t.tx, providerID, before)
}

func (t blockTx) InsertBlock(ctx context.Context, b domain.TimeBlock) (domain.TimeBlock, error) {
	m := b
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.TimeBlock{}, err
	}
	return m, nil
}

func (t blockTx) MarkBooked(ctx context.Context, providerID string, engagementID uuid.UUID) (int64, error) {
	res, err := t.tx.NewUpdate().
		Model((*domain.TimeBlock)(nil)).
		Set("status = ?", domain.TimeBlockStatusBooked).
		Set("hold_expires_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("provider_id = ?", providerID).
		Where("engagement_id = ?", engagementID).
		Where("status = ?", domain.TimeBlockStatusHeld).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t blockTx) DeleteBlocks(ctx context.Context, providerID string, engagementID uuid.UUID) (int64, error) {
	res, err := t.tx.NewDelete().
		Model((*domain.TimeBlock)(nil)).
		Where("provider_id = ?", providerID).
		Where("engagement_id = ?", engagementID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// listBlocks is the one-sided range scan shared by the tx and non-tx paths:
// a single inequality on padded_start so the (provider_id, padded_start)
// index serves it; the upper interval bound is applied by the caller.
func listBlocks(ctx context.Context, db bun.IDB, providerID string, before time.Time) ([]domain.TimeBlock, error) {
	var rows []domain.TimeBlock
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("padded_start < ?", before).
		OrderExpr("padded_start ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
