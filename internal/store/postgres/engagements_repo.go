package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

type EngagementRepo struct {
	db *bun.DB
}

func NewEngagementRepo(db *bun.DB) *EngagementRepo {
	return &EngagementRepo{db: db}
}

func (r *EngagementRepo) Create(ctx context.Context, e domain.Engagement) (domain.Engagement, error) {
	m := e
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "engagements_series_index" {
				// Another generator run materialized this (series, index)
				// first; the caller treats it the same as the index-set hit.
				return domain.Engagement{}, store.ErrConflict
			}

			var existing domain.Engagement
			selectErr := r.db.NewSelect().
				Model(&existing).
				Where("id = ?", m.ID).
				Limit(1).
				Scan(ctx)
			if selectErr != nil {
				return domain.Engagement{}, err
			}
			if existing.ClientID != e.ClientID ||
				existing.Category != e.Category ||
				!existing.ScheduledDate.Equal(e.ScheduledDate) {
				return domain.Engagement{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
		return domain.Engagement{}, err
	}
	e.ID = m.ID
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return e, nil
}

func (r *EngagementRepo) Get(ctx context.Context, id uuid.UUID) (domain.Engagement, error) {
	var e domain.Engagement
	err := r.db.NewSelect().
		Model(&e).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Engagement{}, store.ErrNotFound
		}
		return domain.Engagement{}, err
	}
	return e, nil
}

func (r *EngagementRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EngagementStatus, clearProvider bool) error {
	q := r.db.NewUpdate().
		Model((*domain.Engagement)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if clearProvider {
		q = q.Set("provider_id = ''")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *EngagementRepo) AssignProvider(ctx context.Context, id uuid.UUID, providerID string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Engagement)(nil)).
		Set("provider_id = ?", providerID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *EngagementRepo) SetSeriesID(ctx context.Context, id uuid.UUID, seriesID uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Engagement)(nil)).
		Set("recurrence_series_id = ?", seriesID).
		Set("recurrence_index = COALESCE(recurrence_index, 0)").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *EngagementRepo) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Engagement)(nil)).
		Set("reminder_sent = TRUE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *EngagementRepo) ListRecurringRoots(ctx context.Context, statuses []domain.EngagementStatus) ([]domain.Engagement, error) {
	var rows []domain.Engagement
	err := r.db.NewSelect().
		Model(&rows).
		Where("is_recurring").
		Where("recurrence_index IS NULL OR recurrence_index = 0").
		Where("status IN (?)", bun.In(statuses)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EngagementRepo) ListSeriesMembers(ctx context.Context, seriesID uuid.UUID) ([]domain.Engagement, error) {
	var rows []domain.Engagement
	err := r.db.NewSelect().
		Model(&rows).
		Where("recurrence_series_id = ?", seriesID).
		OrderExpr("recurrence_index ASC NULLS FIRST").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EngagementRepo) ListScheduledBefore(ctx context.Context, horizon time.Time) ([]domain.Engagement, error) {
	var rows []domain.Engagement
	err := r.db.NewSelect().
		Model(&rows).
		Where("is_recurring").
		Where("NOT reminder_sent").
		Where("scheduled_date < ?", horizon).
		OrderExpr("scheduled_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
