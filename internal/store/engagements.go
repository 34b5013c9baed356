package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
)

// EngagementRepository is the document-store boundary for engagements. Batch
// queries use a single inequality predicate; callers apply the remaining
// bounds in code so no composite index is required.
type EngagementRepository interface {
	Create(ctx context.Context, e domain.Engagement) (domain.Engagement, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Engagement, error)

	// UpdateStatus transitions status and optionally clears the provider
	// assignment in the same write.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EngagementStatus, clearProvider bool) error

	// AssignProvider records the provider a hold is being created against.
	AssignProvider(ctx context.Context, id uuid.UUID, providerID string) error

	// SetSeriesID backfills the series id onto a root that predates it.
	SetSeriesID(ctx context.Context, id uuid.UUID, seriesID uuid.UUID) error

	// MarkReminderSent flips the at-most-once reminder flag.
	MarkReminderSent(ctx context.Context, id uuid.UUID) error

	// ListRecurringRoots returns recurring engagements whose recurrence index
	// is absent or zero, filtered to the given statuses.
	ListRecurringRoots(ctx context.Context, statuses []domain.EngagementStatus) ([]domain.Engagement, error)

	// ListSeriesMembers returns every engagement carrying the series id,
	// including the root when it has been backfilled.
	ListSeriesMembers(ctx context.Context, seriesID uuid.UUID) ([]domain.Engagement, error)

	// ListScheduledBefore returns recurring, not-yet-reminded engagements
	// with scheduled_date strictly before the horizon. The lower bound and
	// status filtering happen in the caller.
	ListScheduledBefore(ctx context.Context, horizon time.Time) ([]domain.Engagement, error)
}
