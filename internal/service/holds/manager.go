package holds

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/observability/metrics"
	"homeserve/backend/internal/service/availability"
	"homeserve/backend/internal/store"
)

// Decision is the provider's answer to a pending hold.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// Manager owns the lifecycle of soft reservations: create with TTL inside a
// per-provider transaction, promote to booked on acceptance, delete on
// decline, best-effort delete on release.
type Manager struct {
	blocks  store.TimeBlockRepository
	metrics *metrics.BookingMetrics
	log     *slog.Logger
}

func NewManager(blocks store.TimeBlockRepository, m *metrics.BookingMetrics, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		blocks:  blocks,
		metrics: m,
		log:     log.With(slog.String("component", "holds")),
	}
}

// CreateHolds reserves every occurrence window for the engagement on the
// provider's calendar, all-or-nothing. Availability is re-validated against
// blocks read inside the same provider transaction, so a concurrent hold
// attempt for an overlapping window cannot slip between check and write.
// Each hold expires HoldTTL after now unless resolved.
func (m *Manager) CreateHolds(ctx context.Context, engagementID uuid.UUID, providerID string, windows []domain.Window, isRecurring bool, now time.Time) ([]uuid.UUID, error) {
	expiresAt := now.Add(domain.HoldTTL)

	var ids []uuid.UUID
	err := m.blocks.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.BlockTx) error {
		for i, w := range windows {
			blocks, err := tx.ListBlocks(ctx, providerID, w.PaddedEnd)
			if err != nil {
				return err
			}
			if availability.HasConflict(blocks, w, now) {
				return &availability.ConflictError{ProviderID: providerID, OccurrenceIndex: i}
			}
		}

		ids = make([]uuid.UUID, 0, len(windows))
		for i, w := range windows {
			exp := expiresAt
			created, err := tx.InsertBlock(ctx, domain.TimeBlock{
				ProviderID:      providerID,
				EngagementID:    engagementID,
				Status:          domain.TimeBlockStatusHeld,
				ServiceStart:    w.ServiceStart,
				ServiceEnd:      w.ServiceEnd,
				PaddedStart:     w.PaddedStart,
				PaddedEnd:       w.PaddedEnd,
				HoldExpiresAt:   &exp,
				OccurrenceIndex: i,
				IsRecurring:     isRecurring,
			})
			if err != nil {
				return err
			}
			ids = append(ids, created.ID)
		}
		return nil
	})
	if err != nil {
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			m.metrics.ObserveHoldConflict()
			m.log.Info("hold rejected",
				slog.String("engagement_id", engagementID.String()),
				slog.String("provider_id", providerID),
				slog.Int("occurrence_index", conflict.OccurrenceIndex),
			)
		}
		return nil, err
	}

	m.metrics.ObserveHoldsCreated(len(ids))
	m.log.Info("holds created",
		slog.String("engagement_id", engagementID.String()),
		slog.String("provider_id", providerID),
		slog.Int("count", len(ids)),
		slog.Time("expires_at", expiresAt),
	)
	return ids, nil
}

// ResolveHolds applies the provider's decision: accepted promotes every held
// block to booked (window fields untouched), declined deletes every block so
// the slots free immediately instead of waiting out the TTL. A failed
// declined-side delete is logged and swallowed; freeing slots is best-effort,
// committing them is not.
func (m *Manager) ResolveHolds(ctx context.Context, providerID string, engagementID uuid.UUID, decision Decision) error {
	switch decision {
	case DecisionAccepted:
		return m.blocks.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.BlockTx) error {
			n, err := tx.MarkBooked(ctx, providerID, engagementID)
			if err != nil {
				return err
			}
			m.log.Info("holds booked",
				slog.String("engagement_id", engagementID.String()),
				slog.String("provider_id", providerID),
				slog.Int64("count", n),
			)
			return nil
		})
	case DecisionDeclined:
		err := m.blocks.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.BlockTx) error {
			n, err := tx.DeleteBlocks(ctx, providerID, engagementID)
			if err != nil {
				return err
			}
			m.metrics.ObserveBlocksReleased(n)
			return nil
		})
		if err != nil {
			m.log.Warn("hold delete failed on decline; slots will expire via TTL",
				slog.Any("err", err),
				slog.String("engagement_id", engagementID.String()),
				slog.String("provider_id", providerID),
			)
		}
		return nil
	}
	return &UnknownDecisionError{Decision: decision}
}

// ReleaseHolds removes the engagement's blocks on cancellation/rematch
// flows. Never fails the caller: errors are logged and swallowed, expired
// holds are inert anyway.
func (m *Manager) ReleaseHolds(ctx context.Context, engagementID uuid.UUID) {
	n, err := m.blocks.DeleteForEngagement(ctx, engagementID)
	if err != nil {
		m.log.Warn("hold release failed",
			slog.Any("err", err),
			slog.String("engagement_id", engagementID.String()),
		)
		return
	}
	if n > 0 {
		m.metrics.ObserveBlocksReleased(n)
		m.log.Info("holds released",
			slog.String("engagement_id", engagementID.String()),
			slog.Int64("count", n),
		)
	}
}

// SweepExpired garbage-collects lapsed holds. Availability reads already
// ignore them; this only keeps the table small.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.blocks.DeleteExpiredHolds(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info("expired holds swept", slog.Int64("count", n))
	}
	return n, nil
}

type UnknownDecisionError struct {
	Decision Decision
}

func (e *UnknownDecisionError) Error() string {
	return "unknown hold decision " + string(e.Decision)
}
