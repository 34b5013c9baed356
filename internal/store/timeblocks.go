package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
)

// BlockTx is the set of time-block operations available inside a
// per-provider transaction. Everything that decides availability and then
// writes must go through one so concurrent hold attempts serialize.
type BlockTx interface {
	// ListBlocks returns the provider's blocks with padded_start < before.
	// The second interval bound and hold-expiry filtering are applied by the
	// caller; the query is deliberately a single inequality.
	ListBlocks(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error)
	InsertBlock(ctx context.Context, b domain.TimeBlock) (domain.TimeBlock, error)

	// MarkBooked promotes every held block for the engagement to booked and
	// returns how many rows changed.
	MarkBooked(ctx context.Context, providerID string, engagementID uuid.UUID) (int64, error)

	// DeleteBlocks removes every block for the engagement on this provider.
	DeleteBlocks(ctx context.Context, providerID string, engagementID uuid.UUID) (int64, error)
}

// TimeBlockRepository is the document-store boundary for reservation blocks.
type TimeBlockRepository interface {
	// InProviderTransaction runs fn inside a transaction holding the
	// provider's calendar lock, closing the check-then-act gap between
	// availability reads and block writes.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx BlockTx) error) error

	// ListForProvider mirrors BlockTx.ListBlocks outside a transaction, for
	// read-only availability checks (match queries).
	ListForProvider(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error)

	// DeleteForEngagement removes the engagement's blocks regardless of
	// provider; used by best-effort release paths.
	DeleteForEngagement(ctx context.Context, engagementID uuid.UUID) (int64, error)

	// DeleteExpiredHolds garbage-collects held blocks whose TTL lapsed
	// before now. Optional cleanup: correctness never depends on it.
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}
