package availability

import (
	"context"
	"fmt"
	"time"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

// ConflictError reports which occurrence window of a request could not be
// reserved, so the caller can retry with enough detail.
type ConflictError struct {
	ProviderID      string
	OccurrenceIndex int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("provider %s unavailable for occurrence %d", e.ProviderID, e.OccurrenceIndex)
}

// blockLister is the read-only slice of the time-block repository the
// checker needs.
type blockLister interface {
	ListForProvider(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error)
}

// Checker decides whether a provider can take a padded window given their
// existing active reservations.
type Checker struct {
	blocks blockLister
}

func NewChecker(blocks blockLister) *Checker {
	return &Checker{blocks: blocks}
}

// CheckWindow returns nil when the window is free, a *ConflictError when an
// active block overlaps it.
func (c *Checker) CheckWindow(ctx context.Context, providerID string, w domain.Window, now time.Time) error {
	return c.checkOne(ctx, providerID, w, 0, now)
}

// CheckWindows verifies every occurrence window; failure on any one rejects
// the whole candidate, reporting the first failing index.
func (c *Checker) CheckWindows(ctx context.Context, providerID string, windows []domain.Window, now time.Time) error {
	for i, w := range windows {
		if err := c.checkOne(ctx, providerID, w, i, now); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkOne(ctx context.Context, providerID string, w domain.Window, index int, now time.Time) error {
	// The store applies only padded_start < w.PaddedEnd; everything else is
	// filtered here.
	blocks, err := c.blocks.ListForProvider(ctx, providerID, w.PaddedEnd)
	if err != nil {
		return err
	}
	if HasConflict(blocks, w, now) {
		return &ConflictError{ProviderID: providerID, OccurrenceIndex: index}
	}
	return nil
}

// HasConflict applies the in-code half of the availability check over blocks
// already fetched: drop anything not held/booked, drop expired holds, then
// test padded overlap. Shared with the hold manager so the transactional
// re-check uses the same logic as the read path.
func HasConflict(blocks []domain.TimeBlock, w domain.Window, now time.Time) bool {
	for i := range blocks {
		b := &blocks[i]
		if b.Status != domain.TimeBlockStatusHeld && b.Status != domain.TimeBlockStatusBooked {
			continue
		}
		if !b.ActiveAt(now) {
			continue
		}
		if domain.Overlaps(b.Window(), w) {
			return true
		}
	}
	return false
}

var _ blockLister = (store.TimeBlockRepository)(nil)
