package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"homeserve/backend/internal/domain"
)

type fakeLister struct {
	listFn func(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error)
}

func (f *fakeLister) ListForProvider(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
	if f.listFn == nil {
		panic("ListForProvider not configured")
	}
	return f.listFn(ctx, providerID, before)
}

func bookedBlock(start time.Time, duration time.Duration) domain.TimeBlock {
	w := domain.NewWindow(start, duration)
	return domain.TimeBlock{
		Status:       domain.TimeBlockStatusBooked,
		ServiceStart: w.ServiceStart,
		ServiceEnd:   w.ServiceEnd,
		PaddedStart:  w.PaddedStart,
		PaddedEnd:    w.PaddedEnd,
	}
}

func heldBlock(start time.Time, duration time.Duration, expiresAt time.Time) domain.TimeBlock {
	b := bookedBlock(start, duration)
	b.Status = domain.TimeBlockStatusHeld
	b.HoldExpiresAt = &expiresAt
	return b
}

func TestCheckWindow_PaddingMakesAdjacentJobsConflict(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	// Existing job 10:00-12:00; padded 09:00-13:00.
	existing := bookedBlock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 2*time.Hour)
	c := NewChecker(&fakeLister{
		listFn: func(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
			return []domain.TimeBlock{existing}, nil
		},
	})

	// Candidate 13:30-14:30; padded 12:30-15:30 overlaps the 13:00 tail.
	w := domain.NewWindow(time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC), time.Hour)
	err := c.CheckWindow(context.Background(), "p1", w, now)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if conflict.ProviderID != "p1" || conflict.OccurrenceIndex != 0 {
		t.Fatalf("conflict = %+v, want provider p1 index 0", conflict)
	}

	// Candidate 14:00-15:00; padded 13:00-16:00 only touches 13:00. Half-open
	// intervals make a shared boundary legal.
	w = domain.NewWindow(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), time.Hour)
	if err := c.CheckWindow(context.Background(), "p1", w, now); err != nil {
		t.Fatalf("touching windows should not conflict: %v", err)
	}
}

func TestCheckWindow_ExpiredHoldNeverBlocks(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

	expired := heldBlock(start, time.Hour, now.Add(-time.Minute))
	live := heldBlock(start, time.Hour, now.Add(5*time.Minute))

	tests := []struct {
		name     string
		blocks   []domain.TimeBlock
		conflict bool
	}{
		{"expired hold", []domain.TimeBlock{expired}, false},
		{"live hold", []domain.TimeBlock{live}, true},
		{"hold expiring exactly now", []domain.TimeBlock{heldBlock(start, time.Hour, now)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker(&fakeLister{
				listFn: func(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
					return tc.blocks, nil
				},
			})
			w := domain.NewWindow(start, time.Hour)
			err := c.CheckWindow(context.Background(), "p1", w, now)
			var conflict *ConflictError
			got := errors.As(err, &conflict)
			if got != tc.conflict {
				t.Fatalf("conflict = %v, want %v (err=%v)", got, tc.conflict, err)
			}
		})
	}
}

func TestCheckWindows_ReportsFirstFailingIndex(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	busyDay := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	existing := bookedBlock(busyDay, 2*time.Hour)
	c := NewChecker(&fakeLister{
		listFn: func(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
			if before.After(existing.PaddedStart) {
				return []domain.TimeBlock{existing}, nil
			}
			return nil, nil
		},
	})

	windows := []domain.Window{
		domain.NewWindow(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 2*time.Hour),
		domain.NewWindow(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), 2*time.Hour),
		domain.NewWindow(busyDay, 2*time.Hour),
	}
	err := c.CheckWindows(context.Background(), "p1", windows, now)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if conflict.OccurrenceIndex != 2 {
		t.Fatalf("occurrence index = %d, want 2", conflict.OccurrenceIndex)
	}
}

func TestCheckWindow_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c := NewChecker(&fakeLister{
		listFn: func(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
			return nil, boom
		},
	})
	w := domain.NewWindow(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), time.Hour)
	if err := c.CheckWindow(context.Background(), "p1", w, time.Now()); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}
