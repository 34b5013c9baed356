package holds

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/service/availability"
	"homeserve/backend/internal/store"
)

// memBlocks is an in-memory TimeBlockRepository. InProviderTransaction takes
// a per-provider mutex, mirroring the advisory-lock serialization the
// postgres implementation provides.
type memBlocks struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	blocks []domain.TimeBlock

	insertErr error
	deleteErr error
}

func newMemBlocks() *memBlocks {
	return &memBlocks{locks: map[string]*sync.Mutex{}}
}

func (m *memBlocks) providerLock(providerID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[providerID] = l
	}
	return l
}

func (m *memBlocks) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.BlockTx) error) error {
	l := m.providerLock(providerID)
	l.Lock()
	defer l.Unlock()
	return fn(ctx, &memTx{m: m})
}

func (m *memBlocks) ListForProvider(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(providerID, before), nil
}

func (m *memBlocks) listLocked(providerID string, before time.Time) []domain.TimeBlock {
	var out []domain.TimeBlock
	for _, b := range m.blocks {
		if b.ProviderID == providerID && b.PaddedStart.Before(before) {
			out = append(out, b)
		}
	}
	return out
}

func (m *memBlocks) DeleteForEngagement(ctx context.Context, engagementID uuid.UUID) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(func(b domain.TimeBlock) bool { return b.EngagementID == engagementID }), nil
}

func (m *memBlocks) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(func(b domain.TimeBlock) bool {
		return b.Status == domain.TimeBlockStatusHeld && b.HoldExpiresAt != nil && b.HoldExpiresAt.Before(now)
	}), nil
}

func (m *memBlocks) deleteLocked(match func(domain.TimeBlock) bool) int64 {
	var kept []domain.TimeBlock
	var n int64
	for _, b := range m.blocks {
		if match(b) {
			n++
			continue
		}
		kept = append(kept, b)
	}
	m.blocks = kept
	return n
}

type memTx struct {
	m *memBlocks
}

func (t *memTx) ListBlocks(ctx context.Context, providerID string, before time.Time) ([]domain.TimeBlock, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.listLocked(providerID, before), nil
}

func (t *memTx) InsertBlock(ctx context.Context, b domain.TimeBlock) (domain.TimeBlock, error) {
	if t.m.insertErr != nil {
		return domain.TimeBlock{}, t.m.insertErr
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	b.ID = uuid.New()
	t.m.blocks = append(t.m.blocks, b)
	return b, nil
}

func (t *memTx) MarkBooked(ctx context.Context, providerID string, engagementID uuid.UUID) (int64, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	var n int64
	for i := range t.m.blocks {
		b := &t.m.blocks[i]
		if b.ProviderID == providerID && b.EngagementID == engagementID && b.Status == domain.TimeBlockStatusHeld {
			b.Status = domain.TimeBlockStatusBooked
			b.HoldExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteBlocks(ctx context.Context, providerID string, engagementID uuid.UUID) (int64, error) {
	if t.m.deleteErr != nil {
		return 0, t.m.deleteErr
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.deleteLocked(func(b domain.TimeBlock) bool {
		return b.ProviderID == providerID && b.EngagementID == engagementID
	}), nil
}

func weeklyWindows(start time.Time, count int) []domain.Window {
	out := make([]domain.Window, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, domain.NewWindow(start.AddDate(0, 0, 7*i), 2*time.Hour))
	}
	return out
}

func TestCreateHolds_AllOrNothingOnConflict(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo := newMemBlocks()
	m := NewManager(repo, nil, nil)

	// Book the third weekly occurrence out from under the request.
	windows := weeklyWindows(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 4)
	blocked := windows[2]
	repo.blocks = append(repo.blocks, domain.TimeBlock{
		ID:           uuid.New(),
		ProviderID:   "p1",
		EngagementID: uuid.New(),
		Status:       domain.TimeBlockStatusBooked,
		ServiceStart: blocked.ServiceStart,
		ServiceEnd:   blocked.ServiceEnd,
		PaddedStart:  blocked.PaddedStart,
		PaddedEnd:    blocked.PaddedEnd,
	})

	_, err := m.CreateHolds(context.Background(), uuid.New(), "p1", windows, true, now)
	var conflict *availability.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if conflict.OccurrenceIndex != 2 {
		t.Fatalf("occurrence index = %d, want 2", conflict.OccurrenceIndex)
	}
	if got := len(repo.blocks); got != 1 {
		t.Fatalf("blocks after failed hold = %d, want only the pre-existing one", got)
	}
}

func TestCreateHolds_SetsTTLOnEveryBlock(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo := newMemBlocks()
	m := NewManager(repo, nil, nil)

	engagementID := uuid.New()
	windows := weeklyWindows(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 3)
	ids, err := m.CreateHolds(context.Background(), engagementID, "p1", windows, true, now)
	if err != nil {
		t.Fatalf("CreateHolds error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("hold ids = %d, want 3", len(ids))
	}

	wantExpiry := now.Add(domain.HoldTTL)
	for _, b := range repo.blocks {
		if b.Status != domain.TimeBlockStatusHeld {
			t.Fatalf("block status = %q, want held", b.Status)
		}
		if b.HoldExpiresAt == nil || !b.HoldExpiresAt.Equal(wantExpiry) {
			t.Fatalf("hold expiry = %v, want %v", b.HoldExpiresAt, wantExpiry)
		}
		if b.EngagementID != engagementID {
			t.Fatalf("engagement id = %v, want %v", b.EngagementID, engagementID)
		}
	}
}

func TestCreateHolds_ConcurrentRequestsOnlyOneWins(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo := newMemBlocks()
	m := NewManager(repo, nil, nil)

	windows := weeklyWindows(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 2)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.CreateHolds(context.Background(), uuid.New(), "p1", windows, true, now)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var conflict *availability.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winning hold requests = %d, want exactly 1", wins)
	}
	if got := len(repo.blocks); got != len(windows) {
		t.Fatalf("blocks = %d, want %d", got, len(windows))
	}
}

func TestResolveHolds_AcceptedPromotesToBooked(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo := newMemBlocks()
	m := NewManager(repo, nil, nil)

	engagementID := uuid.New()
	windows := weeklyWindows(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 2)
	if _, err := m.CreateHolds(context.Background(), engagementID, "p1", windows, true, now); err != nil {
		t.Fatalf("CreateHolds error: %v", err)
	}

	if err := m.ResolveHolds(context.Background(), "p1", engagementID, DecisionAccepted); err != nil {
		t.Fatalf("ResolveHolds error: %v", err)
	}
	for _, b := range repo.blocks {
		if b.Status != domain.TimeBlockStatusBooked {
			t.Fatalf("block status = %q, want booked", b.Status)
		}
		if b.HoldExpiresAt != nil {
			t.Fatalf("booked block kept hold expiry %v", b.HoldExpiresAt)
		}
		if !b.ServiceStart.Equal(windows[b.OccurrenceIndex].ServiceStart) {
			t.Fatalf("booked block window moved")
		}
	}
}

func TestResolveHolds_DeclinedFreesSlotsImmediately(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo := newMemBlocks()
	m := NewManager(repo, nil, nil)

	engagementID := uuid.New()
	windows := weeklyWindows(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 2)
	if _, err := m.CreateHolds(context.Background(), engagementID, "p1", windows, true, now); err != nil {
		t.Fatalf("CreateHolds error: %v", err)
	}

	if err := m.ResolveHolds(context.Background(), "p1", engagementID, DecisionDeclined); err != nil {
		t.Fatalf("ResolveHolds error: %v", err)
	}
	if len(repo.blocks) != 0 {
		t.Fatalf("blocks after decline = %d, want 0", len(repo.blocks))
	}

	// The slot is immediately available again, well before the TTL lapses.
	if _, err := m.CreateHolds(context.Background(), uuid.New(), "p1", windows, true, now.Add(time.Minute)); err != nil {
		t.Fatalf("re-hold after decline error: %v", err)
	}
}

func TestResolveHolds_DeclineDeleteFailureSwallowed(t *testing.T) {
	repo := newMemBlocks()
	repo.deleteErr = errors.New("db down")
	m := NewManager(repo, nil, nil)

	if err := m.ResolveHolds(context.Background(), "p1", uuid.New(), DecisionDeclined); err != nil {
		t.Fatalf("decline must not surface delete failures, got %v", err)
	}
}

func TestResolveHolds_UnknownDecision(t *testing.T) {
	m := NewManager(newMemBlocks(), nil, nil)
	err := m.ResolveHolds(context.Background(), "p1", uuid.New(), Decision("maybe"))
	var unknown *UnknownDecisionError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownDecisionError", err)
	}
}

func TestReleaseHolds_SwallowsErrors(t *testing.T) {
	repo := newMemBlocks()
	repo.deleteErr = errors.New("db down")
	m := NewManager(repo, nil, nil)

	// Must not panic or propagate anything.
	m.ReleaseHolds(context.Background(), uuid.New())
}

func TestSweepExpired_RemovesOnlyLapsedHolds(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	repo := newMemBlocks()
	m := NewManager(repo, nil, nil)

	expired := now.Add(-time.Minute)
	live := now.Add(5 * time.Minute)
	repo.blocks = []domain.TimeBlock{
		{ID: uuid.New(), ProviderID: "p1", Status: domain.TimeBlockStatusHeld, HoldExpiresAt: &expired},
		{ID: uuid.New(), ProviderID: "p1", Status: domain.TimeBlockStatusHeld, HoldExpiresAt: &live},
		{ID: uuid.New(), ProviderID: "p1", Status: domain.TimeBlockStatusBooked},
	}

	n, err := m.SweepExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepExpired error: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if len(repo.blocks) != 2 {
		t.Fatalf("remaining blocks = %d, want 2", len(repo.blocks))
	}
}
