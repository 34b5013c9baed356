package seriesgen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/observability/metrics"
	"homeserve/backend/internal/store"
)

// generateEligible are the root statuses the generator materializes
// follow-ons for. A root that was never accepted has no provider commitment
// to project forward.
var generateEligible = []domain.EngagementStatus{domain.StatusAccepted}

// ItemFailure records one root the run could not process.
type ItemFailure struct {
	RootID uuid.UUID `json:"root_id"`
	Err    string    `json:"error"`
}

// Summary is the result of one generator run. Per-item failures accumulate
// here instead of aborting the run.
type Summary struct {
	RootsScanned   int           `json:"roots_scanned"`
	MembersCreated int           `json:"members_created"`
	Failures       []ItemFailure `json:"failures,omitempty"`
}

// Generator materializes missing future occurrences of accepted recurring
// engagements. It runs on an external scheduler trigger with no
// caller-supplied state and tolerates at-least-once, overlapping invocation:
// the existing (series, index) set is the sole idempotence guard.
type Generator struct {
	repo    store.EngagementRepository
	metrics *metrics.BookingMetrics
	log     *slog.Logger
	now     func() time.Time
}

func NewGenerator(repo store.EngagementRepository, m *metrics.BookingMetrics, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		repo:    repo,
		metrics: m,
		log:     log.With(slog.String("component", "seriesgen")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run scans every eligible series root and creates its missing members.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	roots, err := g.repo.ListRecurringRoots(ctx, generateEligible)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{RootsScanned: len(roots)}
	for i := range roots {
		root := &roots[i]
		created, err := g.processRoot(ctx, root)
		if err != nil {
			g.metrics.ObserveBatchFailure("series_generator")
			g.log.Error("series root failed",
				slog.Any("err", err),
				slog.String("root_id", root.ID.String()),
			)
			summary.Failures = append(summary.Failures, ItemFailure{RootID: root.ID, Err: err.Error()})
			continue
		}
		summary.MembersCreated += created
	}

	g.metrics.ObserveSeriesCreated(summary.MembersCreated)
	g.log.Info("series generation run finished",
		slog.Int("roots_scanned", summary.RootsScanned),
		slog.Int("members_created", summary.MembersCreated),
		slog.Int("failures", len(summary.Failures)),
	)
	return summary, nil
}

func (g *Generator) processRoot(ctx context.Context, root *domain.Engagement) (int, error) {
	seriesID := root.SeriesID()
	if root.RecurrenceSeriesID == nil || *root.RecurrenceSeriesID == uuid.Nil {
		if err := g.repo.SetSeriesID(ctx, root.ID, seriesID); err != nil {
			return 0, err
		}
	}

	schedule, err := root.Schedule()
	if err != nil {
		return 0, err
	}
	occurrences, err := domain.ProjectOccurrences(schedule)
	if err != nil {
		return 0, err
	}

	members, err := g.repo.ListSeriesMembers(ctx, seriesID)
	if err != nil {
		return 0, err
	}
	existing := make(map[int]struct{}, len(members))
	existing[0] = struct{}{} // the root itself, whether or not backfilled yet
	for i := range members {
		if members[i].RecurrenceIndex != nil {
			existing[*members[i].RecurrenceIndex] = struct{}{}
		}
	}

	created := 0
	for i := 1; i < len(occurrences); i++ {
		if _, ok := existing[i]; ok {
			continue
		}
		index := i
		member := domain.Engagement{
			ClientID:           root.ClientID,
			ProviderID:         root.ProviderID,
			Category:           root.Category,
			Address:            root.Address,
			Tasks:              root.Tasks,
			ScheduledDate:      occurrences[i],
			Status:             domain.StatusScheduled,
			IsRecurring:        true,
			PreferredWeekday:   root.PreferredWeekday,
			FrequencyUnit:      root.FrequencyUnit,
			FrequencyInterval:  root.FrequencyInterval,
			HorizonCount:       root.HorizonCount,
			RecurrenceSeriesID: &seriesID,
			RecurrenceIndex:    &index,
		}
		if _, err := g.repo.Create(ctx, member); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// An overlapping run won the (series, index) insert; fine.
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
