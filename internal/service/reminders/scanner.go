package reminders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/observability/metrics"
	"homeserve/backend/internal/store"
)

// DefaultLeadTime is how far ahead of an occurrence the reminder fires.
// DefaultDrift widens the window because the external scheduler is coarse;
// better to remind slightly early than to miss the slot between two runs.
const (
	DefaultLeadTime = 48 * time.Hour
	DefaultDrift    = 2 * time.Hour
)

type ItemFailure struct {
	EngagementID uuid.UUID `json:"engagement_id"`
	Err          string    `json:"error"`
}

// Summary is the result of one scanner run.
type Summary struct {
	Scanned      int           `json:"scanned"`
	Sent         int           `json:"sent"`
	SkippedFirst int           `json:"skipped_first"`
	Failures     []ItemFailure `json:"failures,omitempty"`
}

type notifier interface {
	Notify(ctx context.Context, topic, title, body string, data map[string]string)
}

// Scanner fires a one-time reminder to both parties of each recurring
// occurrence entering the lead-time window. The reminder_sent flag is the
// at-most-once guard across overlapping runs; the first occurrence of a
// series is marked handled without notifying anyone.
type Scanner struct {
	repo     store.EngagementRepository
	notifier notifier
	metrics  *metrics.BookingMetrics
	log      *slog.Logger
	lead     time.Duration
	drift    time.Duration
	now      func() time.Time
}

func NewScanner(repo store.EngagementRepository, n notifier, m *metrics.BookingMetrics, log *slog.Logger, lead, drift time.Duration) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	if lead <= 0 {
		lead = DefaultLeadTime
	}
	if drift < 0 {
		drift = DefaultDrift
	}
	return &Scanner{
		repo:     repo,
		notifier: n,
		metrics:  m,
		log:      log.With(slog.String("component", "reminders")),
		lead:     lead,
		drift:    drift,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run scans for due occurrences and delivers their reminders.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	now := s.now()
	horizon := now.Add(s.lead + s.drift)

	// The store applies only scheduled_date < horizon; the lower bound and
	// status filtering happen here.
	rows, err := s.repo.ListScheduledBefore(ctx, horizon)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{}
	for i := range rows {
		e := &rows[i]
		if e.ScheduledDate.Before(now) {
			continue
		}
		if e.Status.Terminal() {
			continue
		}
		summary.Scanned++

		if e.IsSeriesRoot() {
			// The first occurrence of a series never gets a reminder; mark it
			// permanently handled so it is not rescanned every run.
			if err := s.repo.MarkReminderSent(ctx, e.ID); err != nil {
				summary.Failures = append(summary.Failures, ItemFailure{EngagementID: e.ID, Err: err.Error()})
				continue
			}
			summary.SkippedFirst++
			continue
		}

		s.remind(ctx, e)
		if err := s.repo.MarkReminderSent(ctx, e.ID); err != nil {
			s.metrics.ObserveBatchFailure("reminder_scanner")
			s.log.Error("reminder mark failed",
				slog.Any("err", err),
				slog.String("engagement_id", e.ID.String()),
			)
			summary.Failures = append(summary.Failures, ItemFailure{EngagementID: e.ID, Err: err.Error()})
			continue
		}
		summary.Sent++
	}

	s.metrics.ObserveRemindersSent(summary.Sent)
	s.log.Info("reminder scan finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("sent", summary.Sent),
		slog.Int("skipped_first", summary.SkippedFirst),
		slog.Int("failures", len(summary.Failures)),
	)
	return summary, nil
}

func (s *Scanner) remind(ctx context.Context, e *domain.Engagement) {
	when := e.ScheduledDate.Format("Mon Jan 2 15:04")
	data := map[string]string{
		"engagement_id":  e.ID.String(),
		"scheduled_date": e.ScheduledDate.Format(time.RFC3339),
	}

	s.notifier.Notify(ctx, "client:"+e.ClientID,
		"Upcoming service",
		"Your "+displayCategory(e.Category)+" service is scheduled for "+when+".",
		data,
	)
	if e.ProviderID != "" {
		s.notifier.Notify(ctx, "provider:"+e.ProviderID,
			"Upcoming job",
			"You have a "+displayCategory(e.Category)+" job scheduled for "+when+".",
			data,
		)
	}
}

func displayCategory(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}
