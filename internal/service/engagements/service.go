package engagements

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"homeserve/backend/internal/auth"
	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/service/availability"
	"homeserve/backend/internal/service/holds"
	"homeserve/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ForbiddenError marks a caller acting outside their role or on someone
// else's engagement.
type ForbiddenError struct {
	msg string
}

func (e *ForbiddenError) Error() string {
	return e.msg
}

func forbidden(msg string) error {
	return &ForbiddenError{msg: msg}
}

type holdManager interface {
	CreateHolds(ctx context.Context, engagementID uuid.UUID, providerID string, windows []domain.Window, isRecurring bool, now time.Time) ([]uuid.UUID, error)
	ResolveHolds(ctx context.Context, providerID string, engagementID uuid.UUID, decision holds.Decision) error
	ReleaseHolds(ctx context.Context, engagementID uuid.UUID)
}

type availabilityChecker interface {
	CheckWindows(ctx context.Context, providerID string, windows []domain.Window, now time.Time) error
}

type notifier interface {
	Notify(ctx context.Context, topic, title, body string, data map[string]string)
}

// Service is the engagement-facing API: creation, match queries, hold
// requests, and every state-machine transition with its block side effect.
type Service struct {
	repo     store.EngagementRepository
	holds    holdManager
	checker  availabilityChecker
	notifier notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(repo store.EngagementRepository, hm holdManager, checker availabilityChecker, n notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		holds:    hm,
		checker:  checker,
		notifier: n,
		log:      log.With(slog.String("component", "engagements")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RecurrenceInput struct {
	PreferredWeekday  *int
	FrequencyUnit     string
	FrequencyInterval int
	HorizonCount      int
}

type CreateInput struct {
	Caller         auth.Identity
	Category       string
	Address        string
	Tasks          []domain.TaskItem
	ScheduledDate  time.Time
	Recurrence     *RecurrenceInput
	IdempotencyKey string
}

// Create validates the request at the boundary and persists a new engagement
// in status requested. Malformed recurrence descriptors are rejected, never
// silently defaulted. An idempotency key makes retries return the original
// engagement instead of creating a duplicate.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Engagement, error) {
	if in.Caller.Role != domain.RoleClient {
		return domain.Engagement{}, forbidden("only clients may create engagements")
	}
	if strings.TrimSpace(in.Category) == "" {
		return domain.Engagement{}, validationError("category is required")
	}
	if strings.TrimSpace(in.Address) == "" {
		return domain.Engagement{}, validationError("address is required")
	}
	if len(in.Tasks) == 0 {
		return domain.Engagement{}, validationError("at least one task is required")
	}
	for _, t := range in.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return domain.Engagement{}, validationError("task name is required")
		}
		if t.DurationMinutes <= 0 {
			return domain.Engagement{}, validationError("task duration must be positive")
		}
	}
	if in.ScheduledDate.IsZero() {
		return domain.Engagement{}, validationError("scheduled_date is required")
	}

	e := domain.Engagement{
		ClientID:      in.Caller.UserID,
		Category:      strings.TrimSpace(in.Category),
		Address:       strings.TrimSpace(in.Address),
		Tasks:         in.Tasks,
		ScheduledDate: in.ScheduledDate.UTC(),
		Status:        domain.StatusRequested,
	}

	if in.Recurrence != nil {
		r := in.Recurrence
		unit := domain.FrequencyUnit(r.FrequencyUnit)
		if unit != domain.FrequencyUnitWeek && unit != domain.FrequencyUnitMonth {
			return domain.Engagement{}, validationError("frequency_unit must be week or month")
		}
		if r.FrequencyInterval < 1 {
			return domain.Engagement{}, validationError("frequency_interval must be at least 1")
		}
		if r.PreferredWeekday != nil && (*r.PreferredWeekday < 0 || *r.PreferredWeekday > 6) {
			return domain.Engagement{}, validationError("preferred_weekday must be between 0 and 6")
		}

		e.IsRecurring = true
		e.FrequencyUnit = unit
		e.FrequencyInterval = r.FrequencyInterval
		e.HorizonCount = domain.ClampCount(r.HorizonCount)
		if r.PreferredWeekday != nil {
			wd := int16(*r.PreferredWeekday)
			e.PreferredWeekday = &wd
		}
		zero := 0
		e.RecurrenceIndex = &zero
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Engagement{}, validationError("idempotency_key too long")
		}
		e.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("homeserve:create_engagement:"+in.Caller.UserID+":"+key))
	}

	return s.repo.Create(ctx, e)
}

// Get returns an engagement to its owner, its assigned provider, or an admin.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (domain.Engagement, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Engagement{}, err
	}
	switch {
	case caller.Role == domain.RoleAdmin:
	case caller.Role == domain.RoleClient && caller.UserID == e.ClientID:
	case caller.Role == domain.RoleProvider && caller.UserID == e.ProviderID && e.ProviderID != "":
	default:
		return domain.Engagement{}, forbidden("not a party to this engagement")
	}
	return e, nil
}

// Match filters candidate providers down to those free for every occurrence
// window of the engagement. Candidates with conflicts are dropped silently;
// only store failures surface.
func (s *Service) Match(ctx context.Context, caller auth.Identity, engagementID uuid.UUID, candidates []string) ([]string, error) {
	if caller.Role != domain.RoleClient {
		return nil, forbidden("only clients may request a match")
	}
	if len(candidates) == 0 {
		return nil, validationError("at least one candidate provider is required")
	}

	e, err := s.repo.Get(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if e.ClientID != caller.UserID {
		return nil, forbidden("not the engagement owner")
	}
	if e.Status.Terminal() {
		return nil, validationError("engagement is no longer active")
	}

	windows, err := e.OccurrenceWindows()
	if err != nil {
		return nil, validationError(err.Error())
	}

	now := s.now()
	available := make([]string, 0, len(candidates))
	for _, providerID := range candidates {
		if strings.TrimSpace(providerID) == "" {
			continue
		}
		err := s.checker.CheckWindows(ctx, providerID, windows, now)
		if err != nil {
			var conflict *availability.ConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return nil, err
		}
		available = append(available, providerID)
	}

	s.log.Debug("match evaluated",
		slog.String("engagement_id", engagementID.String()),
		slog.Int("candidates", len(candidates)),
		slog.Int("available", len(available)),
	)
	return available, nil
}

// RequestHold reserves the selected provider for every occurrence window and
// records the assignment. The provider is notified fire-and-forget; a
// conflict on any window creates nothing and surfaces which occurrence
// failed.
func (s *Service) RequestHold(ctx context.Context, caller auth.Identity, engagementID uuid.UUID, providerID string) ([]uuid.UUID, error) {
	if caller.Role != domain.RoleClient {
		return nil, forbidden("only clients may request a hold")
	}
	if strings.TrimSpace(providerID) == "" {
		return nil, validationError("provider_id is required")
	}

	e, err := s.repo.Get(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if e.ClientID != caller.UserID {
		return nil, forbidden("not the engagement owner")
	}
	if e.Status != domain.StatusRequested {
		return nil, validationError("engagement is not awaiting a provider")
	}

	windows, err := e.OccurrenceWindows()
	if err != nil {
		return nil, validationError(err.Error())
	}

	ids, err := s.holds.CreateHolds(ctx, e.ID, providerID, windows, e.IsRecurring, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.AssignProvider(ctx, e.ID, providerID); err != nil {
		// The holds expire on their own; surface the primary-write failure.
		return nil, err
	}

	s.notifier.Notify(ctx, providerTopic(providerID),
		"New job request",
		"A client requested you for a "+e.Category+" job. Respond within 10 minutes.",
		map[string]string{"engagement_id": e.ID.String()},
	)
	return ids, nil
}

// Transition executes one state-machine action: role and ownership checks,
// the block side effect, the status write, and the counterparty
// notification. Block promotion failures abort the transition; block
// release/delete failures never do.
func (s *Service) Transition(ctx context.Context, caller auth.Identity, engagementID uuid.UUID, action domain.Action) (domain.Engagement, error) {
	e, err := s.repo.Get(ctx, engagementID)
	if err != nil {
		return domain.Engagement{}, err
	}

	tr, ok := domain.LookupTransition(action)
	if !ok {
		return domain.Engagement{}, validationError("unknown action " + string(action))
	}
	if tr.Role != caller.Role {
		return domain.Engagement{}, forbidden("action " + string(action) + " requires role " + string(tr.Role))
	}
	if _, err := e.Apply(action, caller.Role); err != nil {
		return domain.Engagement{}, validationError(err.Error())
	}

	switch tr.Role {
	case domain.RoleClient:
		if e.ClientID != caller.UserID {
			return domain.Engagement{}, forbidden("not the engagement owner")
		}
	case domain.RoleProvider:
		if e.ProviderID == "" || e.ProviderID != caller.UserID {
			return domain.Engagement{}, forbidden("not the assigned provider")
		}
	}

	switch tr.Effect {
	case domain.BlockEffectBook:
		if err := s.holds.ResolveHolds(ctx, e.ProviderID, e.ID, holds.DecisionAccepted); err != nil {
			return domain.Engagement{}, err
		}
	case domain.BlockEffectDelete:
		// Best-effort free: the manager logs and swallows delete failures.
		_ = s.holds.ResolveHolds(ctx, e.ProviderID, e.ID, holds.DecisionDeclined)
	case domain.BlockEffectRelease:
		s.holds.ReleaseHolds(ctx, e.ID)
	}

	if err := s.repo.UpdateStatus(ctx, e.ID, tr.To, tr.ClearProvider); err != nil {
		return domain.Engagement{}, err
	}

	previousProvider := e.ProviderID
	e.Status = tr.To
	if tr.ClearProvider {
		e.ProviderID = ""
	}

	s.notifyTransition(ctx, &e, previousProvider, action, caller.Role)

	s.log.Info("engagement transitioned",
		slog.String("engagement_id", e.ID.String()),
		slog.String("action", string(action)),
		slog.String("status", string(tr.To)),
		slog.String("role", string(caller.Role)),
	)
	return e, nil
}

func (s *Service) notifyTransition(ctx context.Context, e *domain.Engagement, previousProvider string, action domain.Action, actor domain.Role) {
	data := map[string]string{
		"engagement_id": e.ID.String(),
		"status":        string(e.Status),
	}
	title := "Engagement update"
	body := "Your " + e.Category + " engagement is now " + strings.ReplaceAll(string(e.Status), "_", " ") + "."

	if actor == domain.RoleClient {
		if previousProvider != "" {
			s.notifier.Notify(ctx, providerTopic(previousProvider), title, body, data)
		}
		return
	}
	s.notifier.Notify(ctx, clientTopic(e.ClientID), title, body, data)
}

func providerTopic(providerID string) string {
	return "provider:" + providerID
}

func clientTopic(clientID string) string {
	return "client:" + clientID
}
