package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"homeserve/backend/internal/auth"
	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/service/engagements"
)

type taskJSON struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

type recurrenceJSON struct {
	PreferredWeekday  *int   `json:"preferred_weekday,omitempty"`
	FrequencyUnit     string `json:"frequency_unit"`
	FrequencyInterval int    `json:"frequency_interval"`
	HorizonCount      int    `json:"horizon_count,omitempty"`
}

type createEngagementRequest struct {
	Category      string          `json:"category"`
	Address       string          `json:"address"`
	Tasks         []taskJSON      `json:"tasks"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Recurrence    *recurrenceJSON `json:"recurrence,omitempty"`
}

type engagementResponse struct {
	ID                 string          `json:"id"`
	ClientID           string          `json:"client_id"`
	ProviderID         string          `json:"provider_id,omitempty"`
	Category           string          `json:"category"`
	Address            string          `json:"address"`
	Tasks              []taskJSON      `json:"tasks"`
	ScheduledDate      time.Time       `json:"scheduled_date"`
	Status             string          `json:"status"`
	Recurrence         *recurrenceJSON `json:"recurrence,omitempty"`
	RecurrenceSeriesID string          `json:"recurrence_series_id,omitempty"`
	RecurrenceIndex    *int            `json:"recurrence_index,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func toEngagementResponse(e domain.Engagement) engagementResponse {
	tasks := make([]taskJSON, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		tasks = append(tasks, taskJSON{Name: t.Name, DurationMinutes: t.DurationMinutes})
	}

	resp := engagementResponse{
		ID:              e.ID.String(),
		ClientID:        e.ClientID,
		ProviderID:      e.ProviderID,
		Category:        e.Category,
		Address:         e.Address,
		Tasks:           tasks,
		ScheduledDate:   e.ScheduledDate,
		Status:          string(e.Status),
		RecurrenceIndex: e.RecurrenceIndex,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if e.IsRecurring {
		var preferred *int
		if e.PreferredWeekday != nil {
			wd := int(*e.PreferredWeekday)
			preferred = &wd
		}
		resp.Recurrence = &recurrenceJSON{
			PreferredWeekday:  preferred,
			FrequencyUnit:     string(e.FrequencyUnit),
			FrequencyInterval: e.FrequencyInterval,
			HorizonCount:      e.HorizonCount,
		}
	}
	if e.RecurrenceSeriesID != nil {
		resp.RecurrenceSeriesID = e.RecurrenceSeriesID.String()
	}
	return resp
}

func (s *Server) handleCreateEngagement(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "CreateEngagement"))

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createEngagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := engagements.CreateInput{
		Caller:         ident,
		Category:       req.Category,
		Address:        req.Address,
		ScheduledDate:  req.ScheduledDate,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, t := range req.Tasks {
		in.Tasks = append(in.Tasks, domain.TaskItem{Name: t.Name, DurationMinutes: t.DurationMinutes})
	}
	if req.Recurrence != nil {
		in.Recurrence = &engagements.RecurrenceInput{
			PreferredWeekday:  req.Recurrence.PreferredWeekday,
			FrequencyUnit:     req.Recurrence.FrequencyUnit,
			FrequencyInterval: req.Recurrence.FrequencyInterval,
			HorizonCount:      req.Recurrence.HorizonCount,
		}
	}

	e, err := s.engagements.Create(r.Context(), in)
	if err != nil {
		s.respondServiceError(w, log, err)
		return
	}

	log.Info("engagement created",
		slog.String("engagement_id", e.ID.String()),
		slog.String("client_id", e.ClientID),
		slog.Bool("recurring", e.IsRecurring),
	)
	writeJSON(w, http.StatusCreated, toEngagementResponse(e))
}

func (s *Server) handleGetEngagement(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "GetEngagement"))

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "engagement id must be a UUID")
		return
	}

	e, err := s.engagements.Get(r.Context(), ident, id)
	if err != nil {
		s.respondServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, toEngagementResponse(e))
}

type matchRequest struct {
	CandidateProviderIDs []string `json:"candidate_provider_ids"`
}

type matchResponse struct {
	AvailableProviderIDs []string `json:"available_provider_ids"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "Match"))

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "engagement id must be a UUID")
		return
	}

	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	available, err := s.engagements.Match(r.Context(), ident, id, req.CandidateProviderIDs)
	if err != nil {
		s.respondServiceError(w, log, err)
		return
	}

	log.Debug("match served",
		slog.String("engagement_id", id.String()),
		slog.Int("available", len(available)),
	)
	writeJSON(w, http.StatusOK, matchResponse{AvailableProviderIDs: available})
}

type requestHoldRequest struct {
	ProviderID string `json:"provider_id"`
}

type requestHoldResponse struct {
	HoldIDs       []string  `json:"hold_ids"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

func (s *Server) handleRequestHold(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "RequestHold"))

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "engagement id must be a UUID")
		return
	}

	var req requestHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	holdIDs, err := s.engagements.RequestHold(r.Context(), ident, id, req.ProviderID)
	if err != nil {
		s.respondServiceError(w, log, err)
		return
	}

	out := make([]string, 0, len(holdIDs))
	for _, hid := range holdIDs {
		out = append(out, hid.String())
	}
	log.Info("holds requested",
		slog.String("engagement_id", id.String()),
		slog.String("provider_id", req.ProviderID),
		slog.Int("count", len(out)),
	)
	writeJSON(w, http.StatusCreated, requestHoldResponse{
		HoldIDs:       out,
		HoldExpiresAt: time.Now().UTC().Add(domain.HoldTTL),
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "Transition"))

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "engagement id must be a UUID")
		return
	}
	action := domain.Action(chi.URLParam(r, "action"))

	e, err := s.engagements.Transition(r.Context(), ident, id, action)
	if err != nil {
		s.respondServiceError(w, log, err)
		return
	}

	log.Info("engagement transitioned",
		slog.String("engagement_id", id.String()),
		slog.String("action", string(action)),
		slog.String("status", string(e.Status)),
	)
	writeJSON(w, http.StatusOK, toEngagementResponse(e))
}

func (s *Server) handleSeriesRun(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "SeriesRun"))

	summary, err := s.generator.Run(r.Context())
	if err != nil {
		log.Error("series generation run failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, "series generation failed")
		return
	}
	// Partial failures are in the summary; the run itself succeeded.
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReminderRun(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "ReminderRun"))

	summary, err := s.scanner.Run(r.Context())
	if err != nil {
		log.Error("reminder scan failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, "reminder scan failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type sweepResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *Server) handleExpiredHoldSweep(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("route", "ExpiredHoldSweep"))

	n, err := s.sweeper.SweepExpired(r.Context(), time.Now().UTC())
	if err != nil {
		log.Error("expired hold sweep failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, "expired hold sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Deleted: n})
}
