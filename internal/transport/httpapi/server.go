package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homeserve/backend/internal/auth"
	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/service/engagements"
	"homeserve/backend/internal/service/reminders"
	"homeserve/backend/internal/service/seriesgen"
)

type engagementsService interface {
	Create(ctx context.Context, in engagements.CreateInput) (domain.Engagement, error)
	Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (domain.Engagement, error)
	Match(ctx context.Context, caller auth.Identity, engagementID uuid.UUID, candidates []string) ([]string, error)
	RequestHold(ctx context.Context, caller auth.Identity, engagementID uuid.UUID, providerID string) ([]uuid.UUID, error)
	Transition(ctx context.Context, caller auth.Identity, engagementID uuid.UUID, action domain.Action) (domain.Engagement, error)
}

type seriesGenerator interface {
	Run(ctx context.Context) (seriesgen.Summary, error)
}

type reminderScanner interface {
	Run(ctx context.Context) (reminders.Summary, error)
}

type holdSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Server is the HTTP surface of the booking core: client/provider routes
// behind bearer auth, batch routes behind the scheduler secret.
type Server struct {
	engagements engagementsService
	generator   seriesGenerator
	scanner     reminderScanner
	sweeper     holdSweeper
	log         *slog.Logger
}

func NewServer(svc engagementsService, generator seriesGenerator, scanner reminderScanner, sweeper holdSweeper, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engagements: svc,
		generator:   generator,
		scanner:     scanner,
		sweeper:     sweeper,
		log:         log.With(slog.String("component", "httpapi")),
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router(verifier *auth.Verifier, schedulerSecret string, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		r.Post("/engagements", s.handleCreateEngagement)
		r.Get("/engagements/{id}", s.handleGetEngagement)
		r.Post("/engagements/{id}/match", s.handleMatch)
		r.Post("/engagements/{id}/holds", s.handleRequestHold)
		r.Post("/engagements/{id}/actions/{action}", s.handleTransition)
	})

	r.Route("/internal/batch", func(r chi.Router) {
		r.Use(auth.SchedulerAuth(schedulerSecret))
		r.Post("/series", s.handleSeriesRun)
		r.Post("/reminders", s.handleReminderRun)
		r.Post("/expired-holds", s.handleExpiredHoldSweep)
	})

	return r
}
