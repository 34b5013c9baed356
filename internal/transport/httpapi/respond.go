package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"homeserve/backend/internal/service/availability"
	"homeserve/backend/internal/service/engagements"
	"homeserve/backend/internal/store"
)

type errorResponse struct {
	Error           string `json:"error"`
	OccurrenceIndex *int   `json:"occurrence_index,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// respondServiceError maps service-layer errors onto HTTP statuses. Anything
// unrecognized is logged server-side and reported as an opaque 500.
func (s *Server) respondServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		validation *engagements.ValidationError
		forbidden  *engagements.ForbiddenError
		conflict   *availability.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, forbidden.Error())
	case errors.As(err, &conflict):
		idx := conflict.OccurrenceIndex
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:           conflict.Error(),
			OccurrenceIndex: &idx,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "engagement not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, "idempotency key reused with a different request")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting resource already exists")
	default:
		log.Error("request failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
