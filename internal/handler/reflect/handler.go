package reflect

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quietriver/reframe/backend/internal/middleware"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	reflectionService "github.com/quietriver/reframe/backend/internal/service/reflection"
	"github.com/quietriver/reframe/backend/internal/service/session"
	"github.com/quietriver/reframe/backend/pkg/utils"
)

// Handler serves the submit-thought endpoint.
type Handler struct {
	runner *reflectionService.Runner
}

// New creates the reflect handler.
func New(runner *reflectionService.Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterRoutes mounts the reflect routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reflect", h.handleReflect)
}

type reflectRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Intent    string `json:"intent"`
}

type reflectResponse struct {
	SessionID string                        `json:"sessionId"`
	Response  reflection.StructuredResponse `json:"response"`
	Session   sessionSummary                `json:"session"`
}

type sessionSummary struct {
	CurrentLayer reflection.Layer `json:"currentLayer"`
	CoreBelief   string           `json:"coreBelief,omitempty"`
	IsCompleted  bool             `json:"isCompleted"`
}

func (h *Handler) handleReflect(w http.ResponseWriter, r *http.Request) {
	var payload reflectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := middleware.UserIDFrom(r.Context())
	result, err := h.runner.Run(r.Context(), userID, payload.SessionID,
		payload.Text, reflection.ParseIntent(payload.Intent))
	if err != nil {
		WriteTurnError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, reflectResponse{
		SessionID: result.Session.ID,
		Response:  result.Output.Response,
		Session: sessionSummary{
			CurrentLayer: result.Session.CurrentLayer,
			CoreBelief:   result.Session.CoreBelief,
			IsCompleted:  result.Session.IsCompleted,
		},
	})
}

// WriteTurnError maps turn failures onto HTTP statuses. Backend error
// details never reach the caller, only a generic retry instruction.
func WriteTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, reflectionService.ErrNotOwner):
		utils.RespondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, reflectionService.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, "text must be non-empty and within the size limit")
	case errors.Is(err, reflectionService.ErrProvidersExhausted):
		utils.RespondError(w, http.StatusServiceUnavailable, "the assistant is unavailable right now, please try again in a moment")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}
