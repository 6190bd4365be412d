// Package stream serves reflection turns over Server-Sent Events so the
// frontend can show staged progress (received -> crisis/response -> done)
// without polling.
package stream

import (
	"errors"
	"net/http"

	"github.com/quietriver/reframe/backend/internal/middleware"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	reflectionService "github.com/quietriver/reframe/backend/internal/service/reflection"
	sessionService "github.com/quietriver/reframe/backend/internal/service/session"
	"github.com/quietriver/reframe/backend/pkg/logger"
	"github.com/quietriver/reframe/backend/pkg/utils"
)

// Handler streams one reflection turn per request.
type Handler struct {
	runner *reflectionService.Runner
	log    *logger.Logger
}

// New creates the stream handler.
func New(runner *reflectionService.Runner, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{runner: runner, log: log}
}

type streamEvent struct {
	SessionID string                         `json:"sessionId,omitempty"`
	Response  *reflection.StructuredResponse `json:"response,omitempty"`
	Error     string                         `json:"error,omitempty"`
	Finished  bool                           `json:"finished,omitempty"`
}

// HandleStreamRequest runs a turn and emits staged SSE events.
func (h *Handler) HandleStreamRequest(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	text := r.URL.Query().Get("message")
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	sessionID := r.URL.Query().Get("sessionID")
	intent := reflection.ParseIntent(r.URL.Query().Get("intent"))
	userID := middleware.UserIDFrom(r.Context())

	utils.SetupSSEHeaders(w)
	utils.SendSSEEvent(w, flusher, "start", streamEvent{SessionID: sessionID})

	result, err := h.runner.Run(r.Context(), userID, sessionID, text, intent)
	if err != nil {
		h.log.Warn("stream turn failed", "session", sessionID, "error", err)
		utils.SendSSEEvent(w, flusher, "error", streamEvent{Error: turnErrorMessage(err)})
		return
	}

	event := "response"
	if result.Output.Response.GroundingMode {
		event = "crisis"
	}
	utils.SendSSEEvent(w, flusher, event, streamEvent{
		SessionID: result.Session.ID,
		Response:  &result.Output.Response,
	})
	utils.SendSSEEvent(w, flusher, "end", streamEvent{SessionID: result.Session.ID, Finished: true})
}

// turnErrorMessage keeps backend details out of the stream.
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, sessionService.ErrNotFound):
		return "session not found"
	case errors.Is(err, reflectionService.ErrNotOwner):
		return "forbidden"
	case errors.Is(err, reflectionService.ErrInvalidInput):
		return "text must be non-empty and within the size limit"
	case errors.Is(err, reflectionService.ErrProvidersExhausted):
		return "the assistant is unavailable right now, please try again in a moment"
	default:
		return "something went wrong, please try again"
	}
}
