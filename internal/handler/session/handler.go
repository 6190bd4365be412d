package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quietriver/reframe/backend/internal/middleware"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	sessionService "github.com/quietriver/reframe/backend/internal/service/session"
	"github.com/quietriver/reframe/backend/pkg/utils"
)

// Handler serves session management endpoints.
type Handler struct {
	store sessionService.Store
}

// New creates the session handler.
func New(store sessionService.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Get("/sessions/{sessionID}/messages", h.handleMessages)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
	r.Post("/sessions/{sessionID}/reset", h.handleReset)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	sessions, err := h.store.ListSessions(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []reflection.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	messages, err := h.store.LoadTranscript(r.Context(), sess.ID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if messages == nil {
		messages = []reflection.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), sess.ID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	fresh, err := h.store.ResetSession(r.Context(), sess.ID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, fresh)
}

// ownedSession resolves the path session and enforces ownership.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (reflection.Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, sessionService.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return reflection.Session{}, false
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return reflection.Session{}, false
	}
	if sess.UserID != middleware.UserIDFrom(r.Context()) {
		utils.RespondError(w, http.StatusForbidden, "forbidden")
		return reflection.Session{}, false
	}
	return sess, true
}
