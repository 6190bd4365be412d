// Package live keeps a websocket open for a whole reflection session so
// mobile clients avoid request setup per turn.
package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quietriver/reframe/backend/internal/middleware"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	reflectionService "github.com/quietriver/reframe/backend/internal/service/reflection"
	"github.com/quietriver/reframe/backend/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades to a websocket and serves turn frames.
type Handler struct {
	runner *reflectionService.Runner
	log    *logger.Logger
}

// New creates the live handler.
func New(runner *reflectionService.Runner, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{runner: runner, log: log}
}

// RegisterRoutes mounts the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/live/{sessionID}", h.handleLive)
}

type thoughtFrame struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
}

type responseFrame struct {
	Type      string                         `json:"type"`
	SessionID string                         `json:"sessionId,omitempty"`
	Response  *reflection.StructuredResponse `json:"response,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

// liveConn serializes writes; gorilla connections allow one writer at a
// time and pings come from a second goroutine.
type liveConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *liveConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := middleware.UserIDFrom(r.Context())

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}
	defer raw.Close()
	conn := &liveConn{conn: raw}

	raw.SetReadLimit(maxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)

	h.log.Info("live session opened", "session", sessionID, "user", userID)

	for {
		var frame thoughtFrame
		if err := raw.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("live session read error", "session", sessionID, "error", err)
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))

		result, err := h.runner.Run(r.Context(), userID, sessionID,
			frame.Text, reflection.ParseIntent(frame.Intent))
		if err != nil {
			h.writeFrame(conn, responseFrame{Type: "error", SessionID: sessionID, Error: "turn failed, please try again"})
			continue
		}

		frameType := "response"
		if result.Output.Response.GroundingMode {
			frameType = "crisis"
		}
		h.writeFrame(conn, responseFrame{
			Type:      frameType,
			SessionID: result.Session.ID,
			Response:  &result.Output.Response,
		})
	}
}

func (h *Handler) writeFrame(conn *liveConn, frame responseFrame) {
	if err := conn.writeJSON(frame); err != nil {
		h.log.Warn("live session write error", "error", err)
	}
}

func (h *Handler) pingLoop(conn *liveConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
