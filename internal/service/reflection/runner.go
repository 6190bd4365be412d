package reflection

import (
	"context"
	"errors"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
	"github.com/quietriver/reframe/backend/internal/service/session"
	"github.com/quietriver/reframe/backend/pkg/logger"
)

// ErrNotOwner rejects a turn against a session owned by another user.
var ErrNotOwner = errors.New("session does not belong to user")

// Runner drives one full turn against the store: resolve the session, run
// the engine, persist both messages and the session update. Nothing is
// persisted when the engine fails.
type Runner struct {
	store  session.Store
	engine *Engine
	log    *logger.Logger
}

// NewRunner wires the turn runner.
func NewRunner(store session.Store, engine *Engine, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{store: store, engine: engine, log: log}
}

// TurnResult is the persisted outcome of one turn.
type TurnResult struct {
	Session   reflection.Session
	Output    *Output
	Assistant reflection.Message
}

// Run processes one thought for the user. An empty sessionID implies a
// fresh session.
func (r *Runner) Run(ctx context.Context, userID, sessionID, text string, intent reflection.Intent) (*TurnResult, error) {
	var sess reflection.Session
	var err error

	if sessionID == "" {
		sess, err = r.store.CreateSession(ctx, userID)
		if err != nil {
			return nil, err
		}
	} else {
		sess, err = r.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.UserID != userID {
			return nil, ErrNotOwner
		}
	}

	messages, err := r.store.LoadTranscript(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	out, err := r.engine.Reflect(ctx, Input{
		Text:     text,
		Intent:   intent,
		Session:  sess,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.store.AppendMessage(ctx, reflection.Message{
		SessionID: sess.ID,
		Role:      reflection.RoleUser,
		Content:   text,
	}); err != nil {
		return nil, err
	}

	assistant, err := r.store.AppendMessage(ctx, out.Response.AssistantMessage(sess.ID))
	if err != nil {
		return nil, err
	}

	out.Update.Apply(&sess)
	if err := r.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	r.log.Info("turn completed",
		"session", sess.ID, "layer", string(sess.CurrentLayer),
		"grounding", sess.GroundingMode, "completed", sess.IsCompleted,
		"provider", out.Provider)

	return &TurnResult{Session: sess, Output: out, Assistant: assistant}, nil
}
