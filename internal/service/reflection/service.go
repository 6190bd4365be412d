// Package reflection implements the session engine: it rebuilds working
// memory, applies crisis detection, drives the layer state machine and
// orchestrates the provider failover chain. The engine is stateless between
// calls; all state arrives as input and leaves as output.
package reflection

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/quietriver/reframe/backend/internal/analysis/crisis"
	"github.com/quietriver/reframe/backend/internal/analysis/layers"
	"github.com/quietriver/reframe/backend/internal/analysis/memory"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	"github.com/quietriver/reframe/backend/internal/service/provider"
	"github.com/quietriver/reframe/backend/pkg/logger"
)

var (
	// ErrInvalidInput rejects empty or oversized thoughts before any
	// provider call; the caller may resubmit.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProvidersExhausted is fatal for the current turn and retryable
	// later; session state is left unchanged.
	ErrProvidersExhausted = provider.ErrExhausted
)

const maxThoughtRunes = 4000

// Generator is the hook for the provider failover chain, narrowed so tests
// can count calls with a double.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (*provider.Result, error)
}

// Options tune the engine's policy knobs.
type Options struct {
	// GroundingExitAfter is how many grounding turns must pass before a
	// stable turn releases the session.
	GroundingExitAfter int
	Caps               memory.Caps
	// Detector overrides the built-in crisis indicator lists.
	Detector           *crisis.Detector
}

// Engine is the reflection orchestrator.
type Engine struct {
	chain    Generator
	opts     Options
	detector *crisis.Detector
	log      *logger.Logger
}

// NewEngine wires the orchestrator to a provider chain.
func NewEngine(chain Generator, opts Options, log *logger.Logger) *Engine {
	if opts.GroundingExitAfter <= 0 {
		opts.GroundingExitAfter = 2
	}
	if opts.Caps.AssistantScan <= 0 {
		opts.Caps = memory.DefaultCaps
	}
	detector := opts.Detector
	if detector == nil {
		detector = crisis.NewDetector(nil, nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{chain: chain, opts: opts, detector: detector, log: log}
}

// Input is one turn's worth of state handed to the engine.
type Input struct {
	Text     string
	Intent   reflection.Intent
	Session  reflection.Session
	Messages []reflection.Message
}

// Output is everything the caller needs: the response for the user and the
// fields the external store must persist.
type Output struct {
	Response reflection.StructuredResponse
	Update   reflection.SessionUpdate
	Context  memory.Context
	Provider string
	Model    string
}

// Reflect processes one user thought. The sequence crisis-detect ->
// provider-call -> layer-advance is strictly ordered; the only blocking
// operation is the outbound provider call.
func (e *Engine) Reflect(ctx context.Context, in Input) (*Output, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" || utf8.RuneCountInString(text) > maxThoughtRunes {
		return nil, ErrInvalidInput
	}

	intent := in.Intent
	if intent == "" {
		intent = reflection.IntentAuto
	}

	sctx := memory.Rebuild(in.Session, in.Messages, e.opts.Caps)
	sctx.UserIntent = intent

	assessment := e.detector.Detect(text)
	transition := crisis.NextGrounding(sctx.GroundingMode, sctx.GroundingTurns,
		assessment.Severity, e.opts.GroundingExitAfter)

	if transition.ShortCircuit {
		return e.reflectGrounding(in.Session, sctx, intent, assessment, transition), nil
	}

	req := provider.Request{
		SystemInstructions: buildSystemInstructions(sctx, intent, transition.Constrain),
		History:            buildHistory(in.Messages),
		UserMessage:        text,
	}

	result, err := e.chain.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, provider.ErrExhausted) {
			e.log.Error("provider chain exhausted", "session", in.Session.ID)
			return nil, ErrProvidersExhausted
		}
		return nil, err
	}

	payload := result.Payload
	outcome := layers.Advance(in.Session, payload.IcebergLayer, payload.LayerInsight)
	if outcome.Inconsistent {
		e.log.Warn("backend reported layer inconsistent with session history, keeping persisted state",
			"session", in.Session.ID, "reported", string(payload.IcebergLayer),
			"current", string(in.Session.CurrentLayer))
	}

	resp := reflection.StructuredResponse{
		Acknowledgment: payload.Acknowledgment,
		ThoughtPattern: payload.ThoughtPattern,
		PatternNote:    payload.PatternNote,
		Reframe:        payload.Reframe,
		Question:       payload.Question,
		Encouragement:  payload.Encouragement,
		IcebergLayer:   outcome.Layer,
		LayerInsight:   payload.LayerInsight,
		GroundingMode:  transition.GroundingMode,
		GroundingTurns: transition.GroundingTurns,
		ProgressScore:  payload.ProgressScore,
		LayerProgress:  payload.LayerProgress,
	}

	update := reflection.SessionUpdate{
		CurrentLayer:       outcome.Layer,
		CoreBelief:         outcome.CoreBelief,
		IsCompleted:        outcome.IsCompleted,
		CoreBeliefDetected: in.Session.CoreBeliefDetected || outcome.CoreBeliefNew,
		CoreBeliefNew:      outcome.CoreBeliefNew,
		LastQuestionType:   memory.ClassifyQuestion(payload.Question),
		GroundingMode:      transition.GroundingMode,
		GroundingTurns:     transition.GroundingTurns,
		LastIntentUsed:     intent,
		DiscoveredInsights: outcome.Insights,
	}

	return &Output{
		Response: resp,
		Update:   update,
		Context:  sctx,
		Provider: result.Provider,
		Model:    result.Model,
	}, nil
}

// reflectGrounding synthesizes the stabilization turn. No provider call is
// made and the layer state machine does not advance.
func (e *Engine) reflectGrounding(session reflection.Session, sctx memory.Context,
	intent reflection.Intent, assessment crisis.Assessment, transition crisis.Transition) *Output {

	e.log.Warn("crisis override engaged",
		"session", session.ID, "severity", string(assessment.Severity),
		"groundingTurns", transition.GroundingTurns)

	resp := groundingResponse(transition.GroundingTurns, sctx.CurrentLayer)

	update := reflection.SessionUpdate{
		CurrentLayer:       sctx.CurrentLayer,
		IsCompleted:        session.IsCompleted,
		CoreBeliefDetected: session.CoreBeliefDetected,
		LastQuestionType:   memory.ClassifyQuestion(resp.Question),
		GroundingMode:      transition.GroundingMode,
		GroundingTurns:     transition.GroundingTurns,
		LastIntentUsed:     intent,
	}

	return &Output{Response: resp, Update: update, Context: sctx}
}
