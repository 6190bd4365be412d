package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
	"github.com/quietriver/reframe/backend/internal/service/provider"
)

// countingGenerator records requests so tests can assert call counts and
// prompt composition without a live backend.
type countingGenerator struct {
	calls   int
	lastReq provider.Request
	result  *provider.Result
	err     error
}

func (g *countingGenerator) Generate(ctx context.Context, req provider.Request) (*provider.Result, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func generatorWith(payload provider.Payload) *countingGenerator {
	return &countingGenerator{result: &provider.Result{Payload: payload, Provider: "stub", Model: "stub-model"}}
}

func surfacePayload() provider.Payload {
	return provider.Payload{
		Acknowledgment: "That sounds really discouraging.",
		ThoughtPattern: "Overgeneralization",
		Reframe:        "One mistake is a moment, not a verdict.",
		Question:       "When did this feeling first show up today?",
		IcebergLayer:   reflection.LayerTrigger,
		LayerInsight:   "the morning standup",
		ProgressScore:  25,
	}
}

func TestReflectFirstTurnAdvancesLayer(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{}, nil)

	out, err := engine.Reflect(context.Background(), Input{
		Text:    "I always mess everything up.",
		Session: reflection.NewSession("s1", "u1"),
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one provider call, got %d", gen.calls)
	}
	if out.Response.IcebergLayer != reflection.LayerTrigger {
		t.Fatalf("unexpected response layer: %s", out.Response.IcebergLayer)
	}
	if out.Update.CurrentLayer != reflection.LayerTrigger {
		t.Fatalf("unexpected update layer: %s", out.Update.CurrentLayer)
	}
	if out.Update.DiscoveredInsights[reflection.LayerTrigger] != "the morning standup" {
		t.Fatalf("insight missing from update: %v", out.Update.DiscoveredInsights)
	}
	if out.Update.LastQuestionType != reflection.QuestionOpen {
		t.Fatalf("unexpected question type: %s", out.Update.LastQuestionType)
	}
	if out.Provider != "stub" || out.Model != "stub-model" {
		t.Fatalf("provider tag missing: %+v", out)
	}
}

func TestReflectCrisisOverrideBypassesProvider(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{}, nil)

	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerEmotion

	out, err := engine.Reflect(context.Background(), Input{
		Text:    "I can't go on like this, I want to die",
		Session: sess,
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("provider must not be called on acute crisis, got %d calls", gen.calls)
	}
	if !out.Update.GroundingMode || out.Update.GroundingTurns != 1 {
		t.Fatalf("grounding state not engaged: %+v", out.Update)
	}
	if out.Update.CurrentLayer != reflection.LayerEmotion {
		t.Fatalf("crisis turn must not move the layer, got %s", out.Update.CurrentLayer)
	}
	if out.Response.Acknowledgment == "" || !out.Response.GroundingMode {
		t.Fatalf("expected pre-authored grounding response, got %+v", out.Response)
	}
	if out.Update.LastQuestionType != reflection.QuestionChoice {
		t.Fatalf("grounding question must classify as choice, got %s", out.Update.LastQuestionType)
	}
}

func TestReflectStableGroundingTurnUsesConstrainedPrompt(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{GroundingExitAfter: 2}, nil)

	sess := reflection.NewSession("s1", "u1")
	sess.GroundingMode = true
	sess.GroundingTurns = 1

	out, err := engine.Reflect(context.Background(), Input{
		Text:    "A bit better. Still shaky but breathing.",
		Session: sess,
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("stable grounding turn should call the provider, got %d calls", gen.calls)
	}
	if !strings.Contains(gen.lastReq.SystemInstructions, "Suspend cognitive restructuring") {
		t.Fatal("expected grounding-only brief in system instructions")
	}
	if !out.Update.GroundingMode || out.Update.GroundingTurns != 2 {
		t.Fatalf("expected grounding held at turn 2, got %+v", out.Update)
	}
}

func TestReflectGroundingExitsAfterStableTurns(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{GroundingExitAfter: 2}, nil)

	sess := reflection.NewSession("s1", "u1")
	sess.GroundingMode = true
	sess.GroundingTurns = 2

	out, err := engine.Reflect(context.Background(), Input{
		Text:    "I feel steadier now, thanks.",
		Session: sess,
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("exit turn should call the provider, got %d calls", gen.calls)
	}
	if out.Update.GroundingMode || out.Update.GroundingTurns != 0 {
		t.Fatalf("expected grounding released, got %+v", out.Update)
	}
	if strings.Contains(gen.lastReq.SystemInstructions, "Suspend cognitive restructuring") {
		t.Fatal("released turn must use the normal brief")
	}
}

func TestReflectRejectsEmptyAndOversizedInput(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{}, nil)

	for _, text := range []string{"", "   \n ", strings.Repeat("a", maxThoughtRunes+1)} {
		if _, err := engine.Reflect(context.Background(), Input{Text: text, Session: reflection.NewSession("s1", "u1")}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %d-rune input, got %v", len(text), err)
		}
	}
	if gen.calls != 0 {
		t.Fatalf("invalid input must never reach a provider, got %d calls", gen.calls)
	}
}

func TestReflectSurfacesExhaustion(t *testing.T) {
	gen := &countingGenerator{err: provider.ErrExhausted}
	engine := NewEngine(gen, Options{}, nil)

	_, err := engine.Reflect(context.Background(), Input{
		Text:    "Rough day.",
		Session: reflection.NewSession("s1", "u1"),
	})
	if !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("expected ErrProvidersExhausted, got %v", err)
	}
}

func TestReflectIntentDefaultsToAuto(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{}, nil)

	out, err := engine.Reflect(context.Background(), Input{
		Text:    "I keep second-guessing myself.",
		Session: reflection.NewSession("s1", "u1"),
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if out.Update.LastIntentUsed != reflection.IntentAuto {
		t.Fatalf("expected AUTO intent default, got %s", out.Update.LastIntentUsed)
	}
}

func TestReflectCalmIntentShapesPrompt(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{}, nil)

	_, err := engine.Reflect(context.Background(), Input{
		Text:    "Everything is too loud today.",
		Intent:  reflection.IntentCalm,
		Session: reflection.NewSession("s1", "u1"),
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if !strings.Contains(gen.lastReq.SystemInstructions, "asked for calm") {
		t.Fatal("expected calm emphasis in system instructions")
	}
}

func TestReflectAvoidListsReachThePrompt(t *testing.T) {
	gen := generatorWith(surfacePayload())
	engine := NewEngine(gen, Options{}, nil)

	messages := []reflection.Message{
		{Role: reflection.RoleUser, Content: "I bombed the interview"},
		{
			Role:     reflection.RoleAssistant,
			Content:  "That sounds painful.",
			Question: "What part stung the most?",
			Reframe:  "One interview is a sample, not the population.",
		},
	}

	_, err := engine.Reflect(context.Background(), Input{
		Text:     "I keep replaying it.",
		Session:  reflection.NewSession("s1", "u1"),
		Messages: messages,
	})
	if err != nil {
		t.Fatalf("Reflect err: %v", err)
	}
	if !strings.Contains(gen.lastReq.SystemInstructions, "What part stung the most?") {
		t.Fatal("previous question missing from avoid list")
	}
	if len(gen.lastReq.History) != 2 {
		t.Fatalf("expected transcript in provider history, got %d turns", len(gen.lastReq.History))
	}
}
