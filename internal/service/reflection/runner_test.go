package reflection

import (
	"context"
	"errors"
	"testing"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
	"github.com/quietriver/reframe/backend/internal/service/provider"
	"github.com/quietriver/reframe/backend/internal/service/session"
)

func newTestRunner(gen Generator) (*Runner, session.Store) {
	store := session.NewMemoryStore()
	engine := NewEngine(gen, Options{}, nil)
	return NewRunner(store, engine, nil), store
}

func TestRunnerCreatesSessionAndPersistsTurn(t *testing.T) {
	gen := generatorWith(surfacePayload())
	runner, store := newTestRunner(gen)
	ctx := context.Background()

	result, err := runner.Run(ctx, "user-1", "", "I always mess everything up.", reflection.IntentAuto)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if result.Session.ID == "" {
		t.Fatal("expected a fresh session")
	}
	if result.Session.CurrentLayer != reflection.LayerTrigger {
		t.Fatalf("session update not applied: %s", result.Session.CurrentLayer)
	}
	if result.Assistant.Role != reflection.RoleAssistant || result.Assistant.ID == "" {
		t.Fatalf("assistant message not persisted: %+v", result.Assistant)
	}

	transcript, err := store.LoadTranscript(ctx, result.Session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(transcript))
	}
	if transcript[0].Content != "I always mess everything up." {
		t.Fatalf("user turn not persisted first: %+v", transcript[0])
	}
}

func TestRunnerContinuesExistingSession(t *testing.T) {
	gen := generatorWith(surfacePayload())
	runner, _ := newTestRunner(gen)
	ctx := context.Background()

	first, err := runner.Run(ctx, "user-1", "", "First thought.", reflection.IntentAuto)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}

	second, err := runner.Run(ctx, "user-1", first.Session.ID, "Second thought.", reflection.IntentAuto)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatal("expected the same session to continue")
	}
	if gen.calls != 2 {
		t.Fatalf("expected two provider calls, got %d", gen.calls)
	}
	if len(gen.lastReq.History) != 2 {
		t.Fatalf("second turn should carry the first turn's transcript, got %d entries", len(gen.lastReq.History))
	}
}

func TestRunnerRejectsForeignSession(t *testing.T) {
	gen := generatorWith(surfacePayload())
	runner, store := newTestRunner(gen)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "owner")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if _, err := runner.Run(ctx, "intruder", sess.ID, "hello", reflection.IntentAuto); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("foreign session must never reach the engine")
	}
}

func TestRunnerUnknownSession(t *testing.T) {
	gen := generatorWith(surfacePayload())
	runner, _ := newTestRunner(gen)

	if _, err := runner.Run(context.Background(), "user-1", "missing", "hello", reflection.IntentAuto); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunnerPersistsNothingOnEngineFailure(t *testing.T) {
	gen := &countingGenerator{err: provider.ErrExhausted}
	runner, store := newTestRunner(gen)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if _, err := runner.Run(ctx, "user-1", sess.ID, "Rough day.", reflection.IntentAuto); !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("expected ErrProvidersExhausted, got %v", err)
	}

	transcript, err := store.LoadTranscript(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 0 {
		t.Fatalf("failed turn must not persist messages, got %d", len(transcript))
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.CurrentLayer != reflection.LayerSurface || got.GroundingMode {
		t.Fatalf("failed turn must not touch session state: %+v", got)
	}
}

func TestRunnerCrisisTurnPersistsGroundingState(t *testing.T) {
	gen := generatorWith(surfacePayload())
	runner, store := newTestRunner(gen)
	ctx := context.Background()

	result, err := runner.Run(ctx, "user-1", "", "I just want to die", reflection.IntentAuto)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("crisis turn must bypass providers")
	}
	if !result.Session.GroundingMode || result.Session.GroundingTurns != 1 {
		t.Fatalf("grounding state not persisted: %+v", result.Session)
	}

	stored, err := store.GetSession(ctx, result.Session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if !stored.GroundingMode {
		t.Fatal("grounding state lost on reload")
	}
}
