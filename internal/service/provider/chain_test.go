package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

type stubProvider struct {
	name    string
	calls   int
	payload Payload
	err     error
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return s.name + "-model" }

func (s *stubProvider) Generate(ctx context.Context, req Request) (Payload, error) {
	s.calls++
	if s.err != nil {
		return Payload{}, s.err
	}
	return s.payload, nil
}

func okPayload() Payload {
	return Payload{Acknowledgment: "heard you", IcebergLayer: reflection.LayerSurface}
}

func TestChainFirstProviderServes(t *testing.T) {
	first := &stubProvider{name: "first", payload: okPayload()}
	second := &stubProvider{name: "second", payload: okPayload()}
	chain := NewChain([]Provider{first, second}, time.Second, nil)

	result, err := chain.Generate(context.Background(), Request{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if result.Provider != "first" || result.Model != "first-model" {
		t.Fatalf("unexpected result tag: %+v", result)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("unexpected call counts: first=%d second=%d", first.calls, second.calls)
	}
}

func TestChainFailsOverOnError(t *testing.T) {
	first := &stubProvider{name: "first", err: &Error{Provider: "first", Kind: KindRateLimited, Err: errors.New("429")}}
	second := &stubProvider{name: "second", payload: okPayload()}
	chain := NewChain([]Provider{first, second}, time.Second, nil)

	result, err := chain.Generate(context.Background(), Request{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if result.Provider != "second" {
		t.Fatalf("expected failover to second provider, got %s", result.Provider)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("unexpected call counts: first=%d second=%d", first.calls, second.calls)
	}
}

func TestChainExhaustionTriesEachProviderOnce(t *testing.T) {
	first := &stubProvider{name: "first", err: &Error{Provider: "first", Kind: KindUnavailable, Err: errors.New("down")}}
	second := &stubProvider{name: "second", err: &Error{Provider: "second", Kind: KindMalformed, Err: errors.New("no json")}}
	chain := NewChain([]Provider{first, second}, time.Second, nil)

	_, err := chain.Generate(context.Background(), Request{UserMessage: "hello"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("each provider must be attempted exactly once: first=%d second=%d", first.calls, second.calls)
	}
}

func TestChainEmptyIsExhausted(t *testing.T) {
	chain := NewChain(nil, time.Second, nil)
	if _, err := chain.Generate(context.Background(), Request{}); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted for empty chain, got %v", err)
	}
}

func TestChainCallerCancellationAborts(t *testing.T) {
	first := &stubProvider{name: "first", err: errors.New("boom")}
	second := &stubProvider{name: "second", payload: okPayload()}
	chain := NewChain([]Provider{first, second}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := chain.Generate(ctx, Request{UserMessage: "hello"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if first.calls != 0 || second.calls != 0 {
		t.Fatalf("no provider should run after cancellation: first=%d second=%d", first.calls, second.calls)
	}
}

func TestChainAttemptTimeoutAdvances(t *testing.T) {
	slow := &slowProvider{name: "slow"}
	fallback := &stubProvider{name: "fallback", payload: okPayload()}
	chain := NewChain([]Provider{slow, fallback}, 20*time.Millisecond, nil)

	result, err := chain.Generate(context.Background(), Request{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if result.Provider != "fallback" {
		t.Fatalf("expected fallback after timeout, got %s", result.Provider)
	}
}

type slowProvider struct {
	name string
}

func (s *slowProvider) Name() string  { return s.name }
func (s *slowProvider) Model() string { return s.name + "-model" }

func (s *slowProvider) Generate(ctx context.Context, req Request) (Payload, error) {
	<-ctx.Done()
	return Payload{}, ctx.Err()
}
