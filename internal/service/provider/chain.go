package provider

import (
	"context"
	"errors"
	"time"

	"github.com/quietriver/reframe/backend/pkg/logger"
)

// Chain attempts providers strictly in priority order, at most once each,
// with a bounded per-attempt timeout. Attempts are sequential, never a
// race: concurrent quota burn across vendors is exactly what the priority
// order exists to avoid.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	log       *logger.Logger
}

// NewChain builds a failover chain. perAttempt bounds each provider call,
// so worst-case latency is len(providers) * perAttempt.
func NewChain(providers []Provider, perAttempt time.Duration, log *logger.Logger) *Chain {
	if perAttempt <= 0 {
		perAttempt = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Chain{providers: providers, timeout: perAttempt, log: log}
}

// Len reports how many providers are configured.
func (c *Chain) Len() int { return len(c.providers) }

// Generate walks the chain until a provider returns a valid structured
// payload. Timeouts, rate limits, auth failures and malformed output all
// advance to the next provider; exhausting the chain yields ErrExhausted.
// Caller cancellation aborts the in-flight attempt and the whole call.
func (c *Chain) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(c.providers) == 0 {
		return nil, ErrExhausted
	}

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		payload, err := p.Generate(attemptCtx, req)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logAttemptFailure(p, err)
			continue
		}

		c.log.Info("provider served generation", "provider", p.Name(), "model", p.Model())
		return &Result{Payload: payload, Provider: p.Name(), Model: p.Model()}, nil
	}

	return nil, ErrExhausted
}

// logAttemptFailure separates malformed output from availability failures:
// the former signals a prompt/contract mismatch, not vendor downtime.
func (c *Chain) logAttemptFailure(p Provider, err error) {
	kind := classify(err)
	var perr *Error
	if errors.As(err, &perr) {
		kind = perr.Kind
	}

	if kind == KindMalformed {
		c.log.Error("provider returned malformed structured output",
			"provider", p.Name(), "model", p.Model(), "error", err)
		return
	}
	c.log.Warn("provider attempt failed, advancing chain",
		"provider", p.Name(), "kind", string(kind), "error", err)
}
