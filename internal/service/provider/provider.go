// Package provider abstracts the language-generation backends behind one
// call contract and implements ordered failover across them.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// Turn is one ordered history entry sent to a backend.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a backend needs for one generation.
type Request struct {
	SystemInstructions string
	History            []Turn
	UserMessage        string
}

// Payload is the structured output a backend must produce. A response that
// cannot be parsed into this shape counts as a failure of that provider.
type Payload struct {
	Acknowledgment string           `json:"acknowledgment"`
	ThoughtPattern string           `json:"thoughtPattern"`
	PatternNote    string           `json:"patternNote"`
	Reframe        string           `json:"reframe"`
	Question       string           `json:"question"`
	Encouragement  string           `json:"encouragement"`
	IcebergLayer   reflection.Layer `json:"icebergLayer"`
	LayerInsight   string           `json:"layerInsight"`
	ProgressScore  int              `json:"progressScore"`
	LayerProgress  int              `json:"layerProgress"`
}

// Result tags a successful payload with the identity of the backend that
// served it. The tag is observability only, never control flow.
type Result struct {
	Payload  Payload
	Provider string
	Model    string
}

// Provider is one configured generation backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Payload, error)
}

// ErrorKind classifies why a single backend attempt failed.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth"
	KindMalformed   ErrorKind = "malformed_output"
	KindUnavailable ErrorKind = "unavailable"
)

// Error is a typed per-attempt failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrExhausted is the single aggregated failure surfaced when every
// provider in the chain has failed.
var ErrExhausted = errors.New("all providers exhausted")

// classify maps transport-level errors onto an ErrorKind. Adapters refine
// this with vendor-specific signals before falling back here.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnavailable
	}
}
