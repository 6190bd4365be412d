// Package layers advances the session's emotional-depth state:
// surface -> trigger -> emotion -> coreBelief.
package layers

import (
	"strings"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// Outcome is the state produced by one advance step.
type Outcome struct {
	Layer         reflection.Layer
	IsCompleted   bool
	CoreBelief    string
	CoreBeliefNew bool
	// Inconsistent marks a backend-reported layer that contradicts recorded
	// history; the previously persisted state is kept in that case.
	Inconsistent bool
	// Insights is the per-layer insight delta for this turn.
	Insights map[reflection.Layer]string
}

// Advance folds a backend-reported layer and insight into the session state.
// The backend's report is trusted, with two clamps: an unknown layer keeps
// the current one, and once a core belief has been detected regressions no
// longer move the session backwards or unset completion.
func Advance(session reflection.Session, reported reflection.Layer, insight string) Outcome {
	current := session.CurrentLayer
	if current == "" {
		current = reflection.LayerSurface
	}
	insight = strings.TrimSpace(insight)

	out := Outcome{
		Layer:       current,
		IsCompleted: session.IsCompleted,
		CoreBelief:  session.CoreBelief,
	}

	next := current
	switch {
	case !reported.Valid():
		out.Inconsistent = reported != ""
	case reported.Rank() >= current.Rank():
		next = reported
	case !session.CoreBeliefDetected:
		// Pre-detection exploration may revisit earlier layers.
		next = reported
	default:
		out.Inconsistent = true
	}
	out.Layer = next

	if insight != "" && next.Valid() {
		out.Insights = map[reflection.Layer]string{next: insight}
	}

	if next == reflection.LayerCoreBelief && insight != "" {
		out.IsCompleted = true
		if !session.CoreBeliefDetected {
			out.CoreBelief = insight
			out.CoreBeliefNew = true
		}
	}

	// Completion is terminal regardless of later layer reports.
	if session.IsCompleted {
		out.IsCompleted = true
	}

	return out
}
