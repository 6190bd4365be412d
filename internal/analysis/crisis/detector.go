// Package crisis scans incoming thoughts for severity-tiered risk language
// and drives the grounding-mode state transitions. Detection is a plain
// substring scan over normalized text and never fails on malformed input.
package crisis

import "strings"

// Severity tiers for an incoming thought.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityElevated Severity = "elevated"
	SeverityAcute    Severity = "acute"
)

// Assessment is the outcome of scanning one thought.
type Assessment struct {
	Severity   Severity
	Indicators []string
}

// Default indicator lists. Policy rather than architecture; deployments
// override them through configuration.
var defaultAcuteIndicators = []string{
	"kill myself", "killing myself", "suicide", "suicidal", "end my life",
	"end it all", "want to die", "wish i was dead", "better off dead",
	"hurt myself", "harming myself", "self-harm", "self harm",
	"no reason to live", "don't want to be alive", "can't go on",
}

var defaultElevatedIndicators = []string{
	"panic attack", "can't breathe", "cant breathe", "hopeless", "worthless",
	"falling apart", "completely overwhelmed", "terrified", "shaking",
	"spiraling", "breaking down", "can't stop crying", "cant stop crying",
	"losing my mind", "going numb", "can't take this", "cant take this",
}

// Detector scans text against its configured indicator lists.
type Detector struct {
	acute    []string
	elevated []string
}

// NewDetector builds a detector. Nil or empty lists fall back to the
// built-in defaults, so overriding one tier does not silently disable
// the other.
func NewDetector(acute, elevated []string) *Detector {
	d := &Detector{acute: acute, elevated: elevated}
	if len(d.acute) == 0 {
		d.acute = defaultAcuteIndicators
	}
	if len(d.elevated) == 0 {
		d.elevated = defaultElevatedIndicators
	}
	return d
}

// Detect classifies the text into a severity tier with the matched
// indicators. Empty or whitespace input is SeverityNone.
func (d *Detector) Detect(text string) Assessment {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return Assessment{Severity: SeverityNone}
	}

	if matched := scan(normalized, d.acute); len(matched) > 0 {
		return Assessment{Severity: SeverityAcute, Indicators: matched}
	}
	if matched := scan(normalized, d.elevated); len(matched) > 0 {
		return Assessment{Severity: SeverityElevated, Indicators: matched}
	}
	return Assessment{Severity: SeverityNone}
}

// Detect scans with the default indicator lists.
func Detect(text string) Assessment {
	return NewDetector(nil, nil).Detect(text)
}

func scan(normalized string, indicators []string) []string {
	var matched []string
	for _, indicator := range indicators {
		if strings.Contains(normalized, indicator) {
			matched = append(matched, indicator)
		}
	}
	return matched
}

// Transition is the grounding-mode decision for one turn.
type Transition struct {
	GroundingMode  bool
	GroundingTurns int
	// ShortCircuit means the generation backend is bypassed entirely and a
	// pre-authored stabilization response is returned.
	ShortCircuit bool
	// Constrain means the backend is still called, restricted to a
	// grounding-only prompt (stable turn inside grounding mode).
	Constrain bool
}

// NextGrounding advances the grounding state machine.
//
//	Normal    --acute-->            Grounding (turns=1, bypass)
//	Grounding --elevated/acute-->   Grounding (turns+1, bypass)
//	Grounding --none, turns<N-->    Grounding (turns+1, constrained prompt)
//	Grounding --none, turns>=N-->   Normal
//	Normal    --none/elevated-->    Normal
//
// exitAfter is the configurable number of grounding turns that must pass
// before a stable turn releases the session back to normal flow.
func NextGrounding(mode bool, turns int, severity Severity, exitAfter int) Transition {
	if exitAfter <= 0 {
		exitAfter = 2
	}

	if !mode {
		if severity == SeverityAcute {
			return Transition{GroundingMode: true, GroundingTurns: 1, ShortCircuit: true}
		}
		return Transition{}
	}

	if severity == SeverityAcute || severity == SeverityElevated {
		return Transition{GroundingMode: true, GroundingTurns: turns + 1, ShortCircuit: true}
	}

	if turns >= exitAfter {
		return Transition{}
	}
	return Transition{GroundingMode: true, GroundingTurns: turns + 1, Constrain: true}
}
