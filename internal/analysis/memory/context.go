// Package memory rebuilds the engine's working context from a session and
// its persisted turns. Everything here is a pure function of its inputs so
// the same history always produces the same context.
package memory

import (
	"strings"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// Caps bounds the lists fed back into prompt composition.
type Caps struct {
	// AssistantScan is how many trailing assistant turns are considered.
	AssistantScan int
	// Window caps the newest-first assistant turns used for extraction.
	Window int
	// History caps questions, reframes, acknowledgments and encouragements.
	History int
	// Distortions caps the detected thought-pattern list.
	Distortions int
}

// DefaultCaps mirrors the product defaults.
var DefaultCaps = Caps{
	AssistantScan: 30,
	Window:        20,
	History:       25,
	Distortions:   10,
}

// Context is the deduplicated, bounded working memory for one turn.
// Lists are newest-first.
type Context struct {
	PreviousQuestions       []string
	PreviousReframes        []string
	PreviousDistortions     []string
	PreviousAcknowledgments []string
	PreviousEncouragements  []string
	OriginalTrigger         string
	CurrentLayer            reflection.Layer
	GroundingMode           bool
	GroundingTurns          int
	LastQuestionType        reflection.QuestionType
	CoreBeliefDetected      bool
	UserIntent              reflection.Intent
}

// Rebuild derives the context from a session and its chronologically
// ordered messages. It performs no I/O and is safe for concurrent use.
func Rebuild(session reflection.Session, messages []reflection.Message, caps Caps) Context {
	if caps.AssistantScan <= 0 {
		caps = DefaultCaps
	}

	ctx := Context{
		CurrentLayer:       session.CurrentLayer,
		GroundingMode:      session.GroundingMode,
		GroundingTurns:     session.GroundingTurns,
		LastQuestionType:   session.LastQuestionType,
		CoreBeliefDetected: session.CoreBeliefDetected,
		UserIntent:         session.LastIntentUsed,
	}
	if ctx.CurrentLayer == "" {
		ctx.CurrentLayer = reflection.LayerSurface
	}
	if ctx.UserIntent == "" {
		ctx.UserIntent = reflection.IntentAuto
	}

	for _, msg := range messages {
		if msg.Role == reflection.RoleUser {
			ctx.OriginalTrigger = msg.Content
			break
		}
	}

	recent := recentAssistantTurns(messages, caps.AssistantScan, caps.Window)

	ctx.PreviousQuestions = dedupField(recent, caps.History, func(m reflection.Message) string { return m.Question })
	ctx.PreviousReframes = dedupField(recent, caps.History, func(m reflection.Message) string { return m.Reframe })
	ctx.PreviousDistortions = dedupField(recent, caps.Distortions, func(m reflection.Message) string { return m.ThoughtPattern })
	ctx.PreviousAcknowledgments = dedupField(recent, caps.History, func(m reflection.Message) string { return m.Content })
	ctx.PreviousEncouragements = dedupField(recent, caps.History, func(m reflection.Message) string { return m.Encouragement })

	if len(ctx.PreviousQuestions) > 0 {
		ctx.LastQuestionType = ClassifyQuestion(ctx.PreviousQuestions[0])
	}

	return ctx
}

// recentAssistantTurns filters assistant messages, keeps the trailing scan
// window, reverses to newest-first, then trims to the extraction window.
func recentAssistantTurns(messages []reflection.Message, scan, window int) []reflection.Message {
	assistant := make([]reflection.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == reflection.RoleAssistant {
			assistant = append(assistant, msg)
		}
	}

	if len(assistant) > scan {
		assistant = assistant[len(assistant)-scan:]
	}

	reversed := make([]reflection.Message, 0, len(assistant))
	for i := len(assistant) - 1; i >= 0; i-- {
		reversed = append(reversed, assistant[i])
	}

	if window > 0 && len(reversed) > window {
		reversed = reversed[:window]
	}
	return reversed
}

// dedupField extracts one structured field from newest-first turns, dropping
// entries that collapse to an already seen string. First occurrence wins so
// the result keeps "most recent distinct" semantics.
func dedupField(turns []reflection.Message, cap int, field func(reflection.Message) string) []string {
	seen := make(map[string]struct{}, len(turns))
	out := make([]string, 0, len(turns))
	for _, turn := range turns {
		value := strings.TrimSpace(field(turn))
		if value == "" {
			continue
		}
		key := normalizeKey(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
		if cap > 0 && len(out) == cap {
			break
		}
	}
	return out
}

// normalizeKey lowercases and collapses internal whitespace so case and
// spacing variants compare equal.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
