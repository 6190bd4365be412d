package reflection

import (
	"fmt"
	"strings"

	"github.com/quietriver/reframe/backend/internal/analysis/memory"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	"github.com/quietriver/reframe/backend/internal/service/provider"
)

const historyLimit = 20

const baseInstructions = `You are a warm, grounded CBT reflection companion. The user shares a thought; you respond with one structured reflection turn.

Output requirements: return exactly one JSON object, no extra text, with these fields:
acknowledgment (empathic restatement of what the user expressed),
thoughtPattern (name of the cognitive distortion if one is present, e.g. "catastrophizing", else empty),
patternNote (one sentence on how that pattern shows up here),
reframe (a gentler, more balanced way to hold the thought),
question (ONE follow-up question that deepens the reflection),
encouragement (a short supportive closer),
icebergLayer (which depth the turn addressed: one of surface, trigger, emotion, coreBelief),
layerInsight (what this turn revealed at that layer, else empty),
progressScore (0-100 overall progress), layerProgress (0-100 within the current layer).

Work one layer at a time: surface (the stated thought), trigger (what set it off), emotion (what it feels like underneath), coreBelief (the underlying belief about self or world). Only report icebergLayer "coreBelief" with a non-empty layerInsight when a genuine core belief has surfaced. Never repeat a question, reframe or encouragement you have already used.`

const groundingInstructions = `The user is in a fragile place. Suspend cognitive restructuring entirely: no distortion labels, no challenges. Offer presence, simple grounding of the senses, and stabilization. Keep icebergLayer at the current layer and leave thoughtPattern and patternNote empty. The question field must offer a gentle choice between comfort right now and a tiny practical step.`

var intentEmphasis = map[reflection.Intent]string{
	reflection.IntentCalm:     "The user asked for calm: prioritize soothing, slow the pace, keep the question soft.",
	reflection.IntentClarity:  "The user asked for clarity: help them see the thought precisely before reframing it.",
	reflection.IntentNextStep: "The user asked for a next step: make the reframe concrete and the question action-oriented.",
	reflection.IntentMeaning:  "The user asked about meaning: connect the thought to what matters to them.",
	reflection.IntentListen:   "The user mainly wants to be heard: lead with the acknowledgment, keep everything else minimal.",
}

// buildSystemInstructions composes the per-turn system prompt from the
// rebuilt context. Constrained turns swap the restructuring brief for the
// grounding-only one.
func buildSystemInstructions(sctx memory.Context, intent reflection.Intent, constrain bool) string {
	var b strings.Builder
	b.WriteString(baseInstructions)

	if constrain {
		b.WriteString("\n\n")
		b.WriteString(groundingInstructions)
	}

	if emphasis, ok := intentEmphasis[intent]; ok {
		b.WriteString("\n\n")
		b.WriteString(emphasis)
	}

	b.WriteString(fmt.Sprintf("\n\nCurrent session layer: %s.", sctx.CurrentLayer))
	if sctx.CoreBeliefDetected {
		b.WriteString(" A core belief has already been identified; consolidate rather than re-digging.")
	}
	if sctx.OriginalTrigger != "" {
		b.WriteString(fmt.Sprintf("\nThe thought that opened this session: %q.", sctx.OriginalTrigger))
	}
	if sctx.LastQuestionType == reflection.QuestionChoice {
		b.WriteString("\nYour previous question offered an explicit choice; read the user's reply as picking one of those options.")
	}

	writeAvoidList(&b, "questions", sctx.PreviousQuestions)
	writeAvoidList(&b, "reframes", sctx.PreviousReframes)
	writeAvoidList(&b, "encouragements", sctx.PreviousEncouragements)
	if len(sctx.PreviousDistortions) > 0 {
		b.WriteString("\nDistortions already named this session: ")
		b.WriteString(strings.Join(sctx.PreviousDistortions, "; "))
		b.WriteString(".")
	}

	return b.String()
}

func writeAvoidList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\nDo not reuse these %s:\n", label))
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

// buildHistory converts the trailing transcript into ordered provider turns.
func buildHistory(messages []reflection.Message) []provider.Turn {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]provider.Turn, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case reflection.RoleUser, reflection.RoleAssistant:
			history = append(history, provider.Turn{Role: msg.Role, Content: msg.Content})
		}
	}
	return history
}
