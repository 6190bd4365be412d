package memory

import (
	"strings"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// ClassifyQuestion decides whether an assistant question offered an explicit
// grounding-or-explore choice or left the floor open. The markers are a
// deliberately small substring heuristic kept in one place so it can be
// tuned without touching conversational flow.
func ClassifyQuestion(question string) reflection.QuestionType {
	normalized := normalizeKey(question)
	if normalized == "" {
		return reflection.QuestionNone
	}

	switch {
	case strings.Contains(normalized, "comfort right now"),
		strings.Contains(normalized, "tiny practical step"),
		strings.Contains(normalized, "comfort") && strings.Contains(normalized, "practical"),
		strings.Contains(normalized, "do you want") && strings.Contains(normalized, " or "):
		return reflection.QuestionChoice
	}

	return reflection.QuestionOpen
}
