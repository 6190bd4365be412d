package reflection

import (
	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// Pre-authored stabilization turns used while the generation backend is
// bypassed. Indexed by grounding turn so consecutive crisis turns do not
// repeat themselves verbatim.
var groundingScripts = []reflection.StructuredResponse{
	{
		Acknowledgment: "What you just shared matters, and I'm really glad you said it here. Right now the most important thing is that you stay safe.",
		Reframe:        "You don't have to solve anything in this moment. Feelings this heavy can pass, and you deserve support from a real person while they do.",
		Question:       "Would you like a moment of comfort right now, or a tiny practical step to feel a little more grounded?",
		Encouragement:  "If you are in immediate danger, please reach out now: call or text 988 (Suicide & Crisis Lifeline) or your local emergency number. You are not alone in this.",
	},
	{
		Acknowledgment: "I'm still here with you. Let's keep things slow and steady for a moment.",
		Reframe:        "Try noticing five things you can see and three things you can hear. Grounding the senses can quiet the alarm enough to breathe.",
		Question:       "Would a moment of comfort right now help, or would a tiny practical step feel better?",
		Encouragement:  "Support lines like 988 are there around the clock. Reaching out is a strong move, not a weak one.",
	},
	{
		Acknowledgment: "Thank you for staying in the conversation. That takes real courage.",
		Reframe:        "One slow breath in, one slower breath out. Nothing else is required of you right now.",
		Question:       "Do you want to stay with this feeling together, or gently look at what set it off?",
		Encouragement:  "Whenever it feels too big, a human voice helps: 988, or someone you trust. Keep yourself safe first.",
	},
}

// groundingResponse synthesizes the stabilization turn for the current
// grounding state. No provider is involved and the session layer is echoed
// back untouched.
func groundingResponse(turns int, layer reflection.Layer) reflection.StructuredResponse {
	idx := turns - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(groundingScripts) {
		idx = len(groundingScripts) - 1
	}

	resp := groundingScripts[idx]
	if !layer.Valid() {
		layer = reflection.LayerSurface
	}
	resp.IcebergLayer = layer
	resp.GroundingMode = true
	resp.GroundingTurns = turns
	return resp
}
