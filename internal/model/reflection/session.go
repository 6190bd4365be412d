package reflection

import "time"

// Layer is one of the four ordered emotional-depth stages a session moves
// through while unpacking a thought.
type Layer string

const (
	LayerSurface    Layer = "surface"
	LayerTrigger    Layer = "trigger"
	LayerEmotion    Layer = "emotion"
	LayerCoreBelief Layer = "coreBelief"
)

var layerOrder = map[Layer]int{
	LayerSurface:    0,
	LayerTrigger:    1,
	LayerEmotion:    2,
	LayerCoreBelief: 3,
}

// Rank returns the depth position of the layer, surface being 0.
func (l Layer) Rank() int {
	return layerOrder[l]
}

// Valid reports whether the layer is one of the four known stages.
func (l Layer) Valid() bool {
	_, ok := layerOrder[l]
	return ok
}

// ParseLayer normalizes a provider-reported layer string.
func ParseLayer(raw string) (Layer, bool) {
	switch Layer(raw) {
	case LayerSurface, LayerTrigger, LayerEmotion, LayerCoreBelief:
		return Layer(raw), true
	}
	return "", false
}

// Intent is the user-selected conversational goal for a turn.
type Intent string

const (
	IntentAuto     Intent = "AUTO"
	IntentCalm     Intent = "CALM"
	IntentClarity  Intent = "CLARITY"
	IntentNextStep Intent = "NEXT_STEP"
	IntentMeaning  Intent = "MEANING"
	IntentListen   Intent = "LISTEN"
)

// ParseIntent maps a raw intent string to a known intent, defaulting to AUTO.
func ParseIntent(raw string) Intent {
	switch Intent(raw) {
	case IntentCalm, IntentClarity, IntentNextStep, IntentMeaning, IntentListen:
		return Intent(raw)
	}
	return IntentAuto
}

// QuestionType classifies the most recent assistant question so the next
// user reply can be interpreted correctly.
type QuestionType string

const (
	QuestionChoice QuestionType = "choice"
	QuestionOpen   QuestionType = "open"
	QuestionNone   QuestionType = ""
)

// Session captures one continuous reflection journey for one user.
type Session struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"userId"`
	CurrentLayer       Layer            `json:"currentLayer"`
	CoreBelief         string           `json:"coreBelief,omitempty"`
	CoreBeliefDetected bool             `json:"coreBeliefAlreadyDetected"`
	GroundingMode      bool             `json:"groundingMode"`
	GroundingTurns     int              `json:"groundingTurns"`
	LastQuestionType   QuestionType     `json:"lastQuestionType"`
	LastIntentUsed     Intent           `json:"lastIntentUsed"`
	IsCompleted        bool             `json:"isCompleted"`
	DiscoveredInsights map[Layer]string `json:"discoveredInsights,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// NewSession returns a fresh surface-layer session owned by userID.
func NewSession(id, userID string) Session {
	now := time.Now().UTC()
	return Session{
		ID:             id,
		UserID:         userID,
		CurrentLayer:   LayerSurface,
		LastIntentUsed: IntentAuto,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
