package reflection

import "time"

// Roles for a message within a session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message persists a single turn. Structured fields are populated only on
// assistant turns; user turns carry content alone.
type Message struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ThoughtPattern string    `json:"thoughtPattern,omitempty"`
	PatternNote    string    `json:"patternNote,omitempty"`
	Reframe        string    `json:"reframe,omitempty"`
	Question       string    `json:"question,omitempty"`
	Encouragement  string    `json:"encouragement,omitempty"`
	IcebergLayer   Layer     `json:"icebergLayer,omitempty"`
	LayerInsight   string    `json:"layerInsight,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
