package reflection

// StructuredResponse is the therapeutic payload returned to the caller and
// persisted as the next assistant message.
type StructuredResponse struct {
	Acknowledgment string `json:"acknowledgment"`
	ThoughtPattern string `json:"thoughtPattern,omitempty"`
	PatternNote    string `json:"patternNote,omitempty"`
	Reframe        string `json:"reframe,omitempty"`
	Question       string `json:"question,omitempty"`
	Encouragement  string `json:"encouragement,omitempty"`
	IcebergLayer   Layer  `json:"icebergLayer"`
	LayerInsight   string `json:"layerInsight,omitempty"`
	GroundingMode  bool   `json:"groundingMode"`
	GroundingTurns int    `json:"groundingTurns"`
	ProgressScore  int    `json:"progressScore,omitempty"`
	LayerProgress  int    `json:"layerProgress,omitempty"`
}

// AssistantMessage converts the response into a persistable assistant turn.
func (r StructuredResponse) AssistantMessage(sessionID string) Message {
	return Message{
		SessionID:      sessionID,
		Role:           RoleAssistant,
		Content:        r.Acknowledgment,
		ThoughtPattern: r.ThoughtPattern,
		PatternNote:    r.PatternNote,
		Reframe:        r.Reframe,
		Question:       r.Question,
		Encouragement:  r.Encouragement,
		IcebergLayer:   r.IcebergLayer,
		LayerInsight:   r.LayerInsight,
	}
}

// SessionUpdate carries the fields the external store must persist after a
// turn. The engine itself holds no state between calls.
type SessionUpdate struct {
	CurrentLayer       Layer            `json:"currentLayer"`
	CoreBelief         string           `json:"coreBelief,omitempty"`
	IsCompleted        bool             `json:"isCompleted"`
	CoreBeliefDetected bool             `json:"coreBeliefAlreadyDetected"`
	CoreBeliefNew      bool             `json:"coreBeliefNew,omitempty"`
	LastQuestionType   QuestionType     `json:"lastQuestionType"`
	GroundingMode      bool             `json:"groundingMode"`
	GroundingTurns     int              `json:"groundingTurns"`
	LastIntentUsed     Intent           `json:"lastIntentUsed"`
	DiscoveredInsights map[Layer]string `json:"discoveredInsights,omitempty"`
}

// Apply folds the update back into a session record.
func (u SessionUpdate) Apply(s *Session) {
	s.CurrentLayer = u.CurrentLayer
	if u.CoreBelief != "" {
		s.CoreBelief = u.CoreBelief
	}
	s.IsCompleted = u.IsCompleted
	s.CoreBeliefDetected = u.CoreBeliefDetected
	s.LastQuestionType = u.LastQuestionType
	s.GroundingMode = u.GroundingMode
	s.GroundingTurns = u.GroundingTurns
	s.LastIntentUsed = u.LastIntentUsed
	if len(u.DiscoveredInsights) > 0 {
		if s.DiscoveredInsights == nil {
			s.DiscoveredInsights = make(map[Layer]string, len(u.DiscoveredInsights))
		}
		for layer, insight := range u.DiscoveredInsights {
			s.DiscoveredInsights[layer] = insight
		}
	}
}
