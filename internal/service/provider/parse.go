package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// rawPayload mirrors Payload with a loose layer field so a bad layer string
// is rejected here rather than leaking into session state.
type rawPayload struct {
	Acknowledgment string `json:"acknowledgment"`
	ThoughtPattern string `json:"thoughtPattern"`
	PatternNote    string `json:"patternNote"`
	Reframe        string `json:"reframe"`
	Question       string `json:"question"`
	Encouragement  string `json:"encouragement"`
	IcebergLayer   string `json:"icebergLayer"`
	LayerInsight   string `json:"layerInsight"`
	ProgressScore  int    `json:"progressScore"`
	LayerProgress  int    `json:"layerProgress"`
}

// ParsePayload extracts the structured JSON object from model output and
// validates the required fields. Models tend to wrap JSON in prose or code
// fences, so everything outside the outermost braces is ignored.
func ParsePayload(content string) (Payload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return Payload{}, fmt.Errorf("missing json object in model output")
	}

	var raw rawPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err != nil {
		return Payload{}, fmt.Errorf("unmarshal model output: %w", err)
	}

	if strings.TrimSpace(raw.Acknowledgment) == "" {
		return Payload{}, fmt.Errorf("model output missing acknowledgment")
	}

	layer, ok := reflection.ParseLayer(strings.TrimSpace(raw.IcebergLayer))
	if !ok {
		return Payload{}, fmt.Errorf("model output has unknown icebergLayer %q", raw.IcebergLayer)
	}

	return Payload{
		Acknowledgment: strings.TrimSpace(raw.Acknowledgment),
		ThoughtPattern: strings.TrimSpace(raw.ThoughtPattern),
		PatternNote:    strings.TrimSpace(raw.PatternNote),
		Reframe:        strings.TrimSpace(raw.Reframe),
		Question:       strings.TrimSpace(raw.Question),
		Encouragement:  strings.TrimSpace(raw.Encouragement),
		IcebergLayer:   layer,
		LayerInsight:   strings.TrimSpace(raw.LayerInsight),
		ProgressScore:  clampPercent(raw.ProgressScore),
		LayerProgress:  clampPercent(raw.LayerProgress),
	}, nil
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
