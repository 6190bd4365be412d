package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider serves generations through the Google GenAI SDK.
type GeminiProvider struct {
	client    *genai.Client
	modelName string
}

// NewGemini builds a Gemini-backed provider.
func NewGemini(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiProvider{client: client, modelName: modelName}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.modelName }

// Generate asks for application/json output and parses the structured
// payload from the reply.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Payload, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.UserMessage, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.modelName, contents, cfg)
	if err != nil {
		return Payload{}, &Error{Provider: p.Name(), Kind: classifyGeminiErr(err), Err: err}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Payload{}, &Error{Provider: p.Name(), Kind: KindMalformed, Err: fmt.Errorf("empty model reply")}
	}

	payload, err := ParsePayload(text)
	if err != nil {
		return Payload{}, &Error{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	return payload, nil
}

func classifyGeminiErr(err error) ErrorKind {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindAuth
		}
	}
	return classify(err)
}
