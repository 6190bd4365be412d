package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ArkProvider serves generations through an eino chain backed by a
// Volcengine Ark chat model.
type ArkProvider struct {
	modelName string
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewArk compiles the prompt-template -> chat-model chain around the
// supplied Ark model.
func NewArk(ctx context.Context, chatModel model.ChatModel, modelName string) (*ArkProvider, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile ark chain: %w", err)
	}

	return &ArkProvider{modelName: modelName, chain: runnable}, nil
}

func (p *ArkProvider) Name() string  { return "ark" }
func (p *ArkProvider) Model() string { return p.modelName }

// Generate runs the chain and parses the structured payload from the
// model's reply.
func (p *ArkProvider) Generate(ctx context.Context, req Request) (Payload, error) {
	input := map[string]any{
		"system":  req.SystemInstructions,
		"history": toSchemaMessages(req.History),
		"query":   req.UserMessage,
	}

	msg, err := p.chain.Invoke(ctx, input)
	if err != nil {
		return Payload{}, &Error{Provider: p.Name(), Kind: classifyArkErr(ctx, err), Err: err}
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return Payload{}, &Error{Provider: p.Name(), Kind: KindMalformed, Err: fmt.Errorf("empty model reply")}
	}

	payload, err := ParsePayload(msg.Content)
	if err != nil {
		return Payload{}, &Error{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	return payload, nil
}

func toSchemaMessages(history []Turn) []*schema.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case "user":
			out = append(out, schema.UserMessage(turn.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return out
}

// classifyArkErr sniffs the SDK error text since the Ark client does not
// expose typed failures.
func classifyArkErr(ctx context.Context, err error) ErrorKind {
	if ctx.Err() == context.DeadlineExceeded {
		return KindTimeout
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "429"), strings.Contains(text, "rate limit"), strings.Contains(text, "quota"):
		return KindRateLimited
	case strings.Contains(text, "401"), strings.Contains(text, "403"),
		strings.Contains(text, "unauthorized"), strings.Contains(text, "api key"):
		return KindAuth
	default:
		return classify(err)
	}
}
