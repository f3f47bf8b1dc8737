package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/transport"
)

// OpenAICompleter implements Completer against the OpenAI chat completion API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(apiKey string, model string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{
		Transport: transport.WithRateLimiting(nil),
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (oc *OpenAICompleter) Complete(ctx context.Context, history []chat.Message) (string, error) {
	resp, err := oc.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    oc.model,
		Messages: toOpenAIMessages(history),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		// Successful but empty; the caller decides on a fallback
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(history []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}
