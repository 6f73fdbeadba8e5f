package reply

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// ErrMalformedResponse is reported when a completion carries no usable choice.
var ErrMalformedResponse = errors.New("completion response has no choices")

// OpenAIBackend generates replies with the OpenAI chat completions API.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend builds a backend authenticated with apiKey. Extra request
// options (base URL, HTTP client) are applied after the defaults.
func NewOpenAIBackend(apiKey, model string, opts ...option.RequestOption) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is empty")
	}
	if model == "" {
		model = DefaultModel
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &OpenAIBackend{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Complete sends prompt as a single user message and returns the first choice.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	completion, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:     shared.ChatModel(b.model),
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", ErrMalformedResponse
	}
	return completion.Choices[0].Message.Content, nil
}
