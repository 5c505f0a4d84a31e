package enhance

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultModel = "llama3.2"

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	options := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	// Local endpoints such as Ollama ignore the key but the client requires one.
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = "unused"
	}
	options = append(options, option.WithAPIKey(apiKey))
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &OpenAIGenerator{
		client: openai.NewClient(options...),
		model:  model,
	}
}

// Generate sends prompt as a single user message and returns the first
// choice's content.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{
				StatusCode: apiErr.StatusCode,
				Payload:    apiErr.RawJSON(),
				Err:        err,
			}
		}
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", &UpstreamError{StatusCode: http.StatusOK, Payload: completion.RawJSON(), Err: errEmptyCompletion}
	}
	return completion.Choices[0].Message.Content, nil
}

// Model reports the configured model name.
func (g *OpenAIGenerator) Model() string {
	return g.model
}
