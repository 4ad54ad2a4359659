// Package generate turns retrieved recipe chunks into answers. It wraps
// an OpenAI-compatible chat model for query routing, query rewriting,
// metadata filter extraction, and streamed answer generation.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultMaxContextChars caps the retrieved context passed to the model.
const DefaultMaxContextChars = 3500

// Config configures the chat model.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	MaxContextChars int
}

// Service drives all LLM interactions for the answer pipeline.
type Service struct {
	model           llms.Model
	maxContextChars int
}

// NewService creates a generation service backed by an OpenAI-compatible
// chat API.
func NewService(cfg Config) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return NewServiceWithModel(client, cfg.MaxContextChars), nil
}

// NewServiceWithModel wraps an existing model. Tests inject fakes here.
func NewServiceWithModel(model llms.Model, maxContextChars int) *Service {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &Service{model: model, maxContextChars: maxContextChars}
}

// generate runs one system+user exchange and returns the text of the
// first choice.
func (s *Service) generate(ctx context.Context, system, user string, opts ...llms.CallOption) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	response, err := s.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}
