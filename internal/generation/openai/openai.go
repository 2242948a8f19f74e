// Package openai generates answers through an OpenAI-compatible chat
// completions endpoint. The defaults target Groq.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"webrag/internal/domain"
)

// Defaults for Groq's OpenAI-compatible API.
const (
	DefaultBaseURL   = "https://api.groq.com/openai/v1"
	DefaultAPIKeyEnv = "GROQ_API_KEY"
	DefaultModel     = "llama3-70b-8192"
)

// FallbackResponse is returned when the model answers with no content.
const FallbackResponse = "I'm sorry, I couldn't generate a response. Please try again."

const promptTemplate = `You are a helpful assistant that answers questions based on the provided context.
Use the context information to answer the user's question accurately. If the context doesn't contain
relevant information to answer the question, politely say so and suggest what information might be needed.

Keep your responses clear, concise, and helpful. Always base your answers on the provided context,
but don't mention the context to the user. Give the answer if you find it, otherwise say you don't know.

Context information:
%s

User question: %s

Please answer the question based on the context provided above.`

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64
	TopP        float64
}

// Client implements domain.Generator.
type Client struct {
	api openai.Client
	cfg Config
}

// NewClient creates a chat client. Zero fields take the Groq defaults,
// temperature 0.7, 1000 max tokens and top_p 0.95.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.95
	}
	api := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return &Client{api: api, cfg: cfg}, nil
}

// Prompt renders the single user message sent to the model. The context
// block is embedded verbatim.
func Prompt(query, contextBlock string) string {
	return fmt.Sprintf(promptTemplate, contextBlock, query)
}

// Generate implements domain.Generator.
func (c *Client) Generate(ctx context.Context, query, contextBlock string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(Prompt(query, contextBlock)),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		MaxTokens:   openai.Int(c.cfg.MaxTokens),
		TopP:        openai.Float(c.cfg.TopP),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return FallbackResponse, nil
	}
	return resp.Choices[0].Message.Content, nil
}

var _ domain.Generator = (*Client)(nil)
