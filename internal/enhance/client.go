// Package enhance provides the Text Enhancement client over an OpenAI-compatible
// chat completion API.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/regen-service/internal/core"
	"github.com/sashabaranov/go-openai"
)

// userMessagePrefix introduces the transcript in the user message.
const userMessagePrefix = "Please process this transcribed text:\n\n"

var (
	// ErrNoChoices indicates the completion carried no choices.
	ErrNoChoices = errors.New("completion returned no choices")
	// ErrInstructionEmpty indicates an empty system instruction.
	ErrInstructionEmpty = errors.New("instruction cannot be empty")
)

// Options configures the enhancement client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client calls the chat completion endpoint with a system instruction and the
// transcript as the user message.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient creates an enhancement client. An empty BaseURL uses the public API.
func NewClient(opts Options) *Client {
	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}

	return &Client{
		api:         openai.NewClientWithConfig(clientConfig),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Enhance returns the rewritten text. Failures keep the service's message.
func (c *Client) Enhance(ctx context.Context, instruction, text string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, ErrInstructionEmpty)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: instruction,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessagePrefix + text,
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", core.ErrServiceUnavailable, ErrNoChoices)
	}

	return resp.Choices[0].Message.Content, nil
}
