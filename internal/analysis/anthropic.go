package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/omharigupta/datasynth/internal/retry"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicOptions configures the Anthropic analyzer.
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Anthropic is the Analyzer backed by the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAnthropic creates an Anthropic analyzer.
func NewAnthropic(opts AnthropicOptions) *Anthropic {
	if opts.Model == "" {
		opts.Model = defaultAnthropicModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	opts.Logger.Info("Anthropic analyzer ready", "model", opts.Model)
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(opts.APIKey)),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// Analyze sends the request as a single user message and parses the reply.
func (a *Anthropic) Analyze(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	}

	policy := retry.Network
	policy.Name = "anthropic_messages"
	policy.Retryable = isTransientAnthropic

	var message *anthropic.Message
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return err
		}
		message = resp
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return finish(a.logger, "anthropic", text.String()), nil
}

func isTransientAnthropic(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return isTransient(err)
}
