package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/genai"

	"github.com/omharigupta/datasynth/internal/retry"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiOptions configures the Gemini analyzer.
type GeminiOptions struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Gemini is the Analyzer backed by the Google GenAI API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGemini creates a Gemini analyzer.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	opts.Logger.Info("Gemini analyzer ready", "model", opts.Model)
	return &Gemini{
		client:  client,
		model:   opts.Model,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}, nil
}

// Analyze sends the request to Gemini and parses the JSON reply.
func (g *Gemini) Analyze(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	prompt := BuildPrompt(req)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	policy := retry.Network
	policy.Name = "gemini_generate"
	policy.Retryable = isTransient

	var text string
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err != nil {
			return err
		}
		text = result.Text()
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	return finish(g.logger, "gemini", text), nil
}

// isTransient reports errors worth one more attempt: timeouts and network
// failures, but not a cancelled caller.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return false
}
