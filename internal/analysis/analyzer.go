// Package analysis talks to the language-model oracle that phrases replies
// and proposes structured knowledge updates.
//
// Providers are selected by configuration. Every provider returns a usable
// Reply even when the model output cannot be parsed; only the structured
// KnowledgeUpdate is dropped in that case.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omharigupta/datasynth/internal/config"
	"github.com/omharigupta/datasynth/internal/domain"
)

// ErrUnavailable is returned when no oracle is configured or reachable.
var ErrUnavailable = errors.New("analysis: oracle unavailable")

// ErrMalformedOutput marks model output that did not match the expected JSON
// shape. The accompanying Response still carries the raw text as Reply.
var ErrMalformedOutput = errors.New("analysis: malformed model output")

// HistoryLimit is the number of prior messages sent with each request.
const HistoryLimit = 5

// Request is one oracle call.
type Request struct {
	Prompt  string
	History []domain.StoredMessage
	// Context is optional background retrieved from the vector store.
	Context string
}

// KnowledgeUpdate is the structured part of a model reply.
type KnowledgeUpdate struct {
	BusinessUnderstanding []string `json:"business_understanding,omitempty"`
	Objectives            []string `json:"objectives,omitempty"`
	Constraints           []string `json:"constraints,omitempty"`
	Summary               string   `json:"summary,omitempty"`
}

// Response is the parsed oracle reply.
type Response struct {
	Reply           string
	KnowledgeUpdate *KnowledgeUpdate
}

// Analyzer is the oracle contract the workflow engine depends on.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
}

// Closer is implemented by analyzers holding network resources.
type Closer interface {
	Close() error
}

// New builds the analyzer selected by cfg.Provider.
func New(ctx context.Context, cfg config.AnalysisConfig, logger *slog.Logger) (Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
	case config.ProviderAnthropic:
		return NewAnthropic(AnthropicOptions{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}), nil
	case config.ProviderGRPC:
		return NewGrpcClient(GrpcClientConfig{
			Address:        cfg.GRPCAddr,
			ConnectTimeout: 5 * time.Second,
			RequestTimeout: cfg.Timeout,
		}, logger)
	case config.ProviderNone, "":
		logger.Info("Analysis oracle disabled")
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.Provider)
	}
}

// Unavailable is the analyzer used when no provider is configured.
type Unavailable struct{}

// Analyze always fails with ErrUnavailable.
func (Unavailable) Analyze(context.Context, Request) (Response, error) {
	return Response{}, ErrUnavailable
}

// finish parses raw model text, logging malformed output without failing.
func finish(logger *slog.Logger, provider, raw string) Response {
	resp, err := ParseResponse(raw)
	if err != nil {
		logger.Warn("Oracle returned unstructured output",
			"provider", provider,
			"error", err,
			"chars", len(raw))
	}
	return resp
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
