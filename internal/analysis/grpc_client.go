package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/retry"
)

// analyzeMethod is the unary RPC exposed by the remote analysis service. Both
// request and response are google.protobuf.Struct messages.
const (
	analysisService = "kyb.v1.Analysis"
	analyzeMethod   = "/" + analysisService + "/Analyze"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// GrpcClient calls a remote analysis service.
type GrpcClient struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGrpcClient connects to the analysis service and waits until it is ready.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = 2 * time.Minute
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = 10 * time.Second
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analysis client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("analysis service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to analysis service", "address", cfg.Address)
	return &GrpcClient{
		conn:    conn,
		addr:    cfg.Address,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close analysis connection: %w", err)
	}
	return nil
}

// Health checks the standard gRPC health service for the analysis service.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: analysisService})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("analysis service status %s", resp.GetStatus())
	}
	return nil
}

// Analyze performs the unary Analyze call.
func (c *GrpcClient) Analyze(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	in, err := encodeRequest(req)
	if err != nil {
		return Response{}, err
	}

	policy := retry.Network
	policy.Name = "grpc_analyze"
	policy.Retryable = isTransientGRPC

	out := &structpb.Struct{}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		return c.conn.Invoke(ctx, analyzeMethod, in, out, grpc.WaitForReady(true))
	})
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Response{}, fmt.Errorf("analyze rpc: %w", err)
	}

	raw, err := json.Marshal(out.AsMap())
	if err != nil {
		return Response{}, fmt.Errorf("encode analyze reply: %w", err)
	}
	return finish(c.logger, "grpc", string(raw)), nil
}

func encodeRequest(req Request) (*structpb.Struct, error) {
	history := make([]any, 0, HistoryLimit)
	for _, m := range domain.RecentMessages(req.History, HistoryLimit) {
		history = append(history, map[string]any{"role": m.Role, "content": m.Content})
	}

	in, err := structpb.NewStruct(map[string]any{
		"system_prompt": SystemPrompt,
		"prompt":        req.Prompt,
		"history":       history,
		"context":       req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}
	return in, nil
}

func isTransientGRPC(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	default:
		return false
	}
}
