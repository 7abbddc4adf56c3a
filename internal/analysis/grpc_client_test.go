package analysis

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omharigupta/datasynth/internal/domain"
)

type analysisServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type fakeAnalysisServer struct {
	got chan *structpb.Struct
}

func (s *fakeAnalysisServer) Analyze(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.got <- in
	return structpb.NewStruct(map[string]any{
		"response": "Thanks, noted your goals.",
		"knowledge_update": map[string]any{
			"objectives": []any{"Reach 1000 students"},
		},
	})
}

var analysisServiceDesc = grpc.ServiceDesc{
	ServiceName: analysisService,
	HandlerType: (*analysisServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Analyze",
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(analysisServer).Analyze(ctx, in)
		},
	}},
}

func startAnalysisServer(t *testing.T) (*fakeAnalysisServer, GrpcClientConfig) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeAnalysisServer{got: make(chan *structpb.Struct, 1)}
	srv.RegisterService(&analysisServiceDesc, fake)

	hs := health.NewServer()
	hs.SetServingStatus(analysisService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return fake, GrpcClientConfig{
		Address:        "passthrough:///bufnet",
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}
}

func TestGrpcClientAnalyze(t *testing.T) {
	t.Parallel()

	fake, cfg := startAnalysisServer(t)
	client, err := NewGrpcClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewGrpcClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	resp, err := client.Analyze(ctx, Request{
		Prompt:  "We want 1000 students",
		History: []domain.StoredMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Reply != "Thanks, noted your goals." {
		t.Fatalf("reply = %q", resp.Reply)
	}
	if resp.KnowledgeUpdate == nil || len(resp.KnowledgeUpdate.Objectives) != 1 {
		t.Fatalf("update = %+v", resp.KnowledgeUpdate)
	}

	in := <-fake.got
	if got := in.GetFields()["prompt"].GetStringValue(); got != "We want 1000 students" {
		t.Fatalf("prompt field = %q", got)
	}
	if n := len(in.GetFields()["history"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("history len = %d, want 1", n)
	}
}
