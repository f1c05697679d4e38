package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/knowledge"
)

type noopProvider struct{ name string }

func (n *noopProvider) Name() string { return n.name }

func (n *noopProvider) Invoke(ctx context.Context, req *domain.ProviderRequest) (*domain.ProviderResponse, error) {
	return &domain.ProviderResponse{Text: "ok", FinishReason: "stop"}, nil
}

func (n *noopProvider) Stream(ctx context.Context, req *domain.ProviderRequest) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent, 1)
	ch <- domain.StreamEvent{ContentDelta: "ok"}
	close(ch)
	return ch, nil
}

func (n *noopProvider) Ping(ctx context.Context) error { return nil }

func testConfig() *config.Config {
	cfg, _ := config.Load("")
	// Port 0 lets the OS pick a free port for the test listener.
	cfg.Server.Port = 0
	cfg.Tiers = config.TiersConfig{
		Premium:    []string{"main"},
		Balanced:   []string{"main"},
		Economy:    []string{"main"},
		LastResort: []string{"main"},
	}
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRuntime_StartAndShutdown(t *testing.T) {
	rt, err := New(
		WithConfig(testConfig()),
		WithProviders(map[string]domain.Provider{"main": &noopProvider{name: "main"}}),
		WithKnowledgeStore(knowledge.NewStore(nil)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rt.Pipeline() == nil {
		t.Error("Pipeline() is nil after Start")
	}
	if rt.Breakers() == nil {
		t.Error("Breakers() is nil after Start")
	}

	if err := rt.Start(ctx); err == nil {
		t.Error("second Start() did not fail")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := rt.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestRuntime_ProcessThroughAssembledPipeline(t *testing.T) {
	rt, err := New(
		WithConfig(testConfig()),
		WithProviders(map[string]domain.Provider{"main": &noopProvider{name: "main"}}),
		WithKnowledgeStore(knowledge.NewStore(nil)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rt.Shutdown(context.Background())

	result := rt.Pipeline().Process(context.Background(), &domain.ReasoningRequest{Query: "hello"})
	if result == nil || result.Text == "" {
		t.Fatalf("pipeline produced no answer: %+v", result)
	}
	if result.Degraded {
		t.Error("degraded result from a healthy provider")
	}
}
