package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/risk"
	"github.com/wirebuddy/ledger-service/internal/store"
)

// fixedNow is a Wednesday at noon, away from every time-of-day fraud rule.
var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.routingKey == routingKey {
			n++
		}
	}
	return n
}

type testEnv struct {
	repo      *store.MemoryRepository
	registry  *risk.Registry
	publisher *recordingPublisher
	events    *EventBus
	pipeline  *RiskPipeline
	ledger    *LedgerService
	review    *ReviewService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the services over an in-memory store. withModels installs the seed
// artifact of every model kind.
func newTestEnv(t *testing.T, withModels bool) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      store.NewMemoryRepository(),
		registry:  risk.NewRegistry(testLogger()),
		publisher: &recordingPublisher{},
	}
	if withModels {
		for _, kind := range risk.Kinds {
			installSeed(t, env.registry, kind)
		}
	}
	env.events = NewEventBus(env.publisher, "test.events", nil)
	env.pipeline = NewRiskPipeline(env.repo, env.registry, env.events, nil)
	env.pipeline.now = func() time.Time { return fixedNow }
	env.ledger = NewLedgerService(env.repo, store.NewRetrier(3, 0), env.pipeline, env.events, nil)
	env.ledger.now = func() time.Time { return fixedNow }
	env.review = NewReviewService(env.repo, env.pipeline)
	env.review.now = func() time.Time { return fixedNow }
	return env
}

func installSeed(t *testing.T, registry *risk.Registry, kind risk.Kind) {
	t.Helper()
	artifact, err := risk.DefaultArtifact(kind, fixedNow)
	if err != nil {
		t.Fatalf("default %s artifact: %v", kind, err)
	}
	if _, err := registry.Install(artifact); err != nil {
		t.Fatalf("install %s: %v", kind, err)
	}
}

func (env *testEnv) seedAccount(t *testing.T, number, username, balance string, createdAt time.Time) {
	t.Helper()
	err := env.repo.CreateAccount(context.Background(), &domain.Account{
		AccountNumber: number,
		Name:          "Holder " + number,
		Username:      username,
		Balance:       decimal.RequireFromString(balance),
		IsActive:      true,
		CreatedAt:     createdAt,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", number, err)
	}
}

func (env *testEnv) balance(t *testing.T, number string) decimal.Decimal {
	t.Helper()
	account, err := env.repo.FindAccount(context.Background(), number)
	if err != nil {
		t.Fatalf("find account %s: %v", number, err)
	}
	return account.Balance
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
