package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// minStatsSamples is the fewest debits of one type needed to replace its amount stats.
const minStatsSamples = 5

// TrainingSource provides the history the trainer learns from.
type TrainingSource interface {
	ListDebitsSince(ctx context.Context, since time.Time) ([]domain.Transaction, error)
	ListLabeledDescriptions(ctx context.Context, since time.Time) ([]domain.LabeledDescription, error)
}

// Trainer rebuilds the fraud and categorizer artifacts from recent history, stores them
// and swaps them into the registry. The credit model has no labeled outcomes to learn
// from and keeps its current artifact.
type Trainer struct {
	source   TrainingSource
	store    ArtifactStore
	registry *Registry
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewTrainer(source TrainingSource, store ArtifactStore, registry *Registry, window time.Duration, logger *slog.Logger) *Trainer {
	return &Trainer{
		source:   source,
		store:    store,
		registry: registry,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

// Retrain trains every trainable kind concurrently. Runs are serialized; a kind that
// fails keeps its current model. The artifacts that were installed are returned.
func (t *Trainer) Retrain(ctx context.Context) ([]*Artifact, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	since := now.Add(-t.window)

	var (
		fraud, categorizer *Artifact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		artifact, err := t.trainFraud(gctx, since, now)
		if err != nil {
			return fmt.Errorf("train fraud model: %w", err)
		}
		fraud = artifact
		return nil
	})
	g.Go(func() error {
		artifact, err := t.trainCategorizer(gctx, since, now)
		if err != nil {
			return fmt.Errorf("train categorizer: %w", err)
		}
		categorizer = artifact
		return nil
	})
	trainErr := g.Wait()

	var installed []*Artifact
	for _, artifact := range []*Artifact{fraud, categorizer} {
		if artifact == nil {
			continue
		}
		if _, err := BuildModel(artifact); err != nil {
			t.logger.Error("trained artifact rejected", "kind", artifact.Kind, "error", err)
			continue
		}
		if err := t.store.Save(ctx, artifact); err != nil {
			t.logger.Error("failed to store trained artifact", "kind", artifact.Kind, "error", err)
			continue
		}
		if _, err := t.registry.Install(artifact); err != nil {
			t.logger.Error("failed to install trained artifact", "kind", artifact.Kind, "error", err)
			continue
		}
		installed = append(installed, artifact)
	}
	return installed, trainErr
}

func (t *Trainer) trainFraud(ctx context.Context, since, now time.Time) (*Artifact, error) {
	debits, err := t.source.ListDebitsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	payload := DefaultFraudPayload()
	if current, ok := t.registry.Get(KindFraud); ok {
		if fm, ok := current.(*FraudModel); ok {
			payload = fm.Payload()
		}
	}

	amounts := make(map[string][]float64)
	for _, tx := range debits {
		amount, _ := tx.Amount.Abs().Float64()
		amounts[string(tx.Type)] = append(amounts[string(tx.Type)], amount)
	}
	for txType, values := range amounts {
		if len(values) < minStatsSamples {
			continue
		}
		payload.AmountStats[txType] = computeStats(values)
	}

	t.logger.Info("fraud model trained", "samples", len(debits), "since", since)
	return NewArtifact(KindFraud, versionAt(KindFraud, now), now, payload)
}

func computeStats(values []float64) AmountStats {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return AmountStats{Mean: mean, StdDev: math.Sqrt(variance), Count: len(values)}
}

func (t *Trainer) trainCategorizer(ctx context.Context, since, now time.Time) (*Artifact, error) {
	samples, err := t.source.ListLabeledDescriptions(ctx, since)
	if err != nil {
		return nil, err
	}

	payload := DefaultCategorizerPayload()
	added := 0
	for _, sample := range samples {
		if payload.AddSample(sample.Description, sample.Category) {
			added++
		}
	}

	t.logger.Info("categorizer trained", "samples", added, "since", since)
	return NewArtifact(KindCategorizer, versionAt(KindCategorizer, now), now, payload)
}
