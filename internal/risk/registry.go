package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Registry holds the live model of each kind. Reads never block; Swap replaces a model
// atomically so in-flight predictions finish on the model they started with.
type Registry struct {
	slots  map[Kind]*atomic.Pointer[RiskModel]
	logger *slog.Logger
}

// NewRegistry creates a registry with every kind empty.
func NewRegistry(logger *slog.Logger) *Registry {
	slots := make(map[Kind]*atomic.Pointer[RiskModel], len(Kinds))
	for _, kind := range Kinds {
		slots[kind] = &atomic.Pointer[RiskModel]{}
	}
	return &Registry{slots: slots, logger: logger}
}

// Get returns the live model of a kind, or false when none is loaded.
func (r *Registry) Get(kind Kind) (RiskModel, bool) {
	slot, ok := r.slots[kind]
	if !ok {
		return nil, false
	}
	model := slot.Load()
	if model == nil {
		return nil, false
	}
	return *model, true
}

// Swap installs model as the live model of its kind and returns the previous one.
func (r *Registry) Swap(model RiskModel) RiskModel {
	slot, ok := r.slots[model.Kind()]
	if !ok {
		return nil
	}
	previous := slot.Swap(&model)
	r.logger.Info("model swapped", "kind", model.Kind(), "version", model.Version())
	if previous == nil {
		return nil
	}
	return *previous
}

// Install builds a model from an artifact and swaps it in.
func (r *Registry) Install(artifact *Artifact) (RiskModel, error) {
	model, err := BuildModel(artifact)
	if err != nil {
		return nil, err
	}
	r.Swap(model)
	return model, nil
}

// Reload fetches the artifact of one kind from the store and swaps it in. The current
// model stays live when loading fails.
func (r *Registry) Reload(ctx context.Context, store ArtifactStore, kind Kind) error {
	artifact, err := store.Load(ctx, kind)
	if err != nil {
		return fmt.Errorf("load %s artifact: %w", kind, err)
	}
	if current, ok := r.Get(kind); ok && current.Version() == artifact.Version {
		return nil
	}
	_, err = r.Install(artifact)
	return err
}

// Bootstrap loads every kind from the store, writing the seed artifact for kinds that
// have none yet. Failures are logged and leave that kind empty, which the callers
// treat as fail-open.
func (r *Registry) Bootstrap(ctx context.Context, store ArtifactStore, now time.Time) {
	for _, kind := range Kinds {
		artifact, err := store.Load(ctx, kind)
		if errors.Is(err, ErrArtifactNotFound) {
			artifact, err = DefaultArtifact(kind, now)
			if err == nil {
				if saveErr := store.Save(ctx, artifact); saveErr != nil {
					r.logger.Warn("failed to persist seed model", "kind", kind, "error", saveErr)
				}
			}
		}
		if err != nil {
			r.logger.Error("model not loaded, scoring for this kind is disabled", "kind", kind, "error", err)
			continue
		}
		if _, err := r.Install(artifact); err != nil {
			r.logger.Error("model artifact rejected", "kind", kind, "version", artifact.Version, "error", err)
		}
	}
}

// DefaultArtifact returns the seed artifact of a kind.
func DefaultArtifact(kind Kind, now time.Time) (*Artifact, error) {
	version := "seed-1"
	switch kind {
	case KindFraud:
		return NewArtifact(kind, version, now, DefaultFraudPayload())
	case KindCategorizer:
		return NewArtifact(kind, version, now, DefaultCategorizerPayload())
	case KindCredit:
		return NewArtifact(kind, version, now, DefaultCreditPayload())
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, kind)
	}
}
