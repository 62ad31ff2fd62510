package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/internal/risk"
	"github.com/wirebuddy/ledger-service/internal/store"
)

// CreditAssessment is the on-demand credit score of an account.
type CreditAssessment struct {
	AccountNumber string                `json:"account_number"`
	Label         string                `json:"label"`
	Probability   float64               `json:"probability"`
	ModelVersion  string                `json:"model_version"`
	Features      domain.CreditFeatures `json:"features"`
}

// ModelService exposes the model lifecycle (retrain, reload) and the on-demand models.
type ModelService struct {
	repo      store.Repository
	registry  *risk.Registry
	artifacts risk.ArtifactStore
	trainer   *risk.Trainer
	events    *EventBus
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewModelService(repo store.Repository, registry *risk.Registry, artifacts risk.ArtifactStore, trainer *risk.Trainer, events *EventBus, collector *metrics.Collector) *ModelService {
	return &ModelService{
		repo:      repo,
		registry:  registry,
		artifacts: artifacts,
		trainer:   trainer,
		events:    events,
		metrics:   collector,
		now:       time.Now,
	}
}

// Retrain trains new artifacts, swaps them in and tells other instances to reload.
// Models that failed to train keep serving their previous version.
func (s *ModelService) Retrain(ctx context.Context) ([]*risk.Artifact, error) {
	installed, err := s.trainer.Retrain(ctx)
	for _, artifact := range installed {
		s.events.Emit(ctx, RoutingModelUpdated, domain.ModelUpdatedEvent{
			Kind:      string(artifact.Kind),
			Version:   artifact.Version,
			UpdatedAt: s.now().UTC(),
		})
	}
	return installed, err
}

// HandleModelUpdated reloads the artifact named by a model-updated event. Events for a
// version that is already live are acknowledged without touching the registry.
func (s *ModelService) HandleModelUpdated(ctx context.Context, event domain.ModelUpdatedEvent) error {
	kind := risk.Kind(event.Kind)
	if current, ok := s.registry.Get(kind); ok && current.Version() == event.Version {
		return nil
	}
	if err := s.registry.Reload(ctx, s.artifacts, kind); err != nil {
		return fmt.Errorf("reload %s: %w", kind, err)
	}
	return nil
}

// CreditScore runs the credit model over the account's history. Accounts without enough
// history return risk.ErrInsufficientData.
func (s *ModelService) CreditScore(ctx context.Context, accountNumber string) (*CreditAssessment, error) {
	features, err := s.repo.CreditFeatures(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	model, ok := s.registry.Get(risk.KindCredit)
	if !ok {
		s.metrics.ObservePrediction(string(risk.KindCredit), "unavailable")
		return nil, risk.ErrModelUnavailable
	}
	prediction, err := model.Predict(risk.CreditFeatureSet(*features))
	if err != nil {
		s.metrics.ObservePrediction(string(risk.KindCredit), "error")
		return nil, err
	}
	s.metrics.ObservePrediction(string(risk.KindCredit), "ok")
	log.Printf("level=info component=models model=credit account=%s label=%q version=%s", accountNumber, prediction.Label, prediction.ModelVersion)
	return &CreditAssessment{
		AccountNumber: accountNumber,
		Label:         prediction.Label,
		Probability:   prediction.Score,
		ModelVersion:  prediction.ModelVersion,
		Features:      *features,
	}, nil
}

// ModelVersions reports the version currently serving for each kind.
func (s *ModelService) ModelVersions() map[string]string {
	versions := make(map[string]string, len(risk.Kinds))
	for _, kind := range risk.Kinds {
		if model, ok := s.registry.Get(kind); ok {
			versions[string(kind)] = model.Version()
		}
	}
	return versions
}
