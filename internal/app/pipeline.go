/**
 * @description
 * This file contains the post-commit risk pipeline. After the ledger commits a unit of
 * work, every recorded row is categorised and the debit rows that leave the customer's
 * control (withdrawals and outgoing transfers) are fraud-scored. A model that is
 * missing or faulty never blocks money movement: the pipeline fails open and logs.
 *
 * @dependencies
 * - internal/risk: model registry and feature builders.
 * - internal/metrics: prediction counters.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/internal/risk"
)

const pipelineTimeout = 10 * time.Second

// RiskStore is the slice of the repository the pipeline writes to.
type RiskStore interface {
	SaveTransactionCategory(ctx context.Context, category domain.TransactionCategory) error
	CreateFlag(ctx context.Context, flag *domain.FlaggedTransaction) (bool, error)
}

type RiskPipeline struct {
	store    RiskStore
	registry *risk.Registry
	events   *EventBus
	metrics  *metrics.Collector
	location *time.Location
	now      func() time.Time
}

func NewRiskPipeline(store RiskStore, registry *risk.Registry, events *EventBus, collector *metrics.Collector) *RiskPipeline {
	return &RiskPipeline{
		store:    store,
		registry: registry,
		events:   events,
		metrics:  collector,
		location: time.UTC,
		now:      time.Now,
	}
}

// SetScoringLocation sets the time zone the fraud model reads hour and weekday in.
func (p *RiskPipeline) SetScoringLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	p.location = loc
}

// Process categorises every row of entry and fraud-scores the scorable ones. It reports
// whether a new review item was created.
func (p *RiskPipeline) Process(ctx context.Context, entry *domain.LedgerEntry) bool {
	if p == nil || entry == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pipelineTimeout)
	defer cancel()

	flagged := false
	for _, row := range entry.Rows {
		p.Categorize(ctx, row)
		if !row.Type.IsFraudScored() || row.AccountNumber != entry.Account.AccountNumber {
			continue
		}
		created, err := p.ScoreFraud(ctx, row, entry.Account)
		if err != nil {
			log.Printf("level=error component=risk_pipeline reference_id=%s err=%v msg=\"failed to enqueue flagged transaction\"", row.ReferenceID, err)
			continue
		}
		flagged = flagged || created
	}
	return flagged
}

// Categorize labels one row. Any model fault stores Uncategorized.
func (p *RiskPipeline) Categorize(ctx context.Context, tx domain.Transaction) domain.TransactionCategory {
	category := domain.TransactionCategory{
		TransactionID: tx.ID,
		Category:      risk.CategoryUncategorized,
	}

	model, ok := p.registry.Get(risk.KindCategorizer)
	switch {
	case !ok:
		p.metrics.ObservePrediction(string(risk.KindCategorizer), "unavailable")
	default:
		prediction, err := model.Predict(risk.Features{"description": tx.Description})
		if err != nil {
			p.metrics.ObservePrediction(string(risk.KindCategorizer), "error")
			log.Printf("level=warn component=risk_pipeline model=categorizer transaction_id=%d err=%v msg=\"categorisation failed; storing Uncategorized\"", tx.ID, err)
		} else {
			p.metrics.ObservePrediction(string(risk.KindCategorizer), "ok")
			category.Category = prediction.Label
			category.Confidence = prediction.Confidence
			category.ModelVersion = prediction.ModelVersion
		}
	}

	if tx.ID != 0 {
		if err := p.store.SaveTransactionCategory(ctx, category); err != nil {
			log.Printf("level=warn component=risk_pipeline transaction_id=%d err=%v msg=\"failed to store category\"", tx.ID, err)
		}
	}
	return category
}

// ScoreFraud runs the fraud model on tx and enqueues a pending review item when it is
// flagged. It returns true only when a new item was inserted; a reference that is already
// queued is left as it is.
func (p *RiskPipeline) ScoreFraud(ctx context.Context, tx domain.Transaction, account domain.Account) (bool, error) {
	model, ok := p.registry.Get(risk.KindFraud)
	if !ok {
		p.metrics.ObservePrediction(string(risk.KindFraud), "unavailable")
		log.Printf("level=warn component=risk_pipeline model=fraud reference_id=%s msg=\"no fraud model loaded; not flagged\"", tx.ReferenceID)
		return false, nil
	}

	prediction, err := model.Predict(risk.FraudFeatures(tx, account, p.location))
	if err != nil {
		p.metrics.ObservePrediction(string(risk.KindFraud), "error")
		log.Printf("level=warn component=risk_pipeline model=fraud reference_id=%s err=%v msg=\"fraud scoring failed; not flagged\"", tx.ReferenceID, err)
		return false, nil
	}
	p.metrics.ObservePrediction(string(risk.KindFraud), "ok")
	p.metrics.ObserveFraudScore(prediction.Score)
	if !prediction.Positive {
		return false, nil
	}

	flag := &domain.FlaggedTransaction{
		ReferenceID:   tx.ReferenceID,
		TransactionID: tx.ID,
		AccountNumber: tx.AccountNumber,
		Score:         prediction.Score,
		ModelVersion:  prediction.ModelVersion,
		Status:        domain.FlagPending,
		FlaggedAt:     p.now().UTC(),
	}
	created, err := p.store.CreateFlag(ctx, flag)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	p.metrics.FlagCreated()
	log.Printf("level=info component=risk_pipeline reference_id=%s account=%s score=%.1f model_version=%s reasons=%q msg=\"transaction flagged for review\"",
		tx.ReferenceID, tx.AccountNumber, prediction.Score, prediction.ModelVersion, prediction.Reasons)
	p.events.Emit(ctx, RoutingFlagged, domain.FlaggedEvent{
		FlagID:        flag.ID,
		ReferenceID:   flag.ReferenceID,
		AccountNumber: flag.AccountNumber,
		Amount:        tx.Amount,
		Score:         flag.Score,
		ModelVersion:  flag.ModelVersion,
		FlaggedAt:     flag.FlaggedAt,
	})
	return true, nil
}
