/**
 * @description
 * Scheduled job implementations: model retraining and the periodic fraud scan.
 */
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/internal/risk"
)

const (
	JobRetrainModels = "retrain_models"
	JobFraudScan     = "fraud_scan"

	jobTimeout = 10 * time.Minute
)

// ModelRetrainer trains and installs new model artifacts. app.ModelService implements it.
type ModelRetrainer interface {
	Retrain(ctx context.Context) ([]*risk.Artifact, error)
}

// FraudScanner scores recent transactions that have not been scored yet.
// app.ReviewService implements it.
type FraudScanner interface {
	ScanRecent(ctx context.Context, limit int) (*domain.ScanResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	models    ModelRetrainer
	scanner   FraudScanner
	scanLimit int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(models ModelRetrainer, scanner FraudScanner, scanLimit int, collector *metrics.Collector, logger *slog.Logger) *Jobs {
	return &Jobs{
		models:    models,
		scanner:   scanner,
		scanLimit: scanLimit,
		metrics:   collector,
		logger:    logger,
	}
}

// RetrainModels retrains the fraud model and the categorizer. Kinds that fail keep
// serving their previous artifact.
func (j *Jobs) RetrainModels() {
	j.logger.Info("starting model retraining job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	installed, err := j.models.Retrain(ctx)
	for _, artifact := range installed {
		j.logger.Info("model retrained", "kind", artifact.Kind, "version", artifact.Version)
	}
	j.metrics.ObserveJob(JobRetrainModels, err)
	if err != nil {
		j.logger.Error("model retraining finished with errors", "installed", len(installed), "error", err)
		return
	}

	j.logger.Info("model retraining job finished", "installed", len(installed))
}

// ScanRecentTransactions runs the bulk fraud scan over the latest transactions.
func (j *Jobs) ScanRecentTransactions() {
	j.logger.Info("starting fraud scan job", "limit", j.scanLimit)
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := j.scanner.ScanRecent(ctx, j.scanLimit)
	j.metrics.ObserveJob(JobFraudScan, err)
	if err != nil {
		j.logger.Error("failed to scan recent transactions", "error", err)
		return
	}

	if result.Flagged > 0 {
		j.logger.Warn("fraud scan flagged transactions", "flagged", result.Flagged)
	}
	j.logger.Info("fraud scan job finished", "scanned", result.Scanned, "skipped", result.Skipped, "flagged", result.Flagged)
}
