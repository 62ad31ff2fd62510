package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultScanLimit = 200
	scanConcurrency  = 8
)

// ReviewService manages the queue of transactions the fraud model flagged.
type ReviewService struct {
	repo     store.Repository
	pipeline *RiskPipeline
	now      func() time.Time
}

func NewReviewService(repo store.Repository, pipeline *RiskPipeline) *ReviewService {
	return &ReviewService{repo: repo, pipeline: pipeline, now: time.Now}
}

func (s *ReviewService) List(ctx context.Context, filter domain.FlagFilter) ([]domain.FlaggedTransactionView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidFlagStatus
	}
	return s.repo.ListFlags(ctx, filter)
}

func (s *ReviewService) Get(ctx context.Context, flagID string) (*domain.FlaggedTransaction, error) {
	return s.repo.FindFlag(ctx, flagID)
}

// Confirm marks a pending flag as fraud.
func (s *ReviewService) Confirm(ctx context.Context, flagID, reviewer string) (*domain.FlaggedTransaction, error) {
	return s.transition(ctx, flagID, domain.FlagConfirmed, reviewer)
}

// Approve marks a pending flag as legitimate.
func (s *ReviewService) Approve(ctx context.Context, flagID, reviewer string) (*domain.FlaggedTransaction, error) {
	return s.transition(ctx, flagID, domain.FlagApproved, reviewer)
}

func (s *ReviewService) transition(ctx context.Context, flagID string, status domain.FlagStatus, reviewer string) (*domain.FlaggedTransaction, error) {
	flag, err := s.repo.TransitionFlag(ctx, strings.TrimSpace(flagID), status, reviewer, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrFlagNotPending) {
			return nil, ErrInvalidFlagTransition
		}
		return nil, err
	}
	log.Printf("level=info component=review flag_id=%s reference_id=%s status=%s reviewer=%s msg=\"flag reviewed\"", flag.ID, flag.ReferenceID, status, reviewer)
	return flag, nil
}

// Delete removes a flag in any state.
func (s *ReviewService) Delete(ctx context.Context, flagID string) error {
	deleted, err := s.repo.DeleteFlag(ctx, strings.TrimSpace(flagID))
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrFlagNotFound
	}
	return nil
}

// ScanRecent scores the last limit transactions that are scorable and not yet queued.
// Running it twice over the same window never duplicates a flag.
func (s *ReviewService) ScanRecent(ctx context.Context, limit int) (*domain.ScanResult, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	candidates, err := s.repo.ListRecentTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}

	result := &domain.ScanResult{}
	flagged := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, candidate := range candidates {
		if !candidate.Transaction.Type.IsFraudScored() || candidate.HasFlag {
			result.Skipped++
			continue
		}
		result.Scanned++
		i, candidate := i, candidate
		g.Go(func() error {
			created, err := s.pipeline.ScoreFraud(gctx, candidate.Transaction, candidate.Account)
			if err != nil {
				return fmt.Errorf("score %s: %w", candidate.Transaction.ReferenceID, err)
			}
			flagged[i] = created
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, f := range flagged {
		if f {
			result.Flagged++
		}
	}
	log.Printf("level=info component=review op=scan limit=%d scanned=%d skipped=%d flagged=%d msg=\"bulk fraud scan finished\"", limit, result.Scanned, result.Skipped, result.Flagged)
	return result, nil
}
