package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

// Amount buckets used as a coarse fraud feature.
const (
	BucketSmall  = "small"
	BucketMedium = "medium"
	BucketLarge  = "large"
)

// AmountBucket classifies an absolute amount: small <100, medium <1000, large otherwise.
func AmountBucket(amount float64) string {
	amount = math.Abs(amount)
	switch {
	case amount < 100:
		return BucketSmall
	case amount < 1000:
		return BucketMedium
	default:
		return BucketLarge
	}
}

// FraudFeatures derives the fraud model inputs from a recorded row and its account.
// Hour and day of week are read in loc, the customers' local time; a nil loc means UTC.
// Day of week runs from 0 (Monday) to 6 (Sunday).
func FraudFeatures(tx domain.Transaction, account domain.Account, loc *time.Location) Features {
	at := tx.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if loc == nil {
		loc = time.UTC
	}
	at = at.In(loc)
	amount, _ := tx.Amount.Abs().Float64()
	weekday := (int(at.Weekday()) + 6) % 7

	return Features{
		"amount":           amount,
		"type":             string(tx.Type),
		"hour":             float64(at.Hour()),
		"day_of_week":      float64(weekday),
		"is_weekend":       weekday >= 5,
		"account_age_days": float64(account.AgeDays(at)),
		"amount_bucket":    AmountBucket(amount),
	}
}

// FraudRule is one weighted boolean expression over the fraud features.
type FraudRule struct {
	Name       string  `json:"name"`
	Expression string  `json:"expression"`
	Weight     float64 `json:"weight"`
}

// AmountStats summarise historical debit amounts of one transaction type.
type AmountStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// FraudPayload is the artifact payload of the fraud model.
type FraudPayload struct {
	Threshold    float64                `json:"threshold"`
	Rules        []FraudRule            `json:"rules"`
	AmountStats  map[string]AmountStats `json:"amount_stats"`
	ZScoreWeight float64                `json:"zscore_weight"`
	ZScoreCap    float64                `json:"zscore_cap"`
}

type compiledRule struct {
	FraudRule
	expr *govaluate.EvaluableExpression
}

// FraudModel scores a debit by summing the weights of matching rules plus a component for
// how far the amount sits above the historical mean of its type.
type FraudModel struct {
	version string
	payload FraudPayload
	rules   []compiledRule
}

// NewFraudModel compiles the rule expressions of a fraud artifact.
func NewFraudModel(artifact *Artifact) (*FraudModel, error) {
	var payload FraudPayload
	if err := json.Unmarshal(artifact.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: fraud payload: %v", ErrInvalidArtifact, err)
	}
	if payload.Threshold <= 0 {
		return nil, fmt.Errorf("%w: fraud threshold must be positive", ErrInvalidArtifact)
	}

	rules := make([]compiledRule, 0, len(payload.Rules))
	for _, rule := range payload.Rules {
		expr, err := govaluate.NewEvaluableExpression(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidArtifact, rule.Name, err)
		}
		rules = append(rules, compiledRule{FraudRule: rule, expr: expr})
	}
	return &FraudModel{version: artifact.Version, payload: payload, rules: rules}, nil
}

func (m *FraudModel) Kind() Kind      { return KindFraud }
func (m *FraudModel) Version() string { return m.version }

// Payload returns a copy of the trained parameters, used as the base for retraining.
func (m *FraudModel) Payload() FraudPayload {
	payload := m.payload
	payload.Rules = append([]FraudRule(nil), m.payload.Rules...)
	payload.AmountStats = make(map[string]AmountStats, len(m.payload.AmountStats))
	for k, v := range m.payload.AmountStats {
		payload.AmountStats[k] = v
	}
	return payload
}

func (m *FraudModel) Predict(features Features) (Prediction, error) {
	amount, err := features.Float("amount")
	if err != nil {
		return Prediction{}, err
	}

	var (
		score   float64
		reasons []string
	)
	for _, rule := range m.rules {
		result, err := rule.expr.Evaluate(features)
		if err != nil {
			return Prediction{}, fmt.Errorf("evaluate rule %q: %w", rule.Name, err)
		}
		matched, ok := result.(bool)
		if !ok {
			return Prediction{}, fmt.Errorf("rule %q returned %T, want bool", rule.Name, result)
		}
		if matched {
			score += rule.Weight
			reasons = append(reasons, rule.Name)
		}
	}

	if stats, ok := m.payload.AmountStats[features.String("type")]; ok && stats.StdDev > 0 {
		z := (amount - stats.Mean) / stats.StdDev
		if z > 0 {
			if m.payload.ZScoreCap > 0 {
				z = math.Min(z, m.payload.ZScoreCap)
			}
			if contribution := z * m.payload.ZScoreWeight; contribution > 0 {
				score += contribution
				reasons = append(reasons, fmt.Sprintf("amount_zscore=%.2f", z))
			}
		}
	}

	score = math.Min(score, 100)
	flagged := score >= m.payload.Threshold
	label := "not flagged"
	if flagged {
		label = "flagged"
	}
	return Prediction{
		Label:        label,
		Positive:     flagged,
		Score:        score,
		Confidence:   score / 100,
		Reasons:      reasons,
		ModelVersion: m.version,
	}, nil
}

// DefaultFraudPayload is the seed model used before the first retraining.
func DefaultFraudPayload() FraudPayload {
	return FraudPayload{
		Threshold: 60,
		Rules: []FraudRule{
			{Name: "large_amount", Expression: "amount_bucket == 'large'", Weight: 25},
			{Name: "very_large_amount", Expression: "amount >= 5000", Weight: 30},
			{Name: "night_time", Expression: "hour >= 23 || hour <= 4", Weight: 20},
			{Name: "new_account", Expression: "account_age_days < 7", Weight: 20},
			{Name: "weekend_large", Expression: "is_weekend && amount >= 1000", Weight: 10},
		},
		AmountStats: map[string]AmountStats{
			string(domain.TxWithdrawal):  {Mean: 150, StdDev: 200},
			string(domain.TxTransferOut): {Mean: 200, StdDev: 300},
		},
		ZScoreWeight: 10,
		ZScoreCap:    4,
	}
}

func versionAt(kind Kind, at time.Time) string {
	return strings.Join([]string{string(kind), at.UTC().Format("20060102T150405Z")}, "-")
}
