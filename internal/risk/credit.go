package risk

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/wirebuddy/ledger-service/internal/domain"
)

// Credit labels.
const (
	CreditGood   = "good credit risk"
	CreditHigher = "higher risk"
)

// Credit feature names, in the order the model expects them.
var creditFeatureNames = []string{"balance", "transaction_count", "average_amount", "historical_max_balance"}

// CreditFeatureSet converts the stored aggregates into model features. Nil aggregates
// stay nil so Predict can report ErrInsufficientData.
func CreditFeatureSet(f domain.CreditFeatures) Features {
	return Features{
		"balance":                f.Balance,
		"transaction_count":      f.TransactionCount,
		"average_amount":         f.AverageAmount,
		"historical_max_balance": f.HistoricalMaxBalance,
	}
}

// CreditPayload is a logistic regression over scaled features.
type CreditPayload struct {
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
	Scale     map[string]float64 `json:"scale"`
	Threshold float64            `json:"threshold"`
}

// CreditModel predicts a binary credit-risk label.
type CreditModel struct {
	version string
	payload CreditPayload
}

func NewCreditModel(artifact *Artifact) (*CreditModel, error) {
	var payload CreditPayload
	if err := json.Unmarshal(artifact.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: credit payload: %v", ErrInvalidArtifact, err)
	}
	for _, name := range creditFeatureNames {
		if _, ok := payload.Weights[name]; !ok {
			return nil, fmt.Errorf("%w: credit weight %q missing", ErrInvalidArtifact, name)
		}
	}
	if payload.Threshold <= 0 || payload.Threshold >= 1 {
		payload.Threshold = 0.5
	}
	return &CreditModel{version: artifact.Version, payload: payload}, nil
}

func (m *CreditModel) Kind() Kind      { return KindCredit }
func (m *CreditModel) Version() string { return m.version }

func (m *CreditModel) Predict(features Features) (Prediction, error) {
	z := m.payload.Intercept
	for _, name := range creditFeatureNames {
		value, err := features.Float(name)
		if err != nil {
			return Prediction{}, err
		}
		if scale := m.payload.Scale[name]; scale > 0 {
			value /= scale
		}
		z += m.payload.Weights[name] * value
	}

	probability := 1 / (1 + math.Exp(-z))
	good := probability >= m.payload.Threshold
	label := CreditHigher
	if good {
		label = CreditGood
	}
	return Prediction{
		Label:        label,
		Positive:     good,
		Score:        probability,
		Confidence:   math.Max(probability, 1-probability),
		ModelVersion: m.version,
	}, nil
}

// DefaultCreditPayload is the seed credit model.
func DefaultCreditPayload() CreditPayload {
	return CreditPayload{
		Intercept: -1.2,
		Weights: map[string]float64{
			"balance":                1.1,
			"transaction_count":      0.4,
			"average_amount":         -0.3,
			"historical_max_balance": 0.6,
		},
		Scale: map[string]float64{
			"balance":                1000,
			"transaction_count":      20,
			"average_amount":         500,
			"historical_max_balance": 2000,
		},
		Threshold: 0.5,
	}
}
