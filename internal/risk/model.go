/**
 * @description
 * This package holds the scoring models that run alongside the ledger: the fraud scorer,
 * the transaction categorizer, the credit scorer and the savings forecaster. Models are
 * built from versioned JSON artifacts and are swapped atomically by the Registry.
 *
 * Callers treat every model as optional. A missing or failing model never blocks a
 * ledger write: fraud degrades to "not flagged" and categorization to "Uncategorized".
 *
 * @dependencies
 * - github.com/Knetic/govaluate: Fraud rule expressions.
 * - github.com/redis/go-redis/v9: Shared artifact store.
 * - golang.org/x/sync/errgroup: Parallel retraining.
 */

package risk

import (
	"errors"
	"fmt"
)

// Kind identifies a model family. Each kind has at most one live model.
type Kind string

const (
	KindFraud       Kind = "fraud"
	KindCategorizer Kind = "categorizer"
	KindCredit      Kind = "credit"
)

// Kinds lists every artifact-backed model kind.
var Kinds = []Kind{KindFraud, KindCategorizer, KindCredit}

var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidArtifact  = errors.New("invalid model artifact")
	ErrArtifactNotFound = errors.New("model artifact not found")
)

// Features are the named inputs of a prediction. Values are float64, string or bool so
// they can be passed straight to rule expressions.
type Features map[string]interface{}

// Float returns a numeric feature.
func (f Features) Float(name string) (float64, error) {
	raw, ok := f[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: missing feature %q", ErrInsufficientData, name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case *float64:
		if v == nil {
			return 0, fmt.Errorf("%w: missing feature %q", ErrInsufficientData, name)
		}
		return *v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("feature %q has non-numeric type %T", name, raw)
	}
}

// String returns a text feature, or "" when absent.
func (f Features) String(name string) string {
	if v, ok := f[name].(string); ok {
		return v
	}
	return ""
}

// Prediction is the output of a RiskModel.
type Prediction struct {
	Label        string   `json:"label"`
	Positive     bool     `json:"positive"`
	Score        float64  `json:"score"`
	Confidence   float64  `json:"confidence"`
	Reasons      []string `json:"reasons,omitempty"`
	ModelVersion string   `json:"model_version"`
}

// RiskModel is a loaded, immutable model. Implementations must be safe for concurrent use.
type RiskModel interface {
	Kind() Kind
	Version() string
	Predict(features Features) (Prediction, error)
}
