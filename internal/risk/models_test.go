package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

func mustArtifact(t *testing.T, kind Kind) *Artifact {
	t.Helper()
	artifact, err := DefaultArtifact(kind, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("default %s artifact: %v", kind, err)
	}
	return artifact
}

func TestAmountBucket(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{99.99, BucketSmall},
		{-50, BucketSmall},
		{100, BucketMedium},
		{999.99, BucketMedium},
		{1000, BucketLarge},
	}
	for _, tt := range tests {
		if got := AmountBucket(tt.amount); got != tt.want {
			t.Fatalf("AmountBucket(%v) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestFraudFeatures(t *testing.T) {
	saturday := time.Date(2026, 10, 17, 23, 30, 0, 0, time.UTC)
	tx := domain.Transaction{Type: domain.TxWithdrawal, Amount: decimal.NewFromInt(-1500), CreatedAt: saturday}
	account := domain.Account{CreatedAt: saturday.AddDate(0, 0, -3)}

	f := FraudFeatures(tx, account, nil)
	if f["amount"] != 1500.0 || f["hour"] != 23.0 || f["day_of_week"] != 5.0 {
		t.Fatalf("unexpected features: %v", f)
	}
	if f["is_weekend"] != true || f["amount_bucket"] != BucketLarge || f["account_age_days"] != 3.0 {
		t.Fatalf("unexpected features: %v", f)
	}
}

func TestFraudFeatures_UsesScoringLocation(t *testing.T) {
	// 22:30 UTC on a Friday is already Saturday morning in Nairobi.
	friday := time.Date(2026, 10, 16, 22, 30, 0, 0, time.UTC)
	nairobi := time.FixedZone("EAT", 3*60*60)
	tx := domain.Transaction{Type: domain.TxWithdrawal, Amount: decimal.NewFromInt(-50), CreatedAt: friday}

	tests := []struct {
		name    string
		loc     *time.Location
		hour    float64
		weekend bool
	}{
		{name: "utc", loc: time.UTC, hour: 22, weekend: false},
		{name: "nil defaults to utc", loc: nil, hour: 22, weekend: false},
		{name: "east africa", loc: nairobi, hour: 1, weekend: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FraudFeatures(tx, domain.Account{CreatedAt: friday}, tt.loc)
			if f["hour"] != tt.hour || f["is_weekend"] != tt.weekend {
				t.Fatalf("unexpected features: %v", f)
			}
		})
	}
}

func TestFraudModel_Predict(t *testing.T) {
	model, err := NewFraudModel(mustArtifact(t, KindFraud))
	if err != nil {
		t.Fatalf("build fraud model: %v", err)
	}

	night := time.Date(2026, 10, 14, 2, 0, 0, 0, time.UTC)
	risky := FraudFeatures(
		domain.Transaction{Type: domain.TxWithdrawal, Amount: decimal.NewFromInt(-6000), CreatedAt: night},
		domain.Account{CreatedAt: night.AddDate(0, 0, -1)},
		time.UTC,
	)
	prediction, err := model.Predict(risky)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !prediction.Positive || prediction.Label != "flagged" {
		t.Fatalf("expected flagged, got %+v", prediction)
	}
	if prediction.Score > 100 {
		t.Fatalf("score must be capped at 100, got %v", prediction.Score)
	}

	noon := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	routine := FraudFeatures(
		domain.Transaction{Type: domain.TxWithdrawal, Amount: decimal.NewFromInt(-40), CreatedAt: noon},
		domain.Account{CreatedAt: noon.AddDate(-1, 0, 0)},
		time.UTC,
	)
	prediction, err = model.Predict(routine)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if prediction.Positive {
		t.Fatalf("expected not flagged, got %+v", prediction)
	}
}

func TestNewFraudModel_RejectsBadExpression(t *testing.T) {
	payload := DefaultFraudPayload()
	payload.Rules = append(payload.Rules, FraudRule{Name: "broken", Expression: "amount >>> (", Weight: 1})
	artifact, err := NewArtifact(KindFraud, "bad", time.Now(), payload)
	if err != nil {
		t.Fatalf("new artifact: %v", err)
	}
	if _, err := NewFraudModel(artifact); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact, got %v", err)
	}
}

func TestCategorizer_Predict(t *testing.T) {
	model, err := NewCategorizer(mustArtifact(t, KindCategorizer))
	if err != nil {
		t.Fatalf("build categorizer: %v", err)
	}

	tests := []struct {
		description string
		want        string
	}{
		{"Pizza and coffee lunch", CategoryFood},
		{"Uber ride to campus", CategoryTransport},
		{"Netflix subscription", CategoryEntertainment},
		{"ECG electricity prepaid", CategoryUtilities},
		{"Jumia purchase shoes", CategoryShopping},
		{"To: 0241234567", CategoryUncategorized},
		{"", CategoryUncategorized},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			prediction, err := model.Predict(Features{"description": tt.description})
			if err != nil {
				t.Fatalf("predict: %v", err)
			}
			if prediction.Label != tt.want {
				t.Fatalf("got %s (confidence %.2f), want %s", prediction.Label, prediction.Confidence, tt.want)
			}
		})
	}
}

func TestCreditModel_Predict(t *testing.T) {
	model, err := NewCreditModel(mustArtifact(t, KindCredit))
	if err != nil {
		t.Fatalf("build credit model: %v", err)
	}

	balance, count, avg, peak := 5000.0, 40.0, 120.0, 8000.0
	prediction, err := model.Predict(CreditFeatureSet(domain.CreditFeatures{
		Balance: &balance, TransactionCount: &count, AverageAmount: &avg, HistoricalMaxBalance: &peak,
	}))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if prediction.Label != CreditGood {
		t.Fatalf("expected good credit, got %+v", prediction)
	}

	zero := 0.0
	_, err = model.Predict(CreditFeatureSet(domain.CreditFeatures{Balance: &zero, TransactionCount: &zero}))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestDecodeArtifact_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"missing version", `{"kind":"fraud","payload":{}}`},
		{"missing payload", `{"kind":"fraud","version":"v1"}`},
		{"unknown kind", `{"kind":"weather","version":"v1","payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeArtifact([]byte(tt.data)); !errors.Is(err, ErrInvalidArtifact) {
				t.Fatalf("expected ErrInvalidArtifact, got %v", err)
			}
		})
	}
}
