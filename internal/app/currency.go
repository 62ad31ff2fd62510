package app

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/pkg/fxclient"
)

const (
	ratesCacheTTL = 10 * time.Minute
	// Used when a live table has no GHS entry.
	defaultGHSRate = 11.50
)

// SupportedCurrencies are the currencies conversion accepts, all quoted against USD.
var SupportedCurrencies = []string{"USD", "EUR", "GBP", "KES", "GHS"}

var fallbackRates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.93,
	"GBP": 0.79,
	"KES": 141.50,
	"GHS": 11.90,
}

// RateSource fetches a USD-based rate table.
type RateSource interface {
	LatestRates(ctx context.Context) (*fxclient.LatestRatesResponse, error)
}

// Conversion is a display-only currency conversion; it never touches balances.
type Conversion struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Result decimal.Decimal `json:"result"`
	Source string          `json:"source"`
}

type CurrencyService struct {
	source RateSource

	mu        sync.Mutex
	rates     map[string]float64
	fetchedAt time.Time
	now       func() time.Time
}

func NewCurrencyService(source RateSource) *CurrencyService {
	return &CurrencyService{source: source, now: time.Now}
}

// rateTable returns live rates when the feed answers and the fallback table otherwise.
// Live tables are cached for ratesCacheTTL.
func (s *CurrencyService) rateTable(ctx context.Context) (map[string]float64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rates != nil && s.now().Sub(s.fetchedAt) < ratesCacheTTL {
		return s.rates, "live"
	}
	if s.source == nil {
		return fallbackRates, "fallback"
	}

	resp, err := s.source.LatestRates(ctx)
	if err != nil {
		log.Printf("level=warn component=currency err=%v msg=\"rate feed unavailable; using fallback table\"", err)
		return fallbackRates, "fallback"
	}

	rates := make(map[string]float64, len(SupportedCurrencies))
	for _, code := range SupportedCurrencies {
		if rate, ok := resp.Rates[code]; ok && rate > 0 {
			rates[code] = rate
		}
	}
	if _, ok := rates["GHS"]; !ok {
		rates["GHS"] = defaultGHSRate
	}
	rates["USD"] = 1.0
	s.rates, s.fetchedAt = rates, s.now()
	return rates, "live"
}

// Convert converts amount between two supported currencies via USD.
func (s *CurrencyService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (*Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !isSupportedCurrency(from) || !isSupportedCurrency(to) {
		return nil, ErrUnsupportedCurrency
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	rates, source := s.rateTable(ctx)
	fromRate, okFrom := rates[from]
	toRate, okTo := rates[to]
	if !okFrom || !okTo {
		// A live table can omit a currency the fallback knows.
		fromRate, okFrom = fallbackRates[from]
		toRate, okTo = fallbackRates[to]
		source = "fallback"
		if !okFrom || !okTo {
			return nil, ErrUnsupportedCurrency
		}
	}

	result := amount.Div(decimal.NewFromFloat(fromRate)).Mul(decimal.NewFromFloat(toRate)).Round(2)
	return &Conversion{Amount: amount, From: from, To: to, Result: result, Source: source}, nil
}

func isSupportedCurrency(code string) bool {
	for _, supported := range SupportedCurrencies {
		if code == supported {
			return true
		}
	}
	return false
}
