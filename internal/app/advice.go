package app

import "strings"

type adviceRule struct {
	phrase string
	answer string
}

// Rules are checked in order; the first phrase contained in the query wins.
var adviceRules = []adviceRule{
	{"how to save money", "Start by budgeting, cutting unnecessary expenses, and automating savings."},
	{"best investment options", "Consider stocks, bonds, mutual funds, or real estate based on your risk tolerance."},
	{"what is compound interest", "It's interest on both the initial principal and accumulated interest over time."},
	{"how to get out of debt", "Try the snowball or avalanche method, and avoid new debt."},
}

const defaultAdvice = "I can help with budgeting, saving, investing, and debt management. Ask me anything!"

// AdviceService answers a small set of personal finance questions.
type AdviceService struct{}

func NewAdviceService() *AdviceService {
	return &AdviceService{}
}

func (s *AdviceService) Reply(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	for _, rule := range adviceRules {
		if strings.Contains(normalized, rule.phrase) {
			return rule.answer
		}
	}
	return defaultAdvice
}
