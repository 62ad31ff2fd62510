package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Transaction categories produced by the categorizer.
const (
	CategoryFood          = "Food"
	CategoryTransport     = "Transport"
	CategoryEntertainment = "Entertainment"
	CategoryUtilities     = "Utilities"
	CategoryShopping      = "Shopping"
	CategoryUncategorized = "Uncategorized"
)

// Categories is the fixed label set, excluding the fallback.
var Categories = []string{CategoryFood, CategoryTransport, CategoryEntertainment, CategoryUtilities, CategoryShopping}

// CategorizerPayload holds multinomial naive Bayes counts.
type CategorizerPayload struct {
	Alpha          float64                   `json:"alpha"`
	DocCounts      map[string]int            `json:"doc_counts"`
	TokenCounts    map[string]map[string]int `json:"token_counts"`
	MinConfidence  float64                   `json:"min_confidence"`
	vocabulary     map[string]struct{}
	totalTokens    map[string]int
	totalDocuments int
}

// Categorizer maps a free-text description onto one of Categories.
type Categorizer struct {
	version string
	payload CategorizerPayload
}

// NewCategorizer builds a categorizer from its artifact.
func NewCategorizer(artifact *Artifact) (*Categorizer, error) {
	var payload CategorizerPayload
	if err := json.Unmarshal(artifact.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: categorizer payload: %v", ErrInvalidArtifact, err)
	}
	if len(payload.DocCounts) == 0 {
		return nil, fmt.Errorf("%w: categorizer has no classes", ErrInvalidArtifact)
	}
	if payload.Alpha <= 0 {
		payload.Alpha = 1
	}
	payload.index()
	return &Categorizer{version: artifact.Version, payload: payload}, nil
}

func (p *CategorizerPayload) index() {
	p.vocabulary = make(map[string]struct{})
	p.totalTokens = make(map[string]int)
	p.totalDocuments = 0
	for class, docs := range p.DocCounts {
		p.totalDocuments += docs
		for token, count := range p.TokenCounts[class] {
			p.vocabulary[token] = struct{}{}
			p.totalTokens[class] += count
		}
	}
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
// Tokens shorter than two characters are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func (c *Categorizer) Kind() Kind      { return KindCategorizer }
func (c *Categorizer) Version() string { return c.version }

// Payload returns a deep copy of the counts, used as the base for retraining.
func (c *Categorizer) Payload() CategorizerPayload {
	out := CategorizerPayload{
		Alpha:         c.payload.Alpha,
		MinConfidence: c.payload.MinConfidence,
		DocCounts:     make(map[string]int, len(c.payload.DocCounts)),
		TokenCounts:   make(map[string]map[string]int, len(c.payload.TokenCounts)),
	}
	for class, n := range c.payload.DocCounts {
		out.DocCounts[class] = n
	}
	for class, tokens := range c.payload.TokenCounts {
		copied := make(map[string]int, len(tokens))
		for token, n := range tokens {
			copied[token] = n
		}
		out.TokenCounts[class] = copied
	}
	return out
}

// Predict reads the "description" feature. Descriptions with no known token are
// Uncategorized.
func (c *Categorizer) Predict(features Features) (Prediction, error) {
	p := &c.payload
	var known []string
	for _, token := range Tokenize(features.String("description")) {
		if _, ok := p.vocabulary[token]; ok {
			known = append(known, token)
		}
	}
	if len(known) == 0 {
		return Prediction{Label: CategoryUncategorized, ModelVersion: c.version}, nil
	}

	classes := make([]string, 0, len(p.DocCounts))
	for class := range p.DocCounts {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	vocab := float64(len(p.vocabulary))
	logScores := make([]float64, len(classes))
	for i, class := range classes {
		score := math.Log(float64(p.DocCounts[class]+1) / float64(p.totalDocuments+len(classes)))
		denominator := float64(p.totalTokens[class]) + p.Alpha*vocab
		for _, token := range known {
			score += math.Log((float64(p.TokenCounts[class][token]) + p.Alpha) / denominator)
		}
		logScores[i] = score
	}

	best := 0
	for i := range logScores {
		if logScores[i] > logScores[best] {
			best = i
		}
	}
	var norm float64
	for _, s := range logScores {
		norm += math.Exp(s - logScores[best])
	}
	confidence := 1 / norm

	label := classes[best]
	if confidence < p.MinConfidence {
		label = CategoryUncategorized
	}
	return Prediction{
		Label:        label,
		Positive:     label != CategoryUncategorized,
		Score:        logScores[best],
		Confidence:   confidence,
		ModelVersion: c.version,
	}, nil
}

// seedVocabulary gives each category a starting set of keywords.
var seedVocabulary = map[string][]string{
	CategoryFood:          {"food", "restaurant", "pizza", "lunch", "dinner", "breakfast", "groceries", "grocery", "kfc", "chop", "coffee", "waakye", "jollof", "bakery"},
	CategoryTransport:     {"uber", "bolt", "taxi", "trotro", "bus", "fuel", "petrol", "diesel", "fare", "transport", "ride", "parking"},
	CategoryEntertainment: {"movie", "cinema", "netflix", "spotify", "concert", "game", "games", "music", "showmax", "ticket", "club"},
	CategoryUtilities:     {"electricity", "ecg", "water", "bill", "internet", "airtime", "data", "utility", "prepaid", "gas", "rent"},
	CategoryShopping:      {"shop", "shopping", "mall", "clothes", "shoes", "jumia", "amazon", "market", "purchase", "store", "boutique"},
}

// DefaultCategorizerPayload is the seed model used before the first retraining.
func DefaultCategorizerPayload() CategorizerPayload {
	payload := CategorizerPayload{
		Alpha:         1,
		MinConfidence: 0.4,
		DocCounts:     make(map[string]int),
		TokenCounts:   make(map[string]map[string]int),
	}
	for class, words := range seedVocabulary {
		payload.DocCounts[class] = len(words)
		counts := make(map[string]int, len(words))
		for _, word := range words {
			counts[word] = 3
		}
		payload.TokenCounts[class] = counts
	}
	return payload
}

// AddSample folds one labeled description into the counts.
func (p *CategorizerPayload) AddSample(description, category string) bool {
	tokens := Tokenize(description)
	if len(tokens) == 0 || category == "" || category == CategoryUncategorized {
		return false
	}
	if p.DocCounts == nil {
		p.DocCounts = make(map[string]int)
	}
	if p.TokenCounts == nil {
		p.TokenCounts = make(map[string]map[string]int)
	}
	p.DocCounts[category]++
	counts := p.TokenCounts[category]
	if counts == nil {
		counts = make(map[string]int)
		p.TokenCounts[category] = counts
	}
	for _, token := range tokens {
		counts[token]++
	}
	return true
}
