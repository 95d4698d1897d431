// Package scoring computes the relevance of one stored item to one query.
// Scores are always in [0,1]; higher is more relevant.
package scoring

import (
	"math"
	"strings"

	"github.com/vbonduro/lostfound/internal/domain"
)

const (
	// ExactTitleScore is the final score of a text query equal to the title.
	ExactTitleScore = 0.95

	LexicalWeight = 0.7
	VectorWeight  = 0.3

	DefaultTextWeight = 0.5
)

type Mode string

const (
	ModeNone   Mode = ""
	ModeText   Mode = "text"
	ModeImage  Mode = "image"
	ModeHybrid Mode = "hybrid"
)

// Query holds what is known about a search request at scoring time.
// Text is the raw query text; TextEmbedding must be set whenever Text is.
type Query struct {
	Text           string
	TextEmbedding  []float32
	ImageEmbedding []float32
	// TextWeight is the share of the text similarity in hybrid mode.
	TextWeight float64
}

func (q Query) Mode() Mode {
	hasText := q.TextEmbedding != nil
	hasImage := q.ImageEmbedding != nil
	switch {
	case hasText && hasImage:
		return ModeHybrid
	case hasText:
		return ModeText
	case hasImage:
		return ModeImage
	}
	return ModeNone
}

// Score returns the relevance of item to q. The second result is false when
// the item lacks an embedding the mode needs; such items must be excluded
// rather than ranked.
func Score(q Query, item *domain.Item) (float64, bool) {
	switch q.Mode() {
	case ModeText:
		if !usable(q.TextEmbedding, item.TextEmbedding) {
			return 0, false
		}
		return textScore(q.Text, q.TextEmbedding, item), true

	case ModeImage:
		if !usable(q.ImageEmbedding, item.ImageEmbedding) {
			return 0, false
		}
		return clamp01(CosineSimilarity(q.ImageEmbedding, item.ImageEmbedding)), true

	case ModeHybrid:
		if !usable(q.TextEmbedding, item.TextEmbedding) || !usable(q.ImageEmbedding, item.ImageEmbedding) {
			return 0, false
		}
		w := q.TextWeight
		textSim := 1 - CosineDistance(q.TextEmbedding, item.TextEmbedding)
		imageSim := 1 - CosineDistance(q.ImageEmbedding, item.ImageEmbedding)
		return clamp01(w*textSim + (1-w)*imageSim), true
	}
	return 0, false
}

func textScore(text string, queryEmb []float32, item *domain.Item) float64 {
	lex, exact := Lexical(text, item.Title, item.Description)
	if exact {
		return ExactTitleScore
	}
	vec := clamp01(CosineSimilarity(queryEmb, item.TextEmbedding))
	return clamp01(lex*LexicalWeight + vec*VectorWeight)
}

// Lexical scores query against title and description with tiered substring
// matching. exact reports a case-insensitive match of the whole trimmed query
// to the trimmed title.
func Lexical(query, title, description string) (score float64, exact bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0, false
	}
	t := strings.ToLower(title)
	d := strings.ToLower(description)
	tokens := strings.Fields(q)

	switch {
	case strings.TrimSpace(t) == q:
		return ExactTitleScore, true
	case strings.Contains(t, q):
		return 0.85, false
	case containsAll(t, tokens):
		return 0.75, false
	case strings.Contains(d, q):
		return 0.65, false
	case containsAll(d, tokens):
		return 0.55, false
	case strings.Contains(t, tokens[0]):
		return 0.45, false
	case strings.Contains(d, tokens[0]):
		return 0.35, false
	}
	return 0, false
}

func containsAll(s string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(s, tok) {
			return false
		}
	}
	return true
}

func usable(query, stored []float32) bool {
	return stored != nil && len(stored) == len(query)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
