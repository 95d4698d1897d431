// Package search ranks catalog items against a text query, an image, or both.
package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/embedding"
	"github.com/vbonduro/lostfound/internal/metrics"
	"github.com/vbonduro/lostfound/internal/query"
	"github.com/vbonduro/lostfound/internal/scoring"
)

const (
	DefaultMinSimilarity = 0.2
	DefaultLimit         = 5
	MaxLimit             = 50
)

// ItemFinder is the part of the item store the engine reads from.
type ItemFinder interface {
	GetByID(ctx context.Context, id int64) (*domain.Item, error)
	FindCandidates(ctx context.Context, spec query.Spec) ([]*domain.Item, error)
	NearestByVector(ctx context.Context, col query.Column, vec []float32, spec query.Spec, limit int) ([]domain.ScoredItem, error)
}

// Request is a search. Nil pointers and a zero Limit take the defaults.
type Request struct {
	Text            string
	Image           []byte
	Type            string
	Location        string
	Campus          string
	IncludeArchived bool
	MinSimilarity   *float64
	Limit           int
	TextWeight      *float64
}

type Hit struct {
	Item  *domain.Item
	Score float64
}

type Results struct {
	Hits []Hit
	Mode scoring.Mode
	// Degraded is set when a query embedding could not be computed and the
	// fallback vector was scored instead.
	Degraded bool
}

type Engine struct {
	store    ItemFinder
	embedder embedding.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger
	dim      int
}

func NewEngine(store ItemFinder, embedder embedding.Provider, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		metrics:  m,
		logger:   logger,
		dim:      domain.EmbeddingDim,
	}
}

// params is a validated Request.
type params struct {
	text       string
	image      []byte
	filter     domain.Filter
	min        float64
	limit      int
	textWeight float64
}

func validate(req Request) (params, error) {
	p := params{
		text:       strings.TrimSpace(req.Text),
		image:      req.Image,
		min:        DefaultMinSimilarity,
		limit:      DefaultLimit,
		textWeight: scoring.DefaultTextWeight,
		filter: domain.Filter{
			Location:        req.Location,
			IncludeArchived: req.IncludeArchived,
		},
	}
	if p.text == "" && len(p.image) == 0 {
		return p, fmt.Errorf("%w: text or image is required", domain.ErrInvalidQuery)
	}
	if req.Type != "" {
		t, err := domain.ParseItemType(req.Type)
		if err != nil {
			return p, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		p.filter.Type = t
	}
	if req.Campus != "" {
		c, err := domain.ParseCampus(req.Campus)
		if err != nil {
			return p, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		p.filter.Campus = c
	}
	if req.MinSimilarity != nil {
		if *req.MinSimilarity < 0 || *req.MinSimilarity > 1 {
			return p, fmt.Errorf("%w: minSimilarity must be within [0, 1]", domain.ErrInvalidQuery)
		}
		p.min = *req.MinSimilarity
	}
	if req.TextWeight != nil {
		if *req.TextWeight < 0 || *req.TextWeight > 1 {
			return p, fmt.Errorf("%w: textWeight must be within [0, 1]", domain.ErrInvalidQuery)
		}
		p.textWeight = *req.TextWeight
	}
	if req.Limit < 0 {
		return p, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidQuery)
	}
	if req.Limit > 0 {
		p.limit = min(req.Limit, MaxLimit)
	}
	return p, nil
}

// Search scores every candidate matching the filters and returns those at or
// above the threshold, best first. An empty result is not an error.
func (e *Engine) Search(ctx context.Context, req Request) (*Results, error) {
	start := time.Now()
	p, err := validate(req)
	if err != nil {
		return nil, err
	}

	q, degraded := e.embedQuery(ctx, p)
	mode := q.Mode()

	spec := query.FromFilter(p.filter)
	if q.TextEmbedding != nil {
		spec = spec.And(query.HasEmbedding{Column: query.TextEmbedding})
	}
	if q.ImageEmbedding != nil {
		spec = spec.And(query.HasEmbedding{Column: query.ImageEmbedding})
	}

	candidates, err := e.store.FindCandidates(ctx, spec)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}

	hits := make([]Hit, 0, len(candidates))
	for _, item := range candidates {
		score, ok := scoring.Score(q, item)
		if !ok || score < p.min {
			continue
		}
		hits = append(hits, Hit{Item: item, Score: score})
	}
	sortHits(hits)
	if len(hits) > p.limit {
		hits = hits[:p.limit]
	}

	e.metrics.ObserveSearch(string(mode), time.Since(start), len(hits), degraded)
	e.logger.Debug("search complete", "mode", mode, "candidates", len(candidates), "hits", len(hits), "degraded", degraded)
	return &Results{Hits: hits, Mode: mode, Degraded: degraded}, nil
}

// embedQuery computes the query embeddings concurrently. A provider failure
// is replaced by the fallback vector and reported as degraded.
func (e *Engine) embedQuery(ctx context.Context, p params) (scoring.Query, bool) {
	q := scoring.Query{Text: p.text, TextWeight: p.textWeight}
	var textFailed, imageFailed bool

	// Both goroutines swallow their errors, so Wait never fails.
	g, gctx := errgroup.WithContext(ctx)
	if p.text != "" {
		g.Go(func() error {
			v, err := e.embedder.EmbedText(gctx, p.text)
			if err != nil {
				e.logger.Warn("text embedding unavailable, using fallback vector", "error", err)
				v, textFailed = embedding.Fallback(e.dim), true
			}
			q.TextEmbedding = v
			return nil
		})
	}
	if len(p.image) > 0 {
		g.Go(func() error {
			v, err := e.embedder.EmbedImage(gctx, p.image)
			if err != nil {
				e.logger.Warn("image embedding unavailable, using fallback vector", "error", err)
				v, imageFailed = embedding.Fallback(e.dim), true
			}
			q.ImageEmbedding = v
			return nil
		})
	}
	_ = g.Wait()

	if textFailed {
		e.metrics.EmbeddingFailed("text")
	}
	if imageFailed {
		e.metrics.EmbeddingFailed("image")
	}
	return q, textFailed || imageFailed
}

// Similar returns active items of the opposite type whose embedding is
// closest to the item's own: found items for a lost report and vice versa.
// The image embedding is preferred; items without one match on text.
func (e *Engine) Similar(ctx context.Context, itemID int64, limit int) ([]Hit, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidQuery)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	item, err := e.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}

	col, vec := query.ImageEmbedding, item.ImageEmbedding
	if vec == nil {
		col, vec = query.TextEmbedding, item.TextEmbedding
	}
	if vec == nil {
		return []Hit{}, nil
	}

	spec := query.FromFilter(domain.Filter{Type: item.Type.Opposite()})
	scored, err := e.store.NearestByVector(ctx, col, vec, spec, limit)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, Hit{Item: s.Item, Score: s.Score})
	}
	return hits, nil
}

// sortHits orders by score, then newest first, then highest id, so equal
// inputs always produce the same order.
func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			b.Item.CreatedAt.Compare(a.Item.CreatedAt),
			cmp.Compare(b.Item.ID, a.Item.ID),
		)
	})
}
