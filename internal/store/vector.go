package store

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/query"
	"github.com/vbonduro/lostfound/internal/scoring"
)

// encodeVector stores v as little-endian float32 values. nil stays NULL.
func encodeVector(v []float32) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if blob == nil {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid BLOB length %d", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// NearestByVector ranks the items matching spec by cosine distance between
// vec and the named embedding column. SQLite has no vector index, so the
// ranking happens here over the filtered candidates.
func (s *ItemStore) NearestByVector(ctx context.Context, col query.Column, vec []float32, spec query.Spec, limit int) ([]domain.ScoredItem, error) {
	items, err := s.FindCandidates(ctx, spec.And(query.HasEmbedding{Column: col}))
	if err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredItem, 0, len(items))
	for _, item := range items {
		target := item.ImageEmbedding
		if col == query.TextEmbedding {
			target = item.TextEmbedding
		}
		if len(target) != len(vec) {
			continue
		}
		scored = append(scored, domain.ScoredItem{
			Item:  item,
			Score: max(0, scoring.CosineSimilarity(vec, target)),
		})
	}

	slices.SortFunc(scored, func(a, b domain.ScoredItem) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			b.Item.CreatedAt.Compare(a.Item.CreatedAt),
			cmp.Compare(b.Item.ID, a.Item.ID),
		)
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
