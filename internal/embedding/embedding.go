package embedding

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/vbonduro/lostfound/internal/domain"
)

// Provider turns query or item content into fixed-length vectors.
// Implementations wrap every failure with domain.ErrEmbeddingUnavailable.
type Provider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// fallbackSeed keeps the degraded vector identical across calls and restarts.
const fallbackSeed = 0x10_57_f0_0d

// Fallback returns the placeholder vector used when the provider is down.
// It is pseudo-random with a fixed seed, so every call yields the same vector.
func Fallback(dim int) []float32 {
	rng := rand.New(rand.NewPCG(fallbackSeed, fallbackSeed))
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32() - 0.5
	}
	return v
}

// Unavailable wraps err as an embedding failure.
func Unavailable(kind string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, kind, err)
}

// CheckDim verifies a provider response has the expected length.
func CheckDim(kind string, v []float32, dim int) error {
	if len(v) != dim {
		return Unavailable(kind, fmt.Errorf("expected %d dimensions, got %d", dim, len(v)))
	}
	return nil
}

// Split routes text and image requests to different providers, e.g. an
// OpenAI-compatible text model next to the CLIP image service.
type Split struct {
	Text  Provider
	Image Provider
}

func (s Split) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return s.Text.EmbedText(ctx, text)
}

func (s Split) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return s.Image.EmbedImage(ctx, image)
}
