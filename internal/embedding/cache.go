package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes successful embeddings. Failures are never cached so a
// recovered provider is used on the next call.
type Cached struct {
	next  Provider
	cache *lru.Cache[string, []float32]
}

func NewCached(next Provider, size int) (*Cached, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

func (c *Cached) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey("text", []byte(text))
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *Cached) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	key := cacheKey("image", image)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.next.EmbedImage(ctx, image)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *Cached) Len() int {
	return c.cache.Len()
}

func cacheKey(kind string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
