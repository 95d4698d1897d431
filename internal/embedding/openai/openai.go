package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/embedding"
)

// ErrImageUnsupported is returned by EmbedImage; pair this embedder with an
// image-capable provider through embedding.Split.
var ErrImageUnsupported = errors.New("openai embedder does not embed images")

// TextEmbedder produces text embeddings from any OpenAI-compatible
// endpoint, truncated server-side to the catalog dimension.
type TextEmbedder struct {
	client  *goopenai.Client
	model   string
	dim     int
	timeout time.Duration
}

func NewTextEmbedder(apiKey, baseURL, model string, timeout time.Duration) *TextEmbedder {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TextEmbedder{
		client:  goopenai.NewClientWithConfig(cfg),
		model:   model,
		dim:     domain.EmbeddingDim,
		timeout: timeout,
	}
}

func (e *TextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, embedding.Unavailable("text", fmt.Errorf("create embeddings failed: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, embedding.Unavailable("text", errors.New("empty embedding response"))
	}

	v := resp.Data[0].Embedding
	if err := embedding.CheckDim("text", v, e.dim); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *TextEmbedder) EmbedImage(_ context.Context, _ []byte) ([]float32, error) {
	return nil, embedding.Unavailable("image", ErrImageUnsupported)
}
