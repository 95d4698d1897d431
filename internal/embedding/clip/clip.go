package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/embedding"
)

const defaultTimeout = 10 * time.Second

// ClipEmbedder calls the CLIP embedding service, which exposes
// POST /embed-text and POST /embed-image returning {"embedding": [...]}.
type ClipEmbedder struct {
	host    string
	timeout time.Duration
	dim     int
	client  *http.Client
}

func NewClipEmbedder(host string, timeout time.Duration) *ClipEmbedder {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ClipEmbedder{
		host:    host,
		timeout: timeout,
		dim:     domain.EmbeddingDim,
		client:  &http.Client{},
	}
}

func (e *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, "text", "/embed-text", map[string]string{"text": text})
}

func (e *ClipEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	return e.embed(ctx, "image", "/embed-image", map[string]string{"image": encoded})
}

func (e *ClipEmbedder) embed(ctx context.Context, kind, path string, body any) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, embedding.Unavailable(kind, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, embedding.Unavailable(kind, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, embedding.Unavailable(kind, fmt.Errorf("failed to call embedding service: %w", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close embedding response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, embedding.Unavailable(kind, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, errBody))
	}

	var respBody struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, embedding.Unavailable(kind, fmt.Errorf("failed to decode response: %w", err))
	}

	if err := embedding.CheckDim(kind, respBody.Embedding, e.dim); err != nil {
		return nil, err
	}
	return respBody.Embedding, nil
}
