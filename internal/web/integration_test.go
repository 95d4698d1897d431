package web_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lostfound/internal/db"
	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/lifecycle"
	"github.com/vbonduro/lostfound/internal/metrics"
	"github.com/vbonduro/lostfound/internal/photostore"
	"github.com/vbonduro/lostfound/internal/search"
	"github.com/vbonduro/lostfound/internal/service"
	"github.com/vbonduro/lostfound/internal/store"
	"github.com/vbonduro/lostfound/internal/web"
)

// constEmbedder maps every text to one vector and every image to another.
type constEmbedder struct{}

func (constEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	v := make([]float32, domain.EmbeddingDim)
	v[0] = 1
	return v, nil
}

func (constEmbedder) EmbedImage(context.Context, []byte) ([]float32, error) {
	v := make([]float32, domain.EmbeddingDim)
	v[1] = 1
	return v, nil
}

// memPhotoStore is a simple in-memory implementation of photostore.PhotoStore.
type memPhotoStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	mimes   map[string]string
	counter int
}

func newMemPhotoStore() *memPhotoStore {
	return &memPhotoStore{
		data:  make(map[string][]byte),
		mimes: make(map[string]string),
	}
}

func (m *memPhotoStore) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	key := fmt.Sprintf("%s_%d.jpg", prefix, m.counter)
	m.data[key] = data
	m.mimes[key] = mimeType
	return key, nil
}

func (m *memPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, "", photostore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.mimes[key], nil
}

func (m *memPhotoStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return photostore.ErrNotFound
	}
	delete(m.data, key)
	delete(m.mimes, key)
	return nil
}

func (m *memPhotoStore) URL(key string) string {
	return "/api/images/" + key
}

type testEnv struct {
	srv   *httptest.Server
	db    *sql.DB
	items *store.ItemStore
}

// newTestServer sets up a real web.Server backed by in-memory SQLite.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)

	logger := slog.Default()
	m := metrics.New(nil)
	items := store.NewItemStore(database)
	lc := lifecycle.NewManager(items, 0, lifecycle.WithMetrics(m), lifecycle.WithLogger(logger))
	svc := service.NewItemService(items, lc, constEmbedder{}, newMemPhotoStore(), m, logger)
	engine := search.NewEngine(items, constEmbedder{}, m, logger)

	srv := httptest.NewServer(web.NewServer(svc, engine, lc, m, logger, web.WithHealthCheck(database.PingContext)))
	t.Cleanup(func() {
		srv.Close()
		_ = database.Close()
	})
	return &testEnv{srv: srv, db: database, items: items}
}

type response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Total      *int            `json:"total"`
	Mode       string          `json:"mode"`
	Degraded   bool            `json:"degraded"`
	Pagination *struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

type itemBody struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Campus          string   `json:"campus"`
	Type            string   `json:"type"`
	Status          string   `json:"status"`
	ImageURL        string   `json:"image_url"`
	ContactKind     string   `json:"contact_kind"`
	SimilarityScore *float64 `json:"similarity_score"`

	AdditionalImages []struct {
		Key string `json:"key"`
		URL string `json:"url"`
	} `json:"additional_images"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, response) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decodeItem(t *testing.T, r response) itemBody {
	t.Helper()
	var item itemBody
	require.NoError(t, json.Unmarshal(r.Data, &item))
	return item
}

func decodeItems(t *testing.T, r response) []itemBody {
	t.Helper()
	var items []itemBody
	require.NoError(t, json.Unmarshal(r.Data, &items))
	return items
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{10, 200, 10, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// buildUpload creates a multipart/form-data body with an "image" field and
// the given form values.
func buildUpload(t *testing.T, imageData []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if imageData != nil {
		fw, err := w.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(imageData)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func uploadFields(title, typ string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "left near the entrance",
		"location":    "Library",
		"type":        typ,
		"contactInfo": "owner@example.com",
	}
}

func (e *testEnv) upload(t *testing.T, fields map[string]string, imageData []byte) (int, response) {
	t.Helper()
	body, contentType := buildUpload(t, imageData, fields)
	resp, err := http.Post(e.srv.URL+"/api/upload/image", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestIntegration_Health(t *testing.T) {
	env := newTestServer(t)

	status, body := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)

	require.NoError(t, env.db.Close())
	status, _ = env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestIntegration_CreateAndGetItem(t *testing.T) {
	env := newTestServer(t)

	status, body := env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title":       "Blue Umbrella",
		"description": "Navy with a wooden handle",
		"type":        "lost",
		"contactInfo": "+65 9123 4567",
	})
	require.Equal(t, http.StatusCreated, status, body.Error)
	created := decodeItem(t, body)
	assert.Equal(t, "Uniworld 1", created.Campus)
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, "phone", created.ContactKind)

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Blue Umbrella", decodeItem(t, body).Title)

	status, body = env.do(t, http.MethodGet, "/api/items/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.Success)

	status, _ = env.do(t, http.MethodGet, "/api/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_CreateItemValidation(t *testing.T) {
	env := newTestServer(t)

	status, body := env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title": "Keys",
		"type":  "lost",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Error, "description")

	status, _ = env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title":       "Keys",
		"description": "three keys",
		"type":        "lost",
		"campus":      "Uniworld 9",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/items", map[string]string{"bogus": "field"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_ListItemsPaginated(t *testing.T) {
	env := newTestServer(t)
	for i := range 3 {
		status, _ := env.do(t, http.MethodPost, "/api/items", map[string]string{
			"title":       fmt.Sprintf("Item %d", i),
			"description": "d",
			"type":        "found",
		})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := env.do(t, http.MethodGet, "/api/items?limit=2&page=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeItems(t, body), 2)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)

	status, body = env.do(t, http.MethodGet, "/api/items?type=lost", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeItems(t, body))

	status, _ = env.do(t, http.MethodGet, "/api/items?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_Campuses(t *testing.T) {
	env := newTestServer(t)

	status, body := env.do(t, http.MethodGet, "/api/items/campuses", nil)
	require.Equal(t, http.StatusOK, status)
	var campuses []string
	require.NoError(t, json.Unmarshal(body.Data, &campuses))
	assert.Equal(t, []string{"Uniworld 1", "Uniworld 2", "SST Campus"}, campuses)
}

func TestIntegration_UpdateAndDelete(t *testing.T) {
	env := newTestServer(t)
	_, body := env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title": "Wallet", "description": "brown leather", "type": "found",
	})
	id := decodeItem(t, body).ID

	status, body := env.do(t, http.MethodPut, fmt.Sprintf("/api/items/%d", id), map[string]string{
		"title": "Brown Wallet",
	})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, "Brown Wallet", decodeItem(t, body).Title)

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", id), nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIntegration_ResolveAndArchive(t *testing.T) {
	env := newTestServer(t)
	_, body := env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title": "Laptop", "description": "silver", "type": "lost",
	})
	first := decodeItem(t, body).ID
	_, body = env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title": "Charger", "description": "usb-c", "type": "lost",
	})
	second := decodeItem(t, body).ID

	status, body := env.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d/resolve", first), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "resolved", decodeItem(t, body).Status)

	status, body = env.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d/resolve", first), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body.Error, "already resolved")

	status, _ = env.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d/archive", first), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d/archive", second), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "archived", decodeItem(t, body).Status)

	status, body = env.do(t, http.MethodGet, "/api/items/archived/list", nil)
	require.Equal(t, http.StatusOK, status)
	archived := decodeItems(t, body)
	require.Len(t, archived, 1)
	assert.Equal(t, second, archived[0].ID)
}

func TestIntegration_AutoArchive(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()
	_, err := env.items.Create(ctx, &domain.Item{
		Title: "Old Scarf", Description: "red", Type: domain.TypeLost,
		CreatedAt: time.Now().Add(-20 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = env.items.Create(ctx, &domain.Item{Title: "New Scarf", Description: "blue", Type: domain.TypeLost})
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/api/items/auto-archive", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Auto-archived 1 items older than 14 days", body.Message)

	status, body = env.do(t, http.MethodPost, "/api/items/auto-archive", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Auto-archived 0 items older than 14 days", body.Message)
}

func TestIntegration_TextSearch(t *testing.T) {
	env := newTestServer(t)
	for _, title := range []string{"Black Water Bottle", "Blue Umbrella"} {
		status, _ := env.do(t, http.MethodPost, "/api/items", map[string]string{
			"title": title, "description": "found in hall", "type": "found",
		})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := env.do(t, http.MethodPost, "/api/search/text", map[string]any{
		"query": "black water bottle",
	})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, "text", body.Mode)
	hits := decodeItems(t, body)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Black Water Bottle", hits[0].Title)
	require.NotNil(t, hits[0].SimilarityScore)
	assert.InDelta(t, 0.95, *hits[0].SimilarityScore, 1e-9)
	require.NotNil(t, body.Total)
	assert.Equal(t, len(hits), *body.Total)

	status, _ = env.do(t, http.MethodPost, "/api/search/text", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/search/text", map[string]any{"query": "x", "campus": "Mars"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/search/text", map[string]any{"query": "x", "minSimilarity": 1.5})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_UploadAndImageSearch(t *testing.T) {
	env := newTestServer(t)

	status, body := env.upload(t, uploadFields("Green Backpack", "found"), pngBytes(t))
	require.Equal(t, http.StatusCreated, status, body.Error)
	uploaded := decodeItem(t, body)
	require.NotEmpty(t, uploaded.ImageURL)

	resp, err := http.Get(env.srv.URL + uploaded.ImageURL)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, data)

	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	status, body = env.do(t, http.MethodPost, "/api/search/image", map[string]any{"imageData": encoded})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, "image", body.Mode)
	hits := decodeItems(t, body)
	require.Len(t, hits, 1)
	assert.Equal(t, uploaded.ID, hits[0].ID)

	status, body = env.do(t, http.MethodPost, "/api/search/hybrid", map[string]any{
		"query": "backpack", "imageData": encoded, "textWeight": 0.5,
	})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, "hybrid", body.Mode)
	assert.Len(t, decodeItems(t, body), 1)

	status, _ = env.do(t, http.MethodPost, "/api/search/image", map[string]any{"imageData": "%%%"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/search/hybrid", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_TextOnlyItemsExcludedFromImageSearch(t *testing.T) {
	env := newTestServer(t)
	status, _ := env.do(t, http.MethodPost, "/api/items", map[string]string{
		"title": "Keys", "description": "three keys", "type": "lost",
	})
	require.Equal(t, http.StatusCreated, status)

	encoded := base64.StdEncoding.EncodeToString(pngBytes(t))
	status, body := env.do(t, http.MethodPost, "/api/search/image", map[string]any{"imageData": encoded})
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeItems(t, body))
}

func TestIntegration_UploadRejectsBadInput(t *testing.T) {
	env := newTestServer(t)

	status, body := env.upload(t, uploadFields("Mug", "found"), []byte("%PDF-1.4 not an image"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)

	status, _ = env.upload(t, uploadFields("Mug", "found"), nil)
	assert.Equal(t, http.StatusBadRequest, status)

	fields := uploadFields("Mug", "found")
	delete(fields, "contactInfo")
	status, _ = env.upload(t, fields, pngBytes(t))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntegration_Similar(t *testing.T) {
	env := newTestServer(t)
	_, body := env.upload(t, uploadFields("Lost Headphones", "lost"), pngBytes(t))
	lost := decodeItem(t, body)
	_, body = env.upload(t, uploadFields("Found Headphones", "found"), pngBytes(t))
	found := decodeItem(t, body)

	status, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d/similar", lost.ID), nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	hits := decodeItems(t, body)
	require.Len(t, hits, 1)
	assert.Equal(t, found.ID, hits[0].ID)

	status, _ = env.do(t, http.MethodGet, "/api/items/404/similar", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIntegration_ImageNotFound(t *testing.T) {
	env := newTestServer(t)

	status, _ := env.do(t, http.MethodGet, "/api/images/item_99.jpg", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIntegration_StoreUnavailable(t *testing.T) {
	env := newTestServer(t)
	require.NoError(t, env.db.Close())

	status, body := env.do(t, http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "failed to list items", body.Error)

	status, _ = env.do(t, http.MethodPost, "/api/search/text", map[string]any{"query": "keys"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestIntegration_Metrics(t *testing.T) {
	env := newTestServer(t)
	status, _ := env.do(t, http.MethodPost, "/api/search/text", map[string]any{"query": "anything"})
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `lostfound_search_requests_total{mode="text"} 1`)
}

// noisePNG is a w x h PNG of random pixels, which barely compresses.
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.UintN(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIntegration_ImageSearchAcceptsPhoneSizedPhoto(t *testing.T) {
	env := newTestServer(t)
	status, body := env.upload(t, uploadFields("Red Jacket", "found"), pngBytes(t))
	require.Equal(t, http.StatusCreated, status, body.Error)

	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(noisePNG(t, 600, 600))
	require.Greater(t, len(encoded), 1<<20)

	status, body = env.do(t, http.MethodPost, "/api/search/image", map[string]any{"imageData": encoded})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Len(t, decodeItems(t, body), 1)

	status, body = env.do(t, http.MethodPost, "/api/search/hybrid", map[string]any{
		"query": "jacket", "imageData": encoded,
	})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, "hybrid", body.Mode)
}

func (e *testEnv) uploadMany(t *testing.T, fields map[string]string, images [][]byte) (int, response) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i, data := range images {
		fw, err := w.CreateFormFile("images", fmt.Sprintf("photo%d.png", i))
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(e.srv.URL+"/api/upload/images", w.FormDataContentType(), body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestIntegration_UploadMultipleImages(t *testing.T) {
	env := newTestServer(t)

	status, body := env.uploadMany(t, uploadFields("Camera Bag", "lost"), [][]byte{pngBytes(t), pngBytes(t), pngBytes(t)})
	require.Equal(t, http.StatusCreated, status, body.Error)
	assert.Equal(t, "Items uploaded successfully", body.Message)
	item := decodeItem(t, body)
	require.NotEmpty(t, item.ImageURL)
	require.Len(t, item.AdditionalImages, 2)

	urls := []string{item.ImageURL}
	for _, ref := range item.AdditionalImages {
		assert.NotEmpty(t, ref.Key)
		urls = append(urls, ref.URL)
	}
	for _, u := range urls {
		resp, err := http.Get(env.srv.URL + u)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, u)
	}

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d", item.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeItem(t, body).AdditionalImages, 2)

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", item.ID), nil)
	require.Equal(t, http.StatusOK, status)
	for _, u := range urls {
		resp, err := http.Get(env.srv.URL + u)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, u)
	}
}

func TestIntegration_UploadMultipleImagesRejectsBadInput(t *testing.T) {
	env := newTestServer(t)

	status, body := env.uploadMany(t, uploadFields("Camera Bag", "lost"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No image files provided", body.Error)

	six := make([][]byte, service.MaxImagesPerItem+1)
	for i := range six {
		six[i] = pngBytes(t)
	}
	status, _ = env.uploadMany(t, uploadFields("Camera Bag", "lost"), six)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.uploadMany(t, uploadFields("Camera Bag", "lost"), [][]byte{pngBytes(t), []byte("not an image")})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Error, "image 2")

	status, body = env.do(t, http.MethodGet, "/api/items?includeArchived=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeItems(t, body))
}

func TestIntegration_ListItemsByStatus(t *testing.T) {
	env := newTestServer(t)
	var ids []int64
	for _, title := range []string{"Gloves", "Hat"} {
		_, body := env.do(t, http.MethodPost, "/api/items", map[string]string{
			"title": title, "description": "wool", "type": "lost",
		})
		ids = append(ids, decodeItem(t, body).ID)
	}
	status, _ := env.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d/resolve", ids[0]), nil)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/api/items?status=resolved", nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	resolved := decodeItems(t, body)
	require.Len(t, resolved, 1)
	assert.Equal(t, "Gloves", resolved[0].Title)

	status, body = env.do(t, http.MethodGet, "/api/items", nil)
	require.Equal(t, http.StatusOK, status)
	active := decodeItems(t, body)
	require.Len(t, active, 1)
	assert.Equal(t, "Hat", active[0].Title)

	status, _ = env.do(t, http.MethodGet, "/api/items?status=misplaced", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
