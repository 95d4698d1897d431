package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/embedding"
	"github.com/vbonduro/lostfound/internal/imaging"
	"github.com/vbonduro/lostfound/internal/metrics"
	"github.com/vbonduro/lostfound/internal/photostore"
	"github.com/vbonduro/lostfound/internal/query"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxImagesPerItem bounds a multi-photo upload.
	MaxImagesPerItem = 5
)

// itemRepository is the subset of store.ItemStore that ItemService requires.
type itemRepository interface {
	Create(ctx context.Context, item *domain.Item) (*domain.Item, error)
	GetByID(ctx context.Context, id int64) (*domain.Item, error)
	Update(ctx context.Context, id int64, u domain.ItemUpdate) (*domain.Item, error)
	List(ctx context.Context, spec query.Spec, opts query.ListOptions) ([]*domain.Item, error)
	Count(ctx context.Context, spec query.Spec) (int, error)
}

// itemRemover is the subset of lifecycle.Manager that ItemService requires.
type itemRemover interface {
	Delete(ctx context.Context, id int64) (*domain.Item, error)
}

type ItemService struct {
	items    itemRepository
	remover  itemRemover
	embedder embedding.Provider
	photoStg photostore.PhotoStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewItemService(
	items itemRepository,
	remover itemRemover,
	embedder embedding.Provider,
	photoStg photostore.PhotoStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ItemService {
	return &ItemService{
		items:    items,
		remover:  remover,
		embedder: embedder,
		photoStg: photoStg,
		metrics:  m,
		logger:   logger,
	}
}

// validated holds a NewItem after parsing.
type validated struct {
	title, description, location, contact string
	campus                                 domain.Campus
	typ                                    domain.ItemType
}

func validateNew(in domain.NewItem, requireAll bool) (validated, error) {
	v := validated{
		title:       strings.TrimSpace(in.Title),
		description: strings.TrimSpace(in.Description),
		location:    strings.TrimSpace(in.Location),
		contact:     strings.TrimSpace(in.ContactInfo),
		campus:      domain.DefaultCampus,
	}

	var missing []string
	if v.title == "" {
		missing = append(missing, "title")
	}
	if v.description == "" {
		missing = append(missing, "description")
	}
	if requireAll && v.location == "" {
		missing = append(missing, "location")
	}
	if in.Type == "" {
		missing = append(missing, "type")
	}
	if requireAll && v.contact == "" {
		missing = append(missing, "contact information")
	}
	if len(missing) > 0 {
		return v, fmt.Errorf("%w: %s required", domain.ErrInvalidItem, strings.Join(missing, ", "))
	}

	typ, err := domain.ParseItemType(in.Type)
	if err != nil {
		return v, fmt.Errorf("%w: %w", domain.ErrInvalidItem, err)
	}
	v.typ = typ

	if in.Campus != "" {
		c, err := domain.ParseCampus(in.Campus)
		if err != nil {
			return v, fmt.Errorf("%w: %w", domain.ErrInvalidItem, err)
		}
		v.campus = c
	}
	return v, nil
}

// CreateWithImage stores a reported item together with its photo.
func (s *ItemService) CreateWithImage(ctx context.Context, in domain.NewItem, image []byte) (*domain.Item, error) {
	return s.CreateWithImages(ctx, in, [][]byte{image})
}

// CreateWithImages stores a reported item with up to MaxImagesPerItem
// photos. The first photo is the primary image and the only one embedded.
// Both embeddings are always written: when the provider is down the
// fallback vector is stored in its place.
func (s *ItemService) CreateWithImages(ctx context.Context, in domain.NewItem, images [][]byte) (*domain.Item, error) {
	v, err := validateNew(in, true)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 || len(images[0]) == 0 {
		return nil, fmt.Errorf("%w: image required", domain.ErrInvalidItem)
	}
	if len(images) > MaxImagesPerItem {
		return nil, fmt.Errorf("%w: at most %d images per item", domain.ErrInvalidItem, MaxImagesPerItem)
	}

	processed := make([]*imaging.Image, 0, len(images))
	for i, raw := range images {
		img, err := imaging.Process(bytes.NewReader(raw))
		if err != nil {
			if errors.Is(err, imaging.ErrUnsupportedFormat) || errors.Is(err, imaging.ErrTooLarge) {
				return nil, fmt.Errorf("%w: image %d: %w", domain.ErrInvalidItem, i+1, err)
			}
			return nil, fmt.Errorf("failed to process image %d: %w", i+1, err)
		}
		processed = append(processed, img)
	}
	primary := processed[0]
	s.logger.Info("upload started", "title", v.title, "type", v.typ, "images", len(processed), "bytes", len(images[0]), "stored_bytes", len(primary.Data))

	var imageEmb, textEmb []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		imageEmb = s.embedOrFallback(gctx, "image", func(ctx context.Context) ([]float32, error) {
			return s.embedder.EmbedImage(ctx, primary.Data)
		})
		return nil
	})
	g.Go(func() error {
		textEmb = s.embedOrFallback(gctx, "text", func(ctx context.Context) ([]float32, error) {
			return s.embedder.EmbedText(ctx, v.title+" "+v.description)
		})
		return nil
	})
	_ = g.Wait()

	keys := make([]string, 0, len(processed))
	for _, img := range processed {
		key, err := s.photoStg.Save(ctx, "item", img.MIME, bytes.NewReader(img.Data))
		if err != nil {
			s.removePhotos(ctx, keys)
			return nil, fmt.Errorf("failed to save photo: %w", err)
		}
		keys = append(keys, key)
	}
	s.logger.Debug("photos saved", "image_keys", keys)

	var extra []domain.ImageRef
	for _, key := range keys[1:] {
		extra = append(extra, domain.ImageRef{Key: key, URL: s.photoStg.URL(key)})
	}

	item, err := s.items.Create(ctx, &domain.Item{
		Title:          v.title,
		Description:    v.description,
		Location:       v.location,
		Campus:         v.campus,
		Type:           v.typ,
		ImageURL:       s.photoStg.URL(keys[0]),
		ImageKey:       keys[0],
		ExtraImages:    extra,
		ImageEmbedding: imageEmb,
		TextEmbedding:  textEmb,
		ContactInfo:    v.contact,
	})
	if err != nil {
		s.removePhotos(ctx, keys)
		return nil, domain.StoreFailure(ctx, fmt.Errorf("failed to create item: %w", err))
	}

	s.logger.Info("upload complete", "item_id", item.ID, "images", len(keys))
	return item, nil
}

// removePhotos deletes stored photos, logging failures. A photo that is
// already gone is not an error.
func (s *ItemService) removePhotos(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.photoStg.Delete(ctx, key); err != nil && !errors.Is(err, photostore.ErrNotFound) {
			s.logger.Error("failed to delete photo", "image_key", key, "error", err)
		}
	}
}

// Create stores an item reported without a photo. It gets a text embedding
// only and therefore never appears in image or hybrid results.
func (s *ItemService) Create(ctx context.Context, in domain.NewItem) (*domain.Item, error) {
	v, err := validateNew(in, false)
	if err != nil {
		return nil, err
	}

	textEmb := s.embedOrFallback(ctx, "text", func(ctx context.Context) ([]float32, error) {
		return s.embedder.EmbedText(ctx, v.title+" "+v.description)
	})

	item, err := s.items.Create(ctx, &domain.Item{
		Title:         v.title,
		Description:   v.description,
		Location:      v.location,
		Campus:        v.campus,
		Type:          v.typ,
		TextEmbedding: textEmb,
		ContactInfo:   v.contact,
	})
	if err != nil {
		return nil, domain.StoreFailure(ctx, fmt.Errorf("failed to create item: %w", err))
	}
	s.logger.Info("item created", "item_id", item.ID)
	return item, nil
}

func (s *ItemService) embedOrFallback(ctx context.Context, kind string, embed func(context.Context) ([]float32, error)) []float32 {
	v, err := embed(ctx)
	if err == nil {
		return v
	}
	s.logger.Warn("embedding unavailable, storing fallback vector", "kind", kind, "error", err)
	s.metrics.EmbeddingFailed(kind)
	return embedding.Fallback(domain.EmbeddingDim)
}

func (s *ItemService) Get(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return item, nil
}

// ListRequest is a paginated listing. Page is 1-based. Status selects a
// single lifecycle state and defaults to active; IncludeArchived lists
// every state and overrides it.
type ListRequest struct {
	Type            string
	Location        string
	Campus          string
	Status          string
	IncludeArchived bool
	Order           query.Order
	Page            int
	Limit           int
}

type Page struct {
	Items      []*domain.Item
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

func (s *ItemService) List(ctx context.Context, req ListRequest) (*Page, error) {
	f := domain.Filter{Location: req.Location, IncludeArchived: req.IncludeArchived}
	if req.Type != "" {
		t, err := domain.ParseItemType(req.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		f.Type = t
	}
	if req.Campus != "" {
		c, err := domain.ParseCampus(req.Campus)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		f.Campus = c
	}
	spec := query.FromFilter(f)
	if req.Status != "" && !req.IncludeArchived {
		st, err := domain.ParseStatus(req.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		if st != domain.StatusActive {
			f.IncludeArchived = true
			spec = query.FromFilter(f).And(query.StatusIs{Status: st})
		}
	}
	return s.page(ctx, spec, req.Order, req.Page, req.Limit)
}

// ListArchived pages through archived items, most recently archived first.
func (s *ItemService) ListArchived(ctx context.Context, campus string, page, limit int) (*Page, error) {
	spec := query.Spec{}.And(query.StatusIs{Status: domain.StatusArchived})
	if campus != "" {
		c, err := domain.ParseCampus(campus)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		spec = spec.And(query.CampusIs{Campus: c})
	}
	return s.page(ctx, spec, query.RecentlyArchived, page, limit)
}

func (s *ItemService) page(ctx context.Context, spec query.Spec, order query.Order, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	items, err := s.items.List(ctx, spec, query.ListOptions{Limit: limit, Offset: (page - 1) * limit, OrderBy: order})
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	total, err := s.items.Count(ctx, spec)
	if err != nil {
		return nil, domain.StoreFailure(ctx, err)
	}
	if items == nil {
		items = []*domain.Item{}
	}
	return &Page{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// UpdateItem carries the editable fields; nil leaves a field unchanged.
type UpdateItem struct {
	Title       *string
	Description *string
	Location    *string
	Campus      *string
	Type        *string
	ContactInfo *string
}

// Update edits an item's details. A changed title or description is
// re-embedded so text search stays consistent with what is displayed.
func (s *ItemService) Update(ctx context.Context, id int64, in UpdateItem) (*domain.Item, error) {
	u := domain.ItemUpdate{Location: in.Location, ContactInfo: in.ContactInfo}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title must not be empty", domain.ErrInvalidItem)
		}
		u.Title = &t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" {
			return nil, fmt.Errorf("%w: description must not be empty", domain.ErrInvalidItem)
		}
		u.Description = &d
	}
	if in.Campus != nil {
		c, err := domain.ParseCampus(*in.Campus)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidItem, err)
		}
		u.Campus = &c
	}
	if in.Type != nil {
		t, err := domain.ParseItemType(*in.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidItem, err)
		}
		u.Type = &t
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	title, desc := current.Title, current.Description
	if u.Title != nil {
		title = *u.Title
	}
	if u.Description != nil {
		desc = *u.Description
	}
	if title != current.Title || desc != current.Description {
		u.TextEmbedding = s.embedOrFallback(ctx, "text", func(ctx context.Context) ([]float32, error) {
			return s.embedder.EmbedText(ctx, title+" "+desc)
		})
	}

	item, err := s.items.Update(ctx, id, u)
	if err != nil {
		return nil, domain.StoreFailure(ctx, fmt.Errorf("failed to update item: %w", err))
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	s.logger.Info("item updated", "item_id", id, "reembedded", u.TextEmbedding != nil)
	return item, nil
}

// Delete removes an item and then its photos. A photo that cannot be
// removed is logged; the item is already gone.
func (s *ItemService) Delete(ctx context.Context, id int64) error {
	item, err := s.remover.Delete(ctx, id)
	if err != nil {
		return err
	}
	var keys []string
	if item.ImageKey != "" {
		keys = append(keys, item.ImageKey)
	}
	for _, ref := range item.ExtraImages {
		keys = append(keys, ref.Key)
	}
	s.removePhotos(ctx, keys)
	return nil
}

type StoredPhoto struct {
	Body io.ReadCloser
	MIME string
}

// Photo opens a stored photo by key.
func (s *ItemService) Photo(ctx context.Context, key string) (*StoredPhoto, error) {
	r, mime, err := s.photoStg.Get(ctx, key)
	if err != nil {
		if errors.Is(err, photostore.ErrNotFound) {
			return nil, fmt.Errorf("photo %q: %w", key, domain.ErrNotFound)
		}
		return nil, err
	}
	return &StoredPhoto{Body: r, MIME: mime}, nil
}
