package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/query"
)

const itemColumns = `id, title, description, location, campus, type, image_url, image_key, extra_images,
	image_embedding, text_embedding, contact_info, status, created_ts, updated_ts, archived_ts`

// Listings leave the embeddings out; they are only needed for scoring.
const itemColumnsNoVectors = `id, title, description, location, campus, type, image_url, image_key, extra_images,
	NULL, NULL, contact_info, status, created_ts, updated_ts, archived_ts`

// ItemStore persists items in SQLite.
type ItemStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db, now: time.Now}
}

// Create inserts item as a new active row. A zero CreatedAt is stamped with
// the current time.
func (s *ItemStore) Create(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	created := item.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	imageBlob, err := encodeVector(item.ImageEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image embedding: %w", err)
	}
	textBlob, err := encodeVector(item.TextEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode text embedding: %w", err)
	}
	extra, err := encodeImageRefs(item.ExtraImages)
	if err != nil {
		return nil, err
	}
	campus := item.Campus
	if campus == "" {
		campus = domain.DefaultCampus
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO items (title, description, location, campus, type, image_url, image_key, extra_images,
			image_embedding, text_embedding, contact_info, status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)
	`, item.Title, item.Description, item.Location, string(campus), string(item.Type),
		item.ImageURL, item.ImageKey, extra, imageBlob, textBlob, item.ContactInfo,
		created.UnixMilli(), created.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Update applies the non-nil fields of u. It returns nil when the item does
// not exist.
func (s *ItemStore) Update(ctx context.Context, id int64, u domain.ItemUpdate) (*domain.Item, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Location != nil {
		set("location", *u.Location)
	}
	if u.Campus != nil {
		set("campus", string(*u.Campus))
	}
	if u.Type != nil {
		set("type", string(*u.Type))
	}
	if u.ContactInfo != nil {
		set("contact_info", *u.ContactInfo)
	}
	if u.TextEmbedding != nil {
		blob, err := encodeVector(u.TextEmbedding)
		if err != nil {
			return nil, fmt.Errorf("failed to encode text embedding: %w", err)
		}
		set("text_embedding", blob)
	}
	set("updated_ts", s.now().UnixMilli())
	args = append(args, id)

	item, err := scanItem(s.db.QueryRowContext(ctx,
		`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+itemColumns, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return item, nil
}

// Delete removes the item and returns its last state, or nil when absent.
func (s *ItemStore) Delete(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `DELETE FROM items WHERE id = ? RETURNING `+itemColumns, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete item: %w", err)
	}
	return item, nil
}

// List returns the items matching spec without their embeddings.
func (s *ItemStore) List(ctx context.Context, spec query.Spec, opts query.ListOptions) ([]*domain.Item, error) {
	c := spec.Compile(query.SQLite, 0)
	q := `SELECT ` + itemColumnsNoVectors + ` FROM items WHERE ` + c.Where + ` ORDER BY ` + opts.OrderBy.OrderClause()
	args := c.Args
	if opts.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}
	items, err := s.queryItems(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *ItemStore) Count(ctx context.Context, spec query.Spec) (int, error) {
	c := spec.Compile(query.SQLite, 0)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE `+c.Where, c.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// FindCandidates returns every item matching spec with embeddings loaded.
func (s *ItemStore) FindCandidates(ctx context.Context, spec query.Spec) ([]*domain.Item, error) {
	c := spec.Compile(query.SQLite, 0)
	items, err := s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE `+c.Where, c.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	return items, nil
}

// TransitionFromActive moves an active item to status `to` in a single
// conditional update. It returns nil when the item is missing or not active.
func (s *ItemStore) TransitionFromActive(ctx context.Context, id int64, to domain.Status, now time.Time) (*domain.Item, error) {
	var archived any
	if to == domain.StatusArchived {
		archived = now.UnixMilli()
	}
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		UPDATE items SET status = ?, updated_ts = ?, archived_ts = ?
		WHERE id = ? AND status = 'active'
		RETURNING `+itemColumns,
		string(to), now.UnixMilli(), archived, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition item: %w", err)
	}
	return item, nil
}

// ArchiveExpired archives every active item created before cutoff.
func (s *ItemStore) ArchiveExpired(ctx context.Context, cutoff, now time.Time) ([]domain.ArchivedRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE items SET status = 'archived', updated_ts = ?, archived_ts = ?
		WHERE status = 'active' AND created_ts < ?
		RETURNING id, title
	`, now.UnixMilli(), now.UnixMilli(), cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to archive expired items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var refs []domain.ArchivedRef
	for rows.Next() {
		var ref domain.ArchivedRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, fmt.Errorf("failed to scan archived item: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived items: %w", err)
	}
	return refs, nil
}

func (s *ItemStore) queryItems(ctx context.Context, q string, args ...any) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*domain.Item, error) {
	var (
		item                 domain.Item
		campus, typ, status  string
		extra                string
		imageBlob, textBlob  []byte
		createdTs, updatedTs int64
		archivedTs           sql.NullInt64
	)
	err := sc.Scan(&item.ID, &item.Title, &item.Description, &item.Location, &campus, &typ,
		&item.ImageURL, &item.ImageKey, &extra, &imageBlob, &textBlob, &item.ContactInfo, &status,
		&createdTs, &updatedTs, &archivedTs)
	if err != nil {
		return nil, err
	}

	item.Campus = domain.Campus(campus)
	item.Type = domain.ItemType(typ)
	item.Status = domain.Status(status)
	item.CreatedAt = time.UnixMilli(createdTs).UTC()
	item.UpdatedAt = time.UnixMilli(updatedTs).UTC()
	if archivedTs.Valid {
		t := time.UnixMilli(archivedTs.Int64).UTC()
		item.ArchivedAt = &t
	}
	if item.ExtraImages, err = decodeImageRefs(extra); err != nil {
		return nil, err
	}
	if item.ImageEmbedding, err = decodeVector(imageBlob); err != nil {
		return nil, fmt.Errorf("image embedding: %w", err)
	}
	if item.TextEmbedding, err = decodeVector(textBlob); err != nil {
		return nil, fmt.Errorf("text embedding: %w", err)
	}
	return &item, nil
}

// Extra images are kept as a JSON array; an empty list is "[]".
func encodeImageRefs(refs []domain.ImageRef) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("failed to encode extra images: %w", err)
	}
	return string(b), nil
}

func decodeImageRefs(s string) ([]domain.ImageRef, error) {
	var refs []domain.ImageRef
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil, fmt.Errorf("extra images: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs, nil
}
