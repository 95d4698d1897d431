package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/query"
)

const itemColumns = `id, title, description, location, campus, type, image_url, image_key, extra_images,
	image_embedding, text_embedding, contact_info, status, created_ts, updated_ts, archived_ts`

const itemColumnsNoVectors = `id, title, description, location, campus, type, image_url, image_key, extra_images,
	NULL::vector, NULL::vector, contact_info, status, created_ts, updated_ts, archived_ts`

// ItemStore persists items in PostgreSQL with pgvector embedding columns.
type ItemStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db, now: time.Now}
}

func (s *ItemStore) Create(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	created := item.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	campus := item.Campus
	if campus == "" {
		campus = domain.DefaultCampus
	}
	extraImages := item.ExtraImages
	if extraImages == nil {
		extraImages = []domain.ImageRef{}
	}
	extraJSON, err := json.Marshal(extraImages)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode extra images")
	}

	out, err := scanItem(s.db.QueryRowContext(ctx, `
		INSERT INTO items (title, description, location, campus, type, image_url, image_key, extra_images,
			image_embedding, text_embedding, contact_info, status, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'active', $12, $12)
		RETURNING `+itemColumns,
		item.Title, item.Description, item.Location, string(campus), string(item.Type),
		item.ImageURL, item.ImageKey, string(extraJSON), nullableVector(item.ImageEmbedding), nullableVector(item.TextEmbedding),
		item.ContactInfo, created.UnixMilli()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create item")
	}
	return out, nil
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	return s.one(ctx, "failed to get item", `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
}

func (s *ItemStore) Update(ctx context.Context, id int64, u domain.ItemUpdate) (*domain.Item, error) {
	sets, args := []string{}, []any{}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
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
		set("text_embedding", pgvector.NewVector(u.TextEmbedding))
	}
	set("updated_ts", s.now().UnixMilli())
	args = append(args, id)

	stmt := `UPDATE items SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d RETURNING `, len(args)) + itemColumns
	return s.one(ctx, "failed to update item", stmt, args...)
}

func (s *ItemStore) Delete(ctx context.Context, id int64) (*domain.Item, error) {
	return s.one(ctx, "failed to delete item", `DELETE FROM items WHERE id = $1 RETURNING `+itemColumns, id)
}

func (s *ItemStore) List(ctx context.Context, spec query.Spec, opts query.ListOptions) ([]*domain.Item, error) {
	c := spec.Compile(query.Postgres, 0)
	stmt := `SELECT ` + itemColumnsNoVectors + ` FROM items WHERE ` + c.Where + ` ORDER BY ` + opts.OrderBy.OrderClause()
	args := c.Args
	if opts.Limit > 0 {
		stmt += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, opts.Limit, opts.Offset)
	}
	return s.many(ctx, "failed to list items", stmt, args...)
}

func (s *ItemStore) Count(ctx context.Context, spec query.Spec) (int, error) {
	c := spec.Compile(query.Postgres, 0)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE `+c.Where, c.Args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count items")
	}
	return n, nil
}

func (s *ItemStore) FindCandidates(ctx context.Context, spec query.Spec) ([]*domain.Item, error) {
	c := spec.Compile(query.Postgres, 0)
	return s.many(ctx, "failed to find candidates", `SELECT `+itemColumns+` FROM items WHERE `+c.Where, c.Args...)
}

func (s *ItemStore) TransitionFromActive(ctx context.Context, id int64, to domain.Status, now time.Time) (*domain.Item, error) {
	var archived any
	if to == domain.StatusArchived {
		archived = now.UnixMilli()
	}
	return s.one(ctx, "failed to transition item", `
		UPDATE items SET status = $1, updated_ts = $2, archived_ts = $3
		WHERE id = $4 AND status = 'active'
		RETURNING `+itemColumns,
		string(to), now.UnixMilli(), archived, id)
}

func (s *ItemStore) ArchiveExpired(ctx context.Context, cutoff, now time.Time) ([]domain.ArchivedRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE items SET status = 'archived', updated_ts = $1, archived_ts = $1
		WHERE status = 'active' AND created_ts < $2
		RETURNING id, title
	`, now.UnixMilli(), cutoff.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "failed to archive expired items")
	}
	defer rows.Close()

	refs := []domain.ArchivedRef{}
	for rows.Next() {
		var ref domain.ArchivedRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, errors.Wrap(err, "failed to scan archived item")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// NearestByVector orders by the <=> cosine distance, so 1 - distance is the
// cosine similarity. Scores are floored at zero.
func (s *ItemStore) NearestByVector(ctx context.Context, col query.Column, vec []float32, spec query.Spec, limit int) ([]domain.ScoredItem, error) {
	if limit <= 0 {
		limit = 10
	}
	spec = spec.And(query.HasEmbedding{Column: col})
	c := spec.Compile(query.Postgres, 1)
	stmt := `
		SELECT ` + itemColumns + `, 1 - (` + string(col) + ` <=> $1) AS score
		FROM items
		WHERE ` + c.Where + `
		ORDER BY ` + string(col) + ` <=> $1, created_ts DESC, id DESC
		LIMIT ` + fmt.Sprintf("$%d", len(c.Args)+2)

	args := append([]any{pgvector.NewVector(vec)}, c.Args...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run vector search")
	}
	defer rows.Close()

	results := []domain.ScoredItem{}
	for rows.Next() {
		var score float64
		item, err := scanItemWith(rows, &score)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		results = append(results, domain.ScoredItem{Item: item, Score: max(0, min(1, score))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ItemStore) one(ctx context.Context, msg, stmt string, args ...any) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, stmt, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, msg)
	}
	return item, nil
}

func (s *ItemStore) many(ctx context.Context, msg, stmt string, args ...any) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, msg)
	}
	defer rows.Close()

	list := []*domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func nullableVector(v []float32) any {
	if v == nil {
		return nil
	}
	return pgvector.NewVector(v)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*domain.Item, error) {
	return scanItemWith(sc)
}

// scanItemWith scans the item columns followed by any extra destinations.
func scanItemWith(sc scanner, extra ...any) (*domain.Item, error) {
	var (
		item                 domain.Item
		campus, typ, status  string
		extraImages          []byte
		imageVec, textVec    *pgvector.Vector
		createdTs, updatedTs int64
		archivedTs           sql.NullInt64
	)
	dest := []any{&item.ID, &item.Title, &item.Description, &item.Location, &campus, &typ,
		&item.ImageURL, &item.ImageKey, &extraImages, &imageVec, &textVec, &item.ContactInfo, &status,
		&createdTs, &updatedTs, &archivedTs}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
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
	if err := json.Unmarshal(extraImages, &item.ExtraImages); err != nil {
		return nil, errors.Wrap(err, "failed to decode extra images")
	}
	if len(item.ExtraImages) == 0 {
		item.ExtraImages = nil
	}
	if imageVec != nil {
		item.ImageEmbedding = imageVec.Slice()
	}
	if textVec != nil {
		item.TextEmbedding = textVec.Slice()
	}
	return &item, nil
}
