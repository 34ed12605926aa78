package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

var _ ports.CategoryStore = (*Store)(nil)

type categoryRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Icon        string    `db:"icon"`
	Color       string    `db:"color"`
	ContentType string    `db:"content_type"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r categoryRow) toDomain() domain.Category {
	return domain.Category{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Icon:        r.Icon,
		Color:       r.Color,
		ContentType: domain.ContentType(r.ContentType),
		CreatedAt:   r.CreatedAt,
	}
}

// GetOrCreate returns the category with c.Slug, inserting c when missing.
// A concurrent insert of the same slug resolves to the stored row.
func (s *Store) GetOrCreate(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.Slug == "" {
		return domain.Category{}, domain.NewPersistenceError("category without slug", nil)
	}

	existing, err := s.categoryBySlug(ctx, c.Slug)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Category{}, err
	}

	if c.ContentType == "" {
		c.ContentType = domain.ContentProduct
	}
	c.CreatedAt = s.now()

	query, args, err := s.sb.Insert("categories").
		Columns("name", "slug", "icon", "color", "content_type", "created_at").
		Values(c.Name, c.Slug, c.Icon, c.Color, string(c.ContentType), c.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Category{}, domain.NewPersistenceError("build category insert", err)
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&c.ID); err != nil {
		if isUniqueViolation(err) {
			return s.categoryBySlug(ctx, c.Slug)
		}
		return domain.Category{}, domain.NewPersistenceError("insert category", err)
	}
	return c, nil
}

func (s *Store) categoryBySlug(ctx context.Context, slug string) (domain.Category, error) {
	query, args, err := s.sb.Select("id", "name", "slug", "icon", "color", "content_type", "created_at").
		From("categories").
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return domain.Category{}, domain.NewPersistenceError("build category lookup", err)
	}

	var row categoryRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, fmt.Errorf("category %s: %w", slug, domain.ErrNotFound)
		}
		return domain.Category{}, domain.NewPersistenceError("lookup category", err)
	}
	return row.toDomain(), nil
}
