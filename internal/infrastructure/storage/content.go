package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

var _ ports.ContentStore = (*Store)(nil)

var contentColumns = []string{
	"title", "description", "price", "original_price", "currency", "discount",
	"image_url", "product_url", "affiliate_url", "affiliate_network", "affiliate_tag_applied",
	"rating", "review_count", "category_id", "category", "content_type", "display_pages",
	"page_slug", "is_featured", "bundle_group_id", "bundle_sequence", "bundle_total",
	"source_channel_id", "source_message_id", "extraction_source", "limited_offer",
	"has_timer", "timer_start", "timer_duration_hours", "is_active", "is_visible",
	"created_at", "updated_at",
}

type contentRow struct {
	ID                  int64           `db:"id"`
	Title               string          `db:"title"`
	Description         string          `db:"description"`
	Price               sql.NullFloat64 `db:"price"`
	OriginalPrice       sql.NullFloat64 `db:"original_price"`
	Currency            string          `db:"currency"`
	Discount            sql.NullInt64   `db:"discount"`
	ImageURL            string          `db:"image_url"`
	ProductURL          string          `db:"product_url"`
	AffiliateURL        string          `db:"affiliate_url"`
	AffiliateNetwork    string          `db:"affiliate_network"`
	AffiliateTagApplied bool            `db:"affiliate_tag_applied"`
	Rating              sql.NullFloat64 `db:"rating"`
	ReviewCount         int             `db:"review_count"`
	CategoryID          sql.NullInt64   `db:"category_id"`
	Category            string          `db:"category"`
	ContentType         string          `db:"content_type"`
	DisplayPages        string          `db:"display_pages"`
	PageSlug            string          `db:"page_slug"`
	IsFeatured          bool            `db:"is_featured"`
	BundleGroupID       string          `db:"bundle_group_id"`
	BundleSequence      int             `db:"bundle_sequence"`
	BundleTotal         int             `db:"bundle_total"`
	SourceChannelID     string          `db:"source_channel_id"`
	SourceMessageID     int64           `db:"source_message_id"`
	ExtractionSource    string          `db:"extraction_source"`
	LimitedOffer        bool            `db:"limited_offer"`
	HasTimer            bool            `db:"has_timer"`
	TimerStart          sql.NullTime    `db:"timer_start"`
	TimerDurationHours  int             `db:"timer_duration_hours"`
	IsActive            bool            `db:"is_active"`
	IsVisible           bool            `db:"is_visible"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

func (r contentRow) toDomain() (domain.UnifiedContentRecord, error) {
	rec := domain.UnifiedContentRecord{
		ID:                  r.ID,
		Title:               r.Title,
		Description:         r.Description,
		Currency:            r.Currency,
		ImageURL:            r.ImageURL,
		ProductURL:          r.ProductURL,
		AffiliateURL:        r.AffiliateURL,
		AffiliateNetwork:    r.AffiliateNetwork,
		AffiliateTagApplied: r.AffiliateTagApplied,
		ReviewCount:         r.ReviewCount,
		CategoryID:          r.CategoryID.Int64,
		Category:            r.Category,
		ContentType:         domain.ContentType(r.ContentType),
		PageSlug:            r.PageSlug,
		IsFeatured:          r.IsFeatured,
		BundleGroupID:       r.BundleGroupID,
		BundleSequence:      r.BundleSequence,
		BundleTotal:         r.BundleTotal,
		SourceChannelID:     r.SourceChannelID,
		SourceMessageID:     r.SourceMessageID,
		ExtractionSource:    domain.CandidateSource(r.ExtractionSource),
		LimitedOffer:        r.LimitedOffer,
		HasTimer:            r.HasTimer,
		TimerDurationHours:  r.TimerDurationHours,
		IsActive:            r.IsActive,
		IsVisible:           r.IsVisible,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.Price.Valid {
		rec.Price = &r.Price.Float64
	}
	if r.OriginalPrice.Valid {
		rec.OriginalPrice = &r.OriginalPrice.Float64
	}
	if r.Rating.Valid {
		rec.Rating = &r.Rating.Float64
	}
	if r.Discount.Valid {
		d := int(r.Discount.Int64)
		rec.Discount = &d
	}
	if r.TimerStart.Valid {
		rec.TimerStart = &r.TimerStart.Time
	}
	if err := json.Unmarshal([]byte(r.DisplayPages), &rec.DisplayPages); err != nil {
		return domain.UnifiedContentRecord{}, fmt.Errorf("decode display pages of content %d: %w", r.ID, err)
	}
	return rec, nil
}

// SaveBundle inserts every record and completes the processing record in a
// single transaction.
func (s *Store) SaveBundle(ctx context.Context, recordID int64, records []domain.UnifiedContentRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, domain.NewPersistenceError("empty bundle", nil)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, domain.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(records))
	for i := range records {
		query, args, err := s.insertContent(records[i])
		if err != nil {
			return nil, domain.NewPersistenceError("build content insert", err)
		}
		var id int64
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			if isUniqueViolation(err) {
				err = fmt.Errorf("%w: %w", domain.ErrDuplicate, err)
			}
			return nil, domain.NewPersistenceError(fmt.Sprintf("insert content %d/%d", i+1, len(records)), err)
		}
		ids = append(ids, id)
	}

	if err := s.complete(ctx, tx, recordID, ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.NewPersistenceError("commit bundle", err)
	}
	return ids, nil
}

func (s *Store) insertContent(r domain.UnifiedContentRecord) (string, []interface{}, error) {
	pages, err := json.Marshal(r.DisplayPages)
	if err != nil {
		return "", nil, err
	}
	if r.DisplayPages == nil {
		pages = []byte("[]")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	var categoryID interface{}
	if r.CategoryID > 0 {
		categoryID = r.CategoryID
	}
	var timerStart interface{}
	if r.TimerStart != nil {
		timerStart = r.TimerStart.UTC()
	}

	return s.sb.Insert("content").
		Columns(contentColumns...).
		Values(
			r.Title, r.Description, nullFloat(r.Price), nullFloat(r.OriginalPrice), r.Currency, nullInt(r.Discount),
			r.ImageURL, r.ProductURL, r.AffiliateURL, r.AffiliateNetwork, r.AffiliateTagApplied,
			nullFloat(r.Rating), r.ReviewCount, categoryID, r.Category, string(r.ContentType), string(pages),
			r.PageSlug, r.IsFeatured, r.BundleGroupID, r.BundleSequence, r.BundleTotal,
			r.SourceChannelID, r.SourceMessageID, string(r.ExtractionSource), r.LimitedOffer,
			r.HasTimer, timerStart, r.TimerDurationHours, r.IsActive, r.IsVisible,
			created.UTC(), updated.UTC(),
		).
		Suffix("RETURNING id").
		ToSql()
}

// ListBySource returns the listings created from one message in bundle order.
func (s *Store) ListBySource(ctx context.Context, key domain.MessageKey) ([]domain.UnifiedContentRecord, error) {
	query, args, err := s.sb.Select(append([]string{"id"}, contentColumns...)...).
		From("content").
		Where(sq.Eq{"source_channel_id": key.ChannelID, "source_message_id": key.MessageID}).
		OrderBy("bundle_sequence", "id").
		ToSql()
	if err != nil {
		return nil, domain.NewPersistenceError("build content list", err)
	}

	var rows []contentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewPersistenceError("list content", err)
	}

	out := make([]domain.UnifiedContentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
