package storage

import "strings"

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS processing_records (
    id {{serial}},
    channel_id TEXT NOT NULL,
    message_id BIGINT NOT NULL,
    state TEXT NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    error_stage TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 1,
    content_ids TEXT NOT NULL DEFAULT '[]',
    payload TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (channel_id, message_id)
);
---
CREATE INDEX IF NOT EXISTS processing_records_state_idx ON processing_records (state, updated_at);
---
CREATE TABLE IF NOT EXISTS categories (
    id {{serial}},
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    icon TEXT NOT NULL DEFAULT '',
    color TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT 'product',
    created_at TIMESTAMP NOT NULL
);
---
CREATE TABLE IF NOT EXISTS content (
    id {{serial}},
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price {{real}},
    original_price {{real}},
    currency TEXT NOT NULL DEFAULT '',
    discount INTEGER,
    image_url TEXT NOT NULL DEFAULT '',
    product_url TEXT NOT NULL,
    affiliate_url TEXT NOT NULL,
    affiliate_network TEXT NOT NULL DEFAULT '',
    affiliate_tag_applied BOOLEAN NOT NULL DEFAULT FALSE,
    rating {{real}},
    review_count INTEGER NOT NULL DEFAULT 0,
    category_id BIGINT REFERENCES categories (id),
    category TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT 'product',
    display_pages TEXT NOT NULL DEFAULT '[]',
    page_slug TEXT NOT NULL DEFAULT '',
    is_featured BOOLEAN NOT NULL DEFAULT FALSE,
    bundle_group_id TEXT NOT NULL DEFAULT '',
    bundle_sequence INTEGER NOT NULL DEFAULT 1,
    bundle_total INTEGER NOT NULL DEFAULT 1,
    source_channel_id TEXT NOT NULL,
    source_message_id BIGINT NOT NULL,
    extraction_source TEXT NOT NULL DEFAULT '',
    limited_offer BOOLEAN NOT NULL DEFAULT FALSE,
    has_timer BOOLEAN NOT NULL DEFAULT FALSE,
    timer_start TIMESTAMP,
    timer_duration_hours INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_visible BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
---
CREATE UNIQUE INDEX IF NOT EXISTS content_source_idx ON content (source_channel_id, source_message_id, bundle_sequence);
---
CREATE INDEX IF NOT EXISTS content_bundle_idx ON content (bundle_group_id);
`

func (d dialect) schema() []string {
	serial, floatType := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	if d.name == DriverSQLite {
		serial, floatType = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	}
	r := strings.NewReplacer("{{serial}}", serial, "{{real}}", floatType)

	var out []string
	for _, stmt := range strings.Split(schemaTemplate, "---") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, r.Replace(stmt))
		}
	}
	return out
}
