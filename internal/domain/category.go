package domain

import "time"

// ContentType separates physical products from services and apps.
type ContentType string

const (
	ContentProduct ContentType = "product"
	ContentService ContentType = "service"
	ContentApp     ContentType = "app"
)

// Category is a persisted taxonomy entry. Slug is unique.
type Category struct {
	ID          int64
	Name        string
	Slug        string
	Icon        string
	Color       string
	ContentType ContentType
	CreatedAt   time.Time
}

// CategoryAssignment is the classifier verdict for one product.
type CategoryAssignment struct {
	Category     Category
	ContentType  ContentType
	DisplayPages []string
	Featured     bool
	Keyword      string
}
