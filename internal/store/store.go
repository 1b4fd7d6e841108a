// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/point-admin/internal/model"
)

// Store errors.
var (
	ErrNotFound    = errors.New("point not found")
	ErrInvalidID   = errors.New("invalid point ID")
	ErrNilPoint    = errors.New("point cannot be nil")
	ErrInvalidSort = errors.New("invalid sort property")
)

// sortable maps API sort properties onto column names.
var sortable = map[string]string{
	"id":          "id",
	"title":       "title",
	"description": "description",
}

// Store defines the interface for point storage operations.
type Store interface {
	// List returns one page of points and the total number of points.
	List(ctx context.Context, page model.PageRequest) ([]model.Point, int64, error)

	// Get retrieves a point by its ID.
	Get(ctx context.Context, id int64) (*model.Point, error)

	// Exists reports whether a point with the given ID is stored.
	Exists(ctx context.Context, id int64) (bool, error)

	// Create adds a new point and returns it with its generated ID.
	Create(ctx context.Context, point *model.Point) (*model.Point, error)

	// Update replaces an existing point.
	Update(ctx context.Context, id int64, point *model.Point) (*model.Point, error)

	// PartialUpdate copies the non-empty fields of point onto the stored one.
	PartialUpdate(ctx context.Context, id int64, point *model.Point) (*model.Point, error)

	// Delete removes a point by its ID.
	Delete(ctx context.Context, id int64) error
}

// normalizePage applies default and maximum page sizes and bounds the
// page index so the offset cannot overflow.
func normalizePage(page model.PageRequest) model.PageRequest {
	if page.Page < 0 {
		page.Page = 0
	}
	if page.Page > model.MaxPage {
		page.Page = model.MaxPage
	}
	if page.Size <= 0 {
		page.Size = model.DefaultPageSize
	}
	if page.Size > model.MaxPageSize {
		page.Size = model.MaxPageSize
	}
	return page
}

// validateSort rejects sort properties that are not whitelisted.
func validateSort(page model.PageRequest) error {
	for _, o := range page.Orders() {
		if _, ok := sortable[o.Property]; !ok {
			return ErrInvalidSort
		}
	}
	return nil
}
