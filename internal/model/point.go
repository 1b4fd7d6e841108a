// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validation errors for Point.
var (
	ErrEmptyTitle         = errors.New("title cannot be empty")
	ErrTitleTooLong       = errors.New("title cannot exceed 255 characters")
	ErrDescriptionTooLong = errors.New("description cannot exceed 1000 characters")
)

// Validation constants.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Point is the single domain entity managed by the application.
// ID is nil until the point has been persisted.
type Point struct {
	ID          *int64  `json:"id,omitempty"`
	Title       string  `json:"title,omitempty" validate:"required,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// DefaultPoint returns the empty value used for a point that is being created.
func DefaultPoint() Point {
	return Point{}
}

// HasID reports whether the point carries a persisted identifier.
func (p Point) HasID() bool {
	return p.ID != nil
}

// IDValue returns the identifier or 0 when the point is unsaved.
func (p Point) IDValue() int64 {
	if p.ID == nil {
		return 0
	}
	return *p.ID
}

// DescriptionValue returns the description or "" when it is absent.
func (p Point) DescriptionValue() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}

// Clean returns a copy of p in which empty-string fields are treated as absent.
// Applying Clean more than once yields the same result.
func Clean(p Point) Point {
	out := Point{Title: p.Title}
	if p.ID != nil {
		out.ID = Int64Ptr(*p.ID)
	}
	if p.Description != nil && *p.Description != "" {
		out.Description = StringPtr(*p.Description)
	}
	return out
}

// Validate checks a point that fully replaces or creates an entity.
func (p *Point) Validate() error {
	return mapValidationError(validate.Struct(p))
}

// ValidatePatch checks a partial point: absent fields are allowed,
// present ones must respect the length limits.
func (p *Point) ValidatePatch() error {
	if err := validate.Var(p.Title, "max=255"); err != nil {
		return ErrTitleTooLong
	}
	if p.Description != nil {
		if err := validate.Var(*p.Description, "max=1000"); err != nil {
			return ErrDescriptionTooLong
		}
	}
	return nil
}

func mapValidationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate point: %w", err)
	}

	fe := verrs[0]
	switch fe.Field() + "." + fe.Tag() {
	case "Title.required":
		return ErrEmptyTitle
	case "Title.max":
		return ErrTitleTooLong
	case "Description.max":
		return ErrDescriptionTooLong
	default:
		return fmt.Errorf("validate point: field %s failed %s", fe.Field(), fe.Tag())
	}
}

// Default pagination values, matching the backend's pageable defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 2000

	// MaxPage bounds the page index so Page*Size fits in 32 bits.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// PageRequest carries pagination and sort parameters of a list query.
// Sort entries have the form "property" or "property,direction".
type PageRequest struct {
	Page int
	Size int
	Sort []string
}

// IsZero reports whether no pagination or sort was requested.
func (r PageRequest) IsZero() bool {
	return r.Page == 0 && r.Size == 0 && len(r.Sort) == 0
}

// SortOrder is a parsed sort entry.
type SortOrder struct {
	Property   string
	Descending bool
}

// Orders parses the sort entries. Unknown directions default to ascending.
func (r PageRequest) Orders() []SortOrder {
	orders := make([]SortOrder, 0, len(r.Sort))
	for _, s := range r.Sort {
		parts := strings.Split(s, ",")
		prop := strings.TrimSpace(parts[0])
		if prop == "" {
			continue
		}
		order := SortOrder{Property: prop}
		if len(parts) > 1 {
			order.Descending = strings.EqualFold(strings.TrimSpace(parts[1]), "desc")
		}
		orders = append(orders, order)
	}
	return orders
}

// ParseID parses a decimal point identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid point id %q", s)
	}
	return id, nil
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	EntityName string `json:"entityName,omitempty"`
	ErrorKey   string `json:"errorKey,omitempty"`
}

// Point event types pushed over the live update channel.
const (
	EventPointCreated = "point_created"
	EventPointUpdated = "point_updated"
	EventPointDeleted = "point_deleted"
)

// PointEvent notifies subscribers that a point changed on the server.
type PointEvent struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPointEvent creates a change event stamped with the current time.
func NewPointEvent(eventType string, id int64) PointEvent {
	return PointEvent{
		Type:      eventType,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}
