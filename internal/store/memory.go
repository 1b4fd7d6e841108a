package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vyrodovalexey/point-admin/internal/model"
)

// MemoryStore implements Store interface with in-memory storage.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[int64]model.Point
	nextID int64
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points: make(map[int64]model.Point),
	}
}

// List returns one page of points ordered by the requested sort, id ascending otherwise.
func (s *MemoryStore) List(ctx context.Context, page model.PageRequest) ([]model.Point, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("list points: %w", ctx.Err())
	default:
	}

	if err := validateSort(page); err != nil {
		return nil, 0, err
	}
	page = normalizePage(page)

	s.mu.RLock()
	all := make([]model.Point, 0, len(s.points))
	for _, p := range s.points {
		all = append(all, copyPoint(p))
	}
	s.mu.RUnlock()

	orders := page.Orders()
	slices.SortFunc(all, func(a, b model.Point) int {
		for _, o := range orders {
			c := comparePoints(a, b, o.Property)
			if o.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.IDValue(), b.IDValue())
	})

	total := int64(len(all))
	start := page.Page * page.Size
	if start >= len(all) {
		return []model.Point{}, total, nil
	}
	end := min(start+page.Size, len(all))

	return all[start:end], total, nil
}

// Get retrieves a point by its ID.
func (s *MemoryStore) Get(ctx context.Context, id int64) (*model.Point, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get point: %w", ctx.Err())
	default:
	}

	if id <= 0 {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.points[id]
	if !exists {
		return nil, ErrNotFound
	}

	out := copyPoint(p)
	return &out, nil
}

// Exists reports whether a point with the given ID is stored.
func (s *MemoryStore) Exists(ctx context.Context, id int64) (bool, error) {
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("point exists: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.points[id]
	return exists, nil
}

// Create adds a new point and returns it with its generated ID.
func (s *MemoryStore) Create(ctx context.Context, point *model.Point) (*model.Point, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create point: %w", ctx.Err())
	default:
	}

	if point == nil {
		return nil, fmt.Errorf("create point: %w", ErrNilPoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	created := model.Clean(*point)
	created.ID = model.Int64Ptr(s.nextID)
	s.points[s.nextID] = created

	out := copyPoint(created)
	return &out, nil
}

// Update replaces an existing point.
func (s *MemoryStore) Update(ctx context.Context, id int64, point *model.Point) (*model.Point, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("update point: %w", ctx.Err())
	default:
	}

	if id <= 0 {
		return nil, ErrInvalidID
	}

	if point == nil {
		return nil, fmt.Errorf("update point: %w", ErrNilPoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.points[id]; !exists {
		return nil, ErrNotFound
	}

	updated := model.Clean(*point)
	updated.ID = model.Int64Ptr(id)
	s.points[id] = updated

	out := copyPoint(updated)
	return &out, nil
}

// PartialUpdate copies the non-empty fields of point onto the stored one.
func (s *MemoryStore) PartialUpdate(ctx context.Context, id int64, point *model.Point) (*model.Point, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("partial update point: %w", ctx.Err())
	default:
	}

	if id <= 0 {
		return nil, ErrInvalidID
	}

	if point == nil {
		return nil, fmt.Errorf("partial update point: %w", ErrNilPoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.points[id]
	if !exists {
		return nil, ErrNotFound
	}

	merged := mergePoint(existing, *point)
	s.points[id] = merged

	out := copyPoint(merged)
	return &out, nil
}

// Delete removes a point by its ID.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete point: %w", ctx.Err())
	default:
	}

	if id <= 0 {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.points[id]; !exists {
		return ErrNotFound
	}

	delete(s.points, id)

	return nil
}

// mergePoint applies the present fields of patch onto existing.
func mergePoint(existing, patch model.Point) model.Point {
	merged := copyPoint(existing)
	if patch.Title != "" {
		merged.Title = patch.Title
	}
	if patch.Description != nil {
		merged.Description = model.StringPtr(*patch.Description)
	}
	return merged
}

func copyPoint(p model.Point) model.Point {
	out := model.Point{Title: p.Title}
	if p.ID != nil {
		out.ID = model.Int64Ptr(*p.ID)
	}
	if p.Description != nil {
		out.Description = model.StringPtr(*p.Description)
	}
	return out
}

func comparePoints(a, b model.Point, property string) int {
	switch property {
	case "id":
		return cmp.Compare(a.IDValue(), b.IDValue())
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "description":
		return strings.Compare(a.DescriptionValue(), b.DescriptionValue())
	default:
		return 0
	}
}
