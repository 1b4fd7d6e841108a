package slice

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/point-admin/internal/model"
)

// API is the transport the store calls. client.Client implements it.
type API interface {
	ListPoints(ctx context.Context, page model.PageRequest) ([]model.Point, int, error)
	GetPoint(ctx context.Context, id int64) (model.Point, error)
	CreatePoint(ctx context.Context, p model.Point) (model.Point, error)
	UpdatePoint(ctx context.Context, p model.Point) (model.Point, error)
	PartialUpdatePoint(ctx context.Context, p model.Point) (model.Point, error)
	DeletePoint(ctx context.Context, id int64) error
}

// Store owns the point State and runs entity operations against an API.
// Operations block until they settle and record errors in
// State.ErrorMessage. Writes also return their error so a caller can tell
// the outcome of its own write from later state changes. Overlapping
// operations are applied in the order they settle.
type Store struct {
	api    API
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	lastPage model.PageRequest

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	background sync.WaitGroup
}

// New creates a Store in the initial state.
func New(api API, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		api:    api,
		logger: logger,
		state:  InitialState(),
		subs:   make(map[int]chan struct{}),
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe returns a channel signaled after every state change and a
// function that ends the subscription. Signals coalesce: a slow reader sees
// one signal for several changes and should read State afresh.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Dispatch applies an action and notifies subscribers.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	s.mu.Unlock()

	s.notify()
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// List fetches a page of points. The page is remembered for Follow.
func (s *Store) List(ctx context.Context, page model.PageRequest) {
	s.mu.Lock()
	s.lastPage = page
	s.mu.Unlock()

	s.list(ctx, page)
}

func (s *Store) list(ctx context.Context, page model.PageRequest) {
	s.Dispatch(Pending{Op: OpList})
	s.fetch(ctx, page)
}

func (s *Store) fetch(ctx context.Context, page model.PageRequest) {
	points, total, err := s.api.ListPoints(ctx, page)
	if err != nil {
		s.reject(OpList, err)
		return
	}

	s.logger.Debug("point operation settled",
		zap.Stringer("operation", OpList),
		zap.Int("count", len(points)),
		zap.Int("total", total),
	)
	s.Dispatch(ListFulfilled{Points: points, Total: total})
}

// GetOne fetches a single point into State.Entity.
func (s *Store) GetOne(ctx context.Context, id int64) {
	s.Dispatch(Pending{Op: OpGetOne})

	point, err := s.api.GetPoint(ctx, id)
	if err != nil {
		s.reject(OpGetOne, err)
		return
	}

	s.settled(OpGetOne, point.IDValue())
	s.Dispatch(GetOneFulfilled{Point: point})
}

// Create submits a new point. Empty fields are dropped and any id is ignored.
func (s *Store) Create(ctx context.Context, p model.Point) error {
	body := model.Clean(p)
	body.ID = nil
	return s.save(ctx, OpCreate, body, s.api.CreatePoint)
}

// Update replaces an existing point.
func (s *Store) Update(ctx context.Context, p model.Point) error {
	return s.save(ctx, OpUpdate, model.Clean(p), s.api.UpdatePoint)
}

// PartialUpdate sends only the non-empty fields of p.
func (s *Store) PartialUpdate(ctx context.Context, p model.Point) error {
	return s.save(ctx, OpPartialUpdate, model.Clean(p), s.api.PartialUpdatePoint)
}

func (s *Store) save(ctx context.Context, op Op, body model.Point,
	call func(context.Context, model.Point) (model.Point, error)) error {
	s.Dispatch(Pending{Op: op})

	saved, err := call(ctx, body)
	if err != nil {
		s.reject(op, err)
		return err
	}

	s.settled(op, saved.IDValue())
	s.refresh(ctx)
	s.Dispatch(SaveFulfilled{Op: op, Point: saved})
	return nil
}

// Delete removes a point.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.Dispatch(Pending{Op: OpDelete})

	if err := s.api.DeletePoint(ctx, id); err != nil {
		s.reject(OpDelete, err)
		return err
	}

	s.settled(OpDelete, id)
	s.refresh(ctx)
	s.Dispatch(DeleteFulfilled{})
	return nil
}

// Reset restores the initial state.
func (s *Store) Reset() {
	s.Dispatch(Reset{})
}

// Wait blocks until background list refreshes have settled.
func (s *Store) Wait() {
	s.background.Wait()
}

// Follow refreshes the list with the last requested page for every event
// received, until ctx is done or events is closed.
func (s *Store) Follow(ctx context.Context, events <-chan model.PointEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.logger.Debug("point changed on server",
				zap.String("type", event.Type),
				zap.Int64("id", event.ID),
			)

			s.mu.Lock()
			page := s.lastPage
			s.mu.Unlock()

			s.list(ctx, page)
		}
	}
}

// refresh re-fetches the unpaged list in the background after a write.
// The list is marked pending before the write's fulfilment is applied, so
// UpdateSuccess stays set once the write settles. The fetch outlives ctx
// cancellation and does not affect the write's outcome.
func (s *Store) refresh(ctx context.Context) {
	s.Dispatch(Pending{Op: OpList})
	bg := context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.fetch(bg, model.PageRequest{})
	}()
}

func (s *Store) reject(op Op, err error) {
	s.logger.Debug("point operation failed", zap.Stringer("operation", op), zap.Error(err))
	s.Dispatch(Rejected{Op: op, Err: err})
}

func (s *Store) settled(op Op, id int64) {
	s.logger.Debug("point operation settled", zap.Stringer("operation", op), zap.Int64("id", id))
}
