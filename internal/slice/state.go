// Package slice holds the client-side state of the point entity: the state
// record, the actions that change it and the pure reducer applying them.
package slice

import (
	"github.com/vyrodovalexey/point-admin/internal/model"
)

// Op identifies an entity operation.
type Op int

// Entity operations.
const (
	OpList Op = iota
	OpGetOne
	OpCreate
	OpUpdate
	OpPartialUpdate
	OpDelete
)

var opNames = [...]string{
	OpList:          "list",
	OpGetOne:        "get_one",
	OpCreate:        "create",
	OpUpdate:        "update",
	OpPartialUpdate: "partial_update",
	OpDelete:        "delete",
}

// String returns the operation name used in logs.
func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "unknown"
	}
	return opNames[o]
}

// IsRead reports whether the operation only reads.
func (o Op) IsRead() bool {
	return o == OpList || o == OpGetOne
}

// State is the entity state shared by all point views.
type State struct {
	// Loading is true while a list or getOne call is in flight.
	Loading bool
	// Updating is true while a create, update, partialUpdate or delete call is in flight.
	Updating bool
	// UpdateSuccess is true after the most recent write succeeded.
	UpdateSuccess bool
	// ErrorMessage holds the message of the most recent failure, "" otherwise.
	ErrorMessage string
	Entities     []model.Point
	Entity       model.Point
	TotalItems   int
	// Writes counts write operations that reached the pending phase.
	Writes uint64
}

// InitialState returns the state before any operation ran.
func InitialState() State {
	return State{
		Entities: []model.Point{},
		Entity:   model.DefaultPoint(),
	}
}

// Action is a state transition. The set of actions is closed.
type Action interface {
	action()
}

// Pending marks op as started.
type Pending struct {
	Op Op
}

// Rejected reports that op failed with Err.
type Rejected struct {
	Op  Op
	Err error
}

// ListFulfilled carries a page of points and the total count.
type ListFulfilled struct {
	Points []model.Point
	Total  int
}

// GetOneFulfilled carries a single point.
type GetOneFulfilled struct {
	Point model.Point
}

// SaveFulfilled carries the server's copy of a created or updated point.
type SaveFulfilled struct {
	Op    Op
	Point model.Point
}

// DeleteFulfilled reports a completed delete.
type DeleteFulfilled struct{}

// Reset restores the initial state.
type Reset struct{}

func (Pending) action()         {}
func (Rejected) action()        {}
func (ListFulfilled) action()   {}
func (GetOneFulfilled) action() {}
func (SaveFulfilled) action()   {}
func (DeleteFulfilled) action() {}
func (Reset) action()           {}

const unknownError = "unknown error"

// Reduce returns the state that results from applying a to s. It is pure:
// s is not modified.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Pending:
		s.ErrorMessage = ""
		s.UpdateSuccess = false
		if a.Op.IsRead() {
			s.Loading = true
		} else {
			s.Updating = true
			s.Writes++
		}

	case Rejected:
		// A failed read leaves the outcome of an earlier write alone.
		if a.Op.IsRead() {
			s.Loading = false
		} else {
			s.Updating = false
			s.UpdateSuccess = false
		}
		s.ErrorMessage = unknownError
		if a.Err != nil && a.Err.Error() != "" {
			s.ErrorMessage = a.Err.Error()
		}

	case ListFulfilled:
		s.Loading = false
		s.Entities = clonePoints(a.Points)
		s.TotalItems = a.Total

	case GetOneFulfilled:
		s.Loading = false
		s.Entity = copyPoint(a.Point)

	case SaveFulfilled:
		s.Updating = false
		s.UpdateSuccess = true
		s.Entity = copyPoint(a.Point)

	case DeleteFulfilled:
		s.Updating = false
		s.UpdateSuccess = true
		s.Entity = model.DefaultPoint()

	case Reset:
		// Writes is monotonic so success watches armed before a reset stay valid.
		writes := s.Writes
		s = InitialState()
		s.Writes = writes
	}

	return s
}

// clonePoints deep-copies points so state never aliases caller data.
func clonePoints(points []model.Point) []model.Point {
	out := make([]model.Point, len(points))
	for i, p := range points {
		out[i] = copyPoint(p)
	}
	return out
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

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Entities = clonePoints(s.Entities)
	s.Entity = copyPoint(s.Entity)
	return s
}
