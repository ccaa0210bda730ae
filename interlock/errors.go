package interlock

import (
	"errors"
	"fmt"

	"nyiyui.ca/hato/interlocking/layout"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("duplicate id")
	ErrDuplicateRoute      = errors.New("route with the same path already exists")
	ErrButtonNotSelectable = errors.New("button is not selectable")
	ErrNotPending          = errors.New("route is not pending confirmation")
	ErrInvalidRoute        = errors.New("route does not match its path")
)

// DanglingReferenceError is returned when a route refers to a lever, button, or track that no longer exists.
// The route is dropped.
type DanglingReferenceError struct {
	Route RouteID
	// What is "lever", "button", or "track".
	What string
	ID   int
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("route %s: %s %d no longer exists", e.Route, e.What, e.ID)
}

// LockedError is returned when a switch is claimed by an active route.
type LockedError struct {
	Track layout.TrackID
	Route RouteID
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("track %d is locked by route %s", e.Track, e.Route)
}
