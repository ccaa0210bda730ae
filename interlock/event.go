package interlock

import (
	"fmt"

	"nyiyui.ca/hato/interlocking/layout"
)

type EventType int

const (
	EventRouteLocked EventType = iota
	EventRouteReleased
	// EventRoutePending is when activation is waiting for the operator to confirm releasing conflicting routes.
	EventRoutePending
	EventSwitchMoved
	EventDriverFailed
	EventLeverChanged
)

var eventTypeNames = []string{"route-locked", "route-released", "route-pending", "switch-moved", "driver-failed", "lever-changed"}

func (t EventType) String() string { return enumString(eventTypeNames, int(t), "EventType") }
func (t EventType) MarshalText() ([]byte, error) {
	return enumMarshal(eventTypeNames, int(t), "event type")
}
func (t *EventType) UnmarshalText(text []byte) error {
	i, err := enumUnmarshal(eventTypeNames, text, "event type")
	*t = EventType(i)
	return err
}

// Event is a change in the machine, for the UI layer.
type Event struct {
	Type      EventType       `json:"type"`
	Route     RouteID         `json:"route"`
	Lever     LeverID         `json:"lever,omitempty"`
	Button    ButtonID        `json:"button,omitempty"`
	Track     layout.TrackID  `json:"track,omitempty"`
	Position  layout.Position `json:"position,omitempty"`
	Conflicts []RouteID       `json:"conflicts,omitempty"`
	Err       string          `json:"err,omitempty"`
}

func (e Event) String() string {
	switch e.Type {
	case EventRouteLocked, EventRouteReleased:
		return fmt.Sprintf("%s %s (L%d→B%d)", e.Type, e.Route, e.Lever, e.Button)
	case EventRoutePending:
		return fmt.Sprintf("%s %s conflicts %v", e.Type, e.Route, e.Conflicts)
	case EventSwitchMoved:
		return fmt.Sprintf("%s %d→%s", e.Type, e.Track, e.Position)
	case EventDriverFailed:
		return fmt.Sprintf("%s %d→%s: %s", e.Type, e.Track, e.Position, e.Err)
	case EventLeverChanged:
		return fmt.Sprintf("%s L%d", e.Type, e.Lever)
	default:
		return e.Type.String()
	}
}
