package interlock

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// OnButtonCommand applies an operator press to a button.
//
// A selectable button becomes selected and the selecting lever's shortest route to it is activated.
// Pressing an active button releases the routes ending there.
func (m *Machine) OnButtonCommand(id ButtonID) (Activation, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	b, ok := m.buttons[id]
	if !ok {
		return Activation{}, fmt.Errorf("button %d: %w", id, ErrNotFound)
	}
	switch b.State {
	case ButtonSelectable:
		r := m.routeToLocked(b.Selector, id)
		if r == nil {
			b.State = ButtonNormal
			return Activation{}, fmt.Errorf("button %d: %w", id, ErrButtonNotSelectable)
		}
		b.State = ButtonSelected
		act, err := m.activateLocked(r, false)
		if err != nil {
			if b, ok := m.buttons[id]; ok && b.State == ButtonSelected {
				b.State = ButtonNormal
			}
			return act, err
		}
		return act, nil
	case ButtonActive:
		for _, rid := range slices.Clone(m.routeOrder) {
			r := m.routes[rid]
			if r.Button == id && r.Active {
				m.deactivateLocked(r)
			}
		}
		return Activation{}, nil
	default:
		return Activation{}, fmt.Errorf("button %d (%s): %w", id, b.State, ErrButtonNotSelectable)
	}
}

// routeToLocked returns the stored route from the lever to the button with the fewest steps.
// Ties go to the route stored first.
func (m *Machine) routeToLocked(lid LeverID, bid ButtonID) *Route {
	l, ok := m.levers[lid]
	if !ok {
		return nil
	}
	var best *Route
	for _, rid := range l.Routes {
		r := m.routes[rid]
		if r.Button != bid {
			continue
		}
		if best == nil || len(r.Path) < len(best.Path) {
			best = r
		}
	}
	return best
}
