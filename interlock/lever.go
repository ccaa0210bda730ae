package interlock

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// OnLeverCommand applies an operator action to a lever.
//
// From neutral, left or right starts route selection: the buttons the lever has routes to become selectable.
// A lever without stored routes gets them generated first.
// Repeating the current direction, or centering, releases the lever and the routes it holds.
// The opposite direction releases and then starts a new selection.
func (m *Machine) OnLeverCommand(id LeverID, cmd LeverCommand) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	l, ok := m.levers[id]
	if !ok {
		return fmt.Errorf("lever %d: %w", id, ErrNotFound)
	}
	dir := cmd.state()
	switch {
	case dir == LeverNeutral:
		m.releaseLeverLocked(l)
	case l.State == LeverNeutral:
		if err := m.startSelectionLocked(l, dir); err != nil {
			return err
		}
	case l.State == dir:
		m.releaseLeverLocked(l)
	default:
		m.releaseLeverLocked(l)
		if err := m.startSelectionLocked(l, dir); err != nil {
			return err
		}
	}
	m.log.Debugw("lever command", "lever", id, "cmd", cmd, "state", l.State)
	m.emit(Event{Type: EventLeverChanged, Lever: id})
	return nil
}

func (m *Machine) startSelectionLocked(l *Lever, dir LeverState) error {
	if len(l.Routes) == 0 {
		buttons := make([]Button, 0, len(m.buttons))
		for _, b := range m.buttons {
			buttons = append(buttons, b.clone())
		}
		rs, err := searchRoutes(m.ctx, m.y, l.clone(), buttons)
		if err != nil {
			return fmt.Errorf("lever %d: %w", l.ID, err)
		}
		if _, err := m.promoteLocked(rs); err != nil {
			return fmt.Errorf("lever %d: %w", l.ID, err)
		}
	}
	l.State = dir
	for _, rid := range l.Routes {
		r := m.routes[rid]
		b, ok := m.buttons[r.Button]
		if !ok || b.State != ButtonNormal {
			continue
		}
		b.State = ButtonSelectable
		b.Selector = l.ID
	}
	return nil
}

// endSelectionLocked returns the buttons selectable (or selected) through the lever to normal, except keep.
func (m *Machine) endSelectionLocked(l *Lever, keep ButtonID) {
	for _, b := range m.buttons {
		if b.ID == keep || b.Selector != l.ID {
			continue
		}
		if b.State == ButtonSelectable || b.State == ButtonSelected {
			b.State = ButtonNormal
		}
	}
}

func (m *Machine) releaseLeverLocked(l *Lever) {
	for _, rid := range slices.Clone(m.routeOrder) {
		r := m.routes[rid]
		if r.Lever != l.ID {
			continue
		}
		delete(m.pending, rid)
		if r.Active {
			m.deactivateLocked(r)
		}
	}
	m.endSelectionLocked(l, 0)
	l.State = LeverNeutral
	l.Locked = false
}
