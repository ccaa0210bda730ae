package interlock

import (
	"errors"
	"fmt"
	"sort"

	"nyiyui.ca/hato/interlocking/layout"
	"nyiyui.ca/hato/interlocking/point"
)

// Snapshot is the plain-data form of a machine.
type Snapshot struct {
	Tracks  []layout.TrackRecord `json:"tracks"`
	Levers  []Lever              `json:"levers"`
	Buttons []Button             `json:"buttons"`
	Routes  []Route              `json:"routes"`
}

// Export returns a snapshot of the whole machine. Levers and buttons are ordered by id, routes in the order they were added.
func (m *Machine) Export() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	s := Snapshot{
		Tracks:  m.y.Export(),
		Levers:  make([]Lever, 0, len(m.levers)),
		Buttons: make([]Button, 0, len(m.buttons)),
		Routes:  make([]Route, 0, len(m.routeOrder)),
	}
	for _, l := range m.levers {
		s.Levers = append(s.Levers, l.clone())
	}
	sort.Slice(s.Levers, func(i, j int) bool { return s.Levers[i].ID < s.Levers[j].ID })
	for _, b := range m.buttons {
		s.Buttons = append(s.Buttons, b.clone())
	}
	sort.Slice(s.Buttons, func(i, j int) bool { return s.Buttons[i].ID < s.Buttons[j].ID })
	for _, id := range m.routeOrder {
		s.Routes = append(s.Routes, m.routes[id].clone())
	}
	return s
}

// Import replaces the machine's state with the snapshot.
// Lever and button states are reset, and routes marked active are activated again (throwing their switches).
// Active routes that can't be activated are logged and left inactive.
func (m *Machine) Import(s Snapshot) error {
	y, err := layout.Import(s.Tracks)
	if err != nil {
		return fmt.Errorf("import tracks: %w", err)
	}
	levers := make(map[LeverID]*Lever, len(s.Levers))
	for _, l := range s.Levers {
		if _, ok := levers[l.ID]; ok {
			return fmt.Errorf("import lever %d: %w", l.ID, ErrDuplicate)
		}
		l := l
		l.State = LeverNeutral
		l.Locked = false
		l.Routes = nil
		levers[l.ID] = &l
	}
	buttons := make(map[ButtonID]*Button, len(s.Buttons))
	for _, b := range s.Buttons {
		if _, ok := buttons[b.ID]; ok {
			return fmt.Errorf("import button %d: %w", b.ID, ErrDuplicate)
		}
		b := b
		b.State = ButtonNormal
		b.Selector = 0
		b.Routes = nil
		buttons[b.ID] = &b
	}
	routes := make(map[RouteID]*Route, len(s.Routes))
	order := make([]RouteID, 0, len(s.Routes))
	var active []RouteID
	for _, r := range s.Routes {
		if _, ok := routes[r.ID]; ok {
			return fmt.Errorf("import route %s: %w", r.ID, ErrDuplicate)
		}
		r := r.clone()
		// routes over missing tracks are reported as dangling when activated
		if err := checkSwitches(y, &r); err != nil && !errors.Is(err, layout.ErrTrackNotFound) {
			return fmt.Errorf("import route %s: %w", r.ID, err)
		}
		if r.Active {
			active = append(active, r.ID)
		}
		r.Active = false
		routes[r.ID] = &r
		order = append(order, r.ID)
		if l, ok := levers[r.Lever]; ok {
			l.Routes = append(l.Routes, r.ID)
		}
		if b, ok := buttons[r.Button]; ok {
			b.Routes = append(b.Routes, r.ID)
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.y = y
	m.levers = levers
	m.buttons = buttons
	m.routes = routes
	m.routeOrder = order
	m.pending = map[RouteID][]RouteID{}
	m.tasks = map[layout.TrackID]*point.Task{}
	for _, id := range active {
		r, ok := m.routes[id]
		if !ok {
			// dropped as dangling by an earlier activation
			continue
		}
		act, err := m.activateLocked(r, false)
		if err != nil {
			m.log.Warnw("import: route not reactivated", "route", id, "err", err)
			continue
		}
		if act.Pending() {
			delete(m.pending, id)
			m.log.Warnw("import: route not reactivated", "route", id, "conflicts", act.Conflicts)
		}
	}
	m.log.Infow("imported", "tracks", len(s.Tracks), "levers", len(levers), "buttons", len(buttons), "routes", len(order))
	return nil
}
