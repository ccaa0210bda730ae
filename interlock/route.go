package interlock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"nyiyui.ca/hato/interlocking/layout"
	"nyiyui.ca/hato/interlocking/point"
)

// Route is a path from a lever to a button, with the switch positions it requires.
type Route struct {
	ID       RouteID                            `json:"id"`
	Name     string                             `json:"name"`
	Lever    LeverID                            `json:"lever"`
	Button   ButtonID                           `json:"button"`
	Path     []layout.PortRef                   `json:"path"`
	Switches map[layout.TrackID]layout.Position `json:"switches"`
	// Active is set by the machine only.
	Active bool `json:"active"`
}

func (r Route) clone() Route {
	r.Path = slices.Clone(r.Path)
	sw := make(map[layout.TrackID]layout.Position, len(r.Switches))
	for k, v := range r.Switches {
		sw[k] = v
	}
	r.Switches = sw
	return r
}

// Tracks returns the tracks the route passes, in order.
func (r Route) Tracks() []layout.TrackID {
	return layout.PathTracks(r.Path)
}

// Conflicts reports whether the two routes share a track.
func (r Route) Conflicts(o Route) bool {
	ts := r.Tracks()
	for _, t := range o.Tracks() {
		if slices.Contains(ts, t) {
			return true
		}
	}
	return false
}

func (r Route) samePath(o Route) bool {
	return r.Lever == o.Lever && r.Button == o.Button && slices.Equal(r.Path, o.Path)
}

// Activation is the result of an activation request.
type Activation struct {
	Route RouteID `json:"route"`
	// Locked is set if the route is active afterwards.
	Locked bool `json:"locked"`
	// AlreadyActive is set if the route was active before the request; nothing was done.
	AlreadyActive bool `json:"already-active,omitempty"`
	// Conflicts are the active routes sharing a track with the route.
	// If Locked is not set, the route is pending until Confirm or Cancel. Otherwise, they were released.
	Conflicts []RouteID `json:"conflicts,omitempty"`
	// Tasks are the point commands issued.
	Tasks []*point.Task `json:"-"`
}

// Pending reports whether the activation is waiting for confirmation.
func (a Activation) Pending() bool {
	return !a.Locked && len(a.Conflicts) != 0
}

// Route returns a copy of the route.
func (m *Machine) Route(id RouteID) (Route, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return Route{}, false
	}
	return r.clone(), true
}

// Routes returns all stored routes in the order they were added.
func (m *Machine) Routes() []Route {
	m.lock.Lock()
	defer m.lock.Unlock()
	rs := make([]Route, 0, len(m.routeOrder))
	for _, id := range m.routeOrder {
		rs = append(rs, m.routes[id].clone())
	}
	return rs
}

// Pending returns the routes waiting for confirmation, and the routes in their way.
func (m *Machine) Pending() map[RouteID][]RouteID {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := make(map[RouteID][]RouteID, len(m.pending))
	for id, conflicts := range m.pending {
		res[id] = slices.Clone(conflicts)
	}
	return res
}

// AddRoute stores a route. A nil ID is replaced with a new one.
// The route's lever and button must exist.
func (m *Machine) AddRoute(r Route) (RouteID, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.addRouteLocked(r)
}

func (m *Machine) addRouteLocked(r Route) (RouteID, error) {
	l, ok := m.levers[r.Lever]
	if !ok {
		return uuid.Nil, fmt.Errorf("lever %d: %w", r.Lever, ErrNotFound)
	}
	b, ok := m.buttons[r.Button]
	if !ok {
		return uuid.Nil, fmt.Errorf("button %d: %w", r.Button, ErrNotFound)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	} else if _, ok := m.routes[r.ID]; ok {
		return uuid.Nil, fmt.Errorf("route %s: %w", r.ID, ErrDuplicate)
	}
	// routes over missing tracks are reported as dangling when activated
	if err := checkSwitches(m.y, &r); err != nil && !errors.Is(err, layout.ErrTrackNotFound) {
		return uuid.Nil, fmt.Errorf("route %s: %w", r.ID, err)
	}
	for _, id := range m.routeOrder {
		if o := m.routes[id]; o.samePath(r) {
			return o.ID, fmt.Errorf("route %s: %w", o.ID, ErrDuplicateRoute)
		}
	}
	r = r.clone()
	r.Active = false
	m.routes[r.ID] = &r
	m.routeOrder = append(m.routeOrder, r.ID)
	l.Routes = append(l.Routes, r.ID)
	b.Routes = append(b.Routes, r.ID)
	return r.ID, nil
}

// RemoveRoute releases the route if active and deletes it.
func (m *Machine) RemoveRoute(id RouteID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	if r.Active {
		m.deactivateLocked(r)
	}
	m.dropRouteLocked(r)
	return nil
}

func (m *Machine) dropRouteLocked(r *Route) {
	delete(m.pending, r.ID)
	delete(m.routes, r.ID)
	if i := slices.Index(m.routeOrder, r.ID); i != -1 {
		m.routeOrder = slices.Delete(m.routeOrder, i, i+1)
	}
	if l, ok := m.levers[r.Lever]; ok {
		if i := slices.Index(l.Routes, r.ID); i != -1 {
			l.Routes = slices.Delete(l.Routes, i, i+1)
		}
	}
	if b, ok := m.buttons[r.Button]; ok {
		if i := slices.Index(b.Routes, r.ID); i != -1 {
			b.Routes = slices.Delete(b.Routes, i, i+1)
		}
	}
}

// RequestRoutesFor searches for every path from the lever to each button.
// The routes are not stored; each has a fresh ID.
// The search runs on a copy of the layout, so other operations can go on meanwhile.
func (m *Machine) RequestRoutesFor(ctx context.Context, id LeverID) ([]Route, error) {
	m.lock.Lock()
	l, ok := m.levers[id]
	if !ok {
		m.lock.Unlock()
		return nil, fmt.Errorf("lever %d: %w", id, ErrNotFound)
	}
	lever := l.clone()
	buttons := make([]Button, 0, len(m.buttons))
	for _, b := range m.buttons {
		buttons = append(buttons, b.clone())
	}
	y := m.y.Clone()
	m.lock.Unlock()
	return searchRoutes(ctx, y, lever, buttons)
}

func searchRoutes(ctx context.Context, y *layout.Layout, l Lever, buttons []Button) ([]Route, error) {
	sort.Slice(buttons, func(i, j int) bool { return buttons[i].ID < buttons[j].ID })
	found := make([][]layout.Candidate, len(buttons))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range buttons {
		i, b := i, b
		g.Go(func() error {
			cs, err := y.SearchContext(ctx, l.Anchor, b.Anchor)
			if err != nil {
				return fmt.Errorf("search L%d → B%d: %w", l.ID, b.ID, err)
			}
			found[i] = cs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rs := make([]Route, 0)
	for i, b := range buttons {
		for j, c := range found[i] {
			rs = append(rs, Route{
				ID:       uuid.New(),
				Name:     fmt.Sprintf("L%d→B%d/%d", l.ID, b.ID, j+1),
				Lever:    l.ID,
				Button:   b.ID,
				Path:     c.Path,
				Switches: c.Switches,
			})
		}
	}
	return rs, nil
}

// GenerateRoutes searches for routes from the lever and stores the ones not already stored.
// It returns the IDs of the new routes.
func (m *Machine) GenerateRoutes(ctx context.Context, id LeverID) ([]RouteID, error) {
	rs, err := m.RequestRoutesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.promoteLocked(rs)
}

func (m *Machine) promoteLocked(rs []Route) ([]RouteID, error) {
	ids := make([]RouteID, 0, len(rs))
	for _, r := range rs {
		id, err := m.addRouteLocked(r)
		if errors.Is(err, ErrDuplicateRoute) {
			continue
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	m.log.Debugw("routes generated", "new", len(ids), "found", len(rs))
	return ids, nil
}

// Activate locks the route and throws its switches.
// If active routes share a track with it, nothing changes and the route waits for Confirm or Cancel.
func (m *Machine) Activate(id RouteID) (Activation, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return Activation{}, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	return m.activateLocked(r, false)
}

// Confirm releases the routes in the way of a pending route, and activates it.
func (m *Machine) Confirm(id RouteID) (Activation, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return Activation{}, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	if _, ok := m.pending[id]; !ok {
		return Activation{}, fmt.Errorf("route %s: %w", id, ErrNotPending)
	}
	return m.activateLocked(r, true)
}

// Cancel drops a pending activation request.
func (m *Machine) Cancel(id RouteID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	if _, ok := m.pending[id]; !ok {
		return fmt.Errorf("route %s: %w", id, ErrNotPending)
	}
	delete(m.pending, id)
	if b, ok := m.buttons[r.Button]; ok && b.State == ButtonSelected {
		if l, ok := m.levers[b.Selector]; ok && l.State != LeverNeutral && !l.Locked {
			b.State = ButtonSelectable
		} else {
			b.State = ButtonNormal
		}
	}
	m.log.Infow("activation cancelled", "route", r.ID)
	return nil
}

// Deactivate releases the route. Switches stay where they are.
func (m *Machine) Deactivate(id RouteID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	if r.Active {
		m.deactivateLocked(r)
	}
	return nil
}

// checkRefsLocked returns an error if the route refers to something that doesn't exist anymore.
func (m *Machine) checkRefsLocked(r *Route) error {
	if _, ok := m.levers[r.Lever]; !ok {
		return &DanglingReferenceError{Route: r.ID, What: "lever", ID: int(r.Lever)}
	}
	if _, ok := m.buttons[r.Button]; !ok {
		return &DanglingReferenceError{Route: r.ID, What: "button", ID: int(r.Button)}
	}
	for _, t := range r.Tracks() {
		if _, ok := m.y.Track(t); !ok {
			return &DanglingReferenceError{Route: r.ID, What: "track", ID: int(t)}
		}
	}
	return nil
}

// checkSwitches makes sure the route's switch requirements are the ones its path needs on y.
// A route without requirements gets them from its path.
func checkSwitches(y *layout.Layout, r *Route) error {
	need, err := y.PathSwitches(r.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}
	if r.Switches == nil {
		r.Switches = need
		return nil
	}
	has := make(map[layout.TrackID]layout.Position, len(r.Switches))
	for t, pos := range r.Switches {
		if pos != layout.PositionNone {
			has[t] = pos
		}
	}
	if maps.Equal(has, need) {
		return nil
	}
	tracks := append(maps.Keys(has), maps.Keys(need)...)
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })
	for _, t := range tracks {
		if has[t] != need[t] {
			return fmt.Errorf("track %d: path needs %s, route has %s: %w", t, need[t], has[t], ErrInvalidRoute)
		}
	}
	return nil
}

func (m *Machine) conflictsLocked(r *Route) []RouteID {
	var conflicts []RouteID
	for _, id := range m.routeOrder {
		o := m.routes[id]
		if o.ID != r.ID && o.Active && r.Conflicts(*o) {
			conflicts = append(conflicts, o.ID)
		}
	}
	return conflicts
}

func (m *Machine) activateLocked(r *Route, override bool) (Activation, error) {
	if r.Active {
		return Activation{Route: r.ID, Locked: true, AlreadyActive: true}, nil
	}
	if err := m.checkRefsLocked(r); err != nil {
		m.log.Warnw("dropping route", "route", r.ID, "err", err)
		m.dropRouteLocked(r)
		return Activation{}, err
	}
	// checked before anything changes
	if err := checkSwitches(m.y, r); err != nil {
		m.log.Warnw("route not activated", "route", r.ID, "err", err)
		return Activation{}, fmt.Errorf("route %s: %w", r.ID, err)
	}
	conflicts := m.conflictsLocked(r)
	if len(conflicts) != 0 && !override {
		m.pending[r.ID] = conflicts
		m.log.Infow("activation pending", "route", r.ID, "conflicts", conflicts)
		m.emit(Event{Type: EventRoutePending, Route: r.ID, Lever: r.Lever, Button: r.Button, Conflicts: slices.Clone(conflicts)})
		return Activation{Route: r.ID, Conflicts: conflicts}, nil
	}
	delete(m.pending, r.ID)
	l := m.levers[r.Lever]
	state := l.State
	for _, id := range conflicts {
		m.deactivateLocked(m.routes[id])
	}
	l.State = state

	act := Activation{Route: r.ID, Locked: true, Conflicts: conflicts}
	tracks := make([]layout.TrackID, 0, len(r.Switches))
	for t, pos := range r.Switches {
		if pos == layout.PositionNone {
			continue
		}
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })
	for _, t := range tracks {
		task, err := m.throwLocked(t, r.Switches[t])
		if err != nil {
			// checkSwitches made sure every track here is a switch
			return Activation{}, fmt.Errorf("route %s: throw %d: %w", r.ID, t, err)
		}
		if task != nil {
			act.Tasks = append(act.Tasks, task)
		}
	}

	r.Active = true
	l.Locked = true
	b := m.buttons[r.Button]
	b.State = ButtonActive
	b.Selector = r.Lever
	m.endSelectionLocked(l, b.ID)
	m.log.Infow("route locked", "route", r.ID, "name", r.Name, "switches", len(tracks))
	m.emit(Event{Type: EventRouteLocked, Route: r.ID, Lever: r.Lever, Button: r.Button, Conflicts: slices.Clone(conflicts)})
	return act, nil
}

func (m *Machine) deactivateLocked(r *Route) {
	r.Active = false
	if l, ok := m.levers[r.Lever]; ok && !m.hasActiveLocked(func(o *Route) bool { return o.Lever == l.ID }) {
		l.Locked = false
		l.State = LeverNeutral
		m.endSelectionLocked(l, 0)
	}
	if b, ok := m.buttons[r.Button]; ok && !m.hasActiveLocked(func(o *Route) bool { return o.Button == b.ID }) {
		b.State = ButtonNormal
	}
	m.log.Infow("route released", "route", r.ID, "name", r.Name)
	m.emit(Event{Type: EventRouteReleased, Route: r.ID, Lever: r.Lever, Button: r.Button})
}

func (m *Machine) hasActiveLocked(f func(r *Route) bool) bool {
	for _, id := range m.routeOrder {
		r := m.routes[id]
		if r.Active && f(r) {
			return true
		}
	}
	return false
}
