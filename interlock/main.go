// Package interlock holds levers, buttons and routes on top of a layout, and makes sure no two locked routes share a track.
package interlock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/interlocking/layout"
	"nyiyui.ca/hato/interlocking/notify"
	"nyiyui.ca/hato/interlocking/point"
)

type LeverID int

type ButtonID int

type RouteID = uuid.UUID

// Lever is the origin of routes. Its anchor is the (track, port) the routes start from.
type Lever struct {
	ID      LeverID        `json:"id"`
	Comment string         `json:"comment,omitempty"`
	Kind    LeverKind      `json:"kind"`
	Anchor  layout.PortRef `json:"anchor"`
	State   LeverState     `json:"state"`
	Routes  []RouteID      `json:"routes"`
	// Locked is set while a route of this lever is active.
	Locked bool `json:"locked"`
}

func (l Lever) clone() Lever {
	l.Routes = slices.Clone(l.Routes)
	return l
}

// Button is the destination of routes.
type Button struct {
	ID      ButtonID       `json:"id"`
	Comment string         `json:"comment,omitempty"`
	Anchor  layout.PortRef `json:"anchor"`
	State   ButtonState    `json:"state"`
	Routes  []RouteID      `json:"routes"`
	// Selector is the lever that made this button selectable (or selected). Only meaningful in those states.
	Selector LeverID `json:"selector,omitempty"`
}

func (b Button) clone() Button {
	b.Routes = slices.Clone(b.Routes)
	return b
}

type Conf struct {
	Layout *layout.Layout
	Driver point.Driver
	// Context is passed to the driver for every command. Defaults to context.Background().
	Context context.Context
	// Logger defaults to zap.S().
	Logger *zap.SugaredLogger
}

// Machine is the interlocking state machine.
// All methods are safe for concurrent use; operations are applied one at a time.
type Machine struct {
	ctx    context.Context
	log    *zap.SugaredLogger
	driver point.Driver

	lock    sync.Mutex
	y       *layout.Layout
	levers  map[LeverID]*Lever
	buttons map[ButtonID]*Button
	routes  map[RouteID]*Route
	// order of routes as added
	routeOrder []RouteID
	// pending maps a route awaiting confirmation to the active routes in its way.
	pending map[RouteID][]RouteID
	tasks   map[layout.TrackID]*point.Task

	eventsLock sync.Mutex
	closed     bool
	events     *notify.MultiplexerSender[Event]
	// Events receives every Event the machine emits, in order.
	Events *notify.Multiplexer[Event]
}

func New(conf Conf) *Machine {
	if conf.Layout == nil {
		conf.Layout = layout.New()
	}
	if conf.Context == nil {
		conf.Context = context.Background()
	}
	if conf.Logger == nil {
		conf.Logger = zap.S()
	}
	ms, mux := notify.NewMultiplexerSender[Event]("interlock")
	return &Machine{
		ctx:     conf.Context,
		log:     conf.Logger,
		driver:  conf.Driver,
		y:       conf.Layout,
		levers:  map[LeverID]*Lever{},
		buttons: map[ButtonID]*Button{},
		routes:  map[RouteID]*Route{},
		pending: map[RouteID][]RouteID{},
		tasks:   map[layout.TrackID]*point.Task{},
		events:  ms,
		Events:  mux,
	}
}

// Close stops event delivery.
func (m *Machine) Close() {
	m.eventsLock.Lock()
	defer m.eventsLock.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.events.Close()
}

func (m *Machine) emit(e Event) {
	m.eventsLock.Lock()
	defer m.eventsLock.Unlock()
	if m.closed {
		return
	}
	m.events.Send(e)
}

// Layout returns a copy of the current topology.
func (m *Machine) Layout() *layout.Layout {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.y.Clone()
}

func (m *Machine) Lever(id LeverID) (Lever, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	l, ok := m.levers[id]
	if !ok {
		return Lever{}, false
	}
	return l.clone(), true
}

// Levers returns all levers sorted by id.
func (m *Machine) Levers() []Lever {
	m.lock.Lock()
	defer m.lock.Unlock()
	ls := make([]Lever, 0, len(m.levers))
	for _, l := range m.levers {
		ls = append(ls, l.clone())
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
	return ls
}

func (m *Machine) Button(id ButtonID) (Button, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	b, ok := m.buttons[id]
	if !ok {
		return Button{}, false
	}
	return b.clone(), true
}

// Buttons returns all buttons sorted by id.
func (m *Machine) Buttons() []Button {
	m.lock.Lock()
	defer m.lock.Unlock()
	bs := make([]Button, 0, len(m.buttons))
	for _, b := range m.buttons {
		bs = append(bs, b.clone())
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i].ID < bs[j].ID })
	return bs
}

func (m *Machine) AddLever(l Lever) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.levers[l.ID]; ok {
		return fmt.Errorf("lever %d: %w", l.ID, ErrDuplicate)
	}
	l.State = LeverNeutral
	l.Locked = false
	l.Routes = nil
	m.levers[l.ID] = &l
	// routes left over from a removed lever with the same id
	for _, rid := range slices.Clone(m.routeOrder) {
		r := m.routes[rid]
		if r.Lever != l.ID {
			continue
		}
		if len(r.Path) == 0 || r.Path[0] != l.Anchor {
			m.log.Infow("dropping route from another anchor", "route", rid, "lever", l.ID)
			m.dropRouteLocked(r)
			continue
		}
		l.Routes = append(l.Routes, rid)
	}
	m.log.Debugw("lever added", "lever", l.ID, "anchor", l.Anchor, "routes", len(l.Routes))
	return nil
}

// RemoveLever releases the lever's active routes and removes it.
// Its routes are kept but refer to a lever that no longer exists, until a lever with the same id is added.
func (m *Machine) RemoveLever(id LeverID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	l, ok := m.levers[id]
	if !ok {
		return fmt.Errorf("lever %d: %w", id, ErrNotFound)
	}
	m.releaseLeverLocked(l)
	delete(m.levers, id)
	m.log.Debugw("lever removed", "lever", id)
	return nil
}

func (m *Machine) AddButton(b Button) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.buttons[b.ID]; ok {
		return fmt.Errorf("button %d: %w", b.ID, ErrDuplicate)
	}
	b.State = ButtonNormal
	b.Selector = 0
	b.Routes = nil
	m.buttons[b.ID] = &b
	for _, rid := range slices.Clone(m.routeOrder) {
		r := m.routes[rid]
		if r.Button != b.ID {
			continue
		}
		if len(r.Path) == 0 || r.Path[len(r.Path)-1] != b.Anchor {
			m.log.Infow("dropping route to another anchor", "route", rid, "button", b.ID)
			m.dropRouteLocked(r)
			continue
		}
		b.Routes = append(b.Routes, rid)
	}
	m.log.Debugw("button added", "button", b.ID, "anchor", b.Anchor, "routes", len(b.Routes))
	return nil
}

// RemoveButton releases active routes ending at the button and removes it.
func (m *Machine) RemoveButton(id ButtonID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.buttons[id]; !ok {
		return fmt.Errorf("button %d: %w", id, ErrNotFound)
	}
	for _, rid := range slices.Clone(m.routeOrder) {
		r := m.routes[rid]
		if r.Button != id {
			continue
		}
		delete(m.pending, rid)
		if r.Active {
			m.deactivateLocked(r)
		}
	}
	delete(m.buttons, id)
	m.log.Debugw("button removed", "button", id)
	return nil
}

func (m *Machine) AddTrack(t layout.Track) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.y.AddTrack(t)
}

// RemoveTrack releases active routes over the track and removes it from the layout.
func (m *Machine) RemoveTrack(id layout.TrackID) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.y.Track(id); !ok {
		return fmt.Errorf("track %d: %w", id, layout.ErrTrackNotFound)
	}
	for _, rid := range slices.Clone(m.routeOrder) {
		r := m.routes[rid]
		if !slices.Contains(r.Tracks(), id) {
			continue
		}
		delete(m.pending, rid)
		if r.Active {
			m.deactivateLocked(r)
		}
	}
	delete(m.tasks, id)
	return m.y.RemoveTrack(id)
}

// Connect connects two ports. Active routes are not affected.
func (m *Machine) Connect(a, b layout.PortRef) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.y.Connect(a, b)
}

func (m *Machine) Disconnect(p layout.PortRef) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.y.Disconnect(p)
}

// PendingTasks returns point commands that haven't completed yet, sorted by track.
func (m *Machine) PendingTasks() []*point.Task {
	m.lock.Lock()
	defer m.lock.Unlock()
	ts := make([]*point.Task, 0)
	for _, t := range m.tasks {
		if t.Pending() {
			ts = append(ts, t)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Track < ts[j].Track })
	return ts
}

// ThrowSwitch moves a switch by hand. Switches claimed by an active route are locked.
func (m *Machine) ThrowSwitch(id layout.TrackID, pos layout.Position) (*point.Task, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, rid := range m.routeOrder {
		r := m.routes[rid]
		if r.Active && slices.Contains(r.Tracks(), id) {
			return nil, &LockedError{Track: id, Route: r.ID}
		}
	}
	return m.throwLocked(id, pos)
}

func (m *Machine) throwLocked(id layout.TrackID, pos layout.Position) (*point.Task, error) {
	if err := m.y.SetPosition(id, pos); err != nil {
		return nil, err
	}
	if m.driver == nil {
		return nil, nil
	}
	task := m.driver.SetPosition(m.ctx, id, pos)
	m.tasks[id] = task
	go m.watch(task)
	return task, nil
}

func (m *Machine) watch(task *point.Task) {
	<-task.Done()
	if err := task.Err(); err != nil {
		m.log.Errorw("point command failed", "track", task.Track, "position", task.Position, "err", err)
		m.emit(Event{Type: EventDriverFailed, Track: task.Track, Position: task.Position, Err: err.Error()})
		return
	}
	m.emit(Event{Type: EventSwitchMoved, Track: task.Track, Position: task.Position})
}
