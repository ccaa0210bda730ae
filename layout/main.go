package layout

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DefaultSnapRadius is the distance within which port points are considered coincident.
const DefaultSnapRadius = 5.0

var (
	ErrTrackNotFound  = errors.New("track not found")
	ErrPortOutOfRange = errors.New("port out of range")
	ErrDuplicateTrack = errors.New("duplicate track id")
	ErrNotSwitch      = errors.New("track is not switch-capable")
	ErrInvalidPath    = errors.New("path cannot be traversed")
)

// TrackID identifies a track. All ids from outside (JSON, the store, operators) are normalised to this type.
type TrackID int

// PortRef contains an identifier for a track and one of its ports.
type PortRef struct {
	Track TrackID `json:"track"`
	Port  int     `json:"port"`
}

func (p PortRef) String() string {
	return fmt.Sprintf("t%d/p%d", p.Track, p.Port)
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (a Point) dist(b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Port is a connection point from a track to another track.
// For example, a point would have 3 ports: the common port, the through port, and the diverging port.
type Port struct {
	Point Point
	// ConnFilled must be true to use Conn.
	ConnFilled bool
	// Conn is the port on the other track this port connects to.
	Conn PortRef
}

func (p Port) String() string {
	if p.ConnFilled {
		return fmt.Sprintf("(%g,%g) → %s", p.Point.X, p.Point.Y, p.Conn)
	}
	return fmt.Sprintf("(%g,%g) → NA", p.Point.X, p.Point.Y)
}

type Track struct {
	ID TrackID
	// Comment is a human-readable comment about the track.
	Comment string
	Kind    Kind
	Ports   []Port
	// Position is only meaningful when Kind.IsSwitch().
	Position Position
}

func (t Track) clone() Track {
	t.Ports = slices.Clone(t.Ports)
	return t
}

// Layout owns tracks and the connections between their ports.
// A Layout is not safe for concurrent mutation; callers serialise access (see interlock.Machine).
type Layout struct {
	tracks map[TrackID]*Track
	// SnapRadius is used by AddTrack to auto-connect coincident ports.
	SnapRadius float64
}

func New() *Layout {
	return &Layout{
		tracks:     map[TrackID]*Track{},
		SnapRadius: DefaultSnapRadius,
	}
}

// Clone returns a deep copy, suitable as an immutable snapshot for path search.
func (y *Layout) Clone() *Layout {
	y2 := &Layout{
		tracks:     make(map[TrackID]*Track, len(y.tracks)),
		SnapRadius: y.SnapRadius,
	}
	for id, t := range y.tracks {
		t2 := t.clone()
		y2.tracks[id] = &t2
	}
	return y2
}

func (y *Layout) Len() int { return len(y.tracks) }

// Track returns a copy of the track.
func (y *Layout) Track(id TrackID) (Track, bool) {
	t, ok := y.tracks[id]
	if !ok {
		return Track{}, false
	}
	return t.clone(), true
}

// Tracks returns copies of all tracks, ordered by id.
func (y *Layout) Tracks() []Track {
	ids := y.ids()
	ts := make([]Track, 0, len(ids))
	for _, id := range ids {
		ts = append(ts, y.tracks[id].clone())
	}
	return ts
}

func (y *Layout) ids() []TrackID {
	ids := maps.Keys(y.tracks)
	slices.Sort(ids)
	return ids
}

// MustLookup finds a track with a matching comment. If it doesn't it panics.
// This is for presets and testing.
func (y *Layout) MustLookup(comment string) TrackID {
	for _, id := range y.ids() {
		if y.tracks[id].Comment == comment {
			return id
		}
	}
	panic(fmt.Sprintf("found nothing when looking up for %s", comment))
}

func (y *Layout) port(p PortRef) (*Port, error) {
	t, ok := y.tracks[p.Track]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrTrackNotFound)
	}
	if p.Port < 0 || p.Port >= len(t.Ports) {
		return nil, fmt.Errorf("%s: %w", p, ErrPortOutOfRange)
	}
	return &t.Ports[p.Port], nil
}

// Neighbor returns the port p is connected to.
func (y *Layout) Neighbor(p PortRef) (PortRef, bool) {
	pp, err := y.port(p)
	if err != nil || !pp.ConnFilled {
		return PortRef{}, false
	}
	return pp.Conn, true
}

// Connect links ports a and b symmetrically.
// Reconnecting an existing link is a no-op.
func (y *Layout) Connect(a, b PortRef) error {
	if a == b {
		return fmt.Errorf("connect %s to itself: %w", a, ErrPortOutOfRange)
	}
	pa, err := y.port(a)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	pb, err := y.port(b)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if pa.ConnFilled && pa.Conn != b {
		return &ConflictError{Port: a, Existing: pa.Conn, Requested: b}
	}
	if pb.ConnFilled && pb.Conn != a {
		return &ConflictError{Port: b, Existing: pb.Conn, Requested: a}
	}
	// at this point, any existing link is either a→b/b→a or a one-sided leftover
	y.Disconnect(a)
	y.Disconnect(b)
	pa.ConnFilled, pa.Conn = true, b
	pb.ConnFilled, pb.Conn = true, a
	return nil
}

// Disconnect removes the link on p (and on its peer, if the peer points back).
func (y *Layout) Disconnect(p PortRef) {
	pp, err := y.port(p)
	if err != nil || !pp.ConnFilled {
		return
	}
	peer := pp.Conn
	pp.ConnFilled, pp.Conn = false, PortRef{}
	if q, err := y.port(peer); err == nil && q.ConnFilled && q.Conn == p {
		q.ConnFilled, q.Conn = false, PortRef{}
	}
}

// AddTrack adds t to the layout, auto-connecting ports that coincide with exactly one unconnected port.
// Connection information in t.Ports is ignored.
// If any port would coincide with more than one unconnected port, an *AmbiguousJunctionError is returned and the layout is left unchanged.
func (y *Layout) AddTrack(t Track) error {
	if _, ok := y.tracks[t.ID]; ok {
		return fmt.Errorf("add track %d: %w", t.ID, ErrDuplicateTrack)
	}
	if len(t.Ports) != t.Kind.PortCount() {
		return fmt.Errorf("add track %d: %s needs %d ports, got %d: %w", t.ID, t.Kind, t.Kind.PortCount(), len(t.Ports), ErrPortOutOfRange)
	}
	t = t.clone()
	for i := range t.Ports {
		t.Ports[i].ConnFilled, t.Ports[i].Conn = false, PortRef{}
	}
	if t.Kind.IsSwitch() && t.Position == PositionNone {
		t.Position = PositionNormal
	}
	snaps := make([]PortRef, len(t.Ports))
	claimed := map[PortRef]int{}
	for i, p := range t.Ports {
		candidates := y.coincident(p.Point)
		if len(candidates) >= 2 {
			return &AmbiguousJunctionError{Port: PortRef{t.ID, i}, Candidates: candidates}
		}
		if len(candidates) == 0 {
			snaps[i] = PortRef{Port: -1}
			continue
		}
		if j, ok := claimed[candidates[0]]; ok {
			return &AmbiguousJunctionError{
				Port:       PortRef{t.ID, i},
				Candidates: []PortRef{candidates[0], {t.ID, j}},
			}
		}
		claimed[candidates[0]] = i
		snaps[i] = candidates[0]
	}
	y.tracks[t.ID] = &t
	for i, snap := range snaps {
		if snap.Port == -1 {
			continue
		}
		if err := y.Connect(PortRef{t.ID, i}, snap); err != nil {
			panic(fmt.Sprintf("auto-connect to checked port failed: %s", err))
		}
	}
	return nil
}

// coincident returns unconnected ports within SnapRadius of pt.
func (y *Layout) coincident(pt Point) []PortRef {
	var res []PortRef
	for _, id := range y.ids() {
		t := y.tracks[id]
		for i, p := range t.Ports {
			if p.ConnFilled {
				continue
			}
			if p.Point.dist(pt) <= y.SnapRadius {
				res = append(res, PortRef{id, i})
			}
		}
	}
	return res
}

// RemoveTrack severs all connections of the track, then removes it.
func (y *Layout) RemoveTrack(id TrackID) error {
	t, ok := y.tracks[id]
	if !ok {
		return fmt.Errorf("remove track %d: %w", id, ErrTrackNotFound)
	}
	for i := range t.Ports {
		y.Disconnect(PortRef{id, i})
	}
	delete(y.tracks, id)
	return nil
}

// SetPosition sets the logical position of a switch-capable track.
func (y *Layout) SetPosition(id TrackID, pos Position) error {
	t, ok := y.tracks[id]
	if !ok {
		return fmt.Errorf("set position of %d: %w", id, ErrTrackNotFound)
	}
	if !t.Kind.IsSwitch() {
		return fmt.Errorf("set position of %d (%s): %w", id, t.Kind, ErrNotSwitch)
	}
	if pos != PositionNormal && pos != PositionReverse {
		return fmt.Errorf("set position of %d: invalid position %s", id, pos)
	}
	t.Position = pos
	return nil
}

// AmbiguousJunctionError is returned when a new track's port coincides with more than one unconnected port.
type AmbiguousJunctionError struct {
	Port       PortRef
	Candidates []PortRef
}

func (e *AmbiguousJunctionError) Error() string {
	return fmt.Sprintf("ambiguous junction at %s: coincides with %v", e.Port, e.Candidates)
}

// ConflictError is returned when a port is already connected to a port other than the requested one.
type ConflictError struct {
	Port      PortRef
	Existing  PortRef
	Requested PortRef
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("connect %s to %s: already connected to %s", e.Port, e.Requested, e.Existing)
}
