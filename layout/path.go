package layout

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// MaxSearchDepth is the maximum number of moves in a path. It bounds runaway recursion on malformed layouts.
// Passing through a track and crossing to the next one are separate moves, so a path spans at most about 25 tracks.
const MaxSearchDepth = 50

// how many moves between context checks
const searchCheckInterval = 256

// Candidate is a path found by Search.
type Candidate struct {
	// Path is the list of ports in the order they are passed, starting with the origin and ending with the destination.
	Path []PortRef
	// Switches has the position each switch-capable track on Path must be in.
	Switches map[TrackID]Position
}

func (c Candidate) String() string {
	return pathKey(c.Path)
}

// Tracks returns the ids of the tracks on the path, in order of first appearance.
func (c Candidate) Tracks() []TrackID {
	return PathTracks(c.Path)
}

func PathTracks(path []PortRef) []TrackID {
	ids := make([]TrackID, 0, len(path))
	for _, p := range path {
		if !slices.Contains(ids, p.Track) {
			ids = append(ids, p.Track)
		}
	}
	return ids
}

func pathKey(path []PortRef) string {
	b := new(strings.Builder)
	for i, p := range path {
		if i != 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(b, "%d:%d", p.Track, p.Port)
	}
	return b.String()
}

type move int

const (
	moveStart move = iota
	moveInternal
	moveExternal
)

// searchFrame holds visitation marks for one search.
// Tracks are indexed densely so marks are slices instead of sets, and are pushed/popped as the search backtracks.
type searchFrame struct {
	ctx   context.Context
	y     *Layout
	to    PortRef
	index map[TrackID]int
	// traversed is whether a track has been passed through (entered and exited through a pair of its ports).
	traversed []bool
	// committed is the pair a switch-capable track has been committed to. Only valid if traversed.
	committed []PortPair
	path      []PortRef
	moves     int
	seen      map[string]struct{}
	results   []Candidate
}

// Search returns every path from one port to another that can be traversed with each switch in a single position.
// An unreachable destination results in no candidates.
func (y *Layout) Search(from, to PortRef) []Candidate {
	cs, err := y.SearchContext(context.Background(), from, to)
	if err != nil {
		panic(fmt.Sprintf("search without cancellation failed: %s", err))
	}
	return cs
}

// SearchContext is Search, but aborts when ctx is done.
func (y *Layout) SearchContext(ctx context.Context, from, to PortRef) ([]Candidate, error) {
	if _, err := y.port(from); err != nil {
		return nil, nil
	}
	if _, err := y.port(to); err != nil {
		return nil, nil
	}
	ids := y.ids()
	f := &searchFrame{
		ctx:       ctx,
		y:         y,
		to:        to,
		index:     make(map[TrackID]int, len(ids)),
		traversed: make([]bool, len(ids)),
		committed: make([]PortPair, len(ids)),
		path:      make([]PortRef, 0, MaxSearchDepth+1),
		seen:      map[string]struct{}{},
	}
	for i, id := range ids {
		f.index[id] = i
	}
	f.path = append(f.path, from)
	if err := f.walk(from, 0, moveStart); err != nil {
		return nil, err
	}
	return f.results, nil
}

func (f *searchFrame) walk(cur PortRef, depth int, last move) error {
	if depth > 0 && cur == f.to {
		f.record()
		return nil
	}
	if depth >= MaxSearchDepth {
		return nil
	}
	f.moves++
	if f.moves%searchCheckInterval == 0 {
		if err := f.ctx.Err(); err != nil {
			return err
		}
	}
	ti := f.index[cur.Track]
	t := f.y.tracks[cur.Track]
	if last != moveInternal && !f.traversed[ti] {
		for _, exit := range AllowedNextPorts(t.Kind, cur.Port) {
			if !f.enter(ti, pairOf(cur.Port, exit.Port)) {
				continue
			}
			err := f.step(PortRef{cur.Track, exit.Port}, depth, moveInternal)
			f.leave(ti)
			if err != nil {
				return err
			}
		}
	}
	if last != moveExternal {
		next, ok := f.y.Neighbor(cur)
		if ok && !f.traversed[f.index[next.Track]] {
			if err := f.step(next, depth, moveExternal); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *searchFrame) step(next PortRef, depth int, m move) error {
	f.path = append(f.path, next)
	err := f.walk(next, depth+1, m)
	f.path = f.path[:len(f.path)-1]
	return err
}

// enter marks track ti as passed through pair.
// A switch-capable track is committed to the first pair used: another pair needs the other position, and the same pair would reuse the same piece of track.
func (f *searchFrame) enter(ti int, pair PortPair) bool {
	if f.traversed[ti] {
		return false
	}
	f.traversed[ti] = true
	f.committed[ti] = pair
	return true
}

func (f *searchFrame) leave(ti int) {
	f.traversed[ti] = false
	f.committed[ti] = PortPair{}
}

func (f *searchFrame) record() {
	key := pathKey(f.path)
	if _, ok := f.seen[key]; ok {
		return
	}
	f.seen[key] = struct{}{}
	c := Candidate{
		Path:     slices.Clone(f.path),
		Switches: map[TrackID]Position{},
	}
	for _, p := range f.path {
		ti := f.index[p.Track]
		t := f.y.tracks[p.Track]
		if !f.traversed[ti] || !t.Kind.IsSwitch() {
			continue
		}
		pair := f.committed[ti]
		tag, ok := PairTag(t.Kind, pair[0], pair[1])
		if !ok {
			panic(fmt.Sprintf("committed pair %v of track %d (%s) is not valid", pair, p.Track, t.Kind))
		}
		c.Switches[p.Track] = tag
	}
	f.results = append(f.results, c)
}

// PathSwitches returns the position each switch-capable track must be in for path to be traversed.
// Consecutive ports on the same track must be a pair the track's kind allows, each track may be passed through once,
// and consecutive ports on different tracks must be connected.
func (y *Layout) PathSwitches(path []PortRef) (map[TrackID]Position, error) {
	sw := map[TrackID]Position{}
	passed := map[TrackID]bool{}
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		if _, err := y.port(a); err != nil {
			return nil, err
		}
		if _, err := y.port(b); err != nil {
			return nil, err
		}
		if a.Track != b.Track {
			if next, ok := y.Neighbor(a); !ok || next != b {
				return nil, fmt.Errorf("%s → %s: not connected: %w", a, b, ErrInvalidPath)
			}
			continue
		}
		if passed[a.Track] {
			return nil, fmt.Errorf("%s → %s: track %d passed twice: %w", a, b, a.Track, ErrInvalidPath)
		}
		passed[a.Track] = true
		t := y.tracks[a.Track]
		tag, ok := PairTag(t.Kind, a.Port, b.Port)
		if !ok {
			return nil, fmt.Errorf("%s → %s: %s does not pair these ports: %w", a, b, t.Kind, ErrInvalidPath)
		}
		if t.Kind.IsSwitch() {
			sw[a.Track] = tag
		}
	}
	return sw, nil
}

// MustSearchOne returns the only candidate between from and to, and panics otherwise.
// This is for presets and testing.
func (y *Layout) MustSearchOne(from, to PortRef) Candidate {
	cs := y.Search(from, to)
	if len(cs) != 1 {
		panic(fmt.Sprintf("search %s → %s: expected 1 candidate, got %d", from, to, len(cs)))
	}
	return cs[0]
}
