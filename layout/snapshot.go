package layout

import (
	"fmt"
	"sort"
)

// TrackRecord is the plain-data form of a Track, as exchanged with the layout store.
type TrackRecord struct {
	ID       TrackID      `json:"id"`
	Comment  string       `json:"comment,omitempty"`
	Kind     Kind         `json:"kind"`
	Ports    []PortRecord `json:"ports"`
	Position Position     `json:"position"`
}

type PortRecord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Conn is nil if the port is unconnected.
	Conn *PortRef `json:"conn,omitempty"`
}

// Export returns a snapshot of all tracks, ordered by id.
func (y *Layout) Export() []TrackRecord {
	ts := y.Tracks()
	rs := make([]TrackRecord, 0, len(ts))
	for _, t := range ts {
		r := TrackRecord{
			ID:       t.ID,
			Comment:  t.Comment,
			Kind:     t.Kind,
			Ports:    make([]PortRecord, len(t.Ports)),
			Position: t.Position,
		}
		for i, p := range t.Ports {
			r.Ports[i] = PortRecord{X: p.Point.X, Y: p.Point.Y}
			if p.ConnFilled {
				conn := p.Conn
				r.Ports[i].Conn = &conn
			}
		}
		rs = append(rs, r)
	}
	return rs
}

// Import builds a Layout from a snapshot. Connections are taken as-is (no auto-connection) and must be symmetric.
func Import(rs []TrackRecord) (*Layout, error) {
	y := New()
	for i, r := range rs {
		if _, ok := y.tracks[r.ID]; ok {
			return nil, fmt.Errorf("record %d: track %d: %w", i, r.ID, ErrDuplicateTrack)
		}
		if len(r.Ports) != r.Kind.PortCount() {
			return nil, fmt.Errorf("record %d: track %d: %s needs %d ports, got %d: %w", i, r.ID, r.Kind, r.Kind.PortCount(), len(r.Ports), ErrPortOutOfRange)
		}
		t := &Track{
			ID:       r.ID,
			Comment:  r.Comment,
			Kind:     r.Kind,
			Ports:    make([]Port, len(r.Ports)),
			Position: r.Position,
		}
		for j, p := range r.Ports {
			t.Ports[j].Point = Point{p.X, p.Y}
			if p.Conn != nil {
				t.Ports[j].ConnFilled = true
				t.Ports[j].Conn = *p.Conn
			}
		}
		y.tracks[r.ID] = t
	}
	if err := y.checkSymmetric(); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return y, nil
}

func (y *Layout) checkSymmetric() error {
	for _, id := range y.ids() {
		for i, p := range y.tracks[id].Ports {
			if !p.ConnFilled {
				continue
			}
			self := PortRef{id, i}
			peer, err := y.port(p.Conn)
			if err != nil {
				return fmt.Errorf("%s connects to %w", self, err)
			}
			if !peer.ConnFilled || peer.Conn != self {
				return fmt.Errorf("%s connects to %s, but not the other way around", self, p.Conn)
			}
		}
	}
	return nil
}

// SortRecords sorts records by id, the order Export uses.
func SortRecords(rs []TrackRecord) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
