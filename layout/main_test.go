package layout

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func twoStraights(t *testing.T) *Layout {
	y := New()
	// far apart so nothing auto-connects
	if err := y.AddTrack(straight(1, "a", Point{0, 0}, Point{100, 0})); err != nil {
		t.Fatalf("add 1: %s", err)
	}
	if err := y.AddTrack(straight(2, "b", Point{0, 1000}, Point{100, 1000})); err != nil {
		t.Fatalf("add 2: %s", err)
	}
	if err := y.AddTrack(straight(3, "c", Point{0, 2000}, Point{100, 2000})); err != nil {
		t.Fatalf("add 3: %s", err)
	}
	return y
}

func TestConnect(t *testing.T) {
	y := twoStraights(t)
	a := PortRef{1, 1}
	b := PortRef{2, 0}
	if err := y.Connect(a, b); err != nil {
		t.Fatalf("connect: %s", err)
	}
	if got, ok := y.Neighbor(a); !ok || got != b {
		t.Fatalf("Neighbor(%s) = %s %t", a, got, ok)
	}
	if got, ok := y.Neighbor(b); !ok || got != a {
		t.Fatalf("Neighbor(%s) = %s %t", b, got, ok)
	}
	// idempotent, both ways round
	if err := y.Connect(a, b); err != nil {
		t.Fatalf("reconnect: %s", err)
	}
	if err := y.Connect(b, a); err != nil {
		t.Fatalf("reconnect reversed: %s", err)
	}
	if got, ok := y.Neighbor(b); !ok || got != a {
		t.Fatalf("Neighbor(%s) = %s %t after reconnect", b, got, ok)
	}
}

func TestConnectConflict(t *testing.T) {
	y := twoStraights(t)
	if err := y.Connect(PortRef{1, 1}, PortRef{2, 0}); err != nil {
		t.Fatalf("connect: %s", err)
	}
	err := y.Connect(PortRef{3, 0}, PortRef{2, 0})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	expected := ConflictError{Port: PortRef{2, 0}, Existing: PortRef{1, 1}, Requested: PortRef{3, 0}}
	if !cmp.Equal(*ce, expected) {
		t.Fatalf("diff: %s", cmp.Diff(*ce, expected))
	}
	// nothing changed
	if got, _ := y.Neighbor(PortRef{2, 0}); got != (PortRef{1, 1}) {
		t.Fatalf("conflicting connect changed layout: %s", got)
	}
	if _, ok := y.Neighbor(PortRef{3, 0}); ok {
		t.Fatalf("conflicting connect changed layout")
	}
}

func TestConnectStale(t *testing.T) {
	y := twoStraights(t)
	// one-sided leftover link
	y.tracks[1].Ports[1].ConnFilled = true
	y.tracks[1].Ports[1].Conn = PortRef{2, 0}
	if err := y.Connect(PortRef{2, 0}, PortRef{1, 1}); err != nil {
		t.Fatalf("connect: %s", err)
	}
	if got, ok := y.Neighbor(PortRef{2, 0}); !ok || got != (PortRef{1, 1}) {
		t.Fatalf("Neighbor = %s %t", got, ok)
	}
}

func TestConnectInvalid(t *testing.T) {
	y := twoStraights(t)
	if err := y.Connect(PortRef{1, 0}, PortRef{9, 0}); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
	if err := y.Connect(PortRef{1, 0}, PortRef{2, 5}); !errors.Is(err, ErrPortOutOfRange) {
		t.Fatalf("expected ErrPortOutOfRange, got %v", err)
	}
	if err := y.Connect(PortRef{1, 0}, PortRef{1, 0}); err == nil {
		t.Fatalf("expected error connecting a port to itself")
	}
}

func TestDisconnect(t *testing.T) {
	y := twoStraights(t)
	if err := y.Connect(PortRef{1, 1}, PortRef{2, 0}); err != nil {
		t.Fatalf("connect: %s", err)
	}
	y.Disconnect(PortRef{2, 0})
	if _, ok := y.Neighbor(PortRef{1, 1}); ok {
		t.Fatalf("still connected")
	}
	if _, ok := y.Neighbor(PortRef{2, 0}); ok {
		t.Fatalf("still connected")
	}
	// no-op
	y.Disconnect(PortRef{2, 0})
	y.Disconnect(PortRef{9, 0})
}

func TestAddTrackAutoConnect(t *testing.T) {
	y := New()
	if err := y.AddTrack(straight(1, "a", Point{0, 0}, Point{100, 0})); err != nil {
		t.Fatal(err)
	}
	// within SnapRadius of 1/p1
	if err := y.AddTrack(straight(2, "b", Point{102, 1}, Point{200, 0})); err != nil {
		t.Fatal(err)
	}
	if got, ok := y.Neighbor(PortRef{2, 0}); !ok || got != (PortRef{1, 1}) {
		t.Fatalf("Neighbor = %s %t", got, ok)
	}
	if got, ok := y.Neighbor(PortRef{1, 1}); !ok || got != (PortRef{2, 0}) {
		t.Fatalf("Neighbor = %s %t", got, ok)
	}
	tr, _ := y.Track(1)
	if tr.Position != PositionNone {
		t.Fatalf("straight got position %s", tr.Position)
	}
	if err := y.AddTrack(point(3, "p", KindPointLeft, Point{500, 0}, Point{600, 0}, Point{600, 50})); err != nil {
		t.Fatal(err)
	}
	tr, _ = y.Track(3)
	if tr.Position != PositionNormal {
		t.Fatalf("point got position %s", tr.Position)
	}
}

func TestAddTrackAmbiguous(t *testing.T) {
	y := New()
	if err := y.AddTrack(straight(1, "a", Point{0, 0}, Point{100, 0})); err != nil {
		t.Fatal(err)
	}
	if err := y.AddTrack(straight(2, "b", Point{100, 200}, Point{100, 1})); err != nil {
		t.Fatal(err)
	}
	// 1/p1 was taken by 2/p1
	if got, ok := y.Neighbor(PortRef{1, 1}); !ok || got != (PortRef{2, 1}) {
		t.Fatalf("Neighbor = %s %t", got, ok)
	}
	y.Disconnect(PortRef{1, 1})
	err := y.AddTrack(straight(3, "c", Point{100, 0}, Point{300, 0}))
	var aje *AmbiguousJunctionError
	if !errors.As(err, &aje) {
		t.Fatalf("expected AmbiguousJunctionError, got %v", err)
	}
	if aje.Port != (PortRef{3, 0}) {
		t.Fatalf("port %s", aje.Port)
	}
	if !cmp.Equal(aje.Candidates, []PortRef{{1, 1}, {2, 1}}) {
		t.Fatalf("candidates %v", aje.Candidates)
	}
	if _, ok := y.Track(3); ok {
		t.Fatalf("rejected track was added")
	}
}

func TestAddTrackBothPortsOnOne(t *testing.T) {
	y := New()
	if err := y.AddTrack(straight(1, "a", Point{0, 0}, Point{100, 0})); err != nil {
		t.Fatal(err)
	}
	err := y.AddTrack(straight(2, "tiny", Point{100, 0}, Point{101, 0}))
	var aje *AmbiguousJunctionError
	if !errors.As(err, &aje) {
		t.Fatalf("expected AmbiguousJunctionError, got %v", err)
	}
}

func TestAddTrackInvalid(t *testing.T) {
	y := twoStraights(t)
	if err := y.AddTrack(straight(1, "dup", Point{900, 900}, Point{950, 900})); !errors.Is(err, ErrDuplicateTrack) {
		t.Fatalf("expected ErrDuplicateTrack, got %v", err)
	}
	if err := y.AddTrack(Track{ID: 10, Kind: KindPointLeft, Ports: []Port{{}, {}}}); !errors.Is(err, ErrPortOutOfRange) {
		t.Fatalf("expected ErrPortOutOfRange, got %v", err)
	}
}

func TestRemoveTrack(t *testing.T) {
	y := MustInit(InitStation())
	west := y.MustLookup("west")
	if err := y.RemoveTrack(west); err != nil {
		t.Fatal(err)
	}
	for _, p := range []PortRef{{1, 1}, {3, 0}, {4, 0}} {
		if _, ok := y.Neighbor(p); ok {
			t.Errorf("%s still connected", p)
		}
	}
	if err := y.RemoveTrack(west); !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
}

func TestSetPosition(t *testing.T) {
	y := MustInit(InitStation())
	if err := y.SetPosition(y.MustLookup("west"), PositionReverse); err != nil {
		t.Fatal(err)
	}
	tr, _ := y.Track(y.MustLookup("west"))
	if tr.Position != PositionReverse {
		t.Fatalf("position %s", tr.Position)
	}
	if err := y.SetPosition(y.MustLookup("plat1"), PositionReverse); !errors.Is(err, ErrNotSwitch) {
		t.Fatalf("expected ErrNotSwitch, got %v", err)
	}
}

func TestCloneIndependent(t *testing.T) {
	y := MustInit(InitStation())
	y2 := y.Clone()
	y.Disconnect(PortRef{1, 1})
	if _, ok := y2.Neighbor(PortRef{1, 1}); !ok {
		t.Fatalf("clone shares ports with original")
	}
}

func TestConnectSymmetricAll(t *testing.T) {
	for name, init := range map[string]func() (*Layout, error){
		"station":  InitStation,
		"junction": InitJunction,
	} {
		t.Run(name, func(t *testing.T) {
			y := MustInit(init())
			for _, tr := range y.Tracks() {
				for i := range tr.Ports {
					self := PortRef{tr.ID, i}
					peer, ok := y.Neighbor(self)
					if !ok {
						continue
					}
					back, ok := y.Neighbor(peer)
					if !ok || back != self {
						t.Errorf("%s → %s → %s", self, peer, back)
					}
				}
			}
		})
	}
}
