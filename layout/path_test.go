package layout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSearchStraights(t *testing.T) {
	y := New()
	if err := y.AddTrack(straight(1, "1", Point{0, 0}, Point{100, 0})); err != nil {
		t.Fatal(err)
	}
	if err := y.AddTrack(straight(2, "2", Point{100, 0}, Point{200, 0})); err != nil {
		t.Fatal(err)
	}
	got := y.Search(PortRef{1, 0}, PortRef{2, 1})
	expected := []Candidate{{
		Path:     []PortRef{{1, 0}, {1, 1}, {2, 0}, {2, 1}},
		Switches: map[TrackID]Position{},
	}}
	if !cmp.Equal(got, expected) {
		t.Fatalf("diff: %s", cmp.Diff(got, expected))
	}
}

func TestSearchPoint(t *testing.T) {
	y := New()
	ts := []Track{
		point(1, "p", KindPointLeft, Point{0, 0}, Point{100, 0}, Point{100, -50}),
		straight(2, "through", Point{100, 0}, Point{200, 0}),
		straight(3, "diverging", Point{100, -50}, Point{200, -50}),
	}
	for _, tr := range ts {
		if err := y.AddTrack(tr); err != nil {
			t.Fatal(err)
		}
	}
	var got []Candidate
	for _, to := range []PortRef{{2, 1}, {3, 1}} {
		got = append(got, y.Search(PortRef{1, 0}, to)...)
	}
	expected := []Candidate{
		{
			Path:     []PortRef{{1, 0}, {1, 1}, {2, 0}, {2, 1}},
			Switches: map[TrackID]Position{1: PositionNormal},
		},
		{
			Path:     []PortRef{{1, 0}, {1, 2}, {3, 0}, {3, 1}},
			Switches: map[TrackID]Position{1: PositionReverse},
		},
	}
	if !cmp.Equal(got, expected) {
		t.Fatalf("diff: %s", cmp.Diff(got, expected))
	}
	// trailing through the point
	back := y.Search(PortRef{3, 1}, PortRef{1, 0})
	if len(back) != 1 || back[0].Switches[1] != PositionReverse {
		t.Fatalf("trailing: %v", back)
	}
	// through → diverging needs to pass the frog without the common port
	if cs := y.Search(PortRef{2, 1}, PortRef{3, 1}); len(cs) != 0 {
		t.Fatalf("through to diverging: %v", cs)
	}
}

func TestSearchDoubleSlip(t *testing.T) {
	y := New()
	if err := y.AddTrack(Track{
		ID:    1,
		Kind:  KindDoubleSlip,
		Ports: []Port{{Point: Point{0, 0}}, {Point: Point{100, 0}}, {Point: Point{0, 50}}, {Point: Point{100, 50}}},
	}); err != nil {
		t.Fatal(err)
	}
	if cs := y.Search(PortRef{1, 0}, PortRef{1, 2}); len(cs) != 0 {
		t.Fatalf("0-2: %v", cs)
	}
	cs := y.Search(PortRef{1, 0}, PortRef{1, 3})
	expected := []Candidate{{
		Path:     []PortRef{{1, 0}, {1, 3}},
		Switches: map[TrackID]Position{1: PositionReverse},
	}}
	if !cmp.Equal(cs, expected) {
		t.Fatalf("diff: %s", cmp.Diff(cs, expected))
	}
}

// A loop back into the double slip must not use the other pair.
func TestSearchDoubleSlipLoop(t *testing.T) {
	y := New()
	ts := []Track{
		{
			ID:    1,
			Kind:  KindDoubleSlip,
			Ports: []Port{{Point: Point{0, 0}}, {Point: Point{100, 0}}, {Point: Point{0, 50}}, {Point: Point{100, 50}}},
		},
		// 1/p1 → 1/p3 around the outside
		straight(2, "loop-a", Point{100, 0}, Point{200, 25}),
		straight(3, "loop-b", Point{200, 25}, Point{100, 50}),
		straight(4, "exit", Point{0, 50}, Point{-100, 50}),
	}
	for _, tr := range ts {
		if err := y.AddTrack(tr); err != nil {
			t.Fatal(err)
		}
	}
	// 0→1 (normal), round the loop, 3→2 (normal too, but a second pair on a committed switch)
	if cs := y.Search(PortRef{1, 0}, PortRef{4, 1}); len(cs) != 0 {
		t.Fatalf("expected no route, got %v", cs)
	}
}

func TestSearchNoMovement(t *testing.T) {
	y := MustInit(InitStation())
	if cs := y.Search(PortRef{1, 0}, PortRef{1, 0}); len(cs) != 0 {
		t.Fatalf("expected no route, got %v", cs)
	}
}

func TestSearchUnreachable(t *testing.T) {
	y := MustInit(InitStation())
	y.Disconnect(PortRef{1, 1})
	if cs := y.Search(PortRef{1, 0}, PortRef{6, 1}); len(cs) != 0 {
		t.Fatalf("expected no route, got %v", cs)
	}
	if cs := y.Search(PortRef{1, 0}, PortRef{99, 0}); len(cs) != 0 {
		t.Fatalf("expected no route, got %v", cs)
	}
}

func TestSearchStation(t *testing.T) {
	y := MustInit(InitStation())
	cs := y.Search(PortRef{1, 0}, PortRef{6, 1})
	if len(cs) != 2 {
		t.Fatalf("expected 2 routes, got %v", cs)
	}
	expected := []map[TrackID]Position{
		{2: PositionNormal, 5: PositionNormal},
		{2: PositionReverse, 5: PositionReverse},
	}
	for i, c := range cs {
		if !cmp.Equal(c.Switches, expected[i]) {
			t.Errorf("route %d (%s): %s", i, c, cmp.Diff(c.Switches, expected[i]))
		}
	}
	if !cmp.Equal(cs[1].Tracks(), []TrackID{1, 2, 4, 5, 6}) {
		t.Errorf("tracks %v", cs[1].Tracks())
	}
}

func TestSearchJunction(t *testing.T) {
	y := MustInit(InitJunction())
	// up-west to down-east: cross over, then straight through the crossing
	cs := y.Search(PortRef{1, 0}, PortRef{6, 1})
	expected := []Candidate{{
		Path:     []PortRef{{1, 0}, {1, 1}, {3, 0}, {3, 3}, {5, 0}, {5, 1}, {6, 0}, {6, 1}},
		Switches: map[TrackID]Position{3: PositionReverse},
	}}
	if !cmp.Equal(cs, expected) {
		t.Fatalf("diff: %s", cmp.Diff(cs, expected))
	}
	// the crossing's axes don't connect
	if cs := y.Search(PortRef{1, 0}, PortRef{7, 1}); len(cs) != 0 {
		t.Fatalf("expected no route onto the branch, got %v", cs)
	}
}

// one position per switch on every path
func TestSearchSinglePosition(t *testing.T) {
	for name, init := range map[string]func() (*Layout, error){
		"station":  InitStation,
		"junction": InitJunction,
	} {
		t.Run(name, func(t *testing.T) {
			y := MustInit(init())
			var ports []PortRef
			for _, tr := range y.Tracks() {
				for i := range tr.Ports {
					ports = append(ports, PortRef{tr.ID, i})
				}
			}
			for _, from := range ports {
				for _, to := range ports {
					for _, c := range y.Search(from, to) {
						checkSinglePosition(t, y, c)
					}
				}
			}
		})
	}
}

func checkSinglePosition(t *testing.T, y *Layout, c Candidate) {
	t.Helper()
	tags := map[TrackID]Position{}
	for i := 0; i+1 < len(c.Path); i++ {
		a, b := c.Path[i], c.Path[i+1]
		if a.Track != b.Track {
			continue
		}
		tr, _ := y.Track(a.Track)
		tag, ok := PairTag(tr.Kind, a.Port, b.Port)
		if !ok {
			t.Errorf("%s: invalid pair %s-%s", c, a, b)
			continue
		}
		if !tr.Kind.IsSwitch() {
			continue
		}
		if prev, ok := tags[a.Track]; ok && prev != tag {
			t.Errorf("%s: track %d used as %s and %s", c, a.Track, prev, tag)
		}
		tags[a.Track] = tag
	}
	if !cmp.Equal(tags, c.Switches) {
		t.Errorf("%s: switches %s", c, cmp.Diff(tags, c.Switches))
	}
}

func TestSearchDepthLimit(t *testing.T) {
	y := New()
	const n = MaxSearchDepth
	for i := 0; i < n; i++ {
		if err := y.AddTrack(straight(TrackID(i), "", Point{float64(i * 100), 0}, Point{float64(i*100 + 100), 0})); err != nil {
			t.Fatal(err)
		}
	}
	// a move to pass through each track and another to cross to the next, so the far end is out of reach
	if cs := y.Search(PortRef{0, 0}, PortRef{n - 1, 1}); len(cs) != 0 {
		t.Fatalf("expected depth limit to stop search, got %d routes", len(cs))
	}
	if cs := y.Search(PortRef{0, 0}, PortRef{n/2 - 1, 1}); len(cs) != 1 {
		t.Fatalf("expected 1 route, got %d", len(cs))
	}
}

func TestSearchContextCanceled(t *testing.T) {
	y := New()
	// a ladder of crossovers has many paths
	for i := 0; i < 12; i++ {
		x := float64(i * 100)
		if err := y.AddTrack(Track{
			ID:   TrackID(i),
			Kind: KindDoubleCross,
			Ports: []Port{
				{Point: Point{x, 0}}, {Point: Point{x + 100, 0}},
				{Point: Point{x, 50}}, {Point: Point{x + 100, 50}},
			},
		}); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := y.SearchContext(ctx, PortRef{0, 0}, PortRef{11, 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	cs, err := y.SearchContext(context.Background(), PortRef{0, 0}, PortRef{11, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 1<<11 {
		t.Fatalf("expected %d routes, got %d", 1<<11, len(cs))
	}
}

func TestPathSwitches(t *testing.T) {
	for name, y := range map[string]*Layout{
		"station":  MustInit(InitStation()),
		"junction": MustInit(InitJunction()),
	} {
		t.Run(name, func(t *testing.T) {
			for _, from := range y.Tracks() {
				for _, to := range y.Tracks() {
					for _, c := range y.Search(PortRef{from.ID, 0}, PortRef{to.ID, len(to.Ports) - 1}) {
						got, err := y.PathSwitches(c.Path)
						if err != nil {
							t.Fatalf("%s: %s", c, err)
						}
						if !cmp.Equal(got, c.Switches) {
							t.Fatalf("%s: %s", c, cmp.Diff(got, c.Switches))
						}
					}
				}
			}
		})
	}
}

func TestPathSwitchesInvalid(t *testing.T) {
	y := MustInit(InitStation())
	cases := map[string]struct {
		path []PortRef
		err  error
	}{
		"through to diverging": {[]PortRef{{2, 1}, {2, 2}}, ErrInvalidPath},
		"not connected":        {[]PortRef{{1, 0}, {1, 1}, {3, 0}, {3, 1}}, ErrInvalidPath},
		"passed twice":         {[]PortRef{{1, 0}, {1, 1}, {1, 0}}, ErrInvalidPath},
		"missing track":        {[]PortRef{{9, 0}, {9, 1}}, ErrTrackNotFound},
		"port out of range":    {[]PortRef{{3, 0}, {3, 2}}, ErrPortOutOfRange},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := y.PathSwitches(tc.path); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}
