package layout

import "fmt"

func straight(id TrackID, comment string, a, b Point) Track {
	return Track{
		ID:      id,
		Comment: comment,
		Kind:    KindStraight,
		Ports:   []Port{{Point: a}, {Point: b}},
	}
}

// point makes a point (turnout). common is port 0, through port 1, diverging port 2.
func point(id TrackID, comment string, kind Kind, common, through, diverging Point) Track {
	return Track{
		ID:      id,
		Comment: comment,
		Kind:    kind,
		Ports:   []Port{{Point: common}, {Point: through}, {Point: diverging}},
	}
}

func build(ts []Track) (*Layout, error) {
	y := New()
	for i, t := range ts {
		if err := y.AddTrack(t); err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", i, t.Comment, err)
		}
	}
	return y, nil
}

// InitStation builds a two-platform station:
//
//	           /--- plat2 ---\
//	approach -+               +- departure - stop
//	           \--- plat1 ---/
//
// The west point is a left-hand point and the east point a right-hand point, both normal towards platform 1.
func InitStation() (*Layout, error) {
	return build([]Track{
		straight(1, "approach", Point{0, 0}, Point{100, 0}),
		point(2, "west", KindPointLeft, Point{100, 0}, Point{200, 0}, Point{200, -50}),
		straight(3, "plat1", Point{200, 0}, Point{400, 0}),
		straight(4, "plat2", Point{200, -50}, Point{400, -50}),
		point(5, "east", KindPointRight, Point{500, 0}, Point{400, 0}, Point{400, -50}),
		straight(6, "departure", Point{500, 0}, Point{600, 0}),
		{ID: 7, Comment: "stop", Kind: KindEnd, Ports: []Port{{Point: Point{600, 0}}}},
	})
}

// InitJunction builds two parallel lines joined by a double crossover, with a level crossing on the down line:
//
//	up-west   ==== xover ==== up-east
//	down-west ==== xover ==== cross ==== down-east
//	                           |
//	                          branch
func InitJunction() (*Layout, error) {
	return build([]Track{
		straight(1, "up-west", Point{0, 0}, Point{100, 0}),
		straight(2, "down-west", Point{0, 50}, Point{100, 50}),
		{
			ID:      3,
			Comment: "xover",
			Kind:    KindDoubleCross,
			// 0-1 is the up line and 2-3 the down line (both west to east), so 0-3 and 1-2 cross over
			Ports: []Port{
				{Point: Point{100, 0}},
				{Point: Point{200, 0}},
				{Point: Point{100, 50}},
				{Point: Point{200, 50}},
			},
		},
		straight(4, "up-east", Point{200, 0}, Point{400, 0}),
		{
			ID:      5,
			Comment: "cross",
			Kind:    KindCrossing,
			Ports: []Port{
				{Point: Point{200, 50}},
				{Point: Point{300, 50}},
				{Point: Point{250, 100}},
				{Point: Point{250, 20}},
			},
		},
		straight(6, "down-east", Point{300, 50}, Point{400, 50}),
		straight(7, "branch", Point{250, 100}, Point{250, 200}),
	})
}

// MustInit panics if err is not nil. This is for presets and testing.
func MustInit(y *Layout, err error) *Layout {
	if err != nil {
		panic(err)
	}
	return y
}
