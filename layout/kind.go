package layout

import "fmt"

// Kind is the physical type of a track.
type Kind int

const (
	KindStraight Kind = iota
	KindPointLeft
	KindPointRight
	KindDoubleCross
	KindDoubleSlip
	KindCrossing
	KindEnd
)

var kindNames = [...]string{
	KindStraight:    "straight",
	KindPointLeft:   "point_left",
	KindPointRight:  "point_right",
	KindDoubleCross: "double_cross",
	KindDoubleSlip:  "double_slip",
	KindCrossing:    "crossing",
	KindEnd:         "end",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", text)
}

// PortCount is the number of ports a track of this kind has.
func (k Kind) PortCount() int {
	switch k {
	case KindEnd:
		return 1
	case KindStraight:
		return 2
	case KindPointLeft, KindPointRight:
		return 3
	case KindDoubleCross, KindDoubleSlip, KindCrossing:
		return 4
	default:
		return 0
	}
}

// IsSwitch reports whether tracks of this kind have a normal/reverse position.
func (k Kind) IsSwitch() bool {
	switch k {
	case KindPointLeft, KindPointRight, KindDoubleCross, KindDoubleSlip:
		return true
	default:
		return false
	}
}

// Position is the physical alignment of a switch.
// PositionNone is used for tracks (and port pairs) that don't depend on a position.
type Position int

const (
	PositionNone Position = iota
	PositionNormal
	PositionReverse
)

func (p Position) String() string {
	switch p {
	case PositionNone:
		return "none"
	case PositionNormal:
		return "normal"
	case PositionReverse:
		return "reverse"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

func (p Position) MarshalText() ([]byte, error) {
	switch p {
	case PositionNone, PositionNormal, PositionReverse:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("unknown position %d", int(p))
	}
}

func (p *Position) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*p = PositionNone
	case "normal":
		*p = PositionNormal
	case "reverse":
		*p = PositionReverse
	default:
		return fmt.Errorf("unknown position %q", text)
	}
	return nil
}

// Opposite returns the other position of a switch.
func (p Position) Opposite() Position {
	switch p {
	case PositionNormal:
		return PositionReverse
	case PositionReverse:
		return PositionNormal
	default:
		return p
	}
}
