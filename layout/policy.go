package layout

// PortPair is an unordered pair of port indices, stored with the lower index first.
type PortPair [2]int

func pairOf(a, b int) PortPair {
	if a > b {
		a, b = b, a
	}
	return PortPair{a, b}
}

// Pairing is a pair of ports that can be traversed together in one pass, and the switch position it needs.
type Pairing struct {
	Pair PortPair
	Tag  Position
}

// Exit is a port a train can leave a track through, having entered through another port.
type Exit struct {
	Port int
	Tag  Position
}

var pairings = map[Kind][]Pairing{
	KindStraight: {
		{PortPair{0, 1}, PositionNone},
	},
	// the two axes never connect to each other
	KindCrossing: {
		{PortPair{0, 1}, PositionNone},
		{PortPair{2, 3}, PositionNone},
	},
	// 0 is the common port, 1 the through port, 2 the diverging port.
	// 1-2 would pass through the frog without going through the common port.
	KindPointLeft: {
		{PortPair{0, 1}, PositionNormal},
		{PortPair{0, 2}, PositionReverse},
	},
	KindPointRight: {
		{PortPair{0, 1}, PositionNormal},
		{PortPair{0, 2}, PositionReverse},
	},
	KindDoubleCross: {
		{PortPair{0, 1}, PositionNormal},
		{PortPair{2, 3}, PositionNormal},
		{PortPair{0, 3}, PositionReverse},
		{PortPair{1, 2}, PositionReverse},
	},
	KindDoubleSlip: {
		{PortPair{0, 1}, PositionNormal},
		{PortPair{2, 3}, PositionNormal},
		{PortPair{0, 3}, PositionReverse},
		{PortPair{1, 2}, PositionReverse},
	},
	KindEnd: nil,
}

// Pairings returns all valid port pairs of a kind.
func Pairings(k Kind) []Pairing {
	return append([]Pairing(nil), pairings[k]...)
}

// PairTag returns the position needed to traverse ports a and b of a track of kind k together.
func PairTag(k Kind, a, b int) (tag Position, ok bool) {
	pair := pairOf(a, b)
	for _, p := range pairings[k] {
		if p.Pair == pair {
			return p.Tag, true
		}
	}
	return PositionNone, false
}

// AllowedNextPorts returns the ports that can be exited through after entering through entered, in ascending order.
func AllowedNextPorts(k Kind, entered int) []Exit {
	var exits []Exit
	for port := 0; port < k.PortCount(); port++ {
		if port == entered {
			continue
		}
		if tag, ok := PairTag(k, entered, port); ok {
			exits = append(exits, Exit{Port: port, Tag: tag})
		}
	}
	return exits
}
