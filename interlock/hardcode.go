package interlock

import (
	"fmt"

	"nyiyui.ca/hato/interlocking/layout"
)

// InitStation returns a machine on layout.InitStation with a home signal on the approach, starters on both platforms,
// and buttons at the end of each platform and on the departure track.
// conf.Layout is ignored.
func InitStation(conf Conf) (*Machine, error) {
	y, err := layout.InitStation()
	if err != nil {
		return nil, err
	}
	conf.Layout = y
	m := New(conf)
	levers := []Lever{
		{ID: 1, Comment: "home", Kind: LeverSignal, Anchor: layout.PortRef{Track: 1, Port: 0}},
		{ID: 2, Comment: "plat1 starter", Kind: LeverSignal, Anchor: layout.PortRef{Track: 3, Port: 0}},
		{ID: 3, Comment: "plat2 starter", Kind: LeverSignal, Anchor: layout.PortRef{Track: 4, Port: 0}},
	}
	for _, l := range levers {
		if err := m.AddLever(l); err != nil {
			return nil, err
		}
	}
	buttons := []Button{
		{ID: 1, Comment: "plat1", Anchor: layout.PortRef{Track: 3, Port: 1}},
		{ID: 2, Comment: "plat2", Anchor: layout.PortRef{Track: 4, Port: 1}},
		{ID: 3, Comment: "departure", Anchor: layout.PortRef{Track: 6, Port: 1}},
	}
	for _, b := range buttons {
		if err := m.AddButton(b); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustInit panics if err is not nil. This is for presets and testing.
func MustInit(m *Machine, err error) *Machine {
	if err != nil {
		panic(fmt.Sprintf("init machine: %s", err))
	}
	return m
}
