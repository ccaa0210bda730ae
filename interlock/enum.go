package interlock

import "fmt"

func enumString(names []string, i int, typ string) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("%s(%d)", typ, i)
	}
	return names[i]
}

func enumMarshal(names []string, i int, typ string) ([]byte, error) {
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("unknown %s %d", typ, i)
	}
	return []byte(names[i]), nil
}

func enumUnmarshal(names []string, text []byte, typ string) (int, error) {
	for i, name := range names {
		if name == string(text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", typ, text)
}

type LeverKind int

const (
	LeverSignal LeverKind = iota
	LeverShuntingSignal
	LeverShuntingMarker
	LeverThrough
)

var leverKindNames = []string{"signal", "shunting_signal", "shunting_marker", "through_lever"}

func (k LeverKind) String() string { return enumString(leverKindNames, int(k), "LeverKind") }
func (k LeverKind) MarshalText() ([]byte, error) {
	return enumMarshal(leverKindNames, int(k), "lever kind")
}
func (k *LeverKind) UnmarshalText(text []byte) error {
	i, err := enumUnmarshal(leverKindNames, text, "lever kind")
	*k = LeverKind(i)
	return err
}

// LeverState is the position of a 3-position lever.
type LeverState int

const (
	LeverNeutral LeverState = iota
	LeverLeft
	LeverRight
)

var leverStateNames = []string{"neutral", "left", "right"}

func (s LeverState) String() string { return enumString(leverStateNames, int(s), "LeverState") }
func (s LeverState) MarshalText() ([]byte, error) {
	return enumMarshal(leverStateNames, int(s), "lever state")
}
func (s *LeverState) UnmarshalText(text []byte) error {
	i, err := enumUnmarshal(leverStateNames, text, "lever state")
	*s = LeverState(i)
	return err
}

// LeverCommand is an operator action on a lever.
// LeverCenter forces the lever back to neutral, releasing whatever it holds.
type LeverCommand int

const (
	LeverCommandLeft LeverCommand = iota
	LeverCommandRight
	LeverCommandCenter
)

var leverCommandNames = []string{"left", "right", "center"}

func (c LeverCommand) String() string { return enumString(leverCommandNames, int(c), "LeverCommand") }
func (c LeverCommand) MarshalText() ([]byte, error) {
	return enumMarshal(leverCommandNames, int(c), "lever command")
}
func (c *LeverCommand) UnmarshalText(text []byte) error {
	i, err := enumUnmarshal(leverCommandNames, text, "lever command")
	*c = LeverCommand(i)
	return err
}

func (c LeverCommand) state() LeverState {
	switch c {
	case LeverCommandLeft:
		return LeverLeft
	case LeverCommandRight:
		return LeverRight
	default:
		return LeverNeutral
	}
}

type ButtonState int

const (
	ButtonNormal ButtonState = iota
	// ButtonSelectable is while a lever with a route to this button is selecting.
	ButtonSelectable
	// ButtonSelected is after the operator picked this button, until the route is locked (or the request is cancelled).
	ButtonSelected
	ButtonActive
)

var buttonStateNames = []string{"normal", "selectable", "selected", "active"}

func (s ButtonState) String() string { return enumString(buttonStateNames, int(s), "ButtonState") }
func (s ButtonState) MarshalText() ([]byte, error) {
	return enumMarshal(buttonStateNames, int(s), "button state")
}
func (s *ButtonState) UnmarshalText(text []byte) error {
	i, err := enumUnmarshal(buttonStateNames, text, "button state")
	*s = ButtonState(i)
	return err
}
