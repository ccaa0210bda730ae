// Package ui is a terminal operator panel for an interlocking machine.
//
// Keys:
//
//	1-9      select lever (or press button, after b)
//	b        next digit presses a button
//	h l c    throw the selected lever left, right, or to center
//	y n      confirm or cancel the last pending activation
//	q        quit
package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"nyiyui.ca/hato/interlocking/interlock"
	"nyiyui.ca/hato/interlocking/layout"
)

const logLines = 8

var errQuit = errors.New("quit")

type Panel struct {
	m *interlock.Machine

	lever      interlock.LeverID
	buttonMode bool
	pending    interlock.RouteID
	history    []string

	levers   *widgets.Table
	buttons  *widgets.Table
	switches *widgets.Table
	routes   *widgets.List
	log      *widgets.List
	status   *widgets.Paragraph
}

func NewPanel(m *interlock.Machine) *Panel {
	p := &Panel{
		m:        m,
		lever:    1,
		levers:   widgets.NewTable(),
		buttons:  widgets.NewTable(),
		switches: widgets.NewTable(),
		routes:   widgets.NewList(),
		log:      widgets.NewList(),
		status:   widgets.NewParagraph(),
	}
	p.levers.Title = "Levers"
	p.buttons.Title = "Buttons"
	p.switches.Title = "Switches"
	p.routes.Title = "Active routes"
	p.log.Title = "Events"
	p.status.Title = "Status"
	p.status.Text = "ready"
	return p
}

func (p *Panel) layout(w, h int) {
	half := w / 2
	p.levers.SetRect(0, 0, half, h/3)
	p.buttons.SetRect(half, 0, w, h/3)
	p.switches.SetRect(0, h/3, half, 2*h/3)
	p.routes.SetRect(half, h/3, w, 2*h/3)
	p.log.SetRect(0, 2*h/3, w, h-3)
	p.status.SetRect(0, h-3, w, h)
}

func (p *Panel) drawables() []termui.Drawable {
	return []termui.Drawable{p.levers, p.buttons, p.switches, p.routes, p.log, p.status}
}

// Run shows the panel until q is pressed or ctx is done.
func (p *Panel) Run(ctx context.Context) error {
	if err := termui.Init(); err != nil {
		return fmt.Errorf("termui init: %w", err)
	}
	defer termui.Close()
	p.layout(termui.TerminalDimensions())
	events := make(chan interlock.Event, 16)
	p.m.Events.Subscribe("ui", events)
	defer p.m.Events.Unsubscribe(events)
	p.update()
	termui.Render(p.drawables()...)
	uiEvents := termui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			p.onEvent(e)
		case e := <-uiEvents:
			if e.Type == termui.ResizeEvent {
				payload := e.Payload.(termui.Resize)
				p.layout(payload.Width, payload.Height)
				termui.Clear()
				break
			}
			if e.Type != termui.KeyboardEvent {
				break
			}
			if err := p.key(e.ID); errors.Is(err, errQuit) {
				return nil
			}
		}
		p.update()
		termui.Render(p.drawables()...)
	}
}

func (p *Panel) onEvent(e interlock.Event) {
	if e.Type == interlock.EventRoutePending {
		p.pending = e.Route
	}
	p.history = append(p.history, e.String())
	if len(p.history) > logLines {
		p.history = p.history[len(p.history)-logLines:]
	}
}

// key handles a key press and sets the status line.
func (p *Panel) key(id string) error {
	err := p.key2(id)
	switch {
	case errors.Is(err, errQuit):
		return err
	case err != nil:
		p.status.Text = fmt.Sprintf("%s: %s", id, err)
	}
	return err
}

func (p *Panel) key2(id string) error {
	switch id {
	case "q", "<C-c>":
		return errQuit
	case "b":
		p.buttonMode = true
		p.status.Text = "press which button?"
		return nil
	case "h", "l", "c":
		cmd := map[string]interlock.LeverCommand{
			"h": interlock.LeverCommandLeft,
			"l": interlock.LeverCommandRight,
			"c": interlock.LeverCommandCenter,
		}[id]
		if err := p.m.OnLeverCommand(p.lever, cmd); err != nil {
			return err
		}
		p.status.Text = fmt.Sprintf("L%d %s", p.lever, cmd)
		return nil
	case "y":
		if p.pending == (interlock.RouteID{}) {
			return errors.New("nothing to confirm")
		}
		if _, err := p.m.Confirm(p.pending); err != nil {
			return err
		}
		p.status.Text = fmt.Sprintf("confirmed %s", p.pending)
		p.pending = interlock.RouteID{}
		return nil
	case "n":
		if p.pending == (interlock.RouteID{}) {
			return errors.New("nothing to cancel")
		}
		if err := p.m.Cancel(p.pending); err != nil {
			return err
		}
		p.status.Text = fmt.Sprintf("cancelled %s", p.pending)
		p.pending = interlock.RouteID{}
		return nil
	}
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > 9 {
		return nil
	}
	if !p.buttonMode {
		p.lever = interlock.LeverID(n)
		p.status.Text = fmt.Sprintf("lever %d selected", n)
		return nil
	}
	p.buttonMode = false
	act, err := p.m.OnButtonCommand(interlock.ButtonID(n))
	if err != nil {
		return err
	}
	switch {
	case act.Pending():
		p.pending = act.Route
		p.status.Text = fmt.Sprintf("B%d: %d conflicting routes, y to release them, n to cancel", n, len(act.Conflicts))
	case act.Locked:
		p.status.Text = fmt.Sprintf("B%d: route locked", n)
	default:
		p.status.Text = fmt.Sprintf("B%d: released", n)
	}
	return nil
}

func (p *Panel) update() {
	p.levers.Rows = leverRows(p.m.Levers(), p.lever)
	p.buttons.Rows = buttonRows(p.m.Buttons())
	p.switches.Rows = switchRows(p.m.Layout())
	p.routes.Rows = routeRows(p.m.Routes())
	p.log.Rows = p.history
}

func leverRows(ls []interlock.Lever, selected interlock.LeverID) [][]string {
	rows := [][]string{{"", "lever", "kind", "state"}}
	for _, l := range ls {
		mark := ""
		if l.ID == selected {
			mark = ">"
		}
		state := l.State.String()
		if l.Locked {
			state += " (locked)"
		}
		rows = append(rows, []string{mark, fmt.Sprintf("L%d %s", l.ID, l.Comment), l.Kind.String(), state})
	}
	return rows
}

func buttonRows(bs []interlock.Button) [][]string {
	rows := [][]string{{"button", "state"}}
	for _, b := range bs {
		rows = append(rows, []string{fmt.Sprintf("B%d %s", b.ID, b.Comment), b.State.String()})
	}
	return rows
}

func switchRows(y *layout.Layout) [][]string {
	rows := [][]string{{"track", "kind", "position"}}
	for _, t := range y.Tracks() {
		if !t.Kind.IsSwitch() {
			continue
		}
		rows = append(rows, []string{fmt.Sprintf("%d %s", t.ID, t.Comment), t.Kind.String(), t.Position.String()})
	}
	return rows
}

func routeRows(rs []interlock.Route) []string {
	rows := []string{}
	for _, r := range rs {
		if r.Active {
			rows = append(rows, r.Name)
		}
	}
	sort.Strings(rows)
	return rows
}
