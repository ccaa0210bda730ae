package point

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/interlocking/layout"
)

// State is the physical state of a simulated point machine.
type State int

const (
	StateUnknown State = iota
	StateNormal
	StateReverse
	// StateUnsafe is while the blades are moving.
	StateUnsafe
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "ssUnknown"
	case StateNormal:
		return "ssNormal"
	case StateReverse:
		return "ssReverse"
	case StateUnsafe:
		return "ssUnsafe"
	default:
		return fmt.Sprintf("%d", s)
	}
}

func stateOf(pos layout.Position) State {
	switch pos {
	case layout.PositionNormal:
		return StateNormal
	case layout.PositionReverse:
		return StateReverse
	default:
		return StateUnknown
	}
}

// Sim simulates point machines that take ThrowTime to move.
type Sim struct {
	ThrowTime time.Duration

	lock     sync.Mutex
	states   map[layout.TrackID]State
	failures map[layout.TrackID]error
	commands int
}

func NewSim(throwTime time.Duration) *Sim {
	return &Sim{
		ThrowTime: throwTime,
		states:    map[layout.TrackID]State{},
		failures:  map[layout.TrackID]error{},
	}
}

// Fail makes subsequent commands to track fail with err. A nil err clears the failure.
// The blades of a failed point are left in StateUnsafe.
func (s *Sim) Fail(track layout.TrackID, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err == nil {
		delete(s.failures, track)
		return
	}
	s.failures[track] = err
}

// State returns the physical state of the point machine for track.
func (s *Sim) State(track layout.TrackID) State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.states[track]
}

// Commands returns how many commands were received.
func (s *Sim) Commands() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.commands
}

func (s *Sim) SetPosition(ctx context.Context, track layout.TrackID, pos layout.Position) *Task {
	t := NewTask(track, pos)
	s.lock.Lock()
	s.commands++
	prev := s.states[track]
	s.states[track] = StateUnsafe
	failure := s.failures[track]
	s.lock.Unlock()
	zap.S().Debugw("sim: throw", "track", track, "position", pos, "from", prev)
	go func() {
		timer := time.NewTimer(s.ThrowTime)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			t.Finish(ctx.Err())
			return
		}
		if failure != nil {
			t.Finish(failure)
			return
		}
		s.lock.Lock()
		s.states[track] = stateOf(pos)
		s.lock.Unlock()
		t.Finish(nil)
	}()
	return t
}
