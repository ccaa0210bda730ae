// Package point drives point machines (the motors that move switches).
//
// Commands are asynchronous: a Driver returns a Task immediately, which completes once the hardware (or simulation) has acknowledged or failed the command.
package point

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nyiyui.ca/hato/interlocking/layout"
)

// Driver moves switches.
// SetPosition must not block; errors are reported through the returned Task.
type Driver interface {
	SetPosition(ctx context.Context, track layout.TrackID, pos layout.Position) *Task
}

// Task is an outstanding command to a point machine.
type Task struct {
	Track    layout.TrackID
	Position layout.Position
	Started  time.Time

	once sync.Once
	done chan struct{}
	err  error
}

func NewTask(track layout.TrackID, pos layout.Position) *Task {
	return &Task{
		Track:    track,
		Position: pos,
		Started:  time.Now(),
		done:     make(chan struct{}),
	}
}

// Finish completes the task. A non-nil err is wrapped in a *DriverError. Only the first call has an effect.
func (t *Task) Finish(err error) {
	t.once.Do(func() {
		if err != nil {
			t.err = &DriverError{Track: t.Track, Position: t.Position, Err: err}
		}
		close(t.done)
	})
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the result of the task. It is nil until the task is done.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Pending reports whether the task is still outstanding.
func (t *Task) Pending() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the task is done or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) String() string {
	state := "pending"
	if !t.Pending() {
		state = "done"
		if t.err != nil {
			state = "failed"
		}
	}
	return fmt.Sprintf("task(%d→%s %s)", t.Track, t.Position, state)
}

// DriverError is a failed command to a point machine.
type DriverError struct {
	Track    layout.TrackID
	Position layout.Position
	Err      error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("point %d → %s: %s", e.Track, e.Position, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Func is a Driver backed by a blocking function, which is run on its own goroutine for each command.
type Func func(ctx context.Context, track layout.TrackID, pos layout.Position) error

func (f Func) SetPosition(ctx context.Context, track layout.TrackID, pos layout.Position) *Task {
	t := NewTask(track, pos)
	go func() {
		t.Finish(f(ctx, track, pos))
	}()
	return t
}
