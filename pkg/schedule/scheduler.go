// Package schedule provides the single event loop the checkout core runs on.
//
// Every asynchronous behaviour of the cart/order lifecycle is a (deadline, action)
// pair held by a Scheduler. Actions never run concurrently with each other: the
// real-clock Loop executes them on one goroutine and the Virtual clock executes them
// synchronously while a test advances time.
package schedule

import (
	"context"
	"errors"
	"time"

	"carecart/internal/timerqueue"
)

// ErrStopped is returned when a timer is requested from a scheduler that can no longer fire it.
var ErrStopped = errors.New("scheduler stopped")

// ErrBusy is returned when the loop does not accept work within the enqueue timeout.
var ErrBusy = errors.New("event loop is busy")

// Scheduler hands out timers against a single clock source.
type Scheduler interface {
	Now() time.Time
	At(deadline time.Time, fn func()) (*Timer, error)
}

// Executor runs a function on the event loop and waits for it to finish.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// After schedules fn relative to the scheduler's current time.
func After(s Scheduler, d time.Duration, fn func()) (*Timer, error) {
	return s.At(s.Now().Add(d), fn)
}

// Timer is a handle to a pending action.
type Timer struct {
	entry  *timerqueue.Entry
	cancel func(*timerqueue.Entry) bool
}

// Deadline reports when the action is due.
func (t *Timer) Deadline() time.Time {
	if t == nil || t.entry == nil {
		return time.Time{}
	}
	return t.entry.Deadline
}

// Cancel removes the action if it has not fired yet.
func (t *Timer) Cancel() bool {
	if t == nil || t.cancel == nil {
		return false
	}
	return t.cancel(t.entry)
}

// Group tracks the timers owned by one consumer so they can be torn down together.
type Group struct {
	timers []*Timer
}

// Add records a timer; nil timers are ignored.
func (g *Group) Add(t *Timer) {
	if t != nil {
		g.timers = append(g.timers, t)
	}
}

// CancelAll cancels every tracked timer and returns how many were still pending.
func (g *Group) CancelAll() int {
	cancelled := 0
	for _, t := range g.timers {
		if t.Cancel() {
			cancelled++
		}
	}
	g.timers = nil
	return cancelled
}
