package schedule

import (
	"context"
	"time"

	"carecart/internal/timerqueue"
)

// Virtual is a manually advanced clock. It is not safe for concurrent use; tests drive
// it from one goroutine and every due action runs inside Advance.
type Virtual struct {
	now     time.Time
	queue   timerqueue.Queue
	stopped bool
}

// NewVirtual starts the clock at the given instant.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	return v.now
}

// At queues fn for the deadline.
func (v *Virtual) At(deadline time.Time, fn func()) (*Timer, error) {
	if v.stopped {
		return nil, ErrStopped
	}
	e := v.queue.Push(deadline, fn)
	return &Timer{entry: e, cancel: v.queue.Remove}, nil
}

// Advance moves time forward by d, firing due actions in deadline order.
func (v *Virtual) Advance(d time.Duration) {
	v.AdvanceTo(v.now.Add(d))
}

// AdvanceTo moves time to target. Each action observes Now equal to its own deadline,
// and actions scheduled while advancing fire too when they fall before target.
func (v *Virtual) AdvanceTo(target time.Time) {
	for {
		e := v.queue.PopDue(target)
		if e == nil {
			break
		}
		if e.Deadline.After(v.now) {
			v.now = e.Deadline
		}
		e.Action()
	}
	if target.After(v.now) {
		v.now = target
	}
}

// Pending reports how many actions are queued.
func (v *Virtual) Pending() int {
	return v.queue.Len()
}

// Stop drops pending actions and refuses new ones, emulating a host without timers.
func (v *Virtual) Stop() {
	v.stopped = true
	v.queue.Clear()
}

// Do runs fn inline; the virtual clock has no separate loop goroutine.
func (v *Virtual) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}
