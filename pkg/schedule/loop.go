package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"carecart/internal/timerqueue"
)

// Loop is the real-clock event loop. One goroutine executes posted tasks and due timers,
// so state touched only from inside the loop needs no further locking.
type Loop struct {
	mu      sync.Mutex
	queue   timerqueue.Queue
	stopped bool

	tasks  chan func()
	wake   chan struct{}
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once

	clock  func() time.Time
	logger *zap.Logger
}

// NewLoop launches the loop goroutine immediately so callers never wait for scheduling.
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		tasks:  make(chan func()),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		clock:  time.Now,
		logger: logger,
	}
	go l.loop()
	return l
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return l.clock()
}

// At queues fn for the deadline. It may be called from inside the loop or from any goroutine.
func (l *Loop) At(deadline time.Time, fn func()) (*Timer, error) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil, ErrStopped
	}
	e := l.queue.Push(deadline, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return &Timer{entry: e, cancel: l.remove}, nil
}

func (l *Loop) remove(e *timerqueue.Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Remove(e)
}

// Do hands fn to the loop goroutine and waits until it has run. ctx and the busy timeout
// only bound the hand-off; once the loop accepted fn, Do returns after fn does.
// It must not be called from inside the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	var taskErr error
	done := make(chan struct{})
	task := func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				taskErr = fmt.Errorf("event loop task panicked: %v", r)
			}
		}()
		fn()
	}

	select {
	case <-l.quit:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- task:
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return ErrBusy
	}

	// fn writes into the caller's variables, so an accepted task is always waited for.
	<-done
	return taskErr
}

// Close stops the goroutine and drops pending timers. Actions never fire after Close returns.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.queue.Clear()
		l.mu.Unlock()
		close(l.quit)
	})
	<-l.exited
}

// loop waits for whichever comes first: a posted task, a new earlier timer, or the next deadline.
func (l *Loop) loop() {
	defer close(l.exited)
	for {
		l.mu.Lock()
		next, ok := l.queue.Next()
		l.mu.Unlock()

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if ok {
			wait := next.Sub(l.clock())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case task := <-l.tasks:
			task()
		case <-l.wake:
		case <-fire:
			l.fireDue()
		case <-l.quit:
			if timer != nil {
				timer.Stop()
			}
			return
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// fireDue runs every due action in deadline order, releasing the lock while each one runs
// so actions can schedule or cancel further timers.
func (l *Loop) fireDue() {
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		e := l.queue.PopDue(l.clock())
		l.mu.Unlock()
		if e == nil {
			return
		}
		l.run(e)
	}
}

func (l *Loop) run(e *timerqueue.Entry) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("timer action panicked",
				zap.Time("deadline", e.Deadline),
				zap.Any("panic", r))
		}
	}()
	e.Action()
}
