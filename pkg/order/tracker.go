package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carecart/pkg/schedule"
)

// ErrNoActiveOrder is returned by operations that need a stored order when none exists.
var ErrNoActiveOrder = errors.New("no active order")

// DefaultStepOffsets are the delays after creation at which each step completes.
func DefaultStepOffsets() []time.Duration {
	return []time.Duration{0, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 25 * time.Minute}
}

// TrackerOption tunes a Tracker.
type TrackerOption func(*Tracker)

// WithStepOffsets replaces the default step offsets.
func WithStepOffsets(offsets []time.Duration) TrackerOption {
	return func(t *Tracker) { t.offsets = append([]time.Duration(nil), offsets...) }
}

// WithTrackerLogger attaches a logger.
func WithTrackerLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithOnChange registers a callback receiving every persisted transition.
func WithOnChange(fn func(Order)) TrackerOption {
	return func(t *Tracker) { t.onChange = fn }
}

// Tracker advances the current order through its steps as time passes. The stored order is
// authoritative: every transition re-reads it, updates it and writes it back. A Tracker runs
// on the event loop of its scheduler and is not safe for concurrent use.
type Tracker struct {
	repo     Repository
	sched    schedule.Scheduler
	offsets  []time.Duration
	logger   *zap.Logger
	onChange func(Order)

	orderID string
	timers  schedule.Group
}

// NewTracker validates the offsets and returns an idle tracker.
func NewTracker(repo Repository, sched schedule.Scheduler, opts ...TrackerOption) (*Tracker, error) {
	t := &Tracker{
		repo:    repo,
		sched:   sched,
		offsets: DefaultStepOffsets(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if len(t.offsets) != StepCount {
		return nil, fmt.Errorf("need %d step offsets, got %d", StepCount, len(t.offsets))
	}
	for i, off := range t.offsets {
		if off < 0 || (i > 0 && off < t.offsets[i-1]) {
			return nil, fmt.Errorf("step offsets must be non-negative and non-decreasing: %v", t.offsets)
		}
	}
	return t, nil
}

// Offsets returns the configured step offsets.
func (t *Tracker) Offsets() []time.Duration {
	return append([]time.Duration(nil), t.offsets...)
}

// Current returns the stored order; ok is false when there is no active order.
func (t *Tracker) Current(ctx context.Context) (Order, bool, error) {
	return t.repo.CurrentOrder(ctx)
}

// Resume picks up the stored order after a restart. Overdue steps complete immediately in
// order and the rest are scheduled at their absolute deadlines. Without a stored order it
// reports ok == false.
func (t *Tracker) Resume(ctx context.Context) (Order, bool, error) {
	o, ok, err := t.repo.CurrentOrder(ctx)
	if err != nil || !ok {
		t.Stop()
		return Order{}, ok, err
	}
	o, err = t.follow(ctx, o)
	return o, true, err
}

// Track starts following an order that has just been stored.
func (t *Tracker) Track(ctx context.Context, o Order) (Order, error) {
	return t.follow(ctx, o)
}

// Stop cancels every pending step timer.
func (t *Tracker) Stop() {
	t.timers.CancelAll()
	t.orderID = ""
}

// Cancel marks the current order cancelled and stops following it.
func (t *Tracker) Cancel(ctx context.Context) (Order, error) {
	o, ok, err := t.repo.CurrentOrder(ctx)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, ErrNoActiveOrder
	}
	if o.ID == t.orderID {
		t.Stop()
	}
	if o.Status == StatusCancelled {
		return o, nil
	}
	o.Status = StatusCancelled
	if err := t.repo.PutCurrentOrder(ctx, o); err != nil {
		return Order{}, fmt.Errorf("persist cancellation: %w", err)
	}
	t.logger.Info("order cancelled", zap.String("order_id", o.ID))
	t.notify(o)
	return o, nil
}

func (t *Tracker) follow(ctx context.Context, o Order) (Order, error) {
	t.Stop()
	if o.Status.Terminal() {
		return o, nil
	}
	t.orderID = o.ID

	now := t.sched.Now()
	for i := range o.Steps {
		if o.Steps[i].Completed {
			continue
		}
		due := o.CreatedAt.Add(t.offsets[i])
		if !due.After(now) {
			updated, err := t.advance(ctx, o.ID, i, due)
			if err != nil {
				return o, err
			}
			o = updated
			if o.ID == "" {
				return Order{}, nil
			}
			continue
		}
		step := i
		timer, err := t.sched.At(due, func() {
			if _, err := t.advance(context.Background(), o.ID, step, due); err != nil {
				t.logger.Error("order step transition failed", zap.String("order_id", o.ID), zap.Int("step", step), zap.Error(err))
			}
		})
		if err != nil {
			t.Stop()
			return o, fmt.Errorf("schedule step %d: %w", step, err)
		}
		t.timers.Add(timer)
	}
	if o.Status.Terminal() {
		t.Stop()
	}
	t.logger.Info("tracking order",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.Int("step", HighestCompleted(o.Steps)))
	return o, nil
}

// advance completes every step up to and including i with a read-modify-write of the
// stored order. When the stored order is no longer the tracked one, tracking stops and a
// zero Order is returned.
func (t *Tracker) advance(ctx context.Context, id string, i int, at time.Time) (Order, error) {
	o, ok, err := t.repo.CurrentOrder(ctx)
	if err != nil {
		return Order{}, err
	}
	if !ok || o.ID != id {
		t.logger.Info("tracked order replaced, stopping", zap.String("order_id", id))
		t.Stop()
		return Order{}, nil
	}
	if o.Status.Terminal() {
		t.Stop()
		return o, nil
	}
	changed := false
	for j := 0; j <= i; j++ {
		if !o.Steps[j].Completed {
			o.completeStep(j, at)
			changed = true
		}
	}
	if !changed {
		return o, nil
	}
	if err := t.repo.PutCurrentOrder(ctx, o); err != nil {
		return Order{}, fmt.Errorf("persist step %d: %w", i, err)
	}
	t.logger.Info("order step completed",
		zap.String("order_id", o.ID),
		zap.Int("step", i),
		zap.String("status", string(o.Status)))
	if o.Status == StatusDelivered {
		t.Stop()
	}
	t.notify(o)
	return o, nil
}

func (t *Tracker) notify(o Order) {
	if t.onChange != nil {
		t.onChange(o)
	}
}
