// Package processing runs the timed settlement sequence shown while a checkout is paid.
//
// No network call backs the sequence: the stages exist so the customer sees the payment
// being verified, secured, confirmed and handed over, at a fixed and predictable pace.
// Every deadline is derived from the single start instant, so stages never drift no matter
// how late an individual timer fires.
package processing

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carecart/pkg/schedule"
)

var (
	// ErrNoStages is returned when a simulator is configured without stages.
	ErrNoStages = errors.New("processing needs at least one stage")
	// ErrAlreadyRunning is returned by Start while a run is in flight.
	ErrAlreadyRunning = errors.New("processing is already running")
)

const (
	// DefaultSettleDelay is the pause between the last stage and completion.
	DefaultSettleDelay = 500 * time.Millisecond
	// DefaultTickInterval is how often progress is reported while a stage runs.
	DefaultTickInterval = 100 * time.Millisecond
)

// Stage is one named settlement step with its nominal duration.
type Stage struct {
	Name     string        `yaml:"name" json:"name"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// DefaultStages is the reference settlement sequence, 7.5s in total.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "verify-payment", Duration: 2000 * time.Millisecond},
		{Name: "secure-transaction", Duration: 1500 * time.Millisecond},
		{Name: "confirm-order", Duration: 1800 * time.Millisecond},
		{Name: "notify-fulfillment", Duration: 1200 * time.Millisecond},
		{Name: "done", Duration: 1000 * time.Millisecond},
	}
}

// State is the lifecycle of a run.
type State string

const (
	// StateIdle means no run has started yet.
	StateIdle State = "idle"
	// StateRunning means a stage is in flight.
	StateRunning State = "running"
	// StateSettling means every stage finished and the settle delay is pending.
	StateSettling State = "settling"
	// StateCompleted means the run finished and onComplete was called.
	StateCompleted State = "completed"
	// StateCancelled means Cancel stopped the run before completion.
	StateCancelled State = "cancelled"
	// StateFailed means a timer could not be scheduled and the run stopped.
	StateFailed State = "failed"
)

// Progress is what a consumer renders while the run is in flight.
type Progress struct {
	Stage     int           `json:"stage"`
	StageName string        `json:"stageName"`
	Percent   float64       `json:"percent"`
	Elapsed   time.Duration `json:"elapsed"`
	State     State         `json:"state"`
}

// Option tunes a Simulator.
type Option func(*Simulator)

// WithStages replaces the default stage list.
func WithStages(stages []Stage) Option {
	return func(s *Simulator) { s.stages = append([]Stage(nil), stages...) }
}

// WithSettleDelay sets the pause between the last stage and the completion callback.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Simulator) { s.settle = d }
}

// WithTickInterval sets how often progress is reported within a stage.
func WithTickInterval(d time.Duration) Option {
	return func(s *Simulator) { s.tick = d }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Simulator drives one settlement run at a time on a scheduler. All of its callbacks run on
// the scheduler, so methods must be called from the same event loop.
type Simulator struct {
	sched  schedule.Scheduler
	stages []Stage
	settle time.Duration
	tick   time.Duration
	logger *zap.Logger

	// boundaries[i] is the offset from start at which stage i ends.
	boundaries []time.Duration

	state      State
	start      time.Time
	stage      int
	percent    float64
	err        error
	timers     schedule.Group
	tickTimer  *schedule.Timer
	onProgress func(Progress)
	onComplete func()
}

// New validates the configuration and returns an idle simulator.
func New(sched schedule.Scheduler, opts ...Option) (*Simulator, error) {
	s := &Simulator{
		sched:  sched,
		stages: DefaultStages(),
		settle: DefaultSettleDelay,
		tick:   DefaultTickInterval,
		logger: zap.NewNop(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.stages) == 0 {
		return nil, ErrNoStages
	}
	if s.tick <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", s.tick)
	}
	if s.settle < 0 {
		return nil, fmt.Errorf("settle delay must not be negative, got %s", s.settle)
	}
	var cum time.Duration
	s.boundaries = make([]time.Duration, len(s.stages))
	for i, st := range s.stages {
		if st.Duration <= 0 {
			return nil, fmt.Errorf("stage %q: duration must be positive", st.Name)
		}
		cum += st.Duration
		s.boundaries[i] = cum
	}
	return s, nil
}

// Total is the summed nominal duration of every stage, without the settle delay.
func (s *Simulator) Total() time.Duration {
	return s.boundaries[len(s.boundaries)-1]
}

// Stages returns the configured sequence.
func (s *Simulator) Stages() []Stage {
	return append([]Stage(nil), s.stages...)
}

// Start begins a run at the scheduler's current time. onProgress receives every progress
// change; onComplete fires exactly once, a settle delay after the last stage ends. Either
// callback may be nil. When a timer cannot be scheduled the run fails closed: nothing is
// left pending and onComplete never fires.
func (s *Simulator) Start(onProgress func(Progress), onComplete func()) error {
	if s.state == StateRunning || s.state == StateSettling {
		return ErrAlreadyRunning
	}
	s.start = s.sched.Now()
	s.stage = 0
	s.percent = 0
	s.err = nil
	s.onProgress = onProgress
	s.onComplete = onComplete
	s.state = StateRunning

	for i := range s.stages {
		i := i
		t, err := s.sched.At(s.start.Add(s.boundaries[i]), func() { s.finishStage(i) })
		if err != nil {
			return s.fail(fmt.Errorf("schedule end of stage %q: %w", s.stages[i].Name, err))
		}
		s.timers.Add(t)
	}
	t, err := s.sched.At(s.start.Add(s.Total()+s.settle), s.complete)
	if err != nil {
		return s.fail(fmt.Errorf("schedule completion: %w", err))
	}
	s.timers.Add(t)
	if err := s.armTick(1); err != nil {
		return s.fail(err)
	}

	s.logger.Info("processing started",
		zap.Int("stages", len(s.stages)),
		zap.Duration("total", s.Total()),
		zap.String("stage", s.stages[0].Name))
	s.emit()
	return nil
}

// Cancel tears the run down; no callback fires afterwards.
func (s *Simulator) Cancel() {
	if s.state != StateRunning && s.state != StateSettling {
		return
	}
	s.stopTimers()
	s.state = StateCancelled
	s.logger.Info("processing cancelled", zap.String("stage", s.stages[s.stage].Name))
}

// Snapshot reports the current progress.
func (s *Simulator) Snapshot() Progress {
	p := Progress{
		Stage:     s.stage,
		StageName: s.stages[s.stage].Name,
		Percent:   s.percent,
		State:     s.state,
	}
	if s.state != StateIdle {
		p.Elapsed = s.sched.Now().Sub(s.start)
	}
	return p
}

// Err returns the scheduling failure that stopped the last run, if any.
func (s *Simulator) Err() error {
	return s.err
}

// armTick schedules the k-th progress tick at start + k*tick, as long as it falls inside
// the stage budget. Stage boundaries report their own progress.
func (s *Simulator) armTick(k int) error {
	offset := time.Duration(k) * s.tick
	if offset >= s.Total() {
		s.tickTimer = nil
		return nil
	}
	t, err := s.sched.At(s.start.Add(offset), func() { s.onTick(k) })
	if err != nil {
		return fmt.Errorf("schedule progress tick %d: %w", k, err)
	}
	s.tickTimer = t
	return nil
}

func (s *Simulator) onTick(k int) {
	if s.state != StateRunning {
		return
	}
	s.advance(s.sched.Now().Sub(s.start))
	s.emit()
	if err := s.armTick(k + 1); err != nil {
		s.fail(err)
	}
}

func (s *Simulator) finishStage(i int) {
	if s.state != StateRunning {
		return
	}
	if i+1 < len(s.stages) {
		s.stage = i + 1
		s.advance(s.boundaries[i])
		s.logger.Debug("processing stage started", zap.String("stage", s.stages[s.stage].Name), zap.Int("index", s.stage))
	} else {
		s.percent = 100
		s.state = StateSettling
		if s.tickTimer != nil {
			s.tickTimer.Cancel()
			s.tickTimer = nil
		}
	}
	s.emit()
}

func (s *Simulator) complete() {
	if s.state != StateSettling {
		return
	}
	s.state = StateCompleted
	s.timers.CancelAll()
	s.logger.Info("processing completed", zap.Duration("elapsed", s.sched.Now().Sub(s.start)))
	if s.onComplete != nil {
		s.onComplete()
	}
}

// advance raises the percentage for the given elapsed time without ever passing the
// budget of the current stage or moving backwards.
func (s *Simulator) advance(elapsed time.Duration) {
	if p := s.percentAt(elapsed, s.stage); p > s.percent {
		s.percent = p
	}
}

func (s *Simulator) percentAt(elapsed time.Duration, stage int) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := s.boundaries[stage]; elapsed > limit {
		elapsed = limit
	}
	return float64(elapsed) * 100 / float64(s.Total())
}

func (s *Simulator) emit() {
	if s.onProgress != nil {
		s.onProgress(s.Snapshot())
	}
}

func (s *Simulator) fail(err error) error {
	s.stopTimers()
	s.state = StateFailed
	s.err = err
	s.logger.Error("processing failed closed", zap.String("stage", s.stages[s.stage].Name), zap.Error(err))
	return err
}

func (s *Simulator) stopTimers() {
	s.timers.CancelAll()
	if s.tickTimer != nil {
		s.tickTimer.Cancel()
		s.tickTimer = nil
	}
}
