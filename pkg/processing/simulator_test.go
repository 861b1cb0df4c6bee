package processing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"carecart/pkg/schedule"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type recorder struct {
	progress    []Progress
	completions int
	// percentAtCompletion is the last reported percentage when completion fired.
	percentAtCompletion float64
}

func (r *recorder) onProgress(p Progress) { r.progress = append(r.progress, p) }

func (r *recorder) onComplete() {
	r.completions++
	if n := len(r.progress); n > 0 {
		r.percentAtCompletion = r.progress[n-1].Percent
	}
}

func newSimulator(t *testing.T, clock *schedule.Virtual, opts ...Option) *Simulator {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	sim, err := New(clock, opts...)
	require.NoError(t, err)
	return sim
}

func TestSimulator_StageTimingAndSingleCompletion(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	sim := newSimulator(t, clock)
	require.Equal(t, 7500*time.Millisecond, sim.Total())

	var rec recorder
	require.NoError(t, sim.Start(rec.onProgress, rec.onComplete))
	assert.Equal(t, 0, sim.Snapshot().Stage)

	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, 0, sim.Snapshot().Stage)
	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, sim.Snapshot().Stage)
	assert.Equal(t, "secure-transaction", sim.Snapshot().StageName)

	clock.AdvanceTo(epoch.Add(7999 * time.Millisecond))
	assert.Zero(t, rec.completions)
	assert.Equal(t, StateSettling, sim.Snapshot().State)

	clock.AdvanceTo(epoch.Add(8000 * time.Millisecond))
	assert.Equal(t, 1, rec.completions)
	assert.Equal(t, StateCompleted, sim.Snapshot().State)

	reported := len(rec.progress)
	clock.Advance(time.Minute)
	assert.Equal(t, 1, rec.completions)
	assert.Len(t, rec.progress, reported)
	assert.Zero(t, clock.Pending())
}

func TestSimulator_StagesStartAtCumulativeDeadlines(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	sim := newSimulator(t, clock)

	starts := map[int]time.Duration{}
	onProgress := func(p Progress) {
		if _, ok := starts[p.Stage]; !ok {
			starts[p.Stage] = p.Elapsed
		}
	}
	require.NoError(t, sim.Start(onProgress, nil))
	clock.Advance(10 * time.Second)

	assert.Equal(t, map[int]time.Duration{
		0: 0,
		1: 2000 * time.Millisecond,
		2: 3500 * time.Millisecond,
		3: 5300 * time.Millisecond,
		4: 6500 * time.Millisecond,
	}, starts)
}

func TestSimulator_ProgressIsMonotonicAndEndsAtHundred(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	sim := newSimulator(t, clock)

	var rec recorder
	require.NoError(t, sim.Start(rec.onProgress, rec.onComplete))
	for i := 0; i < 100; i++ {
		clock.Advance(97 * time.Millisecond)
	}

	require.Equal(t, 1, rec.completions)
	require.NotEmpty(t, rec.progress)
	prev := -1.0
	for _, p := range rec.progress {
		assert.GreaterOrEqual(t, p.Percent, prev)
		assert.GreaterOrEqual(t, p.Percent, 0.0)
		assert.LessOrEqual(t, p.Percent, 100.0)
		prev = p.Percent
	}
	assert.Equal(t, 100.0, rec.percentAtCompletion)
	assert.Equal(t, 100.0, sim.Snapshot().Percent)
}

func TestSimulator_PercentNeverPassesCurrentStageBudget(t *testing.T) {
	sim := newSimulator(t, schedule.NewVirtual(epoch))

	// a late boundary timer must not let a tick run into stage 1's share
	assert.InDelta(t, 2000.0/7500*100, sim.percentAt(3*time.Second, 0), 1e-9)
	assert.InDelta(t, 3000.0/7500*100, sim.percentAt(3*time.Second, 1), 1e-9)
	assert.Equal(t, 0.0, sim.percentAt(-time.Second, 0))
	assert.Equal(t, 100.0, sim.percentAt(time.Hour, 4))
}

func TestSimulator_CancelStopsEverything(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	sim := newSimulator(t, clock)

	var rec recorder
	require.NoError(t, sim.Start(rec.onProgress, rec.onComplete))
	clock.Advance(3 * time.Second)
	sim.Cancel()
	reported := len(rec.progress)

	clock.Advance(time.Minute)
	assert.Zero(t, rec.completions)
	assert.Len(t, rec.progress, reported)
	assert.Zero(t, clock.Pending())
	assert.Equal(t, StateCancelled, sim.Snapshot().State)
}

func TestSimulator_StartWhileRunning(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	sim := newSimulator(t, clock)
	require.NoError(t, sim.Start(nil, nil))
	assert.ErrorIs(t, sim.Start(nil, nil), ErrAlreadyRunning)

	sim.Cancel()
	var rec recorder
	require.NoError(t, sim.Start(nil, rec.onComplete))
	clock.Advance(8 * time.Second)
	assert.Equal(t, 1, rec.completions)
}

func TestSimulator_FailsClosedWithoutTimers(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	clock.Stop()
	sim := newSimulator(t, clock)

	var rec recorder
	err := sim.Start(rec.onProgress, rec.onComplete)
	require.ErrorIs(t, err, schedule.ErrStopped)
	assert.Equal(t, StateFailed, sim.Snapshot().State)
	clock.Advance(time.Minute)
	assert.Zero(t, rec.completions)
}

// flakyScheduler refuses timers once its budget is spent.
type flakyScheduler struct {
	*schedule.Virtual
	budget int
}

var errNoTimers = errors.New("no timers left")

func (f *flakyScheduler) At(deadline time.Time, fn func()) (*schedule.Timer, error) {
	if f.budget == 0 {
		return nil, errNoTimers
	}
	f.budget--
	return f.Virtual.At(deadline, fn)
}

func TestSimulator_FailsClosedMidRun(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	// five stage ends, the completion and four progress ticks
	flaky := &flakyScheduler{Virtual: clock, budget: 10}
	sim, err := New(flaky, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, sim.Start(rec.onProgress, rec.onComplete))
	clock.Advance(time.Minute)

	assert.Zero(t, rec.completions)
	assert.ErrorIs(t, sim.Err(), errNoTimers)
	assert.Equal(t, StateFailed, sim.Snapshot().State)
	assert.Zero(t, clock.Pending())
}

func TestNew_RejectsBadConfiguration(t *testing.T) {
	clock := schedule.NewVirtual(epoch)

	_, err := New(clock, WithStages(nil))
	assert.ErrorIs(t, err, ErrNoStages)

	_, err = New(clock, WithStages([]Stage{{Name: "verify-payment"}}))
	assert.Error(t, err)

	_, err = New(clock, WithTickInterval(0))
	assert.Error(t, err)
}

func TestSimulator_CustomStages(t *testing.T) {
	clock := schedule.NewVirtual(epoch)
	sim := newSimulator(t, clock,
		WithStages([]Stage{{Name: "verify-payment", Duration: time.Second}, {Name: "done", Duration: time.Second}}),
		WithSettleDelay(0),
		WithTickInterval(250*time.Millisecond))

	var rec recorder
	require.NoError(t, sim.Start(rec.onProgress, rec.onComplete))
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, rec.completions)
	assert.Equal(t, 100.0, rec.percentAtCompletion)
}
