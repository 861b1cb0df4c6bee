package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestVirtual_FiresInDeadlineOrderAtDeadlineTime(t *testing.T) {
	v := NewVirtual(epoch)
	type firing struct {
		name string
		at   time.Duration
	}
	var fired []firing
	record := func(name string) func() {
		return func() { fired = append(fired, firing{name, v.Now().Sub(epoch)}) }
	}

	_, err := v.At(epoch.Add(3*time.Second), record("third"))
	require.NoError(t, err)
	_, err = v.At(epoch.Add(1*time.Second), record("first"))
	require.NoError(t, err)
	_, err = After(v, 2*time.Second, record("second"))
	require.NoError(t, err)

	v.Advance(2500 * time.Millisecond)
	assert.Equal(t, []firing{{"first", time.Second}, {"second", 2 * time.Second}}, fired)
	assert.Equal(t, 2500*time.Millisecond, v.Now().Sub(epoch))
	assert.Equal(t, 1, v.Pending())

	v.Advance(time.Second)
	assert.Len(t, fired, 3)
	assert.Equal(t, "third", fired[2].name)
}

func TestVirtual_ActionsScheduledWhileAdvancingFire(t *testing.T) {
	v := NewVirtual(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 5 {
			_, err := After(v, time.Second, tick)
			require.NoError(t, err)
		}
	}
	_, err := After(v, time.Second, tick)
	require.NoError(t, err)

	v.Advance(10 * time.Second)
	assert.Equal(t, 5, count)
	assert.Zero(t, v.Pending())
}

func TestVirtual_CancelAndStop(t *testing.T) {
	v := NewVirtual(epoch)
	fired := false
	timer, err := After(v, time.Second, func() { fired = true })
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Second), timer.Deadline())

	assert.True(t, timer.Cancel())
	assert.False(t, timer.Cancel())
	v.Advance(time.Minute)
	assert.False(t, fired)

	v.Stop()
	_, err = After(v, time.Second, func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestGroup_CancelAll(t *testing.T) {
	v := NewVirtual(epoch)
	var g Group
	fired := 0
	for i := 1; i <= 3; i++ {
		timer, err := After(v, time.Duration(i)*time.Second, func() { fired++ })
		require.NoError(t, err)
		g.Add(timer)
	}
	g.Add(nil)

	v.Advance(time.Second)
	assert.Equal(t, 2, g.CancelAll())
	v.Advance(time.Minute)
	assert.Equal(t, 1, fired)
}

func TestLoop_RunsTimersAndTasksSerially(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t))
	defer loop.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	start := loop.Now()
	_, err := loop.At(start.Add(40*time.Millisecond), func() {
		mu.Lock()
		order = append(order, "late")
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)
	_, err = loop.At(start.Add(10*time.Millisecond), func() {
		mu.Lock()
		order = append(order, "early")
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, loop.Do(context.Background(), func() {
		mu.Lock()
		order = append(order, "task")
		mu.Unlock()
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timers did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"task", "early", "late"}, order)
}

func TestLoop_CancelledTimerNeverFires(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	fired := make(chan struct{}, 1)
	timer, err := After(loop, 20*time.Millisecond, func() { fired <- struct{}{} })
	require.NoError(t, err)
	require.True(t, timer.Cancel())

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestLoop_CloseRejectsNewWork(t *testing.T) {
	loop := NewLoop(nil)
	loop.Close()
	loop.Close()

	_, err := After(loop, time.Millisecond, func() {})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoop_DoRecoversPanics(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	err := loop.Do(context.Background(), func() { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, loop.Do(context.Background(), func() {}))
}

func TestLoop_DoHonoursContext(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// the loop may still pick the task up, so either outcome is acceptable as long as it returns
	err := loop.Do(ctx, func() {})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestLoop_DoWaitsForAcceptedTask(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// the task outlives ctx; its writes must be visible once Do returns
	var result string
	finished := false
	err := loop.Do(ctx, func() {
		time.Sleep(50 * time.Millisecond)
		result = "settled"
		finished = true
	})
	if err != nil {
		// ctx may expire before the hand-off, in which case fn never ran
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, finished)
		return
	}
	assert.True(t, finished)
	assert.Equal(t, "settled", result)
	assert.Error(t, ctx.Err())
}
