package websocket

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerScheduleFiresOnce(t *testing.T) {
	var tm Timer
	var fired atomic.Int32

	tm.Schedule(10*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, tm.Armed())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, tm.Armed())
}

func TestTimerCancelWins(t *testing.T) {
	var tm Timer
	var fired atomic.Int32

	tm.Schedule(20*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, tm.Cancel())
	assert.False(t, tm.Cancel())
	assert.False(t, tm.Armed())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerRescheduleReplacesPending(t *testing.T) {
	var tm Timer
	var first, second atomic.Int32

	tm.Schedule(20*time.Millisecond, func() { first.Add(1) })
	tm.Schedule(20*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestTimerEveryTicksUntilCancelled(t *testing.T) {
	var tm Timer
	var ticks atomic.Int32

	tm.Every(5*time.Millisecond, func() {
		if ticks.Add(1) == 3 {
			tm.Cancel()
		}
	})

	require.Eventually(t, func() bool { return ticks.Load() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), ticks.Load())
	assert.False(t, tm.Armed())
}
