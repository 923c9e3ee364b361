package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAfterFunc(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "x") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())
	assert.Equal(t, 2, c.PendingTimers())

	c.Advance(3 * time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, c.PendingTimers())
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second, 1500 * time.Millisecond}, c.ScheduledDelays())
}

func TestFakeTimerScheduledFromCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, schedule)
		}
	}
	c.AfterFunc(time.Second, schedule)

	c.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
	assert.Equal(t, time.Unix(10, 0), c.Now())
}

func TestFakeTicker(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)
	require.Equal(t, 1, c.ActiveTickers())

	c.Advance(time.Second)
	select {
	case at := <-tk.C():
		assert.Equal(t, time.Unix(1, 0), at)
	default:
		t.Fatal("expected a tick")
	}

	tk.Stop()
	assert.Equal(t, 0, c.ActiveTickers())

	c.Advance(5 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker must not tick")
	default:
	}
}
