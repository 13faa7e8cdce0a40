package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFunc(t *testing.T) {
	t.Run("FiresAtDeadline", func(t *testing.T) {
		c := Fake(epoch)
		fired := 0
		c.AfterFunc(time.Second, func() { fired++ })

		c.Advance(999 * time.Millisecond)
		assert.Equal(t, 0, fired)

		c.Advance(time.Millisecond)
		assert.Equal(t, 1, fired)

		c.Advance(time.Hour)
		assert.Equal(t, 1, fired, "one-shot timer fired twice")
	})

	t.Run("Stop", func(t *testing.T) {
		c := Fake(epoch)
		fired := false
		timer := c.AfterFunc(time.Second, func() { fired = true })

		assert.True(t, timer.Stop())
		assert.False(t, timer.Stop())
		c.Advance(2 * time.Second)
		assert.False(t, fired)
		assert.Equal(t, 0, c.Pending())
	})

	t.Run("ChainedTimersFireInOneAdvance", func(t *testing.T) {
		c := Fake(epoch)
		var at []time.Time
		c.AfterFunc(time.Second, func() {
			at = append(at, c.Now())
			c.AfterFunc(2*time.Second, func() { at = append(at, c.Now()) })
		})

		c.Advance(5 * time.Second)
		assert.Equal(t, []time.Time{epoch.Add(time.Second), epoch.Add(3 * time.Second)}, at)
		assert.Equal(t, epoch.Add(5*time.Second), c.Now())
	})
}

func TestFakeTicker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(time.Minute)
	select {
	case got := <-ticker.C:
		assert.Equal(t, epoch.Add(time.Minute), got)
	default:
		t.Fatal("expected a tick")
	}

	ticker.Stop()
	c.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Fatal("tick after Stop")
	default:
	}
}
