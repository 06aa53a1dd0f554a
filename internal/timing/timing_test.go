package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	assert.Equal(t, "00:00:00", Clock(0))
	assert.Equal(t, "00:00:00", Clock(-time.Second))
	assert.Equal(t, "00:01:05", Clock(65*time.Second))
	assert.Equal(t, "26:03:09", Clock(26*time.Hour+3*time.Minute+9*time.Second+400*time.Millisecond))
}

func TestStopwatch(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	sw := StartWithClock(func() time.Time { return now })

	now = base.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, sw.Elapsed())
	assert.Equal(t, "00:01:30", sw.String())
}
