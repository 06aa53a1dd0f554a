// Package timing formats elapsed processing time for worker and CLI logs.
package timing

import (
	"fmt"
	"time"
)

// Clock formats d as HH:MM:SS.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Stopwatch measures elapsed time for log lines.
type Stopwatch struct {
	start time.Time
	now   func() time.Time
}

// Start returns a stopwatch running on the wall clock.
func Start() *Stopwatch {
	return StartWithClock(time.Now)
}

func StartWithClock(now func() time.Time) *Stopwatch {
	return &Stopwatch{start: now(), now: now}
}

func (s *Stopwatch) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

func (s *Stopwatch) String() string {
	return Clock(s.Elapsed())
}
