package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// IntervalSchedule schedules a job at a fixed interval, optionally spread
// by a random jitter. Jitter keeps multiple deployed instances from firing
// the same job at the same instant.
type IntervalSchedule struct {
	Interval time.Duration
	Jitter   time.Duration
}

// NewIntervalSchedule creates a schedule with no jitter.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// NewJitteredIntervalSchedule creates a schedule that fires every interval
// plus a uniform random delay in [0, jitter).
func NewJitteredIntervalSchedule(interval, jitter time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval, Jitter: jitter}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	next := t.Add(s.Interval)
	if s.Jitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(s.Jitter))))
	}
	return next
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	if s.Jitter > 0 {
		return fmt.Sprintf("@every %s (jitter %s)", s.Interval.String(), s.Jitter.String())
	}
	return fmt.Sprintf("@every %s", s.Interval.String())
}
