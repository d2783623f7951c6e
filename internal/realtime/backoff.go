package realtime

import "time"

// Backoff computes reconnect delays that double from Base up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is 1s doubling to a 20s cap.
var DefaultBackoff = Backoff{Base: time.Second, Max: 20 * time.Second}

// Delay returns the wait before reconnect attempt number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	if d <= 0 {
		d = DefaultBackoff.Base
	}
	for i := 0; i < attempt && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Task is a scheduled function that can be cancelled.
type Task interface {
	// Stop cancels the task. It returns false if the task already ran or
	// was already stopped.
	Stop() bool
}

// Scheduler runs functions after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// SystemScheduler schedules on the runtime timer.
type SystemScheduler struct{}

// AfterFunc implements Scheduler with time.AfterFunc.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}
