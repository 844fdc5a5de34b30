package graph

import "time"

// Scheduler schedules the appearance-phase callbacks. Injecting it lets
// tests advance phases without a real clock.
type Scheduler interface {
	// AfterFunc runs fn after d and returns a cancel function.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// ClockScheduler is the production Scheduler backed by time.AfterFunc.
type ClockScheduler struct{}

func (ClockScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
