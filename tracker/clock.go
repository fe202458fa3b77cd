package tracker

import "time"

// Timer is a cancelable scheduled call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the engine so throttling, debouncing and the
// periodic flush can run against a simulated clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall-clock implementation used outside of tests.
var SystemClock Clock = systemClock{}
