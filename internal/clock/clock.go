package clock

import (
	"time"
)

// Timer is a scheduled callback that may be cancelled
type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d
	AfterFunc(d time.Duration, f func()) Timer
}

// System clock backed by package time
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
