package service

import "time"

// Clock abstracts wall-clock time so refresh and cache windows can be
// exercised without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}
