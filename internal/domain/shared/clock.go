package shared

import "time"

// Clock supplies the current time. Services receive it explicitly so that
// date-dependent rules (due dates, grace periods, start dates) stay testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.T
}
