// Package series provides time-indexed numeric series and the co-indexed
// pair used wherever two series must correspond one to one.
package series

import (
	"fmt"
	"time"

	"github.com/newthinker/macross/internal/core"
)

// Series is an ordered sequence of (timestamp, value) observations with
// strictly increasing timestamps.
type Series struct {
	times  []time.Time
	values []float64
}

// New builds a Series, copying the inputs.
func New(times []time.Time, values []float64) (Series, error) {
	if len(times) != len(values) {
		return Series{}, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("got %d timestamps and %d values", len(times), len(values)))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return Series{}, core.WrapError(core.ErrInvalidData,
				fmt.Errorf("timestamp %s at index %d does not follow %s",
					times[i].Format(time.RFC3339), i, times[i-1].Format(time.RFC3339)))
		}
	}

	s := Series{
		times:  make([]time.Time, len(times)),
		values: make([]float64, len(values)),
	}
	copy(s.times, times)
	copy(s.values, values)
	return s, nil
}

// Must is like New but panics on error. Intended for tests and literals.
func Must(times []time.Time, values []float64) Series {
	s, err := New(times, values)
	if err != nil {
		panic(err)
	}
	return s
}

// Daily builds a Series of consecutive calendar days starting at start.
func Daily(start time.Time, values []float64) Series {
	times := make([]time.Time, len(values))
	for i := range values {
		times[i] = start.AddDate(0, 0, i)
	}
	return Must(times, values)
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.values)
}

// Time returns the timestamp at index i.
func (s Series) Time(i int) time.Time {
	return s.times[i]
}

// Value returns the value at index i.
func (s Series) Value(i int) float64 {
	return s.values[i]
}

// Values returns a copy of the values.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Times returns a copy of the timestamps.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

// Last returns the final value and false when the series is empty.
func (s Series) Last() (float64, bool) {
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// SameIndex reports whether both series have identical length and timestamps.
func (s Series) SameIndex(other Series) bool {
	if len(s.times) != len(other.times) {
		return false
	}
	for i := range s.times {
		if !s.times[i].Equal(other.times[i]) {
			return false
		}
	}
	return true
}

// WithValues returns a series sharing this index with new values.
func (s Series) WithValues(values []float64) (Series, error) {
	if len(values) != len(s.times) {
		return Series{}, core.WrapError(core.ErrMisalignedSeries,
			fmt.Errorf("index has %d entries, got %d values", len(s.times), len(values)))
	}
	out := Series{
		times:  s.times,
		values: make([]float64, len(values)),
	}
	copy(out.values, values)
	return out, nil
}

// Map applies fn to every observation, keeping the index.
func (s Series) Map(fn func(t time.Time, v float64) float64) Series {
	out := Series{
		times:  s.times,
		values: make([]float64, len(s.values)),
	}
	for i, v := range s.values {
		out.values[i] = fn(s.times[i], v)
	}
	return out
}
