// timestamp.go
//
// This source file is part of the FoundationDB open source project
//
// Copyright 2024 Apple Inc. and the FoundationDB project authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package api

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrInvalidValue is returned when the numeric part of a timestamp cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")
	// ErrNoUnit is returned when a timestamp has no unit suffix.
	ErrNoUnit = errors.New("no unit")
	// ErrInvalidUnit is returned when the unit suffix of a timestamp is unknown.
	ErrInvalidUnit = errors.New("invalid unit")
)

// Timestamp is a point in time, in nanoseconds since the start of the trace.
type Timestamp int64

type timeUnit struct {
	name  string
	scale int64
}

// units are ordered from the largest to the smallest.
var units = []timeUnit{
	{name: "s", scale: 1_000_000_000},
	{name: "ms", scale: 1_000_000},
	{name: "us", scale: 1_000},
	{name: "ns", scale: 1},
}

// String renders the timestamp in the largest unit that keeps the value at
// or above one.
func (t Timestamp) String() string {
	if t == 0 {
		return "0 ns"
	}

	// Unsigned so that the magnitude of math.MinInt64 does not overflow.
	magnitude := uint64(t)
	if t < 0 {
		magnitude = -magnitude
	}
	for _, unit := range units {
		if magnitude >= uint64(unit.scale) {
			if unit.scale == 1 {
				return fmt.Sprintf("%d ns", int64(t))
			}
			return fmt.Sprintf("%.3f %s", float64(t)/float64(unit.scale), unit.name)
		}
	}

	return fmt.Sprintf("%d ns", int64(t))
}

// numberEnd returns the index where the unit starts, or -1 if there is none.
// An e or E followed by a digit or sign belongs to the number.
func numberEnd(s string) int {
	for i, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			continue
		}
		if (r == 'e' || r == 'E') && i > 0 && i+1 < len(s) && strings.ContainsRune("0123456789+-", rune(s[i+1])) {
			continue
		}
		return i
	}
	return -1
}

// ParseTimestamp parses strings like "12.5 ms", "300ns" or "1e3 us". Values
// that do not fit into a Timestamp are invalid.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	split := numberEnd(s)
	if split < 0 {
		return 0, ErrNoUnit
	}

	value, err := strconv.ParseFloat(s[:split], 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrInvalidValue
	}

	unitName := strings.ToLower(strings.TrimSpace(s[split:]))
	if unitName == "" {
		return 0, ErrNoUnit
	}
	for _, unit := range units {
		if unit.name == unitName {
			scaled := math.Round(value * float64(unit.scale))
			if scaled < math.MinInt64 || scaled >= math.MaxInt64 {
				return 0, ErrInvalidValue
			}
			return Timestamp(scaled), nil
		}
	}

	return 0, ErrInvalidUnit
}

// Interval is the half-open time range [Start, Stop).
type Interval struct {
	// Start is the first point of the interval.
	Start Timestamp `json:"start"`

	// Stop is the first point after the interval.
	Stop Timestamp `json:"stop"`
}

// NewInterval returns the interval [start, stop).
func NewInterval(start Timestamp, stop Timestamp) Interval {
	return Interval{Start: start, Stop: stop}
}

// Duration returns the length of the interval in nanoseconds.
func (i Interval) Duration() int64 {
	return int64(i.Stop - i.Start)
}

// Contains checks if the point lies inside the interval.
func (i Interval) Contains(t Timestamp) bool {
	return t >= i.Start && t < i.Stop
}

// Overlaps checks if the two intervals share at least one point. An empty
// interval overlaps another interval when its position is contained in it.
func (i Interval) Overlaps(other Interval) bool {
	if i.Duration() == 0 {
		return other.Contains(i.Start)
	}
	if other.Duration() == 0 {
		return i.Contains(other.Start)
	}
	return i.Start < other.Stop && other.Start < i.Stop
}

// Lerp maps a fraction of the interval to a point in time.
func (i Interval) Lerp(value float32) Timestamp {
	return i.Start + Timestamp(math.Round(float64(value)*float64(i.Duration())))
}

// Unlerp maps a point in time to its fraction of the interval.
func (i Interval) Unlerp(t Timestamp) float32 {
	if i.Duration() == 0 {
		return 0
	}
	return float32(float64(t-i.Start) / float64(i.Duration()))
}

// Union returns the smallest interval containing both intervals.
func (i Interval) Union(other Interval) Interval {
	return Interval{Start: min(i.Start, other.Start), Stop: max(i.Stop, other.Stop)}
}

// Intersection returns the overlap of both intervals. Disjoint intervals
// produce an empty interval positioned at the later start.
func (i Interval) Intersection(other Interval) Interval {
	start := max(i.Start, other.Start)
	stop := min(i.Stop, other.Stop)
	if stop < start {
		stop = start
	}
	return Interval{Start: start, Stop: stop}
}

// Grow extends both ends of the interval by amount. A negative amount
// shrinks the interval.
func (i Interval) Grow(amount int64) Interval {
	return Interval{Start: i.Start - Timestamp(amount), Stop: i.Stop + Timestamp(amount)}
}

// Translate shifts the interval by offset.
func (i Interval) Translate(offset int64) Interval {
	return Interval{Start: i.Start + Timestamp(offset), Stop: i.Stop + Timestamp(offset)}
}

// String returns a human readable representation of the interval.
func (i Interval) String() string {
	return fmt.Sprintf("from %s to %s", i.Start, i.Stop)
}
