// history.go
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

// Package history implements the undoable navigation of the view interval.
package history

import (
	"github.com/apple/foundationdb/fdbprofviewer/api"
)

// Origin describes the kind of navigation that produced a view.
type Origin string

const (
	// OriginZoom is a change of the view extent.
	OriginZoom Origin = "Zoom"

	// OriginPan is a translation of the view.
	OriginPan Origin = "Pan"
)

// History is the list of visited views with a cursor. Views after the cursor
// can be redone until a new view is pushed.
type History struct {
	levels  []api.Interval
	origins []Origin
	index   int

	// maxLevels bounds the length of the history. Zero means unbounded.
	maxLevels int

	// coalescePans replaces the current view instead of adding a new one
	// when two pans follow each other.
	coalescePans bool
}

// NewHistory returns an empty, unbounded history that coalesces pans.
func NewHistory() *History {
	return &History{coalescePans: true}
}

// Configure changes the bound and the pan handling. A shorter bound drops
// the oldest views right away.
func (history *History) Configure(maxLevels int, coalescePans bool) {
	history.maxLevels = maxLevels
	history.coalescePans = coalescePans
	history.trim()
}

// Push records a new current view and forgets every view that could have
// been redone.
func (history *History) Push(interval api.Interval, origin Origin) {
	if history.coalescePans && len(history.levels) > 0 &&
		origin == OriginPan && history.origins[history.index] == OriginPan {
		history.levels = history.levels[:history.index]
		history.origins = history.origins[:history.index]
	}

	if len(history.levels) > history.index+1 {
		history.levels = history.levels[:history.index+1]
		history.origins = history.origins[:history.index+1]
	}

	history.levels = append(history.levels, interval)
	history.origins = append(history.origins, origin)
	history.index = len(history.levels) - 1
	history.trim()
}

func (history *History) trim() {
	if history.maxLevels <= 0 || len(history.levels) <= history.maxLevels {
		return
	}

	drop := len(history.levels) - history.maxLevels
	history.levels = append([]api.Interval(nil), history.levels[drop:]...)
	history.origins = append([]Origin(nil), history.origins[drop:]...)
	history.index = max(history.index-drop, 0)
}

// Undo moves the cursor back one view. It returns false at the first view.
func (history *History) Undo() (api.Interval, bool) {
	if history.index == 0 || len(history.levels) == 0 {
		return api.Interval{}, false
	}
	history.index--
	return history.levels[history.index], true
}

// Redo moves the cursor forward one view. It returns false at the last
// view.
func (history *History) Redo() (api.Interval, bool) {
	if history.index+1 >= len(history.levels) {
		return api.Interval{}, false
	}
	history.index++
	return history.levels[history.index], true
}

// Len returns the number of remembered views.
func (history *History) Len() int {
	return len(history.levels)
}

// Index returns the position of the current view.
func (history *History) Index() int {
	return history.index
}

// Levels returns a copy of the remembered views.
func (history *History) Levels() []api.Interval {
	return append([]api.Interval(nil), history.levels...)
}

// Origins returns a copy of the origins of the remembered views.
func (history *History) Origins() []Origin {
	return append([]Origin(nil), history.origins...)
}
