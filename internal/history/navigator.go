// navigator.go
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

package history

import (
	"github.com/apple/foundationdb/fdbprofviewer/api"
)

// Direction is the direction of a pan.
type Direction int

const (
	// Left moves the view to earlier times.
	Left Direction = -1

	// Right moves the view to later times.
	Right Direction = 1
)

// Navigator owns the view interval, the total interval of all open traces
// and the navigation history shared by every window.
type Navigator struct {
	view      api.Interval
	total     api.Interval
	history   *History
	selection *SelectState
}

// NewNavigator returns a navigator with an empty view.
func NewNavigator() *Navigator {
	navigator := &Navigator{history: NewHistory()}
	navigator.selection = &SelectState{navigator: navigator}
	return navigator
}

// View returns the current view interval.
func (navigator *Navigator) View() api.Interval {
	return navigator.view
}

// Total returns the interval covered by all traces.
func (navigator *Navigator) Total() api.Interval {
	return navigator.total
}

// SetTotal replaces the total interval. The view is not changed.
func (navigator *Navigator) SetTotal(total api.Interval) {
	navigator.total = total
}

// History returns the navigation history.
func (navigator *Navigator) History() *History {
	return navigator.history
}

// Selection returns the interval selection form.
func (navigator *Navigator) Selection() *SelectState {
	return navigator.selection
}

func (navigator *Navigator) setView(interval api.Interval, origin Origin) {
	navigator.view = interval
	navigator.history.Push(interval, origin)
	navigator.selection.Reset()
}

// Pan moves the view by percent of its duration. A pan by 0 percent does
// nothing.
func (navigator *Navigator) Pan(percent int, direction Direction) {
	if percent == 0 {
		return
	}

	offset := navigator.view.Duration() * int64(percent) / 100
	navigator.setView(navigator.view.Translate(offset*int64(direction)), OriginPan)
}

// Zoom changes the view to interval. Zooming to the current view does
// nothing.
func (navigator *Navigator) Zoom(interval api.Interval) {
	if navigator.view == interval {
		return
	}

	navigator.setView(interval, OriginZoom)
}

// ZoomIn shrinks the view to its central half.
func (navigator *Navigator) ZoomIn() {
	navigator.Zoom(navigator.view.Grow(-navigator.view.Duration() / 4))
}

// ZoomOut doubles the view, limited to the total interval.
func (navigator *Navigator) ZoomOut() {
	navigator.Zoom(navigator.view.Grow(navigator.view.Duration() / 2).Intersection(navigator.total))
}

// ResetZoom shows the total interval.
func (navigator *Navigator) ResetZoom() {
	navigator.Zoom(navigator.total)
}

// Undo returns to the previous view, if any.
func (navigator *Navigator) Undo() {
	interval, ok := navigator.history.Undo()
	if !ok {
		return
	}
	navigator.view = interval
	navigator.selection.Reset()
}

// Redo returns to the next view, if any.
func (navigator *Navigator) Redo() {
	interval, ok := navigator.history.Redo()
	if !ok {
		return
	}
	navigator.view = interval
	navigator.selection.Reset()
}
