// select.go
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
	"errors"
	"fmt"

	"github.com/apple/foundationdb/fdbprofviewer/api"
)

var (
	// ErrStartAfterStop is returned for a start after the end of the view.
	ErrStartAfterStop = errors.New("start after stop")

	// ErrStartAfterEnd is returned for a start after the end of all traces.
	ErrStartAfterEnd = errors.New("start after end")

	// ErrStopBeforeStart is returned for a stop before the start of the view.
	ErrStopBeforeStart = errors.New("stop before start")
)

// SelectState is the form that sets the bounds of the view as text. The
// buffers hold the text being edited and are reset to the view after every
// navigation.
type SelectState struct {
	StartBuffer string
	StopBuffer  string

	// StartError is the reason the last start could not be applied.
	StartError error
	// StopError is the reason the last stop could not be applied.
	StopError error

	navigator *Navigator
}

// Reset fills the buffers from the view and clears the errors.
func (state *SelectState) Reset() {
	view := state.navigator.View()
	state.StartBuffer = view.Start.String()
	state.StopBuffer = view.Stop.String()
	state.StartError = nil
	state.StopError = nil
}

// CommitStart parses the start buffer and zooms to the new start. Unchanged
// buffers are ignored. The returned error is also kept in StartError.
func (state *SelectState) CommitStart() error {
	view := state.navigator.View()
	if state.StartBuffer == view.Start.String() {
		return nil
	}

	start, err := api.ParseTimestamp(state.StartBuffer)
	if err != nil {
		state.StartError = fmt.Errorf("invalid start %q: %w", state.StartBuffer, err)
		return state.StartError
	}
	if start > view.Stop {
		state.StartError = ErrStartAfterStop
		return state.StartError
	}
	if start > state.navigator.Total().Stop {
		state.StartError = ErrStartAfterEnd
		return state.StartError
	}

	state.navigator.Zoom(api.NewInterval(start, view.Stop))
	return nil
}

// CommitStop parses the stop buffer and zooms to the new stop. Unchanged
// buffers are ignored. The returned error is also kept in StopError.
func (state *SelectState) CommitStop() error {
	view := state.navigator.View()
	if state.StopBuffer == view.Stop.String() {
		return nil
	}

	stop, err := api.ParseTimestamp(state.StopBuffer)
	if err != nil {
		state.StopError = fmt.Errorf("invalid stop %q: %w", state.StopBuffer, err)
		return state.StopError
	}
	if stop < view.Start {
		state.StopError = ErrStopBeforeStart
		return state.StopError
	}

	state.navigator.Zoom(api.NewInterval(view.Start, stop))
	return nil
}
