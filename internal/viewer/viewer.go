// viewer.go
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

// Package viewer turns deferred trace data into windows of entries that
// follow a shared view interval.
//
// A Viewer is driven by a single goroutine that calls Tick once per frame.
// Tick never blocks: it only drains results the data sources have already
// produced and issues new requests for whatever the current view needs.
package viewer

import (
	"sync"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/history"
	"github.com/apple/foundationdb/fdbprofviewer/internal/search"
	"github.com/go-logr/logr"
)

// RevealTarget is the item the user jumped to from the search results.
type RevealTarget struct {
	Window  uint64
	EntryID api.EntryID
	Row     uint64
	UID     api.ItemUID
}

// pendingSource is a data source waiting for its window. The info is kept
// once it has arrived.
type pendingSource struct {
	counting *deferred.Counting
	info     *api.DataSourceInfo
}

// Viewer owns the open windows and the navigation shared between them.
type Viewer struct {
	logger    logr.Logger
	observer  Observer
	navigator *history.Navigator

	// pending holds the data sources that have no window yet.
	pending []*pendingSource
	windows []*Window

	configuration *api.ViewerConfiguration
	focus         *RevealTarget

	// lock guards the configuration update handed over by other goroutines.
	lock                 sync.Mutex
	pendingConfiguration *api.ViewerConfiguration
}

// New returns a viewer without data sources. The observer may be nil.
func New(logger logr.Logger, observer Observer) *Viewer {
	if observer == nil {
		observer = noopObserver{}
	}

	return &Viewer{
		logger:        logger.WithValues("area", "viewer"),
		observer:      observer,
		navigator:     history.NewNavigator(),
		configuration: &api.ViewerConfiguration{},
	}
}

// AddDataSource starts loading a trace. The trace gets its own window once
// its info has arrived.
func (viewer *Viewer) AddDataSource(dataSource deferred.DeferredDataSource) {
	counting := deferred.NewCounting(dataSource, viewer.observer)
	counting.FetchInfo()
	counting.FetchDescription()
	viewer.pending = append(viewer.pending, &pendingSource{counting: counting})
}

// ApplyConfiguration hands a new configuration to the viewer. It is safe to
// call from any goroutine; the configuration takes effect on the next tick.
func (viewer *Viewer) ApplyConfiguration(configuration *api.ViewerConfiguration) {
	viewer.lock.Lock()
	defer viewer.lock.Unlock()
	viewer.pendingConfiguration = configuration.DeepCopy()
}

// Configuration returns the latest configuration, including one that is
// handed over but not applied yet. Callers must not modify it.
func (viewer *Viewer) Configuration() *api.ViewerConfiguration {
	viewer.lock.Lock()
	defer viewer.lock.Unlock()
	if viewer.pendingConfiguration != nil {
		return viewer.pendingConfiguration
	}
	return viewer.configuration
}

// Navigator returns the shared view navigation.
func (viewer *Viewer) Navigator() *history.Navigator {
	return viewer.navigator
}

// Windows returns the open windows in the order they were opened.
func (viewer *Viewer) Windows() []*Window {
	return viewer.windows
}

// Pending returns the number of traces still waiting for their window.
func (viewer *Viewer) Pending() int {
	return len(viewer.pending)
}

// Outstanding returns the number of requests that have not completed
// across all data sources.
func (viewer *Viewer) Outstanding() uint64 {
	var outstanding uint64
	for _, source := range viewer.pending {
		outstanding += source.counting.Outstanding()
	}
	for _, window := range viewer.windows {
		outstanding += window.config.DataSource.Outstanding()
	}
	return outstanding
}

// Busy checks if more data is expected, in which case the caller should
// keep calling Tick.
func (viewer *Viewer) Busy() bool {
	return len(viewer.pending) > 0 || viewer.Outstanding() > 0
}

// Focus returns the item selected with Reveal, if any.
func (viewer *Viewer) Focus() *RevealTarget {
	return viewer.focus
}

// Tick runs one frame: apply configuration changes, open at most one new
// window, store arrived tiles and request what the current view needs.
func (viewer *Viewer) Tick() {
	viewer.applyPendingConfiguration()
	viewer.promote()

	view := viewer.navigator.View()
	for _, window := range viewer.windows {
		window.Update()
		window.Inflate(view)
		window.Search(view)
	}
}

func (viewer *Viewer) applyPendingConfiguration() {
	viewer.lock.Lock()
	configuration := viewer.pendingConfiguration
	viewer.pendingConfiguration = nil
	viewer.lock.Unlock()

	if configuration == nil {
		return
	}

	viewer.configuration = configuration
	viewer.navigator.History().Configure(configuration.History.MaxLevels, configuration.CoalescePans())
	for _, window := range viewer.windows {
		viewer.configureWindow(window)
	}
	viewer.logger.Info("Applied viewer configuration")
}

func (viewer *Viewer) configureWindow(window *Window) {
	err := window.config.Apply(viewer.configuration)
	if err != nil {
		viewer.logger.Error(err, "Error applying configuration, searching titles instead", "window", window.Index)
	}
}

// promote turns the first pending data source whose info has arrived into a
// window. Other sources keep their info until a later tick, and sources whose
// info request failed are dropped.
func (viewer *Viewer) promote() {
	var promoted *pendingSource
	remaining := viewer.pending[:0]
	for _, source := range viewer.pending {
		if source.info == nil {
			infos := source.counting.GetInfos()
			if len(infos) > 0 {
				source.info = &infos[len(infos)-1]
			} else if source.counting.FailedRequests(deferred.RequestKindInfo) > 0 {
				viewer.logger.Error(nil, "Trace info could not be loaded, dropping the trace")
				continue
			}
		}

		if promoted == nil && source.info != nil {
			promoted = source
			continue
		}
		remaining = append(remaining, source)
	}
	viewer.pending = remaining
	if promoted == nil {
		return
	}

	counting := promoted.counting
	index := uint64(len(viewer.windows))
	window, err := NewWindow(index, counting, *promoted.info, viewer.logger, viewer.observer)
	if err != nil {
		viewer.logger.Error(err, "Error opening trace, dropping it", "window", index)
		return
	}
	viewer.configureWindow(window)

	total := window.config.Interval
	if len(viewer.windows) > 0 {
		total = viewer.navigator.Total().Union(total)
	}
	viewer.windows = append(viewer.windows, window)
	viewer.navigator.SetTotal(total)
	viewer.navigator.ResetZoom()

	viewer.logger.Info("Opened trace", "window", index, "interval", window.config.Interval.String(), "nodes", window.config.Nodes())
}

// Reveal zooms to a search result and expands its slot.
func (viewer *Viewer) Reveal(window *Window, result search.Result) {
	interval := result.Interval
	viewer.navigator.Zoom(interval.Grow(interval.Duration() / 20))
	window.ExpandSlot(result.EntryID)
	viewer.focus = &RevealTarget{
		Window:  window.Index,
		EntryID: result.EntryID,
		Row:     result.Row,
		UID:     result.UID,
	}
}

// Close forgets every window and pending data source.
func (viewer *Viewer) Close() {
	viewer.pending = nil
	viewer.windows = nil
	viewer.focus = nil
}
