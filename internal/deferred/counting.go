// counting.go
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

package deferred

import (
	"fmt"

	"github.com/apple/foundationdb/fdbprofviewer/api"
)

// RequestObserver is notified about every request that is started or
// finished through a Counting data source.
type RequestObserver interface {
	// RequestStarted is called once per fetch.
	RequestStarted(kind RequestKind)
	// RequestsFinished is called once per drain with the number of drained
	// results. The count may be zero.
	RequestsFinished(kind RequestKind, count int)
}

// Counting tracks the number of requests that were fetched but not yet
// drained from the wrapped data source.
type Counting struct {
	dataSource  DeferredDataSource
	observer    RequestObserver
	outstanding uint64
}

var _ DeferredDataSource = &Counting{}

// NewCounting wraps dataSource. The observer may be nil.
func NewCounting(dataSource DeferredDataSource, observer RequestObserver) *Counting {
	return &Counting{dataSource: dataSource, observer: observer}
}

// Outstanding returns the number of requests that have not been drained.
func (counting *Counting) Outstanding() uint64 {
	return counting.outstanding
}

// FailedRequests returns the number of failed requests of kind, or zero when
// the wrapped data source does not report failures.
func (counting *Counting) FailedRequests(kind RequestKind) uint64 {
	reporter, ok := counting.dataSource.(FailureReporter)
	if !ok {
		return 0
	}
	return reporter.FailedRequests(kind)
}

func (counting *Counting) startRequest(kind RequestKind) {
	counting.outstanding++
	if counting.observer != nil {
		counting.observer.RequestStarted(kind)
	}
}

// finishRequests panics when more results are drained than were requested,
// which means the transport delivered a result twice.
func finishRequests[T any](counting *Counting, kind RequestKind, results []T) []T {
	count := uint64(len(results))
	if count > counting.outstanding {
		panic(fmt.Sprintf("drained %d %s results with only %d requests outstanding", count, kind, counting.outstanding))
	}
	counting.outstanding -= count
	if counting.observer != nil {
		counting.observer.RequestsFinished(kind, len(results))
	}
	return results
}

// FetchDescription implements DeferredDataSource.
func (counting *Counting) FetchDescription() {
	counting.startRequest(RequestKindDescription)
	counting.dataSource.FetchDescription()
}

// GetDescriptions implements DeferredDataSource.
func (counting *Counting) GetDescriptions() []api.DataSourceDescription {
	return finishRequests(counting, RequestKindDescription, counting.dataSource.GetDescriptions())
}

// FetchInfo implements DeferredDataSource.
func (counting *Counting) FetchInfo() {
	counting.startRequest(RequestKindInfo)
	counting.dataSource.FetchInfo()
}

// GetInfos implements DeferredDataSource.
func (counting *Counting) GetInfos() []api.DataSourceInfo {
	return finishRequests(counting, RequestKindInfo, counting.dataSource.GetInfos())
}

// FetchSummaryTile implements DeferredDataSource.
func (counting *Counting) FetchSummaryTile(entryID api.EntryID, tileID api.TileID, full bool) {
	counting.startRequest(RequestKindSummaryTile)
	counting.dataSource.FetchSummaryTile(entryID, tileID, full)
}

// GetSummaryTiles implements DeferredDataSource.
func (counting *Counting) GetSummaryTiles() []api.SummaryTile {
	return finishRequests(counting, RequestKindSummaryTile, counting.dataSource.GetSummaryTiles())
}

// FetchSlotTile implements DeferredDataSource.
func (counting *Counting) FetchSlotTile(entryID api.EntryID, tileID api.TileID, full bool) {
	counting.startRequest(RequestKindSlotTile)
	counting.dataSource.FetchSlotTile(entryID, tileID, full)
}

// GetSlotTiles implements DeferredDataSource.
func (counting *Counting) GetSlotTiles() []api.SlotTile {
	return finishRequests(counting, RequestKindSlotTile, counting.dataSource.GetSlotTiles())
}

// FetchSlotMetaTile implements DeferredDataSource.
func (counting *Counting) FetchSlotMetaTile(entryID api.EntryID, tileID api.TileID, full bool) {
	counting.startRequest(RequestKindSlotMetaTile)
	counting.dataSource.FetchSlotMetaTile(entryID, tileID, full)
}

// GetSlotMetaTiles implements DeferredDataSource.
func (counting *Counting) GetSlotMetaTiles() []api.SlotMetaTile {
	return finishRequests(counting, RequestKindSlotMetaTile, counting.dataSource.GetSlotMetaTiles())
}
