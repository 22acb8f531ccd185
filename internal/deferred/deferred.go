// deferred.go
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

// Package deferred turns trace data sources into a request / drain protocol.
//
// A fetch call only records the request and returns immediately. The result
// is picked up later by the matching get call, which returns every result
// that has completed since the previous call. Results may complete in any
// order; they are matched to their requests by the entry and tile IDs they
// carry.
package deferred

import (
	"context"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/go-logr/logr"
)

// RequestKind names one of the request / drain pairs.
type RequestKind string

const (
	// RequestKindDescription is the FetchDescription / GetDescriptions pair.
	RequestKindDescription RequestKind = "description"
	// RequestKindInfo is the FetchInfo / GetInfos pair.
	RequestKindInfo RequestKind = "info"
	// RequestKindSummaryTile is the FetchSummaryTile / GetSummaryTiles pair.
	RequestKindSummaryTile RequestKind = "summary_tile"
	// RequestKindSlotTile is the FetchSlotTile / GetSlotTiles pair.
	RequestKindSlotTile RequestKind = "slot_tile"
	// RequestKindSlotMetaTile is the FetchSlotMetaTile / GetSlotMetaTiles pair.
	RequestKindSlotMetaTile RequestKind = "slot_meta_tile"
)

// RequestKinds lists all request kinds.
var RequestKinds = []RequestKind{
	RequestKindDescription,
	RequestKindInfo,
	RequestKindSummaryTile,
	RequestKindSlotTile,
	RequestKindSlotMetaTile,
}

// DataSource provides trace data synchronously.
type DataSource interface {
	// FetchDescription returns where the trace was loaded from.
	FetchDescription(ctx context.Context) (api.DataSourceDescription, error)
	// FetchInfo returns the shape and bounds of the trace.
	FetchInfo(ctx context.Context) (api.DataSourceInfo, error)
	// FetchSummaryTile returns the utilization of a summary entry in a tile.
	FetchSummaryTile(ctx context.Context, entryID api.EntryID, tileID api.TileID, full bool) (api.SummaryTile, error)
	// FetchSlotTile returns the items of a slot entry in a tile.
	FetchSlotTile(ctx context.Context, entryID api.EntryID, tileID api.TileID, full bool) (api.SlotTile, error)
	// FetchSlotMetaTile returns the item metadata of a slot entry in a tile.
	FetchSlotMetaTile(ctx context.Context, entryID api.EntryID, tileID api.TileID, full bool) (api.SlotMetaTile, error)
}

// DeferredDataSource provides trace data through non-blocking requests that
// are drained later. The full flag is passed through to the transport.
type DeferredDataSource interface {
	FetchDescription()
	GetDescriptions() []api.DataSourceDescription

	FetchInfo()
	GetInfos() []api.DataSourceInfo

	FetchSummaryTile(entryID api.EntryID, tileID api.TileID, full bool)
	GetSummaryTiles() []api.SummaryTile

	FetchSlotTile(entryID api.EntryID, tileID api.TileID, full bool)
	GetSlotTiles() []api.SlotTile

	FetchSlotMetaTile(entryID api.EntryID, tileID api.TileID, full bool)
	GetSlotMetaTiles() []api.SlotMetaTile
}

// FailureReporter is implemented by data sources that can tell which
// requests failed. Failed requests never complete.
type FailureReporter interface {
	FailedRequests(kind RequestKind) uint64
}

// Wrapper runs each request against a synchronous DataSource at fetch time
// and keeps the result until it is drained.
type Wrapper struct {
	ctx        context.Context
	dataSource DataSource
	logger     logr.Logger

	descriptions  []api.DataSourceDescription
	infos         []api.DataSourceInfo
	summaryTiles  []api.SummaryTile
	slotTiles     []api.SlotTile
	slotMetaTiles []api.SlotMetaTile

	failed       uint64
	failedByKind map[RequestKind]uint64
}

var _ DeferredDataSource = &Wrapper{}
var _ FailureReporter = &Wrapper{}

// NewWrapper returns a DeferredDataSource backed by dataSource.
func NewWrapper(ctx context.Context, logger logr.Logger, dataSource DataSource) *Wrapper {
	return &Wrapper{
		ctx:        ctx,
		dataSource:   dataSource,
		logger:       logger.WithValues("area", "deferred"),
		failedByKind: map[RequestKind]uint64{},
	}
}

// Failed returns the number of requests that returned an error. These
// requests never complete.
func (wrapper *Wrapper) Failed() uint64 {
	return wrapper.failed
}

// FailedRequests implements FailureReporter.
func (wrapper *Wrapper) FailedRequests(kind RequestKind) uint64 {
	return wrapper.failedByKind[kind]
}

func (wrapper *Wrapper) recordFailure(err error, kind RequestKind, keysAndValues ...interface{}) {
	wrapper.failed++
	wrapper.failedByKind[kind]++
	wrapper.logger.Error(err, "Error fetching trace data", append([]interface{}{"kind", kind}, keysAndValues...)...)
}

// FetchDescription implements DeferredDataSource.
func (wrapper *Wrapper) FetchDescription() {
	description, err := wrapper.dataSource.FetchDescription(wrapper.ctx)
	if err != nil {
		wrapper.recordFailure(err, RequestKindDescription)
		return
	}
	wrapper.descriptions = append(wrapper.descriptions, description)
}

// GetDescriptions implements DeferredDataSource.
func (wrapper *Wrapper) GetDescriptions() []api.DataSourceDescription {
	result := wrapper.descriptions
	wrapper.descriptions = nil
	return result
}

// FetchInfo implements DeferredDataSource.
func (wrapper *Wrapper) FetchInfo() {
	info, err := wrapper.dataSource.FetchInfo(wrapper.ctx)
	if err != nil {
		wrapper.recordFailure(err, RequestKindInfo)
		return
	}
	wrapper.infos = append(wrapper.infos, info)
}

// GetInfos implements DeferredDataSource.
func (wrapper *Wrapper) GetInfos() []api.DataSourceInfo {
	result := wrapper.infos
	wrapper.infos = nil
	return result
}

// FetchSummaryTile implements DeferredDataSource.
func (wrapper *Wrapper) FetchSummaryTile(entryID api.EntryID, tileID api.TileID, full bool) {
	tile, err := wrapper.dataSource.FetchSummaryTile(wrapper.ctx, entryID, tileID, full)
	if err != nil {
		wrapper.recordFailure(err, RequestKindSummaryTile, "entryID", entryID.String(), "tileID", tileID.String())
		return
	}
	wrapper.summaryTiles = append(wrapper.summaryTiles, tile)
}

// GetSummaryTiles implements DeferredDataSource.
func (wrapper *Wrapper) GetSummaryTiles() []api.SummaryTile {
	result := wrapper.summaryTiles
	wrapper.summaryTiles = nil
	return result
}

// FetchSlotTile implements DeferredDataSource.
func (wrapper *Wrapper) FetchSlotTile(entryID api.EntryID, tileID api.TileID, full bool) {
	tile, err := wrapper.dataSource.FetchSlotTile(wrapper.ctx, entryID, tileID, full)
	if err != nil {
		wrapper.recordFailure(err, RequestKindSlotTile, "entryID", entryID.String(), "tileID", tileID.String())
		return
	}
	wrapper.slotTiles = append(wrapper.slotTiles, tile)
}

// GetSlotTiles implements DeferredDataSource.
func (wrapper *Wrapper) GetSlotTiles() []api.SlotTile {
	result := wrapper.slotTiles
	wrapper.slotTiles = nil
	return result
}

// FetchSlotMetaTile implements DeferredDataSource.
func (wrapper *Wrapper) FetchSlotMetaTile(entryID api.EntryID, tileID api.TileID, full bool) {
	tile, err := wrapper.dataSource.FetchSlotMetaTile(wrapper.ctx, entryID, tileID, full)
	if err != nil {
		wrapper.recordFailure(err, RequestKindSlotMetaTile, "entryID", entryID.String(), "tileID", tileID.String())
		return
	}
	wrapper.slotMetaTiles = append(wrapper.slotMetaTiles, tile)
}

// GetSlotMetaTiles implements DeferredDataSource.
func (wrapper *Wrapper) GetSlotMetaTiles() []api.SlotMetaTile {
	result := wrapper.slotMetaTiles
	wrapper.slotMetaTiles = nil
	return result
}
