// entries.go
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

package viewer

import (
	"slices"

	"github.com/apple/foundationdb/fdbprofviewer/api"
)

// unexpandedRows is the height of a collapsed slot.
const unexpandedRows = 2

// entry is a node of the window arena.
type entry interface {
	EntryID() api.EntryID
	Kind() api.EntryKind
	Label() string
}

// Panel groups a summary and a list of children.
type Panel struct {
	entryID   api.EntryID
	ShortName string
	LongName  string
	Expanded  bool

	summary  *Summary
	children []entry
}

// EntryID returns the ID of the panel.
func (panel *Panel) EntryID() api.EntryID { return panel.entryID }

// Kind returns api.EntryKindPanel.
func (panel *Panel) Kind() api.EntryKind { return api.EntryKindPanel }

// Label returns the short name of the panel.
func (panel *Panel) Label() string { return panel.ShortName }

// Summary returns the summary of the panel, if it has one.
func (panel *Panel) Summary() *Summary { return panel.summary }

// Expandable checks if the panel has children to show.
func (panel *Panel) Expandable() bool { return len(panel.children) > 0 }

// Slot is a leaf timeline. Tile maps hold nil for tiles that were requested
// but have not arrived yet.
type Slot struct {
	entryID   api.EntryID
	ShortName string
	LongName  string
	MaxRows   uint64
	Expanded  bool

	tileIDs   []api.TileID
	tiles     map[api.TileID]*api.SlotTileData
	metaTiles map[api.TileID]*api.SlotMetaTileData

	hasLastView bool
	lastView    api.Interval

	// Item details are requested by the search independently of drawing, so
	// they follow their own view.
	hasLastMetaView bool
	lastMetaView    api.Interval
}

// EntryID returns the ID of the slot.
func (slot *Slot) EntryID() api.EntryID { return slot.entryID }

// Kind returns api.EntryKindSlot.
func (slot *Slot) Kind() api.EntryKind { return api.EntryKindSlot }

// Label returns the short name of the slot.
func (slot *Slot) Label() string { return slot.ShortName }

// Rows returns the number of rows the slot occupies.
func (slot *Slot) Rows() uint64 {
	if slot.Expanded {
		return max(slot.MaxRows, unexpandedRows)
	}
	return unexpandedRows
}

// TileIDs returns the requested tiles in request order.
func (slot *Slot) TileIDs() []api.TileID {
	return slices.Clone(slot.tileIDs)
}

// Tile returns the data of a tile. The second result is false when the tile
// was never requested; the data is nil until it arrives.
func (slot *Slot) Tile(tileID api.TileID) (*api.SlotTileData, bool) {
	data, ok := slot.tiles[tileID]
	return data, ok
}

// MetaTile returns the item details of a tile, with the same conventions as
// Tile.
func (slot *Slot) MetaTile(tileID api.TileID) (*api.SlotMetaTileData, bool) {
	data, ok := slot.metaTiles[tileID]
	return data, ok
}

func (slot *Slot) clear() {
	slot.tileIDs = nil
	slot.tiles = map[api.TileID]*api.SlotTileData{}
}

func (slot *Slot) clearMeta() {
	slot.metaTiles = map[api.TileID]*api.SlotMetaTileData{}
}

func (slot *Slot) inflate(config *Config, view api.Interval) {
	for _, tileID := range config.resolver.RequestTiles(view) {
		config.DataSource.FetchSlotTile(slot.entryID, tileID, false)
		slot.tileIDs = append(slot.tileIDs, tileID)
		slot.tiles[tileID] = nil
	}
}

// fetchMetaTile requests the item details of a tile once and returns them
// when they have arrived.
func (slot *Slot) fetchMetaTile(config *Config, tileID api.TileID) *api.SlotMetaTileData {
	data, ok := slot.metaTiles[tileID]
	if !ok {
		config.DataSource.FetchSlotMetaTile(slot.entryID, tileID, false)
		slot.metaTiles[tileID] = nil
	}
	return data
}

func (slot *Slot) inflateMeta(config *Config, view api.Interval) {
	if !slot.hasLastMetaView || slot.lastMetaView != view {
		slot.clearMeta()
	}
	slot.hasLastMetaView = true
	slot.lastMetaView = view

	for _, tileID := range config.resolver.RequestTiles(view) {
		slot.fetchMetaTile(config, tileID)
	}
}

func (slot *Slot) search(config *Config) {
	state := config.SearchState
	if !state.StartEntry(slot.entryID) {
		return
	}

	tileIDs := make([]api.TileID, 0, len(slot.metaTiles))
	for tileID, data := range slot.metaTiles {
		if data != nil {
			tileIDs = append(tileIDs, tileID)
		}
	}
	slices.SortFunc(tileIDs, api.TileID.Compare)

	for _, tileID := range tileIDs {
		if !state.StartTile(slot.entryID, tileID) {
			continue
		}

		data := slot.metaTiles[tileID]
		for row, items := range data.Items {
			// Rows count from the top of the slot.
			irow := uint64(len(data.Items) - row - 1)
			for _, item := range items {
				if state.IsMatch(item) {
					state.Insert(slot.entryID, tileID, irow, item)
				}
			}
		}
	}
}

// Summary is the utilization plot of a panel.
type Summary struct {
	entryID api.EntryID
	Color   api.Color

	tileIDs []api.TileID
	tiles   map[api.TileID]*api.SummaryTileData

	hasLastView bool
	lastView    api.Interval
}

// EntryID returns the ID of the summary.
func (summary *Summary) EntryID() api.EntryID { return summary.entryID }

// Kind returns api.EntryKindSummary.
func (summary *Summary) Kind() api.EntryKind { return api.EntryKindSummary }

// Label returns the fixed label of utilization plots.
func (summary *Summary) Label() string { return "avg" }

// TileIDs returns the requested tiles in request order.
func (summary *Summary) TileIDs() []api.TileID {
	return slices.Clone(summary.tileIDs)
}

// Tile returns the data of a tile, with the same conventions as Slot.Tile.
func (summary *Summary) Tile(tileID api.TileID) (*api.SummaryTileData, bool) {
	data, ok := summary.tiles[tileID]
	return data, ok
}

// Utilization concatenates the samples of the tiles that have arrived.
func (summary *Summary) Utilization() []api.UtilPoint {
	var points []api.UtilPoint
	for _, tileID := range summary.tileIDs {
		if data := summary.tiles[tileID]; data != nil {
			points = append(points, data.Utilization...)
		}
	}
	return points
}

func (summary *Summary) clear() {
	summary.tileIDs = nil
	summary.tiles = map[api.TileID]*api.SummaryTileData{}
}

func (summary *Summary) inflate(config *Config, view api.Interval) {
	for _, tileID := range config.resolver.RequestTiles(view) {
		config.DataSource.FetchSummaryTile(summary.entryID, tileID, false)
		summary.tileIDs = append(summary.tileIDs, tileID)
		summary.tiles[tileID] = nil
	}
}
