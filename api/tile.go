// tile.go
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
	"cmp"
	"fmt"
)

// Color is an RGBA color.
type Color [4]uint8

// ItemUID identifies an item across the whole trace.
type ItemUID uint64

// Item is the part of a trace item needed to draw it.
type Item struct {
	UID      ItemUID  `json:"item_uid"`
	Interval Interval `json:"interval"`
	Color    Color    `json:"color"`
}

// ItemMeta is the descriptive part of a trace item, used for tooltips and
// search.
type ItemMeta struct {
	UID ItemUID `json:"item_uid"`

	// OriginalInterval is the interval before it was clipped to the tile.
	OriginalInterval Interval `json:"original_interval"`

	Title  string       `json:"title"`
	Fields []FieldEntry `json:"fields"`
}

// Field returns the value of the field with the given ID.
func (item ItemMeta) Field(id FieldID) (Field, bool) {
	for _, entry := range item.Fields {
		if entry.ID == id {
			return entry.Value, true
		}
	}
	return Field{}, false
}

// UtilPoint is one sample of a utilization plot.
type UtilPoint struct {
	Time Timestamp `json:"time"`
	Util float32   `json:"util"`
}

// TileID identifies a tile by the interval it covers.
type TileID struct {
	Interval
}

// NewTileID returns the ID of the tile covering interval.
func NewTileID(interval Interval) TileID {
	return TileID{Interval: interval}
}

// Compare orders tiles by start, then by stop.
func (id TileID) Compare(other TileID) int {
	if c := cmp.Compare(id.Start, other.Start); c != 0 {
		return c
	}
	return cmp.Compare(id.Stop, other.Stop)
}

// String returns a human readable representation of the tile.
func (id TileID) String() string {
	return fmt.Sprintf("tile %d-%d", int64(id.Start), int64(id.Stop))
}

// TileSet lists the precomputed tiles of a trace, one list per level of
// detail. An empty tile set means tiles are computed on demand.
type TileSet struct {
	Tiles [][]TileID `json:"tiles"`
}

// SummaryTileData is the utilization plot of one tile.
type SummaryTileData struct {
	Utilization []UtilPoint `json:"utilization"`
}

// SummaryTile is the utilization plot of a summary entry within a tile.
type SummaryTile struct {
	EntryID EntryID         `json:"entry_id"`
	TileID  TileID          `json:"tile_id"`
	Data    SummaryTileData `json:"data"`
}

// SlotTileData holds the items of a slot, one list per row.
type SlotTileData struct {
	Items [][]Item `json:"items"`
}

// SlotTile holds the items of a slot entry within a tile.
type SlotTile struct {
	EntryID EntryID      `json:"entry_id"`
	TileID  TileID       `json:"tile_id"`
	Data    SlotTileData `json:"data"`
}

// SlotMetaTileData holds the item metadata of a slot, one list per row.
type SlotMetaTileData struct {
	Items [][]ItemMeta `json:"items"`
}

// SlotMetaTile holds the item metadata of a slot entry within a tile.
type SlotMetaTile struct {
	EntryID EntryID          `json:"entry_id"`
	TileID  TileID           `json:"tile_id"`
	Data    SlotMetaTileData `json:"data"`
}

// DataSourceInfo describes a trace: the shape of its entry tree, its overall
// time bounds, its precomputed tiles and the names of its item fields.
type DataSourceInfo struct {
	EntryInfo   EntryInfo    `json:"entry_info"`
	Interval    Interval     `json:"interval"`
	TileSet     TileSet      `json:"tile_set"`
	FieldSchema *FieldSchema `json:"field_schema"`
}

// DataSourceDescription identifies where a trace was loaded from.
type DataSourceDescription struct {
	SourceLocator []string `json:"source_locator"`
}

// TileRequest is the body of a tile request sent to a tile server.
type TileRequest struct {
	EntryID EntryID `json:"entry_id"`
	TileID  TileID  `json:"tile_id"`
	Full    bool    `json:"full"`
}
