// index.go
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

package tracestore

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/cockroachdb/pebble"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// indexedSlot is a slot with rows assigned to its items.
type indexedSlot struct {
	entryID api.EntryID
	items   []storedItem
	rows    uint64
}

// indexedSummary lists the slots a summary averages over.
type indexedSummary struct {
	entryID api.EntryID
	slots   []*indexedSlot
}

// assignRows sorts the items by start and places every item in the first
// row that is free at its start.
func assignRows(items []storedItem) uint64 {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Interval.Start != items[j].Interval.Start {
			return items[i].Interval.Start < items[j].Interval.Start
		}
		return items[i].Interval.Stop < items[j].Interval.Stop
	})

	var rowEnds []api.Timestamp
	for i := range items {
		row := -1
		for candidate, end := range rowEnds {
			if end <= items[i].Interval.Start {
				row = candidate
				break
			}
		}
		if row < 0 {
			row = len(rowEnds)
			rowEnds = append(rowEnds, 0)
		}
		rowEnds[row] = items[i].Interval.Stop
		items[i].Row = uint64(row)
	}
	return uint64(len(rowEnds))
}

// utilization returns the fraction of busy slots after every change.
func utilization(slots []*indexedSlot) []api.UtilPoint {
	if len(slots) == 0 {
		return nil
	}

	type event struct {
		time  api.Timestamp
		slot  int
		delta int
	}
	var events []event
	for index, slot := range slots {
		for _, item := range slot.items {
			if item.Interval.Duration() == 0 {
				continue
			}
			events = append(events, event{item.Interval.Start, index, 1}, event{item.Interval.Stop, index, -1})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].time < events[j].time })

	active := make([]int, len(slots))
	busy := 0
	var points []api.UtilPoint
	for i := 0; i < len(events); {
		time := events[i].time
		for ; i < len(events) && events[i].time == time; i++ {
			before := active[events[i].slot] > 0
			active[events[i].slot] += events[i].delta
			after := active[events[i].slot] > 0
			if !before && after {
				busy++
			} else if before && !after {
				busy--
			}
		}
		points = append(points, api.UtilPoint{Time: time, Util: float32(busy) / float32(len(slots))})
	}
	return points
}

// tileSet cuts the interval into levels of 4^n tiles.
func tileSet(interval api.Interval, levels int) api.TileSet {
	result := api.TileSet{}
	for level := 0; level < levels; level++ {
		count := int64(1) << (2 * level)
		width := (interval.Duration() + count - 1) / count
		if width < 1 {
			width = 1
		}

		var tiles []api.TileID
		for start := interval.Start; start < interval.Stop || len(tiles) == 0; start += api.Timestamp(width) {
			stop := min(start+api.Timestamp(width), interval.Stop)
			tiles = append(tiles, api.NewTileID(api.NewInterval(start, stop)))
			if stop <= start {
				break
			}
		}
		result.Tiles = append(result.Tiles, tiles)
	}
	return result
}

// prepare converts the trace to the entry tree and indexed slots.
func prepare(trace *Trace) (api.DataSourceInfo, []*indexedSlot, []indexedSummary, error) {
	schema := api.NewFieldSchema()
	for _, name := range trace.fieldNames() {
		schema.Insert(name, true)
	}

	var slots []*indexedSlot
	var summaries []indexedSummary
	uid := api.ItemUID(0)

	nodes := make([]api.EntryInfo, 0, len(trace.Nodes))
	for nodeIndex, node := range trace.Nodes {
		nodeID := api.RootEntryID().Child(uint64(nodeIndex))
		var nodeSlots []*indexedSlot

		kinds := make([]api.EntryInfo, 0, len(node.Kinds))
		for kindIndex, kind := range node.Kinds {
			kindID := nodeID.Child(uint64(kindIndex))
			var kindSlots []*indexedSlot

			slotInfos := make([]api.EntryInfo, 0, len(kind.Slots))
			for slotIndex, timeline := range kind.Slots {
				slot := &indexedSlot{entryID: kindID.Child(uint64(slotIndex))}
				for _, item := range timeline.Items {
					stored := storedItem{
						UID:      uid,
						Interval: api.NewInterval(api.Timestamp(item.Start), api.Timestamp(item.Stop)),
						Color:    itemColor(item),
						Title:    item.Title,
					}
					uid++

					names := make([]string, 0, len(item.Fields))
					for name := range item.Fields {
						names = append(names, name)
					}
					sort.Strings(names)
					for _, name := range names {
						field, err := convertField(item.Fields[name])
						if err != nil {
							return api.DataSourceInfo{}, nil, nil, fmt.Errorf("item %q field %q: %w", item.Title, name, err)
						}
						id, _ := schema.ID(name)
						stored.Fields = append(stored.Fields, api.FieldEntry{ID: id, Value: field})
					}
					slot.items = append(slot.items, stored)
				}
				slot.rows = assignRows(slot.items)

				longName := timeline.LongName
				if longName == "" {
					longName = fmt.Sprintf("%s %s %s", node.Name, kind.Name, timeline.Name)
				}
				slotInfos = append(slotInfos, api.NewSlotInfo(timeline.Name, longName, slot.rows))
				kindSlots = append(kindSlots, slot)
			}

			summaries = append(summaries, indexedSummary{entryID: kindID.Summary(), slots: kindSlots})
			kinds = append(kinds, api.NewPanelInfo(kind.Name, fmt.Sprintf("%s %s", node.Name, kind.Name), api.NewSummaryInfo(kindColor(kind)), slotInfos...))
			nodeSlots = append(nodeSlots, kindSlots...)
		}

		summaries = append(summaries, indexedSummary{entryID: nodeID.Summary(), slots: nodeSlots})
		longName := node.LongName
		if longName == "" {
			longName = node.Name
		}
		nodes = append(nodes, api.NewPanelInfo(node.Name, longName, api.NewSummaryInfo(titleColor(node.Name)), kinds...))
		slots = append(slots, nodeSlots...)
	}

	interval := trace.Interval()
	info := api.DataSourceInfo{
		EntryInfo:   api.NewPanelInfo(trace.Name, trace.Name, nil, nodes...),
		Interval:    interval,
		TileSet:     tileSet(interval, trace.tileLevels()),
		FieldSchema: schema,
	}
	return info, slots, summaries, nil
}

func writeSlot(db *pebble.DB, slot *indexedSlot) error {
	batch := db.NewBatch()
	defer batch.Close()

	meta := slotMeta{Rows: slot.rows, Items: len(slot.items)}
	for _, item := range slot.items {
		meta.MaxDuration = max(meta.MaxDuration, item.Interval.Duration())

		value, err := json.Marshal(item)
		if err != nil {
			return err
		}
		err = batch.Set(itemKey(slot.entryID, item.Interval.Start, item.UID), value, nil)
		if err != nil {
			return err
		}
	}

	value, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	err = batch.Set(slotKey(slot.entryID), value, nil)
	if err != nil {
		return err
	}

	return batch.Commit(pebble.Sync)
}

func writeSummary(db *pebble.DB, summary indexedSummary) error {
	batch := db.NewBatch()
	defer batch.Close()

	for _, point := range utilization(summary.slots) {
		value, err := json.Marshal(point)
		if err != nil {
			return err
		}
		err = batch.Set(utilKey(summary.entryID, point.Time), value, nil)
		if err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// Create indexes a trace into the store at dir, replacing any trace indexed
// there before. source is reported as the location of the trace. A nil
// options uses DefaultOptions.
func Create(ctx context.Context, logger logr.Logger, dir string, options *pebble.Options, trace *Trace, source string) (*Store, error) {
	err := trace.Validate()
	if err != nil {
		return nil, err
	}

	info, slots, summaries, err := prepare(trace)
	if err != nil {
		return nil, err
	}

	db, err := openDB(logger, dir, options)
	if err != nil {
		return nil, err
	}

	err = index(ctx, logger, db, info, slots, summaries, source)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store, err := load(logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func index(ctx context.Context, logger logr.Logger, db *pebble.DB, info api.DataSourceInfo, slots []*indexedSlot, summaries []indexedSummary, source string) error {
	err := db.DeleteRange([]byte{0x00}, []byte{0xff}, pebble.Sync)
	if err != nil {
		return fmt.Errorf("could not clear trace store: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for _, slot := range slots {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := writeSlot(db, slot)
			if err != nil {
				return fmt.Errorf("could not index slot %s: %w", slot.entryID, err)
			}
			return nil
		})
	}

	for _, summary := range summaries {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := writeSummary(db, summary)
			if err != nil {
				return fmt.Errorf("could not index summary %s: %w", summary.entryID, err)
			}
			return nil
		})
	}

	err = group.Wait()
	if err != nil {
		return err
	}

	// The metadata goes last so that an interrupted index is never opened.
	value, err := json.Marshal(storeMeta{Source: source, Info: info})
	if err != nil {
		return err
	}
	err = db.Set(metaKey(), value, pebble.Sync)
	if err != nil {
		return err
	}

	logger.Info("Indexed trace", "source", source, "slots", len(slots), "summaries", len(summaries), "interval", info.Interval.String())
	return nil
}
