// store.go
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

// Package tracestore keeps an indexed trace in a pebble database and serves
// tiles from it.
//
// Every key is a packed tuple. Items are stored under
// ("item", entry path, start, uid), so the items of a slot that overlap a
// tile are a single range scan. Utilization samples of a summary are stored
// under ("util", entry path, time).
package tracestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/tuple"
	"github.com/cockroachdb/pebble"
	"github.com/go-logr/logr"
)

const (
	metaSubspace = "meta"
	slotSubspace = "slot"
	itemSubspace = "item"
	utilSubspace = "util"
)

// ErrUnknownEntry is returned for tiles of entries the trace does not have.
var ErrUnknownEntry = errors.New("unknown entry")

// storeMeta is the record that describes the whole trace.
type storeMeta struct {
	Source string             `json:"source"`
	Info   api.DataSourceInfo `json:"info"`
}

// slotMeta is the per slot record used to bound item scans.
type slotMeta struct {
	Rows        uint64 `json:"rows"`
	MaxDuration int64  `json:"maxDuration"`
	Items       int    `json:"items"`
}

// storedItem is the value of an item key.
type storedItem struct {
	UID      api.ItemUID      `json:"uid"`
	Interval api.Interval     `json:"interval"`
	Row      uint64           `json:"row"`
	Color    api.Color        `json:"color"`
	Title    string           `json:"title"`
	Fields   []api.FieldEntry `json:"fields,omitempty"`
}

func metaKey() []byte {
	return tuple.Tuple{metaSubspace}.Pack()
}

func slotKey(entryID api.EntryID) []byte {
	return tuple.Tuple{slotSubspace, entryID.Tuple()}.Pack()
}

func itemKey(entryID api.EntryID, start api.Timestamp, uid api.ItemUID) []byte {
	return tuple.Tuple{itemSubspace, entryID.Tuple(), int64(start), int64(uid)}.Pack()
}

func itemBound(entryID api.EntryID, start api.Timestamp) []byte {
	return tuple.Tuple{itemSubspace, entryID.Tuple(), int64(start)}.Pack()
}

func utilKey(entryID api.EntryID, time api.Timestamp) []byte {
	return tuple.Tuple{utilSubspace, entryID.Tuple(), int64(time)}.Pack()
}

// Store serves the tiles of one indexed trace. It is safe for concurrent
// use.
type Store struct {
	db     *pebble.DB
	logger logr.Logger
	meta   storeMeta
	slots  map[string]slotMeta
}

var _ deferred.DataSource = &Store{}

// DefaultOptions returns the pebble options used for trace stores on disk.
func DefaultOptions() *pebble.Options {
	options := &pebble.Options{}
	for i := 0; i < 7; i++ {
		options.Levels = append(options.Levels, pebble.LevelOptions{Compression: pebble.ZstdCompression})
	}
	return options
}

// pebbleLogger forwards the messages of pebble to a logr.Logger.
type pebbleLogger struct {
	logger logr.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.V(1).Info(fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(nil, fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(nil, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func openDB(logger logr.Logger, dir string, options *pebble.Options) (*pebble.DB, error) {
	if options == nil {
		options = DefaultOptions()
	}
	if options.Logger == nil {
		options.Logger = pebbleLogger{logger: logger.WithValues("component", "pebble")}
	}

	db, err := pebble.Open(dir, options)
	if err != nil {
		return nil, fmt.Errorf("could not open trace store %s: %w", dir, err)
	}
	return db, nil
}

// Open opens a store that was written by Create. A nil options uses
// DefaultOptions.
func Open(logger logr.Logger, dir string, options *pebble.Options) (*Store, error) {
	db, err := openDB(logger, dir, options)
	if err != nil {
		return nil, err
	}

	store, err := load(logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func load(logger logr.Logger, db *pebble.DB) (*Store, error) {
	store := &Store{
		db:     db,
		logger: logger.WithValues("area", "tracestore"),
		slots:  map[string]slotMeta{},
	}

	value, closer, err := db.Get(metaKey())
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("trace store has no trace, run the indexer first")
		}
		return nil, err
	}
	err = json.Unmarshal(value, &store.meta)
	_ = closer.Close()
	if err != nil {
		return nil, fmt.Errorf("could not decode trace metadata: %w", err)
	}

	lower, upper := tuple.Tuple{slotSubspace}.Range()
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key, err := tuple.Unpack(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("could not decode slot key: %w", err)
		}
		entryID, err := entryIDFromElement(key[1])
		if err != nil {
			return nil, err
		}

		var meta slotMeta
		err = json.Unmarshal(iter.Value(), &meta)
		if err != nil {
			return nil, fmt.Errorf("could not decode slot %s: %w", entryID, err)
		}
		store.slots[entryID.Key()] = meta
	}

	store.logger.Info("Opened trace store", "source", store.meta.Source, "slots", len(store.slots), "interval", store.meta.Info.Interval.String())
	return store, nil
}

func entryIDFromElement(element tuple.Element) (api.EntryID, error) {
	nested, ok := element.(tuple.Tuple)
	if !ok {
		return api.EntryID{}, fmt.Errorf("expected entry path, got %v", element)
	}

	path := make([]int64, 0, len(nested))
	for _, value := range nested {
		index, ok := value.(int64)
		if !ok {
			return api.EntryID{}, fmt.Errorf("entry path contains %v", value)
		}
		path = append(path, index)
	}
	return api.NewEntryID(path...), nil
}

// Close closes the database.
func (store *Store) Close() error {
	return store.db.Close()
}

// Info returns the description of the trace without a round trip.
func (store *Store) Info() api.DataSourceInfo {
	return store.meta.Info
}

// FetchDescription implements deferred.DataSource.
func (store *Store) FetchDescription(ctx context.Context) (api.DataSourceDescription, error) {
	if err := ctx.Err(); err != nil {
		return api.DataSourceDescription{}, err
	}
	return api.DataSourceDescription{SourceLocator: []string{store.meta.Source}}, nil
}

// FetchInfo implements deferred.DataSource.
func (store *Store) FetchInfo(ctx context.Context) (api.DataSourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return api.DataSourceInfo{}, err
	}
	return store.meta.Info, nil
}

// FetchSummaryTile implements deferred.DataSource. Samples at both ends of
// the tile are included. Unless a sample falls on the start of the tile, the
// last sample before it is moved to the start.
func (store *Store) FetchSummaryTile(ctx context.Context, entryID api.EntryID, tileID api.TileID, _ bool) (api.SummaryTile, error) {
	if err := ctx.Err(); err != nil {
		return api.SummaryTile{}, err
	}
	last, ok := entryID.LastIndex()
	if !ok || !last.Summary {
		return api.SummaryTile{}, fmt.Errorf("%w %s: not a summary", ErrUnknownEntry, entryID)
	}

	lower, upper := tuple.Tuple{utilSubspace, entryID.Tuple()}.Range()
	iter, err := store.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return api.SummaryTile{}, err
	}
	defer iter.Close()

	start := utilKey(entryID, tileID.Start)
	stop := utilKey(entryID, tileID.Stop)

	var points []api.UtilPoint
	for valid := iter.SeekGE(start); valid; valid = iter.Next() {
		if bytes.Compare(iter.Key(), stop) > 0 {
			break
		}
		point, err := decodeUtil(iter.Value())
		if err != nil {
			return api.SummaryTile{}, err
		}
		points = append(points, point)
	}

	if (len(points) == 0 || points[0].Time != tileID.Start) && iter.SeekLT(start) {
		point, err := decodeUtil(iter.Value())
		if err != nil {
			return api.SummaryTile{}, err
		}
		point.Time = tileID.Start
		points = append([]api.UtilPoint{point}, points...)
	}

	return api.SummaryTile{EntryID: entryID, TileID: tileID, Data: api.SummaryTileData{Utilization: points}}, nil
}

func decodeUtil(value []byte) (api.UtilPoint, error) {
	var point api.UtilPoint
	err := json.Unmarshal(value, &point)
	if err != nil {
		return point, fmt.Errorf("could not decode utilization: %w", err)
	}
	return point, nil
}

// scanItems calls visit for every item of a slot that overlaps the tile, in
// start order.
func (store *Store) scanItems(entryID api.EntryID, tileID api.TileID, visit func(item storedItem)) (slotMeta, error) {
	meta, ok := store.slots[entryID.Key()]
	if !ok {
		return meta, fmt.Errorf("%w %s", ErrUnknownEntry, entryID)
	}

	// Items that start this long before the tile may still reach into it.
	lower := itemBound(entryID, tileID.Start-api.Timestamp(meta.MaxDuration))
	upper := itemBound(entryID, tileID.Stop+1)
	iter, err := store.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return meta, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var item storedItem
		err = json.Unmarshal(iter.Value(), &item)
		if err != nil {
			return meta, fmt.Errorf("could not decode item of %s: %w", entryID, err)
		}
		if item.Interval.Overlaps(tileID.Interval) {
			visit(item)
		}
	}
	return meta, iter.Error()
}

// FetchSlotTile implements deferred.DataSource. Rows of the tile are the
// rows of the slot; every overlapping item is returned.
func (store *Store) FetchSlotTile(ctx context.Context, entryID api.EntryID, tileID api.TileID, _ bool) (api.SlotTile, error) {
	if err := ctx.Err(); err != nil {
		return api.SlotTile{}, err
	}

	var items [][]api.Item
	meta, err := store.scanItems(entryID, tileID, func(item storedItem) {
		for uint64(len(items)) <= item.Row {
			items = append(items, nil)
		}
		items[item.Row] = append(items[item.Row], api.Item{UID: item.UID, Interval: item.Interval, Color: item.Color})
	})
	if err != nil {
		return api.SlotTile{}, err
	}
	for uint64(len(items)) < meta.Rows {
		items = append(items, nil)
	}

	return api.SlotTile{EntryID: entryID, TileID: tileID, Data: api.SlotTileData{Items: items}}, nil
}

// FetchSlotMetaTile implements deferred.DataSource. Items are laid out like
// in FetchSlotTile.
func (store *Store) FetchSlotMetaTile(ctx context.Context, entryID api.EntryID, tileID api.TileID, _ bool) (api.SlotMetaTile, error) {
	if err := ctx.Err(); err != nil {
		return api.SlotMetaTile{}, err
	}

	var items [][]api.ItemMeta
	meta, err := store.scanItems(entryID, tileID, func(item storedItem) {
		for uint64(len(items)) <= item.Row {
			items = append(items, nil)
		}
		items[item.Row] = append(items[item.Row], api.ItemMeta{
			UID:              item.UID,
			OriginalInterval: item.Interval,
			Title:            item.Title,
			Fields:           item.Fields,
		})
	})
	if err != nil {
		return api.SlotMetaTile{}, err
	}
	for uint64(len(items)) < meta.Rows {
		items = append(items, nil)
	}

	return api.SlotMetaTile{EntryID: entryID, TileID: tileID, Data: api.SlotMetaTileData{Items: items}}, nil
}
