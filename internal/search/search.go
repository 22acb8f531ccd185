// search.go
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

// Package search keeps an incremental index of the items that match a
// substring query.
//
// Results only grow while the query, the search field and the view stay the
// same: tiles are indexed once, in whatever order they arrive. Any change
// that could make an existing result stale clears the whole index.
package search

import (
	"slices"
	"strings"

	"github.com/apple/foundationdb/fdbprofviewer/api"
)

// MaxSearchResults caps the number of distinct items in the result set.
const MaxSearchResults = 100_000

// CacheItem is what is remembered about a matching item to list it and
// scroll to it.
type CacheItem struct {
	UID      api.ItemUID
	Title    string
	Interval api.Interval
	// Row is the row of the item counted from the top of its slot.
	Row uint64
}

// Result is a matching item together with its location.
type Result struct {
	EntryID api.EntryID
	TileID  api.TileID
	CacheItem
}

type entryCache struct {
	entryID api.EntryID
	tiles   map[api.TileID]map[api.ItemUID]CacheItem
}

// EntryTree groups result entries by node, kind and slot index.
type EntryTree map[uint64]map[uint64]map[uint64]bool

// State is the search index of one window. It is not safe for concurrent
// use.
type State struct {
	titleField api.FieldID

	// Query is the substring to search for.
	Query string
	// SearchField is the field the query is matched against.
	SearchField api.FieldID
	// IncludeCollapsedEntries also searches entries that are collapsed or
	// hidden by filters.
	IncludeCollapsedEntries bool

	lastQuery                   string
	lastSearchField             api.FieldID
	lastIncludeCollapsedEntries bool
	hasLastView                 bool
	lastView                    api.Interval

	resultSet   map[api.ItemUID]bool
	resultCache map[string]*entryCache
	entryTree   EntryTree
}

// NewState returns an empty index that searches item titles, where
// titleField is the ID of the synthetic title field.
func NewState(titleField api.FieldID) *State {
	return &State{
		titleField:      titleField,
		SearchField:     titleField,
		lastSearchField: titleField,
		resultSet:       map[api.ItemUID]bool{},
		resultCache:     map[string]*entryCache{},
		entryTree:       EntryTree{},
	}
}

// TitleField returns the ID of the synthetic title field.
func (state *State) TitleField() api.FieldID {
	return state.titleField
}

// Clear drops every result.
func (state *State) Clear() {
	state.resultSet = map[api.ItemUID]bool{}
	state.resultCache = map[string]*entryCache{}
	state.entryTree = EntryTree{}
}

// EnsureValidCache clears the index when the query or field changed, when
// collapsed entries stopped being included, or when the view moved. It
// returns true if the index was cleared.
func (state *State) EnsureValidCache(view api.Interval) bool {
	invalidate := false

	if state.Query != state.lastQuery {
		invalidate = true
		state.lastQuery = state.Query
	}

	if state.SearchField != state.lastSearchField {
		invalidate = true
		state.lastSearchField = state.SearchField
	}

	// Including more entries only adds results, so only the transition to
	// excluding them invalidates.
	if state.IncludeCollapsedEntries != state.lastIncludeCollapsedEntries {
		if !state.IncludeCollapsedEntries {
			invalidate = true
		}
		state.lastIncludeCollapsedEntries = state.IncludeCollapsedEntries
	}

	if !state.hasLastView || state.lastView != view {
		invalidate = true
		state.hasLastView = true
		state.lastView = view
	}

	if invalidate {
		state.Clear()
	}
	return invalidate
}

func (state *State) isStringMatch(s string) bool {
	return strings.Contains(s, state.Query)
}

func (state *State) isFieldMatch(field api.Field) bool {
	switch field.Kind {
	case api.FieldKindString:
		return state.isStringMatch(field.String)
	case api.FieldKindItemLink:
		return field.ItemLink != nil && state.isStringMatch(field.ItemLink.Title)
	case api.FieldKindVec:
		for _, element := range field.Vec {
			if state.isFieldMatch(element) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// IsMatch checks the configured field of item against the query.
func (state *State) IsMatch(item api.ItemMeta) bool {
	if state.SearchField == state.titleField {
		return state.isStringMatch(item.Title)
	}

	value, ok := item.Field(state.SearchField)
	if !ok {
		return false
	}
	return state.isFieldMatch(value)
}

func (state *State) full() bool {
	return len(state.resultSet) >= MaxSearchResults
}

// Truncated reports whether the result cap was reached.
func (state *State) Truncated() bool {
	return state.full()
}

// StartEntry prepares the index for the tiles of an entry. It returns false
// once the result cap is reached.
func (state *State) StartEntry(entryID api.EntryID) bool {
	if state.full() {
		return false
	}

	key := entryID.Key()
	if _, ok := state.resultCache[key]; !ok {
		state.resultCache[key] = &entryCache{
			entryID: entryID,
			tiles:   map[api.TileID]map[api.ItemUID]CacheItem{},
		}
	}

	// Tiles arrive asynchronously, so callers always have to look at them.
	return true
}

// StartTile prepares the index for a tile of an entry that was started with
// StartEntry. It returns false when the tile was already indexed or the
// result cap is reached.
func (state *State) StartTile(entryID api.EntryID, tileID api.TileID) bool {
	if state.full() {
		return false
	}

	cache := state.mustEntry(entryID)
	if _, ok := cache.tiles[tileID]; ok {
		return false
	}
	cache.tiles[tileID] = map[api.ItemUID]CacheItem{}
	return true
}

// Insert records a matching item of a tile that was started with StartTile.
// Items already in the result set are ignored.
func (state *State) Insert(entryID api.EntryID, tileID api.TileID, row uint64, item api.ItemMeta) {
	if state.full() || state.resultSet[item.UID] {
		return
	}

	bucket, ok := state.mustEntry(entryID).tiles[tileID]
	if !ok {
		panic("search insert into a tile that was not started")
	}

	state.resultSet[item.UID] = true
	bucket[item.UID] = CacheItem{
		UID:      item.UID,
		Title:    item.Title,
		Interval: item.OriginalInterval,
		Row:      row,
	}
}

func (state *State) mustEntry(entryID api.EntryID) *entryCache {
	cache, ok := state.resultCache[entryID.Key()]
	if !ok {
		panic("search tile for an entry that was not started")
	}
	return cache
}

// Len returns the number of distinct matching items.
func (state *State) Len() int {
	return len(state.resultSet)
}

// Contains checks if the item is a result.
func (state *State) Contains(uid api.ItemUID) bool {
	return state.resultSet[uid]
}

// sortedEntries returns the entry caches in entry order.
func (state *State) sortedEntries() []*entryCache {
	keys := make([]string, 0, len(state.resultCache))
	for key := range state.resultCache {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	entries := make([]*entryCache, len(keys))
	for i, key := range keys {
		entries[i] = state.resultCache[key]
	}
	return entries
}

// Results returns every result ordered by entry, tile and item.
func (state *State) Results() []Result {
	results := make([]Result, 0, len(state.resultSet))
	for _, cache := range state.sortedEntries() {
		tileIDs := make([]api.TileID, 0, len(cache.tiles))
		for tileID := range cache.tiles {
			tileIDs = append(tileIDs, tileID)
		}
		slices.SortFunc(tileIDs, api.TileID.Compare)

		for _, tileID := range tileIDs {
			bucket := cache.tiles[tileID]
			uids := make([]api.ItemUID, 0, len(bucket))
			for uid := range bucket {
				uids = append(uids, uid)
			}
			slices.Sort(uids)
			for _, uid := range uids {
				results = append(results, Result{EntryID: cache.entryID, TileID: tileID, CacheItem: bucket[uid]})
			}
		}
	}
	return results
}

// BuildEntryTree groups the entries with at least one result by the first
// three levels of their IDs.
func (state *State) BuildEntryTree() EntryTree {
	for _, cache := range state.resultCache {
		size := 0
		for _, bucket := range cache.tiles {
			size += len(bucket)
		}
		if size == 0 {
			continue
		}

		node, nodeOK := cache.entryID.SlotIndex(0)
		kind, kindOK := cache.entryID.SlotIndex(1)
		slot, slotOK := cache.entryID.SlotIndex(2)
		if !nodeOK || !kindOK || !slotOK {
			panic("search result for an entry that is not a slot: " + cache.entryID.String())
		}

		kinds, ok := state.entryTree[node]
		if !ok {
			kinds = map[uint64]map[uint64]bool{}
			state.entryTree[node] = kinds
		}
		slots, ok := kinds[kind]
		if !ok {
			slots = map[uint64]bool{}
			kinds[kind] = slots
		}
		slots[slot] = true
	}

	return state.entryTree
}

// EntryTree returns the grouping built by the last BuildEntryTree call.
func (state *State) EntryTree() EntryTree {
	return state.entryTree
}
