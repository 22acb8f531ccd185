// window.go
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
	"fmt"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/go-logr/logr"
)

// Window shows one trace. Entries are built once from the entry info of the
// trace and are addressed by EntryID through the arena.
type Window struct {
	// Index is the position of the window in the viewer.
	Index uint64

	// Descriptions lists the source locators reported by the data source.
	Descriptions []api.DataSourceDescription

	root     *Panel
	entries  map[string]entry
	config   *Config
	logger   logr.Logger
	observer Observer
}

// NewWindow builds the entry tree of a trace.
func NewWindow(index uint64, dataSource *deferred.Counting, info api.DataSourceInfo, logger logr.Logger, observer Observer) (*Window, error) {
	if info.EntryInfo.Kind != api.EntryKindPanel {
		return nil, fmt.Errorf("trace root must be a panel, got %s", info.EntryInfo.Kind)
	}

	config, err := NewConfig(dataSource, info)
	if err != nil {
		return nil, err
	}

	if observer == nil {
		observer = noopObserver{}
	}

	window := &Window{
		Index:    index,
		entries:  map[string]entry{},
		config:   config,
		logger:   logger.WithValues("window", index),
		observer: observer,
	}
	window.root = window.newPanel(&info.EntryInfo, api.RootEntryID())

	return window, nil
}

func (window *Window) newPanel(info *api.EntryInfo, entryID api.EntryID) *Panel {
	panel := &Panel{
		entryID:   entryID,
		ShortName: info.ShortName,
		LongName:  info.LongName,
		Expanded:  entryID.Level() != 2,
	}
	window.entries[entryID.Key()] = panel

	if info.Summary != nil {
		summary := &Summary{entryID: entryID.Summary(), Color: info.Summary.Color}
		summary.clear()
		window.entries[summary.entryID.Key()] = summary
		panel.summary = summary
	}

	for i := range info.Slots {
		childInfo := &info.Slots[i]
		childID := entryID.Child(uint64(i))
		switch childInfo.Kind {
		case api.EntryKindPanel:
			panel.children = append(panel.children, window.newPanel(childInfo, childID))
		case api.EntryKindSlot:
			slot := &Slot{
				entryID:   childID,
				ShortName: childInfo.ShortName,
				LongName:  childInfo.LongName,
				MaxRows:   childInfo.MaxRows,
				Expanded:  true,
			}
			slot.clear()
			slot.clearMeta()
			window.entries[childID.Key()] = slot
			panel.children = append(panel.children, slot)
		default:
			panic(fmt.Sprintf("entry %s: %s cannot be a child of a panel", childID, childInfo.Kind))
		}
	}

	return panel
}

// Config returns the configuration of the window.
func (window *Window) Config() *Config {
	return window.config
}

// Root returns the root panel.
func (window *Window) Root() *Panel {
	return window.root
}

func (window *Window) find(entryID api.EntryID) (entry, bool) {
	found, ok := window.entries[entryID.Key()]
	return found, ok
}

// FindSlot returns the slot with the given ID. It returns false for unknown
// IDs and panics when the ID addresses an entry of another kind.
func (window *Window) FindSlot(entryID api.EntryID) (*Slot, bool) {
	found, ok := window.find(entryID)
	if !ok {
		return nil, false
	}
	slot, ok := found.(*Slot)
	if !ok {
		panic(fmt.Sprintf("entry %s is a %s, not a slot", entryID, found.Kind()))
	}
	return slot, true
}

// FindSummary returns the summary with the given ID. It returns false for
// unknown IDs and panics when the ID addresses an entry of another kind.
func (window *Window) FindSummary(entryID api.EntryID) (*Summary, bool) {
	found, ok := window.find(entryID)
	if !ok {
		return nil, false
	}
	summary, ok := found.(*Summary)
	if !ok {
		panic(fmt.Sprintf("entry %s is a %s, not a summary", entryID, found.Kind()))
	}
	return summary, true
}

// FindPanel returns the panel with the given ID, with the same conventions
// as FindSlot.
func (window *Window) FindPanel(entryID api.EntryID) (*Panel, bool) {
	found, ok := window.find(entryID)
	if !ok {
		return nil, false
	}
	panel, ok := found.(*Panel)
	if !ok {
		panic(fmt.Sprintf("entry %s is a %s, not a panel", entryID, found.Kind()))
	}
	return panel, true
}

// ExpandSlot expands a slot and every panel above it.
func (window *Window) ExpandSlot(entryID api.EntryID) {
	slot, ok := window.FindSlot(entryID)
	if !ok {
		panic(fmt.Sprintf("cannot expand unknown slot %s", entryID))
	}
	slot.Expanded = true

	path := entryID.Path()
	for level := len(path) - 1; level >= 0; level-- {
		panel, _ := window.FindPanel(api.NewEntryID(path[:level]...))
		panel.Expanded = true
	}
}

// ToggleExpanded flips the expansion of a panel or slot and returns the new
// state. Summaries and panels without children cannot be toggled.
func (window *Window) ToggleExpanded(entryID api.EntryID) (bool, error) {
	found, ok := window.find(entryID)
	if !ok {
		return false, fmt.Errorf("unknown entry %s", entryID)
	}

	switch current := found.(type) {
	case *Panel:
		if !current.Expandable() {
			return false, fmt.Errorf("panel %s has no children", entryID)
		}
		current.Expanded = !current.Expanded
		return current.Expanded, nil
	case *Slot:
		current.Expanded = !current.Expanded
		return current.Expanded, nil
	default:
		return false, fmt.Errorf("%s %s cannot be expanded", found.Kind(), entryID)
	}
}

// SetKindExpanded expands or collapses the panels of one kind on every node.
func (window *Window) SetKindExpanded(kind string, expanded bool) {
	for _, node := range window.root.children {
		nodePanel, ok := node.(*Panel)
		if !ok {
			continue
		}
		for _, child := range nodePanel.children {
			kindPanel, ok := child.(*Panel)
			if ok && kindPanel.ShortName == kind {
				kindPanel.Expanded = expanded
			}
		}
	}
}

// Visible applies the node range to the first level and the kind filter to
// the second level. Deeper entries are always visible.
func (window *Window) Visible(entryID api.EntryID) bool {
	switch entryID.Level() {
	case 1:
		node, ok := entryID.LastSlotIndex()
		return ok && window.config.NodeVisible(node)
	case 2:
		found, ok := window.find(entryID)
		return ok && window.config.KindVisible(found.Label())
	default:
		return true
	}
}

// Inflate requests the tiles of every shown summary and expanded slot for
// view. Entries keep their tiles while the view does not change.
func (window *Window) Inflate(view api.Interval) {
	window.inflatePanel(window.root, view)
}

func (window *Window) inflatePanel(panel *Panel, view api.Interval) {
	if panel.summary != nil {
		summary := panel.summary
		if !summary.hasLastView || summary.lastView != view {
			summary.clear()
		}
		summary.hasLastView = true
		summary.lastView = view
		if len(summary.tileIDs) == 0 {
			summary.inflate(window.config, view)
		}
	}

	if !panel.Expanded {
		return
	}

	for _, child := range panel.children {
		if !window.Visible(child.EntryID()) {
			continue
		}

		switch current := child.(type) {
		case *Panel:
			window.inflatePanel(current, view)
		case *Slot:
			if !current.Expanded {
				continue
			}
			if !current.hasLastView || current.lastView != view {
				current.clear()
			}
			current.hasLastView = true
			current.lastView = view
			if len(current.tileIDs) == 0 {
				current.inflate(window.config, view)
			}
		}
	}
}

// Search brings the search index up to date for view. Item details are
// requested for every searched slot and indexed once they arrive, so the
// result set grows over several calls.
func (window *Window) Search(view api.Interval) {
	state := window.config.SearchState
	state.EnsureValidCache(view)

	// Checked after validating so that clearing the query drops old results.
	if state.Query == "" {
		return
	}

	window.inflateMeta(window.root, view)
	window.searchPanel(window.root)
	window.observer.SearchResults(window.Index, state.Len())
}

// forEachSearched visits the children of panel that are searched, which are
// the visible children of expanded panels unless collapsed entries are
// included.
func (window *Window) forEachSearched(panel *Panel, visit func(child entry)) {
	force := window.config.SearchState.IncludeCollapsedEntries
	if !panel.Expanded && !force {
		return
	}

	for _, child := range panel.children {
		if !force && !window.Visible(child.EntryID()) {
			continue
		}
		visit(child)
	}
}

func (window *Window) inflateMeta(panel *Panel, view api.Interval) {
	window.forEachSearched(panel, func(child entry) {
		switch current := child.(type) {
		case *Panel:
			window.inflateMeta(current, view)
		case *Slot:
			current.inflateMeta(window.config, view)
		}
	})
}

func (window *Window) searchPanel(panel *Panel) {
	window.forEachSearched(panel, func(child entry) {
		switch current := child.(type) {
		case *Panel:
			window.searchPanel(current)
		case *Slot:
			current.search(window.config)
		}
	})
}

// Update stores the tiles that arrived since the last call. Tiles are only
// kept when their entry still waits for them; anything else belongs to a
// view that is gone and is dropped.
func (window *Window) Update() {
	dataSource := window.config.DataSource

	window.Descriptions = append(window.Descriptions, dataSource.GetDescriptions()...)

	dropped := 0
	for _, tile := range dataSource.GetSummaryTiles() {
		summary, ok := window.FindSummary(tile.EntryID)
		if !ok {
			dropped++
			continue
		}
		if _, requested := summary.tiles[tile.TileID]; !requested {
			dropped++
			continue
		}
		data := tile.Data
		summary.tiles[tile.TileID] = &data
	}
	window.reportDropped(deferred.RequestKindSummaryTile, dropped)

	dropped = 0
	for _, tile := range dataSource.GetSlotTiles() {
		slot, ok := window.FindSlot(tile.EntryID)
		if !ok {
			dropped++
			continue
		}
		if _, requested := slot.tiles[tile.TileID]; !requested {
			dropped++
			continue
		}
		data := tile.Data
		slot.tiles[tile.TileID] = &data
	}
	window.reportDropped(deferred.RequestKindSlotTile, dropped)

	dropped = 0
	for _, tile := range dataSource.GetSlotMetaTiles() {
		slot, ok := window.FindSlot(tile.EntryID)
		if !ok {
			dropped++
			continue
		}
		if _, requested := slot.metaTiles[tile.TileID]; !requested {
			dropped++
			continue
		}
		data := tile.Data
		slot.metaTiles[tile.TileID] = &data
	}
	window.reportDropped(deferred.RequestKindSlotMetaTile, dropped)
}

func (window *Window) reportDropped(kind deferred.RequestKind, count int) {
	if count == 0 {
		return
	}
	window.logger.V(1).Info("Dropped stale tiles", "kind", kind, "count", count)
	window.observer.TilesDropped(kind, count)
}

// Row is one line of the window layout.
type Row struct {
	EntryID  api.EntryID
	Kind     api.EntryKind
	Label    string
	Depth    int
	Expanded bool
}

// Rows returns the shown entries in display order: the summary of a panel
// first, then its visible children if the panel is expanded. The root panel
// is not listed.
func (window *Window) Rows() []Row {
	var rows []Row
	window.appendRows(&rows, window.root, 0)
	return rows
}

func (window *Window) appendRows(rows *[]Row, panel *Panel, depth int) {
	if panel.summary != nil {
		*rows = append(*rows, Row{EntryID: panel.summary.entryID, Kind: api.EntryKindSummary, Label: panel.summary.Label(), Depth: depth})
	}
	if !panel.Expanded {
		return
	}

	for _, child := range panel.children {
		if !window.Visible(child.EntryID()) {
			continue
		}

		switch current := child.(type) {
		case *Panel:
			*rows = append(*rows, Row{EntryID: current.entryID, Kind: api.EntryKindPanel, Label: current.ShortName, Depth: depth, Expanded: current.Expanded})
			window.appendRows(rows, current, depth+1)
		case *Slot:
			*rows = append(*rows, Row{EntryID: current.entryID, Kind: api.EntryKindSlot, Label: current.ShortName, Depth: depth, Expanded: current.Expanded})
		}
	}
}
