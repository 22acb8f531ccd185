// entry.go
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
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/apple/foundationdb/fdbprofviewer/internal/tuple"
)

// SummaryIndex is the path element that addresses the summary child of a
// panel.
const SummaryIndex int64 = -1

// EntryID addresses a node of the entry tree by its path from the root. The
// zero value is the root. EntryIDs are never modified after construction.
type EntryID struct {
	path []int64
}

// RootEntryID returns the ID of the root panel.
func RootEntryID() EntryID {
	return EntryID{}
}

// NewEntryID builds an ID from a raw path.
func NewEntryID(path ...int64) EntryID {
	return EntryID{path: slices.Clone(path)}
}

func (id EntryID) extend(value int64) EntryID {
	path := make([]int64, len(id.path)+1)
	copy(path, id.path)
	path[len(id.path)] = value
	return EntryID{path: path}
}

// Child returns the ID of the slot with the given index below this entry.
func (id EntryID) Child(index uint64) EntryID {
	if index > uint64(1<<63-1) {
		panic(fmt.Sprintf("slot index %d does not fit in an entry ID", index))
	}
	return id.extend(int64(index))
}

// Summary returns the ID of the summary below this entry.
func (id EntryID) Summary() EntryID {
	return id.extend(SummaryIndex)
}

// Level returns the depth of the entry. The root has level 0.
func (id EntryID) Level() uint64 {
	return uint64(len(id.path))
}

// Path returns a copy of the raw path.
func (id EntryID) Path() []int64 {
	return slices.Clone(id.path)
}

// SlotIndex returns the slot index at the given level. It returns false when
// the level is past the end of the path or addresses a summary.
func (id EntryID) SlotIndex(level uint64) (uint64, bool) {
	if level >= id.Level() {
		return 0, false
	}
	value := id.path[level]
	if value < 0 {
		return 0, false
	}
	return uint64(value), true
}

// LastSlotIndex returns the slot index of the last path element.
func (id EntryID) LastSlotIndex() (uint64, bool) {
	if id.Level() == 0 {
		return 0, false
	}
	return id.SlotIndex(id.Level() - 1)
}

// Index classifies the path element at the given level. It returns false
// when the level is past the end of the path.
func (id EntryID) Index(level uint64) (EntryIndex, bool) {
	if level >= id.Level() {
		return EntryIndex{}, false
	}
	value := id.path[level]
	if value < 0 {
		return EntryIndex{Summary: true}, true
	}
	return EntryIndex{Slot: uint64(value)}, true
}

// LastIndex classifies the last path element.
func (id EntryID) LastIndex() (EntryIndex, bool) {
	if id.Level() == 0 {
		return EntryIndex{}, false
	}
	return id.Index(id.Level() - 1)
}

// HasPrefix checks if prefix is a leading part of this ID. Every ID is a
// prefix of itself.
func (id EntryID) HasPrefix(prefix EntryID) bool {
	if len(prefix.path) > len(id.path) {
		return false
	}
	return slices.Equal(id.path[:len(prefix.path)], prefix.path)
}

// Equal checks if both IDs address the same entry.
func (id EntryID) Equal(other EntryID) bool {
	return slices.Equal(id.path, other.path)
}

// Compare orders IDs element by element, shorter prefixes first.
func (id EntryID) Compare(other EntryID) int {
	return slices.Compare(id.path, other.path)
}

// Key returns a comparable representation of the ID for use in maps. Keys
// sort in the same order as Compare.
func (id EntryID) Key() string {
	return string(id.tuple().Pack())
}

// EntryIDFromKey reverses Key.
func EntryIDFromKey(key string) (EntryID, error) {
	t, err := tuple.Unpack([]byte(key))
	if err != nil {
		return EntryID{}, fmt.Errorf("could not decode entry key: %w", err)
	}

	path := make([]int64, 0, len(t))
	for _, element := range t {
		value, ok := element.(int64)
		if !ok {
			return EntryID{}, fmt.Errorf("entry key contains non integer element %v", element)
		}
		path = append(path, value)
	}

	return EntryID{path: path}, nil
}

func (id EntryID) tuple() tuple.Tuple {
	t := make(tuple.Tuple, len(id.path))
	for i, value := range id.path {
		t[i] = value
	}
	return t
}

// Tuple returns the ID as a tuple, for use in composite keys.
func (id EntryID) Tuple() tuple.Tuple {
	return id.tuple()
}

// String returns a human readable representation of the ID.
func (id EntryID) String() string {
	parts := make([]string, len(id.path))
	for i, value := range id.path {
		if value == SummaryIndex {
			parts[i] = "summary"
			continue
		}
		parts[i] = fmt.Sprint(value)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalJSON encodes the ID as an array of integers.
func (id EntryID) MarshalJSON() ([]byte, error) {
	if id.path == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(id.path)
}

// UnmarshalJSON decodes an array of integers.
func (id *EntryID) UnmarshalJSON(data []byte) error {
	var path []int64
	err := json.Unmarshal(data, &path)
	if err != nil {
		return err
	}
	for i, value := range path {
		if value < SummaryIndex || (value == SummaryIndex && i != len(path)-1) {
			return fmt.Errorf("invalid entry path %v", path)
		}
	}
	if len(path) == 0 {
		path = nil
	}
	id.path = path
	return nil
}

// EntryIndex classifies one element of an EntryID.
type EntryIndex struct {
	// Summary is true when the element addresses a summary.
	Summary bool

	// Slot is the slot index when Summary is false.
	Slot uint64
}

// EntryKind is the kind of node in the entry tree.
type EntryKind string

const (
	// EntryKindPanel is a node with children.
	EntryKindPanel EntryKind = "Panel"
	// EntryKindSlot is a leaf holding rows of items.
	EntryKindSlot EntryKind = "Slot"
	// EntryKindSummary is a leaf holding a utilization plot.
	EntryKindSummary EntryKind = "Summary"
)

// EntryInfo describes the shape of the entry tree. It is loaded once from
// the trace and never changes.
type EntryInfo struct {
	// Kind selects which of the fields below are meaningful.
	Kind EntryKind

	// ShortName is the label of a panel or slot.
	ShortName string
	// LongName is the description of a panel or slot.
	LongName string

	// Summary is the optional summary child of a panel.
	Summary *EntryInfo
	// Slots are the ordered children of a panel.
	Slots []EntryInfo

	// MaxRows is the number of rows of a slot.
	MaxRows uint64

	// Color is the plot color of a summary.
	Color Color
}

// NewPanelInfo returns the info of a panel.
func NewPanelInfo(shortName string, longName string, summary *EntryInfo, slots ...EntryInfo) EntryInfo {
	return EntryInfo{Kind: EntryKindPanel, ShortName: shortName, LongName: longName, Summary: summary, Slots: slots}
}

// NewSlotInfo returns the info of a slot.
func NewSlotInfo(shortName string, longName string, maxRows uint64) EntryInfo {
	return EntryInfo{Kind: EntryKindSlot, ShortName: shortName, LongName: longName, MaxRows: maxRows}
}

// NewSummaryInfo returns the info of a summary.
func NewSummaryInfo(color Color) *EntryInfo {
	return &EntryInfo{Kind: EntryKindSummary, Color: color}
}

// Get returns the info addressed by the ID. It returns false when the ID
// points past the tree. Get panics when the ID addresses a summary or slot
// below a node that is not a panel.
func (info *EntryInfo) Get(id EntryID) (*EntryInfo, bool) {
	result := info
	for level := uint64(0); level < id.Level(); level++ {
		index, _ := id.Index(level)
		if result.Kind != EntryKindPanel {
			panic(fmt.Sprintf("entry ID %s does not match the entry info at level %d", id, level))
		}
		if index.Summary {
			if level != id.Level()-1 {
				panic(fmt.Sprintf("entry ID %s addresses a summary before its last level", id))
			}
			return result.Summary, result.Summary != nil
		}
		if index.Slot >= uint64(len(result.Slots)) {
			return nil, false
		}
		result = &result.Slots[index.Slot]
	}

	return result, true
}

// Nodes returns the number of top level slots.
func (info *EntryInfo) Nodes() uint64 {
	if info.Kind != EntryKindPanel {
		panic("nodes requested from an entry info that is not a panel")
	}
	return uint64(len(info.Slots))
}

// Kinds returns the distinct short names of the second level panels, in the
// order they are first seen.
func (info *EntryInfo) Kinds() []string {
	if info.Kind != EntryKindPanel {
		panic("kinds requested from an entry info that is not a panel")
	}

	var result []string
	seen := map[string]bool{}
	for _, node := range info.Slots {
		if node.Kind != EntryKindPanel {
			panic(fmt.Sprintf("node %q is not a panel", node.ShortName))
		}
		for _, kind := range node.Slots {
			if kind.Kind != EntryKindPanel {
				panic(fmt.Sprintf("kind %q is not a panel", kind.ShortName))
			}
			if !seen[kind.ShortName] {
				seen[kind.ShortName] = true
				result = append(result, kind.ShortName)
			}
		}
	}

	return result
}

type panelJSON struct {
	ShortName string      `json:"short_name"`
	LongName  string      `json:"long_name"`
	Summary   *EntryInfo  `json:"summary"`
	Slots     []EntryInfo `json:"slots"`
}

type slotJSON struct {
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	MaxRows   uint64 `json:"max_rows"`
}

type summaryJSON struct {
	Color Color `json:"color"`
}

// MarshalJSON encodes the info as an externally tagged union, e.g.
// {"Slot": {"short_name": ...}}.
func (info EntryInfo) MarshalJSON() ([]byte, error) {
	var body interface{}
	switch info.Kind {
	case EntryKindPanel:
		slots := info.Slots
		if slots == nil {
			slots = []EntryInfo{}
		}
		body = panelJSON{ShortName: info.ShortName, LongName: info.LongName, Summary: info.Summary, Slots: slots}
	case EntryKindSlot:
		body = slotJSON{ShortName: info.ShortName, LongName: info.LongName, MaxRows: info.MaxRows}
	case EntryKindSummary:
		body = summaryJSON{Color: info.Color}
	default:
		return nil, fmt.Errorf("unknown entry kind %q", info.Kind)
	}

	return json.Marshal(map[EntryKind]interface{}{info.Kind: body})
}

// UnmarshalJSON decodes the externally tagged form written by MarshalJSON.
func (info *EntryInfo) UnmarshalJSON(data []byte) error {
	var tagged map[EntryKind]json.RawMessage
	err := json.Unmarshal(data, &tagged)
	if err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("entry info must have exactly one kind, got %d", len(tagged))
	}

	for kind, raw := range tagged {
		switch kind {
		case EntryKindPanel:
			var panel panelJSON
			err = json.Unmarshal(raw, &panel)
			if err != nil {
				return err
			}
			if panel.Summary != nil && panel.Summary.Kind != EntryKindSummary {
				return fmt.Errorf("summary of panel %q has kind %q", panel.ShortName, panel.Summary.Kind)
			}
			*info = NewPanelInfo(panel.ShortName, panel.LongName, panel.Summary, panel.Slots...)
		case EntryKindSlot:
			var slot slotJSON
			err = json.Unmarshal(raw, &slot)
			if err != nil {
				return err
			}
			*info = NewSlotInfo(slot.ShortName, slot.LongName, slot.MaxRows)
		case EntryKindSummary:
			var summary summaryJSON
			err = json.Unmarshal(raw, &summary)
			if err != nil {
				return err
			}
			*info = *NewSummaryInfo(summary.Color)
		default:
			return fmt.Errorf("unknown entry kind %q", kind)
		}
	}

	return nil
}
