// config.go
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
	"errors"
	"fmt"
	"slices"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/search"
	"github.com/apple/foundationdb/fdbprofviewer/internal/tiles"
)

// ErrTitleFieldExists is returned for traces that define a field with the
// name of the synthetic title field.
var ErrTitleFieldExists = fmt.Errorf("field schema already contains %q", api.TitleFieldName)

// ErrUnknownField is returned when a search field is not in the schema.
var ErrUnknownField = errors.New("unknown search field")

// Config is the per window state shared by every entry of the window.
type Config struct {
	// FieldSchema is the schema of the trace plus the title field.
	FieldSchema *api.FieldSchema

	// MinNode and MaxNode bound the shown nodes, inclusive.
	MinNode uint64
	MaxNode uint64

	// Kinds lists the kinds of the trace in display order.
	Kinds []string

	// KindFilter holds the shown kinds. An empty filter shows every kind.
	KindFilter map[string]bool

	// Interval is the time covered by the trace.
	Interval api.Interval

	// DataSource counts the requests of the window.
	DataSource *deferred.Counting

	// SearchState is the search index of the window.
	SearchState *search.State

	nodes    uint64
	resolver *tiles.Resolver
}

// NewConfig builds the configuration of a window for a trace.
func NewConfig(dataSource *deferred.Counting, info api.DataSourceInfo) (*Config, error) {
	schema := api.NewFieldSchema()
	if info.FieldSchema != nil {
		schema = info.FieldSchema.Clone()
	}
	if schema.ContainsName(api.TitleFieldName) {
		return nil, ErrTitleFieldExists
	}
	titleField := schema.Insert(api.TitleFieldName, true)

	nodes := info.EntryInfo.Nodes()
	return &Config{
		FieldSchema: schema,
		MinNode:     0,
		MaxNode:     nodes,
		Kinds:       info.EntryInfo.Kinds(),
		KindFilter:  map[string]bool{},
		Interval:    info.Interval,
		DataSource:  dataSource,
		SearchState: search.NewState(titleField),
		nodes:       nodes,
		resolver:    tiles.NewResolver(info.TileSet),
	}, nil
}

// Nodes returns the number of nodes of the trace.
func (config *Config) Nodes() uint64 {
	return config.nodes
}

// RequestTiles returns the tiles covering view.
func (config *Config) RequestTiles(view api.Interval) []api.TileID {
	return config.resolver.RequestTiles(view)
}

// SetKindFilter replaces the kind filter. Unknown kinds are kept so that the
// filter can be set before the trace is loaded.
func (config *Config) SetKindFilter(kinds []string) {
	config.KindFilter = map[string]bool{}
	for _, kind := range kinds {
		config.KindFilter[kind] = true
	}
}

// KindVisible checks a kind against the kind filter.
func (config *Config) KindVisible(kind string) bool {
	return len(config.KindFilter) == 0 || config.KindFilter[kind]
}

// NodeVisible checks a node index against the node range.
func (config *Config) NodeVisible(node uint64) bool {
	return node >= config.MinNode && node <= config.MaxNode
}

// Apply copies the filter and search settings of a viewer configuration.
func (config *Config) Apply(configuration *api.ViewerConfiguration) error {
	config.MinNode, config.MaxNode = configuration.NodeRange(config.nodes)
	config.SetKindFilter(configuration.KindFilter)

	state := config.SearchState
	state.Query = configuration.Search.Query
	state.IncludeCollapsedEntries = configuration.IncludeCollapsedEntries()

	name := configuration.SearchField()
	field, ok := config.FieldSchema.ID(name)
	if !ok {
		state.SearchField = state.TitleField()
		return fmt.Errorf("%w %q, searchable fields are %v", ErrUnknownField, name, config.searchableNames())
	}
	state.SearchField = field
	return nil
}

func (config *Config) searchableNames() []string {
	var names []string
	for _, id := range config.FieldSchema.Searchable() {
		name, _ := config.FieldSchema.Name(id)
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
