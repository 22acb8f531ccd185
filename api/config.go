// config.go
//
// This source file is part of the FoundationDB open source project
//
// Copyright 2021-2024 Apple Inc. and the FoundationDB project authors
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
	"os"

	"k8s.io/utils/pointer"
)

// TitleFieldName is the name of the synthetic field that matches item
// titles.
const TitleFieldName = "Title"

// ViewerConfiguration models the user adjustable settings of the viewer.
// The configuration is read from a JSON file and may be changed while the
// viewer is running.
type ViewerConfiguration struct {
	// MinNode is the first node that should be shown. This defaults to 0.
	MinNode *uint64 `json:"minNode,omitempty"`

	// MaxNode is the last node that should be shown. This defaults to the
	// number of nodes in the trace.
	MaxNode *uint64 `json:"maxNode,omitempty"`

	// KindFilter restricts the shown kinds to the listed short names. An
	// empty filter shows every kind.
	KindFilter []string `json:"kindFilter,omitempty"`

	// Search provides the search settings.
	Search SearchConfiguration `json:"search,omitempty"`

	// History provides the navigation history settings.
	History HistoryConfiguration `json:"history,omitempty"`
}

// SearchConfiguration models the search settings.
type SearchConfiguration struct {
	// Query is the substring to search for.
	Query string `json:"query,omitempty"`

	// Field is the name of the field to search in. This defaults to the item
	// title.
	Field string `json:"field,omitempty"`

	// IncludeCollapsedEntries defines whether collapsed and filtered entries
	// are searched as well. This defaults to false.
	IncludeCollapsedEntries *bool `json:"includeCollapsedEntries,omitempty"`
}

// HistoryConfiguration models the navigation history settings.
type HistoryConfiguration struct {
	// MaxLevels bounds the number of remembered views. Zero keeps every view.
	MaxLevels int `json:"maxLevels,omitempty"`

	// CoalescePans defines whether consecutive pans are merged into a single
	// undo step. This defaults to true.
	CoalescePans *bool `json:"coalescePans,omitempty"`
}

// SearchField returns the configured search field name.
func (configuration *ViewerConfiguration) SearchField() string {
	if configuration.Search.Field == "" {
		return TitleFieldName
	}
	return configuration.Search.Field
}

// IncludeCollapsedEntries returns whether collapsed entries are searched.
func (configuration *ViewerConfiguration) IncludeCollapsedEntries() bool {
	return pointer.BoolDeref(configuration.Search.IncludeCollapsedEntries, false)
}

// CoalescePans returns whether consecutive pans are merged.
func (configuration *ViewerConfiguration) CoalescePans() bool {
	return pointer.BoolDeref(configuration.History.CoalescePans, true)
}

// NodeRange returns the range of shown nodes, using nodes as the default
// upper bound.
func (configuration *ViewerConfiguration) NodeRange(nodes uint64) (uint64, uint64) {
	minNode := pointer.Uint64Deref(configuration.MinNode, 0)
	maxNode := pointer.Uint64Deref(configuration.MaxNode, nodes)
	if minNode > maxNode {
		maxNode = minNode
	}
	return minNode, maxNode
}

// Validate checks the configuration for values that can never be applied.
func (configuration *ViewerConfiguration) Validate() error {
	if configuration.MinNode != nil && configuration.MaxNode != nil && *configuration.MinNode > *configuration.MaxNode {
		return fmt.Errorf("minNode %d is larger than maxNode %d", *configuration.MinNode, *configuration.MaxNode)
	}
	if configuration.History.MaxLevels < 0 {
		return fmt.Errorf("history.maxLevels must not be negative, got %d", configuration.History.MaxLevels)
	}
	return nil
}

// LoadViewerConfiguration reads and validates a configuration file.
func LoadViewerConfiguration(path string) (*ViewerConfiguration, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	configuration := &ViewerConfiguration{}
	err = json.NewDecoder(file).Decode(configuration)
	if err != nil {
		return nil, fmt.Errorf("could not decode viewer configuration %s: %w", path, err)
	}

	err = configuration.Validate()
	if err != nil {
		return nil, err
	}

	return configuration, nil
}

// DeepCopy returns a copy that shares no memory with the original.
func (configuration *ViewerConfiguration) DeepCopy() *ViewerConfiguration {
	if configuration == nil {
		return nil
	}

	result := *configuration
	if configuration.MinNode != nil {
		result.MinNode = pointer.Uint64(*configuration.MinNode)
	}
	if configuration.MaxNode != nil {
		result.MaxNode = pointer.Uint64(*configuration.MaxNode)
	}
	if configuration.KindFilter != nil {
		result.KindFilter = append([]string(nil), configuration.KindFilter...)
	}
	if configuration.Search.IncludeCollapsedEntries != nil {
		result.Search.IncludeCollapsedEntries = pointer.Bool(*configuration.Search.IncludeCollapsedEntries)
	}
	if configuration.History.CoalescePans != nil {
		result.History.CoalescePans = pointer.Bool(*configuration.History.CoalescePans)
	}
	return &result
}
