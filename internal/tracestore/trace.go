// trace.go
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
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"gopkg.in/yaml.v3"
)

// DefaultTileLevels is the number of precomputed tile levels of a trace
// that does not set its own.
const DefaultTileLevels = 4

// ErrEmptyTrace is returned for traces without items.
var ErrEmptyTrace = errors.New("trace has no items")

// Trace is the input format of the indexer. Trace files are YAML; JSON
// files are accepted as well.
type Trace struct {
	// Name is shown as the name of the root panel.
	Name string `yaml:"name"`

	// TileLevels is the number of precomputed tile levels, where level n
	// splits the trace into 4^n tiles. Zero makes the store cut tiles on
	// demand.
	TileLevels *int `yaml:"tileLevels,omitempty"`

	// Nodes are the top level panels.
	Nodes []Node `yaml:"nodes"`
}

// Node is a machine or process of the trace.
type Node struct {
	Name     string `yaml:"name"`
	LongName string `yaml:"longName,omitempty"`
	Kinds    []Kind `yaml:"kinds"`
}

// Kind groups the slots of one processor kind on a node.
type Kind struct {
	Name  string         `yaml:"name"`
	Color *[4]uint8      `yaml:"color,omitempty"`
	Slots []SlotTimeline `yaml:"slots"`
}

// SlotTimeline is the list of items of one slot.
type SlotTimeline struct {
	Name     string `yaml:"name"`
	LongName string `yaml:"longName,omitempty"`
	Items    []Item `yaml:"items"`
}

// Item is one task of a slot.
type Item struct {
	Title string    `yaml:"title"`
	Start Time      `yaml:"start"`
	Stop  Time      `yaml:"stop"`
	Color *[4]uint8 `yaml:"color,omitempty"`

	// Fields are shown with the item and can be searched. Strings, integers
	// and lists of them are supported.
	Fields map[string]interface{} `yaml:"fields,omitempty"`
}

// Time is a timestamp that is written either as an integer number of
// nanoseconds or as a string with a unit, like "1.5 ms".
type Time api.Timestamp

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Time) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", value.Line)
	}

	var nanoseconds int64
	if err := value.Decode(&nanoseconds); err == nil {
		*t = Time(nanoseconds)
		return nil
	}

	parsed, err := api.ParseTimestamp(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid timestamp %q: %w", value.Line, value.Value, err)
	}
	*t = Time(parsed)
	return nil
}

// LoadTrace reads a trace file.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trace, err := ParseTrace(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse trace %s: %w", path, err)
	}
	return trace, nil
}

// ParseTrace decodes and validates a trace.
func ParseTrace(data []byte) (*Trace, error) {
	trace := &Trace{}
	err := yaml.Unmarshal(data, trace)
	if err != nil {
		return nil, err
	}

	err = trace.Validate()
	if err != nil {
		return nil, err
	}
	return trace, nil
}

// Validate checks that every item has a valid interval and that the trace
// is not empty.
func (trace *Trace) Validate() error {
	if trace.TileLevels != nil && (*trace.TileLevels < 0 || *trace.TileLevels > 16) {
		return fmt.Errorf("tileLevels must be between 0 and 16, got %d", *trace.TileLevels)
	}

	items := 0
	for _, node := range trace.Nodes {
		for _, kind := range node.Kinds {
			for _, slot := range kind.Slots {
				for _, item := range slot.Items {
					if item.Stop < item.Start {
						return fmt.Errorf("item %q on %s/%s/%s stops before it starts", item.Title, node.Name, kind.Name, slot.Name)
					}
					for name, value := range item.Fields {
						if name == api.TitleFieldName {
							return fmt.Errorf("item %q uses the reserved field name %q", item.Title, name)
						}
						if _, err := convertField(value); err != nil {
							return fmt.Errorf("item %q field %q: %w", item.Title, name, err)
						}
					}
				}
				items += len(slot.Items)
			}
		}
	}

	if items == 0 {
		return ErrEmptyTrace
	}
	return nil
}

// Interval returns the time covered by the items of the trace.
func (trace *Trace) Interval() api.Interval {
	first := true
	var interval api.Interval
	for _, node := range trace.Nodes {
		for _, kind := range node.Kinds {
			for _, slot := range kind.Slots {
				for _, item := range slot.Items {
					current := api.NewInterval(api.Timestamp(item.Start), api.Timestamp(item.Stop))
					if first {
						interval = current
						first = false
						continue
					}
					interval = interval.Union(current)
				}
			}
		}
	}
	return interval
}

// tileLevels returns the configured number of tile levels.
func (trace *Trace) tileLevels() int {
	if trace.TileLevels == nil {
		return DefaultTileLevels
	}
	return *trace.TileLevels
}

// fieldNames returns the sorted names of every field used by an item.
func (trace *Trace) fieldNames() []string {
	seen := map[string]bool{}
	for _, node := range trace.Nodes {
		for _, kind := range node.Kinds {
			for _, slot := range kind.Slots {
				for _, item := range slot.Items {
					for name := range item.Fields {
						seen[name] = true
					}
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertField maps a decoded YAML value to a field.
func convertField(value interface{}) (api.Field, error) {
	switch typed := value.(type) {
	case nil:
		return api.EmptyField(), nil
	case string:
		return api.StringField(typed), nil
	case int:
		return api.I64Field(int64(typed)), nil
	case int64:
		return api.I64Field(typed), nil
	case uint64:
		return api.U64Field(typed), nil
	case []interface{}:
		fields := make([]api.Field, 0, len(typed))
		for _, element := range typed {
			field, err := convertField(element)
			if err != nil {
				return api.Field{}, err
			}
			fields = append(fields, field)
		}
		return api.VecField(fields...), nil
	default:
		return api.Field{}, fmt.Errorf("unsupported field value %v of type %T", value, value)
	}
}
