// field.go
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
	"sort"
)

// FieldKind defines the type of value held by a Field.
type FieldKind string

const (
	// FieldKindI64 holds a signed integer.
	FieldKindI64 FieldKind = "I64"
	// FieldKindU64 holds an unsigned integer.
	FieldKindU64 FieldKind = "U64"
	// FieldKindString holds a string.
	FieldKindString FieldKind = "String"
	// FieldKindInterval holds an interval.
	FieldKindInterval FieldKind = "Interval"
	// FieldKindItemLink holds a reference to another item.
	FieldKindItemLink FieldKind = "ItemLink"
	// FieldKindVec holds a list of fields.
	FieldKindVec FieldKind = "Vec"
	// FieldKindEmpty holds nothing.
	FieldKindEmpty FieldKind = "Empty"
)

// ItemLink references another item of the trace.
type ItemLink struct {
	// ItemUID is the referenced item.
	ItemUID ItemUID `json:"item_uid"`

	// Title is the display title of the referenced item.
	Title string `json:"title"`

	// Interval is the interval of the referenced item.
	Interval Interval `json:"interval"`

	// EntryID is the entry that contains the referenced item.
	EntryID EntryID `json:"entry_id"`
}

// Field is a typed metadata value attached to an item.
type Field struct {
	Kind     FieldKind
	I64      int64
	U64      uint64
	String   string
	Interval Interval
	ItemLink *ItemLink
	Vec      []Field
}

// StringField returns a field holding s.
func StringField(s string) Field {
	return Field{Kind: FieldKindString, String: s}
}

// I64Field returns a field holding value.
func I64Field(value int64) Field {
	return Field{Kind: FieldKindI64, I64: value}
}

// U64Field returns a field holding value.
func U64Field(value uint64) Field {
	return Field{Kind: FieldKindU64, U64: value}
}

// IntervalField returns a field holding interval.
func IntervalField(interval Interval) Field {
	return Field{Kind: FieldKindInterval, Interval: interval}
}

// ItemLinkField returns a field holding a link.
func ItemLinkField(link ItemLink) Field {
	return Field{Kind: FieldKindItemLink, ItemLink: &link}
}

// VecField returns a field holding fields.
func VecField(fields ...Field) Field {
	return Field{Kind: FieldKindVec, Vec: fields}
}

// EmptyField returns a field holding nothing.
func EmptyField() Field {
	return Field{Kind: FieldKindEmpty}
}

// MarshalJSON encodes the field as an externally tagged union. Empty fields
// are encoded as the bare string "Empty".
func (field Field) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch field.Kind {
	case FieldKindEmpty, "":
		return json.Marshal(FieldKindEmpty)
	case FieldKindI64:
		value = field.I64
	case FieldKindU64:
		value = field.U64
	case FieldKindString:
		value = field.String
	case FieldKindInterval:
		value = field.Interval
	case FieldKindItemLink:
		if field.ItemLink == nil {
			return nil, fmt.Errorf("item link field without a link")
		}
		value = field.ItemLink
	case FieldKindVec:
		vec := field.Vec
		if vec == nil {
			vec = []Field{}
		}
		value = vec
	default:
		return nil, fmt.Errorf("unknown field kind %q", field.Kind)
	}

	return json.Marshal(map[FieldKind]interface{}{field.Kind: value})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (field *Field) UnmarshalJSON(data []byte) error {
	var bare FieldKind
	if json.Unmarshal(data, &bare) == nil {
		if bare != FieldKindEmpty {
			return fmt.Errorf("unknown field kind %q", bare)
		}
		*field = EmptyField()
		return nil
	}

	var tagged map[FieldKind]json.RawMessage
	err := json.Unmarshal(data, &tagged)
	if err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("field must have exactly one kind, got %d", len(tagged))
	}

	for kind, raw := range tagged {
		result := Field{Kind: kind}
		switch kind {
		case FieldKindI64:
			err = json.Unmarshal(raw, &result.I64)
		case FieldKindU64:
			err = json.Unmarshal(raw, &result.U64)
		case FieldKindString:
			err = json.Unmarshal(raw, &result.String)
		case FieldKindInterval:
			err = json.Unmarshal(raw, &result.Interval)
		case FieldKindItemLink:
			result.ItemLink = &ItemLink{}
			err = json.Unmarshal(raw, result.ItemLink)
		case FieldKindVec:
			err = json.Unmarshal(raw, &result.Vec)
		case FieldKindEmpty:
		default:
			err = fmt.Errorf("unknown field kind %q", kind)
		}
		if err != nil {
			return err
		}
		*field = result
	}

	return nil
}

// FieldID identifies a field name in a FieldSchema.
type FieldID uint64

// FieldEntry is one named field of an item.
type FieldEntry struct {
	ID    FieldID `json:"id"`
	Value Field   `json:"value"`
}

// FieldSchema assigns IDs to the field names used by a trace.
type FieldSchema struct {
	names      []string
	ids        map[string]FieldID
	searchable map[FieldID]bool
}

// NewFieldSchema returns an empty schema.
func NewFieldSchema() *FieldSchema {
	return &FieldSchema{ids: map[string]FieldID{}, searchable: map[FieldID]bool{}}
}

// Insert returns the ID of name, adding it to the schema if needed.
func (schema *FieldSchema) Insert(name string, searchable bool) FieldID {
	if schema.ids == nil {
		schema.ids = map[string]FieldID{}
		schema.searchable = map[FieldID]bool{}
	}
	if id, ok := schema.ids[name]; ok {
		return id
	}

	id := FieldID(len(schema.names))
	schema.names = append(schema.names, name)
	schema.ids[name] = id
	if searchable {
		schema.searchable[id] = true
	}
	return id
}

// Name returns the name of a field.
func (schema *FieldSchema) Name(id FieldID) (string, bool) {
	if uint64(id) >= uint64(len(schema.names)) {
		return "", false
	}
	return schema.names[id], true
}

// ID returns the ID of a field name.
func (schema *FieldSchema) ID(name string) (FieldID, bool) {
	id, ok := schema.ids[name]
	return id, ok
}

// ContainsName checks if the schema has a field called name.
func (schema *FieldSchema) ContainsName(name string) bool {
	_, ok := schema.ids[name]
	return ok
}

// Searchable returns the IDs of the searchable fields in ascending order.
func (schema *FieldSchema) Searchable() []FieldID {
	result := make([]FieldID, 0, len(schema.searchable))
	for id := range schema.searchable {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Clone returns an independent copy of the schema.
func (schema *FieldSchema) Clone() *FieldSchema {
	result := NewFieldSchema()
	for id, name := range schema.names {
		result.Insert(name, schema.searchable[FieldID(id)])
	}
	return result
}

type fieldSchemaJSON struct {
	Name       string `json:"name"`
	Searchable bool   `json:"searchable"`
}

// MarshalJSON encodes the schema as the ordered list of its fields.
func (schema *FieldSchema) MarshalJSON() ([]byte, error) {
	fields := make([]fieldSchemaJSON, len(schema.names))
	for id, name := range schema.names {
		fields[id] = fieldSchemaJSON{Name: name, Searchable: schema.searchable[FieldID(id)]}
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the list written by MarshalJSON.
func (schema *FieldSchema) UnmarshalJSON(data []byte) error {
	var fields []fieldSchemaJSON
	err := json.Unmarshal(data, &fields)
	if err != nil {
		return err
	}

	*schema = *NewFieldSchema()
	for _, field := range fields {
		if schema.ContainsName(field.Name) {
			return fmt.Errorf("duplicate field name %q", field.Name)
		}
		schema.Insert(field.Name, field.Searchable)
	}
	return nil
}
