// color.go
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
	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/cespare/xxhash/v2"
)

// palette holds the colors assigned to items without an explicit color.
var palette = []api.Color{
	{0x4e, 0x79, 0xa7, 0xff},
	{0xf2, 0x8e, 0x2b, 0xff},
	{0xe1, 0x57, 0x59, 0xff},
	{0x76, 0xb7, 0xb2, 0xff},
	{0x59, 0xa1, 0x4f, 0xff},
	{0xed, 0xc9, 0x48, 0xff},
	{0xb0, 0x7a, 0xa1, 0xff},
	{0xff, 0x9d, 0xa7, 0xff},
	{0x9c, 0x75, 0x5f, 0xff},
	{0xba, 0xb0, 0xac, 0xff},
}

// titleColor picks a palette color from the title, so that items with the
// same title share a color across slots and traces.
func titleColor(title string) api.Color {
	return palette[xxhash.Sum64String(title)%uint64(len(palette))]
}

func itemColor(item Item) api.Color {
	if item.Color != nil {
		return api.Color(*item.Color)
	}
	return titleColor(item.Title)
}

func kindColor(kind Kind) api.Color {
	if kind.Color != nil {
		return api.Color(*kind.Color)
	}
	return titleColor(kind.Name)
}
