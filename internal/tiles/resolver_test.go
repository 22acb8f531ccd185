// resolver_test.go
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

package tiles

import (
	"github.com/apple/foundationdb/fdbprofviewer/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// uniformLevel splits [0, total) into tiles of the given duration.
func uniformLevel(duration int64, total int64) []api.TileID {
	var level []api.TileID
	for start := int64(0); start < total; start += duration {
		level = append(level, api.NewTileID(api.NewInterval(api.Timestamp(start), api.Timestamp(start+duration))))
	}
	return level
}

var _ = Describe("Tile resolver", func() {
	const total = 2_000_000

	var resolver *Resolver

	When("the trace has precomputed tiles", func() {
		BeforeEach(func() {
			resolver = NewResolver(api.TileSet{Tiles: [][]api.TileID{
				uniformLevel(100, total),
				uniformLevel(10_000, total),
				uniformLevel(1_000_000, total),
			}})
		})

		It("should pick the level with the closest tile size", func() {
			request := api.NewInterval(20_500, 29_500)
			tiles := resolver.RequestTiles(request)
			Expect(tiles).To(HaveExactElements(
				api.NewTileID(api.NewInterval(20_000, 30_000)),
			))
		})

		It("should return every overlapping tile in order", func() {
			tiles := resolver.RequestTiles(api.NewInterval(5_000, 25_000))
			Expect(tiles).To(HaveExactElements(
				api.NewTileID(api.NewInterval(0, 10_000)),
				api.NewTileID(api.NewInterval(10_000, 20_000)),
				api.NewTileID(api.NewInterval(20_000, 30_000)),
			))
		})

		It("should pick the coarse level for a large request", func() {
			tiles := resolver.RequestTiles(api.NewInterval(0, total))
			Expect(tiles).To(HaveLen(2))
		})

		It("should memoize the last request", func() {
			request := api.NewInterval(20_500, 29_500)
			first := resolver.RequestTiles(request)
			second := resolver.RequestTiles(request)
			Expect(second).To(Equal(first))
			Expect(resolver.Selections()).To(BeNumerically("==", 1))

			resolver.RequestTiles(api.NewInterval(0, 100))
			Expect(resolver.Selections()).To(BeNumerically("==", 2))
			resolver.RequestTiles(request)
			Expect(resolver.Selections()).To(BeNumerically("==", 3))
		})

		It("should not fail on an empty request", func() {
			tiles := resolver.RequestTiles(api.NewInterval(500, 500))
			Expect(tiles).To(HaveExactElements(api.NewTileID(api.NewInterval(500, 600))))
		})
	})

	When("two levels are equally close", func() {
		BeforeEach(func() {
			resolver = NewResolver(api.TileSet{Tiles: [][]api.TileID{
				uniformLevel(500, 4_000),
				uniformLevel(2_000, 4_000),
			}})
		})

		It("should prefer the first level", func() {
			tiles := resolver.RequestTiles(api.NewInterval(0, 1_000))
			Expect(tiles).To(HaveExactElements(
				api.NewTileID(api.NewInterval(0, 500)),
				api.NewTileID(api.NewInterval(500, 1_000)),
			))
		})
	})

	When("the trace computes tiles on demand", func() {
		BeforeEach(func() {
			resolver = NewResolver(api.TileSet{})
		})

		It("should return the request as a single tile", func() {
			request := api.NewInterval(123, 4_567)
			Expect(resolver.RequestTiles(request)).To(HaveExactElements(api.NewTileID(request)))
		})
	})

	When("some levels are empty", func() {
		BeforeEach(func() {
			resolver = NewResolver(api.TileSet{Tiles: [][]api.TileID{{}, uniformLevel(1_000, 3_000)}})
		})

		It("should skip them", func() {
			Expect(resolver.RequestTiles(api.NewInterval(0, 1_000))).To(HaveLen(1))
		})
	})
})
