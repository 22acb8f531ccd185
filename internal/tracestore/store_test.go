// store_test.go
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
	"context"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func titles(rows [][]api.ItemMeta) [][]string {
	result := make([][]string, 0, len(rows))
	for _, row := range rows {
		names := []string{}
		for _, item := range row {
			names = append(names, item.Title)
		}
		result = append(result, names)
	}
	return result
}

var _ = Describe("Testing the trace store", func() {
	var fs vfs.FS
	var store *Store
	var ctx context.Context

	cpuSlot := api.NewEntryID(0, 0, 0)
	cpuSummary := api.NewEntryID(0, 0).Summary()
	nodeSummary := api.NewEntryID(0).Summary()

	BeforeEach(func() {
		ctx = context.Background()
		fs = vfs.NewMem()

		trace, err := LoadTrace(".testdata/trace.yaml")
		Expect(err).NotTo(HaveOccurred())

		store, err = Create(ctx, GinkgoLogr, "store", &pebble.Options{FS: fs}, trace, ".testdata/trace.yaml")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	When("fetching the info", func() {
		var info api.DataSourceInfo

		BeforeEach(func() {
			var err error
			info, err = store.FetchInfo(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should describe the entry tree", func() {
			Expect(info.EntryInfo.ShortName).To(Equal("test"))
			Expect(info.EntryInfo.Nodes()).To(BeNumerically("==", 1))
			Expect(info.EntryInfo.Kinds()).To(Equal([]string{"cpu", "gpu"}))
			Expect(info.EntryInfo.Slots[0].LongName).To(Equal("node zero"))

			slot, ok := info.EntryInfo.Get(cpuSlot)
			Expect(ok).To(BeTrue())
			Expect(slot.Kind).To(Equal(api.EntryKindSlot))
			Expect(slot.MaxRows).To(BeNumerically("==", 2))
			Expect(slot.LongName).To(Equal("n0 cpu 0"))

			summary, ok := info.EntryInfo.Get(cpuSummary)
			Expect(ok).To(BeTrue())
			Expect(summary.Kind).To(Equal(api.EntryKindSummary))
		})

		It("should cover the trace", func() {
			Expect(info.Interval).To(Equal(api.NewInterval(0, 2000)))
		})

		It("should precompute the tile levels", func() {
			Expect(info.TileSet.Tiles).To(HaveLen(2))
			Expect(info.TileSet.Tiles[0]).To(Equal([]api.TileID{api.NewTileID(api.NewInterval(0, 2000))}))
			Expect(info.TileSet.Tiles[1]).To(HaveLen(4))
			Expect(info.TileSet.Tiles[1][3]).To(Equal(api.NewTileID(api.NewInterval(1500, 2000))))
		})

		It("should list the fields", func() {
			Expect(info.FieldSchema.ContainsName("req")).To(BeTrue())
			Expect(info.FieldSchema.ContainsName("tags")).To(BeTrue())
			Expect(info.FieldSchema.Searchable()).To(HaveLen(2))
		})
	})

	When("fetching the description", func() {
		It("should name the trace file", func() {
			description, err := store.FetchDescription(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(description.SourceLocator).To(Equal([]string{".testdata/trace.yaml"}))
		})
	})

	When("fetching slot tiles", func() {
		It("should return the items overlapping the tile by row", func() {
			tile, err := store.FetchSlotTile(ctx, cpuSlot, api.NewTileID(api.NewInterval(120, 400)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.EntryID).To(Equal(cpuSlot))
			Expect(tile.Data.Items).To(HaveLen(2))
			Expect(tile.Data.Items[0]).To(HaveLen(1))
			Expect(tile.Data.Items[0][0].Interval).To(Equal(api.NewInterval(100, 200)))
			Expect(tile.Data.Items[1]).To(HaveLen(1))
			Expect(tile.Data.Items[1][0].Interval).To(Equal(api.NewInterval(50, 150)))
		})

		It("should keep empty rows", func() {
			tile, err := store.FetchSlotTile(ctx, cpuSlot, api.NewTileID(api.NewInterval(0, 50)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.Data.Items).To(HaveLen(2))
			Expect(tile.Data.Items[0]).To(HaveLen(1))
			Expect(tile.Data.Items[1]).To(BeEmpty())
		})

		It("should use explicit colors", func() {
			tile, err := store.FetchSlotTile(ctx, api.NewEntryID(0, 1, 0), api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.Data.Items[0][0].Color).To(Equal(api.Color{1, 2, 3, 255}))
		})

		It("should reject unknown slots", func() {
			_, err := store.FetchSlotTile(ctx, api.NewEntryID(3, 0, 0), api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).To(MatchError(ErrUnknownEntry))
		})
	})

	When("fetching slot meta tiles", func() {
		It("should return titles and fields", func() {
			tile, err := store.FetchSlotMetaTile(ctx, cpuSlot, api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(titles(tile.Data.Items)).To(Equal([][]string{{"a", "c"}, {"b"}}))

			item := tile.Data.Items[0][0]
			Expect(item.OriginalInterval).To(Equal(api.NewInterval(0, 100)))
			Expect(item.Fields).To(Equal([]api.FieldEntry{
				{ID: 0, Value: api.I64Field(7)},
				{ID: 1, Value: api.VecField(api.StringField("x"), api.StringField("y"))},
			}))
		})

		It("should give every item its own UID", func() {
			tile, err := store.FetchSlotMetaTile(ctx, cpuSlot, api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).NotTo(HaveOccurred())

			uids := map[api.ItemUID]bool{}
			for _, row := range tile.Data.Items {
				for _, item := range row {
					uids[item.UID] = true
				}
			}
			Expect(uids).To(HaveLen(3))
		})
	})

	When("fetching summary tiles", func() {
		It("should return the utilization of the kind", func() {
			tile, err := store.FetchSummaryTile(ctx, cpuSummary, api.NewTileID(api.NewInterval(100, 1000)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.Data.Utilization).To(Equal([]api.UtilPoint{
				{Time: 100, Util: 0.5},
				{Time: 150, Util: 0.5},
				{Time: 200, Util: 0},
				{Time: 1000, Util: 0.5},
			}))
		})

		It("should carry the previous sample into the tile", func() {
			tile, err := store.FetchSummaryTile(ctx, cpuSummary, api.NewTileID(api.NewInterval(300, 900)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.Data.Utilization).To(Equal([]api.UtilPoint{{Time: 300, Util: 0}}))
		})

		It("should average over every slot of the node", func() {
			tile, err := store.FetchSummaryTile(ctx, nodeSummary, api.NewTileID(api.NewInterval(450, 700)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.Data.Utilization).To(Equal([]api.UtilPoint{
				{Time: 450, Util: 0},
				{Time: 500, Util: float32(1) / 3},
				{Time: 600, Util: 0},
			}))
		})

		It("should reject slots", func() {
			_, err := store.FetchSummaryTile(ctx, cpuSlot, api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).To(MatchError(ErrUnknownEntry))
		})
	})

	When("the context is cancelled", func() {
		It("should fail every request", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := store.FetchInfo(cancelled)
			Expect(err).To(MatchError(context.Canceled))
			_, err = store.FetchSlotTile(cancelled, cpuSlot, api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	When("reopening the store", func() {
		It("should serve the same trace", func() {
			info := store.Info()
			Expect(store.Close()).To(Succeed())

			var err error
			store, err = Open(GinkgoLogr, "store", &pebble.Options{FS: fs})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Info()).To(Equal(info))

			tile, err := store.FetchSlotTile(ctx, cpuSlot, api.NewTileID(api.NewInterval(0, 2000)), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tile.Data.Items).To(HaveLen(2))
		})
	})

	When("indexing is cancelled", func() {
		It("should not leave an openable store", func() {
			Expect(store.Close()).To(Succeed())
			store = nil

			trace, err := LoadTrace(".testdata/trace.yaml")
			Expect(err).NotTo(HaveOccurred())

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = Create(cancelled, GinkgoLogr, "other", &pebble.Options{FS: fs}, trace, "other")
			Expect(err).To(MatchError(context.Canceled))

			_, err = Open(GinkgoLogr, "other", &pebble.Options{FS: fs})
			Expect(err).To(HaveOccurred())
		})
	})

	When("wrapping the store for the viewer", func() {
		It("should deliver tiles on fetch", func() {
			wrapper := deferred.NewWrapper(ctx, GinkgoLogr, store)
			wrapper.FetchSlotTile(cpuSlot, api.NewTileID(api.NewInterval(0, 2000)), false)
			wrapper.FetchSummaryTile(api.NewEntryID(0, 0, 0), api.NewTileID(api.NewInterval(0, 2000)), false)

			Expect(wrapper.GetSlotTiles()).To(HaveLen(1))
			Expect(wrapper.GetSummaryTiles()).To(BeEmpty())
			Expect(wrapper.Failed()).To(BeNumerically("==", 1))
		})
	})
})

var _ = Describe("Testing the indexer", func() {
	It("should place overlapping items in separate rows", func() {
		items := []storedItem{
			{Interval: api.NewInterval(50, 150)},
			{Interval: api.NewInterval(0, 100)},
			{Interval: api.NewInterval(100, 200)},
		}
		Expect(assignRows(items)).To(BeNumerically("==", 2))
		Expect(items[0].Interval.Start).To(BeNumerically("==", 0))
		Expect(items[0].Row).To(BeNumerically("==", 0))
		Expect(items[1].Row).To(BeNumerically("==", 1))
		Expect(items[2].Row).To(BeNumerically("==", 0))
	})

	It("should count a slot once while its items overlap", func() {
		slot := &indexedSlot{items: []storedItem{
			{Interval: api.NewInterval(0, 100)},
			{Interval: api.NewInterval(50, 150)},
		}}
		idle := &indexedSlot{}
		Expect(utilization([]*indexedSlot{slot, idle})).To(Equal([]api.UtilPoint{
			{Time: 0, Util: 0.5},
			{Time: 50, Util: 0.5},
			{Time: 100, Util: 0.5},
			{Time: 150, Util: 0},
		}))
	})

	It("should cut a single tile for an empty interval", func() {
		tiles := tileSet(api.NewInterval(10, 10), 2)
		Expect(tiles.Tiles).To(HaveLen(2))
		Expect(tiles.Tiles[1]).To(Equal([]api.TileID{api.NewTileID(api.NewInterval(10, 10))}))
	})

	It("should skip precomputed tiles without levels", func() {
		Expect(tileSet(api.NewInterval(0, 100), 0).Tiles).To(BeEmpty())
	})
})
