// resolver.go
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

// Package tiles selects the tiles that cover a requested interval at the
// level of detail that best matches the size of the request.
package tiles

import (
	"math"
	"slices"

	"github.com/apple/foundationdb/fdbprofviewer/api"
)

// Resolver maps requested intervals to tile IDs. The result of the last
// request is remembered, so asking for the same interval on every frame is
// free. A Resolver is not safe for concurrent use.
type Resolver struct {
	tileSet api.TileSet

	hasLast  bool
	last     api.Interval
	lastList []api.TileID

	selections uint64
}

// NewResolver returns a resolver for the given tile set.
func NewResolver(tileSet api.TileSet) *Resolver {
	return &Resolver{tileSet: tileSet}
}

// Selections returns how many requests were not answered from the memo.
func (resolver *Resolver) Selections() uint64 {
	return resolver.selections
}

// RequestTiles returns the tiles overlapping interval, in ascending time
// order. Callers must not modify the returned slice.
func (resolver *Resolver) RequestTiles(interval api.Interval) []api.TileID {
	if resolver.hasLast && resolver.last == interval {
		return resolver.lastList
	}

	resolver.selections++
	resolver.hasLast = true
	resolver.last = interval
	resolver.lastList = resolver.selectTiles(interval)
	return resolver.lastList
}

func (resolver *Resolver) selectTiles(interval api.Interval) []api.TileID {
	level := chooseLevel(resolver.tileSet, interval.Duration())
	if level == nil {
		// Traces without precomputed tiles compute the requested interval
		// as a single tile.
		return []api.TileID{api.NewTileID(interval)}
	}

	result := make([]api.TileID, 0, len(level))
	for _, tile := range level {
		if interval.Overlaps(tile.Interval) {
			result = append(result, tile)
		}
	}
	slices.SortFunc(result, api.TileID.Compare)
	return result
}

// chooseLevel returns the level whose tile duration is closest to the
// requested duration by ratio. The first level wins ties. Levels where
// either duration is zero always tie. It returns nil when there are no
// usable levels.
func chooseLevel(tileSet api.TileSet, requestDuration int64) []api.TileID {
	var chosen []api.TileID
	var bestRatio float64
	for _, level := range tileSet.Tiles {
		if len(level) == 0 {
			continue
		}
		if chosen == nil {
			chosen = level
			bestRatio = ratio(level[0].Duration(), requestDuration)
			continue
		}

		current := ratio(level[0].Duration(), requestDuration)
		if current < bestRatio {
			chosen = level
			bestRatio = current
		}
	}

	return chosen
}

// ratio returns max(a, b) / min(a, b). A zero on either side can't be
// compared and returns +Inf, so that level never beats an earlier one.
func ratio(a int64, b int64) float64 {
	if a <= 0 || b <= 0 {
		return math.Inf(1)
	}
	if a < b {
		return float64(b) / float64(a)
	}
	return float64(a) / float64(b)
}
