// observer.go
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
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
)

// Observer receives the events of a viewer, for example to export them as
// metrics.
type Observer interface {
	deferred.RequestObserver

	// TilesDropped is called with the number of drained tiles that no entry
	// was waiting for.
	TilesDropped(kind deferred.RequestKind, count int)

	// SearchResults is called after every search with the size of the
	// result set of the window.
	SearchResults(window uint64, count int)
}

type noopObserver struct{}

func (noopObserver) RequestStarted(deferred.RequestKind)        {}
func (noopObserver) RequestsFinished(deferred.RequestKind, int) {}
func (noopObserver) TilesDropped(deferred.RequestKind, int)     {}
func (noopObserver) SearchResults(uint64, int)                  {}
