// faults.go
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

package server

import (
	"fmt"
	"sort"
	"sync"

	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
)

// Fault makes the server misbehave on one endpoint. Clients are responsible
// for ordering fault updates with their tile requests if they need
// predictable results.
type Fault struct {
	// Kind is the request kind whose endpoint is affected.
	Kind deferred.RequestKind `json:"kind"`
	// Fail answers requests with a server error.
	Fail bool `json:"fail"`
	// DelayMilliseconds holds every answer back for this long.
	DelayMilliseconds int64 `json:"delay_ms"`
}

// FaultInjectionRequest is the body of a fault update.
type FaultInjectionRequest struct {
	Faults []Fault `json:"faults"`
}

// FaultInjectionResponse lists the faults in effect after an update.
type FaultInjectionResponse struct {
	Faults []Fault `json:"faults"`
}

// faults maps each request kind to its fault.
type faults struct {
	lock   sync.RWMutex
	byKind map[deferred.RequestKind]Fault
}

func newFaults() *faults {
	result := &faults{byKind: map[deferred.RequestKind]Fault{}}
	for _, kind := range deferred.RequestKinds {
		result.byKind[kind] = Fault{Kind: kind}
	}
	return result
}

func (f *faults) get(kind deferred.RequestKind) Fault {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.byKind[kind]
}

// update applies all faults or none of them.
func (f *faults) update(updates []Fault) ([]Fault, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, fault := range updates {
		if _, ok := f.byKind[fault.Kind]; !ok {
			return nil, fmt.Errorf("unknown request kind %q", fault.Kind)
		}
		if fault.DelayMilliseconds < 0 {
			return nil, fmt.Errorf("negative delay for %q", fault.Kind)
		}
	}
	for _, fault := range updates {
		f.byKind[fault.Kind] = fault
	}

	return f.listLocked(), nil
}

func (f *faults) list() []Fault {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.listLocked()
}

func (f *faults) listLocked() []Fault {
	result := make([]Fault, 0, len(f.byKind))
	for _, fault := range f.byKind {
		result = append(result, fault)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}
