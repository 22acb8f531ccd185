// http.go
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

package deferred

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// RequestIDHeader carries a unique ID for every request sent to a tile
// server.
const RequestIDHeader = "X-Request-ID"

// Endpoint returns the path a tile server serves a request kind on.
func Endpoint(kind RequestKind) string {
	return "/" + string(kind)
}

// HTTPSource fetches trace data from a tile server. Every fetch is sent on
// its own goroutine; completed results are queued under a lock and handed
// out by the drain calls. Requests that fail are logged and never complete.
type HTTPSource struct {
	ctx     context.Context
	baseURL string
	client  *http.Client
	logger  logr.Logger

	// inflight tracks the goroutines that still wait for a response.
	inflight sync.WaitGroup

	// lock guards the result queues below.
	lock          sync.Mutex
	descriptions  []api.DataSourceDescription
	infos         []api.DataSourceInfo
	summaryTiles  []api.SummaryTile
	slotTiles     []api.SlotTile
	slotMetaTiles []api.SlotMetaTile
	failed        uint64
	failedByKind  map[RequestKind]uint64
}

var _ DeferredDataSource = &HTTPSource{}
var _ FailureReporter = &HTTPSource{}

// NewHTTPSource returns a data source for the tile server at baseURL. A nil
// client uses http.DefaultClient. Cancelling ctx aborts requests in flight.
func NewHTTPSource(ctx context.Context, logger logr.Logger, baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPSource{
		ctx:          ctx,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       client,
		logger:       logger.WithValues("area", "http", "server", baseURL),
		failedByKind: map[RequestKind]uint64{},
	}
}

// Wait blocks until every request sent so far has completed or failed.
func (source *HTTPSource) Wait() {
	source.inflight.Wait()
}

// Failed returns the number of requests that failed.
func (source *HTTPSource) Failed() uint64 {
	source.lock.Lock()
	defer source.lock.Unlock()
	return source.failed
}

// FailedRequests implements FailureReporter.
func (source *HTTPSource) FailedRequests(kind RequestKind) uint64 {
	source.lock.Lock()
	defer source.lock.Unlock()
	return source.failedByKind[kind]
}

// post sends body to the endpoint of kind and hands the response body to
// deliver, which runs with the queue lock held.
func (source *HTTPSource) post(kind RequestKind, body interface{}, deliver func(data []byte) error) {
	requestID := uuid.NewString()
	logger := source.logger.WithValues("kind", kind, "requestID", requestID)

	source.inflight.Add(1)
	go func() {
		defer source.inflight.Done()

		data, err := source.roundTrip(kind, requestID, body)
		if err == nil {
			source.lock.Lock()
			err = deliver(data)
			source.lock.Unlock()
		}
		if err != nil {
			source.lock.Lock()
			source.failed++
			source.failedByKind[kind]++
			source.lock.Unlock()
			logger.Error(err, "Error fetching trace data")
			return
		}
		logger.V(1).Info("Fetched trace data", "bytes", len(data))
	}()
}

func (source *HTTPSource) roundTrip(kind RequestKind, requestID string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(source.ctx, http.MethodPost, source.baseURL+Endpoint(kind), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set(RequestIDHeader, requestID)

	response, err := source.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned %s: %s", response.Status, strings.TrimSpace(string(data)))
	}

	return data, nil
}

// enqueue decodes data and appends it to queue.
func enqueue[T any](queue *[]T, data []byte) error {
	var result T
	err := json.Unmarshal(data, &result)
	if err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	*queue = append(*queue, result)
	return nil
}

// drain swaps out queue under the source lock.
func drain[T any](source *HTTPSource, queue *[]T) []T {
	source.lock.Lock()
	defer source.lock.Unlock()
	result := *queue
	*queue = nil
	return result
}

// checkTile rejects results that do not echo the requested IDs.
func checkTile(request api.TileRequest, entryID api.EntryID, tileID api.TileID) error {
	if !request.EntryID.Equal(entryID) || request.TileID != tileID {
		return fmt.Errorf("tile server answered %s %s for request %s %s", entryID, tileID, request.EntryID, request.TileID)
	}
	return nil
}

// FetchDescription implements DeferredDataSource.
func (source *HTTPSource) FetchDescription() {
	source.post(RequestKindDescription, struct{}{}, func(data []byte) error {
		return enqueue(&source.descriptions, data)
	})
}

// GetDescriptions implements DeferredDataSource.
func (source *HTTPSource) GetDescriptions() []api.DataSourceDescription {
	return drain(source, &source.descriptions)
}

// FetchInfo implements DeferredDataSource.
func (source *HTTPSource) FetchInfo() {
	source.post(RequestKindInfo, struct{}{}, func(data []byte) error {
		return enqueue(&source.infos, data)
	})
}

// GetInfos implements DeferredDataSource.
func (source *HTTPSource) GetInfos() []api.DataSourceInfo {
	return drain(source, &source.infos)
}

// FetchSummaryTile implements DeferredDataSource.
func (source *HTTPSource) FetchSummaryTile(entryID api.EntryID, tileID api.TileID, full bool) {
	request := api.TileRequest{EntryID: entryID, TileID: tileID, Full: full}
	source.post(RequestKindSummaryTile, request, func(data []byte) error {
		var tile api.SummaryTile
		err := json.Unmarshal(data, &tile)
		if err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
		err = checkTile(request, tile.EntryID, tile.TileID)
		if err != nil {
			return err
		}
		source.summaryTiles = append(source.summaryTiles, tile)
		return nil
	})
}

// GetSummaryTiles implements DeferredDataSource.
func (source *HTTPSource) GetSummaryTiles() []api.SummaryTile {
	return drain(source, &source.summaryTiles)
}

// FetchSlotTile implements DeferredDataSource.
func (source *HTTPSource) FetchSlotTile(entryID api.EntryID, tileID api.TileID, full bool) {
	request := api.TileRequest{EntryID: entryID, TileID: tileID, Full: full}
	source.post(RequestKindSlotTile, request, func(data []byte) error {
		var tile api.SlotTile
		err := json.Unmarshal(data, &tile)
		if err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
		err = checkTile(request, tile.EntryID, tile.TileID)
		if err != nil {
			return err
		}
		source.slotTiles = append(source.slotTiles, tile)
		return nil
	})
}

// GetSlotTiles implements DeferredDataSource.
func (source *HTTPSource) GetSlotTiles() []api.SlotTile {
	return drain(source, &source.slotTiles)
}

// FetchSlotMetaTile implements DeferredDataSource.
func (source *HTTPSource) FetchSlotMetaTile(entryID api.EntryID, tileID api.TileID, full bool) {
	request := api.TileRequest{EntryID: entryID, TileID: tileID, Full: full}
	source.post(RequestKindSlotMetaTile, request, func(data []byte) error {
		var tile api.SlotMetaTile
		err := json.Unmarshal(data, &tile)
		if err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
		err = checkTile(request, tile.EntryID, tile.TileID)
		if err != nil {
			return err
		}
		source.slotMetaTiles = append(source.slotMetaTiles, tile)
		return nil
	})
}

// GetSlotMetaTiles implements DeferredDataSource.
func (source *HTTPSource) GetSlotMetaTiles() []api.SlotMetaTile {
	return drain(source, &source.slotMetaTiles)
}
