// metrics.go
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

package main

import (
	"strconv"

	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/viewer"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// kindLabel represents the request kind label for the prometheus metrics.
	kindLabel = "kind"
	// windowLabel represents the window label for the prometheus metrics.
	windowLabel = "window"
	// prometheusNamespace is the prometheus namespace for the metrics.
	prometheusNamespace = "fdbprofviewer"
	// outstandingRequestsMetricName represents the outstanding_requests metric.
	outstandingRequestsMetricName = "outstanding_requests"
	// fetchedCountMetricName represents the fetched_count metric.
	fetchedCountMetricName = "fetched_count"
	// drainedCountMetricName represents the drained_count metric.
	drainedCountMetricName = "drained_count"
	// droppedTileCountMetricName represents the dropped_tile_count metric.
	droppedTileCountMetricName = "dropped_tile_count"
	// searchResultsMetricName represents the search_results metric.
	searchResultsMetricName = "search_results"
	// configurationChangeCountMetricName represents the configuration_change_count metric.
	configurationChangeCountMetricName = "configuration_change_count"
	// lastAppliedConfigurationTimestampMetricName represents the last_applied_configuration_timestamp metric.
	lastAppliedConfigurationTimestampMetricName = "last_applied_configuration_timestamp"
)

// metrics represents the custom prometheus metrics for the viewer. It is
// the viewer observer.
type metrics struct {
	// outstandingRequests represents the number of requests that were not drained yet.
	outstandingRequests prometheus.Gauge
	// fetchedCount represents the total number of requests by kind.
	fetchedCount *prometheus.CounterVec
	// drainedCount represents the total number of drained results by kind.
	drainedCount *prometheus.CounterVec
	// droppedTileCount represents the total number of tiles no entry was waiting for.
	droppedTileCount *prometheus.CounterVec
	// searchResults represents the size of the last result set by window.
	searchResults *prometheus.GaugeVec
	// configurationChangeCount represents the total number of observed configuration changes.
	configurationChangeCount prometheus.Counter
	// lastAppliedConfigurationTimestamp provides a unix timestamp when the last configuration was applied.
	lastAppliedConfigurationTimestamp prometheus.Gauge
}

var _ viewer.Observer = &metrics{}

// RequestStarted implements deferred.RequestObserver.
func (metrics *metrics) RequestStarted(kind deferred.RequestKind) {
	metrics.outstandingRequests.Inc()
	metrics.fetchedCount.With(prometheus.Labels{kindLabel: string(kind)}).Inc()
}

// RequestsFinished implements deferred.RequestObserver.
func (metrics *metrics) RequestsFinished(kind deferred.RequestKind, count int) {
	if count == 0 {
		return
	}
	metrics.outstandingRequests.Sub(float64(count))
	metrics.drainedCount.With(prometheus.Labels{kindLabel: string(kind)}).Add(float64(count))
}

// TilesDropped implements viewer.Observer.
func (metrics *metrics) TilesDropped(kind deferred.RequestKind, count int) {
	metrics.droppedTileCount.With(prometheus.Labels{kindLabel: string(kind)}).Add(float64(count))
}

// SearchResults implements viewer.Observer.
func (metrics *metrics) SearchResults(window uint64, count int) {
	metrics.searchResults.With(prometheus.Labels{windowLabel: strconv.FormatUint(window, 10)}).Set(float64(count))
}

// registerConfigurationChange will update the current prometheus metrics related to configuration changes.
func (metrics *metrics) registerConfigurationChange() {
	metrics.lastAppliedConfigurationTimestamp.SetToCurrentTime()
	metrics.configurationChangeCount.Inc()
}

// registerMetrics will register the viewer metrics and returns a metrics struct to update the current metrics.
func registerMetrics(reg prometheus.Registerer) *metrics {
	viewerMetrics := &metrics{
		outstandingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prometheusNamespace,
			Name:      outstandingRequestsMetricName,
			Help:      "Number of requests that were fetched but not drained yet.",
		}),
		fetchedCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      fetchedCountMetricName,
			Help:      "Number of requests by kind.",
		}, []string{kindLabel}),
		drainedCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      drainedCountMetricName,
			Help:      "Number of drained results by kind.",
		}, []string{kindLabel}),
		droppedTileCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      droppedTileCountMetricName,
			Help:      "Number of tiles that arrived after their entry stopped waiting for them.",
		}, []string{kindLabel}),
		searchResults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: prometheusNamespace,
			Name:      searchResultsMetricName,
			Help:      "Number of search results by window.",
		}, []string{windowLabel}),
		configurationChangeCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      configurationChangeCountMetricName,
			Help:      "Number of observed configuration changes.",
		}),
		lastAppliedConfigurationTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prometheusNamespace,
			Name:      lastAppliedConfigurationTimestampMetricName,
			Help:      "Timestamp when the last time the configuration was applied.",
		}),
	}

	reg.MustRegister(viewerMetrics.outstandingRequests)
	reg.MustRegister(viewerMetrics.fetchedCount)
	reg.MustRegister(viewerMetrics.drainedCount)
	reg.MustRegister(viewerMetrics.droppedTileCount)
	reg.MustRegister(viewerMetrics.searchResults)
	reg.MustRegister(viewerMetrics.configurationChangeCount)
	reg.MustRegister(viewerMetrics.lastAppliedConfigurationTimestamp)

	return viewerMetrics
}
