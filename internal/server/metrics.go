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

package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// endpointLabel represents the endpoint label for the prometheus metrics.
	endpointLabel = "endpoint"
	// codeLabel represents the status code label for the prometheus metrics.
	codeLabel = "code"
	// prometheusNamespace is the prometheus namespace for the metrics.
	prometheusNamespace = "fdbprofviewer_server"
	// requestCountMetricName represents the request_count metric.
	requestCountMetricName = "request_count"
	// requestDurationMetricName represents the request_duration_seconds metric.
	requestDurationMetricName = "request_duration_seconds"
	// injectedFaultCountMetricName represents the injected_fault_count metric.
	injectedFaultCountMetricName = "injected_fault_count"
)

// metrics represents the custom prometheus metrics for the tile server.
type metrics struct {
	// requestCount represents the total number of answered requests.
	requestCount *prometheus.CounterVec
	// requestDuration represents the time spent answering requests.
	requestDuration *prometheus.HistogramVec
	// injectedFaultCount represents the number of requests failed on purpose.
	injectedFaultCount *prometheus.CounterVec
}

// registerRequest records an answered request.
func (metrics *metrics) registerRequest(endpoint string, code int, duration time.Duration) {
	metrics.requestCount.With(prometheus.Labels{endpointLabel: endpoint, codeLabel: strconv.Itoa(code)}).Inc()
	metrics.requestDuration.With(prometheus.Labels{endpointLabel: endpoint}).Observe(duration.Seconds())
}

// registerFault records a request failed by fault injection.
func (metrics *metrics) registerFault(endpoint string) {
	metrics.injectedFaultCount.With(prometheus.Labels{endpointLabel: endpoint}).Inc()
}

// registerMetrics will register the server metrics and returns a metrics struct to update the current metrics.
func registerMetrics(reg prometheus.Registerer) *metrics {
	serverMetrics := &metrics{
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      requestCountMetricName,
			Help:      "Number of answered requests by endpoint and status code.",
		}, []string{endpointLabel, codeLabel}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prometheusNamespace,
			Name:      requestDurationMetricName,
			Help:      "Time spent answering requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{endpointLabel}),
		injectedFaultCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      injectedFaultCountMetricName,
			Help:      "Number of requests failed by fault injection.",
		}, []string{endpointLabel}),
	}

	reg.MustRegister(serverMetrics.requestCount)
	reg.MustRegister(serverMetrics.requestDuration)
	reg.MustRegister(serverMetrics.injectedFaultCount)

	return serverMetrics
}
