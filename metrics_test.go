// metrics_test.go
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
	"strings"

	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/pointer"
)

var _ = Describe("Testing viewer metrics", func() {
	var registry *prometheus.Registry
	var viewerMetrics *metrics

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
		viewerMetrics = registerMetrics(registry)
	})

	It("shouldn't throw any error", func() {
		Expect(viewerMetrics).NotTo(BeNil())
	})

	When("no metrics are added", func() {
		It("only the unlabeled metrics should be setup", func() {
			metrics, err := registry.Gather()
			Expect(err).NotTo(HaveOccurred())
			Expect(metrics).To(HaveLen(3))
		})
	})

	When("requests are started and finished", func() {
		BeforeEach(func() {
			viewerMetrics.RequestStarted(deferred.RequestKindSlotTile)
			viewerMetrics.RequestStarted(deferred.RequestKindSlotTile)
			viewerMetrics.RequestStarted(deferred.RequestKindInfo)
			viewerMetrics.RequestsFinished(deferred.RequestKindSlotTile, 2)
			viewerMetrics.RequestsFinished(deferred.RequestKindInfo, 0)
		})

		It("should update the metrics", func() {
			metrics, err := registry.Gather()
			Expect(err).NotTo(HaveOccurred())
			Expect(metrics).To(HaveLen(5))

			for _, metric := range metrics {
				name := pointer.StringDeref(metric.Name, "")
				if strings.HasSuffix(name, outstandingRequestsMetricName) {
					Expect(*metric.Metric[0].Gauge.Value).To(BeNumerically("==", 1))
					continue
				}
				if strings.HasSuffix(name, fetchedCountMetricName) {
					Expect(metric.Metric).To(HaveLen(2))
					for _, kindMetric := range metric.Metric {
						Expect(kindMetric.Label).To(HaveLen(1))
						Expect(*kindMetric.Label[0].Name).To(Equal(kindLabel))
						expected := 1
						if *kindMetric.Label[0].Value == string(deferred.RequestKindSlotTile) {
							expected = 2
						}
						Expect(*kindMetric.Counter.Value).To(BeNumerically("==", expected))
					}
					continue
				}
				if strings.HasSuffix(name, drainedCountMetricName) {
					Expect(metric.Metric).To(HaveLen(1))
					Expect(*metric.Metric[0].Label[0].Value).To(Equal(string(deferred.RequestKindSlotTile)))
					Expect(*metric.Metric[0].Counter.Value).To(BeNumerically("==", 2))
					continue
				}
			}
		})
	})

	When("tiles are dropped and search results are reported", func() {
		BeforeEach(func() {
			viewerMetrics.TilesDropped(deferred.RequestKindSummaryTile, 3)
			viewerMetrics.SearchResults(0, 10)
			viewerMetrics.SearchResults(0, 4)
		})

		It("should update the metrics", func() {
			metrics, err := registry.Gather()
			Expect(err).NotTo(HaveOccurred())
			Expect(metrics).To(HaveLen(5))

			for _, metric := range metrics {
				Expect(metric.Metric).To(HaveLen(1))
				name := pointer.StringDeref(metric.Name, "")
				if strings.HasSuffix(name, droppedTileCountMetricName) {
					Expect(*metric.Metric[0].Counter.Value).To(BeNumerically("==", 3))
					Expect(*metric.Metric[0].Label[0].Value).To(Equal(string(deferred.RequestKindSummaryTile)))
					continue
				}
				if strings.HasSuffix(name, searchResultsMetricName) {
					Expect(*metric.Metric[0].Gauge.Value).To(BeNumerically("==", 4))
					Expect(*metric.Metric[0].Label[0].Name).To(Equal(windowLabel))
					Expect(*metric.Metric[0].Label[0].Value).To(Equal("0"))
					continue
				}
			}
		})
	})

	When("a configuration change is registered", func() {
		BeforeEach(func() {
			viewerMetrics.registerConfigurationChange()
			viewerMetrics.registerConfigurationChange()
		})

		It("should update the metrics", func() {
			metrics, err := registry.Gather()
			Expect(err).NotTo(HaveOccurred())
			Expect(metrics).To(HaveLen(3))

			for _, metric := range metrics {
				name := pointer.StringDeref(metric.Name, "")
				if strings.HasSuffix(name, configurationChangeCountMetricName) {
					Expect(*metric.Metric[0].Counter.Value).To(BeNumerically("==", 2))
					continue
				}
				if strings.HasSuffix(name, lastAppliedConfigurationTimestampMetricName) {
					Expect(*metric.Metric[0].Gauge.Value).To(BeNumerically(">", 0))
					continue
				}
			}
		})
	})
})
