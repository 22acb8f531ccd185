// watcher_test.go
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
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingApplier struct {
	lock           sync.Mutex
	configurations []*api.ViewerConfiguration
}

func (applier *recordingApplier) ApplyConfiguration(configuration *api.ViewerConfiguration) {
	applier.lock.Lock()
	defer applier.lock.Unlock()
	applier.configurations = append(applier.configurations, configuration)
}

func (applier *recordingApplier) applied() []*api.ViewerConfiguration {
	applier.lock.Lock()
	defer applier.lock.Unlock()
	return append([]*api.ViewerConfiguration(nil), applier.configurations...)
}

var _ = Describe("Testing the configuration watcher", func() {
	var configFile string
	var applier *recordingApplier
	var viewerMetrics *metrics
	var watcher *ConfigurationWatcher

	writeConfiguration := func(content string) {
		Expect(os.WriteFile(configFile, []byte(content), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		configFile = filepath.Join(GinkgoT().TempDir(), "viewer.json")
		applier = &recordingApplier{}
		viewerMetrics = registerMetrics(prometheus.NewRegistry())
		watcher = NewConfigurationWatcher(GinkgoLogr, configFile, applier, viewerMetrics)
	})

	When("loading a valid configuration", func() {
		BeforeEach(func() {
			writeConfiguration(`{"search": {"query": "beta"}, "kindFilter": ["cpu"]}`)
			watcher.LoadConfiguration()
		})

		It("should apply it", func() {
			applied := applier.applied()
			Expect(applied).To(HaveLen(1))
			Expect(applied[0].Search.Query).To(Equal("beta"))
			Expect(applied[0].KindFilter).To(ConsistOf("cpu"))
			Expect(watcher.ActiveConfiguration).To(Equal(applied[0]))
			Expect(watcher.LastConfigurationTime).NotTo(BeZero())
			Expect(testutil.ToFloat64(viewerMetrics.configurationChangeCount)).To(BeNumerically("==", 1))
		})

		When("the same configuration is loaded again", func() {
			BeforeEach(func() {
				writeConfiguration(`{"kindFilter": ["cpu"], "search": {"query": "beta"}}`)
				watcher.LoadConfiguration()
			})

			It("should skip it", func() {
				Expect(applier.applied()).To(HaveLen(1))
				Expect(testutil.ToFloat64(viewerMetrics.configurationChangeCount)).To(BeNumerically("==", 1))
			})
		})

		When("a changed configuration is loaded", func() {
			BeforeEach(func() {
				writeConfiguration(`{"search": {"query": "gamma"}}`)
				watcher.LoadConfiguration()
			})

			It("should apply it", func() {
				applied := applier.applied()
				Expect(applied).To(HaveLen(2))
				Expect(applied[1].Search.Query).To(Equal("gamma"))
				Expect(applied[1].KindFilter).To(BeEmpty())
			})
		})

		When("an invalid configuration is loaded", func() {
			BeforeEach(func() {
				writeConfiguration(`{"minNode": 3, "maxNode": 1}`)
				watcher.LoadConfiguration()
			})

			It("should keep the active configuration", func() {
				Expect(applier.applied()).To(HaveLen(1))
				Expect(watcher.ActiveConfiguration.Search.Query).To(Equal("beta"))
			})
		})

		When("the file is not valid JSON", func() {
			BeforeEach(func() {
				writeConfiguration(`{"search":`)
				watcher.LoadConfiguration()
			})

			It("should keep the active configuration", func() {
				Expect(applier.applied()).To(HaveLen(1))
			})
		})
	})

	When("the file does not exist", func() {
		It("should not apply anything", func() {
			watcher.LoadConfiguration()
			Expect(applier.applied()).To(BeEmpty())
			Expect(watcher.ActiveConfiguration).To(BeNil())
		})

		It("should fail to watch", func() {
			Expect(watcher.Watch(context.Background())).NotTo(Succeed())
		})
	})

	When("watching the file", func() {
		var cancel context.CancelFunc
		var done chan error

		BeforeEach(func() {
			writeConfiguration(`{"search": {"query": "beta"}}`)

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- watcher.Watch(ctx)
			}()
			Eventually(func() int { return len(applier.applied()) }).Should(Equal(1))
		})

		AfterEach(func() {
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("should apply changes written to the file", func() {
			writeConfiguration(`{"search": {"query": "delta"}}`)
			Eventually(func() string {
				applied := applier.applied()
				return applied[len(applied)-1].Search.Query
			}).Should(Equal("delta"))
		})
	})
})
