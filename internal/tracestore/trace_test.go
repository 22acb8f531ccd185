// trace_test.go
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
	"github.com/apple/foundationdb/fdbprofviewer/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Testing the trace format", func() {
	When("loading the test trace", func() {
		var trace *Trace

		BeforeEach(func() {
			var err error
			trace, err = LoadTrace(".testdata/trace.yaml")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should read every item", func() {
			Expect(trace.Name).To(Equal("test"))
			Expect(trace.Nodes).To(HaveLen(1))
			Expect(trace.Nodes[0].Kinds).To(HaveLen(2))
			Expect(trace.Nodes[0].Kinds[0].Slots[0].Items).To(HaveLen(3))
			Expect(trace.tileLevels()).To(Equal(2))
		})

		It("should parse timestamps with units", func() {
			item := trace.Nodes[0].Kinds[0].Slots[1].Items[0]
			Expect(item.Start).To(Equal(Time(1000)))
			Expect(item.Stop).To(Equal(Time(2000)))
		})

		It("should cover all items", func() {
			Expect(trace.Interval()).To(Equal(api.NewInterval(0, 2000)))
		})

		It("should list the field names in order", func() {
			Expect(trace.fieldNames()).To(Equal([]string{"req", "tags"}))
		})
	})

	When("parsing JSON", func() {
		It("should accept the same structure", func() {
			trace, err := ParseTrace([]byte(`{"name":"j","nodes":[{"name":"n","kinds":[{"name":"k","slots":[{"name":"s","items":[{"title":"t","start":1,"stop":2}]}]}]}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(trace.Interval()).To(Equal(api.NewInterval(1, 2)))
			Expect(trace.tileLevels()).To(Equal(DefaultTileLevels))
		})
	})

	DescribeTable("rejecting invalid traces",
		func(data string, expected string) {
			_, err := ParseTrace([]byte(data))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(expected))
		},
		Entry("without items",
			`{"name":"empty","nodes":[]}`,
			ErrEmptyTrace.Error()),
		Entry("with an item that stops before it starts",
			`{"nodes":[{"name":"n","kinds":[{"name":"k","slots":[{"name":"s","items":[{"title":"t","start":5,"stop":2}]}]}]}]}`,
			"stops before it starts"),
		Entry("with the reserved field name",
			`{"nodes":[{"name":"n","kinds":[{"name":"k","slots":[{"name":"s","items":[{"title":"t","start":1,"stop":2,"fields":{"Title":"x"}}]}]}]}]}`,
			"reserved field name"),
		Entry("with a nested object field",
			`{"nodes":[{"name":"n","kinds":[{"name":"k","slots":[{"name":"s","items":[{"title":"t","start":1,"stop":2,"fields":{"f":{"a":1}}}]}]}]}]}`,
			"unsupported field value"),
		Entry("with too many tile levels",
			`{"tileLevels":17,"nodes":[{"name":"n","kinds":[{"name":"k","slots":[{"name":"s","items":[{"title":"t","start":1,"stop":2}]}]}]}]}`,
			"tileLevels must be between"),
		Entry("with a timestamp without unit",
			`{"nodes":[{"name":"n","kinds":[{"name":"k","slots":[{"name":"s","items":[{"title":"t","start":"1.5","stop":2}]}]}]}]}`,
			"invalid timestamp"),
	)

	DescribeTable("converting field values",
		func(value interface{}, expected api.Field) {
			field, err := convertField(value)
			Expect(err).NotTo(HaveOccurred())
			Expect(field).To(Equal(expected))
		},
		Entry("nil", nil, api.EmptyField()),
		Entry("a string", "x", api.StringField("x")),
		Entry("an int", 3, api.I64Field(3)),
		Entry("a large unsigned int", uint64(1<<63), api.U64Field(1<<63)),
		Entry("a list", []interface{}{"x", 1}, api.VecField(api.StringField("x"), api.I64Field(1))),
	)

	When("picking colors", func() {
		It("should keep explicit colors", func() {
			Expect(itemColor(Item{Title: "x", Color: &[4]uint8{1, 2, 3, 4}})).To(Equal(api.Color{1, 2, 3, 4}))
		})

		It("should give the same title the same color", func() {
			Expect(itemColor(Item{Title: "x"})).To(Equal(titleColor("x")))
			Expect(kindColor(Kind{Name: "x"})).To(Equal(titleColor("x")))
			Expect(palette).To(ContainElement(titleColor("anything")))
		})
	})
})
