// history_test.go
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

package history

import (
	"errors"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Navigation history", func() {
	first := api.NewInterval(0, 100)
	second := api.NewInterval(10, 110)
	third := api.NewInterval(20, 50)

	var history *History

	BeforeEach(func() {
		history = NewHistory()
	})

	It("should merge consecutive pans", func() {
		history.Push(first, OriginPan)
		history.Push(second, OriginPan)
		history.Push(third, OriginZoom)

		Expect(history.Levels()).To(Equal([]api.Interval{second, third}))
		Expect(history.Origins()).To(Equal([]Origin{OriginPan, OriginZoom}))
		Expect(history.Index()).To(Equal(1))
	})

	It("should keep every pan when merging is disabled", func() {
		history.Configure(0, false)
		history.Push(first, OriginPan)
		history.Push(second, OriginPan)
		history.Push(third, OriginZoom)

		Expect(history.Levels()).To(Equal([]api.Interval{first, second, third}))
	})

	It("should not merge a pan into a zoom", func() {
		history.Push(first, OriginZoom)
		history.Push(second, OriginPan)
		Expect(history.Len()).To(Equal(2))
	})

	It("should clamp undo and redo", func() {
		_, ok := history.Undo()
		Expect(ok).To(BeFalse())

		history.Push(first, OriginZoom)
		history.Push(third, OriginZoom)

		_, ok = history.Redo()
		Expect(ok).To(BeFalse())

		interval, ok := history.Undo()
		Expect(ok).To(BeTrue())
		Expect(interval).To(Equal(first))

		_, ok = history.Undo()
		Expect(ok).To(BeFalse())
		Expect(history.Index()).To(Equal(0))

		interval, ok = history.Redo()
		Expect(ok).To(BeTrue())
		Expect(interval).To(Equal(third))
	})

	It("should drop the redo tail on push", func() {
		history.Push(first, OriginZoom)
		history.Push(second, OriginZoom)
		history.Push(third, OriginZoom)
		history.Undo()
		history.Undo()

		history.Push(third, OriginZoom)
		Expect(history.Levels()).To(Equal([]api.Interval{first, third}))
		Expect(history.Index()).To(Equal(1))
	})

	It("should replace the current pan after an undo", func() {
		history.Push(first, OriginZoom)
		history.Push(second, OriginPan)
		history.Push(third, OriginZoom)
		history.Undo()

		history.Push(first, OriginPan)
		Expect(history.Levels()).To(Equal([]api.Interval{first, first}))
		Expect(history.Origins()).To(Equal([]Origin{OriginZoom, OriginPan}))
	})

	It("should forget the oldest views beyond the bound", func() {
		history.Configure(2, true)
		history.Push(first, OriginZoom)
		history.Push(second, OriginZoom)
		history.Push(third, OriginZoom)

		Expect(history.Levels()).To(Equal([]api.Interval{second, third}))
		Expect(history.Index()).To(Equal(1))

		history.Configure(1, true)
		Expect(history.Levels()).To(Equal([]api.Interval{third}))
		Expect(history.Index()).To(Equal(0))
	})
})

var _ = Describe("Navigator", func() {
	total := api.NewInterval(0, 1000)

	var navigator *Navigator

	BeforeEach(func() {
		navigator = NewNavigator()
		navigator.SetTotal(total)
		navigator.ResetZoom()
	})

	It("should start at the total interval", func() {
		Expect(navigator.View()).To(Equal(total))
		Expect(navigator.History().Len()).To(Equal(1))
	})

	DescribeTable("panning the view",
		func(percent int, direction Direction, expected api.Interval) {
			navigator.Pan(percent, direction)
			Expect(navigator.View()).To(Equal(expected))
		},
		Entry("five percent right", 5, Right, api.NewInterval(50, 1050)),
		Entry("one percent left", 1, Left, api.NewInterval(-10, 990)),
		Entry("zero percent", 0, Right, total),
	)

	It("should not record a pan by zero percent", func() {
		navigator.Pan(0, Left)
		Expect(navigator.History().Len()).To(Equal(1))
	})

	It("should zoom in to the central half", func() {
		navigator.ZoomIn()
		Expect(navigator.View()).To(Equal(api.NewInterval(250, 750)))
	})

	It("should zoom out within the total interval", func() {
		navigator.Zoom(api.NewInterval(400, 600))
		navigator.ZoomOut()
		Expect(navigator.View()).To(Equal(api.NewInterval(300, 700)))

		navigator.Zoom(api.NewInterval(0, 200))
		navigator.ZoomOut()
		Expect(navigator.View()).To(Equal(api.NewInterval(0, 300)))
	})

	It("should ignore zooms to the current view", func() {
		navigator.Zoom(total)
		Expect(navigator.History().Len()).To(Equal(1))
	})

	It("should undo and redo navigation", func() {
		navigator.ZoomIn()
		navigator.Pan(10, Right)
		navigator.Pan(10, Right)
		Expect(navigator.View()).To(Equal(api.NewInterval(350, 850)))
		Expect(navigator.History().Len()).To(Equal(3))

		navigator.Undo()
		Expect(navigator.View()).To(Equal(api.NewInterval(250, 750)))
		navigator.Undo()
		Expect(navigator.View()).To(Equal(total))
		navigator.Undo()
		Expect(navigator.View()).To(Equal(total))

		navigator.Redo()
		navigator.Redo()
		navigator.Redo()
		Expect(navigator.View()).To(Equal(api.NewInterval(350, 850)))
	})

	When("selecting an interval as text", func() {
		var selection *SelectState

		BeforeEach(func() {
			navigator.Zoom(api.NewInterval(100, 900))
			selection = navigator.Selection()
		})

		It("should fill the buffers from the view", func() {
			Expect(selection.StartBuffer).To(Equal("100 ns"))
			Expect(selection.StopBuffer).To(Equal("900 ns"))
		})

		It("should ignore unchanged buffers", func() {
			Expect(selection.CommitStart()).To(Succeed())
			Expect(selection.CommitStop()).To(Succeed())
			Expect(navigator.History().Len()).To(Equal(2))
		})

		It("should zoom to a valid start", func() {
			selection.StartBuffer = "200ns"
			Expect(selection.CommitStart()).To(Succeed())
			Expect(navigator.View()).To(Equal(api.NewInterval(200, 900)))
			Expect(selection.StartBuffer).To(Equal("200 ns"))
		})

		It("should zoom to a valid stop", func() {
			selection.StopBuffer = "0.5 us"
			Expect(selection.CommitStop()).To(Succeed())
			Expect(navigator.View()).To(Equal(api.NewInterval(100, 500)))
		})

		DescribeTable("rejecting a start",
			func(buffer string, expected error) {
				selection.StartBuffer = buffer
				err := selection.CommitStart()
				Expect(errors.Is(err, expected)).To(BeTrue())
				Expect(selection.StartError).To(Equal(err))
				Expect(navigator.View()).To(Equal(api.NewInterval(100, 900)))
			},
			Entry("after the stop of the view", "950 ns", ErrStartAfterStop),
			Entry("without a unit", "200", api.ErrNoUnit),
			Entry("with an unknown unit", "200 min", api.ErrInvalidUnit),
			Entry("with an invalid value", "a ns", api.ErrInvalidValue),
		)

		It("should reject a start after the end of all traces", func() {
			navigator.Zoom(api.NewInterval(100, 2000))
			selection.StartBuffer = "1.500 us"
			Expect(selection.CommitStart()).To(MatchError(ErrStartAfterEnd))
		})

		It("should reject a stop before the start of the view", func() {
			selection.StopBuffer = "50 ns"
			Expect(selection.CommitStop()).To(MatchError(ErrStopBeforeStart))
			Expect(selection.StopError).To(MatchError(ErrStopBeforeStart))
		})

		It("should clear errors after navigation", func() {
			selection.StopBuffer = "50 ns"
			Expect(selection.CommitStop()).NotTo(Succeed())

			navigator.Undo()
			Expect(selection.StopError).To(BeNil())
			Expect(selection.StopBuffer).To(Equal("1.000 us"))
		})
	})
})
