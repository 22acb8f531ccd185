// model_test.go
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

package tui

import (
	"context"
	"time"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/tracestore"
	"github.com/apple/foundationdb/fdbprofviewer/internal/viewer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testTrace() *tracestore.Trace {
	items := func(titles ...string) []tracestore.Item {
		var result []tracestore.Item
		for index, title := range titles {
			start := tracestore.Time(index * 100)
			result = append(result, tracestore.Item{Title: title, Start: start, Stop: start + 80})
		}
		return result
	}

	return &tracestore.Trace{
		Name: "tui",
		Nodes: []tracestore.Node{
			{
				Name: "n0",
				Kinds: []tracestore.Kind{
					{Name: "cpu", Slots: []tracestore.SlotTimeline{{Name: "0", Items: items("alpha", "beta", "gamma")}}},
					{Name: "gpu", Slots: []tracestore.SlotTimeline{{Name: "0", Items: items("delta")}}},
				},
			},
		},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var updated tea.Model
		updated, cmd = m.Update(msg)
		m = updated.(Model)
	}
	return m, cmd
}

func tick(m Model, count int) Model {
	for i := 0; i < count; i++ {
		m, _ = send(m, tickMsg(time.Now()))
	}
	return m
}

var _ = Describe("Testing the terminal model", func() {
	var store *tracestore.Store
	var v *viewer.Viewer
	var m Model

	BeforeEach(func() {
		var err error
		store, err = tracestore.Create(context.Background(), GinkgoLogr, "store", &pebble.Options{FS: vfs.NewMem()}, testTrace(), "memory")
		Expect(err).NotTo(HaveOccurred())

		v = viewer.New(GinkgoLogr, nil)
		v.AddDataSource(deferred.NewWrapper(context.Background(), GinkgoLogr, store))
		m = New(v, GinkgoLogr, time.Millisecond)
		m, _ = send(m, tea.WindowSizeMsg{Width: 100, Height: 30})
		m = tick(m, 3)
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("should open the trace on the first ticks", func() {
		Expect(v.Windows()).To(HaveLen(1))
		Expect(v.Navigator().View()).To(Equal(api.NewInterval(0, 280)))
		Expect(v.Busy()).To(BeFalse())
	})

	It("should draw the entries", func() {
		output := m.View()
		Expect(output).To(ContainSubstring("n0"))
		Expect(output).To(ContainSubstring("cpu"))
		Expect(output).To(ContainSubstring("avg"))
	})

	It("should keep ticking", func() {
		_, cmd := send(m, tickMsg(time.Now()))
		Expect(cmd).NotTo(BeNil())
	})

	When("navigating", func() {
		It("should zoom in and undo", func() {
			m, _ = send(m, key("+"))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(70, 210)))

			m, _ = send(m, key("u"))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(0, 280)))

			m, _ = send(m, key("r"))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(70, 210)))
		})

		It("should pan left by 5%", func() {
			m, _ = send(m, key("left"))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(-14, 266)))
		})

		It("should reset the zoom", func() {
			m, _ = send(m, key("+"), key("+"), key("0"))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(0, 280)))
		})
	})

	When("expanding entries", func() {
		It("should toggle the selected panel", func() {
			index := -1
			for i, current := range m.lines() {
				if current.row.Kind == api.EntryKindPanel && current.row.Label == "cpu" {
					index = i
				}
			}
			Expect(index).To(BeNumerically(">=", 0))
			Expect(m.lines()[index].row.Expanded).To(BeFalse())

			m.cursor = index
			m, _ = send(m, key("enter"))
			Expect(m.lines()[index].row.Expanded).To(BeTrue())
		})

		It("should report entries that cannot be expanded", func() {
			Expect(m.lines()[m.cursor].row.Kind).To(Equal(api.EntryKindPanel))
			m.cursor = 1
			Expect(m.lines()[1].row.Kind).To(Equal(api.EntryKindSummary))
			m, _ = send(m, key("enter"))
			Expect(m.status).NotTo(BeEmpty())
		})
	})

	When("searching", func() {
		It("should apply the query on the next tick", func() {
			m, _ = send(m, key("/"))
			Expect(m.mode).To(Equal(modeSearch))
			m, _ = send(m, key("beta"), key("enter"))
			Expect(m.mode).To(Equal(modeBrowse))

			m = tick(m, 1)
			Expect(v.Windows()[0].Config().SearchState.Query).To(Equal("beta"))
		})

		It("should reveal a result", func() {
			m, _ = send(m, key("c"), key("/"), key("beta"), key("enter"))
			m = tick(m, 4)
			Expect(m.results()).To(HaveLen(1))
			Expect(m.View()).To(ContainSubstring("1 results"))

			m, _ = send(m, key("tab"))
			Expect(m.mode).To(Equal(modeResults))
			m, _ = send(m, key("enter"))
			Expect(m.mode).To(Equal(modeBrowse))

			focus := v.Focus()
			Expect(focus).NotTo(BeNil())
			Expect(focus.EntryID).To(Equal(api.NewEntryID(0, 0, 0)))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(96, 184)))
		})
	})

	When("selecting an interval", func() {
		It("should zoom to valid bounds", func() {
			m, _ = send(m, key("t"))
			Expect(m.mode).To(Equal(modeSelect))

			m.startInput.SetValue("50 ns")
			m.stopInput.SetValue("150 ns")
			m, _ = send(m, key("enter"))
			Expect(m.mode).To(Equal(modeBrowse))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(50, 150)))
		})

		It("should keep the form open on errors", func() {
			m, _ = send(m, key("t"))
			m.startInput.SetValue("bogus")
			m, _ = send(m, key("enter"))
			Expect(m.mode).To(Equal(modeSelect))
			Expect(v.Navigator().Selection().StartError).To(HaveOccurred())
			Expect(m.View()).To(ContainSubstring("invalid start"))

			m, _ = send(m, key("esc"))
			Expect(m.mode).To(Equal(modeBrowse))
			Expect(v.Navigator().View()).To(Equal(api.NewInterval(0, 280)))
		})
	})

	When("showing help", func() {
		It("should close on any key", func() {
			m, _ = send(m, key("?"))
			Expect(m.View()).To(ContainSubstring("zoom in"))
			m, _ = send(m, key("x"))
			Expect(m.mode).To(Equal(modeBrowse))
		})
	})

	It("should quit on q", func() {
		_, cmd := send(m, key("q"))
		Expect(cmd).NotTo(BeNil())
		Expect(cmd()).To(Equal(tea.Quit()))
	})
})
