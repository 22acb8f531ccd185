// view.go
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
	"fmt"
	"sort"
	"strings"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/search"
	"github.com/apple/foundationdb/fdbprofviewer/internal/viewer"
	"github.com/charmbracelet/lipgloss"
)

const (
	labelWidth = 24
	// maxResultLines bounds the search results shown below the timeline.
	maxResultLines = 8
)

// levels are the glyphs of a utilization plot, from idle to fully busy.
var levels = []rune(" ▁▂▃▄▅▆▇█")

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	cursorStyle = lipgloss.NewStyle().Background(lipgloss.Color("58"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	focusStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	popupStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	styleCache  = map[api.Color]lipgloss.Style{}
)

func colorStyle(color api.Color) lipgloss.Style {
	if style, ok := styleCache[color]; ok {
		return style
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", color[0], color[1], color[2])))
	styleCache[color] = style
	return style
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.mode {
	case modeHelp:
		b.WriteString(popupStyle.Render(helpText))
		return b.String()
	case modeSelect:
		b.WriteString(m.renderSelect())
		b.WriteString("\n")
	case modeSearch:
		b.WriteString(popupStyle.Render("Search: " + m.searchInput.View()))
		b.WriteString("\n")
	}

	b.WriteString(m.renderEntries())
	b.WriteString(m.renderResults())

	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("? help  / search  tab results  t select  +/- zoom  ←/→ pan  u/r undo/redo  q quit"))
	return b.String()
}

func (m Model) renderHeader() string {
	navigator := m.viewer.Navigator()
	state := "idle"
	if m.viewer.Busy() {
		state = fmt.Sprintf("loading, %d requests outstanding", m.viewer.Outstanding())
	}
	if pending := m.viewer.Pending(); pending > 0 {
		state = fmt.Sprintf("%s, %d traces pending", state, pending)
	}

	return headerStyle.Render(fmt.Sprintf("view %s (%s total)", navigator.View(), api.Timestamp(navigator.Total().Duration()))) +
		"  " + dimStyle.Render(state)
}

func (m Model) timelineWidth() int {
	return max(m.width-labelWidth-1, 10)
}

func (m Model) renderEntries() string {
	var b strings.Builder
	view := m.viewer.Navigator().View()
	width := m.timelineWidth()
	focus := m.viewer.Focus()

	for index, current := range m.lines() {
		label := strings.Repeat("  ", current.row.Depth) + current.row.Label
		switch current.row.Kind {
		case api.EntryKindPanel, api.EntryKindSlot:
			marker := "▸ "
			if current.row.Expanded {
				marker = "▾ "
			}
			label = strings.Repeat("  ", current.row.Depth) + marker + current.row.Label
		}
		label = fitLabel(label)
		if index == m.cursor {
			label = cursorStyle.Render(label)
		} else {
			label = labelStyle.Render(label)
		}

		var timelines []string
		switch current.row.Kind {
		case api.EntryKindSummary:
			summary, _ := current.window.FindSummary(current.row.EntryID)
			timelines = []string{renderUtilization(summary, view, width)}
		case api.EntryKindSlot:
			slot, _ := current.window.FindSlot(current.row.EntryID)
			var highlight api.ItemUID
			hasHighlight := false
			if focus != nil && focus.Window == current.window.Index && focus.EntryID.Equal(current.row.EntryID) {
				highlight, hasHighlight = focus.UID, true
			}
			timelines = renderSlot(slot, current.window.Config().SearchState, view, width, highlight, hasHighlight)
		default:
			timelines = []string{""}
		}

		for i, timeline := range timelines {
			if i == 0 {
				b.WriteString(label)
			} else {
				b.WriteString(strings.Repeat(" ", labelWidth))
			}
			b.WriteString(" ")
			b.WriteString(timeline)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func fitLabel(label string) string {
	runes := []rune(label)
	if len(runes) > labelWidth {
		return string(runes[:labelWidth-1]) + "…"
	}
	return label + strings.Repeat(" ", labelWidth-len(runes))
}

// columnInterval returns the time covered by one character of the timeline.
func columnInterval(view api.Interval, width int, column int) api.Interval {
	return api.NewInterval(view.Lerp(float32(column)/float32(width)), view.Lerp(float32(column+1)/float32(width)))
}

// renderUtilization plots the last sample at or before each column.
func renderUtilization(summary *viewer.Summary, view api.Interval, width int) string {
	if summary == nil {
		return ""
	}

	points := summary.Utilization()
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time < points[j].Time })

	var b strings.Builder
	next := 0
	var current float32
	for column := 0; column < width; column++ {
		interval := columnInterval(view, width, column)
		peak := current
		for next < len(points) && points[next].Time < interval.Stop {
			current = points[next].Util
			peak = max(peak, current)
			next++
		}
		index := int(peak*float32(len(levels)-1) + 0.5)
		index = min(max(index, 0), len(levels)-1)
		b.WriteRune(levels[index])
	}
	return colorStyle(summary.Color).Render(b.String())
}

// renderSlot draws one line per row of an expanded slot, or a single line
// with all rows merged for a collapsed slot. Search matches are drawn in
// bold, the revealed item in reverse.
func renderSlot(slot *viewer.Slot, state *search.State, view api.Interval, width int, highlight api.ItemUID, hasHighlight bool) []string {
	if slot == nil {
		return []string{""}
	}

	var rows [][]api.Item
	for _, tileID := range slot.TileIDs() {
		data, ok := slot.Tile(tileID)
		if !ok || data == nil {
			continue
		}
		for index, row := range data.Items {
			for len(rows) <= index {
				rows = append(rows, nil)
			}
			rows[index] = append(rows[index], row...)
		}
	}
	if len(rows) == 0 {
		return []string{dimStyle.Render(strings.Repeat("·", width))}
	}
	if !slot.Expanded {
		var merged []api.Item
		for _, row := range rows {
			merged = append(merged, row...)
		}
		rows = [][]api.Item{merged}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, renderRow(row, state, view, width, highlight, hasHighlight))
	}
	return lines
}

func renderRow(items []api.Item, state *search.State, view api.Interval, width int, highlight api.ItemUID, hasHighlight bool) string {
	var b strings.Builder
	for column := 0; column < width; column++ {
		interval := columnInterval(view, width, column)

		var found *api.Item
		for i := range items {
			if items[i].Interval.Overlaps(interval) {
				found = &items[i]
				break
			}
		}
		if found == nil {
			b.WriteString(" ")
			continue
		}

		style := colorStyle(found.Color)
		if state != nil && state.Contains(found.UID) {
			style = style.Bold(true).Underline(true)
		}
		if hasHighlight && found.UID == highlight {
			style = style.Reverse(true)
		}
		b.WriteString(style.Render("█"))
	}
	return b.String()
}

func (m Model) renderResults() string {
	results := m.results()
	if len(results) == 0 && m.viewer.Configuration().Search.Query == "" {
		return ""
	}

	var b strings.Builder
	header := fmt.Sprintf("%d results", len(results))
	for _, window := range m.viewer.Windows() {
		if window.Config().SearchState.Truncated() {
			header += " (results truncated)"
			break
		}
	}
	if m.viewer.Configuration().IncludeCollapsedEntries() {
		header += ", including collapsed entries"
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	first := 0
	if m.resultCursor >= maxResultLines {
		first = m.resultCursor - maxResultLines + 1
	}
	for index := first; index < len(results) && index < first+maxResultLines; index++ {
		current := results[index]
		text := fmt.Sprintf("%s %s  %s  %s", describeEntry(current.window, current.result.EntryID), current.result.Title, current.result.Interval, dimStyle.Render(fmt.Sprintf("row %d", current.result.Row)))
		if m.mode == modeResults && index == m.resultCursor {
			text = focusStyle.Render("> ") + text
		} else {
			text = "  " + text
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// describeEntry names a slot by the short names on its path.
func describeEntry(window *viewer.Window, entryID api.EntryID) string {
	var names []string
	for level := uint64(1); level <= entryID.Level(); level++ {
		prefix := api.NewEntryID(entryID.Path()[:level]...)
		if level < entryID.Level() {
			if panel, ok := window.FindPanel(prefix); ok {
				names = append(names, panel.ShortName)
			}
			continue
		}
		if slot, ok := window.FindSlot(prefix); ok {
			names = append(names, slot.ShortName)
		}
	}
	return fmt.Sprintf("[%d] %s", window.Index, strings.Join(names, "/"))
}

func (m Model) renderSelect() string {
	selection := m.viewer.Navigator().Selection()

	lines := []string{
		"Start: " + m.startInput.View(),
	}
	if selection.StartError != nil {
		lines = append(lines, errorStyle.Render("  "+selection.StartError.Error()))
	}
	lines = append(lines, "Stop:  "+m.stopInput.View())
	if selection.StopError != nil {
		lines = append(lines, errorStyle.Render("  "+selection.StopError.Error()))
	}
	lines = append(lines, helpStyle.Render("tab switch field  enter apply  esc cancel"))
	return popupStyle.Render(strings.Join(lines, "\n"))
}

const helpText = `Navigation
  + / ctrl+=        zoom in
  - / ctrl+-        zoom out
  0 / ctrl+0        reset zoom
  u / ctrl+left     undo
  r / ctrl+right    redo
  left / right      pan 5%
  shift+left/right  pan 1%
  t                 select interval

Entries
  up / down         move cursor
  enter / space     expand or collapse

Search
  /                 edit query
  c                 toggle searching collapsed entries
  tab               browse results, enter reveals

Press any key to close.`
