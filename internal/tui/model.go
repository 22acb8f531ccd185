// model.go
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

// Package tui draws a viewer in the terminal and drives its frame loop.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/apple/foundationdb/fdbprofviewer/internal/history"
	"github.com/apple/foundationdb/fdbprofviewer/internal/search"
	"github.com/apple/foundationdb/fdbprofviewer/internal/viewer"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
)

// DefaultTickInterval is the time between two frames.
const DefaultTickInterval = 50 * time.Millisecond

// mode selects which part of the screen receives keys.
type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modeResults
	modeSelect
	modeHelp
)

// tickMsg triggers one frame of the viewer.
type tickMsg time.Time

// windowResult is a search result together with the window it was found in.
type windowResult struct {
	window *viewer.Window
	result search.Result
}

// Model is the bubbletea model of the viewer.
type Model struct {
	viewer       *viewer.Viewer
	logger       logr.Logger
	tickInterval time.Duration

	width  int
	height int
	mode   mode

	// cursor is the selected line of the entry list, across windows.
	cursor int
	// resultCursor is the selected search result.
	resultCursor int

	searchInput textinput.Model
	startInput  textinput.Model
	stopInput   textinput.Model
	// editingStop is true when the stop field of the select form has focus.
	editingStop bool

	// status is shown at the bottom until the next key press.
	status string
}

// New returns a model that ticks v every tickInterval.
func New(v *viewer.Viewer, logger logr.Logger, tickInterval time.Duration) Model {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	searchInput := textinput.New()
	searchInput.Placeholder = "Search item titles or the configured field"
	searchInput.CharLimit = 200
	searchInput.Width = 60

	startInput := textinput.New()
	startInput.Placeholder = "Start, e.g. 1.5 ms"
	startInput.CharLimit = 40
	startInput.Width = 30

	stopInput := textinput.New()
	stopInput.Placeholder = "Stop, e.g. 20 ms"
	stopInput.CharLimit = 40
	stopInput.Width = 30

	return Model{
		viewer:       v,
		logger:       logger.WithValues("area", "tui"),
		tickInterval: tickInterval,
		width:        120,
		height:       40,
		searchInput:  searchInput,
		startInput:   startInput,
		stopInput:    stopInput,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.viewer.Tick()
		m.clampCursors()
		return m, m.tick()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		m.status = ""
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeResults:
			return m.updateResults(msg)
		case modeSelect:
			return m.updateSelect(msg)
		case modeHelp:
			m.mode = modeBrowse
			return m, nil
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

// line is one entry of the list together with its window.
type line struct {
	window *viewer.Window
	row    viewer.Row
}

func (m Model) lines() []line {
	var result []line
	for _, window := range m.viewer.Windows() {
		for _, row := range window.Rows() {
			result = append(result, line{window: window, row: row})
		}
	}
	return result
}

func (m Model) results() []windowResult {
	var result []windowResult
	for _, window := range m.viewer.Windows() {
		for _, found := range window.Config().SearchState.Results() {
			result = append(result, windowResult{window: window, result: found})
		}
	}
	return result
}

func (m *Model) clampCursors() {
	if lines := len(m.lines()); m.cursor >= lines {
		m.cursor = max(lines-1, 0)
	}
	if results := len(m.results()); m.resultCursor >= results {
		m.resultCursor = max(results-1, 0)
	}
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	navigator := m.viewer.Navigator()

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?", "h":
		m.mode = modeHelp
	case "ctrl+=", "+", "=":
		navigator.ZoomIn()
	case "ctrl+-", "-":
		navigator.ZoomOut()
	case "ctrl+0", "0":
		navigator.ResetZoom()
	case "ctrl+left", "u":
		navigator.Undo()
	case "ctrl+right", "r":
		navigator.Redo()
	case "left":
		navigator.Pan(5, history.Left)
	case "right":
		navigator.Pan(5, history.Right)
	case "shift+left":
		navigator.Pan(1, history.Left)
	case "shift+right":
		navigator.Pan(1, history.Right)
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.lines())-1 {
			m.cursor++
		}
	case "enter", " ":
		m.toggleSelected()
	case "/":
		m.mode = modeSearch
		m.searchInput.SetValue(m.viewer.Configuration().Search.Query)
		m.searchInput.Focus()
		return m, textinput.Blink
	case "c":
		m.toggleIncludeCollapsed()
	case "tab":
		if len(m.results()) > 0 {
			m.mode = modeResults
		}
	case "t":
		m.openSelect()
		return m, textinput.Blink
	}
	return m, nil
}

func (m *Model) toggleSelected() {
	lines := m.lines()
	if m.cursor >= len(lines) {
		return
	}

	selected := lines[m.cursor]
	_, err := selected.window.ToggleExpanded(selected.row.EntryID)
	if err != nil {
		m.status = err.Error()
	}
}

func (m *Model) toggleIncludeCollapsed() {
	configuration := m.viewer.Configuration().DeepCopy()
	include := !configuration.IncludeCollapsedEntries()
	configuration.Search.IncludeCollapsedEntries = &include
	m.viewer.ApplyConfiguration(configuration)
	if include {
		m.status = "searching collapsed entries"
	} else {
		m.status = "searching expanded entries only"
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		configuration := m.viewer.Configuration().DeepCopy()
		configuration.Search.Query = m.searchInput.Value()
		m.viewer.ApplyConfiguration(configuration)
		m.searchInput.Blur()
		m.mode = modeBrowse
		m.resultCursor = 0
		return m, nil
	case "esc", "ctrl+c":
		m.searchInput.Blur()
		m.mode = modeBrowse
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	results := m.results()

	switch msg.String() {
	case "esc", "tab", "q":
		m.mode = modeBrowse
	case "up", "k":
		if m.resultCursor > 0 {
			m.resultCursor--
		}
	case "down", "j":
		if m.resultCursor < len(results)-1 {
			m.resultCursor++
		}
	case "enter":
		if m.resultCursor < len(results) {
			selected := results[m.resultCursor]
			m.viewer.Reveal(selected.window, selected.result)
			m.cursor = m.lineOf(selected.window, selected.result)
			m.mode = modeBrowse
		}
	}
	return m, nil
}

// lineOf returns the list line of the slot holding a result.
func (m Model) lineOf(window *viewer.Window, result search.Result) int {
	for index, current := range m.lines() {
		if current.window == window && current.row.EntryID.Equal(result.EntryID) {
			return index
		}
	}
	return m.cursor
}

func (m *Model) openSelect() {
	selection := m.viewer.Navigator().Selection()
	selection.Reset()
	m.startInput.SetValue(selection.StartBuffer)
	m.stopInput.SetValue(selection.StopBuffer)
	m.editingStop = false
	m.stopInput.Blur()
	m.startInput.Focus()
	m.mode = modeSelect
}

func (m Model) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.startInput.Blur()
		m.stopInput.Blur()
		m.mode = modeBrowse
		return m, nil
	case "tab", "shift+tab":
		m.editingStop = !m.editingStop
		if m.editingStop {
			m.startInput.Blur()
			m.stopInput.Focus()
		} else {
			m.stopInput.Blur()
			m.startInput.Focus()
		}
		return m, textinput.Blink
	case "enter":
		selection := m.viewer.Navigator().Selection()
		selection.StartError = nil
		selection.StopError = nil
		selection.StartBuffer = m.startInput.Value()
		selection.StopBuffer = m.stopInput.Value()

		// Zooming resets the form, so the stop buffer is restored before it
		// is compared with the view the start produced.
		err := selection.CommitStart()
		if err == nil {
			selection.StopBuffer = m.stopInput.Value()
			err = selection.CommitStop()
		}
		if err == nil {
			m.startInput.Blur()
			m.stopInput.Blur()
			m.mode = modeBrowse
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.editingStop {
		m.stopInput, cmd = m.stopInput.Update(msg)
	} else {
		m.startInput, cmd = m.startInput.Update(msg)
	}
	return m, cmd
}

// Run starts the terminal program and blocks until the user quits or ctx
// is done.
func Run(ctx context.Context, v *viewer.Viewer, logger logr.Logger, tickInterval time.Duration) error {
	program := tea.NewProgram(New(v, logger, tickInterval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
