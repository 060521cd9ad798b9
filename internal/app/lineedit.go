package app

import (
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const undoDepth = 100

type lineState struct {
	value string
	pos   int
}

// LineEditor is the buffer used by Filter, Command, Annotate and Shortcut
// modes. ctrl+z restores the buffer before the last edit.
type LineEditor struct {
	input   textinput.Model
	history []lineState
}

func NewLineEditor() LineEditor {
	ti := textinput.New()
	ti.CharLimit = 1024
	ti.Width = 60
	ti.Cursor.SetMode(cursor.CursorStatic)
	return LineEditor{input: ti}
}

// Start focuses the editor with a prompt and initial text, cursor at end.
func (e *LineEditor) Start(prompt, value string) {
	e.input.Prompt = prompt
	e.input.SetValue(value)
	e.input.CursorEnd()
	e.input.Focus()
	e.history = e.history[:0]
}

func (e *LineEditor) Stop() {
	e.input.Blur()
	e.history = e.history[:0]
}

func (e *LineEditor) Value() string { return e.input.Value() }

func (e *LineEditor) Position() int { return e.input.Position() }

// Set replaces the buffer and cursor, recording the previous state.
func (e *LineEditor) Set(value string, pos int) {
	e.push()
	e.input.SetValue(value)
	e.input.SetCursor(pos)
}

func (e *LineEditor) SetWidth(w int) {
	if w < 10 {
		w = 10
	}
	e.input.Width = w
}

func (e *LineEditor) Update(msg tea.KeyMsg) {
	if msg.String() == "ctrl+z" {
		e.Undo()
		return
	}
	before := lineState{value: e.input.Value(), pos: e.input.Position()}
	e.input, _ = e.input.Update(msg)
	if e.input.Value() != before.value {
		e.history = append(e.history, before)
		if len(e.history) > undoDepth {
			e.history = e.history[1:]
		}
	}
}

func (e *LineEditor) Undo() bool {
	if len(e.history) == 0 {
		return false
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.input.SetValue(last.value)
	e.input.SetCursor(last.pos)
	return true
}

func (e *LineEditor) push() {
	e.history = append(e.history, lineState{value: e.input.Value(), pos: e.input.Position()})
	if len(e.history) > undoDepth {
		e.history = e.history[1:]
	}
}

func (e LineEditor) View() string { return e.input.View() }
