package app

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type ActionKind int

const (
	ActNone ActionKind = iota

	// structural
	ActTick
	ActResize
	ActBackendChanged
	ActWatchFailed
	ActBackgroundDone
	ActExecDone

	// navigation and selection
	ActQuit
	ActRefresh
	ActMove
	ActPage
	ActTop
	ActBottom
	ActMark
	ActMarkAll
	ActToggleAll
	ActClearMarks
	ActSort
	ActYank

	// backend mutations
	ActDone
	ActDelete
	ActStartStop
	ActUndo
	ActModify
	ActAdd
	ActAnnotate
	ActSync
	ActEdit

	// mode changes
	ActEnterFilter
	ActEnterCommand
	ActEnterAnnotate
	ActEnterShortcut
	ActEnterContextMenu
	ActEnterCalendar
	ActEnterHelp
	ActEnterDetail
	ActExitMode

	// line editing
	ActLineInput
	ActComplete
	ActSubmitFilter
	ActRunCommand
	ActSubmitAnnotation
	ActRunShell
	ActCancelLine

	ActShortcut
	ActPrompt
	ActCancel
	ActMenuMove
	ActMenuSelect
	ActCalendarMonth
	ActHelpScroll
	ActDetailScroll
)

var actionNames = map[ActionKind]string{
	ActTick:             "tick",
	ActResize:           "resize",
	ActBackendChanged:   "backend-changed",
	ActWatchFailed:      "watch-failed",
	ActBackgroundDone:   "background-done",
	ActExecDone:         "exec-done",
	ActQuit:             "quit",
	ActRefresh:          "refresh",
	ActMove:             "move",
	ActPage:             "page",
	ActTop:              "top",
	ActBottom:           "bottom",
	ActMark:             "mark",
	ActMarkAll:          "mark-all",
	ActToggleAll:        "toggle-all",
	ActClearMarks:       "clear-marks",
	ActSort:             "sort",
	ActYank:             "yank",
	ActDone:             "done",
	ActDelete:           "delete",
	ActStartStop:        "start-stop",
	ActUndo:             "undo",
	ActModify:           "modify",
	ActAdd:              "add",
	ActAnnotate:         "annotate",
	ActSync:             "sync",
	ActEdit:             "edit",
	ActEnterFilter:      "enter-filter",
	ActEnterCommand:     "enter-command",
	ActEnterAnnotate:    "enter-annotate",
	ActEnterShortcut:    "enter-shortcut",
	ActEnterContextMenu: "enter-context-menu",
	ActEnterCalendar:    "enter-calendar",
	ActEnterHelp:        "enter-help",
	ActEnterDetail:      "enter-detail",
	ActExitMode:         "exit-mode",
	ActLineInput:        "line-input",
	ActComplete:         "complete",
	ActSubmitFilter:     "submit-filter",
	ActRunCommand:       "run-command",
	ActSubmitAnnotation: "submit-annotation",
	ActRunShell:         "run-shell",
	ActCancelLine:       "cancel-line",
	ActShortcut:         "shortcut",
	ActPrompt:           "prompt",
	ActCancel:           "cancel",
	ActMenuMove:         "menu-move",
	ActMenuSelect:       "menu-select",
	ActCalendarMonth:    "calendar-month",
	ActHelpScroll:       "help-scroll",
	ActDetailScroll:     "detail-scroll",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Action is one unit of work produced by the dispatcher. Only the fields
// relevant to Kind are set.
type Action struct {
	Kind  ActionKind
	Delta int
	N     int
	Text  string
	Args  []string
	Key   tea.KeyMsg
	From  ModeKind
	IDs   []uuid.UUID
	Err   error

	// Confirmed is set once the user has accepted a prompt for this action.
	Confirmed bool

	Width  int
	Height int
}
