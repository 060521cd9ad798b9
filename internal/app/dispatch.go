package app

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"taskdash/internal/event"
)

// Prompts selects which mutations wait for confirmation.
type Prompts struct {
	Delete     bool
	Done       bool
	Undo       bool
	BulkModify bool
}

// Requires reports whether kind acting on targets tasks must be confirmed.
func (p Prompts) Requires(kind ActionKind, targets int) bool {
	switch kind {
	case ActDelete:
		return p.Delete
	case ActDone:
		return p.Done
	case ActUndo:
		return p.Undo
	case ActModify:
		return p.BulkModify && targets > 1
	}
	return false
}

// Dispatcher maps a mode and one event to the next mode and the actions to
// apply. It holds only immutable configuration.
type Dispatcher struct {
	keys    Keys
	prompts Prompts
}

func NewDispatcher(keys Keys, prompts Prompts) *Dispatcher {
	return &Dispatcher{keys: keys, prompts: prompts}
}

func (d *Dispatcher) Keys() Keys { return d.keys }

func (d *Dispatcher) Dispatch(mode Mode, ev event.Event) (Mode, []Action) {
	switch e := ev.(type) {
	case event.Tick:
		return mode, []Action{{Kind: ActTick}}
	case event.Resize:
		return mode, []Action{{Kind: ActResize, Width: e.Width, Height: e.Height}}
	case event.BackendChanged:
		return mode, []Action{{Kind: ActBackendChanged, Text: e.Path}}
	case event.WatchFailed:
		return mode, []Action{{Kind: ActWatchFailed, Err: e.Err}}
	case event.BackgroundDone:
		return mode, []Action{{Kind: ActBackgroundDone, Err: e.Err}}
	case event.ExecDone:
		return mode, []Action{{Kind: ActExecDone, Err: e.Err}}
	case event.Input:
		return d.input(mode, e.Key)
	}
	return mode, nil
}

func (d *Dispatcher) input(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch {
	case mode.Kind.Line():
		return d.line(mode, msg)
	case mode.Kind == ModeConfirm:
		return d.confirm(mode, msg)
	case mode.Kind == ModeContextMenu:
		return d.menu(mode, msg)
	case mode.Kind == ModeCalendar:
		return d.calendar(mode, msg)
	case mode.Kind == ModeHelp:
		return d.help(mode, msg)
	case mode.Kind == ModeDetail:
		return d.detail(mode, msg)
	}
	return d.normal(mode, msg)
}

func (d *Dispatcher) normal(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	name, ok := d.keys.Lookup(msg)
	if !ok {
		return mode, nil
	}
	one := func(a Action) (Mode, []Action) { return mode, []Action{a} }

	switch name {
	case "quit":
		return one(Action{Kind: ActQuit})
	case "refresh":
		return one(Action{Kind: ActRefresh})
	case "down":
		return one(Action{Kind: ActMove, Delta: 1})
	case "up":
		return one(Action{Kind: ActMove, Delta: -1})
	case "page_down":
		return one(Action{Kind: ActPage, Delta: 1})
	case "page_up":
		return one(Action{Kind: ActPage, Delta: -1})
	case "top":
		return one(Action{Kind: ActTop})
	case "bottom":
		return one(Action{Kind: ActBottom})
	case "mark":
		return one(Action{Kind: ActMark})
	case "mark_all":
		return one(Action{Kind: ActMarkAll})
	case "toggle_all":
		return one(Action{Kind: ActToggleAll})
	case "clear_marks":
		return one(Action{Kind: ActClearMarks})
	case "sort":
		return one(Action{Kind: ActSort})
	case "yank":
		return one(Action{Kind: ActYank})
	case "done":
		return d.gate(mode, Action{Kind: ActDone})
	case "delete":
		return d.gate(mode, Action{Kind: ActDelete})
	case "undo":
		return d.gate(mode, Action{Kind: ActUndo})
	case "start_stop":
		return one(Action{Kind: ActStartStop})
	case "edit":
		return one(Action{Kind: ActEdit})
	case "modify":
		return Mode{Kind: ModeCommand}, []Action{{Kind: ActEnterCommand, Text: "modify "}}
	case "add":
		return Mode{Kind: ModeCommand}, []Action{{Kind: ActEnterCommand, Text: "add "}}
	case "annotate":
		return Mode{Kind: ModeAnnotate}, []Action{{Kind: ActEnterAnnotate}}
	case "filter":
		return Mode{Kind: ModeFilter}, []Action{{Kind: ActEnterFilter}}
	case "command":
		return Mode{Kind: ModeCommand}, []Action{{Kind: ActEnterCommand}}
	case "shortcut_prompt":
		return Mode{Kind: ModeShortcut}, []Action{{Kind: ActEnterShortcut}}
	case "context_menu":
		return Mode{Kind: ModeContextMenu}, []Action{{Kind: ActEnterContextMenu}}
	case "calendar":
		return Mode{Kind: ModeCalendar}, []Action{{Kind: ActEnterCalendar}}
	case "help":
		return Mode{Kind: ModeHelp}, []Action{{Kind: ActEnterHelp}}
	case "detail":
		return Mode{Kind: ModeDetail}, []Action{{Kind: ActEnterDetail}}
	}
	if n, ok := strings.CutPrefix(name, "shortcut_"); ok {
		if i, err := strconv.Atoi(n); err == nil {
			return one(Action{Kind: ActShortcut, N: i})
		}
	}
	return mode, nil
}

// gate routes a mutation through Confirm when prompting is on for it. The
// selection is bound to the pending action when ActPrompt is applied.
func (d *Dispatcher) gate(mode Mode, a Action) (Mode, []Action) {
	if d.prompts.Requires(a.Kind, 1) {
		return confirm(a), []Action{{Kind: ActPrompt}}
	}
	return mode, []Action{a}
}

func (d *Dispatcher) line(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch msg.Type {
	case tea.KeyEnter:
		submit := map[ModeKind]ActionKind{
			ModeFilter:   ActSubmitFilter,
			ModeCommand:  ActRunCommand,
			ModeAnnotate: ActSubmitAnnotation,
			ModeShortcut: ActRunShell,
		}[mode.Kind]
		return Normal, []Action{{Kind: submit, From: mode.Kind}}
	case tea.KeyEsc, tea.KeyCtrlC:
		return Normal, []Action{{Kind: ActCancelLine, From: mode.Kind}}
	case tea.KeyTab:
		if mode.Kind == ModeFilter || mode.Kind == ModeCommand {
			return mode, []Action{{Kind: ActComplete, From: mode.Kind}}
		}
		return mode, nil
	}
	return mode, []Action{{Kind: ActLineInput, Key: msg, From: mode.Kind}}
}

func (d *Dispatcher) confirm(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch {
	case key.Matches(msg, d.keys.Confirm):
		if mode.Pending == nil {
			return Normal, nil
		}
		return Normal, []Action{*mode.Pending}
	case key.Matches(msg, d.keys.Cancel):
		return Normal, []Action{{Kind: ActCancel}}
	}
	return mode, nil
}

func (d *Dispatcher) menu(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch {
	case msg.Type == tea.KeyEnter:
		return Normal, []Action{{Kind: ActMenuSelect}}
	case msg.Type == tea.KeyEsc || key.Matches(msg, d.keys.Binding("quit")):
		return Normal, []Action{{Kind: ActExitMode}}
	case key.Matches(msg, d.keys.Binding("down")):
		return mode, []Action{{Kind: ActMenuMove, Delta: 1}}
	case key.Matches(msg, d.keys.Binding("up")):
		return mode, []Action{{Kind: ActMenuMove, Delta: -1}}
	}
	return mode, nil
}

func (d *Dispatcher) calendar(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch {
	case msg.Type == tea.KeyEsc || key.Matches(msg, d.keys.Binding("quit")) || key.Matches(msg, d.keys.Binding("calendar")):
		return Normal, []Action{{Kind: ActExitMode}}
	case key.Matches(msg, d.keys.Prev):
		return mode, []Action{{Kind: ActCalendarMonth, Delta: -1}}
	case key.Matches(msg, d.keys.Next):
		return mode, []Action{{Kind: ActCalendarMonth, Delta: 1}}
	case key.Matches(msg, d.keys.Binding("up")):
		return mode, []Action{{Kind: ActCalendarMonth, Delta: -12}}
	case key.Matches(msg, d.keys.Binding("down")):
		return mode, []Action{{Kind: ActCalendarMonth, Delta: 12}}
	}
	return mode, nil
}

func (d *Dispatcher) help(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch {
	case msg.Type == tea.KeyEsc || key.Matches(msg, d.keys.Binding("quit")) || key.Matches(msg, d.keys.Binding("help")):
		return Normal, []Action{{Kind: ActExitMode}}
	case key.Matches(msg, d.keys.Binding("down")):
		return mode, []Action{{Kind: ActHelpScroll, Delta: 1}}
	case key.Matches(msg, d.keys.Binding("up")):
		return mode, []Action{{Kind: ActHelpScroll, Delta: -1}}
	}
	return mode, nil
}

func (d *Dispatcher) detail(mode Mode, msg tea.KeyMsg) (Mode, []Action) {
	switch {
	case msg.Type == tea.KeyEsc || key.Matches(msg, d.keys.Binding("quit")) || key.Matches(msg, d.keys.Binding("detail")):
		return Normal, []Action{{Kind: ActExitMode}}
	case key.Matches(msg, d.keys.Binding("down")):
		return mode, []Action{{Kind: ActDetailScroll, Delta: 1}}
	case key.Matches(msg, d.keys.Binding("up")):
		return mode, []Action{{Kind: ActDetailScroll, Delta: -1}}
	}
	return mode, nil
}
