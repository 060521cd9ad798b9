package config

import (
	"fmt"
	"slices"
	"strings"
)

// Keymap maps a logical action name to the key chords that trigger it.
type Keymap map[string][]string

// NormalActions lists the actions bound in Normal mode. The order is the
// precedence used when two actions share a chord.
var NormalActions = []string{
	"quit",
	"refresh",
	"down",
	"up",
	"page_down",
	"page_up",
	"top",
	"bottom",
	"done",
	"delete",
	"start_stop",
	"mark",
	"mark_all",
	"toggle_all",
	"clear_marks",
	"undo",
	"edit",
	"modify",
	"add",
	"annotate",
	"filter",
	"command",
	"shortcut_prompt",
	"context_menu",
	"calendar",
	"help",
	"detail",
	"yank",
	"sort",
	"shortcut_0",
	"shortcut_1",
	"shortcut_2",
	"shortcut_3",
	"shortcut_4",
	"shortcut_5",
	"shortcut_6",
	"shortcut_7",
	"shortcut_8",
	"shortcut_9",
}

// ModalActions are bound outside Normal mode and never conflict with it.
var ModalActions = []string{
	"confirm",
	"cancel",
	"prev_month",
	"next_month",
}

func DefaultKeymap() Keymap {
	km := Keymap{
		"quit":            {"q", "ctrl+c"},
		"refresh":         {"r"},
		"down":            {"j", "down"},
		"up":              {"k", "up"},
		"page_down":       {"J", "pgdown"},
		"page_up":         {"K", "pgup"},
		"top":             {"g", "home"},
		"bottom":          {"G", "end"},
		"done":            {"d"},
		"delete":          {"x"},
		"start_stop":      {"s"},
		"mark":            {"v", " "},
		"mark_all":        {"V"},
		"toggle_all":      {"ctrl+a"},
		"clear_marks":     {"esc"},
		"undo":            {"u"},
		"edit":            {"e"},
		"modify":          {"m"},
		"add":             {"a"},
		"annotate":        {"A"},
		"filter":          {"/"},
		"command":         {":"},
		"shortcut_prompt": {"!"},
		"context_menu":    {"c"},
		"calendar":        {"C"},
		"help":            {"?"},
		"detail":          {"i", "enter"},
		"yank":            {"Y"},
		"sort":            {"o"},
		"confirm":         {"y", "enter"},
		"cancel":          {"n", "esc"},
		"prev_month":      {"h", "left"},
		"next_month":      {"l", "right"},
	}
	for i := 0; i <= 9; i++ {
		km[fmt.Sprintf("shortcut_%d", i)] = []string{fmt.Sprint(i)}
	}
	return km
}

// Merge returns a copy of km with the entries of override replacing whole
// chord lists. Unknown action names are kept so Unknown can report them.
func (km Keymap) Merge(override Keymap) Keymap {
	out := make(Keymap, len(km)+len(override))
	for action, keys := range km {
		out[action] = slices.Clone(keys)
	}
	for action, keys := range override {
		out[action] = slices.Clone(keys)
	}
	return out
}

// Unknown returns action names that nothing in the program binds.
func (km Keymap) Unknown() []string {
	var out []string
	for action := range km {
		if !slices.Contains(NormalActions, action) && !slices.Contains(ModalActions, action) {
			out = append(out, action)
		}
	}
	slices.Sort(out)
	return out
}

type ConflictError struct {
	Key     string
	Actions []string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("key %q bound to %s; %s keeps it", e.Key, strings.Join(e.Actions, ", "), e.Actions[0])
}

// Conflicts reports every chord bound to more than one Normal-mode action.
// Actions are listed in precedence order.
func (km Keymap) Conflicts() []ConflictError {
	owners := map[string][]string{}
	var order []string
	for _, action := range NormalActions {
		for _, k := range km[action] {
			if _, seen := owners[k]; !seen {
				order = append(order, k)
			}
			if !slices.Contains(owners[k], action) {
				owners[k] = append(owners[k], action)
			}
		}
	}
	var out []ConflictError
	for _, k := range order {
		if len(owners[k]) > 1 {
			out = append(out, ConflictError{Key: k, Actions: owners[k]})
		}
	}
	return out
}

// Resolved drops every conflicting chord from all but its winning action.
func (km Keymap) Resolved() Keymap {
	out := km.Merge(nil)
	for _, c := range km.Conflicts() {
		for _, loser := range c.Actions[1:] {
			out[loser] = slices.DeleteFunc(out[loser], func(k string) bool { return k == c.Key })
		}
	}
	return out
}
