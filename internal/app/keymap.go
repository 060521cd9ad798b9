package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"taskdash/internal/config"
)

var helpText = map[string]string{
	"quit":            "quit",
	"refresh":         "refresh",
	"down":            "down",
	"up":              "up",
	"page_down":       "page down",
	"page_up":         "page up",
	"top":             "top",
	"bottom":          "bottom",
	"done":            "done",
	"delete":          "delete",
	"start_stop":      "start/stop",
	"mark":            "mark",
	"mark_all":        "mark all",
	"toggle_all":      "toggle all marks",
	"clear_marks":     "clear marks",
	"undo":            "undo",
	"edit":            "edit",
	"modify":          "modify",
	"add":             "add",
	"annotate":        "annotate",
	"filter":          "filter",
	"command":         "command",
	"shortcut_prompt": "run shell command",
	"context_menu":    "context",
	"calendar":        "calendar",
	"help":            "help",
	"detail":          "task details",
	"yank":            "yank uuids",
	"sort":            "cycle sort",
	"confirm":         "confirm",
	"cancel":          "cancel",
	"prev_month":      "previous month",
	"next_month":      "next month",
}

// Keys is the resolved binding table. Conflicting chords have already been
// removed from the losing actions.
type Keys struct {
	normal  []namedBinding
	byName  map[string]key.Binding
	Confirm key.Binding
	Cancel  key.Binding
	Prev    key.Binding
	Next    key.Binding
}

type namedBinding struct {
	name    string
	binding key.Binding
}

func NewKeys(km config.Keymap) Keys {
	resolved := km.Resolved()
	k := Keys{byName: map[string]key.Binding{}}
	for _, name := range config.NormalActions {
		b := newBinding(name, resolved[name])
		k.byName[name] = b
		k.normal = append(k.normal, namedBinding{name: name, binding: b})
	}
	k.Confirm = newBinding("confirm", resolved["confirm"])
	k.Cancel = newBinding("cancel", resolved["cancel"])
	k.Prev = newBinding("prev_month", resolved["prev_month"])
	k.Next = newBinding("next_month", resolved["next_month"])
	return k
}

func newBinding(name string, keys []string) key.Binding {
	desc := helpText[name]
	if desc == "" {
		desc = strings.ReplaceAll(name, "_", " ")
	}
	display := make([]string, len(keys))
	for i, k := range keys {
		if k == " " {
			k = "space"
		}
		display[i] = k
	}
	b := key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(display, "/"), desc))
	if len(keys) == 0 {
		b.SetEnabled(false)
	}
	return b
}

// Lookup returns the Normal-mode action bound to msg.
func (k Keys) Lookup(msg tea.KeyMsg) (string, bool) {
	for _, nb := range k.normal {
		if key.Matches(msg, nb.binding) {
			return nb.name, true
		}
	}
	return "", false
}

func (k Keys) Binding(name string) key.Binding {
	return k.byName[name]
}

// ShortHelp and FullHelp implement help.KeyMap.
func (k Keys) ShortHelp() []key.Binding {
	var out []key.Binding
	for _, name := range []string{"help", "filter", "command", "done", "delete", "undo", "quit"} {
		if b := k.byName[name]; b.Enabled() {
			out = append(out, b)
		}
	}
	return out
}

func (k Keys) FullHelp() [][]key.Binding {
	var groups [][]key.Binding
	var col []key.Binding
	for _, nb := range k.normal {
		if !nb.binding.Enabled() || strings.HasPrefix(nb.name, "shortcut_") && nb.name != "shortcut_prompt" {
			continue
		}
		col = append(col, nb.binding)
		if len(col) == 9 {
			groups = append(groups, col)
			col = nil
		}
	}
	col = append(col, k.Confirm, k.Cancel)
	groups = append(groups, col)
	return groups
}
