package app

import (
	"testing"
	"time"

	"taskdash/internal/config"
	"taskdash/internal/event"
)

func newTestDispatcher(p Prompts) *Dispatcher {
	return NewDispatcher(NewKeys(config.DefaultKeymap()), p)
}

func input(s string) event.Event {
	return event.Input{Key: keyMsg(s)}
}

func TestStructuralEventsInEveryMode(t *testing.T) {
	d := newTestDispatcher(Prompts{})
	modes := []Mode{Normal, {Kind: ModeFilter}, {Kind: ModeHelp}, confirm(Action{Kind: ActDelete})}
	for _, m := range modes {
		next, acts := d.Dispatch(m, event.Tick{Now: time.Now()})
		if next.Kind != m.Kind || len(acts) != 1 || acts[0].Kind != ActTick {
			t.Fatalf("%s: expected tick action and unchanged mode, got %s %v", m.Kind, next.Kind, acts)
		}
		next, acts = d.Dispatch(m, event.Resize{Width: 100, Height: 40})
		if next.Kind != m.Kind || len(acts) != 1 || acts[0].Kind != ActResize || acts[0].Height != 40 {
			t.Fatalf("%s: expected resize action, got %v", m.Kind, acts)
		}
	}
}

func TestNormalKeysYieldOneAction(t *testing.T) {
	d := newTestDispatcher(Prompts{})
	cases := map[string]ActionKind{
		"j": ActMove,
		"K": ActPage,
		"g": ActTop,
		"G": ActBottom,
		"v": ActMark,
		"V": ActMarkAll,
		"d": ActDone,
		"x": ActDelete,
		"u": ActUndo,
		"s": ActStartStop,
		"e": ActEdit,
		"o": ActSort,
		"Y": ActYank,
		"7": ActShortcut,
		"q": ActQuit,
	}
	for k, want := range cases {
		mode, acts := d.Dispatch(Normal, input(k))
		if mode.Kind != ModeNormal || len(acts) != 1 || acts[0].Kind != want {
			t.Fatalf("%s: expected %s, got %s %v", k, want, mode.Kind, acts)
		}
	}
	if _, acts := d.Dispatch(Normal, input("7")); acts[0].N != 7 {
		t.Fatalf("expected shortcut 7, got %d", acts[0].N)
	}
	if _, acts := d.Dispatch(Normal, input("Z")); len(acts) != 0 {
		t.Fatalf("expected unbound key to be ignored, got %v", acts)
	}
}

func TestModeEntryKeys(t *testing.T) {
	d := newTestDispatcher(Prompts{})
	cases := map[string]ModeKind{
		"/": ModeFilter,
		":": ModeCommand,
		"a": ModeCommand,
		"m": ModeCommand,
		"A": ModeAnnotate,
		"!": ModeShortcut,
		"c": ModeContextMenu,
		"C": ModeCalendar,
		"?": ModeHelp,
	}
	for k, want := range cases {
		if mode, _ := d.Dispatch(Normal, input(k)); mode.Kind != want {
			t.Fatalf("%s: expected %s, got %s", k, want, mode.Kind)
		}
	}
	if _, acts := d.Dispatch(Normal, input("m")); acts[0].Text != "modify " {
		t.Fatalf("expected modify prefill, got %q", acts[0].Text)
	}
}

func TestLineModeRouting(t *testing.T) {
	d := newTestDispatcher(Prompts{Delete: true})
	filter := Mode{Kind: ModeFilter}

	mode, acts := d.Dispatch(filter, input("x"))
	if mode.Kind != ModeFilter || len(acts) != 1 || acts[0].Kind != ActLineInput {
		t.Fatalf("expected line input, got %s %v", mode.Kind, acts)
	}
	mode, acts = d.Dispatch(filter, input("tab"))
	if mode.Kind != ModeFilter || acts[0].Kind != ActComplete {
		t.Fatalf("expected completion, got %v", acts)
	}
	mode, acts = d.Dispatch(filter, input("enter"))
	if mode.Kind != ModeNormal || acts[0].Kind != ActSubmitFilter {
		t.Fatalf("expected submit, got %s %v", mode.Kind, acts)
	}
	mode, acts = d.Dispatch(Mode{Kind: ModeCommand}, input("enter"))
	if mode.Kind != ModeNormal || acts[0].Kind != ActRunCommand {
		t.Fatalf("expected run command, got %v", acts)
	}
	mode, acts = d.Dispatch(Mode{Kind: ModeAnnotate}, input("esc"))
	if mode.Kind != ModeNormal || acts[0].Kind != ActCancelLine || acts[0].From != ModeAnnotate {
		t.Fatalf("expected cancel from annotate, got %v", acts)
	}
	if _, acts = d.Dispatch(Mode{Kind: ModeAnnotate}, input("tab")); len(acts) != 0 {
		t.Fatalf("expected no completion in annotate mode")
	}
}

func TestConfirmCarriesPendingAction(t *testing.T) {
	d := newTestDispatcher(Prompts{Delete: true, Undo: true})

	mode, acts := d.Dispatch(Normal, input("x"))
	if mode.Kind != ModeConfirm || mode.Pending.Kind != ActDelete || acts[0].Kind != ActPrompt {
		t.Fatalf("expected confirm with pending delete, got %+v %v", mode, acts)
	}

	mode.Pending.Text = "payload"
	stay, acts := d.Dispatch(mode, input("j"))
	if stay.Kind != ModeConfirm || len(acts) != 0 {
		t.Fatalf("expected other keys ignored while confirming")
	}
	next, acts := d.Dispatch(mode, input("y"))
	if next.Kind != ModeNormal || len(acts) != 1 || acts[0].Kind != ActDelete || acts[0].Text != "payload" {
		t.Fatalf("expected pending action verbatim, got %v", acts)
	}
	next, acts = d.Dispatch(mode, input("esc"))
	if next.Kind != ModeNormal || acts[0].Kind != ActCancel {
		t.Fatalf("expected cancel, got %v", acts)
	}

	if mode, _ := d.Dispatch(Normal, input("d")); mode.Kind != ModeNormal {
		t.Fatalf("expected done to run without prompt")
	}
}

func TestPromptsRequires(t *testing.T) {
	p := Prompts{BulkModify: true}
	if p.Requires(ActModify, 1) {
		t.Fatalf("single modify should not prompt")
	}
	if !p.Requires(ActModify, 2) {
		t.Fatalf("bulk modify should prompt")
	}
	if p.Requires(ActAnnotate, 5) {
		t.Fatalf("annotate never prompts")
	}
}

func TestCalendarAndHelpKeys(t *testing.T) {
	d := newTestDispatcher(Prompts{})
	cal := Mode{Kind: ModeCalendar}
	if _, acts := d.Dispatch(cal, input("l")); acts[0].Kind != ActCalendarMonth || acts[0].Delta != 1 {
		t.Fatalf("expected next month, got %v", acts)
	}
	if mode, _ := d.Dispatch(cal, input("esc")); mode.Kind != ModeNormal {
		t.Fatalf("expected esc to leave calendar")
	}
	help := Mode{Kind: ModeHelp}
	if _, acts := d.Dispatch(help, input("j")); acts[0].Kind != ActHelpScroll {
		t.Fatalf("expected help scroll, got %v", acts)
	}
	if mode, _ := d.Dispatch(help, input("?")); mode.Kind != ModeNormal {
		t.Fatalf("expected ? to close help")
	}
}

func TestDetailKeys(t *testing.T) {
	d := newTestDispatcher(Prompts{})
	for _, k := range []string{"i", "enter"} {
		mode, acts := d.Dispatch(Normal, input(k))
		if mode.Kind != ModeDetail || len(acts) != 1 || acts[0].Kind != ActEnterDetail {
			t.Fatalf("%s: expected detail mode, got %s %v", k, mode.Kind, acts)
		}
	}
	detail := Mode{Kind: ModeDetail}
	if _, acts := d.Dispatch(detail, input("k")); acts[0].Kind != ActDetailScroll || acts[0].Delta != -1 {
		t.Fatalf("expected detail scroll up, got %v", acts)
	}
	if _, acts := d.Dispatch(detail, input("x")); len(acts) != 0 {
		t.Fatalf("expected mutations to be ignored in details, got %v", acts)
	}
	for _, k := range []string{"esc", "q", "i"} {
		if mode, _ := d.Dispatch(detail, input(k)); mode.Kind != ModeNormal {
			t.Fatalf("%s: expected details to close", k)
		}
	}
}
