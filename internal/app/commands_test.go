package app

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		verb string
		args []string
		kind ActionKind
	}{
		{"add buy milk +home", "add", []string{"buy", "milk", "+home"}, ActAdd},
		{`task add "pay rent" due:tomorrow`, "add", []string{"pay rent", "due:tomorrow"}, ActAdd},
		{"modify priority:H", "modify", []string{"priority:H"}, ActModify},
		{"annotate called back", "annotate", []string{"called", "back"}, ActAnnotate},
		{"DONE", "done", []string{}, ActDone},
		{"sync", "sync", []string{}, ActSync},
		{"stop", "stop", []string{}, ActStartStop},
	}
	for _, tc := range cases {
		cmd, err := ParseCommand(tc.in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.in, err)
		}
		if cmd.Verb != tc.verb || !slices.Equal(cmd.Args, tc.args) {
			t.Fatalf("%q: got %+v", tc.in, cmd)
		}
		if cmd.Action().Kind != tc.kind {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.kind, cmd.Action().Kind)
		}
	}
}

func TestParseCommandErrors(t *testing.T) {
	if _, err := ParseCommand("explode now"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	for _, in := range []string{"", "task", "add", "done 3", `add "unterminated`} {
		if _, err := ParseCommand(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestMenuAndCalendar(t *testing.T) {
	m := NewContextMenu(map[string]string{"work": "project:work", "home": "project:home"}, "project:work")
	if m.Selected().Name != "work" {
		t.Fatalf("expected active context preselected, got %s", m.Selected().Name)
	}
	m.Move(1)
	if m.Selected().Name != "none" {
		t.Fatalf("expected wrap to none, got %s", m.Selected().Name)
	}

	cal := NewCalendar(time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC))
	weeks := cal.Weeks()
	if len(weeks) != 5 || weeks[0][4].Day() != 1 || !weeks[0][0].IsZero() {
		t.Fatalf("unexpected february 2024 layout: %v", weeks[0])
	}
	cal.Shift(1)
	if cal.Month.Month() != time.March {
		t.Fatalf("expected march, got %s", cal.Month.Month())
	}
}
