package app

type ModeKind int

const (
	ModeNormal ModeKind = iota
	ModeFilter
	ModeCommand
	ModeAnnotate
	ModeShortcut
	ModeContextMenu
	ModeCalendar
	ModeHelp
	ModeDetail
	ModeConfirm
)

func (k ModeKind) String() string {
	switch k {
	case ModeFilter:
		return "filter"
	case ModeCommand:
		return "command"
	case ModeAnnotate:
		return "annotate"
	case ModeShortcut:
		return "shortcut"
	case ModeContextMenu:
		return "context"
	case ModeCalendar:
		return "calendar"
	case ModeHelp:
		return "help"
	case ModeDetail:
		return "detail"
	case ModeConfirm:
		return "confirm"
	default:
		return "normal"
	}
}

// Line reports whether keys are routed to the line editor.
func (k ModeKind) Line() bool {
	switch k {
	case ModeFilter, ModeCommand, ModeAnnotate, ModeShortcut:
		return true
	}
	return false
}

// Mode is the active mode. In ModeConfirm, Pending is the action that runs
// once the user confirms.
type Mode struct {
	Kind    ModeKind
	Pending *Action
}

var Normal = Mode{Kind: ModeNormal}

func confirm(pending Action) Mode {
	return Mode{Kind: ModeConfirm, Pending: &pending}
}
