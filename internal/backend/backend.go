// Package backend defines the capability set the dashboard needs from a task
// store and provides the implementation that shells out to the task CLI.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"taskdash/internal/task"
)

var (
	ErrTimeout     = errors.New("backend command timed out")
	ErrUnsupported = errors.New("operation not supported by backend")
)

type OpKind int

const (
	OpDone OpKind = iota
	OpDelete
	OpModify
	OpAnnotate
	OpStart
	OpStop
)

func (k OpKind) String() string {
	switch k {
	case OpDone:
		return "done"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	case OpAnnotate:
		return "annotate"
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is a mutation applied to one or more tasks. Args carries modify
// arguments; Text carries the annotation body.
type Op struct {
	Kind OpKind
	Args []string
	Text string
}

// Querier lists tasks matching a filter in backend order.
type Querier interface {
	Export(ctx context.Context, filter string) ([]task.Task, error)
}

// Backend is the full capability set: query, mutate, undo.
type Backend interface {
	Querier
	Add(ctx context.Context, args []string) error
	Mutate(ctx context.Context, ids []uuid.UUID, op Op) error
	Undo(ctx context.Context) error
}

// Syncer is implemented by backends that can synchronise with a server.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Editor is implemented by backends that can open a task in an external editor.
type Editor interface {
	EditCommand(id uuid.UUID) *exec.Cmd
}

// CommandError reports an external command that exited unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no output"
	}
	return fmt.Sprintf("%s exited with %d: %s", strings.Join(e.Args, " "), e.ExitCode, msg)
}

// CombineFilters joins a context filter and a user filter so that the
// result matches tasks satisfying both, whatever operators either side uses.
func CombineFilters(context, filter string) string {
	context, filter = strings.TrimSpace(context), strings.TrimSpace(filter)
	if context == "" || filter == "" {
		return strings.TrimSpace(context + " " + filter)
	}
	return "( " + context + " ) ( " + filter + " )"
}

// OpenFilter matches the tasks taskwarrior's built-in reports list.
const OpenFilter = "status:pending or status:waiting"

// ScopeToOpen restricts filter to open tasks unless it has a status: term of
// its own. An unparsable filter is returned unchanged for the backend to
// reject.
func ScopeToOpen(filter string) string {
	words, err := shlex.Split(filter)
	if err != nil {
		return filter
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimLeft(w, "("))
		if strings.HasPrefix(w, "status:") || strings.HasPrefix(w, "status.") {
			return filter
		}
	}
	return CombineFilters(OpenFilter, filter)
}
