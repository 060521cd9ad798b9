package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

var (
	ErrNoSelection    = errors.New("no task selected")
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is a parsed command-line buffer.
type Command struct {
	Verb string
	Args []string
}

// ParseCommand splits buf with shell quoting rules. A leading "task" is
// accepted and dropped.
func ParseCommand(buf string) (Command, error) {
	words, err := shlex.Split(buf)
	if err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	if len(words) > 0 && words[0] == "task" {
		words = words[1:]
	}
	if len(words) == 0 {
		return Command{}, errors.New("empty command")
	}
	cmd := Command{Verb: strings.ToLower(words[0]), Args: words[1:]}
	switch cmd.Verb {
	case "add", "modify", "annotate":
		if len(cmd.Args) == 0 {
			return Command{}, fmt.Errorf("%s needs arguments", cmd.Verb)
		}
	case "done", "delete", "start", "stop", "undo", "sync":
		if len(cmd.Args) > 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd.Verb)
		}
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Verb)
	}
	return cmd, nil
}

// Action converts the command to the action that carries it out.
func (c Command) Action() Action {
	switch c.Verb {
	case "add":
		return Action{Kind: ActAdd, Args: c.Args}
	case "modify":
		return Action{Kind: ActModify, Args: c.Args}
	case "annotate":
		return Action{Kind: ActAnnotate, Text: strings.Join(c.Args, " ")}
	case "done":
		return Action{Kind: ActDone}
	case "delete":
		return Action{Kind: ActDelete}
	case "start":
		return Action{Kind: ActStartStop, Text: "start"}
	case "stop":
		return Action{Kind: ActStartStop, Text: "stop"}
	case "undo":
		return Action{Kind: ActUndo}
	case "sync":
		return Action{Kind: ActSync}
	}
	return Action{}
}
