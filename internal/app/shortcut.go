package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"taskdash/internal/backend"
)

// ShortcutError reports a shortcut script that exited unsuccessfully.
type ShortcutError struct {
	Script   string
	ExitCode int
	Stderr   string
}

func (e *ShortcutError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with %d", e.Script, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with %d: %s", e.Script, e.ExitCode, msg)
}

// Scripts runs user scripts with the selected task uuids appended to the
// command line. Calls block until the script exits or the timeout passes.
type Scripts struct {
	Runner  backend.Runner
	Timeout time.Duration
}

func (s Scripts) Run(ctx context.Context, script string, ids []uuid.UUID) error {
	words, err := shlex.Split(script)
	if err != nil {
		return fmt.Errorf("parse %q: %w", script, err)
	}
	if len(words) == 0 {
		return errors.New("empty shortcut command")
	}
	name := expandHome(words[0])
	args := words[1:]
	for _, id := range ids {
		args = append(args, id.String())
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runner := s.Runner
	if runner == nil {
		runner = backend.ExecRunner{}
	}
	_, stderr, err := runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}
	var cmdErr *backend.CommandError
	if errors.As(err, &cmdErr) {
		return &ShortcutError{Script: script, ExitCode: cmdErr.ExitCode, Stderr: cmdErr.Stderr}
	}
	if strings.TrimSpace(stderr) != "" {
		return fmt.Errorf("%s: %w: %s", script, err, strings.TrimSpace(stderr))
	}
	return fmt.Errorf("%s: %w", script, err)
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
