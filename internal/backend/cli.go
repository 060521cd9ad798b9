package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"taskdash/internal/task"
)

// reportArgMinVersion is the first taskwarrior release that accepts a report
// name after the export command.
const reportArgMinVersion = "v3.0.0"

var exportOverrides = []string{
	"rc.json.array=on",
	"rc.confirmation=off",
	"rc.json.depends.array=on",
	"rc.color=off",
	"rc._forcecolor=off",
}

var bulkOverrides = []string{
	"rc.bulk=0",
	"rc.confirmation=off",
	"rc.dependency.confirmation=off",
	"rc.recurrence.confirmation=off",
}

// CLI talks to taskwarrior by running the task binary.
type CLI struct {
	bin     string
	report  string
	timeout time.Duration
	runner  Runner
	logger  *slog.Logger

	versionOnce sync.Once
	version     string
	versionErr  error
}

type CLIOptions struct {
	Bin     string
	Report  string
	Timeout time.Duration
	Runner  Runner
	Logger  *slog.Logger
}

func NewCLI(opts CLIOptions) *CLI {
	c := &CLI{
		bin:     opts.Bin,
		report:  opts.Report,
		timeout: opts.Timeout,
		runner:  opts.Runner,
		logger:  opts.Logger,
	}
	if c.bin == "" {
		c.bin = "task"
	}
	if c.report == "" {
		c.report = "next"
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.runner == nil {
		c.runner = ExecRunner{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.logger.Debug("running task command", "bin", c.bin, "args", args)
	stdout, _, err := c.runner.Run(ctx, c.bin, args...)
	return stdout, err
}

// Version reports the taskwarrior version, detected once per process.
func (c *CLI) Version(ctx context.Context) (string, error) {
	c.versionOnce.Do(func() {
		out, err := c.run(ctx, "--version")
		if err != nil {
			c.versionErr = fmt.Errorf("detect taskwarrior version: %w", err)
			return
		}
		c.version = parseVersion(out)
		if !semver.IsValid("v" + c.version) {
			c.versionErr = fmt.Errorf("unrecognised taskwarrior version %q", strings.TrimSpace(out))
		}
	})
	return c.version, c.versionErr
}

// parseVersion accepts "3.1.0", "task 2.6.2 (2022-10-19)" and similar.
func parseVersion(out string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "task" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

func (c *CLI) Export(ctx context.Context, filter string) ([]task.Task, error) {
	version, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	args := append([]string{}, exportOverrides...)
	if f := strings.TrimSpace(filter); f != "" {
		args = append(args, fmt.Sprintf("rc.report.%s.filter=%s", c.report, ScopeToOpen(f)))
	}
	args = append(args, "export")
	if semver.Compare("v"+version, reportArgMinVersion) >= 0 {
		args = append(args, c.report)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("task export failed: %w", err)
	}
	tasks, err := task.Decode([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("task export failed: %w", err)
	}
	return tasks, nil
}

func (c *CLI) Add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("task add: description is empty")
	}
	if _, err := c.run(ctx, append([]string{"add"}, args...)...); err != nil {
		return fmt.Errorf("task add failed: %w", err)
	}
	return nil
}

func (c *CLI) Mutate(ctx context.Context, ids []uuid.UUID, op Op) error {
	if len(ids) == 0 {
		return fmt.Errorf("task %s: no tasks selected", op.Kind)
	}
	args := append([]string{}, bulkOverrides...)
	for _, id := range ids {
		args = append(args, id.String())
	}
	args = append(args, op.Kind.String())
	switch op.Kind {
	case OpModify:
		if len(op.Args) == 0 {
			return fmt.Errorf("task modify: no modifications given")
		}
		args = append(args, op.Args...)
	case OpAnnotate:
		if strings.TrimSpace(op.Text) == "" {
			return fmt.Errorf("task annotate: annotation is empty")
		}
		args = append(args, op.Text)
	}
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("task %s failed: %w", op.Kind, err)
	}
	return nil
}

func (c *CLI) Undo(ctx context.Context) error {
	if _, err := c.run(ctx, "rc.confirmation=off", "undo"); err != nil {
		return fmt.Errorf("task undo failed: %w", err)
	}
	return nil
}

func (c *CLI) Sync(ctx context.Context) error {
	if _, err := c.run(ctx, "sync"); err != nil {
		return fmt.Errorf("task sync failed: %w", err)
	}
	return nil
}

func (c *CLI) EditCommand(id uuid.UUID) *exec.Cmd {
	return exec.Command(c.bin, id.String(), "edit")
}
