package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdash/internal/backend"
	"taskdash/internal/task"
)

const uuidTagPrefix = "uuid:"

// Timew drives the timewarrior CLI.
type Timew struct {
	Bin                string
	TagPrefix          string
	IncludeProject     bool
	IncludeDescription bool
	Timeout            time.Duration
	Runner             backend.Runner
}

func (t *Timew) run(ctx context.Context, args ...string) (string, error) {
	bin := t.Bin
	if bin == "" {
		bin = "timew"
	}
	runner := t.Runner
	if runner == nil {
		runner = backend.ExecRunner{}
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, _, err := runner.Run(ctx, bin, args...)
	return out, err
}

type activeInterval struct {
	Start string   `json:"start"`
	Tags  []string `json:"tags"`
}

func (t *Timew) active(ctx context.Context) (*activeInterval, error) {
	out, err := t.run(ctx, "get", "dom.active")
	if err != nil {
		return nil, fmt.Errorf("timew get dom.active: %w", err)
	}
	if strings.TrimSpace(out) != "1" {
		return nil, nil
	}
	out, err = t.run(ctx, "get", "dom.active.json")
	if err != nil {
		return nil, fmt.Errorf("timew get dom.active.json: %w", err)
	}
	var iv activeInterval
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &iv); err != nil {
		return nil, fmt.Errorf("timew active interval: %w", err)
	}
	return &iv, nil
}

func (t *Timew) TrackedIDs(ctx context.Context) ([]uuid.UUID, error) {
	iv, err := t.active(ctx)
	if err != nil || iv == nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, tag := range iv.Tags {
		raw, ok := strings.CutPrefix(tag, uuidTagPrefix)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Tags builds the timewarrior tags recorded for a task.
func (t *Timew) Tags(tk task.Task) []string {
	tags := []string{uuidTagPrefix + tk.UUID.String()}
	if t.IncludeProject && tk.Project != "" {
		tags = append(tags, t.TagPrefix+tk.Project)
	}
	if t.IncludeDescription && tk.Description != "" {
		tags = append(tags, t.TagPrefix+tk.Description)
	}
	for _, tag := range tk.Tags {
		tags = append(tags, t.TagPrefix+tag)
	}
	return tags
}

func (t *Timew) Start(ctx context.Context, tk task.Task) error {
	if _, err := t.run(ctx, append([]string{"start"}, t.Tags(tk)...)...); err != nil {
		return fmt.Errorf("timew start: %w", err)
	}
	return nil
}

func (t *Timew) Stop(ctx context.Context) error {
	if _, err := t.run(ctx, "stop"); err != nil {
		return fmt.Errorf("timew stop: %w", err)
	}
	return nil
}

type Status struct {
	Available   bool
	Enabled     bool
	Active      bool
	ActiveTags  []string
	ActiveSince time.Time
}

func (t *Timew) Status(ctx context.Context, enabled bool) Status {
	st := Status{Enabled: enabled}
	if _, err := t.run(ctx, "--version"); err != nil {
		return st
	}
	st.Available = true
	iv, err := t.active(ctx)
	if err != nil || iv == nil {
		return st
	}
	st.Active = true
	st.ActiveTags = iv.Tags
	st.ActiveSince, _ = time.Parse(task.TimeLayout, iv.Start)
	return st
}

// Instructions describes what is missing for the integration to work.
func (s Status) Instructions() []string {
	var lines []string
	if s.Available {
		lines = append(lines, "ok   timewarrior found")
	} else {
		lines = append(lines,
			"FAIL timewarrior not found; install it first:",
			"     linux: apt install timewarrior / dnf install timew",
			"     macOS: brew install timewarrior")
	}
	if s.Enabled {
		lines = append(lines, "ok   tracking integration enabled")
	} else {
		lines = append(lines, "FAIL tracking integration disabled; set [tracking] enabled = true")
	}
	if s.Active {
		lines = append(lines, fmt.Sprintf("     tracking since %s: %s", s.ActiveSince.Local().Format("15:04"), strings.Join(s.ActiveTags, " ")))
	}
	return lines
}
