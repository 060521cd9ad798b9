package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the timestamp format used by taskwarrior's JSON export.
const TimeLayout = "20060102T150405Z"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
	StatusWaiting   Status = "waiting"
	StatusRecurring Status = "recurring"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusCompleted, StatusDeleted, StatusWaiting, StatusRecurring}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityNone   Priority = ""
	PriorityHigh   Priority = "H"
	PriorityMedium Priority = "M"
	PriorityLow    Priority = "L"
)

func ParsePriority(v string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(v))); p {
	case PriorityNone, PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return PriorityNone, fmt.Errorf("invalid priority %q", v)
	}
}

type Annotation struct {
	Entry       time.Time
	Description string
}

// Task is a read-only snapshot of one backend record. Snapshots are replaced
// wholesale on refresh and never modified in place.
type Task struct {
	ID          int
	UUID        uuid.UUID
	Description string
	Project     string
	Tags        []string
	Status      Status
	Priority    Priority
	Entry       time.Time
	Start       time.Time
	Due         time.Time
	Urgency     float64
	Annotations []Annotation
}

func (t Task) Active() bool { return !t.Start.IsZero() }

func (t Task) HasDue() bool { return !t.Due.IsZero() }

func (t Task) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// NormalizeTags drops empty and duplicate tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

type wireAnnotation struct {
	Entry       string `json:"entry"`
	Description string `json:"description"`
}

type wireTask struct {
	ID          int              `json:"id"`
	UUID        string           `json:"uuid"`
	Description string           `json:"description"`
	Project     string           `json:"project,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Status      string           `json:"status"`
	Priority    string           `json:"priority,omitempty"`
	Entry       string           `json:"entry,omitempty"`
	Start       string           `json:"start,omitempty"`
	Due         string           `json:"due,omitempty"`
	Urgency     float64          `json:"urgency"`
	Annotations []wireAnnotation `json:"annotations,omitempty"`
}

// Decode parses a taskwarrior JSON export (rc.json.array=on) into snapshots,
// preserving the backend's order.
func Decode(data []byte) ([]Task, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []Task{}, nil
	}
	var wire []wireTask
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	tasks := make([]Task, 0, len(wire))
	for _, w := range wire {
		t, err := w.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (w wireTask) toTask() (Task, error) {
	id, err := uuid.Parse(w.UUID)
	if err != nil {
		return Task{}, fmt.Errorf("task %q: invalid uuid: %w", w.Description, err)
	}
	status := Status(w.Status)
	if !status.Valid() {
		return Task{}, fmt.Errorf("task %s: unknown status %q", id, w.Status)
	}
	prio, err := ParsePriority(w.Priority)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	t := Task{
		ID:          w.ID,
		UUID:        id,
		Description: w.Description,
		Project:     w.Project,
		Tags:        NormalizeTags(w.Tags),
		Status:      status,
		Priority:    prio,
		Urgency:     w.Urgency,
	}
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{w.Entry, &t.Entry}, {w.Start, &t.Start}, {w.Due, &t.Due}} {
		if f.raw == "" {
			continue
		}
		parsed, err := time.Parse(TimeLayout, f.raw)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: %w", id, err)
		}
		*f.dst = parsed
	}
	for _, a := range w.Annotations {
		entry, _ := time.Parse(TimeLayout, a.Entry)
		t.Annotations = append(t.Annotations, Annotation{Entry: entry, Description: a.Description})
	}
	return t, nil
}

// Projects returns the distinct non-empty projects of tasks in first-seen order.
func Projects(tasks []Task) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range tasks {
		if t.Project == "" {
			continue
		}
		if _, ok := seen[t.Project]; ok {
			continue
		}
		seen[t.Project] = struct{}{}
		out = append(out, t.Project)
	}
	return out
}

// Tags returns the distinct tags of tasks in first-seen order.
func Tags(tasks []Task) []string {
	var all []string
	for _, t := range tasks {
		all = append(all, t.Tags...)
	}
	return NormalizeTags(all)
}
