// Package table holds the task list projection shown by the dashboard:
// the snapshot, the visible order, the cursor, marks and the viewport.
package table

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"taskdash/internal/backend"
	"taskdash/internal/task"
)

// NoCursor is the cursor value while the visible sequence is empty.
const NoCursor = -1

type SortKey int

const (
	SortNone SortKey = iota
	SortUrgency
	SortDue
	SortProject
	SortDescription
	sortKeyCount
)

func (k SortKey) String() string {
	switch k {
	case SortUrgency:
		return "urgency"
	case SortDue:
		return "due"
	case SortProject:
		return "project"
	case SortDescription:
		return "description"
	default:
		return "report"
	}
}

func (k SortKey) Next() SortKey {
	return (k + 1) % sortKeyCount
}

type State struct {
	snapshot map[uuid.UUID]task.Task
	order    []uuid.UUID
	visible  []uuid.UUID
	marked   map[uuid.UUID]struct{}
	cursor   int
	offset   int
	height   int
	filter   string
	context  string
	sortKey  SortKey
	looping  bool
}

func New(looping bool) *State {
	return &State{
		snapshot: map[uuid.UUID]task.Task{},
		marked:   map[uuid.UUID]struct{}{},
		cursor:   NoCursor,
		looping:  looping,
	}
}

// SetTasks replaces the snapshot wholesale. The cursor follows the
// previously selected task if it survived, marks of vanished tasks are
// dropped and the current sort is reapplied.
func (s *State) SetTasks(tasks []task.Task) {
	selected, hadSelection := s.currentID()

	s.snapshot = make(map[uuid.UUID]task.Task, len(tasks))
	s.order = make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := s.snapshot[t.UUID]; dup {
			continue
		}
		s.snapshot[t.UUID] = t
		s.order = append(s.order, t.UUID)
	}
	for id := range s.marked {
		if _, ok := s.snapshot[id]; !ok {
			delete(s.marked, id)
		}
	}
	s.resort()
	s.reselect(selected, hadSelection)
}

// Query is the filter handed to the backend: the context combined with the
// user filter.
func (s *State) Query() string {
	return backend.CombineFilters(s.context, s.filter)
}

// ApplyFilter asks the backend for the tasks matching filter and installs
// the result. On error nothing changes.
func (s *State) ApplyFilter(ctx context.Context, q backend.Querier, filter string) error {
	tasks, err := q.Export(ctx, backend.CombineFilters(s.context, filter))
	if err != nil {
		return err
	}
	s.filter = strings.TrimSpace(filter)
	s.SetTasks(tasks)
	return nil
}

// ApplyContext switches the context filter, with the same failure rule as
// ApplyFilter.
func (s *State) ApplyContext(ctx context.Context, q backend.Querier, contextFilter string) error {
	tasks, err := q.Export(ctx, backend.CombineFilters(contextFilter, s.filter))
	if err != nil {
		return err
	}
	s.context = strings.TrimSpace(contextFilter)
	s.SetTasks(tasks)
	return nil
}

// Refresh re-runs the current query.
func (s *State) Refresh(ctx context.Context, q backend.Querier) error {
	tasks, err := q.Export(ctx, s.Query())
	if err != nil {
		return err
	}
	s.SetTasks(tasks)
	return nil
}

func (s *State) Filter() string  { return s.filter }
func (s *State) Context() string { return s.context }
func (s *State) Len() int        { return len(s.visible) }
func (s *State) Cursor() int     { return s.cursor }
func (s *State) Offset() int     { return s.offset }
func (s *State) Height() int     { return s.height }
func (s *State) Looping() bool   { return s.looping }
func (s *State) Sort() SortKey   { return s.sortKey }

func (s *State) Task(id uuid.UUID) (task.Task, bool) {
	t, ok := s.snapshot[id]
	return t, ok
}

// Current returns the task under the cursor.
func (s *State) Current() (task.Task, bool) {
	id, ok := s.currentID()
	if !ok {
		return task.Task{}, false
	}
	return s.snapshot[id], true
}

func (s *State) currentID() (uuid.UUID, bool) {
	if s.cursor < 0 || s.cursor >= len(s.visible) {
		return uuid.Nil, false
	}
	return s.visible[s.cursor], true
}

// Visible returns the visible tasks in display order.
func (s *State) Visible() []task.Task {
	out := make([]task.Task, len(s.visible))
	for i, id := range s.visible {
		out[i] = s.snapshot[id]
	}
	return out
}

func (s *State) IDs() []uuid.UUID {
	return slices.Clone(s.visible)
}

// MoveCursor moves by delta rows, wrapping when looping is on and clamping
// otherwise.
func (s *State) MoveCursor(delta int) {
	n := len(s.visible)
	if n == 0 {
		return
	}
	next := s.cursor + delta
	if s.looping {
		next = ((next % n) + n) % n
	} else {
		next = clamp(next, 0, n-1)
	}
	s.cursor = next
	s.ScrollTo(s.cursor)
}

// Page moves by a viewport height. Paging never wraps.
func (s *State) Page(dir int) {
	if len(s.visible) == 0 {
		return
	}
	step := s.height
	if step < 1 {
		step = 1
	}
	s.SetCursor(s.cursor + dir*step)
}

// SetCursor jumps to index, clamped to the visible range.
func (s *State) SetCursor(index int) {
	if len(s.visible) == 0 {
		return
	}
	s.cursor = clamp(index, 0, len(s.visible)-1)
	s.ScrollTo(s.cursor)
}

func (s *State) SetHeight(h int) {
	if h < 1 {
		h = 1
	}
	s.height = h
	s.ScrollTo(s.cursor)
}

// ScrollTo makes row index visible. A row outside the window is centered.
func (s *State) ScrollTo(index int) {
	n := len(s.visible)
	if n == 0 || s.height <= 0 {
		s.offset = 0
		return
	}
	index = clamp(index, 0, n-1)
	if index < s.offset || index >= s.offset+s.height {
		s.offset = index - s.height/2
	}
	s.offset = clamp(s.offset, 0, max(0, n-s.height))
}

// Window returns the half-open range of visible rows inside the viewport.
func (s *State) Window() (int, int) {
	n := len(s.visible)
	if s.height <= 0 {
		return 0, n
	}
	return s.offset, min(n, s.offset+s.height)
}

func (s *State) ToggleMark(id uuid.UUID) {
	if _, ok := s.snapshot[id]; !ok {
		return
	}
	if _, ok := s.marked[id]; ok {
		delete(s.marked, id)
		return
	}
	s.marked[id] = struct{}{}
}

// ToggleCurrent toggles the mark on the cursor row.
func (s *State) ToggleCurrent() {
	if id, ok := s.currentID(); ok {
		s.ToggleMark(id)
	}
}

// MarkAll marks every visible task. Marks on filtered-out tasks are kept.
func (s *State) MarkAll() {
	for _, id := range s.visible {
		s.marked[id] = struct{}{}
	}
}

// ToggleAll clears the marks when every visible task is marked and marks
// them all otherwise.
func (s *State) ToggleAll() {
	all := len(s.visible) > 0
	for _, id := range s.visible {
		if _, ok := s.marked[id]; !ok {
			all = false
			break
		}
	}
	if all {
		s.ClearMarks()
		return
	}
	s.MarkAll()
}

func (s *State) ClearMarks() {
	clear(s.marked)
}

func (s *State) Marked(id uuid.UUID) bool {
	_, ok := s.marked[id]
	return ok
}

// Marks returns the marked ids in display order.
func (s *State) Marks() []uuid.UUID {
	var out []uuid.UUID
	for _, id := range s.visible {
		if _, ok := s.marked[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Selection is what a task command acts on: the marked tasks, or the
// cursor row when nothing is marked.
func (s *State) Selection() []uuid.UUID {
	if marks := s.Marks(); len(marks) > 0 {
		return marks
	}
	if id, ok := s.currentID(); ok {
		return []uuid.UUID{id}
	}
	return nil
}

// SortBy reorders the visible rows. The sort is stable over the backend
// order and the cursor stays on the same task.
func (s *State) SortBy(key SortKey) {
	selected, had := s.currentID()
	s.sortKey = key
	s.resort()
	s.reselect(selected, had)
}

func (s *State) resort() {
	s.visible = slices.Clone(s.order)
	cmpFn := s.compare()
	if cmpFn == nil {
		return
	}
	slices.SortStableFunc(s.visible, func(a, b uuid.UUID) int {
		return cmpFn(s.snapshot[a], s.snapshot[b])
	})
}

func (s *State) compare() func(a, b task.Task) int {
	switch s.sortKey {
	case SortUrgency:
		return func(a, b task.Task) int { return cmp.Compare(b.Urgency, a.Urgency) }
	case SortDue:
		return func(a, b task.Task) int {
			switch {
			case a.HasDue() && b.HasDue():
				return a.Due.Compare(b.Due)
			case a.HasDue():
				return -1
			case b.HasDue():
				return 1
			}
			return 0
		}
	case SortProject:
		return func(a, b task.Task) int {
			if (a.Project == "") != (b.Project == "") {
				if a.Project == "" {
					return 1
				}
				return -1
			}
			return cmp.Compare(a.Project, b.Project)
		}
	case SortDescription:
		return func(a, b task.Task) int {
			return cmp.Compare(strings.ToLower(a.Description), strings.ToLower(b.Description))
		}
	}
	return nil
}

func (s *State) reselect(id uuid.UUID, had bool) {
	n := len(s.visible)
	if n == 0 {
		s.cursor = NoCursor
		s.offset = 0
		return
	}
	if had {
		if i := slices.Index(s.visible, id); i >= 0 {
			s.cursor = i
			s.ScrollTo(i)
			return
		}
	}
	s.cursor = clamp(s.cursor, 0, n-1)
	s.ScrollTo(s.cursor)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
