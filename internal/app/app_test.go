package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"taskdash/internal/backend"
	"taskdash/internal/config"
	"taskdash/internal/event"
	"taskdash/internal/task"
	"taskdash/internal/tracking"
)

type mutation struct {
	ids []uuid.UUID
	op  backend.Op
}

type fakeBackend struct {
	tasks     []task.Task
	exportErr error
	mutateErr error
	exports   []string
	mutations []mutation
	adds      [][]string
	undos     int
}

func (f *fakeBackend) Export(ctx context.Context, filter string) ([]task.Task, error) {
	f.exports = append(f.exports, filter)
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return slices.Clone(f.tasks), nil
}

func (f *fakeBackend) Add(ctx context.Context, args []string) error {
	f.adds = append(f.adds, args)
	return f.mutateErr
}

func (f *fakeBackend) Mutate(ctx context.Context, ids []uuid.UUID, op backend.Op) error {
	f.mutations = append(f.mutations, mutation{ids: slices.Clone(ids), op: op})
	return f.mutateErr
}

func (f *fakeBackend) Undo(ctx context.Context) error {
	f.undos++
	return f.mutateErr
}

func (f *fakeBackend) calls() int {
	return len(f.mutations) + len(f.adds) + f.undos
}

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return "", "", f.err
}

type fakeTracker struct {
	started []uuid.UUID
	stopped int
}

func (f *fakeTracker) Start(ctx context.Context, t task.Task) error {
	f.started = append(f.started, t.UUID)
	return nil
}

func (f *fakeTracker) Stop(ctx context.Context) error {
	f.stopped++
	return nil
}

type countingQuerier struct{ n int }

func (q *countingQuerier) TrackedIDs(ctx context.Context) ([]uuid.UUID, error) {
	q.n++
	return nil, nil
}

func sampleTasks() []task.Task {
	return []task.Task{
		{ID: 1, UUID: uuid.New(), Description: "write report", Project: "work", Status: task.StatusPending},
		{ID: 2, UUID: uuid.New(), Description: "buy milk", Project: "home", Status: task.StatusPending},
		{ID: 3, UUID: uuid.New(), Description: "call bob", Project: "work", Status: task.StatusPending},
	}
}

type harness struct {
	app    *App
	be     *fakeBackend
	runner *fakeRunner
	clock  time.Time
}

func newHarness(t *testing.T, tweak func(*config.Config, *Options)) *harness {
	t.Helper()
	h := &harness{
		be:     &fakeBackend{tasks: sampleTasks()},
		runner: &fakeRunner{},
		clock:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	cfg := config.Default()
	opts := Options{
		Backend: h.be,
		Runner:  h.runner,
		Now:     func() time.Time { return h.clock },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if tweak != nil {
		tweak(&cfg, &opts)
	}
	opts.Config = cfg
	h.app = New(opts)
	if err := h.app.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return h
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+z":
		return tea.KeyMsg{Type: tea.KeyCtrlZ}
	case "ctrl+a":
		return tea.KeyMsg{Type: tea.KeyCtrlA}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (h *harness) press(keys ...string) Result {
	var res Result
	for _, k := range keys {
		res = h.app.Handle(event.Input{Key: keyMsg(k)})
	}
	return res
}

func TestFilterModeSwallowsTableKeys(t *testing.T) {
	h := newHarness(t, nil)

	h.press("/")
	if h.app.Mode().Kind != ModeFilter {
		t.Fatalf("expected filter mode, got %s", h.app.Mode().Kind)
	}
	h.press("d", "x", "j")
	if h.be.calls() != 0 {
		t.Fatalf("expected no backend mutations while filtering, got %d", h.be.calls())
	}
	if got := h.app.Editor().Value(); got != "dxj" {
		t.Fatalf("expected keys in the filter buffer, got %q", got)
	}
	if h.app.Table().Cursor() != 0 {
		t.Fatalf("expected cursor untouched, got %d", h.app.Table().Cursor())
	}

	h.press("esc")
	if h.app.Mode().Kind != ModeNormal || h.be.calls() != 0 {
		t.Fatalf("expected normal mode with no calls")
	}
}

func TestSubmitFilterQueriesBackend(t *testing.T) {
	h := newHarness(t, nil)
	h.press("/", "project:work", "enter")

	if h.app.Mode().Kind != ModeNormal {
		t.Fatalf("expected normal mode after submit")
	}
	if h.app.Table().Filter() != "project:work" {
		t.Fatalf("expected filter applied, got %q", h.app.Table().Filter())
	}
	if last := h.be.exports[len(h.be.exports)-1]; last != "project:work" {
		t.Fatalf("expected backend query with filter, got %q", last)
	}
}

func TestEscapeResetsFilterWhenConfigured(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Options) { c.ResetFilterOnEscape = true })
	h.press("/", "+home", "enter")
	h.press("/", "esc")
	if h.app.Table().Filter() != "" {
		t.Fatalf("expected filter reset, got %q", h.app.Table().Filter())
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	want := h.app.Table().Selection()

	h.press("x")
	mode := h.app.Mode()
	if mode.Kind != ModeConfirm || mode.Pending == nil || mode.Pending.Kind != ActDelete {
		t.Fatalf("expected confirm mode with pending delete, got %+v", mode)
	}
	if h.be.calls() != 0 {
		t.Fatalf("expected no call before confirmation")
	}

	h.press("n")
	if h.app.Mode().Kind != ModeNormal || h.be.calls() != 0 {
		t.Fatalf("expected cancel with zero backend calls, got %d", h.be.calls())
	}
	if h.app.Status().Text != "Cancelled" {
		t.Fatalf("unexpected status %q", h.app.Status().Text)
	}

	h.press("x", "y")
	if len(h.be.mutations) != 1 {
		t.Fatalf("expected one mutation, got %d", len(h.be.mutations))
	}
	m := h.be.mutations[0]
	if m.op.Kind != backend.OpDelete || !slices.Equal(m.ids, want) {
		t.Fatalf("unexpected mutation %+v", m)
	}
}

func TestPendingActionKeepsSelectionFromPrompt(t *testing.T) {
	h := newHarness(t, nil)
	tasks := h.be.tasks

	h.press("v", "j", "j", "v")
	h.press("x")
	// Navigation keys are ignored while confirming.
	h.press("k", "v")
	h.press("y")

	if len(h.be.mutations) != 1 {
		t.Fatalf("expected one mutation, got %d", len(h.be.mutations))
	}
	want := []uuid.UUID{tasks[0].UUID, tasks[2].UUID}
	if got := h.be.mutations[0].ids; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(h.app.Table().Marks()) != 0 {
		t.Fatalf("expected marks cleared after success")
	}
}

func TestFailedMutationLeavesTableUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.be.mutateErr = &backend.CommandError{Args: []string{"task", "done"}, ExitCode: 1, Stderr: "locked"}

	h.press("j", "v")
	tbl := h.app.Table()
	ids, marks, cursor := tbl.IDs(), tbl.Marks(), tbl.Cursor()
	exports := len(h.be.exports)

	h.press("d")
	if len(h.be.mutations) != 1 {
		t.Fatalf("expected the backend to be called once, got %d", len(h.be.mutations))
	}
	if !slices.Equal(tbl.IDs(), ids) || !slices.Equal(tbl.Marks(), marks) || tbl.Cursor() != cursor {
		t.Fatalf("expected table unchanged after failure")
	}
	if len(h.be.exports) != exports {
		t.Fatalf("expected no refresh after failure")
	}
	st := h.app.Status()
	if !st.Err || !strings.Contains(st.Text, "done failed") || !strings.Contains(st.Text, "locked") {
		t.Fatalf("unexpected status %+v", st)
	}
	if h.app.Mode().Kind != ModeNormal {
		t.Fatalf("expected normal mode")
	}
}

func TestSuccessfulMutationRefreshes(t *testing.T) {
	h := newHarness(t, nil)
	exports := len(h.be.exports)
	h.press("d")
	if len(h.be.exports) <= exports {
		t.Fatalf("expected a refresh after done")
	}
	if h.app.Status().Text != "Completed 1 task" {
		t.Fatalf("unexpected status %q", h.app.Status().Text)
	}
}

func TestBulkModifyFromCommandLine(t *testing.T) {
	h := newHarness(t, nil)
	h.press("V")
	h.press("m", "+urgent", "enter")

	if h.app.Mode().Kind != ModeConfirm {
		t.Fatalf("expected confirmation for bulk modify, got %s", h.app.Mode().Kind)
	}
	if !strings.Contains(h.app.Status().Text, "Modify 3 tasks") {
		t.Fatalf("unexpected prompt %q", h.app.Status().Text)
	}
	h.press("y")
	if len(h.be.mutations) != 1 {
		t.Fatalf("expected one mutation, got %d", len(h.be.mutations))
	}
	m := h.be.mutations[0]
	if m.op.Kind != backend.OpModify || !slices.Equal(m.op.Args, []string{"+urgent"}) || len(m.ids) != 3 {
		t.Fatalf("unexpected mutation %+v", m)
	}
}

func TestAddAndUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	h.press("a", `"pay rent" due:tomorrow`, "enter")
	if len(h.be.adds) != 1 || !slices.Equal(h.be.adds[0], []string{"pay rent", "due:tomorrow"}) {
		t.Fatalf("unexpected adds %v", h.be.adds)
	}

	h.press(":", "frobnicate", "enter")
	st := h.app.Status()
	if !st.Err || !strings.Contains(st.Text, "unknown command") {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestAnnotateMode(t *testing.T) {
	h := newHarness(t, nil)
	h.press("A", "called back", "enter")
	if len(h.be.mutations) != 1 || h.be.mutations[0].op.Kind != backend.OpAnnotate || h.be.mutations[0].op.Text != "called back" {
		t.Fatalf("unexpected mutations %+v", h.be.mutations)
	}
}

func TestShortcutRunsWithSelection(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Options) {
		c.Shortcuts = map[string]string{"1": "notify --urgent"}
	})
	first := h.be.tasks[0].UUID

	h.press("1")
	if len(h.runner.calls) != 1 {
		t.Fatalf("expected one script call, got %d", len(h.runner.calls))
	}
	want := []string{"notify", "--urgent", first.String()}
	if !slices.Equal(h.runner.calls[0], want) {
		t.Fatalf("expected %v, got %v", want, h.runner.calls[0])
	}

	h.runner.err = &backend.CommandError{Args: want, ExitCode: 3, Stderr: "boom\n"}
	h.press("1")
	st := h.app.Status()
	if !st.Err || !strings.Contains(st.Text, "exited with 3: boom") {
		t.Fatalf("unexpected status %+v", st)
	}

	h.press("2")
	if !strings.Contains(h.app.Status().Text, "not configured") {
		t.Fatalf("unexpected status %q", h.app.Status().Text)
	}
}

func TestTickRefreshesCacheOncePerTTL(t *testing.T) {
	q := &countingQuerier{}
	h := newHarness(t, func(c *config.Config, o *Options) {
		o.Cache = tracking.NewCache(q, 5*time.Second, 0, nil)
	})
	start := h.clock
	for _, offset := range []time.Duration{0, 2 * time.Second, 6 * time.Second} {
		h.clock = start.Add(offset)
		h.app.Handle(event.Tick{Now: h.clock})
	}
	if q.n != 2 {
		t.Fatalf("expected 2 tracking queries, got %d", q.n)
	}
}

func TestBackgroundJobIsFailStop(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Options) {
		c.Background = config.BackgroundConfig{Command: "task sync", PeriodSeconds: 30}
	})

	res := h.app.Handle(event.Tick{})
	if len(res.Async) != 1 {
		t.Fatalf("expected a background job, got %d", len(res.Async))
	}
	if res := h.app.Handle(event.Tick{}); len(res.Async) != 0 {
		t.Fatalf("expected no second job while one is running")
	}

	h.runner.err = errors.New("network down")
	done := res.Async[0]()
	h.app.Handle(done)
	if !h.app.BackgroundDisabled() {
		t.Fatalf("expected background job disabled after failure")
	}

	h.runner.err = nil
	h.clock = h.clock.Add(time.Hour)
	if res := h.app.Handle(event.Tick{}); len(res.Async) != 0 {
		t.Fatalf("expected no retry after failure")
	}
}

func TestTabCompletesInCommandMode(t *testing.T) {
	h := newHarness(t, nil)
	h.press(":", "add project:wo", "tab")
	if got := h.app.Editor().Value(); got != "add project:work" {
		t.Fatalf("expected completion, got %q", got)
	}
	h.press("ctrl+z")
	if got := h.app.Editor().Value(); got != "add project:wo" {
		t.Fatalf("expected undo to restore buffer, got %q", got)
	}
}

func TestContextMenuAppliesFilter(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Options) {
		c.Contexts = map[string]string{"work": "project:work"}
	})
	h.press("/", "+next", "enter")
	h.press("c")
	if h.app.Mode().Kind != ModeContextMenu {
		t.Fatalf("expected context menu")
	}
	h.press("j", "enter")
	if last := h.be.exports[len(h.be.exports)-1]; last != "( project:work ) ( +next )" {
		t.Fatalf("expected context combined with filter, got %q", last)
	}
	if h.app.Table().Context() != "project:work" {
		t.Fatalf("expected context stored, got %q", h.app.Table().Context())
	}
}

func TestStartStopDrivesTracker(t *testing.T) {
	tr := &fakeTracker{}
	h := newHarness(t, func(c *config.Config, o *Options) { o.Tracker = tr })
	first := h.be.tasks[0].UUID

	h.press("s")
	if len(h.be.mutations) != 1 || h.be.mutations[0].op.Kind != backend.OpStart {
		t.Fatalf("expected start mutation, got %+v", h.be.mutations)
	}
	if !slices.Equal(tr.started, []uuid.UUID{first}) {
		t.Fatalf("expected tracker start for %s, got %v", first, tr.started)
	}

	h.be.tasks[0].Start = h.clock
	h.press("r", "s")
	if last := h.be.mutations[len(h.be.mutations)-1]; last.op.Kind != backend.OpStop {
		t.Fatalf("expected stop mutation, got %+v", last)
	}
}

func TestEditUnsupportedBackend(t *testing.T) {
	h := newHarness(t, nil)
	res := h.press("e")
	if res.Exec != nil {
		t.Fatalf("expected no exec for a backend without an editor")
	}
	if !strings.Contains(h.app.Status().Text, "not supported") {
		t.Fatalf("unexpected status %q", h.app.Status().Text)
	}
}

func TestYankCopiesSelection(t *testing.T) {
	var copied string
	h := newHarness(t, func(c *config.Config, o *Options) {
		o.Clipboard = func(s string) error { copied = s; return nil }
	})
	h.press("V", "Y")
	if got := strings.Fields(copied); len(got) != 3 || got[0] != h.be.tasks[0].UUID.String() {
		t.Fatalf("unexpected clipboard %q", copied)
	}
}

func TestQuitAndLoopingKeys(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Options) { c.Looping = true })
	h.press("k")
	if h.app.Table().Cursor() != 2 {
		t.Fatalf("expected wrap to last row, got %d", h.app.Table().Cursor())
	}
	if res := h.press("q"); !res.Quit {
		t.Fatalf("expected quit")
	}
}

func TestLoadFailureIsReported(t *testing.T) {
	be := &fakeBackend{exportErr: backend.ErrTimeout}
	a := New(Options{Config: config.Default(), Backend: be, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err := a.Load(); !errors.Is(err, backend.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !a.Status().Err || a.Table().Cursor() != -1 {
		t.Fatalf("expected error status and empty table")
	}
}

func TestConflictingKeysReportedAtStartup(t *testing.T) {
	h := newHarness(t, func(c *config.Config, _ *Options) {
		c.Keys = c.Keys.Merge(config.Keymap{"delete": {"d"}})
	})
	if len(h.app.Conflicts()) != 1 || !h.app.Status().Err {
		t.Fatalf("expected one reported conflict")
	}
	// done wins the chord; delete is left without a key.
	h.press("d")
	if len(h.be.mutations) != 1 || h.be.mutations[0].op.Kind != backend.OpDone {
		t.Fatalf("expected d to complete, got %+v", h.be.mutations)
	}
}

func TestDetailShowsCursorTask(t *testing.T) {
	h := newHarness(t, nil)
	h.press("j", "i")
	if h.app.Mode().Kind != ModeDetail {
		t.Fatalf("expected detail mode, got %s", h.app.Mode().Kind)
	}
	if got := h.app.Detail().Description; got != "buy milk" {
		t.Fatalf("expected detail of the cursor task, got %q", got)
	}
	h.press("j", "j")
	if h.app.DetailTop() != 2 || h.app.Table().Cursor() != 1 {
		t.Fatalf("expected detail to scroll without moving the cursor, got top %d cursor %d", h.app.DetailTop(), h.app.Table().Cursor())
	}
	h.press("esc")
	if h.app.Mode().Kind != ModeNormal {
		t.Fatalf("expected esc to close details, got %s", h.app.Mode().Kind)
	}
	h.press("enter")
	if h.app.Mode().Kind != ModeDetail || h.app.DetailTop() != 0 {
		t.Fatalf("expected enter to open details at the top")
	}
}

func TestDetailWithEmptyTableFails(t *testing.T) {
	h := newHarness(t, nil)
	h.be.tasks = nil
	h.press("r", "i")
	if h.app.Mode().Kind != ModeNormal {
		t.Fatalf("expected to stay in normal mode, got %s", h.app.Mode().Kind)
	}
	if st := h.app.Status(); !st.Err || !strings.Contains(st.Text, "detail failed") {
		t.Fatalf("expected detail failure status, got %+v", st)
	}
}

func TestToggleAllAndMarkAll(t *testing.T) {
	h := newHarness(t, nil)
	h.press("V", "V")
	if n := len(h.app.Table().Marks()); n != 3 {
		t.Fatalf("expected mark all to leave 3 marks, got %d", n)
	}
	h.press("ctrl+a")
	if n := len(h.app.Table().Marks()); n != 0 {
		t.Fatalf("expected toggle all to clear marks, got %d", n)
	}
	h.press("ctrl+a")
	if n := len(h.app.Table().Marks()); n != 3 {
		t.Fatalf("expected toggle all to mark every task, got %d", n)
	}
}

func TestWatchFailureReportedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.app.Handle(event.WatchFailed{Err: errors.New("too many open files")})
	st := h.app.Status()
	if !st.Err || !strings.Contains(st.Text, "watch failed: too many open files") {
		t.Fatalf("expected watch failure status, got %+v", st)
	}
	h.press("j")
	h.app.Handle(event.WatchFailed{Err: errors.New("too many open files")})
	if st := h.app.Status(); st.Err {
		t.Fatalf("expected a repeated failure to stay out of the status line, got %+v", st)
	}
	h.app.Handle(event.BackendChanged{Path: "pending.data"})
	h.app.Handle(event.WatchFailed{Err: errors.New("gone")})
	if st := h.app.Status(); !st.Err || !strings.Contains(st.Text, "gone") {
		t.Fatalf("expected a failure after recovery to be reported, got %+v", st)
	}
}

func TestLineModesShrinkTable(t *testing.T) {
	h := newHarness(t, nil)
	h.app.Handle(event.Resize{Width: 80, Height: 20})
	if got := h.app.Table().Height(); got != 15 {
		t.Fatalf("expected 15 table rows, got %d", got)
	}
	h.press(":", "add project:wo")
	if got := h.app.Table().Height(); got != 14 {
		t.Fatalf("expected the editor line to take a row, got %d", got)
	}
	h.press("tab")
	if got := h.app.Table().Height(); got != 13 {
		t.Fatalf("expected the candidates line to take a row, got %d", got)
	}
	h.press("esc")
	if got := h.app.Table().Height(); got != 15 {
		t.Fatalf("expected the rows back after leaving the prompt, got %d", got)
	}
}
