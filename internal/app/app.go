// Package app owns the dashboard state. A Dispatcher turns each event into
// actions and App applies them, calling the backend synchronously and
// changing visible state only after the backend has answered.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdash/internal/backend"
	"taskdash/internal/completion"
	"taskdash/internal/config"
	"taskdash/internal/event"
	"taskdash/internal/table"
	"taskdash/internal/task"
	"taskdash/internal/tracking"
)

// chromeRows is the number of screen rows not used by the task table outside
// the line modes.
const chromeRows = 5

// Tracker starts and stops time tracking for a task.
type Tracker interface {
	Start(ctx context.Context, t task.Task) error
	Stop(ctx context.Context) error
}

type Options struct {
	Config    config.Config
	Backend   backend.Backend
	Tracker   Tracker
	Cache     *tracking.Cache
	Runner    backend.Runner
	Clipboard func(string) error
	Now       func() time.Time
	Logger    *slog.Logger
}

type Status struct {
	Text string
	Err  bool
}

// Result tells the event loop what to do after an event was applied.
// Exec hands the terminal to an external program; Async jobs run off the
// loop and report back as events.
type Result struct {
	Quit  bool
	Exec  *exec.Cmd
	Async []func() event.Event
}

type App struct {
	cfg        config.Config
	backend    backend.Backend
	tracker    Tracker
	cache      *tracking.Cache
	dispatcher *Dispatcher
	table      *table.State
	scripts    Scripts
	background *Background
	clipboard  func(string) error
	now        func() time.Time
	logger     *slog.Logger
	timeout    time.Duration

	mode      Mode
	editor    LineEditor
	cycler    completion.Cycler
	all       []task.Task
	status    Status
	menu      Menu
	calendar  Calendar
	helpTop   int
	detail    task.Task
	detailTop int
	// watchFailing is set from the first watch failure until the next
	// change notification.
	watchFailing bool
	conflicts    []config.ConflictError
	width        int
	height       int
}

func New(opts Options) *App {
	cfg := opts.Config
	a := &App{
		cfg:       cfg,
		backend:   opts.Backend,
		tracker:   opts.Tracker,
		cache:     opts.Cache,
		table:     table.New(cfg.Looping),
		clipboard: opts.Clipboard,
		now:       opts.Now,
		logger:    opts.Logger,
		timeout:   cfg.CommandTimeout(),
		mode:      Normal,
		editor:    NewLineEditor(),
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.timeout <= 0 {
		a.timeout = 10 * time.Second
	}
	if a.cache == nil {
		a.cache = tracking.NewCache(nil, cfg.Tracking.TTL(), a.timeout, a.logger)
	}
	a.scripts = Scripts{Runner: opts.Runner, Timeout: a.timeout}
	a.background = NewBackground(cfg.Background.Command, cfg.Background.Period(), a.scripts)

	a.conflicts = cfg.Keys.Conflicts()
	for _, c := range a.conflicts {
		a.logger.Warn("key binding conflict", "key", c.Key, "actions", c.Actions)
	}
	for _, name := range cfg.Keys.Unknown() {
		a.logger.Warn("unknown key action", "action", name)
	}
	if len(a.conflicts) > 0 {
		a.status = Status{Text: "config: " + a.conflicts[0].Error(), Err: true}
	}

	a.dispatcher = NewDispatcher(NewKeys(cfg.Keys), Prompts{
		Delete:     cfg.PromptOnDelete,
		Done:       cfg.PromptOnDone,
		Undo:       cfg.PromptOnUndo,
		BulkModify: cfg.PromptOnBulkModify,
	})
	return a
}

// Load runs the first query with the configured default filter.
func (a *App) Load() error {
	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.table.ApplyFilter(ctx, a.backend, a.cfg.DefaultFilter); err != nil {
		a.fail("load", err)
		return err
	}
	a.loadAll(ctx)
	return nil
}

// Handle applies one event. All actions derived from it are applied before
// Handle returns.
func (a *App) Handle(ev event.Event) Result {
	var res Result
	if _, ok := ev.(event.Input); ok && a.mode.Kind != ModeConfirm {
		a.status = Status{}
	}
	mode, actions := a.dispatcher.Dispatch(a.mode, ev)
	a.mode = mode
	for _, act := range actions {
		a.apply(act, &res)
	}
	a.relayout()
	return res
}

// relayout sizes the table to the rows the footer leaves free. The line
// modes add the editor line and, while cycling, the candidates line.
func (a *App) relayout() {
	if a.height == 0 {
		return
	}
	rows := chromeRows
	if a.mode.Kind.Line() {
		rows++
		if cands, _ := a.cycler.Current(); len(cands) > 0 {
			rows++
		}
	}
	if h := a.height - rows; h != a.table.Height() {
		a.table.SetHeight(h)
	}
}

func (a *App) apply(act Action, res *Result) {
	switch act.Kind {
	case ActTick:
		a.tick(res)
	case ActResize:
		a.width, a.height = act.Width, act.Height
		a.editor.SetWidth(act.Width - 12)
	case ActBackendChanged:
		a.logger.Debug("backend changed", "path", act.Text)
		a.watchFailing = false
		if err := a.refresh(); err != nil {
			a.fail("refresh", err)
		}
	case ActWatchFailed:
		if a.watchFailing {
			a.logger.Debug("backend watch still failing", "error", act.Err)
			return
		}
		a.watchFailing = true
		a.fail("watch", act.Err)
	case ActBackgroundDone:
		if a.background.Finish(act.Err) {
			a.logger.Warn("background job disabled", "error", act.Err)
			a.status = Status{Text: fmt.Sprintf("background job disabled: %v", act.Err), Err: true}
			return
		}
		if err := a.refresh(); err != nil {
			a.fail("refresh", err)
		}
	case ActExecDone:
		if act.Err != nil {
			a.fail("edit", act.Err)
			return
		}
		a.afterMutation("Edited task")

	case ActQuit:
		res.Quit = true
	case ActRefresh:
		if err := a.refresh(); err != nil {
			a.fail("refresh", err)
			return
		}
		a.setStatus("Refreshed")
	case ActMove:
		a.table.MoveCursor(act.Delta)
	case ActPage:
		a.table.Page(act.Delta)
	case ActTop:
		a.table.SetCursor(0)
	case ActBottom:
		a.table.SetCursor(a.table.Len() - 1)
	case ActMark:
		a.table.ToggleCurrent()
	case ActMarkAll:
		a.table.MarkAll()
	case ActToggleAll:
		a.table.ToggleAll()
	case ActClearMarks:
		a.table.ClearMarks()
	case ActSort:
		next := a.table.Sort().Next()
		a.table.SortBy(next)
		a.setStatus("Sorted by " + next.String())
	case ActYank:
		a.yank()

	case ActDone, ActDelete, ActStartStop, ActUndo, ActModify, ActAdd, ActAnnotate, ActSync:
		a.execute(act)
	case ActEdit:
		a.edit(res)
	case ActShortcut:
		a.shortcut(act.N)

	case ActEnterFilter:
		a.editor.Start("/", a.table.Filter())
		a.cycler.Reset()
	case ActEnterCommand:
		a.editor.Start(":", act.Text)
		a.cycler.Reset()
	case ActEnterAnnotate:
		a.editor.Start("annotate: ", "")
	case ActEnterShortcut:
		a.editor.Start("!", "")
	case ActEnterContextMenu:
		a.menu = NewContextMenu(a.cfg.Contexts, a.table.Context())
	case ActEnterCalendar:
		a.calendar = NewCalendar(a.now())
	case ActEnterHelp:
		a.helpTop = 0
	case ActEnterDetail:
		t, ok := a.table.Current()
		if !ok {
			a.mode = Normal
			a.fail("detail", ErrNoSelection)
			return
		}
		a.detail, a.detailTop = t, 0
	case ActExitMode:

	case ActLineInput:
		a.editor.Update(act.Key)
		a.cycler.Reset()
	case ActComplete:
		a.complete(act.From)
	case ActSubmitFilter:
		a.submitFilter()
	case ActRunCommand:
		a.runCommand()
	case ActSubmitAnnotation:
		text := strings.TrimSpace(a.editor.Value())
		a.stopEditing()
		if text == "" {
			a.fail("annotate", errors.New("annotation is empty"))
			return
		}
		a.execute(Action{Kind: ActAnnotate, Text: text})
	case ActRunShell:
		line := strings.TrimSpace(a.editor.Value())
		a.stopEditing()
		if line == "" {
			return
		}
		a.runScript(line, line)
	case ActCancelLine:
		a.stopEditing()
		if act.From == ModeFilter && a.cfg.ResetFilterOnEscape {
			ctx, cancel := a.ctx()
			defer cancel()
			if err := a.table.ApplyFilter(ctx, a.backend, a.cfg.DefaultFilter); err != nil {
				a.fail("filter", err)
			}
		}

	case ActPrompt:
		a.prompt()
	case ActCancel:
		a.setStatus("Cancelled")
	case ActMenuMove:
		a.menu.Move(act.Delta)
	case ActMenuSelect:
		item := a.menu.Selected()
		ctx, cancel := a.ctx()
		defer cancel()
		if err := a.table.ApplyContext(ctx, a.backend, item.Filter); err != nil {
			a.fail("context", err)
			return
		}
		a.setStatus("Context: " + item.Name)
	case ActCalendarMonth:
		a.calendar.Shift(act.Delta)
	case ActHelpScroll:
		a.helpTop = max(0, a.helpTop+act.Delta)
	case ActDetailScroll:
		a.detailTop = max(0, a.detailTop+act.Delta)
	}
}

func (a *App) tick(res *Result) {
	now := a.now()
	a.cache.MaybeRefresh(context.Background(), now)
	if a.background.Due(now) {
		res.Async = append(res.Async, a.background.Start(now))
	}
}

// prompt binds the current selection to the pending action and asks.
func (a *App) prompt() {
	p := a.mode.Pending
	if p == nil {
		a.mode = Normal
		return
	}
	if p.Kind != ActUndo && len(p.IDs) == 0 {
		p.IDs = a.table.Selection()
		if len(p.IDs) == 0 {
			a.mode = Normal
			a.fail(p.Kind.String(), ErrNoSelection)
			return
		}
	}
	p.Confirmed = true
	a.status = Status{Text: a.question(*p)}
}

func (a *App) question(act Action) string {
	switch act.Kind {
	case ActUndo:
		return "Undo the last change? (y/n)"
	case ActModify:
		return fmt.Sprintf("Modify %s with %q? (y/n)", plural(len(act.IDs)), strings.Join(act.Args, " "))
	}
	verb := map[ActionKind]string{ActDelete: "Delete", ActDone: "Complete"}[act.Kind]
	if len(act.IDs) == 1 {
		if t, ok := a.table.Task(act.IDs[0]); ok {
			return fmt.Sprintf("%s %q? (y/n)", verb, t.Description)
		}
	}
	return fmt.Sprintf("%s %s? (y/n)", verb, plural(len(act.IDs)))
}

// execute runs a backend mutation. Nothing visible changes unless the
// backend reports success and the follow-up query succeeds.
func (a *App) execute(act Action) {
	ids := act.IDs
	if len(ids) == 0 {
		ids = a.table.Selection()
	}
	if !act.Confirmed && act.Kind != ActAdd && act.Kind != ActSync && a.dispatcher.prompts.Requires(act.Kind, len(ids)) {
		act.IDs = ids
		a.mode = confirm(act)
		a.prompt()
		return
	}

	ctx, cancel := a.ctx()
	defer cancel()
	var err error
	var done string
	switch act.Kind {
	case ActAdd:
		err = a.backend.Add(ctx, act.Args)
		done = "Added task"
	case ActUndo:
		err = a.backend.Undo(ctx)
		done = "Undone"
	case ActSync:
		syncer, ok := a.backend.(backend.Syncer)
		if !ok {
			err = backend.ErrUnsupported
			break
		}
		err = syncer.Sync(ctx)
		done = "Synced"
	case ActStartStop:
		if len(ids) == 0 {
			err = ErrNoSelection
			break
		}
		done, err = a.startStop(ctx, ids, act.Text)
	default:
		if len(ids) == 0 {
			err = ErrNoSelection
			break
		}
		op := backend.Op{Kind: opFor(act.Kind), Args: act.Args, Text: act.Text}
		err = a.backend.Mutate(ctx, ids, op)
		done = fmt.Sprintf("%s %s", pastTense(act.Kind), plural(len(ids)))
	}
	if err != nil {
		a.mode = Normal
		a.fail(act.Kind.String(), err)
		return
	}
	if act.Kind != ActAdd && act.Kind != ActUndo && act.Kind != ActSync {
		a.table.ClearMarks()
	}
	a.afterMutation(done)
}

// startStop toggles each task, or forces one direction when force is
// "start" or "stop". Time tracking follows the backend change.
func (a *App) startStop(ctx context.Context, ids []uuid.UUID, force string) (string, error) {
	var starts, stops []uuid.UUID
	for _, id := range ids {
		t, ok := a.table.Task(id)
		active := ok && t.Active()
		switch {
		case force == "start" && !active, force == "" && !active:
			starts = append(starts, id)
		case force == "stop" && active, force == "" && active:
			stops = append(stops, id)
		}
	}
	if len(starts) == 0 && len(stops) == 0 {
		return "Nothing to " + strings.TrimSpace(force+" "), nil
	}
	if len(stops) > 0 {
		if err := a.backend.Mutate(ctx, stops, backend.Op{Kind: backend.OpStop}); err != nil {
			return "", err
		}
	}
	if len(starts) > 0 {
		if err := a.backend.Mutate(ctx, starts, backend.Op{Kind: backend.OpStart}); err != nil {
			return "", err
		}
	}

	msg := fmt.Sprintf("Started %d, stopped %d", len(starts), len(stops))
	if a.tracker == nil {
		return msg, nil
	}
	var trackErr error
	switch {
	case len(starts) > 0:
		t, _ := a.table.Task(starts[len(starts)-1])
		trackErr = a.tracker.Start(ctx, t)
	case a.anyTracked(stops):
		trackErr = a.tracker.Stop(ctx)
	}
	a.cache.Invalidate()
	if trackErr != nil {
		a.logger.Warn("time tracking update failed", "error", trackErr)
		msg += fmt.Sprintf(" (tracking: %v)", trackErr)
	}
	return msg, nil
}

func (a *App) anyTracked(ids []uuid.UUID) bool {
	for _, id := range ids {
		if a.cache.IsTracked(id) {
			return true
		}
	}
	return false
}

func (a *App) edit(res *Result) {
	ed, ok := a.backend.(backend.Editor)
	if !ok {
		a.fail("edit", backend.ErrUnsupported)
		return
	}
	t, ok := a.table.Current()
	if !ok {
		a.fail("edit", ErrNoSelection)
		return
	}
	res.Exec = ed.EditCommand(t.UUID)
}

func (a *App) shortcut(n int) {
	script := a.cfg.Shortcuts[strconv.Itoa(n)]
	if script == "" {
		a.status = Status{Text: fmt.Sprintf("shortcut %d is not configured", n), Err: true}
		return
	}
	a.runScript(script, fmt.Sprintf("shortcut %d", n))
}

// runScript blocks until the script exits, then re-queries the backend.
func (a *App) runScript(script, label string) {
	if err := a.scripts.Run(context.Background(), script, a.table.Selection()); err != nil {
		a.fail(label, err)
		return
	}
	a.afterMutation("Ran " + label)
}

func (a *App) yank() {
	ids := a.table.Selection()
	if len(ids) == 0 {
		a.fail("yank", ErrNoSelection)
		return
	}
	if a.clipboard == nil {
		a.fail("yank", errors.New("clipboard unavailable"))
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	if err := a.clipboard(strings.Join(parts, " ")); err != nil {
		a.fail("yank", err)
		return
	}
	a.setStatus(fmt.Sprintf("Copied %d uuid(s)", len(ids)))
}

func (a *App) complete(from ModeKind) {
	tasks := a.all
	if a.cfg.Completion.Scope == config.ScopeVisible || tasks == nil {
		tasks = a.table.Visible()
	}
	buf, pos, ok := a.cycler.Next(completion.Request{
		Buffer:   a.editor.Value(),
		Cursor:   a.editor.Position(),
		Commands: from == ModeCommand,
		Fuzzy:    a.cfg.Completion.Fuzzy,
		Tasks:    tasks,
	}, a.cfg.AutoInsertQuotes)
	if ok {
		a.editor.Set(buf, pos)
	}
}

func (a *App) submitFilter() {
	filter := a.editor.Value()
	a.stopEditing()
	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.table.ApplyFilter(ctx, a.backend, filter); err != nil {
		a.fail("filter", err)
	}
}

func (a *App) runCommand() {
	line := a.editor.Value()
	a.stopEditing()
	if strings.TrimSpace(line) == "" {
		return
	}
	cmd, err := ParseCommand(line)
	if err != nil {
		a.fail("command", err)
		return
	}
	a.execute(cmd.Action())
}

func (a *App) stopEditing() {
	a.editor.Stop()
	a.cycler.Reset()
}

func (a *App) refresh() error {
	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.table.Refresh(ctx, a.backend); err != nil {
		return err
	}
	a.loadAll(ctx)
	return nil
}

// loadAll keeps the unfiltered task list used for completion.
func (a *App) loadAll(ctx context.Context) {
	if a.cfg.Completion.Scope != config.ScopeAll {
		return
	}
	all, err := a.backend.Export(ctx, "")
	if err != nil {
		a.logger.Warn("load completion candidates", "error", err)
		return
	}
	a.all = all
}

func (a *App) afterMutation(msg string) {
	if err := a.refresh(); err != nil {
		a.fail("refresh", err)
		return
	}
	a.setStatus(msg)
}

func (a *App) fail(what string, err error) {
	a.logger.Warn(what+" failed", "error", err)
	a.status = Status{Text: fmt.Sprintf("%s failed: %v", what, err), Err: true}
}

func (a *App) setStatus(text string) {
	a.status = Status{Text: text}
}

func (a *App) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func opFor(kind ActionKind) backend.OpKind {
	switch kind {
	case ActDelete:
		return backend.OpDelete
	case ActModify:
		return backend.OpModify
	case ActAnnotate:
		return backend.OpAnnotate
	default:
		return backend.OpDone
	}
}

func pastTense(kind ActionKind) string {
	switch kind {
	case ActDelete:
		return "Deleted"
	case ActModify:
		return "Modified"
	case ActAnnotate:
		return "Annotated"
	default:
		return "Completed"
	}
}

func plural(n int) string {
	if n == 1 {
		return "1 task"
	}
	return fmt.Sprintf("%d tasks", n)
}

func (a *App) Mode() Mode                        { return a.mode }
func (a *App) Table() *table.State               { return a.table }
func (a *App) Status() Status                    { return a.status }
func (a *App) Editor() *LineEditor               { return &a.editor }
func (a *App) Keys() Keys                        { return a.dispatcher.Keys() }
func (a *App) Menu() Menu                        { return a.menu }
func (a *App) Calendar() Calendar                { return a.calendar }
func (a *App) HelpTop() int                      { return a.helpTop }
func (a *App) DetailTop() int                    { return a.detailTop }
func (a *App) Conflicts() []config.ConflictError { return a.conflicts }
func (a *App) Config() config.Config             { return a.cfg }
func (a *App) IsTracked(id uuid.UUID) bool       { return a.cache.IsTracked(id) }
func (a *App) Completions() ([]string, int)      { return a.cycler.Current() }
func (a *App) BackgroundDisabled() bool          { return a.background.Disabled() }
func (a *App) Size() (width, height int)         { return a.width, a.height }

// Detail returns the task shown in ModeDetail, as of the last refresh.
func (a *App) Detail() task.Task {
	if t, ok := a.table.Task(a.detail.UUID); ok {
		return t
	}
	return a.detail
}
