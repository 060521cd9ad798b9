// Package event defines the single ordered stream the dashboard consumes and
// the bubbletea commands that produce it.
package event

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

type Event interface {
	event()
}

// Tick fires at the configured tick rate.
type Tick struct {
	Now time.Time
}

type Resize struct {
	Width  int
	Height int
}

type Input struct {
	Key tea.KeyMsg
}

// BackendChanged reports that the task data changed outside the dashboard.
type BackendChanged struct {
	Path string
}

// WatchFailed reports that watching the task data stopped. The loop watches
// again after a delay.
type WatchFailed struct {
	Err error
}

// BackgroundDone carries the outcome of one background job run.
type BackgroundDone struct {
	Err error
}

// ExecDone is delivered when an external program that took over the
// terminal exits.
type ExecDone struct {
	Err error
}

func (Tick) event()           {}
func (Resize) event()         {}
func (Input) event()          {}
func (BackendChanged) event() {}
func (WatchFailed) event()    {}
func (BackgroundDone) event() {}
func (ExecDone) event()       {}

// FromTea converts a bubbletea message into an Event.
func FromTea(msg tea.Msg) (Event, bool) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		return Input{Key: m}, true
	case tea.WindowSizeMsg:
		return Resize{Width: m.Width, Height: m.Height}, true
	case Tick:
		return m, true
	case BackendChanged:
		return m, true
	case WatchFailed:
		return m, true
	case BackgroundDone:
		return m, true
	case ExecDone:
		return m, true
	}
	return nil, false
}

// TickCmd schedules one Tick. The loop re-arms it after handling each tick,
// so a slow consumer never has more than one tick queued.
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return Tick{Now: t}
	})
}

const settle = 150 * time.Millisecond

var errWatchClosed = errors.New("watch: event stream closed")

// WatchCmd blocks until one of paths changes and returns BackendChanged.
// Bursts of writes within a short window are folded into one event. When
// watching breaks it returns WatchFailed. With no paths it returns nil.
func WatchCmd(paths []string) tea.Cmd {
	if len(paths) == 0 {
		return nil
	}
	return func() tea.Msg {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return WatchFailed{Err: fmt.Errorf("watch: %w", err)}
		}
		defer watcher.Close()

		var addErrs []error
		for _, p := range paths {
			if err := watcher.Add(p); err != nil {
				addErrs = append(addErrs, fmt.Errorf("watch %s: %w", p, err))
			}
		}
		if len(addErrs) == len(paths) {
			return WatchFailed{Err: errors.Join(addErrs...)}
		}

		var changed string
		var timer <-chan time.Time
		for {
			select {
			case evt, ok := <-watcher.Events:
				if !ok {
					return WatchFailed{Err: errWatchClosed}
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if !ShouldReload(evt.Name) {
					continue
				}
				if changed == "" {
					changed = evt.Name
					timer = time.After(settle)
				}
			case err, ok := <-watcher.Errors:
				switch {
				case !ok:
					return WatchFailed{Err: errWatchClosed}
				case errors.Is(err, fsnotify.ErrEventOverflow):
					// Events were dropped; reload rather than miss a change.
					return BackendChanged{Path: changed}
				case err != nil:
					return WatchFailed{Err: fmt.Errorf("watch: %w", err)}
				}
			case <-timer:
				return BackendChanged{Path: changed}
			}
		}
	}
}

// RewatchCmd is WatchCmd started after delay.
func RewatchCmd(paths []string, delay time.Duration) tea.Cmd {
	watch := WatchCmd(paths)
	if watch == nil {
		return nil
	}
	return func() tea.Msg {
		time.Sleep(delay)
		return watch()
	}
}

// ShouldReload filters out editor and lock files that do not hold task data.
func ShouldReload(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == "." || base == "":
		return false
	case strings.HasSuffix(base, ".lock"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".log"):
		return false
	}
	return true
}
