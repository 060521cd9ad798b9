package app

import (
	"sort"
	"time"

	"taskdash/internal/task"
)

type MenuItem struct {
	Name   string
	Filter string
}

// Menu is the context picker. The first entry clears the context.
type Menu struct {
	Items  []MenuItem
	Cursor int
}

func NewContextMenu(contexts map[string]string, active string) Menu {
	names := make([]string, 0, len(contexts))
	for name := range contexts {
		names = append(names, name)
	}
	sort.Strings(names)

	m := Menu{Items: []MenuItem{{Name: "none"}}}
	for _, name := range names {
		m.Items = append(m.Items, MenuItem{Name: name, Filter: contexts[name]})
		if contexts[name] == active && active != "" {
			m.Cursor = len(m.Items) - 1
		}
	}
	return m
}

func (m *Menu) Move(delta int) {
	n := len(m.Items)
	if n == 0 {
		return
	}
	m.Cursor = ((m.Cursor+delta)%n + n) % n
}

func (m Menu) Selected() MenuItem {
	if m.Cursor < 0 || m.Cursor >= len(m.Items) {
		return MenuItem{Name: "none"}
	}
	return m.Items[m.Cursor]
}

// Calendar shows one month of due dates.
type Calendar struct {
	Month time.Time
	Today time.Time
}

func NewCalendar(now time.Time) Calendar {
	return Calendar{Month: firstOfMonth(now), Today: now}
}

func (c *Calendar) Shift(months int) {
	c.Month = c.Month.AddDate(0, months, 0)
}

// Weeks returns the month as rows of seven days starting on Sunday. Days
// outside the month are zero.
func (c Calendar) Weeks() [][7]time.Time {
	var weeks [][7]time.Time
	var week [7]time.Time
	day := c.Month
	for day.Month() == c.Month.Month() {
		week[day.Weekday()] = day
		if day.Weekday() == time.Saturday {
			weeks = append(weeks, week)
			week = [7]time.Time{}
		}
		day = day.AddDate(0, 0, 1)
	}
	if day.Weekday() != time.Sunday {
		weeks = append(weeks, week)
	}
	return weeks
}

// DueCounts counts tasks due on each day of the shown month.
func (c Calendar) DueCounts(tasks []task.Task) map[int]int {
	counts := map[int]int{}
	for _, t := range tasks {
		if !t.HasDue() {
			continue
		}
		due := t.Due.In(c.Month.Location())
		if due.Year() == c.Month.Year() && due.Month() == c.Month.Month() {
			counts[due.Day()]++
		}
	}
	return counts
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
