package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskdash/internal/app"
	"taskdash/internal/event"
	"taskdash/internal/task"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	markStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	trackedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("70")).Bold(true)
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	overdueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	todayStyle    = lipgloss.NewStyle().Reverse(true)
	dueDayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type Options struct {
	TickRate time.Duration
	Watch    []string
	// PreciseDates adds the next smaller unit to relative dates.
	PreciseDates bool
	// RewatchDelay is how long to wait before watching again after the
	// watch broke.
	RewatchDelay time.Duration
}

type Model struct {
	app  *app.App
	opts Options
	help help.Model
	now  func() time.Time
}

func New(a *app.App, opts Options) Model {
	if opts.TickRate <= 0 {
		opts.TickRate = 250 * time.Millisecond
	}
	if opts.RewatchDelay <= 0 {
		opts.RewatchDelay = 5 * time.Second
	}
	h := help.New()
	h.ShowAll = true
	return Model{app: a, opts: opts, help: h, now: time.Now}
}

func Run(a *app.App, opts Options) error {
	program := tea.NewProgram(New(a, opts), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(event.TickCmd(m.opts.TickRate), event.WatchCmd(m.opts.Watch))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ev, ok := event.FromTea(msg)
	if !ok {
		return m, nil
	}
	if r, ok := ev.(event.Resize); ok {
		m.help.Width = r.Width
	}

	res := m.app.Handle(ev)
	var cmds []tea.Cmd
	switch ev.(type) {
	case event.Tick:
		cmds = append(cmds, event.TickCmd(m.opts.TickRate))
	case event.BackendChanged:
		cmds = append(cmds, event.WatchCmd(m.opts.Watch))
	case event.WatchFailed:
		cmds = append(cmds, event.RewatchCmd(m.opts.Watch, m.opts.RewatchDelay))
	}
	if res.Quit {
		return m, tea.Quit
	}
	if res.Exec != nil {
		cmds = append(cmds, tea.ExecProcess(res.Exec, func(err error) tea.Msg {
			return event.ExecDone{Err: err}
		}))
	}
	for _, job := range res.Async {
		cmds = append(cmds, func() tea.Msg { return job() })
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.app.Mode().Kind {
	case app.ModeHelp:
		b.WriteString(m.renderHelp())
	case app.ModeCalendar:
		b.WriteString(m.renderCalendar())
	case app.ModeContextMenu:
		b.WriteString(m.renderMenu())
	case app.ModeDetail:
		b.WriteString(m.renderDetail())
	default:
		b.WriteString(m.renderTable())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	t := m.app.Table()
	parts := []string{titleStyle.Render("taskdash")}
	if ctx := t.Context(); ctx != "" {
		parts = append(parts, "context:"+ctx)
	}
	if f := t.Filter(); f != "" {
		parts = append(parts, "filter:"+f)
	}
	parts = append(parts, "sort:"+t.Sort().String())
	summary := fmt.Sprintf("%d tasks", t.Len())
	if n := len(t.Marks()); n > 0 {
		summary += fmt.Sprintf(", %d marked", n)
	}
	parts = append(parts, summary)
	return strings.Join(parts, dimStyle.Render(" • "))
}

func (m Model) renderTable() string {
	t := m.app.Table()
	if t.Len() == 0 {
		return dimStyle.Render("No matching tasks.") + "\n"
	}
	visible := t.Visible()
	start, end := t.Window()

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("   %-4s %-6s %-12s %-8s %6s  %s", "ID", "Age", "Project", "Due", "Urg", "Description")))
	b.WriteString("\n")
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(visible[i], i == t.Cursor()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderRow(tk task.Task, current bool) string {
	mark := " "
	if m.app.Table().Marked(tk.UUID) {
		mark = markStyle.Render("●")
	}
	tracked := " "
	if m.app.IsTracked(tk.UUID) {
		tracked = trackedStyle.Render("⏱")
	}
	id := "-"
	if tk.ID > 0 {
		id = fmt.Sprint(tk.ID)
	}
	now := m.now()
	age, due := "", ""
	if !tk.Entry.IsZero() {
		age = task.Relative(tk.Entry, now, m.opts.PreciseDates)
	}
	if tk.HasDue() {
		due = task.Relative(now, tk.Due, m.opts.PreciseDates)
	}
	line := fmt.Sprintf("%-4s %-6s %-12s %-8s %6.2f  %s", id, age, truncate(tk.Project, 12), due, tk.Urgency, tk.Description)

	style := lipgloss.NewStyle()
	switch {
	case m.app.IsTracked(tk.UUID):
		style = trackedStyle
	case tk.Active():
		style = activeStyle
	case tk.HasDue() && tk.Due.Before(now):
		style = overdueStyle
	}
	if current {
		style = style.Inherit(cursorStyle)
	}
	return mark + tracked + " " + style.Render(line)
}

func (m Model) renderFooter() string {
	var b strings.Builder
	mode := m.app.Mode()
	if mode.Kind.Line() {
		b.WriteString(promptStyle.Render(m.app.Editor().View()))
		b.WriteString("\n")
		if cands, idx := m.app.Completions(); len(cands) > 0 {
			b.WriteString(renderCandidates(cands, idx))
			b.WriteString("\n")
		}
	}
	st := m.app.Status()
	switch {
	case mode.Kind == app.ModeConfirm:
		b.WriteString(promptStyle.Render(st.Text))
	case st.Err:
		b.WriteString(errorStyle.Render(st.Text))
	case st.Text != "":
		b.WriteString(statusStyle.Render(st.Text))
	}
	b.WriteString("\n")
	short := help.New()
	b.WriteString(short.ShortHelpView(m.app.Keys().ShortHelp()))
	return b.String()
}

func renderCandidates(cands []string, idx int) string {
	const limit = 8
	start := 0
	if idx >= limit {
		start = idx - limit + 1
	}
	end := min(len(cands), start+limit)
	parts := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if i == idx {
			parts = append(parts, selectedStyle.Render(cands[i]))
			continue
		}
		parts = append(parts, dimStyle.Render(cands[i]))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderHelp() string {
	lines := strings.Split(m.help.View(m.app.Keys()), "\n")
	_, height := m.app.Size()
	top := min(m.app.HelpTop(), max(0, len(lines)-1))
	if height > 6 && len(lines)-top > height-6 {
		lines = lines[top : top+height-6]
	} else {
		lines = lines[top:]
	}
	return panelStyle.Render(titleStyle.Render("Keys") + "\n\n" + strings.Join(lines, "\n"))
}

func (m Model) renderDetail() string {
	tk := m.app.Detail()
	now := m.now()
	field := func(name, value string) string {
		return dimStyle.Render(fmt.Sprintf("%-12s", name)) + value
	}
	stamp := func(t time.Time, rel string) string {
		return t.Local().Format("2006-01-02 15:04") + dimStyle.Render(" ("+rel+")")
	}

	id := "-"
	if tk.ID > 0 {
		id = fmt.Sprint(tk.ID)
	}
	lines := []string{
		field("ID", id),
		field("UUID", tk.UUID.String()),
		field("Status", string(tk.Status)),
		field("Project", tk.Project),
		field("Tags", strings.Join(tk.Tags, " ")),
		field("Priority", string(tk.Priority)),
		field("Urgency", fmt.Sprintf("%.2f", tk.Urgency)),
	}
	if !tk.Entry.IsZero() {
		lines = append(lines, field("Entered", stamp(tk.Entry, task.Relative(tk.Entry, now, true)+" ago")))
	}
	if tk.Active() {
		lines = append(lines, field("Started", stamp(tk.Start, task.Relative(tk.Start, now, true)+" ago")))
	}
	if tk.HasDue() {
		lines = append(lines, field("Due", stamp(tk.Due, task.Relative(now, tk.Due, true))))
	}
	if m.app.IsTracked(tk.UUID) {
		lines = append(lines, field("Tracking", trackedStyle.Render("active")))
	}
	if len(tk.Annotations) > 0 {
		lines = append(lines, "", titleStyle.Render("Annotations"))
		for _, an := range tk.Annotations {
			lines = append(lines, dimStyle.Render(an.Entry.Local().Format("2006-01-02 15:04"))+"  "+an.Description)
		}
	}

	_, height := m.app.Size()
	top := min(m.app.DetailTop(), max(0, len(lines)-1))
	lines = lines[top:]
	if height > 8 && len(lines) > height-8 {
		lines = lines[:height-8]
	}
	return panelStyle.Render(titleStyle.Render(tk.Description) + "\n\n" + strings.Join(lines, "\n"))
}

func (m Model) renderMenu() string {
	menu := m.app.Menu()
	var lines []string
	for i, item := range menu.Items {
		label := item.Name
		if item.Filter != "" {
			label += dimStyle.Render("  " + item.Filter)
		}
		if i == menu.Cursor {
			lines = append(lines, selectedStyle.Render("> ")+label)
			continue
		}
		lines = append(lines, "  "+label)
	}
	return panelStyle.Render(titleStyle.Render("Context") + "\n\n" + strings.Join(lines, "\n"))
}

func (m Model) renderCalendar() string {
	cal := m.app.Calendar()
	counts := cal.DueCounts(m.app.Table().Visible())

	var b strings.Builder
	b.WriteString(titleStyle.Render(cal.Month.Format("January 2006")))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Su Mo Tu We Th Fr Sa"))
	b.WriteString("\n")
	for _, week := range cal.Weeks() {
		cells := make([]string, 7)
		for i, day := range week {
			if day.IsZero() {
				cells[i] = "  "
				continue
			}
			cell := fmt.Sprintf("%2d", day.Day())
			switch {
			case sameDay(day, cal.Today):
				cell = todayStyle.Render(cell)
			case counts[day.Day()] > 0:
				cell = dueDayStyle.Render(cell)
			}
			cells[i] = cell
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n")
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d due this month", total)))
	return panelStyle.Render(b.String())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
