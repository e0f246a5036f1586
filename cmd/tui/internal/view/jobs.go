package view

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
)

const jobsRefreshInterval = time.Second

// JobTracker is the read and control side of the job runner.
type JobTracker interface {
	List() []job.Job
	Cancel(id uuid.UUID) (job.Job, error)
	RefreshStatus(id uuid.UUID) (job.Job, error)
}

// JobsModel starts background passes and monitors every job of the runner.
type JobsModel struct {
	engine  *engine.Engine
	tracker JobTracker
	match   reconcile.AutoMatchOptions

	table table.Model
	bar   progress.Model
	jobs  []job.Job

	status string
}

func NewJobsModel(eng *engine.Engine, tracker JobTracker, match reconcile.AutoMatchOptions) JobsModel {
	columns := []table.Column{
		{Title: "Task", Width: 10},
		{Title: "Type", Width: 16},
		{Title: "Status", Width: 10},
		{Title: "Stage", Width: 12},
		{Title: "Progress", Width: 9},
		{Title: "Items", Width: 12},
		{Title: "Started", Width: 9},
		{Title: "Error", Width: 30},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return JobsModel{
		engine:  eng,
		tracker: tracker,
		match:   match,
		table:   t,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m JobsModel) Title() string { return "Jobs" }

func (m JobsModel) ShortHelp() string {
	return "1: auto-categorize | 2: auto-match | 3: sync | x: cancel | f: refresh status | Esc: back"
}

type jobsTickMsg struct{}

func jobsTick() tea.Cmd {
	return tea.Tick(jobsRefreshInterval, func(time.Time) tea.Msg { return jobsTickMsg{} })
}

func (m JobsModel) Init() tea.Cmd {
	return tea.Batch(m.listCmd(), jobsTick())
}

func (m JobsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case jobsTickMsg:
		return m, tea.Batch(m.listCmd(), jobsTick())

	case jobsListMsg:
		m.jobs = msg.jobs
		slices.Reverse(m.jobs) // newest first
		m.refreshTable()

		return m, nil

	case jobActionMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Error: %v", msg.err))
		} else {
			m.status = okStyle.Render(fmt.Sprintf("%s %s", shortID(msg.job.TaskID), msg.verb))
		}

		return m, m.listCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "1":
			return m, m.startCmd(func() (job.Job, error) { return m.engine.StartAutoCategorize(nil) })
		case "2":
			return m, m.startCmd(func() (job.Job, error) { return m.engine.StartAutoMatch(m.match) })
		case "3":
			return m, m.startCmd(func() (job.Job, error) { return m.engine.StartSync(m.match) })
		case "x":
			if j, ok := m.selected(); ok {
				return m, m.controlCmd("cancel requested", func() (job.Job, error) { return m.tracker.Cancel(j.TaskID) })
			}
		case "f":
			if j, ok := m.selected(); ok {
				return m, m.controlCmd("refreshed", func() (job.Job, error) { return m.tracker.RefreshStatus(j.TaskID) })
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m JobsModel) selected() (job.Job, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.jobs) {
		return job.Job{}, false
	}

	return m.jobs[idx], true
}

func (m JobsModel) View() string {
	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	parts := []string{tableView}

	if j, ok := m.selected(); ok {
		parts = append(parts, m.detailView(j))
	} else {
		parts = append(parts, faintStyle.Render("No jobs yet. Press 1, 2 or 3 to start one."))
	}

	if m.status != "" {
		parts = append(parts, m.status)
	}

	parts = append(parts, faintStyle.Render(m.ShortHelp()))

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m JobsModel) detailView(j job.Job) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s  %s\n", j.TaskID, j.Type, statusLabel(j))
	fmt.Fprintf(&b, "%s  %d/%d", m.bar.ViewAs(float64(j.Progress)/100), j.Processed, j.Total)

	if j.Stage != "" {
		fmt.Fprintf(&b, "  stage: %s", j.Stage)
	}

	if j.Error != "" {
		b.WriteString("\n" + errorStyle.Render(j.Error))
	}

	return panelStyle.Render(b.String())
}

func statusLabel(j job.Job) string {
	label := string(j.Status)

	switch {
	case j.Stalled:
		return errorStyle.Render(label + " (stalled)")
	case j.Status == job.StatusCompleted:
		return okStyle.Render(label)
	case j.Status == job.StatusFailed:
		return errorStyle.Render(label)
	}

	return activeStyle.Render(label)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func (m *JobsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.jobs))

	for _, j := range m.jobs {
		started := "-"
		if j.StartedAt != nil {
			started = j.StartedAt.Local().Format(time.TimeOnly)
		}

		status := string(j.Status)
		if j.Stalled {
			status += "!"
		}

		rows = append(rows, table.Row{
			shortID(j.TaskID),
			string(j.Type),
			status,
			j.Stage,
			fmt.Sprintf("%d%%", j.Progress),
			fmt.Sprintf("%d/%d", j.Processed, j.Total),
			started,
			j.Error,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type jobsListMsg struct {
	jobs []job.Job
}

func (m JobsModel) listCmd() tea.Cmd {
	return func() tea.Msg {
		return jobsListMsg{jobs: m.tracker.List()}
	}
}

type jobActionMsg struct {
	job  job.Job
	verb string
	err  error
}

func (m JobsModel) startCmd(start func() (job.Job, error)) tea.Cmd {
	return m.controlCmd("submitted", start)
}

func (m JobsModel) controlCmd(verb string, fn func() (job.Job, error)) tea.Cmd {
	return func() tea.Msg {
		j, err := fn()
		return jobActionMsg{job: j, verb: verb, err: err}
	}
}
