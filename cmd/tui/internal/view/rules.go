package view

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
)

type rulesState int

const (
	rulesStateBrowse rulesState = iota
	rulesStateCreate
)

var originFilters = []*rule.Origin{nil, new(rule.OriginManual), new(rule.OriginLearned)}

// ruleForm holds the bindings of the new-rule form.
type ruleForm struct {
	Type       rule.Type
	Value      string
	CategoryID int64
	Priority   string
	Confidence string
	Notes      string
}

func (f *ruleForm) params() (rule.Params, error) {
	priority, err := strconv.Atoi(strings.TrimSpace(f.Priority))
	if err != nil {
		return rule.Params{}, fmt.Errorf("priority: %w", err)
	}

	confidence, err := strconv.ParseFloat(strings.TrimSpace(f.Confidence), 64)
	if err != nil {
		return rule.Params{}, fmt.Errorf("confidence: %w", err)
	}

	m, err := rule.MatchOf(f.Type, f.Value)
	if err != nil {
		return rule.Params{}, err
	}

	return rule.Params{
		Type:       f.Type,
		Fields:     m.Fields(),
		CategoryID: f.CategoryID,
		Priority:   priority,
		Confidence: &confidence,
		Origin:     rule.OriginManual,
		Notes:      strings.TrimSpace(f.Notes),
	}, nil
}

// RulesModel lists categorization rules in evaluation order and lets the
// user toggle or add them.
type RulesModel struct {
	ruleService     *rule.Service
	categoryService *category.Service

	state      rulesState
	table      table.Model
	rules      []*rule.Rule
	categories Categories
	form       *huh.Form
	binding    *ruleForm

	showInactive bool
	originIdx    int

	loading bool
	err     error
	status  string
}

func NewRulesModel(ruleSvc *rule.Service, catSvc *category.Service) RulesModel {
	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Type", Width: 19},
		{Title: "Value", Width: 28},
		{Title: "Category", Width: 20},
		{Title: "Prio", Width: 5},
		{Title: "Conf", Width: 5},
		{Title: "Origin", Width: 8},
		{Title: "Active", Width: 6},
		{Title: "Hits", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
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

	return RulesModel{
		ruleService:     ruleSvc,
		categoryService: catSvc,
		table:           t,
		loading:         true,
	}
}

func (m RulesModel) Title() string { return "Rules" }

func (m RulesModel) ShortHelp() string {
	if m.state == rulesStateCreate {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | space: toggle active | n: new | i: show inactive | o: origin filter | r: refresh"
}

func (m RulesModel) Init() tea.Cmd {
	return m.loadRulesCmd()
}

func (m RulesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadRulesMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.rules = msg.rules
		m.categories = msg.categories
		m.refreshTable()

		return m, nil

	case ruleSavedMsg:
		m.state = rulesStateBrowse
		m.form = nil
		m.binding = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = msg.done
		}

		return m, m.loadRulesCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(5, msg.Height-10))
		return m, nil
	}

	switch m.state {
	case rulesStateBrowse:
		return m.updateBrowse(msg)
	case rulesStateCreate:
		return m.updateCreate(msg)
	}

	return m, nil
}

func (m RulesModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadRulesCmd()
		case "i":
			m.showInactive = !m.showInactive
			return m, m.loadRulesCmd()
		case "o":
			m.originIdx = (m.originIdx + 1) % len(originFilters)
			return m, m.loadRulesCmd()
		case " ":
			return m, m.toggleCmd()
		case "n":
			return m.enterCreateMode()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m RulesModel) enterCreateMode() (tea.Model, tea.Cmd) {
	b := &ruleForm{Type: rule.TypeCounterpartyINN, Priority: "50", Confidence: "0.90"}

	categories := make([]huh.Option[int64], 0, len(m.categories.Active()))
	for _, c := range m.categories.Active() {
		categories = append(categories, huh.NewOption(c.Name, c.ID))
	}

	m.binding = b
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[rule.Type]().
				Title("Match on").
				Options(
					huh.NewOption("Counterparty INN", rule.TypeCounterpartyINN),
					huh.NewOption("Counterparty name", rule.TypeCounterpartyName),
					huh.NewOption("Business operation", rule.TypeBusinessOperation),
					huh.NewOption("Payment purpose keyword", rule.TypeKeyword),
				).
				Value(&b.Type),

			huh.NewInput().
				Title("Value").
				Value(&b.Value).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("value cannot be empty")
					}
					return nil
				}),

			huh.NewSelect[int64]().
				Title("Category").
				Options(categories...).
				Height(6).
				Value(&b.CategoryID),

			huh.NewInput().
				Title("Priority").
				Value(&b.Priority).
				Validate(func(s string) error {
					_, err := strconv.Atoi(strings.TrimSpace(s))
					return err
				}),

			huh.NewInput().
				Title("Confidence (0-1)").
				Value(&b.Confidence).
				Validate(func(s string) error {
					c, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
					if err != nil || c < 0 || c > 1 {
						return errors.New("confidence must be between 0 and 1")
					}
					return nil
				}),

			huh.NewInput().
				Title("Notes").
				Value(&b.Notes),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = rulesStateCreate
	m.table.Blur()

	return m, m.form.Init()
}

func (m RulesModel) updateCreate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = rulesStateBrowse
		m.form = nil
		m.binding = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.createCmd(m.binding)
}

func (m RulesModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading rules...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v\n\n(r to retry, Esc to back)", m.err))
	}

	inactive := "hidden"
	if m.showInactive {
		inactive = "shown"
	}

	header := fmt.Sprintf(
		"[o] Origin: %s | [i] Inactive: %s | %d rules",
		activeStyle.Render(originLabel(originFilters[m.originIdx])),
		activeStyle.Render(inactive),
		len(m.rules),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == rulesStateCreate && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render("New Rule\n\n" + m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = faintStyle.Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func originLabel(o *rule.Origin) string {
	if o == nil {
		return "All"
	}

	return string(*o)
}

func (m *RulesModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.rules))

	for _, r := range m.rules {
		active := "yes"
		if !r.IsActive {
			active = "no"
		}

		rows = append(rows, table.Row{
			formatID(r.ID),
			string(r.Match.Type()),
			r.Match.Value(),
			m.categories.Name(&r.CategoryID),
			strconv.Itoa(r.Priority),
			fmt.Sprintf("%.2f", r.Confidence),
			string(r.Origin),
			active,
			strconv.Itoa(r.HitCount),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadRulesMsg struct {
	rules      []*rule.Rule
	categories Categories
	err        error
}

func (m RulesModel) loadRulesCmd() tea.Cmd {
	filter := rule.ListFilter{ActiveOnly: !m.showInactive, Origin: originFilters[m.originIdx]}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		cats, err := LoadCategories(ctx, m.categoryService)
		if err != nil {
			return loadRulesMsg{err: err}
		}

		rules, err := m.ruleService.List(ctx, filter)

		return loadRulesMsg{rules: rules, categories: cats, err: err}
	}
}

type ruleSavedMsg struct {
	done string
	err  error
}

func (m RulesModel) toggleCmd() tea.Cmd {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rules) {
		return nil
	}

	r := m.rules[idx]
	svc := m.ruleService

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if r.IsActive {
			if err := svc.Deactivate(ctx, r.ID); err != nil {
				return ruleSavedMsg{err: err}
			}

			return ruleSavedMsg{done: fmt.Sprintf("Rule %d deactivated.", r.ID)}
		}

		if err := svc.Activate(ctx, r.ID); err != nil {
			return ruleSavedMsg{err: err}
		}

		return ruleSavedMsg{done: fmt.Sprintf("Rule %d activated.", r.ID)}
	}
}

func (m RulesModel) createCmd(b *ruleForm) tea.Cmd {
	svc := m.ruleService

	return func() tea.Msg {
		p, err := b.params()
		if err != nil {
			return ruleSavedMsg{err: err}
		}

		ctx, cancel := DbCtx()
		defer cancel()

		r, created, err := svc.Create(ctx, p)
		if err != nil {
			return ruleSavedMsg{err: err}
		}

		if !created {
			return ruleSavedMsg{done: fmt.Sprintf("Rule %d already exists.", r.ID)}
		}

		return ruleSavedMsg{done: fmt.Sprintf("Rule %d created.", r.ID)}
	}
}
