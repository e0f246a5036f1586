package view

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type reviewState int

const (
	reviewStateTimeframe reviewState = iota
	reviewStateReviewing
	reviewStateCategorizing
)

// ReviewModel walks the NEEDS_REVIEW queue one suggestion at a time.
type ReviewModel struct {
	txService         *transaction.Service
	categoryService   *category.Service
	categorizeService *categorize.Service

	state      reviewState
	picker     TimeframePicker
	categories Categories
	form       *categoryForm

	queue      []*transaction.Transaction
	currentTx  *transaction.Transaction
	totalCount int
	approved   int
	rejected   int

	status  string
	loading bool
}

func NewReviewModel(txSvc *transaction.Service, catSvc *category.Service, categorizeSvc *categorize.Service) ReviewModel {
	return ReviewModel{
		txService:         txSvc,
		categoryService:   catSvc,
		categorizeService: categorizeSvc,
		picker:            NewTimeframePicker(TimeframeAll),
	}
}

func (m ReviewModel) Title() string { return "Review Suggestions" }

func (m ReviewModel) ShortHelp() string {
	switch m.state {
	case reviewStateReviewing:
		return "a: approve | r: reject | c: choose category | s: skip | Esc: back"
	case reviewStateCategorizing:
		return "Enter: next field | Esc: cancel"
	}

	return "Enter: select | Esc: back"
}

func (m ReviewModel) Init() tea.Cmd {
	return nil
}

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TimeframeSelectedMsg:
		m.state = reviewStateReviewing
		m.loading = true

		return m, m.loadQueueCmd(msg)

	case loadReviewMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading suggestions: %v", msg.err)
			return m, nil
		}

		m.categories = msg.categories
		m.queue = msg.txs
		m.totalCount = len(msg.txs)
		m.nextTx()

		return m, nil

	case reviewActionMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			m.state = reviewStateReviewing

			return m, nil
		}

		switch msg.action {
		case "approved", "categorized":
			m.approved++
		case "rejected":
			m.rejected++
		}

		m.state = reviewStateReviewing
		m.nextTx()

		return m, nil
	}

	switch m.state {
	case reviewStateTimeframe:
		return m.updateTimeframe(msg)
	case reviewStateReviewing:
		return m.updateReviewing(msg)
	case reviewStateCategorizing:
		return m.updateCategorizing(msg)
	}

	return m, nil
}

func (m ReviewModel) updateTimeframe(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.picker.IsSelecting() {
		return m, Back
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	return m, cmd
}

func (m ReviewModel) updateReviewing(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.loading {
		return m, nil
	}

	if keyMsg.Type == tea.KeyEsc {
		return m, Back
	}

	if m.currentTx == nil {
		return m, nil
	}

	tx := m.currentTx

	switch keyMsg.String() {
	case "a":
		return m, m.actionCmd("approved", func() error {
			ctx, cancel := DbCtx()
			defer cancel()

			_, err := m.categorizeService.ApproveSuggestion(ctx, tx.ID)

			return err
		})
	case "r":
		return m, m.actionCmd("rejected", func() error {
			ctx, cancel := DbCtx()
			defer cancel()

			_, err := m.categorizeService.RejectSuggestion(ctx, tx.ID)

			return err
		})
	case "c":
		m.form = newCategoryForm(m.categories, tx.SuggestedCategoryID)
		m.state = reviewStateCategorizing

		return m, m.form.Init()
	case "s":
		m.nextTx()
	}

	return m, nil
}

func (m ReviewModel) updateCategorizing(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = reviewStateReviewing
		m.form = nil

		return m, nil
	}

	done, cmd := m.form.Update(msg)
	if !done {
		return m, cmd
	}

	tx, categoryID, notes := m.currentTx, m.form.CategoryID, m.form.Notes
	m.form = nil

	return m, m.actionCmd("categorized", func() error {
		ctx, cancel := DbCtx()
		defer cancel()

		_, err := m.categorizeService.CategorizeOne(ctx, tx.ID, categoryID, notes)

		return err
	})
}

func (m *ReviewModel) nextTx() {
	if len(m.queue) == 0 {
		m.currentTx = nil
		m.status = fmt.Sprintf("All done! %d accepted, %d rejected.", m.approved, m.rejected)

		return
	}

	m.currentTx = m.queue[0]
	m.queue = m.queue[1:]
	m.status = fmt.Sprintf("Reviewing %d/%d", m.totalCount-len(m.queue), m.totalCount)
}

func (m ReviewModel) View() string {
	switch m.state {
	case reviewStateTimeframe:
		return lipgloss.NewStyle().Padding(2).Render(m.picker.View())
	case reviewStateCategorizing:
		return lipgloss.NewStyle().Padding(2).Render(m.txInfoView() + "\n\n" + m.form.View())
	}

	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading suggestions...")
	}

	if m.currentTx == nil {
		status := m.status
		if m.totalCount == 0 && !strings.HasPrefix(status, "Error") {
			status = "No transactions need review."
		}

		return lipgloss.NewStyle().Padding(2).Render(status + "\n\n(Esc to back)")
	}

	tx := m.currentTx
	suggestion := fmt.Sprintf(
		"Suggested: %s  (%s via %s)",
		activeStyle.Render(m.categories.Name(tx.SuggestedCategoryID)),
		FormatConfidence(tx.Confidence),
		sourceLabel(tx.CategorySource),
	)

	return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf(
		"%s\n\n%s\n\n%s\n\n%s",
		m.status,
		m.txInfoView(),
		suggestion,
		faintStyle.Render("(a: approve, r: reject, c: choose another category, s: skip, Esc: back)"),
	))
}

func (m ReviewModel) txInfoView() string {
	tx := m.currentTx
	if tx == nil {
		return ""
	}

	lines := []string{
		fmt.Sprintf("Date: %s  |  %s  |  Amount: %s", FormatDate(tx.Date), tx.Direction, FormatAmount(tx.Amount)),
		fmt.Sprintf("Counterparty: %s  INN: %s", orDash(tx.CounterpartyName), orDash(tx.CounterpartyINN)),
	}

	if tx.BusinessOperation != "" {
		lines = append(lines, "Operation: "+tx.BusinessOperation)
	}

	if tx.PaymentPurpose != "" {
		lines = append(lines, "Purpose: "+tx.PaymentPurpose)
	}

	return panelStyle.Render(strings.Join(lines, "\n"))
}

func sourceLabel(s transaction.Source) string {
	if s == "" {
		return "unknown"
	}

	return strings.ReplaceAll(string(s), "_", " ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}

// Messages

type loadReviewMsg struct {
	txs        []*transaction.Transaction
	categories Categories
	err        error
}

func (m ReviewModel) loadQueueCmd(tf TimeframeSelectedMsg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		cats, err := LoadCategories(ctx, m.categoryService)
		if err != nil {
			return loadReviewMsg{err: err}
		}

		filter := transaction.ListFilter{Status: new(transaction.StatusNeedsReview)}

		if !tf.All {
			filter.StartDate = &tf.Start
			filter.EndDate = &tf.End
		}

		txs, err := m.txService.List(ctx, filter)

		return loadReviewMsg{txs: txs, categories: cats, err: err}
	}
}

type reviewActionMsg struct {
	action string
	err    error
}

func (m ReviewModel) actionCmd(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return reviewActionMsg{action: action, err: fn()}
	}
}
