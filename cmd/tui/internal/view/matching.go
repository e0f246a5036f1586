package view

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

const maxCandidates = 5

// MatchingModel walks the unlinked debits and links each one to a chosen
// expense request candidate.
type MatchingModel struct {
	txService        *transaction.Service
	reconcileService *reconcile.Service
	threshold        float64

	queue      []*transaction.Transaction
	currentTx  *transaction.Transaction
	candidates []reconcile.Candidate
	cursor     int

	linked  int
	loading bool
	status  string
}

func NewMatchingModel(txSvc *transaction.Service, reconcileSvc *reconcile.Service, threshold float64) MatchingModel {
	return MatchingModel{
		txService:        txSvc,
		reconcileService: reconcileSvc,
		threshold:        threshold,
		loading:          true,
	}
}

func (m MatchingModel) Title() string { return "Match Expenses" }

func (m MatchingModel) ShortHelp() string {
	return "Up/Down: choose | Enter: link | s: skip | Esc: back"
}

func (m MatchingModel) Init() tea.Cmd {
	return m.loadUnlinkedCmd()
}

func (m MatchingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.loading {
			if msg.Type == tea.KeyEsc {
				return m, Back
			}

			return m, nil
		}

		switch msg.String() {
		case "esc":
			return m, Back
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.candidates)-1 {
				m.cursor++
			}
		case "enter":
			if m.currentTx != nil && m.cursor < len(m.candidates) {
				m.loading = true
				return m, m.linkCmd(m.currentTx.ID, m.candidates[m.cursor].ExpenseID)
			}
		case "s":
			return m.next()
		}

	case loadUnlinkedMsg:
		if msg.err != nil {
			m.loading = false
			m.status = fmt.Sprintf("Error: %v", msg.err)

			return m, nil
		}

		m.queue = msg.txs

		return m.next()

	case candidatesMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading candidates: %v", msg.err)
			return m, nil
		}

		m.candidates = msg.candidates
		if len(m.candidates) > maxCandidates {
			m.candidates = m.candidates[:maxCandidates]
		}

		m.cursor = 0
		m.status = ""

	case linkResultMsg:
		if msg.err != nil {
			m.loading = false
			m.status = fmt.Sprintf("Error linking: %v", msg.err)

			return m, nil
		}

		m.linked++

		return m.next()
	}

	return m, nil
}

// next moves to the following debit and loads its candidates.
func (m MatchingModel) next() (tea.Model, tea.Cmd) {
	m.candidates = nil
	m.cursor = 0

	if len(m.queue) == 0 {
		m.currentTx = nil
		m.loading = false
		m.status = fmt.Sprintf("All done! %d linked.", m.linked)

		return m, nil
	}

	m.currentTx = m.queue[0]
	m.queue = m.queue[1:]
	m.loading = true

	return m, m.candidatesCmd(m.currentTx.ID)
}

func (m MatchingModel) View() string {
	if m.currentTx == nil {
		if m.loading {
			return lipgloss.NewStyle().Padding(2).Render("Loading unlinked debits...")
		}

		return lipgloss.NewStyle().Padding(2).Render(m.status + "\n\n(Esc to back)")
	}

	tx := m.currentTx
	info := panelStyle.Render(fmt.Sprintf(
		"Date: %s  |  Amount: %s\nCounterparty: %s  INN: %s\nPurpose: %s",
		FormatDate(tx.Date),
		FormatAmount(tx.Amount),
		orDash(tx.CounterpartyName),
		orDash(tx.CounterpartyINN),
		orDash(tx.PaymentPurpose),
	))

	var b strings.Builder

	fmt.Fprintf(&b, "Unlinked debit (%d more after this)\n\n%s\n\n", len(m.queue), info)

	switch {
	case m.loading:
		b.WriteString("Scoring candidates...")
	case len(m.candidates) == 0:
		fmt.Fprintf(&b, "No expense request scores %.0f or more. Press s to skip.", m.threshold)
	default:
		b.WriteString("Candidates:\n")

		for i, c := range m.candidates {
			cursor := "  "
			line := fmt.Sprintf("#%-6d score %5.1f  remaining %s  %s",
				c.ExpenseID, c.Score, FormatAmount(c.RemainingAmount), reasonSummary(c.Reasons))

			if i == m.cursor {
				cursor = "> "
				line = activeStyle.Render(line)
			}

			b.WriteString(cursor + line + "\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n" + errorStyle.Render(m.status))
	}

	b.WriteString("\n\n" + faintStyle.Render("(Enter: link, s: skip, Esc: back)"))

	return lipgloss.NewStyle().Padding(2).Render(b.String())
}

func reasonSummary(reasons []reconcile.Reason) string {
	parts := make([]string, 0, len(reasons))

	for _, r := range reasons {
		if r.Points > 0 {
			parts = append(parts, fmt.Sprintf("%s +%.0f", r.Signal, r.Points))
		}
	}

	return faintStyle.Render(strings.Join(parts, ", "))
}

// Messages

type loadUnlinkedMsg struct {
	txs []*transaction.Transaction
	err error
}

func (m MatchingModel) loadUnlinkedCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.txService.List(ctx, transaction.ListFilter{
			Direction:    new(transaction.DirectionDebit),
			UnlinkedOnly: true,
		})

		return loadUnlinkedMsg{txs: txs, err: err}
	}
}

type candidatesMsg struct {
	candidates []reconcile.Candidate
	err        error
}

func (m MatchingModel) candidatesCmd(txID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		candidates, err := m.reconcileService.Candidates(ctx, txID, m.threshold)

		return candidatesMsg{candidates: candidates, err: err}
	}
}

type linkResultMsg struct {
	err error
}

func (m MatchingModel) linkCmd(txID, expenseID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		_, err := m.reconcileService.Link(ctx, txID, expenseID)

		return linkResultMsg{err: err}
	}
}
