package view

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type txState int

const (
	txStateTimeframe txState = iota
	txStateList
	txStateEditing
)

var statusFilters = []*transaction.Status{
	nil,
	new(transaction.StatusNew),
	new(transaction.StatusNeedsReview),
	new(transaction.StatusCategorized),
	new(transaction.StatusApproved),
	new(transaction.StatusIgnored),
}

// txItem wraps a transaction to implement list.Item.
type txItem struct {
	tx       *transaction.Transaction
	category string
}

func (i txItem) Title() string {
	status := faintStyle.Render(fmt.Sprintf("[%s]", i.tx.Status))

	return fmt.Sprintf("%s  %12s  %s  %s", FormatDate(i.tx.Date), FormatAmount(i.tx.Amount), status, counterparty(i.tx))
}

func (i txItem) Description() string {
	desc := "Category: " + i.category
	if i.tx.CategorySource != "" {
		desc += " (" + sourceLabel(i.tx.CategorySource) + ")"
	}

	if i.tx.IsLinked() {
		desc += fmt.Sprintf("  |  Linked to expense #%d", *i.tx.LinkedExpenseID)
	}

	return desc
}

func (i txItem) FilterValue() string {
	return counterparty(i.tx) + " " + i.tx.CounterpartyINN + " " + i.tx.PaymentPurpose
}

func counterparty(tx *transaction.Transaction) string {
	if tx.CounterpartyName != "" {
		return tx.CounterpartyName
	}

	if tx.PaymentPurpose != "" {
		return tx.PaymentPurpose
	}

	return "-"
}

// TransactionsModel browses transactions of a timeframe, records manual
// categories and unlinks reconciled ones.
type TransactionsModel struct {
	txService         *transaction.Service
	categoryService   *category.Service
	categorizeService *categorize.Service
	reconcileService  *reconcile.Service

	state      txState
	picker     TimeframePicker
	list       list.Model
	form       *categoryForm
	categories Categories
	txs        []*transaction.Transaction
	selectedTx *transaction.Transaction

	timeframe TimeframeSelectedMsg
	filterIdx int
	loading   bool
	status    string
}

func NewTransactionsModel(
	txSvc *transaction.Service,
	catSvc *category.Service,
	categorizeSvc *categorize.Service,
	reconcileSvc *reconcile.Service,
) TransactionsModel {
	l := list.New([]list.Item{}, txItemDelegate{}, 0, 0)
	l.Title = "Transactions"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)

	return TransactionsModel{
		txService:         txSvc,
		categoryService:   catSvc,
		categorizeService: categorizeSvc,
		reconcileService:  reconcileSvc,
		picker:            NewTimeframePicker(TimeframeThisMonth),
		list:              l,
	}
}

func (m TransactionsModel) Title() string { return "Transactions" }

func (m TransactionsModel) ShortHelp() string {
	switch m.state {
	case txStateList:
		return "Esc: back | Enter: categorize | f: status filter | u: unlink | /: search"
	case txStateEditing:
		return "Esc: cancel | Enter/Tab: navigate form"
	}

	return "Esc: back | Enter: select"
}

func (m TransactionsModel) Init() tea.Cmd {
	return nil
}

func (m TransactionsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TimeframeSelectedMsg:
		m.timeframe = msg
		m.loading = true
		m.state = txStateList

		return m, m.loadTxsCmd()

	case loadTxsMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.txs = msg.txs
		m.categories = msg.categories
		m.refreshListItems()

		if len(msg.txs) == 0 {
			m.status = "No transactions found."
		}

		return m, nil

	case txActionMsg:
		m.state = txStateList
		m.form = nil

		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.status = msg.done

		return m, m.loadTxsCmd()

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	}

	switch m.state {
	case txStateTimeframe:
		return m.updateTimeframe(msg)
	case txStateList:
		return m.updateList(msg)
	case txStateEditing:
		return m.updateEditing(msg)
	}

	return m, nil
}

func (m TransactionsModel) updateTimeframe(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.picker.IsSelecting() {
		return m, Back
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	return m, cmd
}

func (m TransactionsModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "enter":
			return m.startEditing()
		case "f":
			m.filterIdx = (m.filterIdx + 1) % len(statusFilters)
			m.loading = true

			return m, m.loadTxsCmd()
		case "u":
			return m, m.unlinkCmd()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m TransactionsModel) startEditing() (tea.Model, tea.Cmd) {
	selected, ok := m.list.SelectedItem().(txItem)
	if !ok {
		return m, nil
	}

	preselect := selected.tx.CategoryID
	if preselect == nil {
		preselect = selected.tx.SuggestedCategoryID
	}

	m.selectedTx = selected.tx
	m.form = newCategoryForm(m.categories, preselect)
	m.state = txStateEditing

	return m, m.form.Init()
}

func (m TransactionsModel) updateEditing(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = txStateList
		m.form = nil

		return m, nil
	}

	done, cmd := m.form.Update(msg)
	if !done {
		return m, cmd
	}

	return m, m.categorizeCmd(m.selectedTx.ID, m.form.CategoryID, m.form.Notes)
}

func (m TransactionsModel) View() string {
	switch m.state {
	case txStateTimeframe:
		return lipgloss.NewStyle().Padding(1).Render(m.picker.View())

	case txStateList:
		if m.loading {
			return lipgloss.NewStyle().Padding(2).Render("Loading transactions...")
		}

		header := fmt.Sprintf("[f] Status: %s", activeStyle.Render(filterLabel(statusFilters[m.filterIdx])))
		if m.status != "" {
			header += "  " + faintStyle.Render(m.status)
		}

		return lipgloss.NewStyle().Padding(1).Render(header + "\n" + m.list.View())

	case txStateEditing:
		if m.form == nil || m.selectedTx == nil {
			return ""
		}

		info := panelStyle.Render(fmt.Sprintf(
			"Date: %s  |  Amount: %s  |  %s\nINN: %s\nPurpose: %s",
			FormatDate(m.selectedTx.Date),
			FormatAmount(m.selectedTx.Amount),
			counterparty(m.selectedTx),
			orDash(m.selectedTx.CounterpartyINN),
			orDash(m.selectedTx.PaymentPurpose),
		))

		return lipgloss.NewStyle().Padding(1).Render(info + "\n" + m.form.View())
	}

	return ""
}

func filterLabel(s *transaction.Status) string {
	if s == nil {
		return "All"
	}

	return string(*s)
}

func (m *TransactionsModel) refreshListItems() {
	items := make([]list.Item, len(m.txs))
	for i, tx := range m.txs {
		items[i] = txItem{tx: tx, category: m.categories.Name(tx.CategoryID)}
	}

	m.list.SetItems(items)
}

// Messages

type loadTxsMsg struct {
	txs        []*transaction.Transaction
	categories Categories
	err        error
}

func (m TransactionsModel) loadTxsCmd() tea.Cmd {
	tf := m.timeframe
	status := statusFilters[m.filterIdx]

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		cats, err := LoadCategories(ctx, m.categoryService)
		if err != nil {
			return loadTxsMsg{err: err}
		}

		filter := transaction.ListFilter{Status: status}

		if !tf.All {
			filter.StartDate = &tf.Start
			filter.EndDate = &tf.End
		}

		txs, err := m.txService.List(ctx, filter)

		return loadTxsMsg{txs: txs, categories: cats, err: err}
	}
}

type txActionMsg struct {
	done string
	err  error
}

func (m TransactionsModel) categorizeCmd(txID, categoryID int64, notes string) tea.Cmd {
	svc := m.categorizeService
	name := m.categories.Name(&categoryID)

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if _, err := svc.CategorizeOne(ctx, txID, categoryID, notes); err != nil {
			return txActionMsg{err: err}
		}

		return txActionMsg{done: fmt.Sprintf("Transaction %d categorized as %s.", txID, name)}
	}
}

func (m TransactionsModel) unlinkCmd() tea.Cmd {
	selected, ok := m.list.SelectedItem().(txItem)
	if !ok || !selected.tx.IsLinked() {
		return nil
	}

	svc := m.reconcileService
	id := selected.tx.ID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if _, err := svc.Unlink(ctx, id); err != nil {
			return txActionMsg{err: err}
		}

		return txActionMsg{done: fmt.Sprintf("Transaction %d unlinked.", id)}
	}
}

// txItemDelegate renders items in the list.
type txItemDelegate struct{}

func (d txItemDelegate) Height() int                             { return 2 }
func (d txItemDelegate) Spacing() int                            { return 0 }
func (d txItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d txItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(txItem)
	if !ok {
		return
	}

	title := i.Title()
	if index == m.Index() {
		title = activeStyle.Bold(true).Render("> " + title)
	}

	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "    %s\n", faintStyle.Render(i.Description()))
}
