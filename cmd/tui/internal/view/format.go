package view

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/ledgermatch/internal/money"
)

var (
	faintStyle  = lipgloss.NewStyle().Faint(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	panelStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// FormatAmount formats an amount stored in minor units.
func FormatAmount(minor int64) string {
	return money.Format(minor)
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatConfidence renders a 0-1 confidence as a percentage, or "-" for nil.
func FormatConfidence(c *float64) string {
	if c == nil {
		return "-"
	}

	return fmt.Sprintf("%.0f%%", *c*100)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
