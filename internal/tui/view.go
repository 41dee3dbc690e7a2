package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"appleroulette/internal/reporting"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func (m ScanModel) View() string {
	title := titleStyle.Render(fmt.Sprintf("appleroulette - %s", m.interfaceName))

	if m.err != nil {
		return lipgloss.JoinVertical(lipgloss.Left, title, errorStyle.Render("Error: "+m.err.Error())) + "\n"
	}

	if !m.done {
		status := "Waiting for the receiver..."
		switch {
		case m.classifying:
			status = fmt.Sprintf("Classifying %d hosts...", m.hosts)
		case m.total > 0:
			status = fmt.Sprintf("Sent %d/%d ARP requests", m.sent, m.total)
		}
		body := lipgloss.JoinVertical(lipgloss.Left, title, infoStyle.Render(m.spinner.View()+" "+status))
		return body + "\nPress q to quit.\n"
	}

	summary := infoStyle.Render(reporting.Totals(m.result.Summary))
	return lipgloss.JoinVertical(lipgloss.Left, title, infoStyle.Render(m.table.View()), summary) + "\n"
}
