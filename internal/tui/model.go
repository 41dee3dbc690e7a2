package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"appleroulette/internal/app"
)

// ProgressMsg reports how many ARP requests have gone out.
type ProgressMsg struct {
	Sent  int
	Total int
}

// ClassifyingMsg marks the end of the sweep.
type ClassifyingMsg struct {
	Hosts int
}

// DoneMsg carries the finished run.
type DoneMsg struct {
	Result *app.Result
	Err    error
}

// ScanModel shows a spinner while the run is in progress and the classified
// hosts once it is done.
type ScanModel struct {
	interfaceName string
	spinner       spinner.Model
	table         table.Model

	sent, total int
	hosts       int
	classifying bool

	result   *app.Result
	err      error
	done     bool
	quitting bool
}

func NewScanModel(iface string) ScanModel {
	columns := []table.Column{
		{Title: "", Width: 2},
		{Title: "IP Address", Width: 16},
		{Title: "MAC Address", Width: 18},
		{Title: "Outcome", Width: 18},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ScanModel{
		interfaceName: iface,
		spinner:       sp,
		table:         t,
	}
}

func (m ScanModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Interrupted reports whether the user quit before the run finished.
func (m ScanModel) Interrupted() bool {
	return m.quitting && !m.done
}
