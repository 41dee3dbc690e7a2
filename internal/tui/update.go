package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"appleroulette/internal/reporting"
)

func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case ProgressMsg:
		m.sent, m.total = msg.Sent, msg.Total
		return m, nil

	case ClassifyingMsg:
		m.classifying = true
		m.hosts = msg.Hosts
		return m, nil

	case DoneMsg:
		m.done = true
		m.result, m.err = msg.Result, msg.Err
		if msg.Result != nil {
			rows := make([]table.Row, len(msg.Result.Records))
			for i, r := range msg.Result.Records {
				rows[i] = table.Row{reporting.Marker(r.Outcome), r.IP.String(), r.MAC.String(), r.Outcome.String()}
			}
			m.table.SetRows(rows)
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}
