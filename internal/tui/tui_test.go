package tui

import (
	"errors"
	"net"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"appleroulette/internal/app"
	"appleroulette/internal/models"
	"appleroulette/internal/reporting"
)

func update(t *testing.T, m ScanModel, msg tea.Msg) (ScanModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	sm, ok := next.(ScanModel)
	if !ok {
		t.Fatalf("expected ScanModel, got %T", next)
	}
	return sm, cmd
}

func TestProgressView(t *testing.T) {
	m := NewScanModel("eth0")
	if !strings.Contains(m.View(), "eth0") {
		t.Fatalf("expected interface name in view")
	}

	m, _ = update(t, m, ProgressMsg{Sent: 12, Total: 254})
	if !strings.Contains(m.View(), "Sent 12/254 ARP requests") {
		t.Fatalf("expected progress in view, got:\n%s", m.View())
	}

	m, _ = update(t, m, ClassifyingMsg{Hosts: 3})
	if !strings.Contains(m.View(), "Classifying 3 hosts") {
		t.Fatalf("expected classifying status, got:\n%s", m.View())
	}
}

func TestDoneShowsResults(t *testing.T) {
	records := []models.ScanRecord{
		{IP: net.IPv4(192, 168, 1, 2).To4(), MAC: net.HardwareAddr{0x00, 0x1c, 0xb3, 0, 0, 2}, Outcome: models.MatchedByAddress},
		{IP: net.IPv4(192, 168, 1, 5).To4(), MAC: net.HardwareAddr{0x52, 0x54, 0, 0, 0, 5}, Outcome: models.NoMatch},
	}
	res := &app.Result{Records: records, Summary: reporting.Summarize(records, 20)}

	m, cmd := update(t, NewScanModel("eth0"), DoneMsg{Result: res})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	view := m.View()
	for _, want := range []string{"192.168.1.2", "00:1c:b3:00:00:02", "MatchedByAddress", "Detected 1/2 (20 would have killed you)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view, got:\n%s", want, view)
		}
	}
	if m.Interrupted() {
		t.Fatalf("finished run must not count as interrupted")
	}
}

func TestDoneWithError(t *testing.T) {
	m, _ := update(t, NewScanModel("eth0"), DoneMsg{Err: errors.New("cannot receive packet")})
	if !strings.Contains(m.View(), "Error: cannot receive packet") {
		t.Fatalf("expected error in view, got:\n%s", m.View())
	}
}

func TestQuitBeforeDone(t *testing.T) {
	m, cmd := update(t, NewScanModel("eth0"), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !m.Interrupted() {
		t.Fatalf("expected interrupted model with quit command")
	}
}
