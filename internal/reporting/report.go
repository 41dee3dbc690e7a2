package reporting

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"appleroulette/internal/models"
)

// Summary aggregates one classification run.
type Summary struct {
	Matched   int
	Total     int
	Threshold int
	ByOutcome map[models.Outcome]int
}

// Summarize counts matched records against the configured threshold.
func Summarize(records []models.ScanRecord, threshold int) Summary {
	s := Summary{
		Total:     len(records),
		Threshold: threshold,
		ByOutcome: make(map[models.Outcome]int, len(models.Outcomes)),
	}
	for _, o := range models.Outcomes {
		s.ByOutcome[o] = 0
	}
	for _, r := range records {
		s.ByOutcome[r.Outcome]++
		if r.Outcome.Matched() {
			s.Matched++
		}
	}
	return s
}

// Marker returns the glyph printed in front of a record.
func Marker(o models.Outcome) string {
	switch o {
	case models.MatchedByAddress:
		return "🍏"
	case models.MatchedByService:
		return "🍎"
	default:
		return "💩"
	}
}

var (
	matchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noMatchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	totalStyle   = lipgloss.NewStyle().Bold(true)
	dangerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Line formats one record.
func Line(r models.ScanRecord) string {
	return fmt.Sprintf("%s %s %s", Marker(r.Outcome), r.MAC, r.IP)
}

// Totals formats the closing summary line.
func Totals(s Summary) string {
	return fmt.Sprintf("Detected %d/%d (%d would have killed you)", s.Matched, s.Total, s.Threshold)
}

// Render produces the terminal report: one line per record, then the totals.
func Render(records []models.ScanRecord, s Summary) string {
	var b strings.Builder
	for _, r := range records {
		style := noMatchStyle
		if r.Outcome.Matched() {
			style = matchStyle
		}
		b.WriteString(style.Render(Line(r)))
		b.WriteByte('\n')
	}
	style := totalStyle
	if s.Matched > s.Threshold {
		style = dangerStyle
	}
	b.WriteString(style.Render(Totals(s)))
	b.WriteByte('\n')
	return b.String()
}

// WriteHTML writes a timestamped report into dir and returns its path.
func WriteHTML(dir string, records []models.ScanRecord, s Summary) (string, error) {
	return writeHTML(dir, records, s, time.Now())
}

func writeHTML(dir string, records []models.ScanRecord, s Summary, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	timestamp := now.Format("20060102_150405")

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>appleroulette report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .match { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>appleroulette report</h1>
    <div class="summary">
        <p><strong>Date:</strong> %s</p>
        <p><strong>Result:</strong> %s</p>
`, timestamp, now.Format(time.RFC1123), html.EscapeString(Totals(s)))

	for _, o := range models.Outcomes {
		fmt.Fprintf(&b, "        <p><strong>%s:</strong> %d</p>\n", o, s.ByOutcome[o])
	}

	b.WriteString(`    </div>

    <h2>Hosts</h2>
    <table>
        <thead>
            <tr>
                <th></th>
                <th>IP Address</th>
                <th>MAC Address</th>
                <th>Outcome</th>
            </tr>
        </thead>
        <tbody>
`)
	if len(records) == 0 {
		b.WriteString("            <tr><td colspan=\"4\">No hosts answered.</td></tr>\n")
	}
	for _, r := range records {
		class := ""
		if r.Outcome.Matched() {
			class = ` class="match"`
		}
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%s</td><td>%s</td><td%s>%s</td></tr>\n",
			Marker(r.Outcome), r.IP, r.MAC, class, r.Outcome)
	}
	b.WriteString(`        </tbody>
    </table>
</body>
</html>
`)

	f, filename, err := createReport(dir, timestamp)
	if err != nil {
		return "", err
	}
	_, err = f.WriteString(b.String())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return filename, nil
}

// createReport opens a new report file, never overwriting an earlier run
// from the same second.
func createReport(dir, timestamp string) (*os.File, string, error) {
	for i := 0; ; i++ {
		name := fmt.Sprintf("report_%s.html", timestamp)
		if i > 0 {
			name = fmt.Sprintf("report_%s_%d.html", timestamp, i)
		}
		filename := filepath.Join(dir, name)
		f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create report: %w", err)
		}
		return f, filename, nil
	}
}
