package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zslzxy/toolmesh/internal/bus"
	"github.com/zslzxy/toolmesh/internal/mcp"
)

const maxResultPreview = 240

var (
	noticeHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")).
				Padding(0, 1)

	noticeBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			PaddingLeft(2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")).
			Padding(0, 1).
			MarginBottom(1)

	colHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8E4EC6")).
			Bold(true).
			MarginRight(1)

	cellStyle = lipgloss.NewStyle().MarginRight(1)

	connectedColor = lipgloss.Color("#2E8B57")
	failedColor    = lipgloss.Color("#D2042D")
	mutedColor     = lipgloss.Color("241")
)

// Notice renders one tool notice for the terminal.
func Notice(n bus.ToolNotice) string {
	header := noticeHeaderStyle.Render(fmt.Sprintf("tool %s/%s", n.Server, n.Tool))
	lines := []string{
		"args:   " + compactJSON(n.Args),
		"result: " + truncate(compactJSON(n.Result), maxResultPreview),
	}
	return header + "\n" + noticeBodyStyle.Render(strings.Join(lines, "\n"))
}

// Notices renders every notice found in s, followed by any text that was
// not part of a notice.
func Notices(s string) string {
	notices, rest := bus.ParseNotices(s)
	parts := make([]string, 0, len(notices)+1)
	for _, n := range notices {
		parts = append(parts, Notice(n))
	}
	if strings.TrimSpace(rest) != "" {
		parts = append(parts, rest)
	}
	return strings.Join(parts, "\n")
}

// ServerTable renders manager statuses as an aligned table.
func ServerTable(title string, statuses []mcp.ServerStatus) string {
	const (
		wName      = 20
		wTransport = 12
		wState     = 12
		wTools     = 6
	)

	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	b.WriteString("  " + lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wName).Render("NAME"),
		colHeaderStyle.Width(wTransport).Render("TRANSPORT"),
		colHeaderStyle.Width(wState).Render("STATE"),
		colHeaderStyle.Width(wTools).Render("TOOLS"),
		colHeaderStyle.Render("MESSAGE"),
	))
	b.WriteString("\n")

	for _, s := range statuses {
		color := mutedColor
		switch s.State {
		case mcp.StateConnected:
			color = connectedColor
		case mcp.StateFailed:
			color = failedColor
		}
		tools := "-"
		if s.State == mcp.StateConnected {
			tools = fmt.Sprintf("%d", s.ToolCount)
		}
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			cellStyle.Width(wName).Render(truncate(s.Name, wName)),
			cellStyle.Width(wTransport).Render(string(s.Transport)),
			cellStyle.Width(wState).Foreground(color).Render(string(s.State)),
			cellStyle.Width(wTools).Render(tools),
			cellStyle.Foreground(mutedColor).Render(truncate(s.Message, 60)),
		)
		b.WriteString("  " + row + "\n")
	}
	return b.String()
}

func compactJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
