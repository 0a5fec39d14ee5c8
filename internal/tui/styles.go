package tui

import (
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Shimmer animation for the header wordmark.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

// renderShimmerLogo renders the wordmark as a slow wave of light running
// from deep indigo (#1e2450) to sky blue (#7dd3fc).
func renderShimmerLogo(frame int) string {
	const text = "MYLIBRARY"
	n := len(text)
	t := float64(frame)

	var out string
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		phase := t*0.1 - x*3.0 + math.Sin(t*0.023)*2.0
		b := math.Pow(math.Sin(phase)*0.5+0.5, 1.3)
		b = b*0.75 + math.Sin(t*0.035)*0.12 + 0.18
		b = math.Max(0.05, math.Min(1.0, b))

		r := clampByte(30 + b*(125-30))
		g := clampByte(36 + b*(211-36))
		bl := clampByte(80 + b*(252-80))
		s := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, bl)))
		out += s.Render(string(text[i]))
		if i < n-1 {
			out += " "
		}
	}
	return out
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#38bdf8"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7dd3fc")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d474"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e06060"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a844"))

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#606878"))

	// Calendar cells
	presentDayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0a0a10")).
			Background(lipgloss.Color("#34d474")).
			Bold(true)

	todayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7dd3fc")).
			Underline(true)

	// Seat grid
	seatFreeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	seatTakenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#404858")).
			Strikethrough(true)

	seatMineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d474")).
			Bold(true)

	selectedRowBg = lipgloss.NewStyle().Background(lipgloss.Color("#1e1e2a"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#1e2450")).
			Padding(0, 2)
)

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// formTheme is the huh theme for the sign-in and registration forms.
func formTheme() *huh.Theme {
	t := huh.ThemeBase()
	sky := lipgloss.Color("#38bdf8")
	gray := lipgloss.Color("#8890a0")
	red := lipgloss.Color("#e06060")

	t.Group.Title = lipgloss.NewStyle().Foreground(sky).Bold(true).MarginBottom(1)
	t.Group.Description = lipgloss.NewStyle().Foreground(gray).MarginBottom(1)

	t.Focused.Base = lipgloss.NewStyle().
		PaddingLeft(1).
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(sky)
	t.Focused.Title = lipgloss.NewStyle().Foreground(sky).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(gray)
	t.Focused.ErrorIndicator = lipgloss.NewStyle().Foreground(red).SetString(" *")
	t.Focused.ErrorMessage = lipgloss.NewStyle().Foreground(red)
	t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(sky).SetString("> ")
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(sky).Bold(true)
	t.Focused.TextInput.Cursor = lipgloss.NewStyle().Foreground(sky)
	t.Focused.TextInput.Prompt = lipgloss.NewStyle().Foreground(sky)
	t.Focused.TextInput.Placeholder = lipgloss.NewStyle().Foreground(gray)

	t.Blurred = t.Focused
	t.Blurred.Base = lipgloss.NewStyle().
		PaddingLeft(1).
		BorderStyle(lipgloss.HiddenBorder()).
		BorderLeft(true)
	t.Blurred.Title = lipgloss.NewStyle().Foreground(gray)
	return t
}

// formWidth caps huh forms so they stay readable on wide terminals.
const formWidth = 60
