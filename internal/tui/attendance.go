package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

const (
	methodWiFi = "WiFi"
	methodQR   = "QR"
)

type todayLoadedMsg struct {
	attendance *domain.Attendance
	err        error
}

type markedMsg struct {
	method     string
	auto       bool
	attendance *domain.Attendance
	err        error
}

type monthLoadedMsg struct {
	year  int
	month time.Month
	days  []string
	err   error
}

type attendanceModel struct {
	client    *client.Client
	now       func() time.Time
	paste     func() (string, error)
	today     *domain.Attendance
	loaded    bool
	autoTried bool
	marking   bool
	status    string
	err       string
	qr        textinput.Model
	scanning  bool
	year      int
	month     time.Month
	days      []string
	monthErr  string
	width     int
	height    int
}

func newAttendanceModel(c *client.Client) attendanceModel {
	ti := textinput.New()
	ti.Placeholder = "scanned QR value or URL"
	ti.CharLimit = 512
	ti.Width = 48

	now := time.Now()
	return attendanceModel{
		client: c,
		now:    time.Now,
		paste:  clipboard.ReadAll,
		qr:     ti,
		year:   now.Year(),
		month:  now.Month(),
	}
}

func (m attendanceModel) Init() tea.Cmd {
	return tea.Batch(m.loadToday(), m.loadMonth(m.year, m.month))
}

// focus reloads today's status and re-arms the automatic WiFi attempt.
func (m attendanceModel) focus() (attendanceModel, tea.Cmd) {
	m.autoTried = false
	return m, m.Init()
}

func (m attendanceModel) loadToday() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		att, err := c.AttendanceToday(context.Background())
		return todayLoadedMsg{attendance: att, err: err}
	}
}

func (m attendanceModel) loadMonth(year int, month time.Month) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		days, err := c.AttendanceMonth(context.Background(), year, month)
		return monthLoadedMsg{year: year, month: month, days: days, err: err}
	}
}

func (m attendanceModel) markWiFi(auto bool) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		att, err := c.MarkWiFi(context.Background())
		return markedMsg{method: methodWiFi, auto: auto, attendance: att, err: err}
	}
}

func (m attendanceModel) markQR(scanned string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		att, err := c.MarkQR(context.Background(), scanned)
		return markedMsg{method: methodQR, attendance: att, err: err}
	}
}

func (m attendanceModel) Update(msg tea.Msg) (attendanceModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case todayLoadedMsg:
		if msg.err != nil {
			m.err = errorText(msg.err)
			return m, expiredCmd(msg.err)
		}
		m.loaded = true
		m.today = msg.attendance
		if m.today == nil && !m.autoTried && !m.marking {
			m.autoTried = true
			m.marking = true
			m.status = "Checking library WiFi..."
			return m, m.markWiFi(true)
		}
		return m, nil

	case markedMsg:
		m.marking = false
		if msg.err != nil {
			if cmd := expiredCmd(msg.err); cmd != nil {
				m.err = errorText(msg.err)
				return m, cmd
			}
			if msg.auto {
				// Off-campus is the common case; keep it quiet.
				m.status = "Not marked: " + errorText(msg.err)
				return m, nil
			}
			m.status = ""
			m.err = errorText(msg.err)
			return m, nil
		}
		m.err = ""
		if msg.method == methodQR {
			m.scanning = false
			m.qr.Reset()
			m.qr.Blur()
		}
		m.status = "Marked present via " + msg.method
		cmds := []tea.Cmd{m.loadMonth(m.year, m.month)}
		if msg.attendance != nil {
			m.today = msg.attendance
			m.loaded = true
		} else {
			cmds = append(cmds, m.loadToday())
		}
		return m, tea.Batch(cmds...)

	case monthLoadedMsg:
		if msg.year != m.year || msg.month != m.month {
			return m, nil
		}
		if msg.err != nil {
			m.monthErr = errorText(msg.err)
			return m, expiredCmd(msg.err)
		}
		m.monthErr = ""
		m.days = msg.days
		return m, nil

	case tea.KeyMsg:
		if m.scanning {
			return m.updateScanning(msg)
		}
		switch msg.String() {
		case "w":
			if m.marking {
				return m, nil
			}
			m.marking = true
			m.err = ""
			m.status = "Checking library WiFi..."
			return m, m.markWiFi(false)
		case "s":
			m.scanning = true
			m.err = ""
			m.qr.Reset()
			return m, m.qr.Focus()
		case "v":
			raw, err := m.paste()
			raw = strings.TrimSpace(raw)
			if err != nil || raw == "" {
				m.err = "Clipboard is empty"
				return m, nil
			}
			if m.marking {
				return m, nil
			}
			m.marking = true
			m.err = ""
			m.status = "Submitting QR code..."
			return m, m.markQR(raw)
		case "[":
			m.year, m.month = shiftMonth(m.year, m.month, -1)
			m.days = nil
			return m, m.loadMonth(m.year, m.month)
		case "]":
			ny, nm := shiftMonth(m.year, m.month, 1)
			now := m.now()
			if ny > now.Year() || (ny == now.Year() && nm > now.Month()) {
				return m, nil
			}
			m.year, m.month = ny, nm
			m.days = nil
			return m, m.loadMonth(m.year, m.month)
		case "r":
			m.err = ""
			return m, m.Init()
		}
	}

	if m.scanning {
		var cmd tea.Cmd
		m.qr, cmd = m.qr.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m attendanceModel) updateScanning(msg tea.KeyMsg) (attendanceModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.scanning = false
		m.qr.Reset()
		m.qr.Blur()
		return m, nil
	case "enter":
		raw := strings.TrimSpace(m.qr.Value())
		if raw == "" {
			m.err = "Enter the QR code value"
			return m, nil
		}
		if m.marking {
			return m, nil
		}
		m.marking = true
		m.err = ""
		m.status = "Submitting QR code..."
		return m, m.markQR(raw)
	}
	var cmd tea.Cmd
	m.qr, cmd = m.qr.Update(msg)
	return m, cmd
}

func shiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

func (m attendanceModel) editing() bool { return m.scanning }

func (m attendanceModel) View() string {
	var b strings.Builder
	now := m.now()

	b.WriteString("\n  " + sectionHeaderStyle.Render("TODAY") + "\n  ")
	switch {
	case !m.loaded && m.err == "":
		b.WriteString(dimStyle.Render("Loading..."))
	case m.today != nil:
		line := successStyle.Render("✓ Present")
		if m.today.Method != "" {
			line += dimStyle.Render(" · " + m.today.Method)
		}
		if !m.today.Timestamp.IsZero() {
			line += dimStyle.Render(" · " + formatClock(m.today.Timestamp) + " (" + formatAgo(m.today.Timestamp, now) + ")")
		}
		b.WriteString(line)
	default:
		b.WriteString(warnStyle.Render("Not marked yet"))
	}
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString("  " + dimStyle.Render(m.status) + "\n")
	}
	if m.err != "" {
		b.WriteString("  " + errorStyle.Render(m.err) + "\n")
	}
	if m.scanning {
		b.WriteString("\n  " + accentStyle.Render("QR ") + m.qr.View() + "\n")
	}

	b.WriteString("\n" + m.calendarView(now))
	return b.String()
}

// calendarView renders the month grid (Monday first) and its stats.
func (m attendanceModel) calendarView(now time.Time) string {
	var b strings.Builder
	title := fmt.Sprintf("%s %d", m.month, m.year)
	b.WriteString("  " + titleStyle.Render(title) + "\n")
	if m.monthErr != "" {
		b.WriteString("  " + errorStyle.Render(m.monthErr) + "\n")
		return b.String()
	}

	b.WriteString("  " + metaStyle.Render("Mo Tu We Th Fr Sa Su") + "\n  ")
	present := domain.PresentSet(m.year, m.month, m.days)
	offset := (int(time.Date(m.year, m.month, 1, 0, 0, 0, 0, time.UTC).Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("   ", offset))
	isCurrent := now.Year() == m.year && now.Month() == m.month
	dim := domain.DaysIn(m.year, m.month)
	for d := 1; d <= dim; d++ {
		cell := fmt.Sprintf("%2d", d)
		switch {
		case present[d]:
			cell = presentDayStyle.Render(cell)
		case isCurrent && d == now.Day():
			cell = todayStyle.Render(cell)
		case isCurrent && d > now.Day():
			cell = metaStyle.Render(cell)
		default:
			cell = normalStyle.Render(cell)
		}
		b.WriteString(cell)
		if (offset+d)%7 == 0 {
			b.WriteString("\n  ")
		} else {
			b.WriteString(" ")
		}
	}
	b.WriteString("\n\n")

	st := domain.MonthStats(m.year, m.month, m.days, now)
	b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %s\n",
		dimStyle.Render("Attendance"), selectedStyle.Render(fmt.Sprintf("%d%%", st.Percentage)),
		dimStyle.Render("Streak"), selectedStyle.Render(fmt.Sprintf("%d", st.Streak)),
		dimStyle.Render("Longest"), selectedStyle.Render(fmt.Sprintf("%d", st.LongestStreak)),
	))
	return b.String()
}

func (m attendanceModel) helpKeys() string {
	if m.scanning {
		return helpEntry("enter", "submit") + "  " + helpEntry("esc", "cancel")
	}
	return helpEntry("w", "wifi") + "  " + helpEntry("s", "scan QR") + "  " + helpEntry("v", "paste QR") + "  " +
		helpEntry("[/]", "month") + "  " + helpEntry("r", "refresh")
}
