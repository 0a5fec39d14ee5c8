package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

type profileLoadedMsg struct {
	student *domain.Student
	err     error
}

type profileModel struct {
	client   *client.Client
	session  domain.Session
	student  domain.Student
	fallback bool
	loading  bool
	err      string
	status   string
	copy     func(string) error
	width    int
	height   int
}

func newProfileModel(c *client.Client, s domain.Session) profileModel {
	return profileModel{
		client:   c,
		session:  s,
		student:  domain.FallbackStudent(s.Profile, s.User),
		fallback: true,
		loading:  true,
		copy:     clipboard.WriteAll,
	}
}

func (m profileModel) Init() tea.Cmd {
	c, uid := m.client, m.session.UID()
	return func() tea.Msg {
		st, err := c.StudentByUID(context.Background(), uid)
		return profileLoadedMsg{student: st, err: err}
	}
}

func (m profileModel) Update(msg tea.Msg) (profileModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case profileLoadedMsg:
		m.loading = false
		if msg.err != nil {
			if cmd := expiredCmd(msg.err); cmd != nil {
				return m, cmd
			}
			m.err = errorText(msg.err)
		}
		if msg.student != nil {
			m.student = *msg.student
			m.fallback = false
		} else {
			m.student = domain.FallbackStudent(m.session.Profile, m.session.User)
			m.fallback = true
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			id := m.student.LibraryID
			if id == "" {
				m.err = "No library ID on this account"
				return m, nil
			}
			if err := m.copy(id); err != nil {
				m.err = "Could not copy: " + err.Error()
				return m, nil
			}
			m.err = ""
			m.status = "Library ID copied"
		case "L":
			return m, func() tea.Msg { return logoutMsg{} }
		case "r":
			m.loading = true
			m.status = ""
			return m, m.Init()
		}
	}
	return m, nil
}

func (m profileModel) View() string {
	var b strings.Builder
	st := m.student
	avatar := cardStyle.Render(titleStyle.Render(st.Initial()))
	name := st.Name
	if name == "" {
		name = "Student"
	}
	header := selectedStyle.Render(name)
	if st.Email != "" {
		header += "\n" + dimStyle.Render(st.Email)
	}
	b.WriteString("\n" + indent(avatar, 2) + "\n  " + strings.ReplaceAll(header, "\n", "\n  ") + "\n\n")

	if m.loading {
		b.WriteString("  " + dimStyle.Render("Loading student record...") + "\n")
	} else if m.fallback {
		b.WriteString("  " + metaStyle.Render("Showing details from your sign-in") + "\n")
	}
	for _, row := range st.InfoRows() {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%-14s", row[0])), normalStyle.Render(row[1]))
	}
	if m.status != "" {
		b.WriteString("\n  " + successStyle.Render(m.status) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n  " + errorStyle.Render(m.err) + "\n")
	}
	return b.String()
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}

func (m profileModel) helpKeys() string {
	return helpEntry("c", "copy library id") + "  " + helpEntry("r", "refresh") + "  " + helpEntry("L", "log out")
}
