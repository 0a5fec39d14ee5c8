package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/mylibrary/internal/browser"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// adminModel is the admin dashboard. Management lives in the web portal.
type adminModel struct {
	session   domain.Session
	portalURL string
	openURL   func(string) error
	status    string
	err       string
}

func newAdminModel(s domain.Session, opts Options) adminModel {
	return adminModel{session: s, portalURL: opts.PortalURL, openURL: browser.Open}
}

func (m adminModel) Update(msg tea.Msg) (adminModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "w":
		if m.portalURL == "" {
			m.err = "No portal URL configured"
			return m, nil
		}
		u := browser.PortalURL(m.portalURL, "admin")
		if err := m.openURL(u); err != nil {
			m.err = "Could not open browser: " + u
			return m, nil
		}
		m.err = ""
		m.status = "Opened " + u
	case "L":
		return m, func() tea.Msg { return logoutMsg{} }
	}
	return m, nil
}

func (m adminModel) View() string {
	var b strings.Builder
	p := m.session.Profile
	b.WriteString("\n  " + titleStyle.Render("Admin dashboard") + "\n\n")

	name := p.Name
	if name == "" {
		name = "Administrator"
	}
	email := p.Email
	if email == "" && m.session.User != nil {
		email = m.session.User.Email
	}
	rows := [][2]string{
		{"Name", name},
		{"Email", email},
		{"User ID", m.session.UID()},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%-12s", r[0])), normalStyle.Render(r[1]))
	}
	token := errorStyle.Render("missing")
	if p.AdminToken != "" {
		token = successStyle.Render("present")
	}
	fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%-12s", "Admin token")), token)

	if m.status != "" {
		b.WriteString("\n  " + successStyle.Render(m.status) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n  " + errorStyle.Render(m.err) + "\n")
	}
	return b.String()
}

func (m adminModel) helpKeys() string {
	return helpEntry("w", "open admin portal") + "  " + helpEntry("L", "log out") + "  " + helpEntry("q", "quit")
}
