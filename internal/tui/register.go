package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

type registerValues struct {
	name     string
	email    string
	password string
	confirm  string
	phone    string
}

type registeredMsg struct {
	email string
	err   error
}

type registerModel struct {
	client     *client.Client
	vals       *registerValues
	form       *huh.Form
	submitting bool
	err        string
	width      int
}

func newRegisterModel(c *client.Client) registerModel {
	m := registerModel{client: c, vals: &registerValues{}}
	m.form = m.newForm()
	return m
}

func (m registerModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m registerModel) newForm() *huh.Form {
	v := m.vals
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Full name").
				Value(&v.name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("enter your name")
					}
					return nil
				}),
			huh.NewInput().
				Title("Email").
				Value(&v.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&v.password).
				Validate(validatePassword),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&v.confirm).
				Validate(func(s string) error {
					if s != v.password {
						return errors.New("passwords do not match")
					}
					return nil
				}),
			huh.NewInput().
				Title("Phone (optional)").
				Placeholder("+919876543210").
				Value(&v.phone).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					return validatePhone(s)
				}),
		).Title("Create an account"),
	).WithTheme(formTheme()).WithShowHelp(false).WithWidth(formWidth)
}

func (m registerModel) Update(msg tea.Msg) (registerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case registeredMsg:
		m.submitting = false
		if msg.err != nil {
			m.err = errorText(msg.err)
			m.vals.password, m.vals.confirm = "", ""
			m.form = m.newForm()
			return m, m.form.Init()
		}
		email := msg.email
		return m, func() tea.Msg {
			return showLoginMsg{email: email, notice: "Account created. Sign in to continue."}
		}

	case tea.KeyMsg:
		if msg.String() == "esc" && !m.submitting {
			return m, func() tea.Msg { return showLoginMsg{} }
		}
	}

	if m.submitting {
		return m, nil
	}
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		return m.submit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return showLoginMsg{} }
	}
	return m, cmd
}

func (m registerModel) submit() (registerModel, tea.Cmd) {
	c := m.client
	req := m.request()
	m.submitting = true
	m.err = ""
	return m, func() tea.Msg {
		_, err := c.Register(context.Background(), req)
		return registeredMsg{email: req.Email, err: err}
	}
}

// request builds the registration body; an empty phone is sent as null.
func (m registerModel) request() domain.RegisterRequest {
	v := m.vals
	req := domain.RegisterRequest{
		Provider: "email",
		Email:    strings.TrimSpace(v.email),
		Password: v.password,
		Name:     strings.TrimSpace(v.name),
	}
	if phone := strings.TrimSpace(v.phone); phone != "" {
		req.PhoneNumber = &phone
	}
	return req
}

func (m registerModel) editing() bool { return true }

func (m registerModel) View() string {
	var b strings.Builder
	b.WriteString("\n")
	if m.submitting {
		b.WriteString("  " + dimStyle.Render("Creating account...") + "\n")
	} else {
		b.WriteString(m.form.View())
		b.WriteString("\n")
	}
	if m.err != "" {
		b.WriteString("\n  " + errorStyle.Render(m.err) + "\n")
	}
	return b.String()
}

func (m registerModel) helpKeys() string {
	return helpEntry("enter", "next") + "  " + helpEntry("esc", "back to sign in") + "  " + helpEntry("ctrl+c", "quit")
}
