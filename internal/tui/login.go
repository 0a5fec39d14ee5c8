package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/naveenspark/mylibrary/internal/browser"
	"github.com/naveenspark/mylibrary/internal/identity"
)

type loginStage int

const (
	loginCredentials loginStage = iota
	loginCode
	loginSubmitting
)

// loginValues lives on the heap so the huh fields keep pointing at it while
// loginModel is copied by value.
type loginValues struct {
	method   string
	email    string
	password string
	phone    string
	code     string
}

type loginDoneMsg struct{ err error }

type codeSentMsg struct {
	verification identity.Verification
	err          error
}

type showRegisterMsg struct{}

// showLoginMsg returns from registration, optionally prefilling the email.
type showLoginMsg struct {
	email  string
	notice string
}

type loginModel struct {
	sessions     Sessions
	vals         *loginValues
	form         *huh.Form
	stage        loginStage
	verification identity.Verification
	recaptcha    string
	portalURL    string
	openURL      func(string) error
	err          string
	notice       string
	width        int
}

func newLoginModel(s Sessions, opts Options) loginModel {
	m := loginModel{
		sessions:  s,
		vals:      &loginValues{method: "email"},
		recaptcha: opts.RecaptchaToken,
		portalURL: opts.PortalURL,
		openURL:   browser.Open,
	}
	m.form = m.credentialsForm()
	return m
}

func (m loginModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m loginModel) credentialsForm() *huh.Form {
	v := m.vals
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Sign in with").
				Options(huh.NewOption("Email and password", "email"), huh.NewOption("Phone number", "phone")).
				Value(&v.method),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@college.edu").
				Value(&v.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&v.password).
				Validate(validatePassword),
		).WithHideFunc(func() bool { return v.method != "email" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Phone").
				Description("Include the country code").
				Placeholder("+919876543210").
				Value(&v.phone).
				Validate(validatePhone),
		).WithHideFunc(func() bool { return v.method != "phone" }),
	).WithTheme(formTheme()).WithShowHelp(false).WithWidth(formWidth)
}

func (m loginModel) codeForm() *huh.Form {
	m.vals.code = ""
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Verification code").
				Description("Sent by SMS to "+m.vals.phone).
				CharLimit(6).
				Value(&m.vals.code).
				Validate(validateCode),
		),
	).WithTheme(formTheme()).WithShowHelp(false).WithWidth(formWidth)
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case loginDoneMsg:
		if msg.err == nil {
			// The root re-routes on the published session.
			m.err = ""
			return m, nil
		}
		m.err = errorText(msg.err)
		m.stage = loginCredentials
		m.vals.password = ""
		m.form = m.credentialsForm()
		return m, m.form.Init()

	case codeSentMsg:
		if msg.err != nil {
			m.err = errorText(msg.err)
			m.stage = loginCredentials
			m.form = m.credentialsForm()
			return m, m.form.Init()
		}
		m.err = ""
		m.notice = ""
		m.verification = msg.verification
		m.stage = loginCode
		m.form = m.codeForm()
		return m, m.form.Init()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+o":
			if m.portalURL != "" {
				if err := m.openURL(m.portalURL); err != nil {
					m.err = "Could not open browser: " + m.portalURL
				}
			}
			return m, nil
		case "ctrl+n":
			if m.stage == loginSubmitting {
				return m, nil
			}
			return m, func() tea.Msg { return showRegisterMsg{} }
		case "esc":
			if m.stage == loginCode {
				m.stage = loginCredentials
				m.form = m.credentialsForm()
				return m, m.form.Init()
			}
		}
		if m.stage == loginSubmitting {
			return m, nil
		}
	}

	if m.stage == loginSubmitting {
		return m, nil
	}
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		return m.submit()
	case huh.StateAborted:
		m.form = m.credentialsForm()
		m.stage = loginCredentials
		return m, m.form.Init()
	}
	return m, cmd
}

// submit runs the step the completed form belongs to.
func (m loginModel) submit() (loginModel, tea.Cmd) {
	s := m.sessions
	v := *m.vals
	m.err = ""

	switch {
	case m.stage == loginCode:
		m.stage = loginSubmitting
		ver := m.verification
		return m, func() tea.Msg {
			_, err := s.ConfirmPhoneCode(context.Background(), ver, strings.TrimSpace(v.code))
			return loginDoneMsg{err: err}
		}

	case v.method == "phone":
		if m.recaptcha == "" {
			m.err = "Phone sign-in needs a reCAPTCHA token (FIREBASE_RECAPTCHA_TOKEN)"
			m.form = m.credentialsForm()
			return m, m.form.Init()
		}
		m.stage = loginSubmitting
		token := m.recaptcha
		return m, func() tea.Msg {
			ver, err := s.SendPhoneCode(context.Background(), strings.TrimSpace(v.phone), token)
			return codeSentMsg{verification: ver, err: err}
		}

	default:
		m.stage = loginSubmitting
		return m, func() tea.Msg {
			_, err := s.LoginWithPassword(context.Background(), strings.TrimSpace(v.email), v.password)
			return loginDoneMsg{err: err}
		}
	}
}

func (m loginModel) editing() bool { return true }

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("Sign in") + "\n\n")
	if m.notice != "" {
		b.WriteString("  " + successStyle.Render(m.notice) + "\n\n")
	}
	if m.stage == loginSubmitting {
		if m.vals.method == "phone" && m.verification.SessionInfo == "" {
			b.WriteString("  " + dimStyle.Render("Sending code to "+m.vals.phone+"...") + "\n")
		} else {
			b.WriteString("  " + dimStyle.Render("Signing in...") + "\n")
		}
	} else {
		b.WriteString(m.form.View())
		b.WriteString("\n")
	}
	if m.err != "" {
		b.WriteString("\n  " + errorStyle.Render(m.err) + "\n")
	}
	return b.String()
}

func (m loginModel) helpKeys() string {
	keys := helpEntry("enter", "next") + "  " + helpEntry("ctrl+n", "register")
	if m.stage == loginCode {
		keys += "  " + helpEntry("esc", "back")
	}
	if m.portalURL != "" {
		keys += "  " + helpEntry("ctrl+o", "web portal")
	}
	return keys + "  " + helpEntry("ctrl+c", "quit")
}

var (
	errEmail    = errors.New("enter a valid email")
	errPassword = errors.New("password must be at least 6 characters")
	errCode     = errors.New("enter the 6-digit code")
)

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	at := strings.Index(s, "@")
	if at < 1 || at == len(s)-1 || strings.ContainsAny(s, " \t") {
		return errEmail
	}
	return nil
}

func validatePassword(s string) error {
	if len(s) < 6 {
		return errPassword
	}
	return nil
}

func validatePhone(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "+") || len(s) < 8 {
		return identity.ErrInvalidPhone
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return identity.ErrInvalidPhone
		}
	}
	return nil
}

func validateCode(s string) error {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return errCode
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return errCode
		}
	}
	return nil
}
