// Package tui is the full-screen terminal client. The root App follows the
// published session and mounts the auth, student or admin screens.
package tui

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/internal/release"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// Sessions is the part of the session manager the TUI drives.
type Sessions interface {
	Current() domain.Session
	Subscribe() (<-chan domain.Session, func())
	LoginWithPassword(ctx context.Context, email, password string) (domain.Session, error)
	SendPhoneCode(ctx context.Context, phone, recaptchaToken string) (identity.Verification, error)
	ConfirmPhoneCode(ctx context.Context, v identity.Verification, code string) (domain.Session, error)
	Logout(ctx context.Context) error
	Expire(ctx context.Context) error
}

// Options configures the App.
type Options struct {
	Version        string
	PortalURL      string
	RecaptchaToken string
	Releases       *release.Checker // nil disables the update check
	Logger         *slog.Logger
}

type graph int

const (
	graphLoading graph = iota
	graphAuth
	graphStudent
	graphAdmin
)

// graphFor picks the screen graph for a session.
func graphFor(s domain.Session) graph {
	switch {
	case s.Loading:
		return graphLoading
	case s.SignedIn() && s.Profile.Role == domain.RoleStudent:
		return graphStudent
	case s.SignedIn() && s.Profile.Role == domain.RoleAdmin:
		return graphAdmin
	default:
		return graphAuth
	}
}

type view int

const (
	viewAttendance view = iota
	viewBooking
	viewProfile
)

type sessionMsg struct{ session domain.Session }

type sessionClosedMsg struct{}

type releaseMsg struct{ latest string }

// App is the root Bubbletea model.
type App struct {
	sessions    Sessions
	client      *client.Client
	opts        Options
	log         *slog.Logger
	updates     <-chan domain.Session
	unsubscribe func()
	session     domain.Session
	graph       graph
	spinner     spinner.Model

	registering bool
	login       loginModel
	register    registerModel

	view       view
	attendance attendanceModel
	booking    bookingModel
	profile    profileModel
	admin      adminModel

	notice string
	latest string
	width  int
	height int
	frame  int
}

// NewApp creates the TUI. Call Close when the program exits.
func NewApp(s Sessions, c *client.Client, opts Options) App {
	updates, unsubscribe := s.Subscribe()
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return App{
		sessions:    s,
		client:      c,
		opts:        opts,
		log:         log,
		updates:     updates,
		unsubscribe: unsubscribe,
		graph:       graphLoading,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(accentStyle)),
	}
}

// Close releases the session subscription.
func (a App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, shimmerTickCmd(), waitSession(a.updates), a.checkRelease())
}

// waitSession delivers the next published session.
func waitSession(ch <-chan domain.Session) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionMsg{session: s}
	}
}

func (a App) checkRelease() tea.Cmd {
	r, version := a.opts.Releases, a.opts.Version
	if r == nil {
		return nil
	}
	return func() tea.Msg {
		latest, newer, err := r.Check(context.Background(), version)
		if err != nil || !newer {
			return nil
		}
		return releaseMsg{latest: latest}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.forwardSize()
		return a, nil

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case spinner.TickMsg:
		if a.graph != graphLoading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case sessionMsg:
		cmd := a.route(msg.session)
		return a, tea.Batch(cmd, waitSession(a.updates))

	case sessionClosedMsg:
		return a, tea.Quit

	case releaseMsg:
		a.latest = msg.latest
		return a, nil

	case sessionExpiredMsg:
		a.notice = "Session expired, sign in again"
		s, log := a.sessions, a.log
		return a, func() tea.Msg {
			if err := s.Expire(context.Background()); err != nil {
				log.Warn("expire session", "error", err)
			}
			return nil
		}

	case logoutMsg:
		s, log := a.sessions, a.log
		return a, func() tea.Msg {
			if err := s.Logout(context.Background()); err != nil {
				log.Warn("logout", "error", err)
			}
			return nil
		}

	case showRegisterMsg:
		a.registering = true
		a.register = newRegisterModel(a.client)
		a.forwardSize()
		return a, a.register.Init()

	case showLoginMsg:
		a.registering = false
		a.login = newLoginModel(a.sessions, a.opts)
		if msg.email != "" {
			a.login.vals.email = msg.email
		}
		a.login.notice = msg.notice
		a.forwardSize()
		return a, a.login.Init()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if !a.isEditing() {
			switch msg.String() {
			case "q":
				return a, tea.Quit
			case "1", "2", "3":
				if a.graph == graphStudent {
					return a.switchView(view(msg.String()[0] - '1'))
				}
			}
		}
	}

	return a.forward(msg)
}

// route mounts the graph for s. Screens are rebuilt only when the graph
// changes; token rotations inside a graph keep screen state.
func (a *App) route(s domain.Session) tea.Cmd {
	prev := a.session
	a.session = s
	g := graphFor(s)
	if g == a.graph && (g != graphStudent && g != graphAdmin || prev.UID() == s.UID()) {
		a.profile.session = s
		a.admin.session = s
		return nil
	}
	a.graph = g

	var cmd tea.Cmd
	switch g {
	case graphAuth:
		a.registering = false
		a.login = newLoginModel(a.sessions, a.opts)
		a.login.notice = a.notice
		a.notice = ""
		cmd = a.login.Init()
	case graphStudent:
		a.notice = ""
		a.view = viewAttendance
		a.attendance = newAttendanceModel(a.client)
		a.booking = newBookingModel(a.client, s)
		a.profile = newProfileModel(a.client, s)
		cmd = tea.Batch(a.attendance.Init(), a.profile.Init())
	case graphAdmin:
		a.notice = ""
		a.admin = newAdminModel(s, a.opts)
	}
	a.forwardSize()
	return cmd
}

func (a App) switchView(v view) (tea.Model, tea.Cmd) {
	if v == a.view {
		return a, nil
	}
	a.view = v
	var cmd tea.Cmd
	switch v {
	case viewAttendance:
		a.attendance, cmd = a.attendance.focus()
	case viewBooking:
		a.booking = newBookingModel(a.client, a.session)
		a.booking.width, a.booking.height = a.width, a.bodyHeight()
		cmd = a.booking.Init()
	case viewProfile:
		cmd = a.profile.Init()
	}
	return a, cmd
}

// forward routes msg to the active screen.
func (a App) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.graph {
	case graphAuth:
		if a.registering {
			a.register, cmd = a.register.Update(msg)
		} else {
			a.login, cmd = a.login.Update(msg)
		}
	case graphStudent:
		// Results for background loads reach their screen whichever tab is shown.
		switch msg.(type) {
		case todayLoadedMsg, markedMsg, monthLoadedMsg:
			a.attendance, cmd = a.attendance.Update(msg)
			return a, cmd
		case studentLoadedMsg, roomsLoadedMsg, seatsLoadedMsg, bookedMsg:
			a.booking, cmd = a.booking.Update(msg)
			return a, cmd
		case profileLoadedMsg:
			a.profile, cmd = a.profile.Update(msg)
			return a, cmd
		}
		switch a.view {
		case viewAttendance:
			a.attendance, cmd = a.attendance.Update(msg)
		case viewBooking:
			a.booking, cmd = a.booking.Update(msg)
		case viewProfile:
			a.profile, cmd = a.profile.Update(msg)
		}
	case graphAdmin:
		a.admin, cmd = a.admin.Update(msg)
	}
	return a, cmd
}

func (a App) isEditing() bool {
	switch a.graph {
	case graphAuth:
		return true
	case graphStudent:
		return a.view == viewAttendance && a.attendance.editing()
	}
	return false
}

// Chrome: header(2) + tabs(1) + help(1) = 4 lines
const chromeLines = 4

func (a App) bodyHeight() int {
	return max(a.height-chromeLines, 0)
}

func (a *App) forwardSize() {
	if a.width == 0 {
		return
	}
	body := tea.WindowSizeMsg{Width: a.width, Height: a.bodyHeight()}
	a.login.width = a.width
	a.register.width = a.width
	a.attendance, _ = a.attendance.Update(body)
	a.booking, _ = a.booking.Update(body)
	a.profile, _ = a.profile.Update(body)
}

func (a App) View() string {
	logo := renderShimmerLogo(a.frame)
	header := center(logo, a.width)

	sub := ""
	switch {
	case a.latest != "":
		sub = warnStyle.Render("v" + a.latest + " available")
	case a.session.SignedIn():
		who := a.session.Profile.Name
		if who == "" && a.session.User != nil {
			who = a.session.User.Email
		}
		if who == "" && a.session.User != nil {
			who = a.session.User.Phone
		}
		if a.session.Profile.Role != domain.RoleNone {
			who += " · " + string(a.session.Profile.Role)
		}
		sub = metaStyle.Render(who)
	}
	header += "\n" + center(sub, a.width)

	var tabs, body, help string
	switch a.graph {
	case graphLoading:
		body = "\n  " + a.spinner.View() + " " + dimStyle.Render("Restoring session...")
		help = helpEntry("ctrl+c", "quit")
	case graphAuth:
		if a.registering {
			body = a.register.View()
			help = a.register.helpKeys()
		} else {
			body = a.login.View()
			help = a.login.helpKeys()
		}
	case graphStudent:
		tabs = a.tabBar()
		switch a.view {
		case viewAttendance:
			body = a.attendance.View()
			help = helpEntry("1-3", "tabs") + "  " + a.attendance.helpKeys()
		case viewBooking:
			body = a.booking.View()
			help = helpEntry("1-3", "tabs") + "  " + a.booking.helpKeys()
		case viewProfile:
			body = a.profile.View()
			help = helpEntry("1-3", "tabs") + "  " + a.profile.helpKeys()
		}
		if !a.isEditing() {
			help += "  " + helpEntry("q", "quit")
		}
	case graphAdmin:
		body = a.admin.View()
		help = a.admin.helpKeys()
	}

	body = strings.TrimRight(truncateToHeight(body, a.bodyHeight()), "\n")
	return header + "\n" + tabs + "\n" + body + "\n " + help
}

func (a App) tabBar() string {
	type tabEntry struct {
		key  string
		name string
		v    view
	}
	tabs := []tabEntry{
		{"1", "Attendance", viewAttendance},
		{"2", "Booking", viewBooking},
		{"3", "Profile", viewProfile},
	}
	colWidth := max(a.width/len(tabs), 1)
	var bar strings.Builder
	for _, t := range tabs {
		var label string
		if t.v == a.view {
			label = accentStyle.Render(t.key) + " " + selectedStyle.Underline(true).Render(t.name)
		} else {
			label = metaStyle.Render(t.key) + " " + dimStyle.Render(t.name)
		}
		w := lipgloss.Width(label)
		left := max((colWidth-w)/2, 0)
		right := max(colWidth-w-left, 0)
		bar.WriteString(strings.Repeat(" ", left) + label + strings.Repeat(" ", right))
	}
	return bar.String()
}

func center(s string, width int) string {
	pad := max((width-lipgloss.Width(s))/2, 0)
	return strings.Repeat(" ", pad) + s
}
