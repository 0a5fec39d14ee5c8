package tui

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/pkg/client"
)

// sessionExpiredMsg asks the root to end the session after a 401.
type sessionExpiredMsg struct{}

// logoutMsg asks the root to log out.
type logoutMsg struct{}

// expiredCmd returns a command that reports a 401, or nil for other errors.
func expiredCmd(err error) tea.Cmd {
	if !client.IsSessionExpired(err) {
		return nil
	}
	return func() tea.Msg { return sessionExpiredMsg{} }
}

// errorText is the message shown to the user for err.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var pe *identity.ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	if errors.Is(err, client.ErrTransport) {
		return "Network error, check your connection"
	}
	if client.IsSessionExpired(err) {
		return "Session expired, sign in again"
	}
	return client.Message(err)
}

// formatClock renders an attendance timestamp in local time.
func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04")
}

// formatAgo renders a relative timestamp.
func formatAgo(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncStr truncates a string to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}

// truncateToHeight limits output to maxLines newline-delimited lines.
// Returns the original string if it fits or maxLines is <= 0.
func truncateToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
			if n >= maxLines {
				return s[:i+1]
			}
		}
	}
	return s
}
