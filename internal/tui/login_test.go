package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/mylibrary/internal/apitest"
	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

func TestLoginSubmitPassword(t *testing.T) {
	fs := newFakeSessions()
	m := newLoginModel(fs, Options{})
	m.vals.email = "  alice@lib.test "
	m.vals.password = "secret1"

	m, cmd := m.submit()
	if m.stage != loginSubmitting {
		t.Fatalf("stage = %d, want submitting", m.stage)
	}
	msg := cmd()
	done, ok := msg.(loginDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("got %#v, want successful loginDoneMsg", msg)
	}
	if len(fs.logins) != 1 || fs.logins[0] != "alice@lib.test:secret1" {
		t.Errorf("logins = %v", fs.logins)
	}
	if !strings.Contains(m.View(), "Signing in") {
		t.Error("expected progress text while submitting")
	}
}

func TestLoginFailureShowsProviderMessage(t *testing.T) {
	fs := newFakeSessions()
	m := newLoginModel(fs, Options{})
	m.vals.email = "alice@lib.test"
	m.vals.password = "wrong-pass"
	m, _ = m.submit()

	m, cmd := m.Update(loginDoneMsg{err: &identity.ProviderError{Code: "INVALID_PASSWORD", Message: "Incorrect password"}})
	if m.err != "Incorrect password" {
		t.Errorf("err = %q", m.err)
	}
	if m.stage != loginCredentials {
		t.Errorf("stage = %d, want credentials", m.stage)
	}
	if m.vals.password != "" {
		t.Error("password kept after a failed sign-in")
	}
	if m.vals.email != "alice@lib.test" {
		t.Error("email cleared after a failed sign-in")
	}
	if cmd == nil {
		t.Error("expected the rebuilt form to be initialised")
	}
	if !strings.Contains(m.View(), "Incorrect password") {
		t.Error("error not rendered")
	}
}

func TestLoginBackendRejectionText(t *testing.T) {
	m := newLoginModel(newFakeSessions(), Options{})
	m, _ = m.Update(loginDoneMsg{err: &client.RejectedError{Op: "login", Message: "Invalid token"}})
	if m.err != "Invalid token" {
		t.Errorf("err = %q, want backend message", m.err)
	}
}

func TestLoginPhoneFlow(t *testing.T) {
	fs := newFakeSessions()
	m := newLoginModel(fs, Options{RecaptchaToken: "rc-token"})
	m.vals.method = "phone"
	m.vals.phone = "+919876543210"

	m, cmd := m.submit()
	msg := cmd()
	sent, ok := msg.(codeSentMsg)
	if !ok || sent.err != nil {
		t.Fatalf("got %#v, want codeSentMsg", msg)
	}
	if len(fs.phones) != 1 || fs.phones[0] != "+919876543210|rc-token" {
		t.Errorf("phones = %v", fs.phones)
	}

	m, _ = m.Update(sent)
	if m.stage != loginCode {
		t.Fatalf("stage = %d, want code", m.stage)
	}
	if !strings.Contains(m.View(), "Verification code") {
		t.Error("expected code form")
	}

	m.vals.code = "123456"
	m, cmd = m.submit()
	if _, ok := cmd().(loginDoneMsg); !ok {
		t.Fatal("expected loginDoneMsg after confirming the code")
	}
	if len(fs.codes) != 1 || fs.codes[0] != "sess-1:123456" {
		t.Errorf("codes = %v", fs.codes)
	}
}

func TestLoginPhoneWrongCodeReturnsToCredentials(t *testing.T) {
	fs := newFakeSessions()
	m := newLoginModel(fs, Options{RecaptchaToken: "rc"})
	m.vals.method = "phone"
	m.vals.phone = "+919876543210"
	m, _ = m.Update(codeSentMsg{verification: identity.Verification{Phone: "+919876543210", SessionInfo: "sess-1"}})

	m, _ = m.Update(loginDoneMsg{err: &identity.ProviderError{Code: "INVALID_CODE", Message: "Invalid verification code"}})
	if m.err != "Invalid verification code" || m.stage != loginCredentials {
		t.Errorf("err = %q stage = %d", m.err, m.stage)
	}
}

func TestLoginPhoneNeedsRecaptcha(t *testing.T) {
	fs := newFakeSessions()
	m := newLoginModel(fs, Options{})
	m.vals.method = "phone"
	m.vals.phone = "+919876543210"

	m, _ = m.submit()
	if m.stage != loginCredentials {
		t.Errorf("stage = %d, want credentials", m.stage)
	}
	if !strings.Contains(m.err, "reCAPTCHA") {
		t.Errorf("err = %q", m.err)
	}
	if len(fs.phones) != 0 {
		t.Error("code sent without a reCAPTCHA token")
	}
}

func TestLoginEscFromCodeStage(t *testing.T) {
	m := newLoginModel(newFakeSessions(), Options{RecaptchaToken: "rc"})
	m, _ = m.Update(codeSentMsg{verification: identity.Verification{SessionInfo: "s"}})
	m, _ = m.Update(key("esc"))
	if m.stage != loginCredentials {
		t.Errorf("stage = %d, want credentials", m.stage)
	}
}

func TestLoginShortcuts(t *testing.T) {
	var opened []string
	m := newLoginModel(newFakeSessions(), Options{PortalURL: "https://portal.example"})
	m.openURL = func(u string) error {
		opened = append(opened, u)
		return nil
	}

	_, cmd := m.Update(key("ctrl+o"))
	if cmd != nil {
		t.Error("ctrl+o should not emit a command")
	}
	if len(opened) != 1 || opened[0] != "https://portal.example" {
		t.Errorf("opened = %v", opened)
	}

	m.openURL = func(string) error { return errors.New("no browser") }
	m, _ = m.Update(key("ctrl+o"))
	if !strings.Contains(m.err, "https://portal.example") {
		t.Errorf("err = %q, want the URL to open by hand", m.err)
	}

	_, cmd = m.Update(key("ctrl+n"))
	if cmd == nil {
		t.Fatal("ctrl+n returned no command")
	}
	if _, ok := cmd().(showRegisterMsg); !ok {
		t.Error("ctrl+n did not request the register screen")
	}
}

func TestLoginIgnoresKeysWhileSubmitting(t *testing.T) {
	m := newLoginModel(newFakeSessions(), Options{})
	m.stage = loginSubmitting
	_, cmd := m.Update(key("ctrl+n"))
	if cmd != nil {
		t.Error("register opened while a sign-in was in flight")
	}
	_, cmd = m.Update(key("x"))
	if cmd != nil {
		t.Error("keys reached the form while submitting")
	}
}

func TestLoginSizeBeforeForm(t *testing.T) {
	var m loginModel
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	if m.width != 80 {
		t.Errorf("width = %d", m.width)
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) error
		in   string
		ok   bool
	}{
		{"email ok", validateEmail, "a@b.co", true},
		{"email no at", validateEmail, "ab.co", false},
		{"email at start", validateEmail, "@b.co", false},
		{"email at end", validateEmail, "a@", false},
		{"email space", validateEmail, "a b@c.d", false},
		{"password short", validatePassword, "12345", false},
		{"password ok", validatePassword, "123456", true},
		{"phone ok", validatePhone, "+919876543210", true},
		{"phone no plus", validatePhone, "919876543210", false},
		{"phone letters", validatePhone, "+91987abc3210", false},
		{"phone short", validatePhone, "+12345", false},
		{"code ok", validateCode, "012345", true},
		{"code short", validateCode, "12345", false},
		{"code letters", validateCode, "12a456", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.in)
			if (err == nil) != tt.ok {
				t.Errorf("validate(%q) = %v, want ok=%v", tt.in, err, tt.ok)
			}
		})
	}
	if !errors.Is(validatePhone("123"), identity.ErrInvalidPhone) {
		t.Error("validatePhone should return ErrInvalidPhone")
	}
}

func TestRegisterRequest(t *testing.T) {
	m := newRegisterModel(nil)
	*m.vals = registerValues{name: " Alice ", email: " a@lib.test ", password: "secret1", confirm: "secret1"}
	req := m.request()
	if req.Name != "Alice" || req.Email != "a@lib.test" || req.Provider != "email" {
		t.Errorf("request = %+v", req)
	}
	if req.PhoneNumber != nil {
		t.Error("empty phone should be sent as null")
	}

	m.vals.phone = " +919876543210 "
	req = m.request()
	if req.PhoneNumber == nil || *req.PhoneNumber != "+919876543210" {
		t.Errorf("phone = %v", req.PhoneNumber)
	}
}

func TestRegisterSubmit(t *testing.T) {
	b := apitest.New()
	defer b.Close()
	c := client.New(b.URL(), nil)

	m := newRegisterModel(c)
	*m.vals = registerValues{name: "Alice", email: "a@lib.test", password: "secret1", confirm: "secret1"}
	m, cmd := m.submit()
	if !m.submitting {
		t.Fatal("expected submitting state")
	}
	msg := cmd()
	reg, ok := msg.(registeredMsg)
	if !ok || reg.err != nil {
		t.Fatalf("got %#v", msg)
	}
	b.Do(func(b *apitest.Backend) {
		if len(b.Registered) != 1 || b.Registered[0].Email != "a@lib.test" {
			t.Errorf("registered = %+v", b.Registered)
		}
	})

	_, cmd = m.Update(reg)
	back, ok := cmd().(showLoginMsg)
	if !ok || back.email != "a@lib.test" || back.notice == "" {
		t.Errorf("got %#v, want showLoginMsg with email and notice", back)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	b := apitest.New()
	defer b.Close()
	b.Do(func(b *apitest.Backend) { b.Registered = []domain.RegisterRequest{{Email: "a@lib.test"}} })
	c := client.New(b.URL(), nil)

	m := newRegisterModel(c)
	*m.vals = registerValues{name: "Alice", email: "a@lib.test", password: "secret1", confirm: "secret1"}
	m, cmd := m.submit()
	m, _ = m.Update(cmd())
	if m.err != "Email already registered" {
		t.Errorf("err = %q", m.err)
	}
	if m.submitting || m.vals.password != "" || m.vals.confirm != "" {
		t.Error("failed registration should clear passwords and accept input again")
	}
}

func TestRegisterEscReturnsToLogin(t *testing.T) {
	m := newRegisterModel(nil)
	_, cmd := m.Update(key("esc"))
	if _, ok := cmd().(showLoginMsg); !ok {
		t.Error("esc did not return to sign in")
	}
}
