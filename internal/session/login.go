package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/internal/store"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// LoginWithPassword signs in with email and password and runs the backend
// login exchange.
func (m *Manager) LoginWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	p, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return domain.Session{}, err
	}
	return m.exchange(ctx, p, domain.LoginEmail)
}

// SendPhoneCode starts a phone sign-in.
func (m *Manager) SendPhoneCode(ctx context.Context, phone, recaptchaToken string) (identity.Verification, error) {
	return m.provider.SendPhoneCode(ctx, phone, recaptchaToken)
}

// ConfirmPhoneCode completes a phone sign-in and runs the backend login exchange.
func (m *Manager) ConfirmPhoneCode(ctx context.Context, v identity.Verification, code string) (domain.Session, error) {
	p, err := m.provider.ConfirmPhoneCode(ctx, v, code)
	if err != nil {
		return domain.Session{}, err
	}
	return m.exchange(ctx, p, domain.LoginPhone)
}

// exchange trades a fresh ID token for the backend's authorization payload.
// On success token, user and profile are written in one Save; on failure
// nothing is written and the backend's message is returned as a
// *client.RejectedError. Provider calls happen before seq is taken because
// the provider may call back into the Manager.
func (m *Manager) exchange(ctx context.Context, p *domain.Principal, method domain.LoginMethod) (domain.Session, error) {
	token, err := m.provider.IDToken(ctx, true)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session.Login: %w", err)
	}

	resp, err := m.backend.Login(ctx, token, method)
	if err != nil {
		m.log.Info("login rejected", "uid", p.UID, "method", method, "error", err)
		return domain.Session{}, loginError(err)
	}
	if resp.User.UID != p.UID {
		return domain.Session{}, &client.RejectedError{Op: "login", Message: "login response is for a different user"}
	}

	m.seq.Lock()
	defer m.seq.Unlock()
	rec := store.Record{Token: token, User: p, Profile: resp.Profile()}
	if err := m.store.Save(ctx, rec); err != nil {
		return domain.Session{}, fmt.Errorf("session.Login: persist: %w", err)
	}
	s := rec.Session()
	m.publish(s, true)
	m.restartRefresh(p.UID)
	m.log.Info("logged in", "uid", p.UID, "role", resp.Role, "method", method)
	return m.Current(), nil
}

// loginError maps a failed exchange to the message the user should see.
func loginError(err error) error {
	if rej, ok := client.IsRejected(err); ok {
		return rej
	}
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		return &client.RejectedError{Op: "login", Message: client.Message(err)}
	}
	return fmt.Errorf("session.Login: %w", err)
}
