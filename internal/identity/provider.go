// Package identity signs users in with the identity provider and keeps their
// ID token fresh.
package identity

import (
	"context"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// Provider is the identity provider as the session layer sees it.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Principal, error)
	// SendPhoneCode texts a one-time code to phone (E.164, leading "+").
	SendPhoneCode(ctx context.Context, phone, recaptchaToken string) (Verification, error)
	ConfirmPhoneCode(ctx context.Context, v Verification, code string) (*domain.Principal, error)
	SignOut(ctx context.Context) error
	CurrentUser() *domain.Principal
	// IDToken returns the signed-in user's ID token. With forceRefresh the
	// provider always mints a new one.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
	// OnIdentityChanged registers fn to be called with the current user once
	// after subscribing and again after every sign-in and sign-out. Calls are
	// made in order from a single goroutine.
	OnIdentityChanged(fn func(*domain.Principal)) (unsubscribe func())
}

// Verification is a pending phone sign-in.
type Verification struct {
	Phone       string
	SessionInfo string
}
