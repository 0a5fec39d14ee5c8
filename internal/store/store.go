// Package store persists the session across restarts.
//
// The whole session (token, identity, backend profile and the role marker the
// navigation root reads) is one record written in a single statement, so a
// crash can never leave a token without its user or a stale role behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Record is the persisted session.
type Record struct {
	Token     string
	User      *domain.Principal
	Profile   domain.Profile
	UpdatedAt time.Time
}

// Empty reports whether nothing is signed in.
func (r Record) Empty() bool {
	return r.Token == "" || r.User == nil
}

// Session converts the record to a resolved session.
func (r Record) Session() domain.Session {
	if r.Empty() {
		return domain.Session{}
	}
	return domain.Session{Token: r.Token, User: r.User, Profile: r.Profile}
}

// Store is the session store. Implementations are safe for concurrent use.
type Store interface {
	// Load returns the stored record, or a zero Record when nothing is stored.
	Load(ctx context.Context) (Record, error)
	// Save replaces the whole record atomically.
	Save(ctx context.Context, r Record) error
	// SaveToken rotates the token of the stored identity. It is a no-op when
	// no identity is stored.
	SaveToken(ctx context.Context, token string) error
	// Clear removes token, user, profile and role.
	Clear(ctx context.Context) error
	Close() error
}

// CredentialStore holds the identity provider's long-lived credential.
// It is owned by the provider adapter; Store.Clear does not touch it.
type CredentialStore interface {
	LoadRefreshToken(ctx context.Context) (string, error)
	SaveRefreshToken(ctx context.Context, token string) error
}
