// Package session owns the signed-in session: it reconciles the stored
// session, identity-provider callbacks and the periodic token refresh, and
// publishes one consistent value to the rest of the client.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/internal/store"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// DefaultRefreshInterval is how often the ID token is rotated.
const DefaultRefreshInterval = 30 * time.Minute

// callbackTimeout bounds the work done for one identity callback.
const callbackTimeout = 30 * time.Second

// Backend is the part of the API the login exchange needs.
type Backend interface {
	Login(ctx context.Context, idToken string, method domain.LoginMethod) (*domain.LoginResponse, error)
}

// TickerFunc starts a ticker and returns its channel and stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithTicker replaces the refresh ticker.
func WithTicker(fn TickerFunc) Option {
	return func(m *Manager) { m.newTicker = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager is the single owner of the Session. Everything else reads it
// through Current, Subscribe or Token.
type Manager struct {
	provider  identity.Provider
	store     store.Store
	backend   Backend
	log       *slog.Logger
	interval  time.Duration
	newTicker TickerFunc

	ctx    context.Context
	cancel context.CancelFunc

	// seq serializes every fetch-persist-publish sequence.
	seq sync.Mutex

	mu         sync.Mutex
	cur        domain.Session
	resolved   bool
	resolvedCh chan struct{}
	subs       map[uint64]chan domain.Session
	nextSub    uint64
	closed     bool

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
	unsubscribe   func()
}

// New creates a Manager. Call Start to begin tracking the session.
func New(provider identity.Provider, st store.Store, backend Backend, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		provider:   provider,
		store:      st,
		backend:    backend,
		log:        slog.Default(),
		interval:   DefaultRefreshInterval,
		newTicker:  realTicker,
		ctx:        ctx,
		cancel:     cancel,
		cur:        domain.Session{Loading: true},
		resolvedCh: make(chan struct{}),
		subs:       map[uint64]chan domain.Session{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the identity provider and hydrates from storage.
// A hydrate failure is returned but leaves the manager running.
func (m *Manager) Start(ctx context.Context) error {
	m.unsubscribe = m.provider.OnIdentityChanged(func(p *domain.Principal) {
		cctx, cancel := context.WithTimeout(m.ctx, callbackTimeout)
		defer cancel()
		_ = m.OnIdentityChanged(cctx, p)
	})
	return m.Hydrate(ctx)
}

// Close stops the refresh loop, detaches from the provider and closes every
// subscription channel.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.cancel()

	m.seq.Lock()
	m.stopRefresh()
	m.seq.Unlock()
	m.refreshWG.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// Hydrate publishes the stored session, if any. With nothing stored the
// session stays unresolved until the provider's first callback.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.seq.Lock()
	defer m.seq.Unlock()

	rec, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("hydrate: load session", "error", err)
		return fmt.Errorf("session.Hydrate: %w", err)
	}
	if rec.Empty() {
		m.log.Debug("hydrate: no stored session")
		return nil
	}
	m.publish(rec.Session(), true)
	m.restartRefresh(rec.User.UID)
	m.log.Info("hydrated session", "uid", rec.User.UID, "role", rec.Profile.Role)
	return nil
}

// OnIdentityChanged applies a provider callback. A user gets a freshly minted
// token persisted and published, keeping the profile only if it belongs to the
// same uid; nil clears everything. On failure the last-known session stays.
func (m *Manager) OnIdentityChanged(ctx context.Context, p *domain.Principal) error {
	m.seq.Lock()
	defer m.seq.Unlock()

	if p == nil {
		m.stopRefresh()
		if err := m.store.Clear(ctx); err != nil {
			m.log.Warn("identity cleared: clear store", "error", err)
			m.resolveOnly()
			return fmt.Errorf("session.OnIdentityChanged: %w", err)
		}
		m.publish(domain.Session{}, true)
		return nil
	}

	token, err := m.provider.IDToken(ctx, true)
	if err != nil {
		m.log.Warn("identity changed: refresh token", "uid", p.UID, "error", err)
		m.resolveOnly()
		return fmt.Errorf("session.OnIdentityChanged: %w", err)
	}

	profile := m.profileFor(ctx, p.UID)
	rec := store.Record{Token: token, User: p, Profile: profile}
	if err := m.store.Save(ctx, rec); err != nil {
		m.log.Warn("identity changed: save session", "uid", p.UID, "error", err)
		m.resolveOnly()
		return fmt.Errorf("session.OnIdentityChanged: %w", err)
	}
	m.publish(rec.Session(), true)
	m.restartRefresh(p.UID)
	return nil
}

// profileFor returns the stored profile when it belongs to uid.
func (m *Manager) profileFor(ctx context.Context, uid string) domain.Profile {
	rec, err := m.store.Load(ctx)
	if err == nil && rec.User != nil && rec.User.UID == uid {
		return rec.Profile
	}
	if err != nil {
		m.log.Debug("load stored profile", "error", err)
	}
	cur := m.Current()
	if cur.UID() == uid {
		return cur.Profile
	}
	return domain.Profile{}
}

// Logout signs out of the provider, clears storage and publishes an empty
// session. It is a no-op when nobody is signed in.
func (m *Manager) Logout(ctx context.Context) error {
	return m.end(ctx, "logout")
}

// Expire ends a session the backend no longer accepts.
func (m *Manager) Expire(ctx context.Context) error {
	return m.end(ctx, "session expired")
}

func (m *Manager) end(ctx context.Context, reason string) error {
	active := m.Current().SignedIn() || m.provider.CurrentUser() != nil
	if !active {
		return nil
	}

	// The provider may call back synchronously, so sign out before taking seq.
	var errs []error
	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Warn(reason+": provider sign-out", "error", err)
		errs = append(errs, err)
	}

	m.seq.Lock()
	defer m.seq.Unlock()
	m.stopRefresh()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn(reason+": clear store", "error", err)
		errs = append(errs, err)
	}
	m.publish(domain.Session{}, true)
	m.log.Info(reason)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session.Logout: %w", err)
	}
	return nil
}

// Token implements client.TokenSource: the provider's live token when it has a
// user, otherwise the persisted one.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if m.provider.CurrentUser() != nil {
		tok, err := m.provider.IDToken(ctx, false)
		if err == nil && tok != "" {
			return tok, nil
		}
		m.log.Debug("live token unavailable; using stored token", "error", err)
	}
	if tok := m.Current().Token; tok != "" {
		return tok, nil
	}
	return "", client.ErrNotAuthenticated
}

var _ client.TokenSource = (*Manager)(nil)

// Current returns a snapshot of the session.
func (m *Manager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Clone()
}

// Resolved reports whether the initial session resolution has completed.
func (m *Manager) Resolved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolved
}

// WaitResolved blocks until the initial resolution completes.
func (m *Manager) WaitResolved(ctx context.Context) (domain.Session, error) {
	select {
	case <-m.resolvedCh:
		return m.Current(), nil
	case <-ctx.Done():
		return m.Current(), ctx.Err()
	}
}

// Subscribe returns a channel that always holds the latest session. Slow
// readers see only the newest value. cancel releases the subscription.
func (m *Manager) Subscribe() (<-chan domain.Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan domain.Session, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	m.nextSub++
	id := m.nextSub
	m.subs[id] = ch
	ch <- m.cur.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// publish replaces the session. Callers hold seq.
func (m *Manager) publish(s domain.Session, resolve bool) {
	if !s.Valid() {
		m.log.Error("refusing to publish session with token/user mismatch")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if resolve {
		m.markResolvedLocked()
	}
	s.Loading = !m.resolved
	if sameSession(m.cur, s) {
		return
	}
	m.cur = s.Clone()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- m.cur.Clone()
	}
}

// resolveOnly ends the loading state without changing the session.
func (m *Manager) resolveOnly() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolved {
		return
	}
	m.markResolvedLocked()
	m.cur.Loading = false
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- m.cur.Clone()
	}
}

func (m *Manager) markResolvedLocked() {
	if !m.resolved {
		m.resolved = true
		close(m.resolvedCh)
	}
}

func sameSession(a, b domain.Session) bool {
	if a.Token != b.Token || a.Profile != b.Profile || a.Loading != b.Loading {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}
