package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/internal/store"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// fakeProvider calls listeners synchronously from whichever goroutine
// changes the identity, which is stricter than the real provider.
type fakeProvider struct {
	mu        sync.Mutex
	user      *domain.Principal
	token     string
	forced    int
	fixed     string // when set, forced refreshes return it
	idErr     error
	signOuts  int
	listeners map[int]func(*domain.Principal)
	next      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: map[int]func(*domain.Principal){}}
}

func (f *fakeProvider) OnIdentityChanged(fn func(*domain.Principal)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// emit sets the user and notifies listeners.
func (f *fakeProvider) emit(p *domain.Principal) {
	f.mu.Lock()
	f.user = p
	if p == nil {
		f.token = ""
	}
	fns := make([]func(*domain.Principal), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		if p == nil {
			fn(nil)
			continue
		}
		c := *p
		fn(&c)
	}
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*domain.Principal, error) {
	if password != "secret1" {
		return nil, &identity.ProviderError{Op: "signInWithPassword", Code: "INVALID_PASSWORD", Message: "Incorrect password"}
	}
	p := &domain.Principal{UID: "u1", Email: email}
	f.emit(p)
	c := *p
	return &c, nil
}

func (f *fakeProvider) SendPhoneCode(_ context.Context, phone, _ string) (identity.Verification, error) {
	return identity.Verification{Phone: phone, SessionInfo: "sess"}, nil
}

func (f *fakeProvider) ConfirmPhoneCode(_ context.Context, v identity.Verification, code string) (*domain.Principal, error) {
	if code != "123456" {
		return nil, &identity.ProviderError{Op: "signInWithPhoneNumber", Code: "INVALID_CODE", Message: "Invalid verification code"}
	}
	p := &domain.Principal{UID: "u2", Phone: v.Phone}
	f.emit(p)
	c := *p
	return &c, nil
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.mu.Lock()
	had := f.user != nil
	if had {
		f.signOuts++
	}
	f.mu.Unlock()
	if had {
		f.emit(nil)
	}
	return nil
}

func (f *fakeProvider) CurrentUser() *domain.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil
	}
	c := *f.user
	return &c
}

func (f *fakeProvider) IDToken(_ context.Context, force bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idErr != nil {
		return "", f.idErr
	}
	if f.user == nil {
		return "", identity.ErrNoUser
	}
	if force || f.token == "" {
		f.forced++
		f.token = fmt.Sprintf("tok-%s-%d", f.user.UID, f.forced)
		if f.fixed != "" {
			f.token = f.fixed
		}
	}
	return f.token, nil
}

func (f *fakeProvider) forcedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forced
}

var _ identity.Provider = (*fakeProvider)(nil)

// fakeTicker hands out channels the test drives by hand.
type fakeTicker struct {
	mu        sync.Mutex
	intervals []time.Duration
	chans     []chan time.Time
	stopped   int
}

func (f *fakeTicker) new(d time.Duration) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time)
	f.intervals = append(f.intervals, d)
	f.chans = append(f.chans, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.stopped++
			f.mu.Unlock()
		})
	}
}

func (f *fakeTicker) counts() (created, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans), f.stopped
}

func (f *fakeTicker) ch(i int) chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chans[i]
}

// tick delivers one tick, failing if no loop is listening.
func (f *fakeTicker) tick(t *testing.T, i int) {
	t.Helper()
	select {
	case f.ch(i) <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker %d: no refresh loop listening", i)
	}
}

// gatedStore blocks Load until released, to stage races.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Load(ctx context.Context) (store.Record, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Store.Load(ctx)
}

// failingStore fails loads, saves and clears.
type failingStore struct{ store.Store }

var errDisk = fmt.Errorf("disk full")

func (*failingStore) Load(context.Context) (store.Record, error) { return store.Record{}, errDisk }
func (*failingStore) Save(context.Context, store.Record) error   { return errDisk }
func (*failingStore) Clear(context.Context) error                { return errDisk }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var (
	alice = &domain.Principal{UID: "u1", Email: "alice@lib.test"}
	bob   = &domain.Principal{UID: "u9", Email: "bob@lib.test"}
)

func storedRecord(p *domain.Principal, role domain.Role) store.Record {
	return store.Record{
		Token:   "stored-" + p.UID,
		User:    p,
		Profile: domain.Profile{Role: role, StudentID: "s-" + p.UID},
	}
}

// setUser changes the provider's user without notifying listeners.
func (f *fakeProvider) setUser(p *domain.Principal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = p
}
