package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/naveenspark/mylibrary/internal/store"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

var testNow = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

func mintToken(t *testing.T, uid, email string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: uid,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// fakeFirebase serves the Identity Toolkit and Secure Token endpoints.
type fakeFirebase struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	refreshCalls int
	tokenTTL     time.Duration
	dead         map[string]bool
	gate         chan struct{} // when set, refresh waits on it
}

func newFakeFirebase(t *testing.T) *fakeFirebase {
	f := &fakeFirebase{t: t, tokenTTL: time.Hour, dead: map[string]bool{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFirebase) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeFirebase) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != "api-key" {
		writeError(w, "API_KEY_INVALID")
		return
	}
	f.mu.Lock()
	ttl := f.tokenTTL
	f.mu.Unlock()
	exp := testNow.Add(ttl)

	switch r.URL.Path {
	case "/v1/accounts:signInWithPassword":
		var body struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		if body.Password != "secret1" {
			writeError(w, "INVALID_PASSWORD")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"localId":      "u1",
			"email":        body.Email,
			"idToken":      mintToken(f.t, "u1", body.Email, exp),
			"refreshToken": "rt-u1",
			"expiresIn":    "3600",
		})
	case "/v1/accounts:sendVerificationCode":
		json.NewEncoder(w).Encode(map[string]string{"sessionInfo": "sess-1"}) //nolint:errcheck
	case "/v1/accounts:signInWithPhoneNumber":
		var body struct{ SessionInfo, Code string }
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		if body.SessionInfo != "sess-1" || body.Code != "123456" {
			writeError(w, "INVALID_CODE")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"localId":      "u2",
			"phoneNumber":  "+15550100",
			"idToken":      mintToken(f.t, "u2", "", exp),
			"refreshToken": "rt-u2",
		})
	case "/v1/token":
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
			writeError(w, "INVALID_GRANT_TYPE")
			return
		}
		rt := r.PostForm.Get("refresh_token")
		f.mu.Lock()
		f.refreshCalls++
		dead := f.dead[rt]
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if dead {
			writeError(w, "INVALID_REFRESH_TOKEN")
			return
		}
		uid := strings.TrimPrefix(rt, "rt-")
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"id_token":      mintToken(f.t, uid, uid+"@lib.test", exp),
			"refresh_token": rt,
			"expires_in":    "3600",
			"user_id":       uid,
		})
	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"error": map[string]any{"code": 400, "message": msg},
	})
}

func newTestFirebase(t *testing.T, fake *fakeFirebase, creds store.CredentialStore) *Firebase {
	t.Helper()
	f, err := NewFirebase(FirebaseConfig{
		APIKey:         "api-key",
		IdentityURL:    fake.srv.URL,
		SecureTokenURL: fake.srv.URL,
		Credentials:    creds,
		Now:            func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.Close)
	return f
}

// recorder collects identity callbacks.
type recorder chan *domain.Principal

func (r recorder) fn(p *domain.Principal) { r <- p }

func (r recorder) next(t *testing.T) *domain.Principal {
	t.Helper()
	select {
	case p := <-r:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for identity callback")
		return nil
	}
}

func uidOf(p *domain.Principal) string {
	if p == nil {
		return "<nil>"
	}
	return p.UID
}

func TestNewFirebase_RequiresAPIKey(t *testing.T) {
	if _, err := NewFirebase(FirebaseConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestSignInWithPassword(t *testing.T) {
	fake := newFakeFirebase(t)
	f := newTestFirebase(t, fake, nil)
	ctx := context.Background()

	rec := make(recorder, 10)
	unsub := f.OnIdentityChanged(rec.fn)
	defer unsub()
	if err := f.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if p := rec.next(t); p != nil {
		t.Fatalf("initial callback = %s, want nil", uidOf(p))
	}

	p, err := f.SignInWithPassword(ctx, "a@lib.test", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword() error: %v", err)
	}
	if p.UID != "u1" || p.Email != "a@lib.test" {
		t.Errorf("principal = %+v", p)
	}
	if got := rec.next(t); uidOf(got) != "u1" {
		t.Errorf("callback = %s, want u1", uidOf(got))
	}

	tok, err := f.IDToken(ctx, false)
	if err != nil || tok == "" {
		t.Fatalf("IDToken(false) = %q, %v", tok, err)
	}
	if n := fake.calls(); n != 0 {
		t.Errorf("cached IDToken made %d refresh calls, want 0", n)
	}
	if _, err := f.IDToken(ctx, true); err != nil {
		t.Fatalf("IDToken(true) error: %v", err)
	}
	if n := fake.calls(); n != 1 {
		t.Errorf("forced IDToken made %d refresh calls, want 1", n)
	}

	if err := f.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if got := rec.next(t); got != nil {
		t.Errorf("callback after sign-out = %s, want nil", uidOf(got))
	}
	if _, err := f.IDToken(ctx, false); !errors.Is(err, ErrNoUser) {
		t.Errorf("IDToken() after sign-out = %v, want ErrNoUser", err)
	}
	// Signing out twice does not notify again.
	if err := f.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-rec:
		t.Errorf("unexpected callback %s after second sign-out", uidOf(p))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSignInWithPassword_WrongPassword(t *testing.T) {
	fake := newFakeFirebase(t)
	f := newTestFirebase(t, fake, nil)

	_, err := f.SignInWithPassword(context.Background(), "a@lib.test", "nope")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pe.Code != "INVALID_PASSWORD" || pe.Message != "Incorrect password" {
		t.Errorf("ProviderError = %+v", pe)
	}
	if f.CurrentUser() != nil {
		t.Error("user set after failed sign-in")
	}
}

func TestIDToken_RefreshesNearExpiry(t *testing.T) {
	fake := newFakeFirebase(t)
	fake.tokenTTL = 2 * time.Minute
	f := newTestFirebase(t, fake, nil)
	ctx := context.Background()

	if _, err := f.SignInWithPassword(ctx, "a@lib.test", "secret1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.IDToken(ctx, false); err != nil {
		t.Fatal(err)
	}
	if n := fake.calls(); n != 1 {
		t.Errorf("refresh calls = %d, want 1 for a token inside the expiry margin", n)
	}
}

func TestIDToken_ConcurrentRefreshesCollapse(t *testing.T) {
	fake := newFakeFirebase(t)
	f := newTestFirebase(t, fake, nil)
	ctx := context.Background()
	if _, err := f.SignInWithPassword(ctx, "a@lib.test", "secret1"); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	fake.mu.Lock()
	fake.gate = gate
	fake.mu.Unlock()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.IDToken(ctx, true); err != nil {
				t.Errorf("IDToken(true) error: %v", err)
			}
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for fake.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := fake.calls(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestIDToken_CancelledCallerLeavesSharedRefresh(t *testing.T) {
	fake := newFakeFirebase(t)
	f := newTestFirebase(t, fake, nil)
	if _, err := f.SignInWithPassword(context.Background(), "a@lib.test", "secret1"); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	fake.mu.Lock()
	fake.gate = gate
	fake.mu.Unlock()
	released := false
	defer func() {
		if !released {
			close(gate)
		}
	}()

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.IDToken(first, true)
		firstErr <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for fake.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fake.calls() != 1 {
		t.Fatal("refresh never reached the server")
	}

	type result struct {
		token string
		err   error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := f.IDToken(context.Background(), true)
		second <- result{tok, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting on the refresh")
	}

	close(gate)
	released = true
	select {
	case r := <-second:
		if r.err != nil || r.token == "" {
			t.Errorf("other caller = %q, %v; want a fresh token", r.token, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("other caller never got the refreshed token")
	}
	if n := fake.calls(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestRestore_FromCredentialStore(t *testing.T) {
	fake := newFakeFirebase(t)
	creds := store.NewMemory()
	ctx := context.Background()

	first := newTestFirebase(t, fake, creds)
	if _, err := first.SignInWithPassword(ctx, "a@lib.test", "secret1"); err != nil {
		t.Fatal(err)
	}

	second := newTestFirebase(t, fake, creds)
	rec := make(recorder, 10)
	second.OnIdentityChanged(rec.fn)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := rec.next(t); uidOf(got) != "u1" {
		t.Errorf("initial callback = %s, want u1", uidOf(got))
	}
	if _, err := second.IDToken(ctx, false); err != nil {
		t.Errorf("IDToken() after restore: %v", err)
	}
}

func TestRestore_DeadCredentialSignsOut(t *testing.T) {
	fake := newFakeFirebase(t)
	fake.dead["rt-u1"] = true
	creds := store.NewMemory()
	ctx := context.Background()
	if err := creds.SaveRefreshToken(ctx, `{"refresh_token":"rt-u1","user":{"uid":"u1"}}`); err != nil {
		t.Fatal(err)
	}

	f := newTestFirebase(t, fake, creds)
	rec := make(recorder, 10)
	f.OnIdentityChanged(rec.fn)
	if err := f.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := rec.next(t); got != nil {
		t.Errorf("initial callback = %s, want nil", uidOf(got))
	}
	if rt, _ := creds.LoadRefreshToken(ctx); rt != "" {
		t.Errorf("credential = %q, want cleared", rt)
	}
}

func TestRestore_OfflineKeepsUser(t *testing.T) {
	fake := newFakeFirebase(t)
	creds := store.NewMemory()
	ctx := context.Background()
	if err := creds.SaveRefreshToken(ctx, `{"refresh_token":"rt-u1","user":{"uid":"u1"}}`); err != nil {
		t.Fatal(err)
	}
	fake.srv.Close()

	f := newTestFirebase(t, fake, creds)
	if err := f.Restore(ctx); err == nil {
		t.Error("Restore() error = nil, want transport error")
	}
	if got := f.CurrentUser(); uidOf(got) != "u1" {
		t.Errorf("CurrentUser() = %s, want u1 kept offline", uidOf(got))
	}
}

func TestPhoneSignIn(t *testing.T) {
	fake := newFakeFirebase(t)
	f := newTestFirebase(t, fake, nil)
	ctx := context.Background()

	if _, err := f.SendPhoneCode(ctx, "5550100", ""); !errors.Is(err, ErrInvalidPhone) {
		t.Errorf("SendPhoneCode(no +) = %v, want ErrInvalidPhone", err)
	}

	v, err := f.SendPhoneCode(ctx, "+15550100", "recaptcha")
	if err != nil {
		t.Fatalf("SendPhoneCode() error: %v", err)
	}
	if _, err := f.ConfirmPhoneCode(ctx, v, "000000"); !IsCode(err, "INVALID_CODE") {
		t.Errorf("ConfirmPhoneCode(wrong) = %v, want INVALID_CODE", err)
	}
	p, err := f.ConfirmPhoneCode(ctx, v, "123456")
	if err != nil {
		t.Fatalf("ConfirmPhoneCode() error: %v", err)
	}
	if p.UID != "u2" || p.Phone != "+15550100" {
		t.Errorf("principal = %+v", p)
	}
}

func TestParseClaims(t *testing.T) {
	exp := testNow.Add(time.Hour).Truncate(time.Second)
	c, err := ParseClaims(mintToken(t, "u9", "x@lib.test", exp))
	if err != nil {
		t.Fatalf("ParseClaims() error: %v", err)
	}
	if c.UID() != "u9" || c.Email != "x@lib.test" {
		t.Errorf("claims = %+v", c)
	}
	if !c.Expiry().Equal(exp) {
		t.Errorf("Expiry() = %v, want %v", c.Expiry(), exp)
	}
	if _, err := ParseClaims("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestNewProviderError(t *testing.T) {
	pe := newProviderError("signIn", "TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled")
	if pe.Code != "TOO_MANY_ATTEMPTS_TRY_LATER" || pe.Message != "Too many attempts, try again later" {
		t.Errorf("known code = %+v", pe)
	}
	pe = newProviderError("signIn", "WEIRD_THING : Something odd")
	if pe.Message != "Something odd" {
		t.Errorf("unknown code with detail = %+v", pe)
	}
	pe = newProviderError("signIn", "WEIRD_THING")
	if pe.Message != "weird thing" {
		t.Errorf("bare unknown code = %+v", pe)
	}
}
