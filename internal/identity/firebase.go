package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/naveenspark/mylibrary/internal/store"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// refreshMargin is how close to expiry a cached ID token is still handed out.
const refreshMargin = 5 * time.Minute

// refreshTimeout bounds a shared token refresh.
const refreshTimeout = 30 * time.Second

// FirebaseConfig configures the Firebase Authentication REST adapter.
type FirebaseConfig struct {
	APIKey         string
	IdentityURL    string // e.g. https://identitytoolkit.googleapis.com
	SecureTokenURL string // e.g. https://securetoken.googleapis.com
	HTTPClient     *http.Client
	// Credentials persists the refresh token across runs. Optional.
	Credentials store.CredentialStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// Firebase is a Provider backed by the Identity Toolkit and Secure Token APIs.
type Firebase struct {
	apiKey         string
	identityURL    string
	secureTokenURL string
	httpClient     *http.Client
	creds          store.CredentialStore
	log            *slog.Logger
	now            func() time.Time

	mu           sync.Mutex
	user         *domain.Principal
	idToken      string
	expiry       time.Time
	refreshToken string

	refresh  singleflight.Group
	dispatch *dispatcher
}

var _ Provider = (*Firebase)(nil)

// NewFirebase creates the adapter. Listeners receive nothing until Restore runs.
func NewFirebase(cfg FirebaseConfig) (*Firebase, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("identity.NewFirebase: FIREBASE_API_KEY is not set")
	}
	f := &Firebase{
		apiKey:         cfg.APIKey,
		identityURL:    strings.TrimRight(cfg.IdentityURL, "/"),
		secureTokenURL: strings.TrimRight(cfg.SecureTokenURL, "/"),
		httpClient:     cfg.HTTPClient,
		creds:          cfg.Credentials,
		log:            cfg.Logger,
		now:            cfg.Now,
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	if f.now == nil {
		f.now = time.Now
	}
	f.dispatch = newDispatcher(f.CurrentUser)
	return f, nil
}

// Restore signs the previous user back in from the stored credential and
// starts delivering identity callbacks. A credential the provider rejects is
// discarded and the user starts signed out. When the provider cannot be
// reached the stored user is kept and the token is refreshed on next use.
func (f *Firebase) Restore(ctx context.Context) error {
	defer f.dispatch.start()
	if f.creds == nil {
		return nil
	}
	raw, err := f.creds.LoadRefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("identity.Restore: %w", err)
	}
	cred := decodeCredential(raw)
	if cred.RefreshToken == "" {
		return nil
	}
	f.mu.Lock()
	f.refreshToken = cred.RefreshToken
	f.user = clonePrincipal(cred.User)
	f.mu.Unlock()

	if _, err := f.exchangeRefreshToken(ctx, cred.RefreshToken); err != nil {
		if signsOut(err) {
			f.log.Info("stored credential rejected; starting signed out", "error", err)
			f.clearLocal(ctx)
			return nil
		}
		return fmt.Errorf("identity.Restore: %w", err)
	}
	return nil
}

// Close stops identity callbacks. It must not be called from a listener.
func (f *Firebase) Close() {
	f.dispatch.close()
}

func (f *Firebase) CurrentUser() *domain.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clonePrincipal(f.user)
}

func (f *Firebase) OnIdentityChanged(fn func(*domain.Principal)) func() {
	return f.dispatch.subscribe(fn)
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phoneNumber"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (f *Firebase) SignInWithPassword(ctx context.Context, email, password string) (*domain.Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &ProviderError{Op: "signInWithPassword", Code: "MISSING_CREDENTIALS", Message: "Enter email and password"}
	}
	var resp authResponse
	err := f.call(ctx, "signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return f.signedIn(ctx, resp)
}

func (f *Firebase) SendPhoneCode(ctx context.Context, phone, recaptchaToken string) (Verification, error) {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") || len(phone) < 4 {
		return Verification{}, ErrInvalidPhone
	}
	body := map[string]any{"phoneNumber": phone}
	if recaptchaToken != "" {
		body["recaptchaToken"] = recaptchaToken
	}
	var resp struct {
		SessionInfo string `json:"sessionInfo"`
	}
	if err := f.call(ctx, "sendVerificationCode", body, &resp); err != nil {
		return Verification{}, err
	}
	return Verification{Phone: phone, SessionInfo: resp.SessionInfo}, nil
}

func (f *Firebase) ConfirmPhoneCode(ctx context.Context, v Verification, code string) (*domain.Principal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newProviderError("signInWithPhoneNumber", "MISSING_CODE")
	}
	if v.SessionInfo == "" {
		return nil, newProviderError("signInWithPhoneNumber", "INVALID_SESSION_INFO")
	}
	var resp authResponse
	err := f.call(ctx, "signInWithPhoneNumber", map[string]any{
		"sessionInfo": v.SessionInfo,
		"code":        code,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.PhoneNumber == "" {
		resp.PhoneNumber = v.Phone
	}
	return f.signedIn(ctx, resp)
}

func (f *Firebase) signedIn(ctx context.Context, resp authResponse) (*domain.Principal, error) {
	if resp.LocalID == "" || resp.IDToken == "" {
		return nil, &ProviderError{Op: "signIn", Code: "MALFORMED_RESPONSE", Message: "identity provider returned no user"}
	}
	user := &domain.Principal{
		UID:         resp.LocalID,
		Email:       resp.Email,
		Phone:       resp.PhoneNumber,
		DisplayName: resp.DisplayName,
	}

	f.mu.Lock()
	f.user = user
	f.idToken = resp.IDToken
	f.expiry = f.expiryOf(resp.IDToken, resp.ExpiresIn)
	f.refreshToken = resp.RefreshToken
	f.mu.Unlock()

	f.saveCredential(ctx)
	f.log.Info("signed in", "uid", user.UID)
	f.dispatch.publish(user)
	return clonePrincipal(user), nil
}

func (f *Firebase) SignOut(ctx context.Context) error {
	f.mu.Lock()
	had := f.user != nil
	f.mu.Unlock()
	f.clearLocal(ctx)
	if had {
		f.log.Info("signed out")
	}
	return nil
}

// clearLocal drops the user and credential and notifies listeners if a
// user was signed in.
func (f *Firebase) clearLocal(ctx context.Context) {
	f.mu.Lock()
	had := f.user != nil
	f.user = nil
	f.idToken = ""
	f.expiry = time.Time{}
	f.refreshToken = ""
	f.mu.Unlock()

	f.saveCredential(ctx)
	if had {
		f.dispatch.publish(nil)
	}
}

func (f *Firebase) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	user, token, expiry, rt := f.user, f.idToken, f.expiry, f.refreshToken
	f.mu.Unlock()

	if user == nil {
		return "", ErrNoUser
	}
	if !forceRefresh && token != "" && f.now().Add(refreshMargin).Before(expiry) {
		return token, nil
	}

	// The shared flight is detached from the callers' contexts; each caller
	// waits on its own.
	ch := f.refresh.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return f.exchangeRefreshToken(rctx, rt)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err := res.Err; err != nil {
		f.mu.Lock()
		current := f.refreshToken == rt
		f.mu.Unlock()
		if current && signsOut(err) {
			f.log.Info("refresh token rejected; signing out", "error", err)
			f.clearLocal(ctx)
		}
		return "", err
	}
	return res.Val.(string), nil
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// exchangeRefreshToken mints a new ID token. When no user is held yet (cold
// start) the user is rebuilt from the token's claims.
func (f *Firebase) exchangeRefreshToken(ctx context.Context, rt string) (string, error) {
	if rt == "" {
		return "", ErrNoUser
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rt)

	endpoint := f.secureTokenURL + "/v1/token?key=" + url.QueryEscape(f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := f.do(req, "token", &resp); err != nil {
		return "", err
	}

	claims, claimsErr := ParseClaims(resp.IDToken)
	f.mu.Lock()
	if f.refreshToken != rt {
		// Superseded by a sign-in or sign-out while the request was in flight.
		tok := f.idToken
		f.mu.Unlock()
		if tok == "" {
			return "", ErrNoUser
		}
		return tok, nil
	}
	f.idToken = resp.IDToken
	f.expiry = f.expiryOf(resp.IDToken, resp.ExpiresIn)
	if resp.RefreshToken != "" {
		f.refreshToken = resp.RefreshToken
	}
	restored := false
	if f.user == nil {
		switch {
		case claimsErr == nil:
			f.user = claims.Principal()
		case resp.UserID != "":
			f.user = &domain.Principal{UID: resp.UserID}
		}
		restored = f.user != nil
	}
	newRT := f.refreshToken
	f.mu.Unlock()

	if newRT != rt || restored {
		f.saveCredential(ctx)
	}
	if restored {
		f.log.Info("restored signed-in user")
	}
	return resp.IDToken, nil
}

func (f *Firebase) expiryOf(idToken, expiresIn string) time.Time {
	if c, err := ParseClaims(idToken); err == nil && !c.Expiry().IsZero() {
		return c.Expiry()
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil {
		return f.now().Add(time.Duration(secs) * time.Second)
	}
	return f.now().Add(time.Hour)
}

// credential is what survives a restart: the refresh token and the user it
// belongs to.
type credential struct {
	RefreshToken string            `json:"refresh_token"`
	User         *domain.Principal `json:"user,omitempty"`
}

func decodeCredential(raw string) credential {
	var c credential
	if raw == "" {
		return c
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// Bare refresh token.
		return credential{RefreshToken: raw}
	}
	return c
}

func (f *Firebase) saveCredential(ctx context.Context) {
	if f.creds == nil {
		return
	}
	f.mu.Lock()
	c := credential{RefreshToken: f.refreshToken, User: clonePrincipal(f.user)}
	f.mu.Unlock()

	raw := ""
	if c.RefreshToken != "" {
		data, err := json.Marshal(c)
		if err != nil {
			f.log.Warn("encode credential", "error", err)
			return
		}
		raw = string(data)
	}
	if err := f.creds.SaveRefreshToken(ctx, raw); err != nil {
		f.log.Warn("persist credential", "error", err)
	}
}

// call POSTs JSON to an Identity Toolkit accounts method.
func (f *Firebase) call(ctx context.Context, method string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	endpoint := f.identityURL + "/v1/accounts:" + method + "?key=" + url.QueryEscape(f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, method, out)
}

func (f *Firebase) do(req *http.Request, op string, out any) error {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity %s: %w", op, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity %s: read body: %w", op, err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return newProviderError(op, apiErr.Error.Message)
		}
		return &ProviderError{Op: op, Code: strconv.Itoa(resp.StatusCode), Message: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("identity %s: decode response: %w", op, err)
	}
	return nil
}
