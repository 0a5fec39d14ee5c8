package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/naveenspark/mylibrary/internal/config"
	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/internal/logger"
	"github.com/naveenspark/mylibrary/internal/release"
	"github.com/naveenspark/mylibrary/internal/session"
	"github.com/naveenspark/mylibrary/internal/store"
	"github.com/naveenspark/mylibrary/internal/tui"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

// resolveTimeout bounds how long a command waits for the stored session.
const resolveTimeout = 20 * time.Second

type sessionStore interface {
	store.Store
	store.CredentialStore
}

// app is the wired client: store, identity provider, session manager and
// the authenticated API client.
type app struct {
	cfg    *config.Config
	store  sessionStore
	idp    *identity.Firebase
	mgr    *session.Manager
	client *client.Client
	logs   io.Closer
}

// loadConfig applies the global flags on top of config.Load.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = strings.TrimRight(apiURL, "/")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logDir := cfg.DataDir
	if ephemeral {
		logDir = ""
	}
	logs, err := logger.Init(logDir, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	a := &app{cfg: cfg, logs: logs}

	if !cfg.FirebaseConfigured() {
		a.Close()
		return nil, errors.New("FIREBASE_API_KEY is not set (environment or " + cfg.DataDir + "/.env)")
	}

	if ephemeral {
		a.store = store.NewMemory()
	} else {
		st, err := store.OpenSQLite(ctx, cfg.DataDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open session store: %w", err)
		}
		a.store = st
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	a.idp, err = identity.NewFirebase(identity.FirebaseConfig{
		APIKey:         cfg.FirebaseAPIKey,
		IdentityURL:    cfg.IdentityURL,
		SecureTokenURL: cfg.SecureTokenURL,
		HTTPClient:     httpClient,
		Credentials:    a.store,
		Logger:         slog.Default(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	backend := client.New(cfg.APIURL, nil, client.WithHTTPClient(httpClient), client.WithLogger(slog.Default()))
	a.mgr = session.New(a.idp, a.store, backend,
		session.WithRefreshInterval(cfg.TokenRefresh),
		session.WithLogger(slog.Default()),
	)
	// Hydrate first so the stored session is visible before the provider
	// reports the restored user.
	if err := a.mgr.Start(ctx); err != nil {
		slog.Warn("hydrate session", "error", err)
	}
	if err := a.idp.Restore(ctx); err != nil {
		slog.Warn("restore identity", "error", err)
	}

	a.client = client.New(cfg.APIURL, a.mgr, client.WithHTTPClient(httpClient), client.WithLogger(slog.Default()))
	return a, nil
}

func (a *app) Close() {
	if a.mgr != nil {
		a.mgr.Close()
	}
	if a.idp != nil {
		a.idp.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("close session store", "error", err)
		}
	}
	if a.logs != nil {
		a.logs.Close() //nolint:errcheck
	}
}

// withSession opens the app, waits for the stored session and runs fn.
// A fn result of exitExpired ends the local session.
func withSession(ctx context.Context, w io.Writer, fn func(ctx context.Context, a *app, s domain.Session) int) int {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitUsage
	}
	defer a.Close()

	wctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	s, err := a.mgr.WaitResolved(wctx)
	cancel()
	if err != nil {
		fmt.Fprintf(w, "Error: session not restored: %v\n", err)
		return exitError
	}

	code := fn(ctx, a, s)
	if code == exitExpired {
		if err := a.mgr.Expire(ctx); err != nil {
			slog.Warn("expire session", "error", err)
		}
	}
	return code
}

// requireSignedIn prints a hint and reports false when nobody is signed in.
func requireSignedIn(w io.Writer, s domain.Session) bool {
	if s.SignedIn() {
		return true
	}
	fmt.Fprintln(w, "Not signed in. Run `mylibrary login`.")
	return false
}

// reportError prints err for the user and returns the matching exit code.
func reportError(w io.Writer, err error) int {
	switch {
	case client.IsSessionExpired(err):
		fmt.Fprintln(w, "Session expired. Run `mylibrary login` to sign in again.")
		return exitExpired
	case errors.Is(err, client.ErrNotAuthenticated):
		fmt.Fprintln(w, "Not signed in. Run `mylibrary login`.")
		return exitUsage
	case errors.Is(err, client.ErrTransport):
		fmt.Fprintf(w, "Error: cannot reach the backend: %v\n", err)
		return exitError
	}
	fmt.Fprintf(w, "Error: %s\n", errorMessage(err))
	return exitError
}

func errorMessage(err error) string {
	var pe *identity.ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return client.Message(err)
}

// printJSON writes v as indented JSON and returns the exit code.
func printJSON(w io.Writer, v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error: encode JSON: %v\n", err)
		return exitError
	}
	fmt.Fprintln(w, string(data))
	return exitOK
}

// prompt asks for a value on the terminal. Tests replace it.
var prompt = func(title string, secret bool) (string, error) {
	var v string
	in := huh.NewInput().Title(title).Value(&v)
	if secret {
		in = in.EchoMode(huh.EchoModePassword)
	}
	if err := in.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func runTUI(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	app := tui.NewApp(a.mgr, a.client, tui.Options{
		Version: version,
		// The backend deployment also serves the web portal.
		PortalURL:      a.cfg.APIURL,
		RecaptchaToken: a.cfg.RecaptchaToken,
		Releases:       release.NewChecker(),
		Logger:         slog.Default(),
	})
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
