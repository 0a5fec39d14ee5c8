package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	token         BLOB,
	user          TEXT,
	profile       TEXT,
	role          TEXT NOT NULL DEFAULT '',
	refresh_token BLOB,
	updated_at    INTEGER NOT NULL DEFAULT 0
);`

// SQLite is a Store and CredentialStore backed by a single-row table.
type SQLite struct {
	db   *sql.DB
	seal *sealer
	now  func() time.Time

	mu     sync.RWMutex
	closed bool
}

// OpenSQLite opens (creating if needed) session.db and its key file in dir.
func OpenSQLite(ctx context.Context, dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store.OpenSQLite: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, "session.db")+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store.OpenSQLite: %w", err)
	}
	// One writer is all SQLite allows; one connection keeps it simple.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store.OpenSQLite: schema: %w", err)
	}
	installID, err := installID(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store.OpenSQLite: %w", err)
	}
	secret, err := loadOrCreateSecret(filepath.Join(dir, "session.key"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store.OpenSQLite: %w", err)
	}
	s, err := newSealer(secret, installID)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store.OpenSQLite: %w", err)
	}
	return &SQLite{db: db, seal: s, now: time.Now}, nil
}

func installID(ctx context.Context, db *sql.DB) (string, error) {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('install_id', ?) ON CONFLICT(key) DO NOTHING`,
		uuid.NewString()); err != nil {
		return "", fmt.Errorf("install id: %w", err)
	}
	var id string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'install_id'`).Scan(&id); err != nil {
		return "", fmt.Errorf("install id: %w", err)
	}
	return id, nil
}

func (s *SQLite) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Load returns the stored record. A row whose token or user is missing, or
// whose token no longer opens, is reported as empty.
func (s *SQLite) Load(ctx context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return Record{}, err
	}

	var (
		sealed           []byte
		userJSON, profJS sql.NullString
		role             string
		updated          int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user, profile, role, updated_at FROM session WHERE id = 1`).
		Scan(&sealed, &userJSON, &profJS, &role, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("store.Load: %w", err)
	}

	token, err := s.seal.open(sealed, "token")
	if err != nil {
		slog.Warn("stored token could not be opened; treating session as signed out", "error", err)
		return Record{}, nil
	}
	if token == "" || !userJSON.Valid || userJSON.String == "" {
		return Record{}, nil
	}

	var rec Record
	rec.Token = token
	rec.User = &domain.Principal{}
	if err := json.Unmarshal([]byte(userJSON.String), rec.User); err != nil {
		return Record{}, fmt.Errorf("store.Load: user: %w", err)
	}
	if profJS.Valid && profJS.String != "" {
		if err := json.Unmarshal([]byte(profJS.String), &rec.Profile); err != nil {
			return Record{}, fmt.Errorf("store.Load: profile: %w", err)
		}
	}
	rec.Profile.Role = domain.Role(role)
	if updated > 0 {
		rec.UpdatedAt = time.Unix(0, updated)
	}
	return rec, nil
}

// Save writes token, user, profile and role in one statement.
func (s *SQLite) Save(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if r.Empty() {
		return s.clearLocked(ctx)
	}

	sealed, err := s.seal.seal(r.Token, "token")
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}
	userJSON, err := json.Marshal(r.User)
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}
	prof := r.Profile
	prof.Role = domain.RoleNone
	profJSON, err := json.Marshal(prof)
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, token, user, profile, role, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user = excluded.user,
			profile = excluded.profile,
			role = excluded.role,
			updated_at = excluded.updated_at`,
		sealed, string(userJSON), string(profJSON), string(r.Profile.Role), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}
	return nil
}

// SaveToken rotates the token of the stored identity.
func (s *SQLite) SaveToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if token == "" {
		return errors.New("store.SaveToken: empty token")
	}
	sealed, err := s.seal.seal(token, "token")
	if err != nil {
		return fmt.Errorf("store.SaveToken: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE session SET token = ?, updated_at = ? WHERE id = 1 AND user IS NOT NULL`,
		sealed, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("store.SaveToken: %w", err)
	}
	return nil
}

// Clear removes the session but keeps the provider credential.
func (s *SQLite) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	return s.clearLocked(ctx)
}

func (s *SQLite) clearLocked(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session SET token = NULL, user = NULL, profile = NULL, role = '', updated_at = ?
		WHERE id = 1`, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("store.Clear: %w", err)
	}
	return nil
}

func (s *SQLite) LoadRefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return "", err
	}
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT refresh_token FROM session WHERE id = 1`).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store.LoadRefreshToken: %w", err)
	}
	tok, err := s.seal.open(sealed, "refresh_token")
	if err != nil {
		return "", fmt.Errorf("store.LoadRefreshToken: %w", err)
	}
	return tok, nil
}

func (s *SQLite) SaveRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	sealed, err := s.seal.seal(token, "refresh_token")
	if err != nil {
		return fmt.Errorf("store.SaveRefreshToken: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, refresh_token) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET refresh_token = excluded.refresh_token`, sealed)
	if err != nil {
		return fmt.Errorf("store.SaveRefreshToken: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
