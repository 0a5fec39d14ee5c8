// Package config loads client settings from the environment and an optional
// .env file in the data directory.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL         = "https://my-library-pink-psi.vercel.app"
	DefaultIdentityURL    = "https://identitytoolkit.googleapis.com"
	DefaultSecureTokenURL = "https://securetoken.googleapis.com"
	DefaultTokenRefresh   = 30 * time.Minute
	DefaultHTTPTimeout    = 30 * time.Second
)

type Config struct {
	APIURL  string
	DataDir string

	// Firebase
	FirebaseAPIKey string
	RecaptchaToken string // required for phone sign-in outside the emulator
	IdentityURL    string
	SecureTokenURL string

	TokenRefresh time.Duration
	HTTPTimeout  time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration. dataDir overrides MYLIBRARY_DATA_DIR when set.
// Real environment variables win over values in <data-dir>/.env.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = os.Getenv("MYLIBRARY_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	dotenv, err := readDotenv(filepath.Join(dataDir, ".env"))
	if err != nil {
		return nil, err
	}
	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v := dotenv[key]; v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		APIURL:         strings.TrimRight(get("MYLIBRARY_API_URL", DefaultAPIURL), "/"),
		DataDir:        dataDir,
		FirebaseAPIKey: get("FIREBASE_API_KEY", get("API_KEY", "")),
		RecaptchaToken: get("FIREBASE_RECAPTCHA_TOKEN", ""),
		IdentityURL:    strings.TrimRight(get("FIREBASE_IDENTITY_URL", DefaultIdentityURL), "/"),
		SecureTokenURL: strings.TrimRight(get("FIREBASE_SECURETOKEN_URL", DefaultSecureTokenURL), "/"),
		LogLevel:       get("LOG_LEVEL", "info"),
		LogFormat:      get("LOG_FORMAT", "text"),
	}

	if cfg.TokenRefresh, err = parseDuration("MYLIBRARY_TOKEN_REFRESH", get("MYLIBRARY_TOKEN_REFRESH", ""), DefaultTokenRefresh); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = parseDuration("MYLIBRARY_HTTP_TIMEOUT", get("MYLIBRARY_HTTP_TIMEOUT", ""), DefaultHTTPTimeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flags may have overridden after Load.
func (c *Config) Validate() error {
	for _, u := range []struct {
		name, value string
	}{
		{"MYLIBRARY_API_URL", c.APIURL},
		{"FIREBASE_IDENTITY_URL", c.IdentityURL},
		{"FIREBASE_SECURETOKEN_URL", c.SecureTokenURL},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("%s must be an http(s) URL, got %q", u.name, u.value)
		}
	}
	if c.TokenRefresh <= 0 {
		return fmt.Errorf("MYLIBRARY_TOKEN_REFRESH must be positive, got %s", c.TokenRefresh)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("MYLIBRARY_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.DataDir == "" {
		return errors.New("no data directory: set MYLIBRARY_DATA_DIR or --data-dir")
	}
	return nil
}

// FirebaseConfigured reports whether sign-in can reach the identity provider.
func (c *Config) FirebaseConfigured() bool {
	return c.FirebaseAPIKey != ""
}

// DefaultDataDir returns the data directory following the XDG spec.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mylibrary")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mylibrary")
}

func readDotenv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vals, nil
}

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
