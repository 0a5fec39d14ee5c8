package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var (
	apiURL     string
	dataDir    string
	jsonOutput bool
	ephemeral  bool
)

// Exit codes shared by every subcommand.
const (
	exitOK      = 0
	exitUsage   = 1 // bad input or not signed in
	exitError   = 2 // backend, provider or network failure
	exitExpired = 3 // the backend rejected the session
)

var rootCmd = &cobra.Command{
	Use:   "mylibrary",
	Short: "Terminal client for the library study-room service",
	Long: `mylibrary marks attendance, shows your attendance calendar and books
study-room seats. Run it without arguments for the full-screen interface.

Environment Variables:
  MYLIBRARY_API_URL         Backend URL (default: ` + "https://my-library-pink-psi.vercel.app" + `)
  MYLIBRARY_DATA_DIR        Session store, .env and debug.log (default: ~/.config/mylibrary)
  FIREBASE_API_KEY          Firebase Web API key (required to sign in)
  FIREBASE_RECAPTCHA_TOKEN  reCAPTCHA token for phone sign-in
  MYLIBRARY_TOKEN_REFRESH   ID token rotation interval (default: 30m)
  MYLIBRARY_HTTP_TIMEOUT    Per-request timeout (default: 30s)
  LOG_LEVEL, LOG_FORMAT     debug|info|warn|error, text|json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend API URL (overrides MYLIBRARY_API_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides MYLIBRARY_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep the session in memory only")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitWith ends a subcommand with code.
func exitWith(code int) {
	if code != exitOK {
		os.Exit(code)
	}
}
