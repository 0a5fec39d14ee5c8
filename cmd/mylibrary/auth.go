package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naveenspark/mylibrary/internal/identity"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

var (
	loginEmail    string
	loginPassword string
	loginPhone    string

	registerName     string
	registerEmail    string
	registerPassword string
	registerPhone    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password or a phone number",
	Long: `Sign in with --email (the password is prompted when --password is omitted)
or with --phone, which texts a verification code and prompts for it.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withSession(cmd.Context(), os.Stdout, func(ctx context.Context, a *app, _ domain.Session) int {
			return runLogin(ctx, os.Stdout, a.mgr, loginInput{
				email:     loginEmail,
				password:  loginPassword,
				phone:     loginPhone,
				recaptcha: a.cfg.RecaptchaToken,
			})
		}))
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stdout, "Error: %v\n", err)
			exitWith(exitUsage)
			return
		}
		c := client.New(cfg.APIURL, nil, client.WithTimeout(cfg.HTTPTimeout))
		exitWith(runRegister(cmd.Context(), os.Stdout, c, registerInput{
			name:     registerName,
			email:    registerEmail,
			password: registerPassword,
			phone:    registerPhone,
		}))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withSession(cmd.Context(), os.Stdout, func(ctx context.Context, a *app, s domain.Session) int {
			return runLogout(ctx, os.Stdout, a.mgr, s)
		}))
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withSession(cmd.Context(), os.Stdout, func(_ context.Context, _ *app, s domain.Session) int {
			return runWhoami(os.Stdout, s)
		}))
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginPhone, "phone", "", "Phone number with country code, e.g. +919876543210")
	loginCmd.MarkFlagsMutuallyExclusive("email", "phone")
	loginCmd.MarkFlagsOneRequired("email", "phone")

	registerCmd.Flags().StringVar(&registerName, "name", "", "Full name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Password (prompted when omitted)")
	registerCmd.Flags().StringVar(&registerPhone, "phone", "", "Phone number (optional)")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}

// loginer is the part of the session manager sign-in needs.
type loginer interface {
	LoginWithPassword(ctx context.Context, email, password string) (domain.Session, error)
	SendPhoneCode(ctx context.Context, phone, recaptchaToken string) (identity.Verification, error)
	ConfirmPhoneCode(ctx context.Context, v identity.Verification, code string) (domain.Session, error)
}

type loginInput struct {
	email     string
	password  string
	phone     string
	recaptcha string
}

func runLogin(ctx context.Context, w io.Writer, l loginer, in loginInput) int {
	var (
		s   domain.Session
		err error
	)
	if in.phone != "" {
		if in.recaptcha == "" {
			fmt.Fprintln(w, "Error: phone sign-in needs FIREBASE_RECAPTCHA_TOKEN")
			return exitUsage
		}
		v, err := l.SendPhoneCode(ctx, strings.TrimSpace(in.phone), in.recaptcha)
		if err != nil {
			return reportError(w, err)
		}
		fmt.Fprintf(w, "Verification code sent to %s\n", v.Phone)
		code, err := prompt("Verification code", false)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return exitUsage
		}
		if s, err = l.ConfirmPhoneCode(ctx, v, code); err != nil {
			return reportError(w, err)
		}
	} else {
		password := in.password
		if password == "" {
			if password, err = prompt("Password", true); err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
				return exitUsage
			}
		}
		if s, err = l.LoginWithPassword(ctx, strings.TrimSpace(in.email), password); err != nil {
			return reportError(w, err)
		}
	}

	if jsonOutput {
		return printJSON(w, sessionView(s))
	}
	fmt.Fprintf(w, "Signed in as %s\n", displayName(s))
	return exitOK
}

type registerInput struct {
	name     string
	email    string
	password string
	phone    string
}

func runRegister(ctx context.Context, w io.Writer, c *client.Client, in registerInput) int {
	password := in.password
	if password == "" {
		var err error
		if password, err = prompt("Password", true); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return exitUsage
		}
	}
	if len(password) < 6 {
		fmt.Fprintln(w, "Error: password must be at least 6 characters")
		return exitUsage
	}
	req := domain.RegisterRequest{
		Provider: "email",
		Email:    strings.TrimSpace(in.email),
		Password: password,
		Name:     strings.TrimSpace(in.name),
	}
	if phone := strings.TrimSpace(in.phone); phone != "" {
		req.PhoneNumber = &phone
	}
	if _, err := c.Register(ctx, req); err != nil {
		return reportError(w, err)
	}
	fmt.Fprintf(w, "Account created for %s. Run `mylibrary login --email %s` to sign in.\n", req.Email, req.Email)
	return exitOK
}

type logouter interface {
	Logout(ctx context.Context) error
}

func runLogout(ctx context.Context, w io.Writer, l logouter, s domain.Session) int {
	if !s.SignedIn() {
		fmt.Fprintln(w, "Already logged out.")
		return exitOK
	}
	if err := l.Logout(ctx); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitError
	}
	fmt.Fprintln(w, "Logged out.")
	return exitOK
}

func runWhoami(w io.Writer, s domain.Session) int {
	if jsonOutput {
		if code := printJSON(w, sessionView(s)); code != exitOK {
			return code
		}
	} else {
		fmt.Fprintln(w, formatSessionHuman(s))
	}
	if !s.SignedIn() {
		return exitUsage
	}
	return exitOK
}

func displayName(s domain.Session) string {
	name := s.Profile.Name
	if name == "" && s.User != nil {
		name = s.User.Email
	}
	if name == "" && s.User != nil {
		name = s.User.Phone
	}
	if s.Profile.Role != domain.RoleNone {
		name += " (" + string(s.Profile.Role) + ")"
	}
	return name
}

// formatSessionHuman formats the session for human readability
func formatSessionHuman(s domain.Session) string {
	if !s.SignedIn() {
		return "Not signed in."
	}
	var b strings.Builder
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-12s %s\n", label+":", value)
		}
	}
	row("Name", s.Profile.Name)
	row("Email", firstNonEmpty(s.Profile.Email, s.User.Email))
	row("Phone", s.User.Phone)
	row("Role", string(s.Profile.Role))
	row("Student ID", s.Profile.StudentID)
	row("User ID", s.User.UID)
	if s.Profile.Role == domain.RoleAdmin {
		token := "missing"
		if s.Profile.AdminToken != "" {
			token = "present"
		}
		row("Admin token", token)
	}
	return strings.TrimRight(b.String(), "\n")
}

type sessionJSON struct {
	SignedIn      bool   `json:"signedIn"`
	UID           string `json:"uid,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
	StudentID     string `json:"studentId,omitempty"`
	HasAdminToken bool   `json:"hasAdminToken,omitempty"`
}

// sessionView is the JSON shape of the session. Tokens are never included.
func sessionView(s domain.Session) sessionJSON {
	out := sessionJSON{SignedIn: s.SignedIn()}
	if s.SignedIn() {
		out.UID = s.User.UID
		out.Email = firstNonEmpty(s.Profile.Email, s.User.Email)
		out.Phone = s.User.Phone
		out.Name = s.Profile.Name
		out.Role = string(s.Profile.Role)
		out.StudentID = s.Profile.StudentID
		out.HasAdminToken = s.Profile.AdminToken != ""
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
