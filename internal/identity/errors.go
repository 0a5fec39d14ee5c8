package identity

import (
	"errors"
	"strings"
)

var (
	// ErrNoUser is returned for token requests while nobody is signed in.
	ErrNoUser = errors.New("identity: no signed-in user")
	// ErrInvalidPhone rejects numbers without a country code.
	ErrInvalidPhone = errors.New("phone number must start with + and a country code")
)

// ProviderError is an error reported by the identity provider.
type ProviderError struct {
	Op      string
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// IsCode reports whether err is a ProviderError with the given code.
func IsCode(err error, code string) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}

var friendly = map[string]string{
	"EMAIL_NOT_FOUND":             "No account found for this email",
	"INVALID_PASSWORD":            "Incorrect password",
	"INVALID_LOGIN_CREDENTIALS":   "Invalid email or password",
	"INVALID_EMAIL":               "Invalid email address",
	"USER_DISABLED":               "This account has been disabled",
	"USER_NOT_FOUND":              "Account no longer exists",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts, try again later",
	"INVALID_PHONE_NUMBER":        "Invalid phone number",
	"MISSING_PHONE_NUMBER":        "Enter a phone number",
	"INVALID_CODE":                "Invalid verification code",
	"MISSING_CODE":                "Enter the verification code",
	"SESSION_EXPIRED":             "Verification code expired, request a new one",
	"INVALID_SESSION_INFO":        "Verification code expired, request a new one",
	"CAPTCHA_CHECK_FAILED":        "reCAPTCHA check failed",
	"MISSING_RECAPTCHA_TOKEN":     "reCAPTCHA token required for phone sign-in",
	"TOKEN_EXPIRED":               "Session expired, sign in again",
	"INVALID_REFRESH_TOKEN":       "Session expired, sign in again",
	"INVALID_ID_TOKEN":            "Session expired, sign in again",
	"QUOTA_EXCEEDED":              "SMS quota exceeded, try again later",
}

// newProviderError builds a ProviderError from the provider's raw message,
// which looks like "CODE" or "CODE : detail".
func newProviderError(op, raw string) *ProviderError {
	code, detail, _ := strings.Cut(raw, " : ")
	code = strings.TrimSpace(code)
	msg, ok := friendly[code]
	if !ok {
		msg = strings.TrimSpace(detail)
		if msg == "" {
			msg = strings.ReplaceAll(strings.ToLower(code), "_", " ")
		}
	}
	return &ProviderError{Op: op, Code: code, Message: msg}
}

// signsOut reports whether a refresh failure means the credential is dead.
func signsOut(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_DISABLED", "USER_NOT_FOUND":
		return true
	}
	return false
}
