package domain

// Role is the backend-assigned authorization category.
type Role string

const (
	RoleNone    Role = ""
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Known reports whether r is one of the roles the backend issues.
func (r Role) Known() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Principal is the identity provider's view of a signed-in user.
type Principal struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phoneNumber,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Profile is the authorization payload returned by the backend at login.
type Profile struct {
	Role       Role   `json:"role,omitempty"`
	StudentID  string `json:"studentId,omitempty"`
	AdminToken string `json:"adminToken,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Session is the client's consolidated view of who is logged in.
// Token and User are set and cleared together.
type Session struct {
	Token   string     `json:"-"`
	User    *Principal `json:"user,omitempty"`
	Profile Profile    `json:"profile"`
	Loading bool       `json:"loading"`
}

// Valid reports whether the token/user pairing invariant holds.
func (s Session) Valid() bool {
	return (s.Token == "") == (s.User == nil)
}

// SignedIn reports whether an identity is present.
func (s Session) SignedIn() bool {
	return s.Token != "" && s.User != nil
}

// UID returns the signed-in user's id, or "".
func (s Session) UID() string {
	if s.User == nil {
		return ""
	}
	return s.User.UID
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
