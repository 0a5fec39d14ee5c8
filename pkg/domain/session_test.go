package domain

import "testing"

func TestSessionValid(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"empty", Session{}, true},
		{"both", Session{Token: "T", User: &Principal{UID: "u1"}}, true},
		{"token only", Session{Token: "T"}, false},
		{"user only", Session{User: &Principal{UID: "u1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionCloneDetachesUser(t *testing.T) {
	s := Session{Token: "T", User: &Principal{UID: "u1"}}
	c := s.Clone()
	c.User.UID = "changed"
	if s.User.UID != "u1" {
		t.Errorf("original mutated through clone: %q", s.User.UID)
	}
}

func TestLoginResponseValidate(t *testing.T) {
	ok := LoginResponse{Success: true, User: LoginUser{UID: "u1"}, Role: RoleStudent}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	rejected := LoginResponse{Success: false, Message: "account disabled"}
	if err := rejected.Validate(); err == nil || err.Error() != "account disabled" {
		t.Errorf("Validate() = %v, want account disabled", err)
	}

	badRole := LoginResponse{Success: true, User: LoginUser{UID: "u1"}, Role: "wizard"}
	if err := badRole.Validate(); err == nil {
		t.Error("expected error for unknown role")
	}

	noUID := LoginResponse{Success: true, Role: RoleAdmin}
	if err := noUID.Validate(); err == nil {
		t.Error("expected error for missing uid")
	}
}
