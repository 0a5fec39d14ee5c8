package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Student is the library's student record.
type Student struct {
	ID           string     `json:"_id"`
	UID          string     `json:"uid,omitempty"`
	Name         string     `json:"name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	EnrollmentNo string     `json:"enrollmentNo,omitempty"`
	LibraryID    string     `json:"libraryId,omitempty"`
	Branch       string     `json:"branch,omitempty"`
	Year         FlexString `json:"year,omitempty"`
	Section      string     `json:"section,omitempty"`
}

// StudentResponse is returned by GET /api/students/by-uid.
type StudentResponse struct {
	Student *Student `json:"student"`
}

// FlexString decodes either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FallbackStudent builds a minimal record from the login profile when the
// backend has no student document for the user.
func FallbackStudent(p Profile, u *Principal) Student {
	s := Student{ID: "unknown", Name: p.Name, Email: p.Email}
	if u != nil {
		s.UID = u.UID
		if s.Email == "" {
			s.Email = u.Email
		}
		if s.Phone == "" {
			s.Phone = u.Phone
		}
	}
	return s
}

// InfoRows returns the labelled, non-empty profile fields in display order.
func (s Student) InfoRows() [][2]string {
	rows := [][2]string{
		{"Name", s.Name},
		{"Email", s.Email},
		{"Phone", s.Phone},
		{"Enrollment No.", s.EnrollmentNo},
		{"Library ID", s.LibraryID},
		{"Branch", s.Branch},
		{"Year", string(s.Year)},
		{"Section", s.Section},
	}
	out := rows[:0]
	for _, r := range rows {
		if r[1] != "" {
			out = append(out, r)
		}
	}
	return out
}

// Initial returns the upper-cased first letter of the name, or "S".
func (s Student) Initial() string {
	for _, r := range s.Name {
		return strings.ToUpper(string(r))
	}
	return "S"
}
