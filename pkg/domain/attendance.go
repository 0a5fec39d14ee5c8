package domain

import (
	"math"
	"net/url"
	"strings"
	"time"
)

// Attendance is a single marked attendance record.
type Attendance struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
}

// TodayResponse is returned by GET /api/attendence/today.
type TodayResponse struct {
	Attendance *Attendance `json:"attendance"`
}

// MarkResponse is returned by the mark-wifi and mark-qr endpoints.
type MarkResponse struct {
	OK         bool        `json:"ok"`
	Message    string      `json:"message,omitempty"`
	Attendance *Attendance `json:"attendance,omitempty"`
}

// MarkQRRequest is the body of POST /api/attendence/mark-qr.
type MarkQRRequest struct {
	Token string `json:"token"`
}

// MonthResponse is returned by GET /api/attendence/month.
type MonthResponse struct {
	OK      bool     `json:"ok"`
	Days    []string `json:"days"`
	Message string   `json:"message,omitempty"`
}

// Stats summarizes one month of attendance.
type Stats struct {
	Percentage    int
	Streak        int
	LongestStreak int
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PresentSet indexes ISO dates (or timestamps) that fall in year/month by day of month.
func PresentSet(year int, month time.Month, days []string) map[int]bool {
	present := make(map[int]bool, len(days))
	for _, raw := range days {
		if len(raw) < 10 {
			continue
		}
		d, err := time.Parse("2006-01-02", raw[:10])
		if err != nil {
			continue
		}
		if d.Year() == year && d.Month() == month {
			present[d.Day()] = true
		}
	}
	return present
}

// MonthStats computes the attendance percentage and streaks for a month.
// The current streak counts consecutive present days ending at today for the
// current month, at the last day for past months, and is 0 for future months.
func MonthStats(year int, month time.Month, days []string, today time.Time) Stats {
	dim := DaysIn(year, month)
	present := PresentSet(year, month, days)

	ty, tm, td := today.Date()
	cutoff := 0
	switch {
	case ty == year && tm == month:
		cutoff = td
	case ty > year || (ty == year && tm > month):
		cutoff = dim
	}

	var run, longest, current int
	for d := 1; d <= dim; d++ {
		if present[d] {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
		if d <= cutoff {
			if present[d] {
				current++
			} else {
				current = 0
			}
		}
	}

	return Stats{
		Percentage:    int(math.Round(float64(len(present)) / float64(dim) * 100)),
		Streak:        current,
		LongestStreak: longest,
	}
}

// ExtractQRToken returns the token query parameter when raw is a URL carrying
// one, and the trimmed raw value otherwise.
func ExtractQRToken(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return raw
	}
	if tok := u.Query().Get("token"); tok != "" {
		return tok
	}
	return raw
}
