package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMonthStats_CurrentMonth(t *testing.T) {
	days := []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-05"}
	today := time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)

	got := MonthStats(2025, time.January, days, today)
	want := Stats{Percentage: 13, Streak: 1, LongestStreak: 3}
	if got != want {
		t.Errorf("MonthStats() = %+v, want %+v", got, want)
	}
}

func TestMonthStats_PastAndFutureMonths(t *testing.T) {
	days := []string{"2024-02-28T08:00:00.000Z", "2024-02-29"}
	today := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	past := MonthStats(2024, time.February, days, today)
	if past.Streak != 2 || past.LongestStreak != 2 {
		t.Errorf("past month stats = %+v, want streak 2 / longest 2", past)
	}
	if past.Percentage != 7 { // 2 of 29 days
		t.Errorf("Percentage = %d, want 7", past.Percentage)
	}

	future := MonthStats(2026, time.February, []string{"2026-02-01"}, today)
	if future.Streak != 0 {
		t.Errorf("future month streak = %d, want 0", future.Streak)
	}
	if future.LongestStreak != 1 {
		t.Errorf("future month longest = %d, want 1", future.LongestStreak)
	}
}

func TestMonthStats_IgnoresOtherMonthsAndGarbage(t *testing.T) {
	days := []string{"2025-02-01", "nope", "", "2025-01-31"}
	got := MonthStats(2025, time.January, days, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if got.LongestStreak != 1 || got.Streak != 1 {
		t.Errorf("MonthStats() = %+v, want only Jan 31 counted", got)
	}
}

func TestDaysIn(t *testing.T) {
	if got := DaysIn(2024, time.February); got != 29 {
		t.Errorf("DaysIn(2024, Feb) = %d, want 29", got)
	}
	if got := DaysIn(2025, time.December); got != 31 {
		t.Errorf("DaysIn(2025, Dec) = %d, want 31", got)
	}
}

func TestExtractQRToken(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"abc123", "abc123"},
		{"  abc123\n", "abc123"},
		{"https://my-library.app/qr?token=xyz", "xyz"},
		{"https://my-library.app/qr?other=1", "https://my-library.app/qr?other=1"},
		{"not a url?token=nope", "not a url?token=nope"},
	}
	for _, tt := range tests {
		if got := ExtractQRToken(tt.raw); got != tt.want {
			t.Errorf("ExtractQRToken(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestStudentYearAcceptsNumberOrString(t *testing.T) {
	for _, body := range []string{`{"_id":"1","year":3}`, `{"_id":"1","year":"3"}`} {
		var s Student
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			t.Fatalf("Unmarshal(%s): %v", body, err)
		}
		if s.Year != "3" {
			t.Errorf("Year = %q, want %q", s.Year, "3")
		}
	}
}

func TestStudentInfoRowsSkipsEmpty(t *testing.T) {
	s := Student{Name: "asha", LibraryID: "L-9"}
	rows := s.InfoRows()
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2: %v", len(rows), rows)
	}
	if rows[1][0] != "Library ID" {
		t.Errorf("rows[1] label = %q, want Library ID", rows[1][0])
	}
	if s.Initial() != "A" {
		t.Errorf("Initial() = %q, want A", s.Initial())
	}
}
