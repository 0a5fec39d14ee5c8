package domain

import (
	"errors"
	"testing"
)

func TestAnnotateSeats_MineVsOther(t *testing.T) {
	seats := []Seat{{ID: "1", RoomID: "R"}}
	bookings := []Booking{{SeatID: "1", StudentID: "s1"}}

	tests := []struct {
		studentID      string
		wantMine       bool
		wantSelectable bool
	}{
		{"s1", true, true},
		{"s2", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.studentID, func(t *testing.T) {
			got := AnnotateSeats(seats, bookings, "R", tt.studentID)
			if len(got) != 1 {
				t.Fatalf("got %d seats, want 1", len(got))
			}
			if !got[0].IsBooked {
				t.Error("IsBooked = false, want true")
			}
			if got[0].IsMine != tt.wantMine {
				t.Errorf("IsMine = %v, want %v", got[0].IsMine, tt.wantMine)
			}
			if got[0].Selectable() != tt.wantSelectable {
				t.Errorf("Selectable() = %v, want %v", got[0].Selectable(), tt.wantSelectable)
			}
		})
	}
}

func TestAnnotateSeats_FiltersByRoom(t *testing.T) {
	seats := []Seat{
		{ID: "1", RoomID: "R"},
		{ID: "2", RoomID: "Q"},
		{ID: "3", RoomID: "R"},
	}
	got := AnnotateSeats(seats, nil, "R", "s1")
	if len(got) != 2 {
		t.Fatalf("got %d seats, want 2", len(got))
	}
	for _, s := range got {
		if s.IsBooked || s.IsMine {
			t.Errorf("seat %s: unexpected booking state %+v", s.ID, s)
		}
		if !s.Selectable() {
			t.Errorf("seat %s: free seat should be selectable", s.ID)
		}
	}
}

func TestAnnotateSeats_MineWinsOverOtherBooking(t *testing.T) {
	seats := []Seat{{ID: "1", RoomID: "R"}}
	bookings := []Booking{
		{SeatID: "1", StudentID: "s2"},
		{SeatID: "1", StudentID: "s1"},
	}
	got := AnnotateSeats(seats, bookings, "R", "s1")
	if !got[0].IsMine {
		t.Error("expected seat to be marked mine when any booking is the student's")
	}
}

func TestValidateSlot(t *testing.T) {
	tests := []struct {
		start, end string
		want       error
	}{
		{"", "", ErrMissingSlot},
		{"09:00", "", ErrMissingSlot},
		{"09:30", "10:00", ErrUnknownSlot},
		{"10:00", "09:00", ErrSlotOrder},
		{"10:00", "10:00", ErrSlotOrder},
		{"06:00", "22:00", nil},
	}
	for _, tt := range tests {
		t.Run(tt.start+"-"+tt.end, func(t *testing.T) {
			if err := ValidateSlot(tt.start, tt.end); !errors.Is(err, tt.want) {
				t.Errorf("ValidateSlot(%q, %q) = %v, want %v", tt.start, tt.end, err, tt.want)
			}
		})
	}
}
