package domain

import (
	"errors"
	"slices"
)

// Room is a bookable study room.
type Room struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Seat is a seat inside a room.
type Seat struct {
	ID     string `json:"_id"`
	Label  string `json:"label"`
	RoomID string `json:"roomId"`
}

// Booking is an existing seat reservation.
type Booking struct {
	ID        string `json:"_id,omitempty"`
	SeatID    string `json:"seatId"`
	StudentID string `json:"studentId"`
	RoomID    string `json:"roomId,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// BookingRequest is the body of POST /api/booking.
type BookingRequest struct {
	StudentID string `json:"studentId"`
	RoomID    string `json:"roomId"`
	SeatID    string `json:"seatId"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// BookingResponse is returned by POST /api/booking.
type BookingResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SeatView is a seat annotated with its booking state for the current student.
type SeatView struct {
	Seat
	IsBooked bool
	IsMine   bool
}

// Selectable reports whether the current student may pick the seat.
func (s SeatView) Selectable() bool {
	return !s.IsBooked || s.IsMine
}

// AnnotateSeats keeps the seats of roomID and marks which are booked and
// which of those belong to studentID.
func AnnotateSeats(seats []Seat, bookings []Booking, roomID, studentID string) []SeatView {
	out := make([]SeatView, 0, len(seats))
	for _, s := range seats {
		if s.RoomID != roomID {
			continue
		}
		v := SeatView{Seat: s}
		for _, b := range bookings {
			if b.SeatID != s.ID {
				continue
			}
			v.IsBooked = true
			if studentID != "" && b.StudentID == studentID {
				v.IsMine = true
				break
			}
		}
		out = append(out, v)
	}
	return out
}

// TimeSlots are the hourly slots a booking may start or end on.
var TimeSlots = []string{
	"06:00", "07:00", "08:00", "09:00", "10:00", "11:00",
	"12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
	"18:00", "19:00", "20:00", "21:00", "22:00",
}

var (
	ErrMissingSlot = errors.New("select start and end time")
	ErrUnknownSlot = errors.New("time is not a bookable slot")
	ErrSlotOrder   = errors.New("end time must be after start time")
)

// ValidateSlot checks a start/end pair against TimeSlots.
func ValidateSlot(start, end string) error {
	if start == "" || end == "" {
		return ErrMissingSlot
	}
	si := slices.Index(TimeSlots, start)
	ei := slices.Index(TimeSlots, end)
	if si < 0 || ei < 0 {
		return ErrUnknownSlot
	}
	if ei <= si {
		return ErrSlotOrder
	}
	return nil
}
