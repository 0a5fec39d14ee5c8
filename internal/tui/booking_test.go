package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/naveenspark/mylibrary/internal/apitest"
	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

func newTestBooking(t *testing.T) (bookingModel, *apitest.Backend) {
	t.Helper()
	b := apitest.New()
	t.Cleanup(b.Close)
	b.Do(func(b *apitest.Backend) {
		b.Rooms = []domain.Room{{ID: "r1", Name: "Reading Hall"}, {ID: "r2", Name: "Quiet Room"}}
		b.Seats = []domain.Seat{
			{ID: "a1", Label: "A1", RoomID: "r1"},
			{ID: "a2", Label: "A2", RoomID: "r1"},
			{ID: "a3", Label: "A3", RoomID: "r1"},
			{ID: "q1", Label: "Q1", RoomID: "r2"},
		}
		b.Bookings = []domain.Booking{
			{SeatID: "a1", StudentID: "s1", RoomID: "r1"},
			{SeatID: "a2", StudentID: "s2", RoomID: "r1"},
		}
		b.Students["u1"] = domain.Student{ID: "s1", UID: "u1", Name: "Alice"}
	})
	m := newBookingModel(client.New(b.URL(), client.StaticToken("tok")), studentSession())
	return m, b
}

// openRoom loads rooms and opens the first one with its seats.
func openRoom(t *testing.T, m bookingModel) bookingModel {
	t.Helper()
	for _, msg := range run(m.Init()) {
		m, _ = m.Update(msg)
	}
	if len(m.rooms) != 2 {
		t.Fatalf("rooms = %+v", m.rooms)
	}
	m, cmd := m.Update(key("enter"))
	if m.stage != stageSeats || m.room.ID != "r1" {
		t.Fatalf("stage = %d room = %q", m.stage, m.room.ID)
	}
	m, _ = m.Update(cmd())
	return m
}

func TestBookingAnnotatesSeats(t *testing.T) {
	m, _ := newTestBooking(t)
	m = openRoom(t, m)

	if len(m.seats) != 3 {
		t.Fatalf("seats = %+v", m.seats)
	}
	want := map[string][2]bool{ // booked, mine
		"a1": {true, true},
		"a2": {true, false},
		"a3": {false, false},
	}
	for _, s := range m.seats {
		w := want[s.ID]
		if s.IsBooked != w[0] || s.IsMine != w[1] {
			t.Errorf("seat %s booked=%v mine=%v, want %v", s.ID, s.IsBooked, s.IsMine, w)
		}
	}
	view := m.View()
	if !strings.Contains(view, "(yours)") || !strings.Contains(view, "booked") {
		t.Errorf("seat states not rendered:\n%s", view)
	}
}

func TestBookingOtherStudentSeesTaken(t *testing.T) {
	m, b := newTestBooking(t)
	b.Do(func(b *apitest.Backend) { b.Students["u1"] = domain.Student{ID: "s2", UID: "u1"} })
	m = openRoom(t, m)
	if m.studentID != "s2" {
		t.Fatalf("studentID = %q, want the fetched record's id", m.studentID)
	}
	for _, s := range m.seats {
		if s.ID == "a1" && (s.IsMine || s.Selectable()) {
			t.Error("another student's seat is selectable")
		}
		if s.ID == "a2" && !s.IsMine {
			t.Error("own booking not marked as mine")
		}
	}
}

func TestBookingBookedSeatNotSelectable(t *testing.T) {
	m, _ := newTestBooking(t)
	m = openRoom(t, m)
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("enter"))
	if m.stage != stageSeats {
		t.Errorf("stage = %d, booked seat was picked", m.stage)
	}
	if m.err != "Seat already booked" {
		t.Errorf("err = %q", m.err)
	}
}

func TestBookingSlotValidation(t *testing.T) {
	m, _ := newTestBooking(t)
	m = openRoom(t, m)
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("enter"))
	if m.stage != stageSlots || m.seat.ID != "a3" {
		t.Fatalf("stage = %d seat = %q", m.stage, m.seat.ID)
	}

	m, cmd := m.Update(key("b"))
	if cmd != nil || m.err != domain.ErrMissingSlot.Error() {
		t.Errorf("err = %q", m.err)
	}

	// start 08:00, end 07:00
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("tab"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	req := m.request()
	if req.StartTime != "08:00" || req.EndTime != "07:00" {
		t.Fatalf("slot = %s-%s", req.StartTime, req.EndTime)
	}
	m, cmd = m.Update(key("b"))
	if cmd != nil || m.err != domain.ErrSlotOrder.Error() {
		t.Errorf("err = %q", m.err)
	}
}

func TestBookingSuccessReloadsSeats(t *testing.T) {
	m, b := newTestBooking(t)
	m = openRoom(t, m)
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("enter"))

	m.startIdx, m.endIdx = 2, 4
	m, cmd := m.Update(key("b"))
	if !m.booking {
		t.Fatal("expected booking in progress")
	}
	msg := cmd()
	booked, ok := msg.(bookedMsg)
	if !ok || booked.err != nil {
		t.Fatalf("got %#v", msg)
	}
	if booked.req != (domain.BookingRequest{StudentID: "s1", RoomID: "r1", SeatID: "a3", StartTime: "08:00", EndTime: "10:00"}) {
		t.Errorf("request = %+v", booked.req)
	}

	m, cmd = m.Update(booked)
	if m.stage != stageSeats || !strings.HasPrefix(m.status, "Booked A3 in Reading Hall") {
		t.Errorf("stage = %d status = %q", m.stage, m.status)
	}
	m, _ = m.Update(cmd())
	for _, s := range m.seats {
		if s.ID == "a3" && !s.IsMine {
			t.Error("reloaded seats do not show the new booking")
		}
	}
	b.Do(func(b *apitest.Backend) {
		if len(b.Bookings) != 3 {
			t.Errorf("bookings = %d, want 3", len(b.Bookings))
		}
	})
}

func TestBookingRejectedByBackend(t *testing.T) {
	m, b := newTestBooking(t)
	m = openRoom(t, m)
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("enter"))
	b.Do(func(b *apitest.Backend) {
		b.Bookings = append(b.Bookings, domain.Booking{SeatID: "a3", StudentID: "s9", RoomID: "r1"})
	})

	m.startIdx, m.endIdx = 0, 1
	m, cmd := m.Update(key("b"))
	m, _ = m.Update(cmd())
	if m.err != "Seat already booked" || m.booking {
		t.Errorf("err = %q booking = %v", m.err, m.booking)
	}
}

func TestBookingIgnoresStaleSeats(t *testing.T) {
	m, _ := newTestBooking(t)
	m = openRoom(t, m)
	m, _ = m.Update(seatsLoadedMsg{roomID: "r2", seats: []domain.Seat{{ID: "q1", RoomID: "r2"}}})
	if len(m.seats) != 3 {
		t.Error("seats for another room replaced the list")
	}
}

func TestBookingEscNavigation(t *testing.T) {
	m, _ := newTestBooking(t)
	m = openRoom(t, m)
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("enter"))
	m, _ = m.Update(key("esc"))
	if m.stage != stageSeats {
		t.Errorf("stage = %d, want seats", m.stage)
	}
	m, _ = m.Update(key("esc"))
	if m.stage != stageRooms {
		t.Errorf("stage = %d, want rooms", m.stage)
	}
}

func TestBookingLateStudentRecordMarksSeats(t *testing.T) {
	m, _ := newTestBooking(t)
	m.studentID = "" // phone sign-in carries no studentId

	m, _ = m.Update(m.loadRooms()())
	m, cmd := m.Update(key("enter"))
	m, _ = m.Update(cmd())
	if len(m.seats) != 3 || m.seats[0].ID != "a1" {
		t.Fatalf("seats = %+v", m.seats)
	}
	if m.seats[0].IsMine {
		t.Fatal("seat marked as mine before the student record arrived")
	}

	m, _ = m.Update(key("enter"))
	if m.stage != stageSeats {
		t.Fatalf("stage = %d, seat picked before the student record arrived", m.stage)
	}

	m, _ = m.Update(m.loadStudent()())
	if m.studentID != "s1" {
		t.Fatalf("studentID = %q", m.studentID)
	}
	if !m.seats[0].IsMine || !m.seats[0].Selectable() {
		t.Errorf("own seat after late student record = %+v", m.seats[0])
	}
	m, _ = m.Update(key("enter"))
	if m.stage != stageSlots || m.seat.ID != "a1" {
		t.Errorf("stage = %d seat = %q, want own seat picked", m.stage, m.seat.ID)
	}
}

func TestBookingStudentLookupError(t *testing.T) {
	m, _ := newTestBooking(t)
	m.studentID = ""

	m, _ = m.Update(m.loadRooms()())
	m, cmd := m.Update(studentLoadedMsg{err: errors.New("lookup failed")})
	if cmd != nil {
		t.Error("non-401 lookup error should not end the session")
	}
	if !strings.Contains(m.View(), "Could not load your student record: lookup failed") {
		t.Errorf("lookup error not shown:\n%s", m.View())
	}

	m, cmd = m.Update(key("enter"))
	m, _ = m.Update(cmd())
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("enter"))
	if m.stage != stageSeats || m.err != "No student record for this account" {
		t.Errorf("stage = %d err = %q", m.stage, m.err)
	}
}

func TestSlotAt(t *testing.T) {
	if slotAt(-1) != "" || slotAt(len(domain.TimeSlots)) != "" {
		t.Error("out-of-range index should give no slot")
	}
	if slotAt(0) != domain.TimeSlots[0] {
		t.Error("slotAt(0) mismatch")
	}
}
