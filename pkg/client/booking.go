package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// StudentByUID fetches the student document for a provider uid. It returns
// nil without error when the backend has no student for the uid.
func (c *Client) StudentByUID(ctx context.Context, uid string) (*domain.Student, error) {
	params := url.Values{}
	params.Set("uid", uid)

	var resp domain.StudentResponse
	if err := c.get(ctx, "/api/students/by-uid?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("client.StudentByUID: %w", err)
	}
	if resp.Student == nil || resp.Student.ID == "" {
		return nil, nil
	}
	return resp.Student, nil
}

// ListRooms returns every study room.
func (c *Client) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var resp struct {
		Rooms []domain.Room `json:"rooms"`
	}
	if err := c.get(ctx, "/api/admin/rooms/list", &resp); err != nil {
		return nil, fmt.Errorf("client.ListRooms: %w", err)
	}
	return resp.Rooms, nil
}

// ListSeats returns every seat across all rooms.
func (c *Client) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	var resp struct {
		Seats []domain.Seat `json:"seats"`
	}
	if err := c.get(ctx, "/api/admin/seats/list", &resp); err != nil {
		return nil, fmt.Errorf("client.ListSeats: %w", err)
	}
	return resp.Seats, nil
}

// ListBookings returns the bookings of one room.
func (c *Client) ListBookings(ctx context.Context, roomID string) ([]domain.Booking, error) {
	params := url.Values{}
	params.Set("roomId", roomID)

	var resp struct {
		Bookings []domain.Booking `json:"bookings"`
	}
	if err := c.get(ctx, "/api/booking/list?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("client.ListBookings: %w", err)
	}
	return resp.Bookings, nil
}

// Book reserves a seat for a time slot.
func (c *Client) Book(ctx context.Context, req domain.BookingRequest) error {
	if req.StudentID == "" {
		return fmt.Errorf("client.Book: %w", ErrNotAuthenticated)
	}
	if req.RoomID == "" || req.SeatID == "" {
		return fmt.Errorf("client.Book: %w", rejected("booking", "select a room and seat"))
	}
	if err := domain.ValidateSlot(req.StartTime, req.EndTime); err != nil {
		return fmt.Errorf("client.Book: %w", rejected("booking", err.Error()))
	}
	var resp domain.BookingResponse
	if err := c.post(ctx, "/api/booking", req, &resp); err != nil {
		return fmt.Errorf("client.Book: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "Booking failed"
		}
		return fmt.Errorf("client.Book: %w", &RejectedError{Op: "booking", Message: msg})
	}
	return nil
}
