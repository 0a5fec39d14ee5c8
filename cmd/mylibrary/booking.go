package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

var bookingCmd = &cobra.Command{
	Use:   "booking",
	Short: "Browse rooms and book seats",
}

var bookingRoomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List study rooms",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withClient(cmd.Context(), os.Stdout, runBookingRooms))
	},
}

var bookingSeatsCmd = &cobra.Command{
	Use:   "seats <roomId>",
	Short: "List the seats of a room and whether they are booked",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withStudent(cmd.Context(), os.Stdout, func(ctx context.Context, w io.Writer, c *client.Client, s domain.Session) int {
			return runBookingSeats(ctx, w, c, s, args[0])
		}))
	},
}

var bookingBookCmd = &cobra.Command{
	Use:   "book <roomId> <seatId> <start> <end>",
	Short: "Book a seat for a time slot (HH:MM, hourly from 06:00 to 22:00)",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withStudent(cmd.Context(), os.Stdout, func(ctx context.Context, w io.Writer, c *client.Client, s domain.Session) int {
			return runBook(ctx, w, c, s, args[0], args[1], args[2], args[3])
		}))
	},
}

func init() {
	bookingCmd.AddCommand(bookingRoomsCmd, bookingSeatsCmd, bookingBookCmd)
	rootCmd.AddCommand(bookingCmd)
}

func withStudent(ctx context.Context, w io.Writer, fn func(ctx context.Context, w io.Writer, c *client.Client, s domain.Session) int) int {
	return withSession(ctx, w, func(ctx context.Context, a *app, s domain.Session) int {
		if !requireSignedIn(w, s) {
			return exitUsage
		}
		return fn(ctx, w, a.client, s)
	})
}

// studentID prefers the backend's student record over the login payload.
func studentID(ctx context.Context, c *client.Client, s domain.Session) (string, error) {
	st, err := c.StudentByUID(ctx, s.UID())
	if err != nil {
		return "", err
	}
	if st != nil {
		return st.ID, nil
	}
	return s.Profile.StudentID, nil
}

func runBookingRooms(ctx context.Context, w io.Writer, c *client.Client) int {
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		return reportError(w, err)
	}
	if jsonOutput {
		return printJSON(w, rooms)
	}
	fmt.Fprintln(w, formatRoomsHuman(rooms))
	return exitOK
}

// formatRoomsHuman formats the room list for human readability
func formatRoomsHuman(rooms []domain.Room) string {
	if len(rooms) == 0 {
		return "No rooms available."
	}
	var b strings.Builder
	for _, r := range rooms {
		fmt.Fprintf(&b, "%-26s %s\n", r.ID, r.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runBookingSeats(ctx context.Context, w io.Writer, c *client.Client, s domain.Session, roomID string) int {
	var (
		sid      string
		seats    []domain.Seat
		bookings []domain.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sid, err = studentID(gctx, c, s)
		return err
	})
	g.Go(func() error {
		var err error
		seats, err = c.ListSeats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = c.ListBookings(gctx, roomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return reportError(w, err)
	}

	views := domain.AnnotateSeats(seats, bookings, roomID, sid)
	if jsonOutput {
		type seatJSON struct {
			domain.Seat
			Booked bool `json:"booked"`
			Mine   bool `json:"mine"`
		}
		out := make([]seatJSON, 0, len(views))
		for _, v := range views {
			out = append(out, seatJSON{Seat: v.Seat, Booked: v.IsBooked, Mine: v.IsMine})
		}
		return printJSON(w, out)
	}
	fmt.Fprintln(w, formatSeatsHuman(views))
	return exitOK
}

// formatSeatsHuman formats annotated seats for human readability
func formatSeatsHuman(seats []domain.SeatView) string {
	if len(seats) == 0 {
		return "No seats in this room."
	}
	var b strings.Builder
	for _, s := range seats {
		state := "free"
		switch {
		case s.IsMine:
			state = "yours"
		case s.IsBooked:
			state = "booked"
		}
		fmt.Fprintf(&b, "%-8s %-26s %s\n", s.Label, s.ID, state)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runBook(ctx context.Context, w io.Writer, c *client.Client, s domain.Session, roomID, seatID, start, end string) int {
	if err := domain.ValidateSlot(start, end); err != nil {
		fmt.Fprintf(w, "Error: %v (slots: %s)\n", err, strings.Join(domain.TimeSlots, " "))
		return exitUsage
	}
	sid, err := studentID(ctx, c, s)
	if err != nil {
		return reportError(w, err)
	}
	if sid == "" {
		fmt.Fprintln(w, "Error: no student record for this account")
		return exitUsage
	}
	req := domain.BookingRequest{StudentID: sid, RoomID: roomID, SeatID: seatID, StartTime: start, EndTime: end}
	if err := c.Book(ctx, req); err != nil {
		return reportError(w, err)
	}
	if jsonOutput {
		return printJSON(w, struct {
			Success bool                  `json:"success"`
			Booking domain.BookingRequest `json:"booking"`
		}{true, req})
	}
	fmt.Fprintf(w, "Booked seat %s in room %s, %s to %s\n", seatID, roomID, start, end)
	return exitOK
}
