package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

type bookingStage int

const (
	stageRooms bookingStage = iota
	stageSeats
	stageSlots
)

type studentLoadedMsg struct {
	student *domain.Student
	err     error
}

type roomsLoadedMsg struct {
	rooms []domain.Room
	err   error
}

type seatsLoadedMsg struct {
	roomID   string
	seats    []domain.Seat
	bookings []domain.Booking
	err      error
}

type bookedMsg struct {
	req domain.BookingRequest
	err error
}

type bookingModel struct {
	client     *client.Client
	uid        string
	studentID  string
	resolved   bool // student lookup finished
	studentErr string
	rooms      []domain.Room
	roomCursor int
	room       domain.Room
	rawSeats   []domain.Seat
	bookings   []domain.Booking
	seats      []domain.SeatView
	seatCursor int
	seat       domain.SeatView
	startIdx   int
	endIdx     int
	editEnd    bool
	stage      bookingStage
	loading    bool
	booking    bool
	err        string
	status     string
	width      int
	height     int
}

// newBookingModel starts from the studentId of the login payload; the
// student record fetched in Init takes precedence.
func newBookingModel(c *client.Client, s domain.Session) bookingModel {
	return bookingModel{
		client:    c,
		uid:       s.UID(),
		studentID: s.Profile.StudentID,
		startIdx:  -1,
		endIdx:    -1,
		loading:   true,
	}
}

func (m bookingModel) Init() tea.Cmd {
	return tea.Batch(m.loadStudent(), m.loadRooms())
}

func (m bookingModel) loadStudent() tea.Cmd {
	c, uid := m.client, m.uid
	return func() tea.Msg {
		st, err := c.StudentByUID(context.Background(), uid)
		return studentLoadedMsg{student: st, err: err}
	}
}

func (m bookingModel) loadRooms() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		rooms, err := c.ListRooms(context.Background())
		return roomsLoadedMsg{rooms: rooms, err: err}
	}
}

// loadSeats fetches the seat list and the room's bookings concurrently.
// Marking happens on arrival so a late student record still applies.
func (m bookingModel) loadSeats(roomID string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		var (
			seats    []domain.Seat
			bookings []domain.Booking
		)
		g, ctx := errgroup.WithContext(context.Background())
		g.Go(func() error {
			var err error
			seats, err = c.ListSeats(ctx)
			return err
		})
		g.Go(func() error {
			var err error
			bookings, err = c.ListBookings(ctx, roomID)
			return err
		})
		if err := g.Wait(); err != nil {
			return seatsLoadedMsg{roomID: roomID, err: err}
		}
		return seatsLoadedMsg{roomID: roomID, seats: seats, bookings: bookings}
	}
}

func (m bookingModel) book(req domain.BookingRequest) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		return bookedMsg{req: req, err: c.Book(context.Background(), req)}
	}
}

func (m bookingModel) Update(msg tea.Msg) (bookingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case studentLoadedMsg:
		m.resolved = true
		m.studentErr = ""
		if msg.err != nil {
			if cmd := expiredCmd(msg.err); cmd != nil {
				return m, cmd
			}
			m.studentErr = "Could not load your student record: " + errorText(msg.err)
		} else if msg.student != nil && msg.student.ID != "" {
			m.studentID = msg.student.ID
		}
		m.annotate()
		return m, nil

	case roomsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = errorText(msg.err)
			return m, expiredCmd(msg.err)
		}
		m.err = ""
		m.rooms = msg.rooms
		m.roomCursor = min(m.roomCursor, max(len(m.rooms)-1, 0))
		return m, nil

	case seatsLoadedMsg:
		if msg.roomID != m.room.ID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = errorText(msg.err)
			return m, expiredCmd(msg.err)
		}
		m.rawSeats, m.bookings = msg.seats, msg.bookings
		m.annotate()
		m.seatCursor = min(m.seatCursor, max(len(m.seats)-1, 0))
		return m, nil

	case bookedMsg:
		m.booking = false
		if msg.err != nil {
			m.err = errorText(msg.err)
			return m, expiredCmd(msg.err)
		}
		m.err = ""
		m.status = fmt.Sprintf("Booked %s in %s, %s to %s", m.seat.Label, m.room.Name, msg.req.StartTime, msg.req.EndTime)
		m.stage = stageSeats
		m.loading = true
		return m, m.loadSeats(m.room.ID)

	case tea.KeyMsg:
		if m.booking {
			return m, nil
		}
		switch m.stage {
		case stageRooms:
			return m.updateRooms(msg)
		case stageSeats:
			return m.updateSeats(msg)
		case stageSlots:
			return m.updateSlots(msg)
		}
	}
	return m, nil
}

func (m bookingModel) updateRooms(msg tea.KeyMsg) (bookingModel, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.roomCursor < len(m.rooms)-1 {
			m.roomCursor++
		}
	case "k", "up":
		if m.roomCursor > 0 {
			m.roomCursor--
		}
	case "enter":
		if len(m.rooms) == 0 {
			return m, nil
		}
		m.room = m.rooms[m.roomCursor]
		m.stage = stageSeats
		m.rawSeats, m.bookings, m.seats = nil, nil, nil
		m.seatCursor = 0
		m.loading = true
		m.err, m.status = "", ""
		return m, m.loadSeats(m.room.ID)
	case "r":
		m.loading = true
		return m, m.Init()
	}
	return m, nil
}

func (m bookingModel) updateSeats(msg tea.KeyMsg) (bookingModel, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.seatCursor < len(m.seats)-1 {
			m.seatCursor++
		}
	case "k", "up":
		if m.seatCursor > 0 {
			m.seatCursor--
		}
	case "enter":
		if len(m.seats) == 0 {
			return m, nil
		}
		if !m.resolved {
			m.status = "Loading your student record..."
			return m, nil
		}
		if m.studentID == "" {
			m.err = "No student record for this account"
			return m, nil
		}
		seat := m.seats[m.seatCursor]
		if !seat.Selectable() {
			m.err = "Seat already booked"
			return m, nil
		}
		m.seat = seat
		m.stage = stageSlots
		m.startIdx, m.endIdx, m.editEnd = -1, -1, false
		m.err, m.status = "", ""
	case "r":
		m.loading = true
		return m, m.loadSeats(m.room.ID)
	case "esc":
		m.stage = stageRooms
		m.err, m.status = "", ""
	}
	return m, nil
}

func (m bookingModel) updateSlots(msg tea.KeyMsg) (bookingModel, tea.Cmd) {
	idx := &m.startIdx
	if m.editEnd {
		idx = &m.endIdx
	}
	switch msg.String() {
	case "tab", "h", "l", "left", "right":
		m.editEnd = !m.editEnd
	case "j", "down":
		if *idx < len(domain.TimeSlots)-1 {
			*idx++
		}
	case "k", "up":
		if *idx > 0 {
			*idx--
		} else if *idx < 0 {
			*idx = 0
		}
	case "b", "enter":
		req := m.request()
		if err := domain.ValidateSlot(req.StartTime, req.EndTime); err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.booking = true
		m.err = ""
		m.status = "Booking..."
		return m, m.book(req)
	case "esc":
		m.stage = stageSeats
		m.err = ""
	}
	return m, nil
}

// annotate marks the loaded seats for the current student.
func (m *bookingModel) annotate() {
	m.seats = domain.AnnotateSeats(m.rawSeats, m.bookings, m.room.ID, m.studentID)
}

func (m bookingModel) request() domain.BookingRequest {
	return domain.BookingRequest{
		StudentID: m.studentID,
		RoomID:    m.room.ID,
		SeatID:    m.seat.ID,
		StartTime: slotAt(m.startIdx),
		EndTime:   slotAt(m.endIdx),
	}
}

func slotAt(i int) string {
	if i < 0 || i >= len(domain.TimeSlots) {
		return ""
	}
	return domain.TimeSlots[i]
}

func (m bookingModel) View() string {
	var b strings.Builder
	b.WriteString("\n")
	switch m.stage {
	case stageRooms:
		b.WriteString("  " + sectionHeaderStyle.Render("ROOMS") + "\n")
		switch {
		case m.loading:
			b.WriteString("  " + dimStyle.Render("Loading rooms...") + "\n")
		case len(m.rooms) == 0 && m.err == "":
			b.WriteString("  " + dimStyle.Render("No rooms available") + "\n")
		}
		for i, r := range m.rooms {
			line := "  " + normalStyle.Render(truncStr(r.Name, 40))
			if i == m.roomCursor {
				line = selectedRowBg.Render("> " + selectedStyle.Render(truncStr(r.Name, 40)))
			}
			b.WriteString(line + "\n")
		}

	case stageSeats:
		b.WriteString("  " + titleStyle.Render(m.room.Name) + "  " + sectionHeaderStyle.Render("SEATS") + "\n")
		if m.loading {
			b.WriteString("  " + dimStyle.Render("Loading seats...") + "\n")
		} else if len(m.seats) == 0 && m.err == "" {
			b.WriteString("  " + dimStyle.Render("No seats in this room") + "\n")
		}
		for i, s := range m.seats {
			b.WriteString(seatLine(s, i == m.seatCursor) + "\n")
		}

	case stageSlots:
		b.WriteString("  " + titleStyle.Render(m.room.Name) + "  " + selectedStyle.Render(m.seat.Label) + "\n\n")
		b.WriteString("  " + slotField("Start", slotAt(m.startIdx), !m.editEnd) + "    " +
			slotField("End", slotAt(m.endIdx), m.editEnd) + "\n")
		b.WriteString("  " + metaStyle.Render("Slots "+domain.TimeSlots[0]+" to "+domain.TimeSlots[len(domain.TimeSlots)-1]) + "\n")
	}

	if m.status != "" {
		b.WriteString("\n  " + successStyle.Render(m.status) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n  " + errorStyle.Render(m.err) + "\n")
	}
	if m.studentErr != "" {
		b.WriteString("\n  " + errorStyle.Render(m.studentErr) + "\n")
	}
	return b.String()
}

func seatLine(s domain.SeatView, selected bool) string {
	var label string
	switch {
	case s.IsMine:
		label = seatMineStyle.Render(s.Label + "  (yours)")
	case s.IsBooked:
		label = seatTakenStyle.Render(s.Label) + metaStyle.Render("  booked")
	default:
		label = seatFreeStyle.Render(s.Label)
	}
	if selected {
		return selectedRowBg.Render("> " + label)
	}
	return "  " + label
}

func slotField(name, value string, active bool) string {
	if value == "" {
		value = "--:--"
	}
	if active {
		return accentStyle.Render(name+" ") + selectedStyle.Underline(true).Render(value)
	}
	return dimStyle.Render(name+" ") + normalStyle.Render(value)
}

func (m bookingModel) helpKeys() string {
	switch m.stage {
	case stageSeats:
		return helpEntry("j/k", "nav") + "  " + helpEntry("enter", "pick seat") + "  " + helpEntry("r", "refresh") + "  " + helpEntry("esc", "rooms")
	case stageSlots:
		return helpEntry("tab", "start/end") + "  " + helpEntry("j/k", "time") + "  " + helpEntry("b", "book") + "  " + helpEntry("esc", "seats")
	default:
		return helpEntry("j/k", "nav") + "  " + helpEntry("enter", "open room") + "  " + helpEntry("r", "refresh")
	}
}
