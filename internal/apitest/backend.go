// Package apitest runs an in-process fake of the library backend for tests.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// Request is one request the backend received.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	ContentType   string
	RequestID     string
	Body          string
}

// Backend is a fake library API. The zero value is not usable; call New.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []Request

	// Logins maps an ID token to the envelope /api/login returns for it.
	// Unknown tokens get success:false.
	Logins map[string]domain.LoginResponse
	// Expired tokens are answered with 401 on protected routes.
	Expired map[string]bool

	Students   map[string]domain.Student
	Rooms      []domain.Room
	Seats      []domain.Seat
	Bookings   []domain.Booking
	Today      *domain.Attendance
	Days       []string
	WiFiOK     bool
	QRTokens   map[string]bool
	Registered []domain.RegisterRequest
}

// New starts a fake backend. Callers must Close it.
func New() *Backend {
	b := &Backend{
		Logins:   map[string]domain.LoginResponse{},
		Expired:  map[string]bool{},
		Students: map[string]domain.Student{},
		QRTokens: map[string]bool{},
	}
	b.Server = httptest.NewServer(b.router())
	return b
}

// URL is the backend's base URL.
func (b *Backend) URL() string { return b.Server.URL }

// Close shuts the server down.
func (b *Backend) Close() { b.Server.Close() }

// Requests returns a copy of every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Do runs fn with the backend's state locked, for tests that mutate fixtures
// while the server is live.
func (b *Backend) Do(fn func(b *Backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *Backend) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(b.record)
	r.HandleFunc("/api/login", b.handleLogin).Methods("POST")
	r.HandleFunc("/api/register", b.handleRegister).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(b.requireBearer)
	api.HandleFunc("/attendence/today", b.handleToday).Methods("GET")
	api.HandleFunc("/attendence/mark-wifi", b.handleMarkWiFi).Methods("POST")
	api.HandleFunc("/attendence/mark-qr", b.handleMarkQR).Methods("POST")
	api.HandleFunc("/attendence/month", b.handleMonth).Methods("GET")
	api.HandleFunc("/students/by-uid", b.handleStudent).Methods("GET")
	api.HandleFunc("/admin/rooms/list", b.handleRooms).Methods("GET")
	api.HandleFunc("/admin/seats/list", b.handleSeats).Methods("GET")
	api.HandleFunc("/booking/list", b.handleBookings).Methods("GET")
	api.HandleFunc("/booking", b.handleBook).Methods("POST")
	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          string(body),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		expired := b.Expired[token]
		b.mu.Unlock()
		if !ok || token == "" || expired {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad request"})
		return
	}
	b.mu.Lock()
	resp, ok := b.Logins[req.IDToken]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, prev := range b.Registered {
		if prev.Email == req.Email {
			writeJSON(w, http.StatusOK, map[string]string{"error": "Email already registered"})
			return
		}
	}
	b.Registered = append(b.Registered, req)
	writeJSON(w, http.StatusOK, map[string]string{"message": "registered"})
}

func (b *Backend) handleToday(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, domain.TodayResponse{Attendance: b.Today})
}

func (b *Backend) handleMarkWiFi(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.WiFiOK {
		writeJSON(w, http.StatusOK, domain.MarkResponse{Message: "Not connected to library WiFi"})
		return
	}
	b.Today = &domain.Attendance{Method: "wifi"}
	writeJSON(w, http.StatusOK, domain.MarkResponse{OK: true, Attendance: b.Today})
}

func (b *Backend) handleMarkQR(w http.ResponseWriter, r *http.Request) {
	var req domain.MarkQRRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.QRTokens[req.Token] {
		writeJSON(w, http.StatusOK, domain.MarkResponse{Message: "Invalid QR"})
		return
	}
	b.Today = &domain.Attendance{Method: "qr"}
	writeJSON(w, http.StatusOK, domain.MarkResponse{OK: true, Attendance: b.Today})
}

func (b *Backend) handleMonth(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("year") + "-"
	if m := r.URL.Query().Get("month"); len(m) == 1 {
		prefix += "0" + m
	} else {
		prefix += m
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	days := []string{}
	for _, d := range b.Days {
		if strings.HasPrefix(d, prefix) {
			days = append(days, d)
		}
	}
	writeJSON(w, http.StatusOK, domain.MonthResponse{OK: true, Days: days})
}

func (b *Backend) handleStudent(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.Students[r.URL.Query().Get("uid")]
	if !ok {
		writeJSON(w, http.StatusOK, domain.StudentResponse{})
		return
	}
	writeJSON(w, http.StatusOK, domain.StudentResponse{Student: &s})
}

func (b *Backend) handleRooms(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"rooms": b.Rooms})
}

func (b *Backend) handleSeats(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"seats": b.Seats})
}

func (b *Backend) handleBookings(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []domain.Booking{}
	for _, bk := range b.Bookings {
		if bk.RoomID == "" || bk.RoomID == roomID {
			out = append(out, bk)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (b *Backend) handleBook(w http.ResponseWriter, r *http.Request) {
	var req domain.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.BookingResponse{Message: "bad request"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bk := range b.Bookings {
		if bk.SeatID == req.SeatID && bk.StudentID != req.StudentID {
			writeJSON(w, http.StatusOK, domain.BookingResponse{Message: "Seat already booked"})
			return
		}
	}
	b.Bookings = append(b.Bookings, domain.Booking{
		SeatID:    req.SeatID,
		StudentID: req.StudentID,
		RoomID:    req.RoomID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	writeJSON(w, http.StatusOK, domain.BookingResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
