package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// AttendanceToday returns today's attendance record, or nil when none is marked.
func (c *Client) AttendanceToday(ctx context.Context) (*domain.Attendance, error) {
	var resp domain.TodayResponse
	if err := c.get(ctx, "/api/attendence/today", &resp); err != nil {
		return nil, fmt.Errorf("client.AttendanceToday: %w", err)
	}
	return resp.Attendance, nil
}

// MarkWiFi asks the backend to mark attendance from the current network.
func (c *Client) MarkWiFi(ctx context.Context) (*domain.Attendance, error) {
	var resp domain.MarkResponse
	if err := c.post(ctx, "/api/attendence/mark-wifi", nil, &resp); err != nil {
		return nil, fmt.Errorf("client.MarkWiFi: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("client.MarkWiFi: %w", rejected("mark-wifi", resp.Message))
	}
	return resp.Attendance, nil
}

// MarkQR marks attendance with a scanned QR value. Full QR URLs are reduced
// to their token parameter.
func (c *Client) MarkQR(ctx context.Context, scanned string) (*domain.Attendance, error) {
	token := domain.ExtractQRToken(scanned)
	if token == "" {
		return nil, fmt.Errorf("client.MarkQR: %w", rejected("mark-qr", "empty QR token"))
	}
	var resp domain.MarkResponse
	if err := c.post(ctx, "/api/attendence/mark-qr", domain.MarkQRRequest{Token: token}, &resp); err != nil {
		return nil, fmt.Errorf("client.MarkQR: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("client.MarkQR: %w", rejected("mark-qr", resp.Message))
	}
	return resp.Attendance, nil
}

// AttendanceMonth returns the ISO dates marked present in the given month.
func (c *Client) AttendanceMonth(ctx context.Context, year int, month time.Month) ([]string, error) {
	params := url.Values{}
	params.Set("year", strconv.Itoa(year))
	params.Set("month", strconv.Itoa(int(month)))

	var resp domain.MonthResponse
	if err := c.get(ctx, "/api/attendence/month?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("client.AttendanceMonth: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("client.AttendanceMonth: %w", rejected("month", resp.Message))
	}
	return resp.Days, nil
}

func rejected(op, msg string) *RejectedError {
	if msg == "" {
		msg = op + " failed"
	}
	return &RejectedError{Op: op, Message: msg}
}
