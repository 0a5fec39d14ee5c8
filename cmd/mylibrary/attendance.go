package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/naveenspark/mylibrary/pkg/client"
	"github.com/naveenspark/mylibrary/pkg/domain"
)

var (
	monthYear  int
	monthMonth int
)

var attendanceCmd = &cobra.Command{
	Use:     "attendance",
	Aliases: []string{"att"},
	Short:   "Mark and review attendance",
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show whether you are marked present today",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withClient(cmd.Context(), os.Stdout, runAttendanceToday))
	},
}

var attendanceWiFiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Mark attendance from the library WiFi",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withClient(cmd.Context(), os.Stdout, runMarkWiFi))
	},
}

var attendanceQRCmd = &cobra.Command{
	Use:   "qr <value>",
	Short: "Mark attendance with a scanned QR value or URL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(withClient(cmd.Context(), os.Stdout, func(ctx context.Context, w io.Writer, c *client.Client) int {
			return runMarkQR(ctx, w, c, args[0])
		}))
	},
}

var attendanceMonthCmd = &cobra.Command{
	Use:   "month",
	Short: "Show the days marked present in a month",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		now := time.Now()
		year, month := now.Year(), now.Month()
		if monthYear != 0 {
			year = monthYear
		}
		if monthMonth != 0 {
			if monthMonth < 1 || monthMonth > 12 {
				fmt.Fprintln(os.Stdout, "Error: --month must be between 1 and 12")
				exitWith(exitUsage)
				return
			}
			month = time.Month(monthMonth)
		}
		exitWith(withClient(cmd.Context(), os.Stdout, func(ctx context.Context, w io.Writer, c *client.Client) int {
			return runAttendanceMonth(ctx, w, c, year, month, now)
		}))
	},
}

func init() {
	attendanceMonthCmd.Flags().IntVar(&monthYear, "year", 0, "Year (default: current)")
	attendanceMonthCmd.Flags().IntVar(&monthMonth, "month", 0, "Month 1-12 (default: current)")
	attendanceCmd.AddCommand(attendanceTodayCmd, attendanceWiFiCmd, attendanceQRCmd, attendanceMonthCmd)
	rootCmd.AddCommand(attendanceCmd)
}

// withClient runs fn with the authenticated client once a session is present.
func withClient(ctx context.Context, w io.Writer, fn func(ctx context.Context, w io.Writer, c *client.Client) int) int {
	return withSession(ctx, w, func(ctx context.Context, a *app, s domain.Session) int {
		if !requireSignedIn(w, s) {
			return exitUsage
		}
		return fn(ctx, w, a.client)
	})
}

func runAttendanceToday(ctx context.Context, w io.Writer, c *client.Client) int {
	att, err := c.AttendanceToday(ctx)
	if err != nil {
		return reportError(w, err)
	}
	if jsonOutput {
		return printJSON(w, struct {
			Present    bool               `json:"present"`
			Attendance *domain.Attendance `json:"attendance"`
		}{att != nil, att})
	}
	fmt.Fprintln(w, formatAttendanceHuman(att))
	return exitOK
}

func runMarkWiFi(ctx context.Context, w io.Writer, c *client.Client) int {
	att, err := c.MarkWiFi(ctx)
	if err != nil {
		return reportError(w, err)
	}
	return printMarked(w, "WiFi", att)
}

func runMarkQR(ctx context.Context, w io.Writer, c *client.Client, scanned string) int {
	if strings.TrimSpace(scanned) == "" {
		fmt.Fprintln(w, "Error: empty QR value")
		return exitUsage
	}
	att, err := c.MarkQR(ctx, scanned)
	if err != nil {
		return reportError(w, err)
	}
	return printMarked(w, "QR", att)
}

func printMarked(w io.Writer, method string, att *domain.Attendance) int {
	if jsonOutput {
		return printJSON(w, struct {
			OK         bool               `json:"ok"`
			Attendance *domain.Attendance `json:"attendance,omitempty"`
		}{true, att})
	}
	fmt.Fprintf(w, "Marked present via %s\n", method)
	return exitOK
}

// formatAttendanceHuman formats today's record for human readability
func formatAttendanceHuman(att *domain.Attendance) string {
	if att == nil {
		return "Not marked today."
	}
	parts := []string{"Present"}
	if att.Method != "" {
		parts = append(parts, att.Method)
	}
	if !att.Timestamp.IsZero() {
		parts = append(parts, att.Timestamp.Local().Format("15:04"))
	}
	return strings.Join(parts, " · ")
}

func runAttendanceMonth(ctx context.Context, w io.Writer, c *client.Client, year int, month time.Month, now time.Time) int {
	days, err := c.AttendanceMonth(ctx, year, month)
	if err != nil {
		return reportError(w, err)
	}
	st := domain.MonthStats(year, month, days, now)
	if jsonOutput {
		return printJSON(w, struct {
			Year          int      `json:"year"`
			Month         int      `json:"month"`
			Days          []string `json:"days"`
			Percentage    int      `json:"percentage"`
			Streak        int      `json:"streak"`
			LongestStreak int      `json:"longestStreak"`
		}{year, int(month), days, st.Percentage, st.Streak, st.LongestStreak})
	}
	fmt.Fprintln(w, formatMonthHuman(year, month, days, st))
	return exitOK
}

// formatMonthHuman formats a month of attendance for human readability
func formatMonthHuman(year int, month time.Month, days []string, st domain.Stats) string {
	present := domain.PresentSet(year, month, days)
	var marked []string
	for d := 1; d <= domain.DaysIn(year, month); d++ {
		if present[d] {
			marked = append(marked, fmt.Sprintf("%d", d))
		}
	}
	list := "none"
	if len(marked) > 0 {
		list = strings.Join(marked, ", ")
	}
	return fmt.Sprintf(`%s %d
Present:        %d days (%d%%)
Streak:         %d
Longest streak: %d
Days:           %s`,
		month, year,
		len(marked), st.Percentage,
		st.Streak,
		st.LongestStreak,
		list)
}
