// Package report prints per-user monthly scan statistics.
package report

import (
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"meterscan/models"
)

// Summary holds one user's counts for a month.
type Summary struct {
	Username string
	Month    string
	Total    int64
	Accepted int64
	Failed   int64
}

// MonthRange returns the UTC bounds [start, end) of a YYYY-MM month.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Run writes the month summary for username to w and, with list, one line per
// scan: id|file|text|accepted|failed|created.
func Run(gdb *gorm.DB, w io.Writer, username, month string, list bool) (*Summary, error) {
	var user models.User
	if err := gdb.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	start, end, err := MonthRange(month)
	if err != nil {
		return nil, err
	}

	s := &Summary{Username: user.Username, Month: month}
	row := gdb.Raw(`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN accepted THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0)
		FROM scans WHERE user_id = ? AND created_at >= ? AND created_at < ?`, user.ID, start, end).Row()
	if err := row.Scan(&s.Total, &s.Accepted, &s.Failed); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	Print(w, s)

	if list {
		var rows []models.Scan
		if err := gdb.Where("user_id = ? AND created_at >= ? AND created_at < ?", user.ID, start, end).Order("id").Find(&rows).Error; err != nil {
			return s, fmt.Errorf("fetch rows failed: %w", err)
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%d|%s|%s|%v|%v|%s\n", r.ID, r.FileName, r.Text, r.Accepted, r.Failed, r.CreatedAt.Format(time.RFC3339))
		}
	}
	return s, nil
}

// Print writes the summary header.
func Print(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", s.Username, s.Month)
	rate := 0.0
	if s.Total > 0 {
		rate = float64(s.Accepted) / float64(s.Total) * 100
	}
	fmt.Fprintf(w, "  scans=%d accepted=%d failed=%d acceptance=%.1f%%\n", s.Total, s.Accepted, s.Failed, rate)
}
