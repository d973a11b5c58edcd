package service

import (
	"fmt"
	"time"

	"task-tracker/internal/models"
)

// Window is a reporting period ending at the current time.
type Window int

const (
	Day Window = iota
	Week
	Month
)

func (w Window) String() string {
	switch w {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// Bounds returns the inclusive [from, to] range of the window at now, in now's location.
//
//	day:   today 00:00:00 .. today 23:59:59
//	week:  now - 7 days .. now
//	month: first day of the month 00:00:00 .. now
func (w Window) Bounds(now time.Time) (from, to time.Time) {
	now = now.Truncate(time.Second)
	y, m, d := now.Date()
	loc := now.Location()
	switch w {
	case Day:
		from = time.Date(y, m, d, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1).Add(-time.Second)
	case Week:
		return now.AddDate(0, 0, -7), now
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), now
	}
}

func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(models.CreatedAtLayout)
}
