package schedule

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/saiset-co/servicehub-client/types"
)

const (
	// GridCells is six weeks of seven days.
	GridCells = 42

	// Unscheduled is the sort key for a missing or unreadable time.
	Unscheduled = math.MaxInt32

	dateKeyLayout = "2006-01-02"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
}

var timeLayouts = []string{
	"15:04",
	"15:04:05",
	"03:04 PM",
	"3:04 PM",
}

// NormalizeDateKey turns a server date into YYYY-MM-DD. Unknown formats
// keep their first ten characters.
func NormalizeDateKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(dateKeyLayout)
		}
	}

	if len(trimmed) >= 10 {
		return trimmed[:10]
	}
	return trimmed
}

// ParseTimeToMinutes returns minutes since midnight, or Unscheduled.
func ParseTimeToMinutes(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Unscheduled
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(trimmed)); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return Unscheduled
}

func DateKey(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// GroupByDate buckets tickets by normalized date, each bucket ordered by
// scheduled time. Tickets without a date are left out.
func GroupByDate(tickets []types.ScheduledTicket) map[string][]types.ScheduledTicket {
	groups := make(map[string][]types.ScheduledTicket)

	for _, ticket := range tickets {
		key := NormalizeDateKey(ticket.ScheduledDate)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], ticket)
	}

	for _, day := range groups {
		slices.SortStableFunc(day, func(a, b types.ScheduledTicket) int {
			return ParseTimeToMinutes(a.ScheduledTime) - ParseTimeToMinutes(b.ScheduledTime)
		})
	}

	return groups
}

type Day struct {
	// InMonth is false for the padding cells around the month.
	InMonth bool
	Day     int
	Key     string
	Tickets []types.ScheduledTicket
}

type Month struct {
	Year  int
	Month time.Month
	Cells [GridCells]Day
}

// BuildMonth lays out a Sunday-first grid for the month and attaches each
// day's tickets from groups.
func BuildMonth(year int, month time.Month, groups map[string][]types.ScheduledTicket) *Month {
	m := &Month{Year: year, Month: month}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(first.Weekday())
	days := first.AddDate(0, 1, -1).Day()

	for d := 1; d <= days; d++ {
		key := DateKey(year, month, d)
		m.Cells[offset+d-1] = Day{
			InMonth: true,
			Day:     d,
			Key:     key,
			Tickets: groups[key],
		}
	}

	return m
}

// TicketsOn returns the tickets of an in-month day, or nil.
func (m *Month) TicketsOn(key string) []types.ScheduledTicket {
	for _, cell := range m.Cells {
		if cell.InMonth && cell.Key == key {
			return cell.Tickets
		}
	}
	return nil
}

// Contains reports whether key falls inside the month.
func (m *Month) Contains(key string) bool {
	t, err := time.Parse(dateKeyLayout, key)
	if err != nil {
		return false
	}
	return t.Year() == m.Year && t.Month() == m.Month
}

// DefaultSelection keeps selected when it is inside the month, otherwise
// picks today when today is inside it, otherwise the first of the month.
func (m *Month) DefaultSelection(selected string, today time.Time) string {
	if selected != "" && m.Contains(selected) {
		return selected
	}

	todayKey := today.Format(dateKeyLayout)
	if m.Contains(todayKey) {
		return todayKey
	}

	return DateKey(m.Year, m.Month, 1)
}

// Title renders e.g. "March 2024".
func (m *Month) Title() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// Weeks splits the grid into rows of seven.
func (m *Month) Weeks() [][]Day {
	weeks := make([][]Day, 0, GridCells/7)
	for i := 0; i < GridCells; i += 7 {
		weeks = append(weeks, m.Cells[i:i+7])
	}
	return weeks
}
