package task

import (
	"fmt"
	"time"
)

const (
	minute = 60
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
	month  = 30 * day
	year   = 365 * day
)

// units is ordered largest first. from is the smallest magnitude a unit is
// used for.
var units = []struct {
	from, size int64
	name       string
	next       int64
	nextName   string
}{
	{year, year, "y", month, "mo"},
	{3 * month, month, "mo", week, "w"},
	{2 * week, week, "w", day, "d"},
	{day, day, "d", hour, "h"},
	{hour, hour, "h", minute, "min"},
	{minute, minute, "min", 1, "s"},
}

// FormatDuration renders d in its largest fitting unit, such as "2d" or
// "-3h". Months only start at three and weeks at two, so a month reads as
// "4w" and a week as "7d". With precise set the next smaller unit follows
// ("1d1h").
func FormatDuration(d time.Duration, precise bool) string {
	seconds := int64(d / time.Second)
	sign := ""
	if seconds < 0 {
		seconds = -seconds
		sign = "-"
	}
	for _, u := range units {
		if seconds < u.from {
			continue
		}
		if !precise {
			return fmt.Sprintf("%s%d%s", sign, seconds/u.size, u.name)
		}
		return fmt.Sprintf("%s%d%s%d%s", sign, seconds/u.size, u.name, seconds%u.size/u.next, u.nextName)
	}
	return fmt.Sprintf("%s%ds", sign, seconds)
}

// Relative renders the time from from until to. A due date in the past comes
// out negative.
func Relative(from, to time.Time, precise bool) string {
	return FormatDuration(to.Sub(from), precise)
}
