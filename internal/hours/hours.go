// Package hours evaluates recurring daily business-hours windows.
package hours

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ValidClock reports whether s is a 24h HH:MM time.
func ValidClock(s string) bool {
	return clockPattern.MatchString(s)
}

// ValidTimezone reports whether tz names a loadable IANA zone.
func ValidTimezone(tz string) bool {
	tz = strings.TrimSpace(tz)
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Within reports whether at falls inside the daily [start, end] window in
// timezone. When end is earlier than start the window wraps past midnight.
// An unloadable timezone is treated as UTC; callers validate upstream.
func Within(timezone, start, end string, at time.Time) bool {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	current := local.Hour()*60 + local.Minute()
	startMinutes := toMinutes(start)
	endMinutes := toMinutes(end)

	if endMinutes < startMinutes {
		return current >= startMinutes || current <= endMinutes
	}
	return current >= startMinutes && current <= endMinutes
}

func toMinutes(hhmm string) int {
	h, m, _ := strings.Cut(hhmm, ":")
	hour, _ := strconv.Atoi(strings.TrimSpace(h))
	minute, _ := strconv.Atoi(strings.TrimSpace(m))
	return hour*60 + minute
}
