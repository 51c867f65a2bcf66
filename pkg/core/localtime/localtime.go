// Package localtime holds the Bangkok-local time helpers used across the
// renderers, the scheduler and the leave flow. The service's whole notion
// of "today" is Bangkok wall-clock time.
package localtime

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Zone is a fixed UTC+7 offset. Thailand has no DST, so a fixed zone is
// exact and avoids a tzdata dependency on the host.
var Zone = time.FixedZone("Asia/Bangkok", 7*60*60)

// thaiMonths are the th-TH short month names, January first.
var thaiMonths = []string{
	"ม.ค.", "ก.พ.", "มี.ค.", "เม.ย.", "พ.ค.", "มิ.ย.",
	"ก.ค.", "ส.ค.", "ก.ย.", "ต.ค.", "พ.ย.", "ธ.ค.",
}

// DateString returns the Bangkok calendar date of t in YYYY-MM-DD form.
func DateString(t time.Time) string {
	return t.In(Zone).Format("2006-01-02")
}

// ThaiDate formats t as a th-TH short date with a Buddhist-era year,
// e.g. "15 ธ.ค. 2568".
func ThaiDate(t time.Time) string {
	local := t.In(Zone)
	return fmt.Sprintf("%d %s %d", local.Day(), thaiMonths[local.Month()-1], local.Year()+543)
}

// ThaiDateFromISO formats an ISO YYYY-MM-DD date the same way ThaiDate
// does. Malformed input falls back to the Thai date of fallback.
func ThaiDateFromISO(iso string, fallback time.Time) string {
	d, err := time.ParseInLocation("2006-01-02", iso, Zone)
	if err != nil {
		return ThaiDate(fallback)
	}
	return ThaiDate(d)
}

// TimeOfDay returns the Bangkok wall-clock time of t as HH:MM.
func TimeOfDay(t time.Time) string {
	return t.In(Zone).Format("15:04")
}

var numericDate = regexp.MustCompile(`(\d{1,2})[\/\-\.](\d{1,2})[\/\-\.](\d{2,4})`)

// ParseLeaveDate parses a numeric day/month/year date as written in leave
// requests. Two-digit years are 20xx; years above 2400 are Buddhist era
// and converted to the common era.
func ParseLeaveDate(s string) (time.Time, error) {
	parts := numericDate.FindStringSubmatch(s)
	if parts == nil {
		return time.Time{}, fmt.Errorf("invalid date format: %q", s)
	}

	day, _ := strconv.Atoi(parts[1])
	month, _ := strconv.Atoi(parts[2])
	year, _ := strconv.Atoi(parts[3])

	if year < 100 {
		year += 2000
	}
	if year > 2400 {
		year -= 543
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, Zone)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, fmt.Errorf("invalid calendar date: %q", s)
	}
	return d, nil
}

// EndOfDay returns the last instant of d's Bangkok calendar day.
func EndOfDay(d time.Time) time.Time {
	local := d.In(Zone)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999_000_000, Zone)
}

// NextMidnight returns the first Bangkok midnight strictly after now.
func NextMidnight(now time.Time) time.Time {
	local := now.In(Zone)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Zone)
	return next.AddDate(0, 0, 1)
}
