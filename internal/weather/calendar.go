package weather

import (
	"fmt"
	"strconv"
)

var monthOffsets = [12]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}

// Weekdays are the short day names indexed by DayOfWeek.
var Weekdays = [7]string{"Sun", "Mon", "Tues", "Wed", "Thurs", "Fri", "Sat"}

// DayOfWeek returns 0 (Sunday) through 6 (Saturday) for a Gregorian date,
// or -1 when the month or day is out of range.
func DayOfWeek(y, m, d int) int {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return -1
	}
	if m < 3 {
		y--
	}
	return (y + y/4 - y/100 + y/400 + monthOffsets[m-1] + d) % 7
}

// parseDate reads "YYYY-MM-DD" (anything after is ignored).
func parseDate(s string) (y, m, d int, err error) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return 0, 0, 0, fmt.Errorf("%w: bad date %q", ErrMalformedPayload, s)
	}
	if y, err = strconv.Atoi(s[0:4]); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: bad year in %q", ErrMalformedPayload, s)
	}
	if m, err = strconv.Atoi(s[5:7]); err != nil || m < 1 || m > 12 {
		return 0, 0, 0, fmt.Errorf("%w: bad month in %q", ErrMalformedPayload, s)
	}
	if d, err = strconv.Atoi(s[8:10]); err != nil || d < 1 || d > 31 {
		return 0, 0, 0, fmt.Errorf("%w: bad day in %q", ErrMalformedPayload, s)
	}
	return y, m, d, nil
}

// parseHour reads the hour from "YYYY-MM-DDTHH:MM".
func parseHour(s string) (int, error) {
	if len(s) < 13 || s[10] != 'T' {
		return 0, fmt.Errorf("%w: bad timestamp %q", ErrMalformedPayload, s)
	}
	h, err := strconv.Atoi(s[11:13])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: bad hour in %q", ErrMalformedPayload, s)
	}
	return h, nil
}

// HourLabel formats an hour as "12am", "Noon", "3pm" or, in 24-hour mode, "15:00".
func HourLabel(hour int, use24 bool) string {
	if use24 {
		return fmt.Sprintf("%02d:00", hour)
	}
	switch {
	case hour == 0:
		return "12am"
	case hour == 12:
		return "Noon"
	case hour < 12:
		return strconv.Itoa(hour) + "am"
	}
	return strconv.Itoa(hour%12) + "pm"
}
