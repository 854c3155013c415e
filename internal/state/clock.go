package state

import (
	"strings"
	"time"
)

// Clock returns the location used for the displayed clock and the dim
// window. A loadable IANA zone wins; otherwise the stored UTC offset is
// used as a fixed zone, one hour ahead when DST is switched on.
func (s *State) Clock() *time.Location {
	loc := s.settings.Location
	if loc.TimeZone != "" {
		if z, err := time.LoadLocation(loc.TimeZone); err == nil {
			return z
		}
	}

	secs, ok := parseOffset(loc.UTCOffset)
	if !ok {
		secs = 0
	}
	if s.settings.Display.UseDST {
		secs += 3600
	}
	if secs == 0 {
		return time.UTC
	}
	return time.FixedZone(formatOffset(secs), secs)
}

// normalizeOffset turns "-0500" into "-05:00" and leaves other input alone.
func normalizeOffset(s string) string {
	if len(s) == 5 && (s[0] == '+' || s[0] == '-') && !strings.Contains(s, ":") {
		return s[:3] + ":" + s[3:]
	}
	return s
}

func validOffset(s string) bool {
	_, ok := parseOffset(s)
	return ok
}

// parseOffset parses "+HH:MM" / "-HH:MM" into seconds east of UTC.
func parseOffset(s string) (int, bool) {
	s = normalizeOffset(s)
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return 0, false
	}
	digits := []byte{s[1], s[2], s[4], s[5]}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	hours := int(digits[0]-'0')*10 + int(digits[1]-'0')
	minutes := int(digits[2]-'0')*10 + int(digits[3]-'0')
	if hours > 14 || minutes > 59 {
		return 0, false
	}
	secs := hours*3600 + minutes*60
	if s[0] == '-' {
		secs = -secs
	}
	return secs, true
}

func formatOffset(secs int) string {
	sign := byte('+')
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	h, m := secs/3600, (secs%3600)/60
	return string([]byte{sign, byte('0' + h/10), byte('0' + h%10), ':', byte('0' + m/10), byte('0' + m%10)})
}
