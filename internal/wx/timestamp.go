package wx

import (
	"regexp"
	"strconv"
	"time"
)

// 1037 PM PST Fri Feb 13 2026
// 9:28 PM MST Fri Feb 13 2026
// 839 PM CDT Mon Jun 2 2025
var issuedTimeRe = regexp.MustCompile(`\b(\d{1,2}):?(\d{2})\s+(AM|PM)\s+([A-Z]{2,4})\s+[A-Za-z]{3}\s+([A-Za-z]{3})\s+(\d{1,2})\s+(\d{4})\b`)

var monthsByAbbr = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseIssuedTime extracts a human-readable NWS issuance timestamp such
// as "1037 PM PST Fri Feb 13 2026" and converts it to UTC. Three-digit
// hour forms ("839 PM") parse as H MM. An unknown timezone abbreviation
// means the match is discarded.
func ParseIssuedTime(text string) (time.Time, bool) {
	m := issuedTimeRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 12 || minute > 59 {
		return time.Time{}, false
	}
	if m[3] == "PM" && hour != 12 {
		hour += 12
	} else if m[3] == "AM" && hour == 12 {
		hour = 0
	}

	offset, ok := ZoneOffset(m[4])
	if !ok {
		return time.Time{}, false
	}

	month, ok := monthsByAbbr[m[5]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[6])
	year, _ := strconv.Atoi(m[7])

	loc := time.FixedZone(m[4], int(offset/time.Second))
	return time.Date(year, month, day, hour, minute, 0, 0, loc).UTC(), true
}
