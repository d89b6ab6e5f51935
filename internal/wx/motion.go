package wx

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
)

// TIME...MOT...LOC 0339Z 245DEG 34KT 3459 11703
var motionRe = regexp.MustCompile(`TIME\.\.\.MOT\.\.\.LOC\s+(\d{4})Z\s+(\d{1,3})DEG\s+(\d{1,3})KT((?:\s+\d{4,5})+)`)

// ParseEventMotion decodes a TIME...MOT...LOC line. The event time only
// carries HHMM, so the full instant is reconstructed from the issuance
// day, shifting ±1 day when that brings it within 12 hours of issued.
func ParseEventMotion(text string, issued time.Time) *alert.EventMotion {
	m := motionRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	heading, _ := strconv.Atoi(m[2])
	speed, _ := strconv.Atoi(m[3])

	tokens := strings.Fields(m[4])
	if len(tokens) < 2 {
		return nil
	}
	lat, ok1 := hundredths(tokens[0])
	lon, ok2 := hundredths(tokens[1])
	if !ok1 || !ok2 {
		return nil
	}
	lon = -lon

	motion := &alert.EventMotion{
		Raw:        strings.TrimSpace(m[0]),
		Type:       motionType(text),
		HeadingDeg: heading,
		SpeedKt:    speed,
		Lat:        lat,
		Lon:        lon,
		Coord:      [2]float64{lon, lat},
	}

	if t, ok := motionTime(m[1], issued); ok {
		motion.TimeISO = t.Format(time.RFC3339)
	}
	return motion
}

// motionTime combines the HHMMZ token with the issuance day, trying the
// same day and its neighbors and keeping the candidate nearest issued
// when it falls within 12 hours.
func motionTime(hhmm string, issued time.Time) (time.Time, bool) {
	hour, err1 := strconv.Atoi(hhmm[:2])
	minute, err2 := strconv.Atoi(hhmm[2:])
	if err1 != nil || err2 != nil || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	if issued.IsZero() {
		return time.Time{}, false
	}

	base := issued.UTC()
	var best time.Time
	var bestDelta time.Duration = -1
	for _, dayShift := range []int{0, -1, 1} {
		d := base.AddDate(0, 0, dayShift)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
		delta := candidate.Sub(base)
		if delta < 0 {
			delta = -delta
		}
		if delta <= 12*time.Hour && (bestDelta < 0 || delta < bestDelta) {
			best = candidate
			bestDelta = delta
		}
	}
	if bestDelta < 0 {
		return time.Time{}, false
	}
	return best, true
}

func motionType(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "TORNADO"):
		return "tornado"
	case strings.Contains(upper, "FLASH FLOOD") || strings.Contains(upper, "FLOOD"):
		return "flood"
	default:
		return "storm"
	}
}
