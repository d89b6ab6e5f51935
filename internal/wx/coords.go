package wx

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	latLonBlockRe = regexp.MustCompile(`LAT\.\.\.LON((?:\s+\d{4,5})+)`)
	decimalPairRe = regexp.MustCompile(`(-?\d{1,2}\.\d+)[,\s]\s*(-?\d{1,3}\.\d+)`)
)

// ExtractCoordinates pulls polygon vertices from product text as
// [lat, lon] pairs. Preference order: a LAT...LON token block, decimal
// pairs anywhere in the text, then the caller-supplied CAP polygon.
// Longitudes from LAT...LON blocks are western hemisphere by
// convention and come back negative.
func ExtractCoordinates(text string, capPolygon [][2]float64) [][2]float64 {
	if pts := extractLatLonBlock(text); len(pts) > 0 {
		return pts
	}
	if pts := extractDecimalPairs(text); len(pts) > 0 {
		return pts
	}
	return capPolygon
}

func extractLatLonBlock(text string) [][2]float64 {
	m := latLonBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	tokens := strings.Fields(m[1])
	if len(tokens) < 2 {
		return nil
	}

	var pts [][2]float64
	for i := 0; i+1 < len(tokens); i += 2 {
		lat, ok1 := hundredths(tokens[i])
		lon, ok2 := hundredths(tokens[i+1])
		if !ok1 || !ok2 {
			continue
		}
		pts = append(pts, [2]float64{lat, -lon})
	}
	return pts
}

// hundredths converts a 4- or 5-digit integer token to degrees:
// 4085 -> 40.85, 12407 -> 124.07.
func hundredths(tok string) (float64, bool) {
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return float64(n) / 100, true
}

func extractDecimalPairs(text string) [][2]float64 {
	var pts [][2]float64
	for _, m := range decimalPairRe.FindAllStringSubmatch(text, -1) {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}
		pts = append(pts, [2]float64{lat, lon})
	}
	return pts
}
