// Package wx contains the pure text parsers for NWS weather products:
// VTEC decoding, human timestamp parsing, UGC expansion, coordinate
// extraction, message cleanup and section extraction. Nothing in this
// package performs I/O; missing structure yields zero values, never an
// error visible to the pipeline.
package wx

import "time"

// zoneOffsets maps NWS-style timezone abbreviations to fixed UTC
// offsets. Product text never carries IANA zone names.
var zoneOffsets = map[string]time.Duration{
	"PST":  -8 * time.Hour,
	"PDT":  -7 * time.Hour,
	"MST":  -7 * time.Hour,
	"MDT":  -6 * time.Hour,
	"CST":  -6 * time.Hour,
	"CDT":  -5 * time.Hour,
	"EST":  -5 * time.Hour,
	"EDT":  -4 * time.Hour,
	"AKST": -9 * time.Hour,
	"AKDT": -8 * time.Hour,
	"HST":  -10 * time.Hour,
	"GMT":  0,
	"UTC":  0,
}

// ZoneOffset returns the UTC offset for an NWS timezone abbreviation.
func ZoneOffset(abbr string) (time.Duration, bool) {
	d, ok := zoneOffsets[abbr]
	return d, ok
}
