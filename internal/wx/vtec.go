package wx

import (
	"regexp"
	"strings"
	"time"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
)

var (
	// /O.NEW.KSGX.TO.W.0002.260213T0340Z-260213T0415Z/
	legacyVTECRe = regexp.MustCompile(`/([OTEX])\.([A-Z]{3})\.([A-Z0-9]{4})\.([A-Z]{2})\.([A-Z])\.(\d{4})\.(\d{6}T\d{4}Z-\d{6}T\d{4}Z)/`)

	capVTECRe = regexp.MustCompile(`(?s)<parameter>\s*<valueName>\s*VTEC\s*</valueName>\s*<value>\s*([^<]+?)\s*</value>`)
)

const vtecTimeLayout = "060102T1504Z"

// ParseVTEC finds and decodes the first VTEC in text, either the legacy
// slashed form or a CAP <parameter> carrying one. Returns nil when no
// well-formed VTEC is present.
func ParseVTEC(text string) *alert.VTEC {
	payload, raw := firstVTECPayload(text)
	if payload == "" {
		return nil
	}

	fields := strings.Split(payload, ".")
	if len(fields) != 7 {
		return nil
	}

	v := &alert.VTEC{
		ProductClass:        fields[0],
		Action:              alert.Action(fields[1]),
		Office:              fields[2],
		Phenomena:           fields[3],
		Significance:        fields[4],
		EventTrackingNumber: fields[5],
		Raw:                 raw,
	}

	window := strings.SplitN(fields[6], "-", 2)
	if len(window) != 2 {
		return nil
	}
	v.Start = parseVTECTime(window[0])
	v.End = parseVTECTime(window[1])
	return v
}

// firstVTECPayload returns the dot-delimited payload of whichever VTEC
// form appears earliest in the text, plus the raw matched string.
func firstVTECPayload(text string) (payload, raw string) {
	legacyIdx := legacyVTECRe.FindStringIndex(text)
	capIdx := capVTECRe.FindStringIndex(text)

	switch {
	case legacyIdx != nil && (capIdx == nil || legacyIdx[0] <= capIdx[0]):
		raw = text[legacyIdx[0]:legacyIdx[1]]
		return strings.Trim(raw, "/"), raw
	case capIdx != nil:
		m := capVTECRe.FindStringSubmatch(text)
		raw = strings.Trim(m[1], "/ ")
		return raw, m[1]
	default:
		return "", ""
	}
}

// parseVTECTime decodes a YYMMDDTHHMMZ token. The all-zeros token
// (open-ended event) decodes to the zero time.
func parseVTECTime(tok string) time.Time {
	if tok == "000000T0000Z" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(vtecTimeLayout, tok, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
