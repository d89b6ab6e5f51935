package builder

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-xmlfmt/xmlfmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
	"github.com/sparkalerts/nwws-ingest/internal/cap"
	"github.com/sparkalerts/nwws-ingest/internal/wx"
)

// capMeta is what the builder keeps from a parsed CAP block for use
// after the text has been rewritten.
type capMeta struct {
	identifier string
	event      string
	headline   string
	sent       time.Time
	expires    time.Time
	polygon    [][2]float64 // [lat, lon]
	ugc        []string
}

func newCAPMeta(a *cap.Alert) *capMeta {
	meta := &capMeta{}
	if a == nil {
		return meta
	}

	meta.identifier = a.Identifier
	meta.sent = parseCAPTime(a.Sent)
	meta.polygon = a.PolygonPoints()
	meta.ugc = a.AllUGC()

	info := a.PrimaryInfo()
	if info == nil {
		return meta
	}
	meta.event = info.Event
	meta.expires = parseCAPTime(info.Expires)
	meta.headline = capHeadline(info)
	return meta
}

// capHeadline prefers the NWSheadline parameter, stripping the literal
// prefix some offices leave in the value.
func capHeadline(info *cap.Info) string {
	headline := info.ParameterValue("NWSheadline")
	if headline == "" {
		headline = info.Headline
	}
	return strings.TrimSpace(strings.TrimPrefix(headline, "NWSheadline "))
}

func parseCAPTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// composeCAPText renders a CAP block as the compact textual product the
// rest of the pipeline understands: sender line, VTEC line when
// present, sent-time line, description, instruction, and a
// reconstructed LAT...LON line from the polygon.
func composeCAPText(a *cap.Alert) string {
	info := a.PrimaryInfo()

	var lines []string
	if info != nil && info.SenderName != "" {
		lines = append(lines, expandSender(info.SenderName))
	}
	if info != nil {
		if vtec := strings.TrimSpace(info.ParameterValue("VTEC")); vtec != "" {
			lines = append(lines, vtec)
		}
	}
	if sent := parseCAPTime(a.Sent); !sent.IsZero() {
		lines = append(lines, sent.Format("304 PM MST Mon Jan 2 2006"))
	}
	if info != nil && info.Description != "" {
		lines = append(lines, "", strings.TrimSpace(info.Description))
	}
	if info != nil && info.Instruction != "" {
		lines = append(lines, "", strings.TrimSpace(info.Instruction))
	}
	if latLon := reconstructLatLon(a.PolygonPoints()); latLon != "" {
		lines = append(lines, "", latLon)
	}
	return strings.Join(lines, "\n") + "\n"
}

// expandSender rewrites "NWS San Diego CA" to
// "National Weather Service San Diego CA".
func expandSender(sender string) string {
	if strings.HasPrefix(sender, "NWS ") {
		return "National Weather Service " + strings.TrimPrefix(sender, "NWS ")
	}
	return sender
}

// reconstructLatLon renders polygon vertices back into the classic
// LAT...LON token line of hundredths-of-degree integers.
func reconstructLatLon(points [][2]float64) string {
	if len(points) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(points)*2)
	for _, pt := range points {
		lat := int(math.Round(pt[0] * 100))
		lon := int(math.Round(math.Abs(pt[1]) * 100))
		if lat <= 0 || lon <= 0 {
			continue
		}
		tokens = append(tokens, fmt.Sprintf("%d %d", lat, lon))
	}
	if len(tokens) == 0 {
		return ""
	}
	return "LAT...LON " + strings.Join(tokens, " ")
}

// capAgreesWith reports whether the CAP block carries a VTEC naming the
// same event as the one found in the surrounding legacy text.
func capAgreesWith(a *cap.Alert, outside *alert.VTEC) bool {
	info := a.PrimaryInfo()
	if info == nil {
		return false
	}
	inner := wx.ParseVTEC(info.ParameterValue("VTEC"))
	if inner == nil {
		return false
	}
	return inner.Phenomena == outside.Phenomena && inner.Significance == outside.Significance
}

// logRejectedXML records a rejected all-XML body at debug level, pretty
// printed for operator eyes.
func logRejectedXML(raw string) {
	if log.Logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	snippet := raw
	if len(snippet) > 2000 {
		snippet = snippet[:2000]
	}
	log.Debug().Str("body", xmlfmt.FormatXML(snippet, "", "  ")).Msg("Rejected stanza: raw XML body")
}
