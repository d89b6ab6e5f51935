// Package cap parses Common Alerting Protocol v1.2 blocks embedded in
// NWWS-OI product text.
// Based on https://docs.oasis-open.org/emergency/cap/v1.2/CAP-v1.2-os.pdf
// and the NWS IPAWS profile.
package cap

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Alert is the root element of a CAP message.
type Alert struct {
	XMLName    xml.Name `xml:"alert"`
	Xmlns      string   `xml:"xmlns,attr"`
	Identifier string   `xml:"identifier"`
	Sender     string   `xml:"sender"`
	Sent       string   `xml:"sent"`
	Status     string   `xml:"status"`  // Actual, Exercise, System, Test, Draft
	MsgType    string   `xml:"msgType"` // Alert, Update, Cancel, Ack, Error
	Source     string   `xml:"source"`
	Scope      string   `xml:"scope"` // Public, Restricted, Private
	Code       []string `xml:"code"`
	Note       string   `xml:"note"`
	References string   `xml:"references"`
	Info       []Info   `xml:"info"`
}

// Info contains the details of the alert.
type Info struct {
	Language     string      `xml:"language"`
	Category     []string    `xml:"category"`
	Event        string      `xml:"event"` // e.g. "Special Weather Statement"
	ResponseType []string    `xml:"responseType"`
	Urgency      string      `xml:"urgency"`
	Severity     string      `xml:"severity"`
	Certainty    string      `xml:"certainty"`
	Effective    string      `xml:"effective"`
	Onset        string      `xml:"onset"`
	Expires      string      `xml:"expires"`
	SenderName   string      `xml:"senderName"`
	Headline     string      `xml:"headline"`
	Description  string      `xml:"description"`
	Instruction  string      `xml:"instruction"`
	Parameter    []ValuePair `xml:"parameter"` // VTEC, NWSheadline, etc.
	Area         []Area      `xml:"area"`
}

// Area describes a geographic area.
type Area struct {
	AreaDesc string      `xml:"areaDesc"`
	Polygon  []string    `xml:"polygon"` // space-separated "lat,lon" pairs
	Circle   []string    `xml:"circle"`
	Geocode  []ValuePair `xml:"geocode"` // SAME and UGC codes
}

// ValuePair is a name-value pair used in parameters and geocodes.
type ValuePair struct {
	ValueName string `xml:"valueName"`
	Value     string `xml:"value"`
}

// Block is a CAP XML block located inside a larger product body,
// together with any preamble bytes that preceded it.
type Block struct {
	XML      string
	Preamble string
	Trailer  string
}

// FindBlock locates an <?xml ... <alert ... </alert> run inside raw
// product text. Returns nil when no complete block is present.
func FindBlock(text string) *Block {
	start := strings.Index(text, "<?xml")
	alertStart := strings.Index(text, "<alert")
	if alertStart < 0 {
		return nil
	}
	if start < 0 || start > alertStart {
		start = alertStart
	}

	end := strings.Index(text, "</alert>")
	if end < 0 || end < alertStart {
		return nil
	}
	end += len("</alert>")

	return &Block{
		XML:      text[start:end],
		Preamble: text[:start],
		Trailer:  text[end:],
	}
}

// Parse unmarshals CAP XML. Returns nil when the text does not contain
// an alert element or is not well-formed.
func Parse(xmlText string) *Alert {
	xmlText = strings.TrimSpace(xmlText)
	if !strings.Contains(xmlText, "<alert") {
		return nil
	}

	var alert Alert
	if err := xml.Unmarshal([]byte(xmlText), &alert); err != nil {
		return nil
	}
	return &alert
}

// PrimaryInfo returns the first (usually only) Info block.
func (a *Alert) PrimaryInfo() *Info {
	if len(a.Info) > 0 {
		return &a.Info[0]
	}
	return nil
}

// ParameterValue returns the value of a parameter by name.
func (i *Info) ParameterValue(name string) string {
	for _, param := range i.Parameter {
		if param.ValueName == name {
			return param.Value
		}
	}
	return ""
}

// GeocodeValue returns the value of a geocode by name (e.g. "SAME", "UGC").
func (a *Area) GeocodeValue(name string) string {
	for _, code := range a.Geocode {
		if code.ValueName == name {
			return code.Value
		}
	}
	return ""
}

// UGCCodes returns all UGC values from the area, space-split.
func (a *Area) UGCCodes() []string {
	for _, code := range a.Geocode {
		if code.ValueName == "UGC" {
			return strings.Fields(code.Value)
		}
	}
	return nil
}

// PolygonPoints parses the first polygon of the primary info area into
// [lat, lon] pairs. CAP polygons are "lat,lon lat,lon ..." runs.
func (a *Alert) PolygonPoints() [][2]float64 {
	info := a.PrimaryInfo()
	if info == nil {
		return nil
	}

	for _, area := range info.Area {
		for _, poly := range area.Polygon {
			if pts := parsePolygon(poly); len(pts) > 0 {
				return pts
			}
		}
	}
	return nil
}

func parsePolygon(poly string) [][2]float64 {
	var pts [][2]float64
	for _, pair := range strings.Fields(poly) {
		coords := strings.Split(pair, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err1 := strconv.ParseFloat(coords[0], 64)
		lon, err2 := strconv.ParseFloat(coords[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		pts = append(pts, [2]float64{lat, lon})
	}
	return pts
}

// AllUGC gathers UGC identifiers from every area geocode of every info
// block, preserving order and dropping duplicates.
func (a *Alert) AllUGC() []string {
	var out []string
	seen := make(map[string]bool)
	for _, info := range a.Info {
		for _, area := range info.Area {
			for _, id := range area.UGCCodes() {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out
}
