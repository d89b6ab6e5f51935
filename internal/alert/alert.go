// Package alert defines the normalized alert record produced by the
// ingest pipeline and served over the HTTP API.
package alert

import "time"

// Ring is a closed polygon ring of [lon, lat] points. Longitude first
// for GeoJSON wire compatibility.
type Ring [][2]float64

// Closed reports whether the ring's first and last points are equal.
func (r Ring) Closed() bool {
	if len(r) < 2 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// EventMotion describes a TIME...MOT...LOC line from product text.
type EventMotion struct {
	Raw        string     `json:"raw"`
	TimeISO    string     `json:"timeIso,omitempty"`
	Type       string     `json:"type,omitempty"` // storm, tornado, flood
	HeadingDeg int        `json:"headingDeg,omitempty"`
	SpeedKt    int        `json:"speedKt,omitempty"`
	Lat        float64    `json:"lat,omitempty"`
	Lon        float64    `json:"lon,omitempty"`
	Coord      [2]float64 `json:"coord"`
}

// Properties carries ingest metadata alongside the alert body. The
// recievedTime key spelling is part of the wire format.
type Properties struct {
	ReceivedTime        string `json:"recievedTime,omitempty"`
	VTEC                string `json:"vtec,omitempty"`
	Phenomena           string `json:"phenomena,omitempty"`
	Significance        string `json:"significance,omitempty"`
	ProductType         string `json:"product_type,omitempty"`
	EventTrackingNumber string `json:"event_tracking_number,omitempty"`
}

// Alert is one currently-active alert. Empty optional fields are
// omitted from JSON rather than emitted as empty strings.
type Alert struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Sender      string            `json:"sender,omitempty"`
	Headline    string            `json:"headline,omitempty"`
	Issued      *time.Time        `json:"issued,omitempty"`
	Expiry      *time.Time        `json:"expiry,omitempty"`
	Message     string            `json:"message,omitempty"`
	AreaDesc    string            `json:"areaDesc,omitempty"`
	UGC         []string          `json:"ugc,omitempty"`
	FIPS        []string          `json:"fips,omitempty"`
	Geometry    []Ring            `json:"geometry,omitempty"`
	EventMotion *EventMotion      `json:"eventMotionDescription,omitempty"`
	Info        map[string]string `json:"alertInfo,omitempty"`
	Properties  Properties        `json:"properties"`
}

// Expired reports whether the alert's expiry, when set, is before now.
func (a *Alert) Expired(now time.Time) bool {
	return a.Expiry != nil && a.Expiry.Before(now)
}
