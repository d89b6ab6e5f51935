// Package nwws maintains the NWWS-OI XMPP session and feeds groupchat
// product stanzas into the alert pipeline.
//
// See https://www.weather.gov/nwws/configuration for the stanza layout:
//
//	<message type='groupchat' from='nwws@conference.nwws-oi.weather.gov/nwws-oi'>
//	  <body>KSGX issues TOR valid 2026-02-13T03:40:00Z</body>
//	  <x xmlns='nwws-oi' cccc='KSGX' ttaaii='WFUS55' issue='2026-02-13T03:40:00Z'
//	     awipsid='TORSGX' id='10313.6'>...product text...</x>
//	</message>
package nwws

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"gosrc.io/xmpp/stanza"
)

// MessageX is the <x xmlns='nwws-oi'> extension carried by every NWWS-OI
// product message. The id attribute packs the ingest process id and a
// per-product sequence number separated by a period.
type MessageX struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"nwws-oi x"`
	Text    string   `xml:",chardata"`
	// Four character issuing office.
	Cccc string `xml:"cccc,attr"`
	// Six character WMO product id, see
	// https://community.wmo.int/en/data-designators-t1t2aia2ii-cccc
	Ttaaii string `xml:"ttaaii,attr"`
	// ISO 8601 issuance time in UTC.
	Issue string `xml:"issue,attr"`
	// Six character AWIPS id (AFOS PIL).
	AwipsID string `xml:"awipsid,attr"`
	ID      string `xml:"id,attr"`
}

// SequenceID splits the id attribute into the upstream process id and
// the incrementing product sequence number.
func (x *MessageX) SequenceID() (process string, sequence int, err error) {
	fields := strings.Split(x.ID, ".")
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("malformed stanza id %q", x.ID)
	}
	sequence, err = strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed stanza id %q: %w", x.ID, err)
	}
	return fields[0], sequence, nil
}

// productNames maps the three letter AWIPS category to the product name
// used for alert records. Unlisted categories fall back to the WMO data
// type.
var productNames = map[string]string{
	"TOR": "Tornado Warning",
	"TOA": "Tornado Watch",
	"SVR": "Severe Thunderstorm Warning",
	"SVA": "Severe Thunderstorm Watch",
	"SVS": "Severe Weather Statement",
	"SPS": "Special Weather Statement",
	"FFW": "Flash Flood Warning",
	"FFA": "Flash Flood Watch",
	"FFS": "Flash Flood Statement",
	"FLW": "Flood Warning",
	"FLS": "Flood Statement",
	"FLA": "Flood Watch",
	"EWW": "Extreme Wind Warning",
	"SMW": "Special Marine Warning",
	"MWS": "Marine Weather Statement",
	"WSW": "Winter Storm Warning",
	"WCN": "Watch County Notification",
	"NPW": "Non-Precipitation Warning",
	"CFW": "Coastal Flood Warning",
	"HLS": "Hurricane Local Statement",
	"TSU": "Tsunami Warning",
	"DSW": "Dust Storm Warning",
	"SQW": "Snow Squall Warning",
	"HWO": "Hazardous Weather Outlook",
	"NOW": "Short Term Forecast",
	"PNS": "Public Information Statement",
	"CAP": "Common Alerting Protocol",
}

// wmoDataTypes maps the WMO T1 designator to its data type, see
// https://community.wmo.int/en/table-1
var wmoDataTypes = map[byte]string{
	'A': "Analyses",
	'C': "Climatic data",
	'F': "Forecast",
	'N': "Notices",
	'S': "Surface data",
	'U': "Upper air data",
	'W': "Warnings",
	'X': "Common Alert Protocol",
}

// ProductName resolves a friendly product name from the AWIPS id,
// falling back to the WMO data type, then to the raw AWIPS category.
func (x *MessageX) ProductName() string {
	pil := strings.TrimSpace(x.AwipsID)
	if len(pil) >= 3 {
		if name, ok := productNames[pil[:3]]; ok {
			return name
		}
	}
	if len(x.Ttaaii) == 6 {
		if dataType, ok := wmoDataTypes[x.Ttaaii[0]]; ok {
			return dataType
		}
	}
	if len(pil) >= 3 {
		return pil[:3]
	}
	return ""
}

// Warning reports whether the product is flagged as a warning or CAP
// message by its WMO designator.
func (x *MessageX) Warning() bool {
	return len(x.Ttaaii) == 6 && (x.Ttaaii[0] == 'W' || x.Ttaaii[0] == 'X')
}

func init() {
	stanza.TypeRegistry.MapExtension(stanza.PKTMessage, xml.Name{Space: "nwws-oi", Local: "x"}, MessageX{})
}
