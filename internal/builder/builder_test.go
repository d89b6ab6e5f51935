package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
)

const tornadoStanza = `BULLETIN - EAS ACTIVATION REQUESTED
Tornado Warning
National Weather Service San Diego CA
737 PM PST Thu Feb 12 2026

CAC073-130415-
/O.NEW.KSGX.TO.W.0002.260213T0340Z-260213T0415Z/

* WHAT...Tornado

* WHERE...Southwestern San Bernardino County

LAT...LON 3458 11702 3460 11704 3462 11702
TIME...MOT...LOC 0340Z 245DEG 30KT 3460 11703

$$
`

const cancelStanza = `WWUS54 KSGX 130350
TORSGX
CAC073-130400-
/O.CAN.KSGX.TO.W.0002.000000T0000Z-260213T0415Z/
The Tornado Warning has been cancelled.
$$
`

const splitStanza = `BULLETIN - IMMEDIATE BROADCAST REQUESTED
Severe Thunderstorm Warning
National Weather Service San Diego CA
737 PM PST Thu Feb 12 2026

CAC073-130430-
/O.NEW.KSGX.SV.W.0010.260213T0340Z-260213T0430Z/

A SEVERE THUNDERSTORM WARNING REMAINS IN EFFECT UNTIL 830 PM.

LAT...LON 3300 11700 3302 11702 3304 11700

&&

For the second storm cell.

LAT...LON 3400 11600 3402 11602 3404 11600

$$
`

const spsStanza = `Preamble line
<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier>NWS-SPS-12345</identifier>
  <sender>w-nws.webmaster@noaa.gov</sender>
  <sent>2026-02-13T03:41:00Z</sent>
  <status>Actual</status>
  <msgType>Alert</msgType>
  <scope>Public</scope>
  <info>
    <event>Special Weather Statement</event>
    <urgency>Expected</urgency>
    <severity>Minor</severity>
    <certainty>Observed</certainty>
    <expires>2026-02-13T04:41:00Z</expires>
    <senderName>NWS San Diego CA</senderName>
    <headline>NWSheadline A strong thunderstorm will impact the valley</headline>
    <description>At 338 PM, a strong thunderstorm was near Ramona.</description>
    <parameter>
      <valueName>NWSheadline</valueName>
      <value>NWSheadline A strong thunderstorm will impact the valley</value>
    </parameter>
    <area>
      <areaDesc>San Diego County</areaDesc>
      <polygon>32.91,-116.93 32.95,-116.87 32.89,-116.82 32.91,-116.93</polygon>
      <geocode>
        <valueName>UGC</valueName>
        <value>CAZ050 CAZ057</value>
      </geocode>
    </area>
  </info>
</alert>
`

const duplicateStanza = `/O.NEW.KSGX.TO.W.0005.260213T0340Z-260213T0415Z/
<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier>NWS-TOR-99999</identifier>
  <sent>2026-02-13T03:40:00Z</sent>
  <info>
    <event>Tornado Warning</event>
    <parameter>
      <valueName>VTEC</valueName>
      <value>/O.NEW.KSGX.TO.W.0005.260213T0340Z-260213T0415Z/</value>
    </parameter>
  </info>
</alert>
`

var received = time.Date(2026, 2, 13, 3, 41, 30, 0, time.UTC)

type stubZones struct{ name string }

func (z stubZones) ResolveAll(_ context.Context, ids []string) string { return z.name }

type stubGeometry struct {
	id    string
	rings []alert.Ring
}

func (g stubGeometry) GeometryByID(id string) []alert.Ring {
	if id == g.id {
		return g.rings
	}
	return nil
}

func buildOne(t *testing.T, b *Builder, text string) alert.Alert {
	t.Helper()
	res := b.Build(context.Background(), Input{Text: text, Office: "KSGX", ProductType: "Tornado Warning", Received: received})
	require.Len(t, res.Alerts, 1)
	require.Empty(t, res.Deletes)
	return res.Alerts[0]
}

func TestBuildFreshTornadoWarning(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	rec := buildOne(t, b, tornadoStanza)

	assert.Equal(t, "KSGX.TO.W.0002", rec.ID)
	assert.Equal(t, "Tornado Warning", rec.Name)
	assert.Equal(t, "KSGX", rec.Sender)
	assert.Equal(t, "EAS ACTIVATION REQUESTED", rec.Headline)

	require.NotNil(t, rec.Issued)
	assert.Equal(t, time.Date(2026, 2, 13, 3, 40, 0, 0, time.UTC), *rec.Issued)
	require.NotNil(t, rec.Expiry)
	assert.Equal(t, time.Date(2026, 2, 13, 4, 15, 0, 0, time.UTC), *rec.Expiry)

	assert.Equal(t, []string{"CAC073"}, rec.UGC)
	assert.Equal(t, []string{"06073"}, rec.FIPS)

	require.Len(t, rec.Geometry, 1)
	ring := rec.Geometry[0]
	require.Len(t, ring, 4)
	assert.True(t, ring.Closed())
	assert.Equal(t, [2]float64{-117.02, 34.58}, ring[0])
	assert.Equal(t, [2]float64{-117.04, 34.60}, ring[1])

	require.NotNil(t, rec.EventMotion)
	assert.Equal(t, 245, rec.EventMotion.HeadingDeg)
	assert.Equal(t, 30, rec.EventMotion.SpeedKt)
	assert.Equal(t, "tornado", rec.EventMotion.Type)

	assert.Equal(t, "Tornado", rec.Info["WHAT"])
	assert.Equal(t, "/O.NEW.KSGX.TO.W.0002.260213T0340Z-260213T0415Z/", rec.Properties.VTEC)
	assert.Equal(t, "TO", rec.Properties.Phenomena)
	assert.Equal(t, "W", rec.Properties.Significance)
	assert.Equal(t, "0002", rec.Properties.EventTrackingNumber)
	assert.Equal(t, "2026-02-13T03:41:30Z", rec.Properties.ReceivedTime)
}

func TestBuildDeterministic(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	first := buildOne(t, b, tornadoStanza)
	second := buildOne(t, b, tornadoStanza)
	assert.Equal(t, first, second)
}

func TestBuildCancellation(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	res := b.Build(context.Background(), Input{Text: cancelStanza, Office: "KSGX", Received: received})

	assert.Empty(t, res.Alerts)
	require.Len(t, res.Deletes, 1)
	assert.Equal(t, alert.Key{
		Office:              "KSGX",
		Phenomena:           "TO",
		Significance:        "W",
		EventTrackingNumber: "0002",
	}, res.Deletes[0])
}

func TestBuildSplitMessage(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	res := b.Build(context.Background(), Input{Text: splitStanza, Office: "KSGX", Received: received})

	require.Len(t, res.Alerts, 2)
	assert.Equal(t, "KSGX.SV.W.0010_0", res.Alerts[0].ID)
	assert.Equal(t, "KSGX.SV.W.0010_1", res.Alerts[1].ID)

	require.Len(t, res.Alerts[0].Geometry, 1)
	require.Len(t, res.Alerts[1].Geometry, 1)
	assert.Equal(t, [2]float64{-117.00, 33.00}, res.Alerts[0].Geometry[0][0])
	assert.Equal(t, [2]float64{-116.00, 34.00}, res.Alerts[1].Geometry[0][0])
}

func TestBuildNonVTECSpecialWeatherStatement(t *testing.T) {
	b := New(Options{AllowedAlerts: []string{"Special Weather Statement"}}, nil, nil, nil)
	res := b.Build(context.Background(), Input{Text: spsStanza, Office: "KSGX", ProductType: "Special Weather Statement", Received: received})

	require.Len(t, res.Alerts, 1)
	rec := res.Alerts[0]
	assert.Equal(t, "NWS-SPS-12345", rec.ID)
	assert.Equal(t, "Special Weather Statement", rec.Name)
	assert.Equal(t, "A strong thunderstorm will impact the valley", rec.Headline)

	require.NotNil(t, rec.Issued)
	assert.Equal(t, time.Date(2026, 2, 13, 3, 41, 0, 0, time.UTC), *rec.Issued)
	require.NotNil(t, rec.Expiry)
	assert.Equal(t, time.Date(2026, 2, 13, 4, 41, 0, 0, time.UTC), *rec.Expiry)

	assert.Equal(t, []string{"CAZ050", "CAZ057"}, rec.UGC)
	require.Len(t, rec.Geometry, 1)
	assert.True(t, rec.Geometry[0].Closed())
}

func TestBuildNonVTECEventNotAllowed(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	res := b.Build(context.Background(), Input{Text: spsStanza, Office: "KSGX", Received: received})
	assert.Empty(t, res.Alerts)
	assert.Empty(t, res.Deletes)
}

func TestBuildDuplicateCAPAndVTEC(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	res := b.Build(context.Background(), Input{Text: duplicateStanza, Office: "KSGX", Received: received})
	assert.Empty(t, res.Alerts)
	assert.Empty(t, res.Deletes)
}

func TestBuildRejectsSerializedJSON(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	body := `{"id":"x","name":"y","sender":"z","headline":"w"}`
	res := b.Build(context.Background(), Input{Text: body, Office: "KSGX", Received: received})
	assert.Empty(t, res.Alerts)
}

func TestBuildRejectsRawXML(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	res := b.Build(context.Background(), Input{Text: "<product><body>not CAP</body></product>", Office: "KSGX", Received: received})
	assert.Empty(t, res.Alerts)
}

func TestBuildRejectsNewWithoutGeometry(t *testing.T) {
	b := New(Options{}, nil, nil, nil)
	text := `BULLETIN - EAS ACTIVATION REQUESTED
Tornado Warning
National Weather Service San Diego CA

/O.NEW.KSGX.TO.W.0003.260213T0340Z-260213T0415Z/

No coordinates in this product.
`
	res := b.Build(context.Background(), Input{Text: text, Office: "KSGX", Received: received})
	assert.Empty(t, res.Alerts)

	permissive := New(Options{AllowNoGeometry: true}, nil, nil, nil)
	res = permissive.Build(context.Background(), Input{Text: text, Office: "KSGX", Received: received})
	assert.Len(t, res.Alerts, 1)
}

func TestBuildUpdateInheritsGeometry(t *testing.T) {
	stored := stubGeometry{
		id:    "KSGX.TO.W.0002",
		rings: []alert.Ring{{{-117.02, 34.58}, {-117.04, 34.60}, {-117.02, 34.62}, {-117.02, 34.58}}},
	}
	b := New(Options{}, nil, nil, stored)

	text := `BULLETIN - EAS ACTIVATION REQUESTED
Tornado Warning
National Weather Service San Diego CA

/O.CON.KSGX.TO.W.0002.000000T0000Z-260213T0415Z/

The tornado warning remains in effect.
`
	rec := buildOne(t, b, text)
	assert.Equal(t, stored.rings, rec.Geometry)
}

func TestBuildResolvesAreaDesc(t *testing.T) {
	b := New(Options{}, stubZones{name: "San Diego County, CA"}, nil, nil)
	rec := buildOne(t, b, tornadoStanza)
	assert.Equal(t, "San Diego County, CA", rec.AreaDesc)
}

func TestResolveNameAllowListRanking(t *testing.T) {
	b := New(Options{AllowedAlerts: []string{
		"Flood Advisory",
		"Flood Watch",
		"Flash Flood Warning",
		"Flood Warning",
	}}, nil, nil, nil)

	text := "A FLASH FLOOD WARNING and a FLOOD ADVISORY are mentioned here."
	assert.Equal(t, "Flash Flood Warning", b.resolveName(&capMeta{}, text))

	assert.Equal(t, "Unknown Alert", b.resolveName(&capMeta{}, "nothing recognizable"))
}

func TestResolveHeadlineContinuationMerge(t *testing.T) {
	parts := []string{"A TORNADO WARNING REMAINS IN EFFECT UNTIL 1015 PM PST FOR\nSOUTHWESTERN SAN BERNARDINO COUNTY...\n\nAt 737 PM PST, a tornado was reported."}

	headline, rewritten := resolveHeadline(&capMeta{}, parts)
	assert.Equal(t, "A TORNADO WARNING REMAINS IN EFFECT UNTIL 1015 PM PST FOR SOUTHWESTERN SAN BERNARDINO COUNTY...", headline)
	assert.NotContains(t, rewritten[0], "\nSOUTHWESTERN")

	// Resolving again on the rewritten body yields the same headline.
	again, _ := resolveHeadline(&capMeta{}, rewritten)
	assert.Equal(t, headline, again)
}

func TestResolveHeadlineDropsJunk(t *testing.T) {
	parts := []string{"BULLETIN - 1234...\nbody text"}
	headline, _ := resolveHeadline(&capMeta{}, parts)
	assert.Empty(t, headline)
}
