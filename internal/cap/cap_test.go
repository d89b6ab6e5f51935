package cap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCAP = `<?xml version="1.0" encoding="UTF-8"?>
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
      <value>A strong thunderstorm will impact the valley</value>
    </parameter>
    <area>
      <areaDesc>San Diego County</areaDesc>
      <polygon>32.91,-116.93 32.95,-116.87 32.89,-116.82 32.91,-116.93</polygon>
      <geocode>
        <valueName>UGC</valueName>
        <value>CAZ050 CAZ057</value>
      </geocode>
      <geocode>
        <valueName>SAME</valueName>
        <value>006073</value>
      </geocode>
    </area>
  </info>
</alert>`

func TestParse(t *testing.T) {
	a := Parse(sampleCAP)
	require.NotNil(t, a)
	assert.Equal(t, "NWS-SPS-12345", a.Identifier)
	assert.Equal(t, "2026-02-13T03:41:00Z", a.Sent)

	info := a.PrimaryInfo()
	require.NotNil(t, info)
	assert.Equal(t, "Special Weather Statement", info.Event)
	assert.Equal(t, "2026-02-13T04:41:00Z", info.Expires)
	assert.Equal(t, "A strong thunderstorm will impact the valley", info.ParameterValue("NWSheadline"))
	assert.Empty(t, info.ParameterValue("VTEC"))
}

func TestParseNotCAP(t *testing.T) {
	assert.Nil(t, Parse("plain text product"))
	assert.Nil(t, Parse("<alert>unclosed"))
}

func TestFindBlock(t *testing.T) {
	text := "PREAMBLE LINE\n" + sampleCAP + "\ntrailing"
	block := FindBlock(text)
	require.NotNil(t, block)
	assert.Equal(t, "PREAMBLE LINE\n", block.Preamble)
	assert.Contains(t, block.XML, "<?xml")
	assert.Contains(t, block.XML, "</alert>")
	assert.Equal(t, "\ntrailing", block.Trailer)

	assert.Nil(t, FindBlock("no xml here"))
}

func TestPolygonPoints(t *testing.T) {
	a := Parse(sampleCAP)
	require.NotNil(t, a)

	pts := a.PolygonPoints()
	require.Len(t, pts, 4)
	assert.Equal(t, [2]float64{32.91, -116.93}, pts[0])
	assert.Equal(t, [2]float64{32.89, -116.82}, pts[2])
}

func TestAllUGC(t *testing.T) {
	a := Parse(sampleCAP)
	require.NotNil(t, a)
	assert.Equal(t, []string{"CAZ050", "CAZ057"}, a.AllUGC())
}

func TestGeocodeValue(t *testing.T) {
	a := Parse(sampleCAP)
	require.NotNil(t, a)
	area := a.PrimaryInfo().Area[0]
	assert.Equal(t, "006073", area.GeocodeValue("SAME"))
}
