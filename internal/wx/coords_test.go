package wx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCoordinatesLatLonBlock(t *testing.T) {
	text := "SOME TEXT\nLAT...LON 4085 12407 4090 12410 4095 12405\n$$"

	pts := ExtractCoordinates(text, nil)
	assert.Equal(t, [][2]float64{
		{40.85, -124.07},
		{40.90, -124.10},
		{40.95, -124.05},
	}, pts)
}

func TestExtractCoordinatesFiveDigitLongitude(t *testing.T) {
	// 5-digit longitudes west of 100W: 10052 -> 100.52
	text := "LAT...LON 3458 10052 3460 10054"

	pts := ExtractCoordinates(text, nil)
	assert.Equal(t, [][2]float64{
		{34.58, -100.52},
		{34.60, -100.54},
	}, pts)
}

func TestExtractCoordinatesDecimalPairs(t *testing.T) {
	text := "polygon 34.58,-117.02 34.60,-117.04 end"

	pts := ExtractCoordinates(text, nil)
	assert.Equal(t, [][2]float64{
		{34.58, -117.02},
		{34.60, -117.04},
	}, pts)
}

func TestExtractCoordinatesCAPFallback(t *testing.T) {
	fallback := [][2]float64{{34.58, -117.02}, {34.60, -117.04}}

	pts := ExtractCoordinates("no coordinates here", fallback)
	assert.Equal(t, fallback, pts)
}

func TestExtractCoordinatesLatLonBeatsDecimal(t *testing.T) {
	text := "34.00,-100.00\nLAT...LON 4085 12407 4090 12410"

	pts := ExtractCoordinates(text, nil)
	assert.Equal(t, [][2]float64{{40.85, -124.07}, {40.90, -124.10}}, pts)
}

func TestExtractCoordinatesNone(t *testing.T) {
	assert.Nil(t, ExtractCoordinates("nothing to see", nil))
}
