package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("COUNTIES_PATH", "")
	assert.Equal(t, "fips_county_geometry.json", envOr("COUNTIES_PATH", defaultCountiesPath))

	t.Setenv("COUNTIES_PATH", "/data/counties.json")
	assert.Equal(t, "/data/counties.json", envOr("COUNTIES_PATH", defaultCountiesPath))
}
