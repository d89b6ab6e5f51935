package geo

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
)

// CountyLookup maps five-digit county FIPS codes to prepackaged polygon
// geometry, used when a product carries county identifiers but no
// LAT...LON line of its own.
type CountyLookup struct {
	counties map[string]countyEntry
}

type countyEntry struct {
	Geometry []alert.Ring `json:"geometry"`
}

// LoadCountyLookup reads the fips→polygon file. A missing or unreadable
// file yields an empty lookup; geometry overlay is best-effort.
func LoadCountyLookup(path string) *CountyLookup {
	l := &CountyLookup{counties: make(map[string]countyEntry)}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("County geometry file unavailable, overlay disabled")
		return l
	}
	if err := json.Unmarshal(data, &l.counties); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("County geometry file malformed, overlay disabled")
		l.counties = make(map[string]countyEntry)
	}
	return l
}

// Rings returns the polygon rings for a county FIPS code, or nil.
func (l *CountyLookup) Rings(fips string) []alert.Ring {
	if l == nil {
		return nil
	}
	return l.counties[fips].Geometry
}

// Size returns the number of counties loaded.
func (l *CountyLookup) Size() int {
	if l == nil {
		return 0
	}
	return len(l.counties)
}
