package wx

import (
	"regexp"
	"strings"
)

// headingRe matches an all-caps section heading terminated by two or
// more dots, optionally preceded by a bullet marker: "* WHAT...Snow."
var headingRe = regexp.MustCompile(`^\s*[*\-•]?\s*([A-Z][A-Z0-9 /_'&]*[A-Z0-9])\.{2,}\s*(.*)$`)

// threatKeys are the alertInfo sections whose values are canonicalized
// threat phrases.
var threatKeys = map[string]bool{
	"TORNADO":                    true,
	"TORNADO_DAMAGE_THREAT":      true,
	"THUNDERSTORM_DAMAGE_THREAT": true,
	"FLASH_FLOOD":                true,
	"FLASH_FLOOD_DAMAGE_THREAT":  true,
	"HAIL_THREAT":                true,
	"WIND_THREAT":                true,
	"WATERSPOUT":                 true,
	"SNOW_SQUALL":                true,
}

var canonicalThreats = []string{
	"RADAR INDICATED",
	"RADAR ESTIMATED",
	"POSSIBLE",
	"CONSIDERABLE",
	"LIKELY",
	"CONFIRMED",
	"NONE",
}

// ExtractSections scans one message part line-by-line and collects
// heading→value pairs for the alertInfo mapping. A value accumulates
// following lines until the next heading or a blank line. Threat-typed
// sections are canonicalized. Returns nil when no sections are found.
func ExtractSections(part string) map[string]string {
	sections := make(map[string]string)
	var current string

	for _, line := range strings.Split(part, "\n") {
		if strings.TrimSpace(line) == "" {
			current = ""
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			key := sectionKey(m[1])
			sections[key] = strings.TrimSpace(m[2])
			current = key
			continue
		}

		if current != "" {
			text := strings.TrimSpace(line)
			if sections[current] == "" {
				sections[current] = text
			} else {
				sections[current] += " " + text
			}
		}
	}

	for key, val := range sections {
		if val == "" {
			delete(sections, key)
			continue
		}
		if threatKeys[key] {
			sections[key] = CanonicalThreat(val)
		}
	}
	if len(sections) == 0 {
		return nil
	}
	return sections
}

// sectionKey normalizes a heading phrase to its alertInfo key:
// "TORNADO DAMAGE THREAT" -> "TORNADO_DAMAGE_THREAT".
func sectionKey(heading string) string {
	heading = strings.TrimSpace(heading)
	heading = strings.Join(strings.Fields(heading), "_")
	return strings.ReplaceAll(heading, "/", "_")
}

// CanonicalThreat maps a raw threat value onto the closed set of NWS
// threat phrases, falling back to the leading short phrase.
func CanonicalThreat(value string) string {
	upper := strings.ToUpper(value)
	for _, threat := range canonicalThreats {
		if strings.Contains(upper, threat) {
			return threat
		}
	}
	return leadingPhrase(value)
}

// leadingPhrase trims a value to its first clause.
func leadingPhrase(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.IndexAny(value, ".;\n"); idx > 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}
