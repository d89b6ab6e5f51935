package wx

import (
	"regexp"
	"strconv"

	"github.com/sparkalerts/nwws-ingest/internal/geo"
)

var (
	ugcPrefixRe = regexp.MustCompile(`^([A-Z]{2}[CZ]?)(.*)$`)
	ugcNumRe    = regexp.MustCompile(`^\d{3}$`)
	ugcRangeRe  = regexp.MustCompile(`^(\d{3})>(\d{3})$`)
	ugcStampRe  = regexp.MustCompile(`^\d{6}$`)
	ugcCountyRe = regexp.MustCompile(`^([A-Z]{2})C(\d{3})$`)
)

// ExpandUGC expands a raw UGC group such as "CAZ001-002>005-141800-"
// into individual zone/county identifiers. Six-digit tokens are the
// trailing product timestamp and are skipped; unrecognized tokens are
// skipped. The result is deduplicated and keeps first-seen order.
func ExpandUGC(group string) []string {
	group = trimHyphens(group)
	if group == "" {
		return nil
	}

	m := ugcPrefixRe.FindStringSubmatch(group)
	if m == nil || len(m[1]) < 2 {
		return nil
	}
	prefix := m[1]

	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, tok := range splitNonEmpty(m[2], '-') {
		switch {
		case ugcNumRe.MatchString(tok):
			add(prefix + tok)
		case ugcRangeRe.MatchString(tok):
			r := ugcRangeRe.FindStringSubmatch(tok)
			lo, _ := strconv.Atoi(r[1])
			hi, _ := strconv.Atoi(r[2])
			if lo > hi || hi-lo >= 1000 {
				continue
			}
			for n := lo; n <= hi; n++ {
				add(prefix + pad3(n))
			}
		case ugcStampRe.MatchString(tok):
			// trailing purge timestamp
		default:
			// partial or garbled token
		}
	}
	return out
}

// UGCToFIPS maps a county UGC (XXC###) to its five-digit FIPS code.
// Zone UGCs (XXZ###) have no FIPS equivalent.
func UGCToFIPS(ugc string) (string, bool) {
	m := ugcCountyRe.FindStringSubmatch(ugc)
	if m == nil {
		return "", false
	}
	state, ok := geo.StateFIPS(m[1])
	if !ok {
		return "", false
	}
	return state + m[2], true
}

func trimHyphens(s string) string {
	for len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '-' {
		s = s[:len(s)-1]
	}
	return s
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func pad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
