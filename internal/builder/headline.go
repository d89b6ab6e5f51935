package builder

import (
	"regexp"
	"strings"
)

var (
	bulletinNameRe    = regexp.MustCompile(`BULLETIN[^\n]*\n\s*([^\n]+)\n\s*National Weather Service`)
	headlineKeywordRe = regexp.MustCompile(`\b(ADVISORY|WARNING|WATCH|EMERGENCY|STATEMENT|ALERT)\b`)
	connectorEndRe    = regexp.MustCompile(`\b(IN|FOR|UNTIL|TO|OF|THE|AND|AT|ON|FROM)\.{0,3}$`)
	junkHeadlineRe    = regexp.MustCompile(`^[\d[:punct:]\s]+$`)
	ugcShapeRe        = regexp.MustCompile(`^[A-Z]{2}[CZ]\d{3}`)
)

// resolveName picks the human product name: CAP event, then the line
// between a BULLETIN banner and the office signature, then a scan of
// the allow list ranked Warning > Watch > Advisory > Statement with
// longer matches winning ties.
func (b *Builder) resolveName(meta *capMeta, cleaned string) string {
	if meta.event != "" {
		return meta.event
	}

	if m := bulletinNameRe.FindStringSubmatch(cleaned); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return titleCase(name)
		}
	}

	upper := strings.ToUpper(cleaned)
	best := ""
	bestRank := -1
	for _, cand := range b.opts.AllowedAlerts {
		if !strings.Contains(upper, strings.ToUpper(cand)) {
			continue
		}
		rank := classRank(cand)
		if rank > bestRank || (rank == bestRank && len(cand) > len(best)) {
			best, bestRank = cand, rank
		}
	}
	if best != "" {
		return best
	}
	return "Unknown Alert"
}

func classRank(name string) int {
	switch {
	case strings.HasSuffix(name, "Warning"):
		return 4
	case strings.HasSuffix(name, "Watch"):
		return 3
	case strings.HasSuffix(name, "Advisory"):
		return 2
	case strings.HasSuffix(name, "Statement"):
		return 1
	}
	return 0
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// resolveHeadline picks the one-line summary and may rewrite the first
// message part when a continuation line is folded into the headline.
// The CAP NWSheadline wins outright; otherwise the headline is the
// BULLETIN banner minus its prefix, or the first line containing
// "IN EFFECT" or an alerting keyword.
func resolveHeadline(meta *capMeta, parts []string) (string, []string) {
	if meta.headline != "" {
		return meta.headline, parts
	}
	if len(parts) == 0 {
		return "", parts
	}

	lines := strings.Split(parts[0], "\n")
	headline, idx := scanHeadline(lines)
	if headline == "" {
		return "", parts
	}

	// A headline ending in a connector word usually wraps onto a short
	// all-caps line. Fold the wrapped line into both the headline and
	// the body line it came from, so re-running the resolver on the
	// emitted body derives the same headline.
	if idx+1 < len(lines) {
		next := strings.TrimSpace(lines[idx+1])
		if connectorEndRe.MatchString(headline) && isContinuation(next) {
			headline = headline + " " + next
			lines[idx] = strings.TrimRight(lines[idx], " ") + " " + next
			lines = append(lines[:idx+1], lines[idx+2:]...)
			rewritten := make([]string, len(parts))
			copy(rewritten, parts)
			rewritten[0] = strings.Join(lines, "\n")
			parts = rewritten
		}
	}

	if junkHeadlineRe.MatchString(headline) {
		return "", parts
	}
	return headline, parts
}

func scanHeadline(lines []string) (string, int) {
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "BULLETIN") {
			return strings.TrimSpace(strings.TrimPrefix(t, "BULLETIN - ")), i
		}
		break
	}
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if strings.Contains(t, "IN EFFECT") || headlineKeywordRe.MatchString(t) {
			return t, i
		}
	}
	return "", -1
}

// isContinuation reports whether a line reads like the tail of a
// wrapped headline: short, all caps with at least one letter, and not
// shaped like a UGC line.
func isContinuation(line string) bool {
	if line == "" || len(line) >= 60 {
		return false
	}
	if ugcShapeRe.MatchString(line) {
		return false
	}
	hasLetter := strings.IndexFunc(line, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	}) >= 0
	return hasLetter && line == strings.ToUpper(line)
}
