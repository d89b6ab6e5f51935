package wx

import (
	"regexp"
	"strings"
)

// A cleanupStage is one pure rewrite in the message normalization
// pipeline. Stages run in order; each receives the previous stage's
// output.
type cleanupStage struct {
	name string
	fn   func(string) string
}

var (
	tagRe            = regexp.MustCompile(`<[^>]*>`)
	trailingSpaceRe  = regexp.MustCompile(`[ \t]+\n`)
	ugcContinueRe    = regexp.MustCompile(`-\n(\d{3})`)
	separatorRe      = regexp.MustCompile(`\n*[ \t]*(&&|\$\$)[ \t]*\n*`)
	bulletRe         = regexp.MustCompile(`\n+([*\-•] [A-Z])`)
	narrativeHeadRe  = regexp.MustCompile(`\n+(HAZARD\.\.\.|SOURCE\.\.\.|IMPACT\.\.\.|Locations impacted include)`)
	blockHeadRe      = regexp.MustCompile(`\n+(TIME\.\.\.MOT\.\.\.LOC|LAT\.\.\.LON|MAX HAIL SIZE|MAX WIND GUST|WATERSPOUT|TORNADO DAMAGE THREAT|THUNDERSTORM DAMAGE THREAT|FLASH FLOOD DAMAGE THREAT|HAIL THREAT|WIND THREAT|SNOW SQUALL)`)
	precautionaryRe  = regexp.MustCompile(`\n+(PRECAUTIONARY/PREPAREDNESS ACTIONS\.\.\.)`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
	digitLineRe      = regexp.MustCompile(`^[\d ]+$`)
	latLonHeadLineRe = regexp.MustCompile(`^LAT\.\.\.LON`)
)

var cleanupStages = []cleanupStage{
	{"crlf", func(s string) string {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		return strings.ReplaceAll(s, "\r", "\n")
	}},
	{"strip-tags", func(s string) string {
		return tagRe.ReplaceAllString(s, "")
	}},
	{"trim-trailing-space", func(s string) string {
		return trailingSpaceRe.ReplaceAllString(s, "\n")
	}},
	{"join-ugc-lines", func(s string) string {
		return ugcContinueRe.ReplaceAllString(s, "-$1")
	}},
	{"join-latlon-lines", joinLatLonContinuations},
	{"separator-paragraphs", func(s string) string {
		return separatorRe.ReplaceAllString(s, "\n\n$1\n\n")
	}},
	{"bullet-paragraphs", func(s string) string {
		return bulletRe.ReplaceAllString(s, "\n\n$1")
	}},
	{"narrative-headings", func(s string) string {
		return narrativeHeadRe.ReplaceAllString(s, "\n\n$1")
	}},
	{"block-headings", func(s string) string {
		return blockHeadRe.ReplaceAllString(s, "\n\n$1")
	}},
	{"precautionary-paragraph", func(s string) string {
		return precautionaryRe.ReplaceAllString(s, "\n\n$1")
	}},
	{"timestamp-lines", isolateTimestampLines},
	{"collapse-blank-runs", func(s string) string {
		return blankRunRe.ReplaceAllString(s, "\n\n")
	}},
	{"trim", strings.TrimSpace},
}

// CleanupMessage normalizes a raw product body: strips embedded XML,
// fixes line endings, keeps the && and $$ separators as their own
// paragraphs, puts headings and timestamps on paragraph boundaries and
// collapses runs of blank lines.
func CleanupMessage(text string) string {
	for _, st := range cleanupStages {
		text = st.fn(text)
	}
	return text
}

// joinLatLonContinuations merges wrapped coordinate lines back onto
// their LAT...LON heading so the coordinate extractor sees one line.
func joinLatLonContinuations(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if latLonHeadLineRe.MatchString(strings.TrimSpace(line)) {
			line = strings.TrimSpace(line)
			for i+1 < len(lines) && digitLineRe.MatchString(strings.TrimSpace(lines[i+1])) && strings.TrimSpace(lines[i+1]) != "" {
				line += " " + strings.TrimSpace(lines[i+1])
				i++
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// isolateTimestampLines puts the product issuance timestamp on its own
// line when the upstream text ran it together with other content.
func isolateTimestampLines(s string) string {
	return issuedTimeRe.ReplaceAllStringFunc(s, func(m string) string {
		return "\n" + m + "\n"
	})
}
