package wx

import (
	"regexp"
	"strings"
)

var splitDelimRe = regexp.MustCompile(`&&|\$\$`)

// SplitMessage splits a cleaned product body at each && or $$ token.
// The delimiter stays attached to the part it terminates, so no part is
// ever a bare delimiter. Empty parts are dropped.
func SplitMessage(text string) []string {
	var parts []string
	rest := text
	for {
		loc := splitDelimRe.FindStringIndex(rest)
		if loc == nil {
			break
		}
		part := rest[:loc[1]]
		rest = rest[loc[1]:]

		// Whitespace after the delimiter belongs to the closing part.
		trimmed := strings.TrimLeft(rest, " \t\n")
		part += rest[:len(rest)-len(trimmed)]
		rest = trimmed

		if body := strings.TrimSpace(part); body != "" && !isBareDelimiter(body) {
			parts = append(parts, strings.TrimSpace(part))
		} else if len(parts) > 0 && isBareDelimiter(body) {
			parts[len(parts)-1] += "\n\n" + body
		}
	}
	if body := strings.TrimSpace(rest); body != "" {
		if isBareDelimiter(body) && len(parts) > 0 {
			parts[len(parts)-1] += "\n\n" + body
		} else {
			parts = append(parts, body)
		}
	}
	return parts
}

func isBareDelimiter(s string) bool {
	return s == "&&" || s == "$$"
}
