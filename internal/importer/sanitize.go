package importer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stripControl removes control characters except newline and tab. CRLF becomes LF.
func stripControl(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
}

// cleanTitle strips control characters and collapses all whitespace runs to one space.
func cleanTitle(s string) string {
	return strings.Join(strings.Fields(stripControl(s)), " ")
}

func cleanBody(s string) string {
	return strings.TrimSpace(stripControl(s))
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i], true
		}
		count++
	}
	return s, false
}
