package util

import (
	"html"
	"strings"
	"unicode/utf8"
)

// SanitizeInput trims and HTML-escapes free text supplied by riders and drivers.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// SanitizeLimited sanitizes s and truncates it to at most max runes.
func SanitizeLimited(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	return html.EscapeString(s)
}

// ContainsSuspicious flags script-like payloads in user text.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<script", "javascript:", "onerror", "onload", "${"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
