package gateway

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxMessageLen = 1000

// astralRE matches characters outside the Basic Multilingual Plane.
// Keycap sequences like 1️⃣ are BMP and survive cleaning, so numeric menu
// picks sent as emoji still work.
var astralRE = regexp.MustCompile(`[\x{10000}-\x{10FFFF}]`)

// CleanMessage normalizes an inbound message body. It rejects oversized
// bodies and bodies that are empty once astral-plane emoji and surrounding
// whitespace are removed.
func CleanMessage(raw string) (string, bool) {
	// Length is counted in characters, not bytes, so multibyte text is not
	// penalized.
	if utf8.RuneCountInString(raw) > maxMessageLen {
		return "", false
	}
	cleaned := strings.TrimSpace(astralRE.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}
